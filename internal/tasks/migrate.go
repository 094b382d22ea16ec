package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// KeyChange is one row touched by a key migration.
type KeyChange struct {
	RowID  int64           `json:"rowId"`
	List   models.ListKind `json:"list"`
	From   string          `json:"from"`
	To     string          `json:"to,omitempty"`
	Action string          `json:"action"` // "rewrite" or "drop"
}

// MigrationResult summarizes a migration pass for one owner.
type MigrationResult struct {
	Owner      string      `json:"owner"`
	Scanned    int         `json:"scanned"`
	Rewritten  int         `json:"rewritten"`
	Typed      int         `json:"typed"`
	Collapsed  int         `json:"collapsed"`
	Unreadable int         `json:"unreadable"`
	Conflicts  int         `json:"conflicts"`
	Changes    []KeyChange `json:"changes"`
	DryRun     bool        `json:"dryRun"`
}

// KeyMigrator rewrites historical rows to a single key scheme so lookups need no fallbacks.
type KeyMigrator struct {
	store  models.ItemStore
	scheme models.KeyScheme
	logger *log.Logger
}

// NewKeyMigrator creates a migrator writing keys with scheme.
func NewKeyMigrator(store models.ItemStore, scheme models.KeyScheme, logger *log.Logger) *KeyMigrator {
	if scheme == "" {
		scheme = models.SchemeMobile
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &KeyMigrator{store: store, scheme: scheme, logger: shared.WithLogger(logger, "component", "keys")}
}

// rowGroup holds the rows of one list that refer to the same title, newest first.
type rowGroup struct {
	id   int64
	mt   models.MediaType
	rows []*models.SavedItem
}

// Run migrates both lists of owner. With dryRun set nothing is written and the result lists
// the changes that would be made.
func (m *KeyMigrator) Run(ctx context.Context, owner string, progress chan<- ProgressUpdate, dryRun bool) (*MigrationResult, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}
	result := &MigrationResult{Owner: owner, DryRun: dryRun, Changes: []KeyChange{}}

	for i, kind := range models.ListKinds {
		rows, err := m.store.List(ctx, owner, kind)
		if err != nil {
			return result, fmt.Errorf("failed to list %s: %w", kind.Label(), err)
		}
		result.Scanned += len(rows)
		sendProgress(progress, scanRowsUpdate(i+1, len(models.ListKinds), kind, len(rows)))

		groups := m.group(rows, result)
		if err := m.collapse(ctx, owner, kind, groups, progress, result); err != nil {
			return result, err
		}
		if err := m.rewrite(ctx, kind, groups, progress, result); err != nil {
			return result, err
		}
	}

	m.logger.Info("key migration finished", "owner", owner, "scanned", result.Scanned, "rewritten", result.Rewritten,
		"collapsed", result.Collapsed, "unreadable", result.Unreadable, "conflicts", result.Conflicts, "dry_run", dryRun)
	return result, nil
}

// group buckets rows by resolved title, keeping store order (newest first) inside each bucket.
func (m *KeyMigrator) group(rows []*models.SavedItem, result *MigrationResult) []*rowGroup {
	var groups []*rowGroup
	index := make(map[string]*rowGroup)
	for _, row := range rows {
		id, mt := row.Resolve()
		if id <= 0 {
			result.Unreadable++
			m.logger.Warn("skipping row without a media id", "row_id", row.RowID, "key", row.ItemKey)
			continue
		}
		if !mt.Valid() {
			mt = models.MediaMovie
		}
		key := models.MembershipKey(mt, id)
		g, ok := index[key]
		if !ok {
			g = &rowGroup{id: id, mt: mt}
			index[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	return groups
}

func (m *KeyMigrator) collapse(ctx context.Context, owner string, kind models.ListKind, groups []*rowGroup, progress chan<- ProgressUpdate, result *MigrationResult) error {
	var drops []KeyChange
	for _, g := range groups {
		for _, dup := range g.rows[1:] {
			drops = append(drops, KeyChange{RowID: dup.RowID, List: kind, From: dup.ItemKey, Action: "drop"})
		}
	}

	for i, change := range drops {
		sendProgress(progress, collapseUpdate(i+1, len(drops), change))
		if !result.DryRun {
			if _, err := m.store.Delete(ctx, owner, change.RowID); err != nil {
				return fmt.Errorf("failed to drop duplicate row %d: %w", change.RowID, err)
			}
		}
		result.Collapsed++
		result.Changes = append(result.Changes, change)
	}
	return nil
}

func (m *KeyMigrator) rewrite(ctx context.Context, kind models.ListKind, groups []*rowGroup, progress chan<- ProgressUpdate, result *MigrationResult) error {
	for i, g := range groups {
		keeper := g.rows[0]
		target := m.scheme.Encode(kind, g.mt, g.id)

		value := keeper.Value
		typed := false
		if p, err := keeper.Payload(); err == nil && !p.MediaType.Valid() {
			p.MediaType = g.mt
			if encoded, err := p.Encode(); err == nil {
				value, typed = encoded, true
			}
		}
		if keeper.ItemKey == target && !typed {
			continue
		}

		change := KeyChange{RowID: keeper.RowID, List: kind, From: keeper.ItemKey, To: target, Action: "rewrite"}
		sendProgress(progress, rewriteKeyUpdate(i+1, len(groups), change))
		if !result.DryRun {
			updated := *keeper
			updated.ItemKey = target
			updated.Value = value
			err := m.store.Update(ctx, &updated)
			if errors.Is(err, shared.ErrConflict) {
				m.logger.Warn("target key is held by another title", "row_id", keeper.RowID, "key", target)
				result.Conflicts++
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to rewrite row %d: %w", keeper.RowID, err)
			}
		}
		if keeper.ItemKey != target {
			result.Rewritten++
		}
		if typed {
			result.Typed++
		}
		result.Changes = append(result.Changes, change)
	}
	return nil
}
