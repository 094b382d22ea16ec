package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const itemsTable = "/rest/v1/user_items"

// RESTItemStore implements [models.ItemStore] against the hosted row store's REST interface.
//
// The HTTP client is expected to attach the signed-in user's bearer token (see [AuthState.Client]);
// row level security on the table enforces owner scoping server side as well.
type RESTItemStore struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// restRow is the wire form of a user_items row.
type restRow struct {
	ID        int64           `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	ItemKey   string          `json:"item_key"`
	Type      string          `json:"type"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// restError is the error body returned by the REST interface.
type restError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// NewRESTItemStore creates a store for the project at baseURL.
func NewRESTItemStore(baseURL, anonKey string, client *http.Client) *RESTItemStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTItemStore{baseURL: strings.TrimRight(baseURL, "/"), anonKey: anonKey, httpClient: client}
}

func toRow(item *models.SavedItem) (restRow, error) {
	if item.OwnerID == "" {
		return restRow{}, shared.ErrOwnerRequired
	}
	if item.ItemKey == "" || !item.Kind.Valid() {
		return restRow{}, fmt.Errorf("%w: item key and list are required", shared.ErrInvalidInput)
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now()
	}
	value, err := json.Marshal(item.Value)
	if err != nil {
		return restRow{}, err
	}
	return restRow{
		UserID:    item.OwnerID,
		ItemKey:   item.ItemKey,
		Type:      string(item.Kind),
		Value:     value,
		UpdatedAt: item.UpdatedAt.UTC(),
	}, nil
}

// fromRow converts a wire row. A text column arrives as a JSON string, a jsonb column as the object itself.
func fromRow(r restRow) *models.SavedItem {
	value := string(r.Value)
	var s string
	if len(r.Value) > 0 && r.Value[0] == '"' && json.Unmarshal(r.Value, &s) == nil {
		value = s
	}
	return &models.SavedItem{
		RowID:     r.ID,
		OwnerID:   r.UserID,
		Kind:      models.ListKind(r.Type),
		ItemKey:   r.ItemKey,
		Value:     value,
		UpdatedAt: r.UpdatedAt,
	}
}

// Insert stores a new row. A duplicate (user_id, item_key) returns [shared.ErrConflict].
func (s *RESTItemStore) Insert(ctx context.Context, item *models.SavedItem) error {
	row, err := toRow(item)
	if err != nil {
		return err
	}
	var out []restRow
	if err := s.doRequest(ctx, http.MethodPost, nil, row, "return=representation", &out); err != nil {
		return err
	}
	return fill(item, out)
}

// Upsert merges on (user_id, item_key).
func (s *RESTItemStore) Upsert(ctx context.Context, item *models.SavedItem) error {
	row, err := toRow(item)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("on_conflict", "user_id,item_key")
	var out []restRow
	if err := s.doRequest(ctx, http.MethodPost, q, row, "resolution=merge-duplicates,return=representation", &out); err != nil {
		return err
	}
	return fill(item, out)
}

// Update rewrites the row identified by item.RowID.
func (s *RESTItemStore) Update(ctx context.Context, item *models.SavedItem) error {
	row, err := toRow(item)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("id", "eq."+strconv.FormatInt(item.RowID, 10))
	q.Set("user_id", "eq."+item.OwnerID)
	var out []restRow
	if err := s.doRequest(ctx, http.MethodPatch, q, row, "return=representation", &out); err != nil {
		return err
	}
	if len(out) == 0 {
		return fmt.Errorf("%w: item row %d", shared.ErrNotFound, item.RowID)
	}
	return nil
}

// Delete removes the owner's rows with the given ids.
func (s *RESTItemStore) Delete(ctx context.Context, owner string, rowIDs ...int64) (int64, error) {
	if owner == "" {
		return 0, shared.ErrOwnerRequired
	}
	if len(rowIDs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{}
	q.Set("user_id", "eq."+owner)
	q.Set("id", "in.("+strings.Join(ids, ",")+")")
	q.Set("select", "id")

	var out []restRow
	if err := s.doRequest(ctx, http.MethodDelete, q, nil, "return=representation", &out); err != nil {
		return 0, err
	}
	return int64(len(out)), nil
}

// List returns one list, most recently updated first.
func (s *RESTItemStore) List(ctx context.Context, owner string, kind models.ListKind) ([]*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}
	q := url.Values{}
	q.Set("user_id", "eq."+owner)
	q.Set("type", "eq."+string(kind))
	q.Set("order", "updated_at.desc,id.desc")
	return s.selectRows(ctx, q, nil)
}

// Find narrows candidates by key or payload pattern server side, then applies match exactly.
func (s *RESTItemStore) Find(ctx context.Context, owner string, match models.KeyMatch) ([]*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}
	keys := make([]string, len(match.Keys))
	for i, k := range match.Keys {
		keys[i] = quoteFilter(k)
	}
	filters := []string{"item_key.in.(" + strings.Join(keys, ",") + ")"}
	for _, p := range match.PayloadPatterns() {
		filters = append(filters, "value.like."+quoteFilter(strings.ReplaceAll(p, "%", "*")))
	}

	q := url.Values{}
	q.Set("user_id", "eq."+owner)
	q.Set("type", "eq."+string(match.Kind))
	q.Set("or", "("+strings.Join(filters, ",")+")")
	q.Set("order", "updated_at.desc,id.desc")
	return s.selectRows(ctx, q, match.Matches)
}

// Get returns the row with the exact item key.
func (s *RESTItemStore) Get(ctx context.Context, owner, itemKey string) (*models.SavedItem, error) {
	if owner == "" {
		return nil, shared.ErrOwnerRequired
	}
	q := url.Values{}
	q.Set("user_id", "eq."+owner)
	q.Set("item_key", "eq."+itemKey)
	q.Set("limit", "1")
	items, err := s.selectRows(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: item %s", shared.ErrNotFound, itemKey)
	}
	return items[0], nil
}

func (s *RESTItemStore) selectRows(ctx context.Context, q url.Values, keep func(*models.SavedItem) bool) ([]*models.SavedItem, error) {
	q.Set("select", "id,user_id,item_key,type,value,updated_at")
	var rows []restRow
	if err := s.doRequest(ctx, http.MethodGet, q, nil, "", &rows); err != nil {
		return nil, err
	}
	items := make([]*models.SavedItem, 0, len(rows))
	for _, r := range rows {
		item := fromRow(r)
		if keep != nil && !keep(item) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// doRequest is a helper method to make HTTP requests to the REST interface
func (s *RESTItemStore) doRequest(ctx context.Context, method string, q url.Values, body any, prefer string, result any) error {
	u := s.baseURL + itemsTable
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStore, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var rerr restError
		_ = json.NewDecoder(resp.Body).Decode(&rerr)
		switch {
		case resp.StatusCode == http.StatusConflict || rerr.Code == "23505":
			return fmt.Errorf("%w: %s", shared.ErrConflict, rerr.Message)
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, rerr.Message)
		default:
			return fmt.Errorf("%w: status %d: %s", shared.ErrStore, resp.StatusCode, rerr.Message)
		}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func fill(item *models.SavedItem, out []restRow) error {
	if len(out) == 0 {
		return fmt.Errorf("%w: empty response", shared.ErrStore)
	}
	item.RowID = out[0].ID
	if !out[0].UpdatedAt.IsZero() {
		item.UpdatedAt = out[0].UpdatedAt
	}
	return nil
}

// quoteFilter double-quotes a filter value so reserved characters survive the query grammar.
func quoteFilter(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
