package tasks

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const (
	MinRating  = 0.0
	MaxRating  = 10.0
	RatingStep = 0.5
)

// ValidateRating checks that r lies in [0, 10] on a half step.
func ValidateRating(r float64) error {
	if math.IsNaN(r) || math.IsInf(r, 0) || r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: %v is outside %v..%v", shared.ErrInvalidRating, r, MinRating, MaxRating)
	}
	if math.Mod(r, RatingStep) != 0 {
		return fmt.Errorf("%w: %v is not a multiple of %v", shared.ErrInvalidRating, r, RatingStep)
	}
	return nil
}

// PromotionResult describes the rows written by [Ratings.Submit].
type PromotionResult struct {
	Entry                models.ListEntry `json:"entry"`
	RemovedFromWatchlist bool             `json:"removedFromWatchlist"`
}

// Ratings records user ratings. A rated title lives on the watched list only.
type Ratings struct {
	lists  *repositories.ListRepository
	guard  *ItemGuard
	logger *log.Logger
	now    func() time.Time
}

// NewRatings creates the rating workflow. A nil guard gets a private one.
func NewRatings(lists *repositories.ListRepository, guard *ItemGuard, logger *log.Logger) *Ratings {
	if guard == nil {
		guard = NewItemGuard()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Ratings{lists: lists, guard: guard, logger: shared.WithLogger(logger, "component", "ratings"), now: time.Now}
}

// Submit rates media and promotes it to the watched list.
//
// The watched row is replaced (re-rating never duplicates), then any to-watch row for the title
// is removed. If the removal fails the rating is kept and the error wraps [shared.ErrPartialPromotion];
// the returned result still describes what was written.
func (r *Ratings) Submit(ctx context.Context, owner string, media models.Media, rating float64) (*PromotionResult, error) {
	if err := ValidateRating(rating); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, shared.ErrNotAuthenticated
	}

	mt := media.Type()
	releaseWatched, err := r.guard.Acquire(owner, models.Watched, mt, media.ID)
	if err != nil {
		return nil, err
	}
	defer releaseWatched()
	releaseWatchlist, err := r.guard.Acquire(owner, models.ToWatch, mt, media.ID)
	if err != nil {
		return nil, err
	}
	defer releaseWatchlist()

	payload := models.NewPayload(media, r.now())
	payload.UserRating = &rating

	item, err := r.lists.Replace(ctx, owner, models.Watched, payload)
	if err != nil {
		return nil, err
	}
	entry, err := models.NewListEntry(item)
	if err != nil {
		return nil, err
	}
	result := &PromotionResult{Entry: entry}

	removed, err := r.lists.Remove(ctx, owner, models.ToWatch, models.ItemRef{MediaID: media.ID, MediaType: mt})
	if err != nil {
		r.logger.Error("rated item is still on the watchlist", "owner", owner, "media_id", media.ID, "error", err)
		return result, fmt.Errorf("%w: %w", shared.ErrPartialPromotion, err)
	}
	result.RemovedFromWatchlist = removed

	r.logger.Info("rated item", "owner", owner, "media_id", media.ID, "media_type", mt, "rating", rating, "promoted", removed)
	return result, nil
}

// Toggle adds media to the list, or removes it when it is already there. It reports whether the title
// is on the list afterwards.
func Toggle(ctx context.Context, lists *repositories.ListRepository, guard *ItemGuard, owner string, kind models.ListKind, media models.Media) (bool, error) {
	if owner == "" {
		return false, shared.ErrNotAuthenticated
	}
	mt := media.Type()
	release, err := guard.Acquire(owner, kind, mt, media.ID)
	if err != nil {
		return false, err
	}
	defer release()

	present, err := lists.Contains(ctx, owner, kind, media.ID, mt)
	if err != nil {
		return false, err
	}
	if present {
		if _, err := lists.Remove(ctx, owner, kind, models.ItemRef{MediaID: media.ID, MediaType: mt}); err != nil {
			return true, err
		}
		return false, nil
	}
	if _, err := lists.Add(ctx, owner, kind, media); err != nil {
		return false, err
	}
	return true, nil
}
