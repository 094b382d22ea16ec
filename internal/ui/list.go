package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/vibewatch/internal/models"
)

var (
	_ list.Item = mediaItem{}
	_ list.Item = entryItem{}
)

// mediaItem wraps a catalog title with its list flags to implement [list.Item].
type mediaItem struct {
	media models.ReconciledMedia
}

func (i mediaItem) FilterValue() string { return i.media.DisplayTitle() }
func (i mediaItem) Title() string       { return i.media.DisplayTitle() }
func (i mediaItem) Description() string {
	parts := []string{kindLabel(i.media.Type()), i.media.Year(), fmt.Sprintf("%.1f", i.media.VoteAverage)}
	desc := strings.Join(parts, " • ")
	if i.media.InWatchlist {
		desc += " " + styles.badge.Render("[to-watch]")
	}
	if i.media.Watched {
		badge := "[watched]"
		if i.media.UserRating != nil {
			badge = fmt.Sprintf("[★ %g]", *i.media.UserRating)
		}
		desc += " " + styles.ok.Render(badge)
	}
	return desc
}

// entryItem wraps a list entry to implement [list.Item].
type entryItem struct {
	entry models.ListEntry
}

func (i entryItem) FilterValue() string { return i.entry.Title }
func (i entryItem) Title() string       { return i.entry.Title }
func (i entryItem) Description() string {
	desc := fmt.Sprintf("%s • %s • %.1f", kindLabel(i.entry.MediaType), i.entry.Year, i.entry.Rating)
	if i.entry.UserRating != nil {
		desc += " " + styles.ok.Render(fmt.Sprintf("[★ %g]", *i.entry.UserRating))
	}
	return desc
}

// media rebuilds enough of the catalog title to act on the entry.
func (i entryItem) media() models.Media {
	return models.Media{ID: i.entry.ID, Title: i.entry.Title, MediaType: i.entry.MediaType, VoteAverage: i.entry.Rating}
}

func kindLabel(mt models.MediaType) string {
	if mt == models.MediaTV {
		return "TV"
	}
	return "Movie"
}
