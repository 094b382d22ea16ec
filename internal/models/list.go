package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListKind selects one of the two user lists.
//
// The values are the storage tokens written to the type column and shared with the mobile client.
type ListKind string

const (
	ToWatch ListKind = "watchlist"
	Watched ListKind = "watched"
)

// ListKinds enumerates every list.
var ListKinds = []ListKind{ToWatch, Watched}

// ParseListKind accepts the storage tokens plus the "to-watch" spelling.
func ParseListKind(s string) (ListKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "watchlist", "to-watch", "towatch", "to_watch":
		return ToWatch, nil
	case "watched", "seen":
		return Watched, nil
	default:
		return "", fmt.Errorf("unknown list %q", s)
	}
}

// Label is the human name of the list.
func (k ListKind) Label() string {
	if k == ToWatch {
		return "to-watch"
	}
	return string(k)
}

// aliases returns every prefix under which `<list>_<id>` keys of this list were written.
func (k ListKind) aliases() []string {
	if k == ToWatch {
		return []string{"watchlist", "to-watch"}
	}
	return []string{string(k)}
}

// Valid reports whether k names a known list.
func (k ListKind) Valid() bool {
	return k == ToWatch || k == Watched
}

// SavedItem is one row of the user_items table.
type SavedItem struct {
	RowID     int64     `json:"id"`
	OwnerID   string    `json:"user_id"`
	Kind      ListKind  `json:"type"`
	ItemKey   string    `json:"item_key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Payload decodes the row's JSON snapshot.
func (s *SavedItem) Payload() (*Payload, error) {
	return DecodePayload(s.Value)
}

// Resolve returns the media id and type of the row.
//
// The payload wins; the key fills whatever the payload lacks.
func (s *SavedItem) Resolve() (int64, MediaType) {
	var (
		id int64
		mt MediaType
	)
	if p, err := s.Payload(); err == nil {
		id = p.ID
		mt = p.Type()
	}
	if parts, ok := DecodeKey(s.ItemKey); ok {
		if id == 0 {
			id = parts.MediaID
		}
		if mt == MediaUnknown {
			mt = parts.MediaType
		}
	}
	return id, mt
}

// Payload is the denormalized catalog snapshot stored in a row.
type Payload struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	PosterPath   string       `json:"poster_path"`
	MediaType    MediaType    `json:"media_type,omitempty"`
	ReleaseDate  string       `json:"release_date"`
	FirstAirDate string       `json:"first_air_date,omitempty"`
	VoteAverage  float64      `json:"vote_average"`
	Genres       []Genre      `json:"genres"`
	GenreIDs     []int        `json:"genre_ids,omitempty"`
	Overview     string       `json:"overview"`
	Cast         []CastMember `json:"cast"`
	Crew         []CrewMember `json:"crew"`
	Position     int          `json:"position"`
	AddedAt      int64        `json:"added_at"`
	UserRating   *float64     `json:"user_rating,omitempty"`
}

// payloadCore is the subset read from rows whose optional fields do not decode.
type payloadCore struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Name         string    `json:"name"`
	PosterPath   string    `json:"poster_path"`
	MediaType    MediaType `json:"media_type"`
	ReleaseDate  string    `json:"release_date"`
	FirstAirDate string    `json:"first_air_date"`
	VoteAverage  float64   `json:"vote_average"`
	UserRating   *float64  `json:"user_rating"`
	AddedAt      int64     `json:"added_at"`
}

// NewPayload snapshots media for storage. added is recorded in epoch milliseconds.
func NewPayload(m Media, added time.Time) *Payload {
	genres := m.Genres
	if genres == nil {
		genres = []Genre{}
	}
	cast := m.Cast
	if cast == nil {
		cast = []CastMember{}
	}
	crew := m.Crew
	if crew == nil {
		crew = []CrewMember{}
	}
	return &Payload{
		ID:          m.ID,
		Title:       m.DisplayTitle(),
		PosterPath:  m.PosterPath,
		MediaType:   m.Type(),
		ReleaseDate: m.Date(),
		VoteAverage: m.VoteAverage,
		Genres:      genres,
		GenreIDs:    m.GenreIDs,
		Overview:    m.Overview,
		Cast:        cast,
		Crew:        crew,
		Position:    0,
		AddedAt:     added.UnixMilli(),
	}
}

// DecodePayload parses a stored payload, tolerating legacy rows whose list fields have other shapes.
func DecodePayload(value string) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(value), &p); err == nil {
		return &p, nil
	}

	var core payloadCore
	if err := json.Unmarshal([]byte(value), &core); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	title := core.Title
	if title == "" {
		title = core.Name
	}
	return &Payload{
		ID:           core.ID,
		Title:        title,
		PosterPath:   core.PosterPath,
		MediaType:    core.MediaType,
		ReleaseDate:  core.ReleaseDate,
		FirstAirDate: core.FirstAirDate,
		VoteAverage:  core.VoteAverage,
		UserRating:   core.UserRating,
		AddedAt:      core.AddedAt,
	}, nil
}

// Encode serializes the payload for storage.
func (p *Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(b), nil
}

// Type returns the stored media type, inferring tv from a first-air date when absent.
func (p *Payload) Type() MediaType {
	if p.MediaType.Valid() {
		return p.MediaType
	}
	if p.FirstAirDate != "" {
		return MediaTV
	}
	return MediaUnknown
}

// Year returns the display year.
func (p *Payload) Year() string {
	if p.ReleaseDate != "" {
		return ReleaseYear(p.ReleaseDate)
	}
	return ReleaseYear(p.FirstAirDate)
}

// ListEntry is the flattened view of a stored row.
type ListEntry struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	ImageURL   string    `json:"imageUrl"`
	Rating     float64   `json:"rating"`
	Year       string    `json:"year"`
	UserRating *float64  `json:"userRating,omitempty"`
	MediaType  MediaType `json:"mediaType,omitempty"`
	RowID      int64     `json:"dbId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MembershipKey returns the "<mediaType>_<mediaId>" key of the entry.
func (e ListEntry) MembershipKey() string {
	return MembershipKey(e.MediaType, e.ID)
}

// NewListEntry flattens a row into its view model.
func NewListEntry(item *SavedItem) (ListEntry, error) {
	p, err := item.Payload()
	if err != nil {
		return ListEntry{}, err
	}
	id, mt := item.Resolve()
	title := p.Title
	if title == "" {
		title = "Untitled"
	}
	return ListEntry{
		ID:         id,
		Title:      title,
		ImageURL:   PosterURL(p.PosterPath, "w500"),
		Rating:     p.VoteAverage,
		Year:       p.Year(),
		UserRating: p.UserRating,
		MediaType:  mt,
		RowID:      item.RowID,
		UpdatedAt:  item.UpdatedAt,
	}, nil
}

// ItemRef identifies an item to remove. MediaType and RowID are optional.
type ItemRef struct {
	MediaID   int64
	MediaType MediaType
	RowID     int64
}

// ListError is returned by every list operation that could not complete.
type ListError struct {
	Op      string
	List    ListKind
	MediaID int64
	Err     error
}

func (e *ListError) Error() string {
	if e.MediaID != 0 {
		return fmt.Sprintf("%s %s item %d: %v", e.Op, e.List.Label(), e.MediaID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.List.Label(), e.Err)
}

func (e *ListError) Unwrap() error {
	return e.Err
}

// ReconciledMedia is a catalog title annotated with the current user's list membership.
type ReconciledMedia struct {
	Media
	InWatchlist bool     `json:"inWatchlist"`
	Watched     bool     `json:"watched"`
	UserRating  *float64 `json:"userRating,omitempty"`
}

// ListExport is one list snapshot written by the exporters.
type ListExport struct {
	Owner      string      `json:"owner"`
	List       ListKind    `json:"list"`
	ExportedAt time.Time   `json:"exportedAt"`
	Entries    []ListEntry `json:"entries"`
}

// Title returns the heading used by exports.
func (e *ListExport) Title() string {
	if e.List == ToWatch {
		return "To-Watch"
	}
	return "Watched"
}
