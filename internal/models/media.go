package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// ImageBaseURL is the catalog's image CDN prefix.
	ImageBaseURL = "https://image.tmdb.org/t/p/"
	// PlaceholderImage is served when a title has no poster.
	PlaceholderImage = "/placeholder.jpg"
	// UnknownYear is displayed when a release date is missing or malformed.
	UnknownYear = "Unknown"
)

// MediaType tags a catalog title.
type MediaType string

const (
	MediaUnknown MediaType = ""
	MediaMovie   MediaType = "movie"
	MediaTV      MediaType = "tv"
	MediaPerson  MediaType = "person"
)

// ParseMediaType accepts "movie", "tv" (or "show") and the empty string.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return MediaUnknown, nil
	case "movie", "movies", "film":
		return MediaMovie, nil
	case "tv", "show", "series":
		return MediaTV, nil
	default:
		return MediaUnknown, fmt.Errorf("unknown media type %q", s)
	}
}

// Valid reports whether t names a listable title type.
func (t MediaType) Valid() bool {
	return t == MediaMovie || t == MediaTV
}

// Genre is a catalog genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// CastMember is one billed performer.
type CastMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character,omitempty"`
	ProfilePath string `json:"profile_path,omitempty"`
	Order       int    `json:"order,omitempty"`
}

// CrewMember is one credited crew member.
type CrewMember struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Job         string `json:"job,omitempty"`
	Department  string `json:"department,omitempty"`
	ProfilePath string `json:"profile_path,omitempty"`
}

// Media is a movie or TV title as returned by catalog list endpoints.
type Media struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title,omitempty"`
	Name         string       `json:"name,omitempty"`
	PosterPath   string       `json:"poster_path,omitempty"`
	BackdropPath string       `json:"backdrop_path,omitempty"`
	Overview     string       `json:"overview,omitempty"`
	ReleaseDate  string       `json:"release_date,omitempty"`
	FirstAirDate string       `json:"first_air_date,omitempty"`
	VoteAverage  float64      `json:"vote_average"`
	Popularity   float64      `json:"popularity,omitempty"`
	MediaType    MediaType    `json:"media_type,omitempty"`
	GenreIDs     []int        `json:"genre_ids,omitempty"`
	Genres       []Genre      `json:"genres,omitempty"`
	Cast         []CastMember `json:"cast,omitempty"`
	Crew         []CrewMember `json:"crew,omitempty"`
}

// DisplayTitle returns the title, falling back to the TV name and then "Untitled".
func (m Media) DisplayTitle() string {
	if m.Title != "" {
		return m.Title
	}
	if m.Name != "" {
		return m.Name
	}
	return "Untitled"
}

// Type returns the declared media type, inferring tv from a first-air date and movie otherwise.
func (m Media) Type() MediaType {
	if m.MediaType.Valid() {
		return m.MediaType
	}
	if m.FirstAirDate != "" {
		return MediaTV
	}
	return MediaMovie
}

// Date returns the release date, or the first-air date for TV.
func (m Media) Date() string {
	if m.ReleaseDate != "" {
		return m.ReleaseDate
	}
	return m.FirstAirDate
}

// Year returns the display year of the title.
func (m Media) Year() string {
	return ReleaseYear(m.Date())
}

// ImageURL returns the w500 poster URL or the placeholder.
func (m Media) ImageURL() string {
	return PosterURL(m.PosterPath, "w500")
}

// MembershipKey returns the "<mediaType>_<mediaId>" key used for list reconciliation.
func (m Media) MembershipKey() string {
	return MembershipKey(m.Type(), m.ID)
}

// MembershipKey formats a "<mediaType>_<mediaId>" reconciliation key.
func MembershipKey(t MediaType, id int64) string {
	return string(t) + "_" + strconv.FormatInt(id, 10)
}

// PosterURL builds a CDN URL for path at size, or returns [PlaceholderImage] when path is empty.
func PosterURL(path, size string) string {
	if path == "" {
		return PlaceholderImage
	}
	if size == "" {
		size = "w500"
	}
	return ImageBaseURL + size + path
}

// ReleaseYear extracts the four digit year from a catalog date, or [UnknownYear].
func ReleaseYear(date string) string {
	date = strings.TrimSpace(date)
	if t, err := time.Parse(time.DateOnly, date); err == nil {
		return strconv.Itoa(t.Year())
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil && y > 1800 {
			return date[:4]
		}
	}
	return UnknownYear
}

// Person is a popular person from the catalog.
type Person struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	ProfilePath        string  `json:"profile_path,omitempty"`
	Popularity         float64 `json:"popularity"`
	KnownForDepartment string  `json:"known_for_department,omitempty"`
	KnownFor           []Media `json:"known_for,omitempty"`
}

// Page is one page of a paginated catalog response.
type Page[T any] struct {
	Page         int `json:"page"`
	Results      []T `json:"results"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
}

// Credits lists the cast and crew of a title.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Image is one poster, backdrop or logo.
type Image struct {
	FilePath    string  `json:"file_path"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	VoteAverage float64 `json:"vote_average"`
}

// Images groups the artwork of a title.
type Images struct {
	Backdrops []Image `json:"backdrops"`
	Posters   []Image `json:"posters"`
	Logos     []Image `json:"logos,omitempty"`
}

// Video is a trailer, teaser or clip hosted on a video site.
type Video struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// Keyword is a catalog keyword.
type Keyword struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Keywords holds movie ("keywords") and TV ("results") keyword lists.
type Keywords struct {
	Keywords []Keyword `json:"keywords,omitempty"`
	Results  []Keyword `json:"results,omitempty"`
}

// All returns the keywords regardless of which field the endpoint used.
func (k Keywords) All() []Keyword {
	if len(k.Keywords) > 0 {
		return k.Keywords
	}
	return k.Results
}

// ExternalIDs maps a title onto other databases.
type ExternalIDs struct {
	IMDbID      string `json:"imdb_id,omitempty"`
	TVDBID      int64  `json:"tvdb_id,omitempty"`
	WikidataID  string `json:"wikidata_id,omitempty"`
	FacebookID  string `json:"facebook_id,omitempty"`
	InstagramID string `json:"instagram_id,omitempty"`
	TwitterID   string `json:"twitter_id,omitempty"`
}

// CollectionRef points at the collection a movie belongs to.
type CollectionRef struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	PosterPath string `json:"poster_path,omitempty"`
}

// Collection is a franchise grouping of movies.
type Collection struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Overview string  `json:"overview,omitempty"`
	Parts    []Media `json:"parts"`
}

// Details is a title with its appended sub-resources.
type Details struct {
	Media
	Tagline             string         `json:"tagline,omitempty"`
	Status              string         `json:"status,omitempty"`
	Runtime             int            `json:"runtime,omitempty"`
	EpisodeRunTime      []int          `json:"episode_run_time,omitempty"`
	NumberOfSeasons     int            `json:"number_of_seasons,omitempty"`
	NumberOfEpisodes    int            `json:"number_of_episodes,omitempty"`
	Budget              int64          `json:"budget,omitempty"`
	Revenue             int64          `json:"revenue,omitempty"`
	BelongsToCollection *CollectionRef `json:"belongs_to_collection,omitempty"`
	Credits             Credits        `json:"credits"`
	Images              Images         `json:"images"`
	Videos              Page[Video]    `json:"videos"`
	Keywords            Keywords       `json:"keywords"`
	ExternalIDs         ExternalIDs    `json:"external_ids"`
	Recommendations     Page[Media]    `json:"recommendations"`
	Similar             Page[Media]    `json:"similar"`
}

// RuntimeMinutes returns the movie runtime or the first episode runtime.
func (d Details) RuntimeMinutes() int {
	if d.Runtime > 0 {
		return d.Runtime
	}
	if len(d.EpisodeRunTime) > 0 {
		return d.EpisodeRunTime[0]
	}
	return 0
}

// Trailers returns the YouTube trailers and teasers, official ones first.
func (d Details) Trailers() []Video {
	var official, other []Video
	for _, v := range d.Videos.Results {
		if v.Site != "YouTube" || (v.Type != "Trailer" && v.Type != "Teaser") {
			continue
		}
		if v.Official {
			official = append(official, v)
		} else {
			other = append(other, v)
		}
	}
	return append(official, other...)
}
