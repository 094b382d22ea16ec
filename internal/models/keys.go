package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// KeyScheme selects the format of keys written for new rows.
type KeyScheme string

const (
	// SchemeMobile writes "<list>_<mediaId>", the format the mobile client reads and writes.
	SchemeMobile KeyScheme = "mobile"
	// SchemeCanonical writes "<list>:<mediaType>:<mediaId>".
	SchemeCanonical KeyScheme = "canonical"
)

// ParseKeyScheme maps a config value onto a [KeyScheme]; empty selects [SchemeMobile].
func ParseKeyScheme(s string) (KeyScheme, error) {
	switch KeyScheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeMobile:
		return SchemeMobile, nil
	case SchemeCanonical:
		return SchemeCanonical, nil
	default:
		return "", fmt.Errorf("unknown key scheme %q", s)
	}
}

// Encode returns the key written for (kind, mediaType, mediaID).
//
// The canonical scheme needs a media type; without one it writes the mobile form.
func (s KeyScheme) Encode(kind ListKind, mt MediaType, mediaID int64) string {
	id := strconv.FormatInt(mediaID, 10)
	if s == SchemeCanonical && mt.Valid() {
		return string(kind) + ":" + string(mt) + ":" + id
	}
	return string(kind) + "_" + id
}

// KeyShape names the format a stored key was written in.
type KeyShape int

const (
	ShapeListQualified KeyShape = iota // "<list>_<id>"
	ShapeTypeQualified                 // "<mediaType>_<id>"
	ShapeCanonical                     // "<list>:<mediaType>:<id>"
)

func (s KeyShape) String() string {
	switch s {
	case ShapeListQualified:
		return "list-qualified"
	case ShapeTypeQualified:
		return "type-qualified"
	case ShapeCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// KeyParts is a decoded item key. Kind or MediaType are empty when the shape omits them.
type KeyParts struct {
	Shape     KeyShape
	Kind      ListKind
	MediaType MediaType
	MediaID   int64
}

// DecodeKey recognizes keys written in any of the known shapes.
func DecodeKey(key string) (KeyParts, bool) {
	if strings.Count(key, ":") == 2 {
		fields := strings.Split(key, ":")
		kind, err := ParseListKind(fields[0])
		if err != nil {
			return KeyParts{}, false
		}
		mt, err := ParseMediaType(fields[1])
		if err != nil || !mt.Valid() {
			return KeyParts{}, false
		}
		id, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || id <= 0 {
			return KeyParts{}, false
		}
		return KeyParts{Shape: ShapeCanonical, Kind: kind, MediaType: mt, MediaID: id}, true
	}

	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return KeyParts{}, false
	}
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return KeyParts{}, false
	}

	prefix := key[:i]
	switch prefix {
	case string(MediaMovie), string(MediaTV):
		return KeyParts{Shape: ShapeTypeQualified, MediaType: MediaType(prefix), MediaID: id}, true
	}
	if kind, err := ParseListKind(prefix); err == nil {
		return KeyParts{Shape: ShapeListQualified, Kind: kind, MediaID: id}, true
	}
	return KeyParts{}, false
}

// KeyMatch finds the rows of one list that refer to a media item, whatever key shape they were written with.
//
// A row matches when its key is one of Keys, or when its payload's numeric id equals MediaID.
// When MediaType is set, rows that resolve to a different media type never match.
type KeyMatch struct {
	Kind      ListKind
	MediaID   int64
	MediaType MediaType
	Keys      []string
}

// MatchFor builds the matcher for (kind, mediaID, mediaType). mediaType may be [MediaUnknown].
func MatchFor(kind ListKind, mediaID int64, mt MediaType) KeyMatch {
	id := strconv.FormatInt(mediaID, 10)
	types := []MediaType{mt}
	if !mt.Valid() {
		types = []MediaType{MediaMovie, MediaTV}
	}

	var keys []string
	for _, alias := range kind.aliases() {
		keys = append(keys, alias+"_"+id)
	}
	for _, t := range types {
		keys = append(keys, string(t)+"_"+id)
	}
	for _, t := range types {
		keys = append(keys, string(kind)+":"+string(t)+":"+id)
	}

	return KeyMatch{Kind: kind, MediaID: mediaID, MediaType: mt, Keys: keys}
}

// PayloadPatterns returns LIKE patterns that narrow candidates by the serialized payload id.
//
// They over-match (id 12 also matches 112); [KeyMatch.Matches] makes the final decision.
func (m KeyMatch) PayloadPatterns() []string {
	id := strconv.FormatInt(m.MediaID, 10)
	return []string{`%"id":` + id + `%`, `%"id": ` + id + `%`}
}

// Matches reports whether item refers to the matched media item.
func (m KeyMatch) Matches(item *SavedItem) bool {
	if item == nil || item.Kind != m.Kind {
		return false
	}

	if m.MediaType.Valid() {
		if _, mt := item.Resolve(); mt.Valid() && mt != m.MediaType {
			return false
		}
	}

	for _, k := range m.Keys {
		if item.ItemKey == k {
			return true
		}
	}
	return payloadHasID(item.Value, m.MediaID)
}

var payloadIDPattern = regexp.MustCompile(`"id"\s*:\s*(\d+)`)

// payloadHasID compares the payload's top level id. Payloads that do not decode are scanned for
// an "id" member with exactly that number, never a longer one.
func payloadHasID(value string, id int64) bool {
	if p, err := DecodePayload(value); err == nil {
		return p.ID == id
	}
	want := strconv.FormatInt(id, 10)
	for _, sub := range payloadIDPattern.FindAllStringSubmatch(value, -1) {
		if sub[1] == want {
			return true
		}
	}
	return false
}
