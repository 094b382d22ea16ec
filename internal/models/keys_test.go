package models

import "testing"

func TestKeyScheme(t *testing.T) {
	t.Run("Encode", func(t *testing.T) {
		tc := []struct {
			name   string
			scheme KeyScheme
			kind   ListKind
			mt     MediaType
			want   string
		}{
			{"mobile watchlist", SchemeMobile, ToWatch, MediaMovie, "watchlist_550"},
			{"mobile watched", SchemeMobile, Watched, MediaTV, "watched_550"},
			{"canonical", SchemeCanonical, ToWatch, MediaTV, "watchlist:tv:550"},
			{"canonical without type", SchemeCanonical, Watched, MediaUnknown, "watched_550"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.scheme.Encode(tt.kind, tt.mt, 550); got != tt.want {
					t.Errorf("Encode() = %s, want %s", got, tt.want)
				}
			})
		}
	})

	t.Run("ParseKeyScheme", func(t *testing.T) {
		if s, err := ParseKeyScheme(""); err != nil || s != SchemeMobile {
			t.Errorf("empty scheme should default to mobile, got %v, %v", s, err)
		}
		if s, err := ParseKeyScheme("Canonical"); err != nil || s != SchemeCanonical {
			t.Errorf("expected canonical, got %v, %v", s, err)
		}
		if _, err := ParseKeyScheme("uuid"); err == nil {
			t.Error("expected error for unknown scheme")
		}
	})
}

func TestDecodeKey(t *testing.T) {
	tc := []struct {
		key  string
		ok   bool
		want KeyParts
	}{
		{"watchlist_550", true, KeyParts{Shape: ShapeListQualified, Kind: ToWatch, MediaID: 550}},
		{"to-watch_550", true, KeyParts{Shape: ShapeListQualified, Kind: ToWatch, MediaID: 550}},
		{"watched_27205", true, KeyParts{Shape: ShapeListQualified, Kind: Watched, MediaID: 27205}},
		{"movie_550", true, KeyParts{Shape: ShapeTypeQualified, MediaType: MediaMovie, MediaID: 550}},
		{"tv_1399", true, KeyParts{Shape: ShapeTypeQualified, MediaType: MediaTV, MediaID: 1399}},
		{"watchlist:tv:1399", true, KeyParts{Shape: ShapeCanonical, Kind: ToWatch, MediaType: MediaTV, MediaID: 1399}},
		{"watchlist_", false, KeyParts{}},
		{"person_12", false, KeyParts{}},
		{"movie_abc", false, KeyParts{}},
		{"watchlist:person:1", false, KeyParts{}},
		{"", false, KeyParts{}},
	}

	for _, tt := range tc {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := DecodeKey(tt.key)
			if ok != tt.ok {
				t.Fatalf("DecodeKey(%q) ok = %v, want %v", tt.key, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("DecodeKey(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}

func TestKeyMatch(t *testing.T) {
	row := func(kind ListKind, key, value string) *SavedItem {
		return &SavedItem{RowID: 1, OwnerID: "u1", Kind: kind, ItemKey: key, Value: value}
	}

	t.Run("matches every key shape", func(t *testing.T) {
		m := MatchFor(ToWatch, 550, MediaUnknown)
		for _, key := range []string{"watchlist_550", "to-watch_550", "movie_550", "tv_550", "watchlist:movie:550"} {
			if !m.Matches(row(ToWatch, key, `{}`)) {
				t.Errorf("expected %s to match", key)
			}
		}
	})

	t.Run("matches on payload id", func(t *testing.T) {
		m := MatchFor(ToWatch, 550, MediaUnknown)
		if !m.Matches(row(ToWatch, "legacy-key", `{"id":550,"title":"Fight Club"}`)) {
			t.Error("expected payload id match")
		}
	})

	t.Run("does not over-match longer ids", func(t *testing.T) {
		m := MatchFor(ToWatch, 12, MediaUnknown)
		if m.Matches(row(ToWatch, "legacy-key", `{"id":112,"title":"Other"}`)) {
			t.Error("id 12 must not match payload id 112")
		}
		if m.Matches(row(ToWatch, "legacy-key", `{"id":112,"genres":"broken`)) {
			t.Error("id 12 must not match 112 in an undecodable payload")
		}
		if !m.Matches(row(ToWatch, "legacy-key", `{"id":12,"genres":"broken`)) {
			t.Error("id 12 should match in an undecodable payload")
		}
	})

	t.Run("respects list kind", func(t *testing.T) {
		m := MatchFor(ToWatch, 550, MediaMovie)
		if m.Matches(row(Watched, "watched_550", `{"id":550}`)) {
			t.Error("watched rows must not match a to-watch matcher")
		}
	})

	t.Run("respects media type when given", func(t *testing.T) {
		m := MatchFor(ToWatch, 550, MediaMovie)
		if m.Matches(row(ToWatch, "watchlist_550", `{"id":550,"media_type":"tv"}`)) {
			t.Error("tv row must not match a movie matcher")
		}
		if !m.Matches(row(ToWatch, "watchlist_550", `{"id":550}`)) {
			t.Error("untyped row should match")
		}
	})

	t.Run("PayloadPatterns", func(t *testing.T) {
		got := MatchFor(Watched, 7, MediaTV).PayloadPatterns()
		if len(got) != 2 || got[0] != `%"id":7%` {
			t.Errorf("unexpected patterns %v", got)
		}
	})
}
