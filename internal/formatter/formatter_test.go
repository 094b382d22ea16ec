package formatter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
	th "github.com/desertthunder/vibewatch/internal/testing"
)

func rating(r float64) *float64 { return &r }

func testExport() *models.ListExport {
	return &models.ListExport{
		Owner:      "u1",
		List:       models.Watched,
		ExportedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Entries: []models.ListEntry{
			{ID: 27205, Title: "Inception", Year: "2010", Rating: 8.4, UserRating: rating(9.5), MediaType: models.MediaMovie, RowID: 1},
			{ID: 1399, Title: "Game of Thrones", Year: "2011", Rating: 8.5, MediaType: models.MediaTV, RowID: 2},
		},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestExporters(t *testing.T) {
	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(testExport())
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "ID,Type,Title,Year,Rating,UserRating,UpdatedAt\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "27205,movie,Inception,2010,8.4,9.5,") {
			t.Errorf("CSV missing rated movie row, got: %s", output)
		}
		if !strings.Contains(output, "1399,tv,Game of Thrones,2011,8.5,,") {
			t.Errorf("CSV missing unrated show row, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(testExport(), map[int64]string{27205: "inception-27205.png"})
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Watched",
			"**Titles**: 2",
			"**Exported**: 2024-03-01",
			"## 1. Inception (2010)",
			"![Inception](inception-27205.png)",
			"- **My rating**: 9.5/10",
			"- **Type**: TV",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q", want)
			}
		}
		if strings.Count(output, "![") != 1 {
			t.Errorf("expected exactly one poster, got: %s", output)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(testExport())
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "List: Watched") {
			t.Errorf("Text missing list name")
		}
		if !strings.Contains(output, "1. Inception (2010) ★ 9.5") {
			t.Errorf("Text missing rated entry, got: %s", output)
		}
		if !strings.Contains(output, "2. Game of Thrones (2011)\n") {
			t.Errorf("Text missing unrated entry, got: %s", output)
		}
	})
}

func TestParseFormat(t *testing.T) {
	cases := map[string]string{"": "json", "JSON": "json", "md": "markdown", "text": "txt", "csv": "csv"}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected invalid flag, got %v", err)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Amélie", "amelie"},
		{"Spider-Man: Into the Spider-Verse", "spider-man-into-the-spider-verse"},
		{"  ", "untitled"},
		{"Crouching Tiger, Hidden Dragon!", "crouching-tiger-hidden-dragon"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDownloadImage(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyURL", func(t *testing.T) {
		if _, err := DownloadImage(ctx, nil, ""); err == nil {
			t.Error("DownloadImage with empty URL should return error")
		}
		if _, err := DownloadImage(ctx, nil, models.PlaceholderImage); err == nil {
			t.Error("DownloadImage with the placeholder should return error")
		}
	})

	t.Run("DetectsType", func(t *testing.T) {
		body := pngBytes(t)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(body)
		}))
		defer srv.Close()

		img, err := DownloadImage(ctx, srv.Client(), srv.URL+"/poster")
		if err != nil {
			t.Fatalf("DownloadImage failed: %v", err)
		}
		if img.MIME != "image/png" || img.Extension != ".png" {
			t.Errorf("expected png detection, got %s %s", img.MIME, img.Extension)
		}
	})

	t.Run("RejectsNonImages", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body>not found</body></html>"))
		}))
		defer srv.Close()

		if _, err := DownloadImage(ctx, srv.Client(), srv.URL); err == nil {
			t.Error("expected HTML to be rejected")
		}
	})

	t.Run("ReadFailure", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(&http.Response{StatusCode: http.StatusOK, Body: &th.FCloser{}}, nil)}
		if _, err := DownloadImage(ctx, client, "http://posters.test/a.jpg"); err == nil {
			t.Error("expected read failure")
		}
	})
}

func TestWriters(t *testing.T) {
	export := testExport()

	t.Run("WriteCSVExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "watched.csv")
		got, err := WriteCSVExport(export, path)
		if err != nil {
			t.Fatalf("WriteCSVExport failed: %v", err)
		}
		th.AssertFileExists(t, got)
		if !strings.Contains(th.MustReadFile(t, got), "Inception") {
			t.Error("CSV file missing entry")
		}
	})

	t.Run("WriteJSONExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "watched.json")
		if _, err := WriteJSONExport(export, path); err != nil {
			t.Fatalf("WriteJSONExport failed: %v", err)
		}
		content := th.MustReadFile(t, path)
		if !strings.Contains(content, `"list": "watched"`) || !strings.Contains(content, `"userRating": 9.5`) {
			t.Errorf("JSON missing fields: %s", content)
		}
	})

	t.Run("WriteMarkdownExport", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "watched")
		result, err := WriteMarkdownExport(export, dir, nil)
		if err != nil {
			t.Fatalf("WriteMarkdownExport failed: %v", err)
		}
		th.AssertDirExists(t, result.Directory)
		th.AssertFileExists(t, filepath.Join(dir, "README.md"))
		if len(result.Files) != 1 {
			t.Errorf("expected only README, got %v", result.Files)
		}
	})

	t.Run("WriteTextExport", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "watched.txt")
		if _, err := WriteTextExport(export, path); err != nil {
			t.Fatalf("WriteTextExport failed: %v", err)
		}
		th.AssertFileExists(t, path)
	})

	t.Run("WriteToMissingDirectory", func(t *testing.T) {
		if _, err := WriteTextExport(export, filepath.Join(t.TempDir(), "missing", "x.txt")); err == nil {
			t.Error("expected write into a missing directory to fail")
		}
	})
}
