// package formatter provides functions to export list data to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/mozillazg/go-unidecode"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// Formats lists the supported export formats.
var Formats = []string{"json", "csv", "markdown", "txt"}

// ParseFormat normalizes a format name, accepting "md" and "text" as aliases.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return "json", nil
	case "csv":
		return "csv", nil
	case "markdown", "md":
		return "markdown", nil
	case "txt", "text":
		return "txt", nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidFlag, s, strings.Join(Formats, ", "))
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug transliterates s to lowercase ASCII words joined by dashes.
func Slug(s string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(unidecode.Unidecode(s)), "-"), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

func formatRating(r *float64) string {
	if r == nil {
		return ""
	}
	return strconv.FormatFloat(*r, 'f', -1, 64)
}

// ExportToCSV converts a ListExport to CSV format with columns: ID, Type, Title, Year, Rating, UserRating, UpdatedAt
func ExportToCSV(export *models.ListExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Type", "Title", "Year", "Rating", "UserRating", "UpdatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range export.Entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			string(e.MediaType),
			e.Title,
			e.Year,
			strconv.FormatFloat(e.Rating, 'f', 1, 64),
			formatRating(e.UserRating),
			e.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a ListExport to Markdown. posters maps media ids to poster file names
// relative to the document; titles without one are listed without an image.
func ExportToMarkdown(export *models.ListExport, posters map[int64]string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Title())
	fmt.Fprintf(&buf, "**Titles**: %d\n", len(export.Entries))
	fmt.Fprintf(&buf, "**Exported**: %s\n\n", export.ExportedAt.UTC().Format(time.DateOnly))

	for i, e := range export.Entries {
		fmt.Fprintf(&buf, "## %d. %s (%s)\n\n", i+1, e.Title, e.Year)
		if name := posters[e.ID]; name != "" {
			fmt.Fprintf(&buf, "![%s](%s)\n\n", e.Title, name)
		}
		kind := "Movie"
		if e.MediaType == models.MediaTV {
			kind = "TV"
		}
		fmt.Fprintf(&buf, "- **Type**: %s\n", kind)
		fmt.Fprintf(&buf, "- **Rating**: %.1f\n", e.Rating)
		if e.UserRating != nil {
			fmt.Fprintf(&buf, "- **My rating**: %s/10\n", formatRating(e.UserRating))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a ListExport to plain text format
func ExportToText(export *models.ListExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "List: %s\n", export.Title())
	fmt.Fprintf(&buf, "Titles: %d\n\n", len(export.Entries))

	for i, e := range export.Entries {
		line := fmt.Sprintf("%d. %s (%s)", i+1, e.Title, e.Year)
		if e.UserRating != nil {
			line += fmt.Sprintf(" ★ %s", formatRating(e.UserRating))
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// Image is a downloaded poster with its detected type.
type Image struct {
	Data      []byte
	MIME      string
	Extension string
}

// DownloadImage downloads an image from the given URL and detects its type from the content.
//
// Responses that are not images (for example an HTML error page) are rejected.
func DownloadImage(ctx context.Context, client *http.Client, url string) (*Image, error) {
	if url == "" || url == models.PlaceholderImage {
		return nil, fmt.Errorf("%w: no image URL", shared.ErrInvalidArgument)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("failed to download image: unexpected content type %s", mt.String())
	}
	return &Image{Data: data, MIME: mt.String(), Extension: mt.Extension()}, nil
}

// PosterFileName returns the file name for a poster of entry with the detected extension.
func PosterFileName(e models.ListEntry, ext string) string {
	return fmt.Sprintf("%s-%d%s", Slug(e.Title), e.ID, ext)
}

// WriteJSONExport writes the export as indented JSON.
func WriteJSONExport(export *models.ListExport, path string) (string, error) {
	data, err := shared.MarshalJSON(export, true)
	if err != nil {
		return "", fmt.Errorf("failed to generate JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return path, nil
}

// WriteCSVExport exports a list to CSV format at path.
func WriteCSVExport(export *models.ListExport, path string) (string, error) {
	csvData, err := ExportToCSV(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, csvData, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}
	return path, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
}

// WriteMarkdownExport writes {dir}/README.md. posters maps media ids to file names already saved in dir.
func WriteMarkdownExport(export *models.ListExport, dir string, posters map[int64]string) (*MarkdownExportResult, error) {
	if dir == "" {
		dir = Slug(export.Title())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: dir, Files: []string{}}
	for _, name := range posters {
		result.Files = append(result.Files, filepath.Join(dir, name))
	}

	mdData, err := ExportToMarkdown(export, posters)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a list to plain text format at path.
func WriteTextExport(export *models.ListExport, path string) (string, error) {
	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}
	return path, nil
}

// WriteManifest writes v as indented JSON to path.
func WriteManifest(v any, path string) error {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return fmt.Errorf("failed to generate manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
