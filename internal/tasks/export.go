package tasks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/vibewatch/internal/formatter"
	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// ExportOpts contains configuration for list exports.
type ExportOpts struct {
	Format     string            // Export format: json, csv, markdown, txt
	OutputDir  string            // Base output directory (default: vibewatch_export_{epoch})
	Lists      []models.ListKind // Lists to export (default: both)
	NumWorkers int               // Concurrent poster downloads (default: 5)
	RateLimit  float64           // Poster requests per second (default: 5)
	PosterSize string            // Poster CDN size (default: w342)
	HTTPClient *http.Client
	Clock      func() time.Time
}

// ListExportResult is the outcome of exporting one list.
type ListExportResult struct {
	List    models.ListKind `json:"list"`
	Entries int             `json:"entries"`
	Files   []string        `json:"files"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
}

// ExportResult summarizes an export run.
type ExportResult struct {
	Owner           string             `json:"owner"`
	Format          string             `json:"format"`
	OutputDirectory string             `json:"outputDirectory"`
	ManifestPath    string             `json:"-"`
	Lists           []ListExportResult `json:"lists"`
	PostersSaved    int                `json:"postersSaved"`
	PostersFailed   int                `json:"postersFailed"`
}

// posterJob is one poster to download into dir.
type posterJob struct {
	entry models.ListEntry
	dir   string
}

type posterResult struct {
	id   int64
	name string
	err  error
}

// ExportLists writes the owner's lists to opts.OutputDir and a manifest next to them.
//
// Markdown exports download posters with a rate limited worker pool; a failed poster is reported
// and the title is listed without an image.
func ExportLists(ctx context.Context, lists *repositories.ListRepository, owner string, prog chan<- ProgressUpdate, opts ExportOpts) (*ExportResult, error) {
	if owner == "" {
		return nil, shared.ErrNotAuthenticated
	}
	format, err := formatter.ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("vibewatch_export_%d", opts.Clock().Unix())
	}
	if len(opts.Lists) == 0 {
		opts.Lists = models.ListKinds
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 5
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if opts.PosterSize == "" {
		opts.PosterSize = "w342"
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &ExportResult{Owner: owner, Format: format, OutputDirectory: opts.OutputDir}
	total := len(opts.Lists)

	for i, kind := range opts.Lists {
		entries, err := lists.Query(ctx, owner, kind)
		res := ListExportResult{List: kind, Entries: len(entries), Files: []string{}}
		if err != nil {
			res.Error = err.Error()
			result.Lists = append(result.Lists, res)
			sendProgress(prog, exportFailedUpdate(i+1, total, kind, err))
			continue
		}
		sendProgress(prog, exportingListUpdate(i+1, total, kind, len(entries)))

		export := &models.ListExport{Owner: owner, List: kind, ExportedAt: opts.Clock(), Entries: entries}
		files, err := exportList(ctx, export, format, opts, result, prog)
		if err != nil {
			res.Error = err.Error()
			sendProgress(prog, exportFailedUpdate(i+1, total, kind, err))
		} else {
			res.Files = files
			res.Success = true
			sendProgress(prog, exportCompletedUpdate(i+1, total, kind, len(files)))
		}
		result.Lists = append(result.Lists, res)
	}

	manifestPath := filepath.Join(opts.OutputDir, "export_manifest.json")
	if err := formatter.WriteManifest(result, manifestPath); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	return result, nil
}

func exportList(ctx context.Context, export *models.ListExport, format string, opts ExportOpts, result *ExportResult, prog chan<- ProgressUpdate) ([]string, error) {
	base := filepath.Join(opts.OutputDir, formatter.Slug(export.Title()))

	switch format {
	case "csv":
		path, err := formatter.WriteCSVExport(export, base+".csv")
		if err != nil {
			return nil, fmt.Errorf("CSV export failed: %w", err)
		}
		return []string{path}, nil
	case "markdown":
		if err := os.MkdirAll(base, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		posters := downloadPosters(ctx, export.Entries, base, opts, result, prog)
		md, err := formatter.WriteMarkdownExport(export, base, posters)
		if err != nil {
			return nil, fmt.Errorf("markdown export failed: %w", err)
		}
		return md.Files, nil
	case "txt":
		path, err := formatter.WriteTextExport(export, base+".txt")
		if err != nil {
			return nil, fmt.Errorf("text export failed: %w", err)
		}
		return []string{path}, nil
	default:
		path, err := formatter.WriteJSONExport(export, base+".json")
		if err != nil {
			return nil, fmt.Errorf("JSON export failed: %w", err)
		}
		return []string{path}, nil
	}
}

// downloadPosters fetches the posters of entries into dir and returns the saved file names by media id.
func downloadPosters(ctx context.Context, entries []models.ListEntry, dir string, opts ExportOpts, result *ExportResult, prog chan<- ProgressUpdate) map[int64]string {
	var todo []models.ListEntry
	for _, e := range entries {
		if e.ImageURL != "" && e.ImageURL != models.PlaceholderImage {
			todo = append(todo, e)
		}
	}
	posters := make(map[int64]string, len(todo))
	if len(todo) == 0 {
		return posters
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan posterJob, len(todo))
	results := make(chan posterResult, len(todo))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go posterWorker(ctx, &wg, limiter, jobs, results, opts)
	}

	for _, e := range todo {
		jobs <- posterJob{entry: e, dir: dir}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	titles := make(map[int64]string, len(todo))
	for _, e := range todo {
		titles[e.ID] = e.Title
	}

	completed := 0
	for res := range results {
		completed++
		sendProgress(prog, posterUpdate(completed, len(todo), titles[res.id], res.err))
		if res.err != nil {
			result.PostersFailed++
			continue
		}
		result.PostersSaved++
		posters[res.id] = res.name
	}
	return posters
}

// posterWorker is a worker goroutine that downloads posters from the jobs channel.
func posterWorker(ctx context.Context, wg *sync.WaitGroup, limiter *rate.Limiter, jobs <-chan posterJob, results chan<- posterResult, opts ExportOpts) {
	defer wg.Done()

	for job := range jobs {
		res := posterResult{id: job.entry.ID}
		if err := limiter.Wait(ctx); err != nil {
			res.err = err
			results <- res
			continue
		}

		url := resizePoster(job.entry.ImageURL, opts.PosterSize)
		img, err := formatter.DownloadImage(ctx, opts.HTTPClient, url)
		if err != nil {
			res.err = err
			results <- res
			continue
		}

		name := formatter.PosterFileName(job.entry, img.Extension)
		if err := os.WriteFile(filepath.Join(job.dir, name), img.Data, 0644); err != nil {
			res.err = fmt.Errorf("failed to save poster: %w", err)
		} else {
			res.name = name
		}
		results <- res
	}
}

// resizePoster swaps the size segment of a catalog CDN URL. Other URLs are returned unchanged.
func resizePoster(url, size string) string {
	const stock = models.ImageBaseURL + "w500/"
	if rest, ok := strings.CutPrefix(url, stock); ok && rest != "" {
		return models.ImageBaseURL + size + "/" + rest
	}
	return url
}
