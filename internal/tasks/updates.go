package tasks

import (
	"fmt"

	"github.com/desertthunder/vibewatch/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ScanRows Phase = iota
	RewriteKeys
	CollapseDuplicates
	ExportList
	DownloadPosters
)

func (p Phase) String() string {
	switch p {
	case ScanRows:
		return "scan_rows"
	case RewriteKeys:
		return "rewrite_keys"
	case CollapseDuplicates:
		return "collapse_duplicates"
	case ExportList:
		return "export_list"
	case DownloadPosters:
		return "download_posters"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func scanRowsUpdate(step, total int, kind models.ListKind, rows int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ScanRows,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Scanning %s (%d rows)...", kind.Label(), rows),
	}
}

func rewriteKeyUpdate(step, total int, change KeyChange) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RewriteKeys,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s → %s", step, total, change.From, change.To),
		Data:    change,
	}
}

func collapseUpdate(step, total int, change KeyChange) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollapseDuplicates,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] dropping duplicate %s (row %d)", step, total, change.From, change.RowID),
		Data:    change,
	}
}

func exportingListUpdate(step, total int, kind models.ListKind, entries int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting %s (%d titles)...", step, total, kind.Label(), entries),
	}
}

func exportCompletedUpdate(step, total int, kind models.ListKind, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, kind.Label(), filesCount),
	}
}

func exportFailedUpdate(step, total int, kind models.ListKind, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportList,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, kind.Label(), err),
	}
}

func posterUpdate(step, total int, title string, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] poster: %s", step, total, title)
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ poster: %s: %v", step, total, title, err)
	}
	return ProgressUpdate{Phase: DownloadPosters, Step: step, Total: total, Message: msg}
}
