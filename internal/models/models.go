package models

import (
	"fmt"
	"time"

	"mediarelay/internal/platform"
)

// DownloadJob is created at admission time and owned by a single worker
// until it reaches a terminal outcome. It is never mutated after creation.
type DownloadJob struct {
	ID         string
	ChatID     int64
	UserID     int64
	URL        string
	Platform   platform.Platform
	EnqueuedAt time.Time
}

// FileInfo describes one file produced by the extraction tool.
type FileInfo struct {
	Path string
	Size int64
}

// ExtractKind classifies extraction failures.
type ExtractKind int

const (
	// ExtractToolError means the tool exited non-zero.
	ExtractToolError ExtractKind = iota
	// ExtractTimeout means the tool was killed after exceeding the wall-clock limit.
	ExtractTimeout
	// ExtractNoContent means the tool succeeded but produced no files.
	ExtractNoContent
)

func (k ExtractKind) String() string {
	switch k {
	case ExtractToolError:
		return "tool_error"
	case ExtractTimeout:
		return "timeout"
	case ExtractNoContent:
		return "no_content"
	default:
		return "unknown"
	}
}

// ExtractError is returned by the extractor for all expected failure modes.
// Stderr is already truncated to a bounded length before it is attached.
type ExtractError struct {
	Kind   ExtractKind
	Stderr string
	Err    error
}

func (e *ExtractError) Error() string {
	switch e.Kind {
	case ExtractTimeout:
		return "extraction timed out"
	case ExtractNoContent:
		return "extraction produced no files"
	default:
		if e.Stderr != "" {
			return fmt.Sprintf("extraction tool failed: %s", e.Stderr)
		}
		return "extraction tool failed"
	}
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}
