// Package extractor runs the external extraction tool (yt-dlp compatible)
// to either download media into a job-owned scratch directory or resolve
// direct playable URLs without downloading bytes.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mediarelay/internal/cache"
	"mediarelay/internal/circuitbreaker"
	"mediarelay/internal/config"
	"mediarelay/internal/metrics"
	"mediarelay/internal/models"
)

// stderrCap bounds diagnostic text surfaced to users.
const stderrCap = 1000

// outputTemplate names downloaded files by media id and extension.
const outputTemplate = "%(id)s.%(ext)s"

// Runner invokes the extraction tool. All invocations go through the
// circuit breaker; an open breaker fails fast without spawning a process.
type Runner struct {
	logger         *zap.Logger
	fs             afero.Fs
	toolPath       string
	tempDir        string
	fetchTimeout   time.Duration
	resolveTimeout time.Duration
	breaker        *circuitbreaker.Breaker
	cache          cache.ResolvedURLs
	resolveSem     *semaphore.Weighted
	metrics        *metrics.Metrics
}

// NewRunner creates a runner from configuration.
func NewRunner(logger *zap.Logger, cfg *config.Config, m *metrics.Metrics, b *circuitbreaker.Breaker, c cache.ResolvedURLs) *Runner {
	return &Runner{
		logger:         logger,
		fs:             afero.NewOsFs(),
		toolPath:       cfg.ToolPath,
		tempDir:        cfg.TempDir,
		fetchTimeout:   cfg.ExtractTimeout,
		resolveTimeout: cfg.ResolveTimeout,
		breaker:        b,
		cache:          c,
		resolveSem:     semaphore.NewWeighted(cfg.MaxResolves),
		metrics:        m,
	}
}

// Result holds the files produced by one Fetch. The scratch directory
// stays alive until Close, so delivery can read the files; Close removes
// the directory and everything in it.
type Result struct {
	Files []models.FileInfo

	fs  afero.Fs
	dir string
}

// Close removes the scratch directory. Safe to call more than once.
func (r *Result) Close() error {
	if r.dir == "" {
		return nil
	}
	dir := r.dir
	r.dir = ""
	return r.fs.RemoveAll(dir)
}

// Fetch downloads the media behind url into a fresh scratch directory and
// returns the produced files ordered by modification time. On every error
// path the directory is removed before returning; on success the caller
// owns it via Result.Close.
func (r *Runner) Fetch(ctx context.Context, url string) (*Result, error) {
	dir, err := afero.TempDir(r.fs, r.tempDir, "mediarelay-")
	if err != nil {
		return nil, &models.ExtractError{Kind: models.ExtractToolError, Err: err}
	}

	start := time.Now()
	_, runErr := r.run(ctx, r.fetchTimeout, "-o", filepath.Join(dir, outputTemplate), url)
	r.metrics.ExtractDurationHist.Observe(time.Since(start).Seconds())

	if runErr != nil {
		r.fs.RemoveAll(dir)
		r.countExtract(runErr)
		return nil, runErr
	}

	files, err := r.listProduced(dir)
	if err != nil {
		r.fs.RemoveAll(dir)
		ee := &models.ExtractError{Kind: models.ExtractToolError, Err: err}
		r.countExtract(ee)
		return nil, ee
	}
	if len(files) == 0 {
		r.fs.RemoveAll(dir)
		ee := &models.ExtractError{Kind: models.ExtractNoContent}
		r.countExtract(ee)
		return nil, ee
	}

	r.metrics.ExtractTotal.WithLabelValues("success").Inc()
	return &Result{Files: files, fs: r.fs, dir: dir}, nil
}

// ResolveDirectURLs asks the tool for direct playable URLs without
// downloading. Used only as the oversize/failure fallback. Results are
// cached briefly because direct URLs expire quickly.
func (r *Runner) ResolveDirectURLs(ctx context.Context, url string) ([]string, error) {
	if urls, ok := r.cache.Get(ctx, url); ok {
		return urls, nil
	}

	// The tool is expensive even in resolve mode; bound concurrent runs.
	if err := r.resolveSem.Acquire(ctx, 1); err != nil {
		return nil, &models.ExtractError{Kind: models.ExtractToolError, Err: err}
	}
	defer r.resolveSem.Release(1)

	stdout, err := r.run(ctx, r.resolveTimeout, "--get-url", url)
	if err != nil {
		r.metrics.ResolveTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	var urls []string
	for _, line := range strings.Split(stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}

	r.metrics.ResolveTotal.WithLabelValues("success").Inc()
	r.cache.Set(ctx, url, urls)
	return urls, nil
}

// run executes the tool through the circuit breaker and maps all failure
// modes onto the ExtractError taxonomy.
func (r *Runner) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.breaker.Execute(func() (interface{}, error) {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(cctx, r.toolPath, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if cctx.Err() == context.DeadlineExceeded {
				return "", &models.ExtractError{Kind: models.ExtractTimeout, Err: err}
			}
			return "", &models.ExtractError{
				Kind:   models.ExtractToolError,
				Stderr: truncate(strings.TrimSpace(stderr.String()), stderrCap),
				Err:    err,
			}
		}
		return stdout.String(), nil
	})
	if err != nil {
		var ee *models.ExtractError
		if errors.As(err, &ee) {
			return "", ee
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.logger.Warn("extractor breaker open, failing fast")
			return "", &models.ExtractError{Kind: models.ExtractToolError, Stderr: "extractor temporarily unavailable", Err: err}
		}
		return "", &models.ExtractError{Kind: models.ExtractToolError, Err: err}
	}
	return out.(string), nil
}

// listProduced returns the non-directory entries of dir ordered by mod
// time, the order the tool wrote them in.
func (r *Runner) listProduced(dir string) ([]models.FileInfo, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime().Before(entries[j].ModTime())
	})

	var files []models.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, models.FileInfo{
			Path: filepath.Join(dir, e.Name()),
			Size: e.Size(),
		})
	}
	return files, nil
}

func (r *Runner) countExtract(err error) {
	var ee *models.ExtractError
	if errors.As(err, &ee) {
		r.metrics.ExtractTotal.WithLabelValues(ee.Kind.String()).Inc()
		return
	}
	r.metrics.ExtractTotal.WithLabelValues("tool_error").Inc()
}

// truncate caps s at n bytes without splitting a multi-byte rune; the
// result must stay valid UTF-8 for the transport.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
