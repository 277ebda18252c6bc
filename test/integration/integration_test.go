//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mediarelay/internal/cache"
	"mediarelay/internal/circuitbreaker"
	"mediarelay/internal/config"
	"mediarelay/internal/delivery"
	"mediarelay/internal/dispatch"
	"mediarelay/internal/extractor"
	"mediarelay/internal/metrics"
	"mediarelay/internal/models"
	"mediarelay/internal/platform"
	"mediarelay/internal/transport"
)

// One shared metrics instance to avoid duplicate Prometheus registrations.
var testMetrics = metrics.New()

// sentRecord captures one outbound call.
type sentRecord struct {
	kind string // "text" or "file"
	body string // message text or file path
}

// capturingMessenger records every outbound operation and signals when a
// given number of calls have landed.
type capturingMessenger struct {
	mu   sync.Mutex
	sent []sentRecord
	done chan struct{}
	want int
}

func newCapturingMessenger(want int) *capturingMessenger {
	return &capturingMessenger{done: make(chan struct{}), want: want}
}

func (c *capturingMessenger) record(kind, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentRecord{kind: kind, body: body})
	if len(c.sent) == c.want {
		close(c.done)
	}
}

func (c *capturingMessenger) SendText(_ context.Context, _ int64, text string) error {
	c.record("text", text)
	return nil
}

func (c *capturingMessenger) SendFile(_ context.Context, _ int64, path string) error {
	c.record("file", path)
	return nil
}

func (c *capturingMessenger) SendMenu(_ context.Context, _ int64, text string, _ []transport.MenuOption) error {
	c.record("text", text)
	return nil
}

func (c *capturingMessenger) AnswerCallback(context.Context, string, string) error { return nil }

func (c *capturingMessenger) IsMember(context.Context, int64, int64) (bool, error) {
	return true, nil
}

func (c *capturingMessenger) records() []sentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentRecord, len(c.sent))
	copy(out, c.sent)
	return out
}

func writeStubTool(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newPipeline(t *testing.T, toolPath string, msgr transport.Messenger) (*dispatch.Dispatcher, string) {
	t.Helper()
	scratchBase := t.TempDir()
	cfg := &config.Config{
		ToolPath:           toolPath,
		TempDir:            scratchBase,
		ExtractTimeout:     10 * time.Second,
		ResolveTimeout:     10 * time.Second,
		MaxResolves:        2,
		MaxSendSize:        50 * 1024 * 1024,
		SendPause:          time.Millisecond,
		Workers:            2,
		BreakerThreshold:   100,
		BreakerTimeout:     time.Minute,
		BreakerMaxRequests: 1,
	}
	logger := zap.NewNop()
	breaker := circuitbreaker.New("integration-"+t.Name(), cfg, testMetrics)
	runner := extractor.NewRunner(logger, cfg, testMetrics, breaker, cache.Noop{})
	policy := delivery.NewPolicy(logger, msgr, runner, cfg.MaxSendSize, cfg.SendPause, testMetrics)
	d := dispatch.New(logger, testMetrics, cfg.Workers, policy.Run)
	d.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d, scratchBase
}

func job(url string, p platform.Platform) models.DownloadJob {
	return models.DownloadJob{
		ID:         uuid.NewString(),
		ChatID:     100,
		UserID:     7,
		URL:        url,
		Platform:   p,
		EnqueuedAt: time.Now(),
	}
}

// A small file flows through the whole pipeline: progress notice, one
// file send, scratch directory gone afterwards.
func TestPipeline_DeliversSmallFile(t *testing.T) {
	tool := writeStubTool(t, `
dir=$(dirname "$2")
printf 'clip bytes' > "$dir/clip.mp4"
`)
	// Progress notice + file send.
	msgr := newCapturingMessenger(2)
	d, scratchBase := newPipeline(t, tool, msgr)

	require.NoError(t, d.Submit(job("https://soundcloud.com/a/b", platform.SoundCloud)))

	select {
	case <-msgr.done:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish in time")
	}

	recs := msgr.records()
	require.Len(t, recs, 2)
	require.Equal(t, "text", recs[0].kind)
	require.Equal(t, "file", recs[1].kind)
	require.Equal(t, "clip.mp4", filepath.Base(recs[1].body))

	// Delivery closed the scratch dir.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(scratchBase)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

// A tool failure turns into direct-URL fallback when resolution works.
func TestPipeline_FallsBackToURLs(t *testing.T) {
	tool := writeStubTool(t, `
case "$1" in
--get-url)
	echo "https://cdn.example/v1"
	echo "https://cdn.example/v2"
	exit 0
	;;
esac
echo "ERROR: unsupported url" >&2
exit 1
`)
	// Progress notice + fallback intro + two URL messages.
	msgr := newCapturingMessenger(4)
	d, _ := newPipeline(t, tool, msgr)

	require.NoError(t, d.Submit(job("https://youtube.com/watch?v=x", platform.YouTube)))

	select {
	case <-msgr.done:
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not finish in time")
	}

	recs := msgr.records()
	require.Len(t, recs, 4)
	var urls []string
	for _, r := range recs {
		require.Equal(t, "text", r.kind)
		if strings.HasPrefix(r.body, "https://cdn.example/") {
			urls = append(urls, r.body)
		}
		// The fallback replaces the failure notice entirely.
		require.NotContains(t, r.body, "unsupported url")
	}
	require.Equal(t, []string{"https://cdn.example/v1", "https://cdn.example/v2"}, urls)
}

// Concurrent jobs are bounded by the worker pool and all complete.
func TestPipeline_ConcurrentJobsComplete(t *testing.T) {
	tool := writeStubTool(t, `
dir=$(dirname "$2")
sleep 0.05
printf 'x' > "$dir/out.mp4"
`)
	const jobs = 6
	// Each job: progress notice + file send.
	msgr := newCapturingMessenger(jobs * 2)
	d, _ := newPipeline(t, tool, msgr)

	for i := 0; i < jobs; i++ {
		require.NoError(t, d.Submit(job("https://www.instagram.com/p/abc/", platform.Instagram)))
	}

	select {
	case <-msgr.done:
	case <-time.After(15 * time.Second):
		t.Fatal("jobs did not all complete")
	}

	files := 0
	for _, r := range msgr.records() {
		if r.kind == "file" {
			files++
		}
	}
	require.Equal(t, jobs, files)
}
