// Package delivery turns an extraction outcome into outbound messages:
// direct file transmission for small files, direct-URL fallback for
// oversized files or failed extractions, and failure notices otherwise.
// Every step is best-effort per item; one file's failure never aborts the
// rest of the batch.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediarelay/internal/extractor"
	"mediarelay/internal/metrics"
	"mediarelay/internal/models"
	"mediarelay/internal/transport"
)

// Executor is the slice of the extractor the policy needs.
type Executor interface {
	Fetch(ctx context.Context, url string) (*extractor.Result, error)
	ResolveDirectURLs(ctx context.Context, url string) ([]string, error)
}

// Policy executes one job end to end and decides, per produced file,
// between direct transmission and the direct-URL fallback.
type Policy struct {
	logger      *zap.Logger
	msgr        transport.Messenger
	exec        Executor
	maxSendSize int64
	sendPause   time.Duration
	metrics     *metrics.Metrics
}

func NewPolicy(logger *zap.Logger, msgr transport.Messenger, exec Executor, maxSendSize int64, sendPause time.Duration, m *metrics.Metrics) *Policy {
	return &Policy{
		logger:      logger,
		msgr:        msgr,
		exec:        exec,
		maxSendSize: maxSendSize,
		sendPause:   sendPause,
		metrics:     m,
	}
}

// Run takes a job from the dispatcher to a terminal outcome. The scratch
// directory backing the fetch result is released on every path.
func (p *Policy) Run(ctx context.Context, job models.DownloadJob) {
	start := time.Now()
	log := p.logger.With(zap.String("job_id", job.ID), zap.Int64("chat_id", job.ChatID))

	p.sendText(ctx, log, job.ChatID, "⏳ Preparing your download, hang tight...")

	res, fetchErr := p.exec.Fetch(ctx, job.URL)
	var files []models.FileInfo
	if fetchErr == nil {
		defer res.Close()
		files = res.Files
	}

	status := p.Deliver(ctx, job, files, fetchErr)

	p.metrics.JobsTotal.WithLabelValues(status).Inc()
	p.metrics.JobDurationHist.Observe(time.Since(start).Seconds())
	log.Info("job delivered", zap.String("status", status), zap.Duration("duration", time.Since(start)))
}

// Deliver applies the per-job state machine and returns the terminal
// status: completed, fallback, or failed.
func (p *Policy) Deliver(ctx context.Context, job models.DownloadJob, files []models.FileInfo, fetchErr error) string {
	log := p.logger.With(zap.String("job_id", job.ID), zap.Int64("chat_id", job.ChatID))

	if fetchErr != nil {
		return p.deliverFetchFailure(ctx, log, job, fetchErr)
	}

	status := "completed"
	for i, f := range files {
		if i > 0 {
			p.pause(ctx)
		}
		name := filepath.Base(f.Path)

		if f.Size <= p.maxSendSize {
			if err := p.msgr.SendFile(ctx, job.ChatID, f.Path); err != nil {
				log.Warn("file transmission failed", zap.String("file", name), zap.Error(err))
				p.metrics.FilesDeliveredTotal.WithLabelValues("error").Inc()
				p.sendText(ctx, log, job.ChatID, fmt.Sprintf("Couldn't send %s, sorry.", name))
				continue
			}
			p.metrics.FilesDeliveredTotal.WithLabelValues("sent").Inc()
			p.metrics.SentBytesHist.Observe(float64(f.Size))
			continue
		}

		// Oversized: substitute direct links for the original URL.
		urls, err := p.exec.ResolveDirectURLs(ctx, job.URL)
		if err != nil || len(urls) == 0 {
			log.Warn("fallback resolution failed", zap.String("file", name), zap.Error(err))
			p.metrics.FilesDeliveredTotal.WithLabelValues("error").Inc()
			p.sendText(ctx, log, job.ChatID, fmt.Sprintf("%s is too large to send and I couldn't get a direct link for it.", name))
			continue
		}
		p.metrics.FilesDeliveredTotal.WithLabelValues("fallback").Inc()
		status = "fallback"
		p.sendText(ctx, log, job.ChatID, fmt.Sprintf("%s is larger than I'm allowed to send. You can download it from these links:", name))
		p.sendURLs(ctx, log, job.ChatID, urls)
	}

	return status
}

func (p *Policy) deliverFetchFailure(ctx context.Context, log *zap.Logger, job models.DownloadJob, fetchErr error) string {
	urls, err := p.exec.ResolveDirectURLs(ctx, job.URL)
	if err == nil && len(urls) > 0 {
		p.sendText(ctx, log, job.ChatID, "I couldn't download that, but these direct links should work in your browser:")
		p.sendURLs(ctx, log, job.ChatID, urls)
		return "fallback"
	}

	log.Warn("extraction and fallback both failed",
		zap.NamedError("fetch_err", fetchErr), zap.NamedError("resolve_err", err))
	p.sendText(ctx, log, job.ChatID, "Download failed: "+failureText(fetchErr))
	return "failed"
}

func (p *Policy) sendURLs(ctx context.Context, log *zap.Logger, chatID int64, urls []string) {
	for i, u := range urls {
		if i > 0 {
			p.pause(ctx)
		}
		p.sendText(ctx, log, chatID, u)
	}
}

// sendText is best-effort; transport errors are logged, never propagated.
func (p *Policy) sendText(ctx context.Context, log *zap.Logger, chatID int64, text string) {
	if err := p.msgr.SendText(ctx, chatID, text); err != nil {
		log.Warn("outbound send failed", zap.Error(err))
	}
}

// pause spaces consecutive outbound sends so the transport's own rate
// limits aren't tripped.
func (p *Policy) pause(ctx context.Context) {
	if p.sendPause <= 0 {
		return
	}
	select {
	case <-time.After(p.sendPause):
	case <-ctx.Done():
	}
}

func failureText(err error) string {
	var ee *models.ExtractError
	if !errors.As(err, &ee) {
		return "an unexpected error occurred."
	}
	switch ee.Kind {
	case models.ExtractTimeout:
		return "the download took too long and was stopped."
	case models.ExtractNoContent:
		return "nothing downloadable was found at that link."
	default:
		if ee.Stderr != "" {
			return "the downloader reported: " + ee.Stderr
		}
		return "the downloader could not process that link."
	}
}
