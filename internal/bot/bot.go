// Package bot is the intake path: it consumes inbound transport events
// sequentially, runs the fast gates (membership, platform selection, link
// classification, admission) and hands admitted jobs to the dispatcher.
// Nothing here blocks on downloads.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediarelay/internal/metrics"
	"mediarelay/internal/models"
	"mediarelay/internal/platform"
	"mediarelay/internal/ratelimit"
	"mediarelay/internal/session"
	"mediarelay/internal/transport"
)

// callbackPrefix tags menu button payloads.
const callbackPrefix = "platform:"

// Submitter is the slice of the dispatcher the intake path needs.
type Submitter interface {
	Submit(job models.DownloadJob) error
}

// Bot wires the gates together.
type Bot struct {
	logger     *zap.Logger
	msgr       transport.Messenger
	gate       *ratelimit.Gate
	sessions   *session.Store
	dispatcher Submitter
	metrics    *metrics.Metrics

	groupID   int64 // 0 disables the membership gate
	groupLink string

	now func() time.Time
}

func New(logger *zap.Logger, msgr transport.Messenger, gate *ratelimit.Gate, sessions *session.Store, dispatcher Submitter, m *metrics.Metrics, groupID int64, groupLink string) *Bot {
	return &Bot{
		logger:     logger,
		msgr:       msgr,
		gate:       gate,
		sessions:   sessions,
		dispatcher: dispatcher,
		metrics:    m,
		groupID:    groupID,
		groupLink:  groupLink,
		now:        time.Now,
	}
}

// Run consumes events until ctx is cancelled or the stream closes.
// Events are handled one at a time; every handler is fast.
func (b *Bot) Run(ctx context.Context, events <-chan transport.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bot) handle(ctx context.Context, ev transport.Event) {
	switch {
	case ev.Kind == transport.EventCallback:
		b.metrics.EventsTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, ev)
	case strings.HasPrefix(ev.Text, "/"):
		b.metrics.EventsTotal.WithLabelValues("command").Inc()
		b.handleCommand(ctx, ev)
	default:
		b.metrics.EventsTotal.WithLabelValues("text").Inc()
		b.handleLink(ctx, ev)
	}
}

func (b *Bot) handleCallback(ctx context.Context, ev transport.Event) {
	p := platform.Platform(strings.TrimPrefix(ev.Data, callbackPrefix))
	if !p.Valid() {
		b.answerCallback(ctx, ev.CallbackID, "Unknown option")
		return
	}
	b.sessions.Select(ev.UserID, p)
	b.answerCallback(ctx, ev.CallbackID, p.DisplayName()+" selected")
	b.sendText(ctx, ev.ChatID, fmt.Sprintf("Got it — send me a %s link.", p.DisplayName()))
}

func (b *Bot) handleCommand(ctx context.Context, ev transport.Event) {
	cmd := ev.Text
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		b.sendMenu(ctx, ev.ChatID,
			"Hi! I fetch media from Instagram, YouTube and SoundCloud.\nPick a platform, then send me a link.")
	case "/help":
		b.sendText(ctx, ev.ChatID,
			"1. Pick a platform with /start\n"+
				"2. Send a link from that platform\n"+
				"3. I download it and send the file here, or direct links when the file is too big.\n\n"+
				"There's a short cooldown between requests and a daily limit per platform.")
	case "/status":
		b.handleStatus(ctx, ev)
	case "/reset":
		b.sessions.Clear(ev.UserID)
		b.sendMenu(ctx, ev.ChatID, "Selection cleared. Pick a platform:")
	default:
		b.sendText(ctx, ev.ChatID, "Unknown command. Try /start, /help, /status or /reset.")
	}
}

func (b *Bot) handleStatus(ctx context.Context, ev transport.Event) {
	var sb strings.Builder

	if p, ok := b.sessions.Get(ev.UserID); ok {
		fmt.Fprintf(&sb, "Selected platform: %s\n", p.DisplayName())
	} else {
		sb.WriteString("No platform selected — use /start.\n")
	}

	if wait := b.gate.CooldownRemaining(ev.UserID, b.now()); wait > 0 {
		fmt.Fprintf(&sb, "Next request possible in %d seconds.", seconds(wait))
	} else {
		sb.WriteString("You can send a request now.")
	}

	b.sendText(ctx, ev.ChatID, sb.String())
}

func (b *Bot) handleLink(ctx context.Context, ev transport.Event) {
	if !b.checkMembership(ctx, ev) {
		return
	}

	selected, ok := b.sessions.Get(ev.UserID)
	if !ok {
		b.sendMenu(ctx, ev.ChatID, "Pick a platform first:")
		return
	}

	url, ok := platform.Classify(ev.Text, selected)
	if !ok {
		b.sendText(ctx, ev.ChatID,
			fmt.Sprintf("That doesn't look like a %s link. Send one, or switch platforms with /start.", selected.DisplayName()))
		return
	}

	decision := b.gate.Admit(ev.UserID, selected, b.now())
	b.metrics.AdmissionsTotal.WithLabelValues(admissionLabel(decision)).Inc()
	if !decision.Allowed {
		// Expected outcome, not an error; only the user hears about it.
		b.sendText(ctx, ev.ChatID, denialText(decision, selected))
		return
	}

	job := models.DownloadJob{
		ID:         uuid.NewString(),
		ChatID:     ev.ChatID,
		UserID:     ev.UserID,
		URL:        url,
		Platform:   selected,
		EnqueuedAt: b.now(),
	}
	if err := b.dispatcher.Submit(job); err != nil {
		b.logger.Error("job submission failed", zap.String("job_id", job.ID), zap.Error(err))
		b.sendText(ctx, ev.ChatID, "I'm shutting down right now — please try again in a minute.")
		return
	}

	b.logger.Info("job admitted",
		zap.String("job_id", job.ID),
		zap.String("platform", string(selected)),
		zap.Int64("user_id", ev.UserID),
		zap.Int("remaining", decision.Remaining))
	b.sendText(ctx, ev.ChatID,
		fmt.Sprintf("✅ Request queued — you'll get the file or a direct link here. %d left today for %s.",
			decision.Remaining, selected.DisplayName()))
}

// checkMembership enforces the required-group gate when configured.
// Lookup failures count as "not a member": better a retry prompt than a
// free pass.
func (b *Bot) checkMembership(ctx context.Context, ev transport.Event) bool {
	if b.groupID == 0 {
		return true
	}
	member, err := b.msgr.IsMember(ctx, b.groupID, ev.UserID)
	if err != nil {
		b.logger.Warn("membership lookup failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
	if member {
		return true
	}

	text := "You need to join our group before using this bot."
	if b.groupLink != "" {
		text += "\nJoin here: " + b.groupLink
	}
	b.sendText(ctx, ev.ChatID, text)
	return false
}

func (b *Bot) sendMenu(ctx context.Context, chatID int64, text string) {
	options := make([]transport.MenuOption, 0, len(platform.All()))
	for _, p := range platform.All() {
		options = append(options, transport.MenuOption{
			Label: p.DisplayName(),
			Data:  callbackPrefix + string(p),
		})
	}
	if err := b.msgr.SendMenu(ctx, chatID, text, options); err != nil {
		b.logger.Warn("menu send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendText(ctx context.Context, chatID int64, text string) {
	if err := b.msgr.SendText(ctx, chatID, text); err != nil {
		b.logger.Warn("outbound send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answerCallback(ctx context.Context, callbackID, text string) {
	if err := b.msgr.AnswerCallback(ctx, callbackID, text); err != nil {
		b.logger.Warn("callback answer failed", zap.Error(err))
	}
}

func admissionLabel(d ratelimit.Decision) string {
	if d.Allowed {
		return "allowed"
	}
	return d.Reason.String()
}

func denialText(d ratelimit.Decision, p platform.Platform) string {
	switch d.Reason {
	case ratelimit.ReasonCooldown:
		return fmt.Sprintf("⏳ Hold on — try again in %d seconds.", seconds(d.RetryAfter))
	case ratelimit.ReasonDailyLimit:
		return fmt.Sprintf("You've used up today's %s downloads. The counter resets 24 hours after your first request.", p.DisplayName())
	default:
		return "Request denied."
	}
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
