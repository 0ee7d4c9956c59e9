package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"relaybot/internal/textrules"
	"relaybot/pkg/relay"

	"github.com/cenkalti/backoff/v4"
)

// RuleSource supplies text rules and ad keywords at delivery time.
type RuleSource interface {
	// Apply transforms merged text.
	Apply(text string) string
	// AdKeywords returns keywords marking an advertisement group.
	AdKeywords() []string
}

// Option mutates dispatcher configuration.
type Option func(*dispatcherConfig)

// WithLogger configures structured logging for deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *dispatcherConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithGroupWindow configures how many ids around a target are fetched.
func WithGroupWindow(window int) Option {
	return func(cfg *dispatcherConfig) {
		if window > 0 {
			cfg.groupWindow = window
		}
	}
}

// WithCaptionLimit configures the media caption length limit.
func WithCaptionLimit(limit int) Option {
	return func(cfg *dispatcherConfig) {
		if limit > 0 {
			cfg.captionLimit = limit
		}
	}
}

// WithOverflowHeader configures the prefix of caption overflow messages.
func WithOverflowHeader(header string) Option {
	return func(cfg *dispatcherConfig) {
		cfg.overflowHeader = header
	}
}

// WithMarkerStripping selects which delivery paths strip ** markers.
func WithMarkerStripping(userPath bool, channelPath bool) Option {
	return func(cfg *dispatcherConfig) {
		cfg.user.stripMarkers = userPath
		cfg.channel.stripMarkers = channelPath
	}
}

// WithRetryPolicy configures rate-limit retries of client calls.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(cfg *dispatcherConfig) {
		if policy.MaxAttempts > 0 {
			cfg.retry.MaxAttempts = policy.MaxAttempts
		}
		if policy.Padding >= 0 {
			cfg.retry.Padding = policy.Padding
		}
	}
}

// WithRetryTimer replaces the timer used while waiting out rate limits.
func WithRetryTimer(timer backoff.Timer) Option {
	return func(cfg *dispatcherConfig) {
		cfg.timer = timer
	}
}

// WithRateLimitNotify registers an observer for rate-limit waits.
func WithRateLimitNotify(notify RateLimitNotify) Option {
	return func(cfg *dispatcherConfig) {
		cfg.notify = notify
	}
}

type deliveryPath struct {
	name         string
	filterAds    bool
	stripMarkers bool
}

type dispatcherConfig struct {
	logger         *slog.Logger
	groupWindow    int
	captionLimit   int
	overflowHeader string
	user           deliveryPath
	channel        deliveryPath
	retry          RetryPolicy
	timer          backoff.Timer
	notify         RateLimitNotify
}

// Dispatcher runs the fetch, merge, transform and deliver pipeline.
type Dispatcher struct {
	cfg      dispatcherConfig
	client   relay.MessagingClient
	rules    RuleSource
	sessions relay.SessionStore
	retrier  retrier
}

// NewDispatcher creates a dispatcher delivering through client.
func NewDispatcher(
	client relay.MessagingClient,
	rules RuleSource,
	sessions relay.SessionStore,
	options ...Option,
) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new dispatcher: nil messaging client")
	}
	if rules == nil {
		return nil, fmt.Errorf("new dispatcher: nil rule source")
	}
	if sessions == nil {
		return nil, fmt.Errorf("new dispatcher: nil session store")
	}

	cfg := dispatcherConfig{
		logger:         slog.Default(),
		groupWindow:    DefaultGroupWindow,
		captionLimit:   DefaultCaptionLimit,
		overflowHeader: DefaultOverflowHeader,
		user:           deliveryPath{name: "user"},
		channel:        deliveryPath{name: "channel", filterAds: true, stripMarkers: true},
		retry: RetryPolicy{
			MaxAttempts: DefaultMaxAttempts,
			Padding:     DefaultRetryPadding,
		},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Dispatcher{
		cfg:      cfg,
		client:   client,
		rules:    rules,
		sessions: sessions,
		retrier: retrier{
			policy: cfg.retry,
			timer:  cfg.timer,
			notify: cfg.notify,
			logger: cfg.logger,
		},
	}, nil
}

// SendToUser delivers the message group around source to a private chat and
// tracks the created messages for later cleanup.
func (d *Dispatcher) SendToUser(ctx context.Context, source relay.MessageRef, userID int64) relay.SendOutcome {
	outcome := d.deliver(ctx, d.cfg.user, source, relay.UserDestination(userID))
	if len(outcome.MessageIDs) > 0 {
		if err := d.sessions.RecordSent(ctx, userID, outcome.MessageIDs...); err != nil {
			d.cfg.logger.WarnContext(ctx, "track sent messages failed", "user_id", userID, "error", err)
		}
	}

	return outcome
}

// SendToChannel delivers the message group around source to a channel,
// skipping groups that match an ad keyword.
func (d *Dispatcher) SendToChannel(ctx context.Context, source relay.MessageRef, dest relay.ChannelRef) relay.SendOutcome {
	return d.deliver(ctx, d.cfg.channel, source, relay.ChannelDestination(dest))
}

// Preview returns the content SendToChannel would deliver without sending it.
func (d *Dispatcher) Preview(ctx context.Context, source relay.MessageRef) (relay.MergedContent, error) {
	group, err := d.resolve(ctx, source)
	if err != nil {
		return relay.MergedContent{}, err
	}

	return d.transform(group, d.cfg.channel), nil
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	path deliveryPath,
	source relay.MessageRef,
	dest relay.Destination,
) relay.SendOutcome {
	logger := d.cfg.logger.With(
		"path", path.name,
		"source", relay.BuildLink(source),
		"destination", dest.String(),
	)

	group, err := d.resolve(ctx, source)
	if errors.Is(err, relay.ErrNotFound) {
		logger.InfoContext(ctx, "message not found, skipping")
		return relay.SendOutcome{Status: relay.SendStatusNotFound, Err: err}
	}
	if err != nil {
		logger.ErrorContext(ctx, "fetch message group failed", "error", err)
		return relay.SendOutcome{Status: relay.SendStatusFailed, Err: err}
	}

	if path.filterAds && textrules.IsAdGroup(group, d.rules.AdKeywords()) {
		logger.InfoContext(ctx, "ad keyword matched, skipping group", "group_size", len(group))
		return relay.SendOutcome{
			Status: relay.SendStatusFiltered,
			Err:    fmt.Errorf("deliver %s: %w", relay.BuildLink(source), relay.ErrFiltered),
		}
	}

	content := d.transform(group, path)
	if content.Empty() {
		logger.InfoContext(ctx, "message group has no deliverable content")
		return relay.SendOutcome{
			Status: relay.SendStatusNotFound,
			Err:    fmt.Errorf("deliver %s: empty content: %w", relay.BuildLink(source), relay.ErrNotFound),
		}
	}

	ids, err := d.send(ctx, dest, content)
	if err != nil {
		if relay.IsTerminalDelivery(err) {
			logger.ErrorContext(ctx, "destination rejected delivery", "kind", relay.OutboundErrorKindOf(err), "error", err)
		} else {
			logger.ErrorContext(ctx, "deliver message group failed", "error", err)
		}
		return relay.SendOutcome{Status: relay.SendStatusFailed, MessageIDs: ids, Err: err}
	}

	logger.InfoContext(ctx, "message group delivered",
		"group_size", len(group),
		"media_count", len(content.Media),
		"message_ids", ids,
	)

	return relay.SendOutcome{Status: relay.SendStatusSent, MessageIDs: ids}
}

func (d *Dispatcher) resolve(ctx context.Context, source relay.MessageRef) ([]relay.RawMessage, error) {
	var group []relay.RawMessage
	err := d.retrier.do(ctx, "fetch message group", func(ctx context.Context) error {
		resolved, err := ResolveGroup(ctx, d.client, source, d.cfg.groupWindow)
		if err != nil {
			return err
		}
		group = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}

	return group, nil
}

// transform merges the group and applies text rules, dropping entities the
// rules pushed out of range.
func (d *Dispatcher) transform(group []relay.RawMessage, path deliveryPath) relay.MergedContent {
	content := Merge(group, MergeOptions{StripMarkers: path.stripMarkers})
	if content.Text == "" {
		return content
	}

	transformed := d.rules.Apply(content.Text)
	if transformed != content.Text {
		content.Entities = relay.ClipEntities(content.Entities, relay.TextLength(transformed))
		content.Text = transformed
	}

	return content
}

func (d *Dispatcher) send(ctx context.Context, dest relay.Destination, content relay.MergedContent) ([]int, error) {
	if len(content.Media) == 0 {
		return d.sendText(ctx, dest, content.Text, content.Entities)
	}

	split := SplitForCaption(content.Text, content.Entities, d.cfg.captionLimit)
	ids, err := d.sendWithFallback(ctx, "send media", split.Caption, split.CaptionEntities,
		func(ctx context.Context, caption relay.OutgoingText) ([]int, error) {
			return d.client.SendMedia(ctx, dest, content.Media, caption)
		},
	)
	if err != nil {
		return ids, err
	}
	if split.Overflow == "" {
		return ids, nil
	}

	header := d.cfg.overflowHeader
	more, err := d.sendText(ctx, dest, header+split.Overflow,
		relay.ShiftEntities(split.OverflowEntities, relay.TextLength(header)))
	ids = append(ids, more...)
	if err != nil {
		return ids, fmt.Errorf("send caption overflow: %w", err)
	}

	return ids, nil
}

func (d *Dispatcher) sendText(
	ctx context.Context,
	dest relay.Destination,
	text string,
	entities []relay.TextEntity,
) ([]int, error) {
	return d.sendWithFallback(ctx, "send text", text, entities,
		func(ctx context.Context, body relay.OutgoingText) ([]int, error) {
			return d.client.SendText(ctx, dest, body)
		},
	)
}

// sendWithFallback sends with native entities and, when the destination
// rejects them, once more as HTML markup.
func (d *Dispatcher) sendWithFallback(
	ctx context.Context,
	operation string,
	text string,
	entities []relay.TextEntity,
	send func(ctx context.Context, body relay.OutgoingText) ([]int, error),
) ([]int, error) {
	var ids []int
	attempt := func(body relay.OutgoingText) error {
		return d.retrier.do(ctx, operation, func(ctx context.Context) error {
			sent, err := send(ctx, body)
			if err != nil {
				return err
			}
			ids = sent
			return nil
		})
	}

	err := attempt(relay.OutgoingText{Text: text, Entities: entities})
	if err == nil {
		return ids, nil
	}
	if len(entities) == 0 || !shouldFallback(err) {
		return nil, err
	}

	d.cfg.logger.WarnContext(ctx, "native formatting rejected, retrying with html markup",
		"operation", operation,
		"entities", len(entities),
		"error", err,
	)
	if err := attempt(relay.OutgoingText{Text: ToFallbackMarkup(text, entities), Mode: relay.ParseModeHTML}); err != nil {
		return nil, fmt.Errorf("%s html fallback: %w", operation, err)
	}

	return ids, nil
}

func shouldFallback(err error) bool {
	switch relay.OutboundErrorKindOf(err) {
	case relay.OutboundErrorKindFormatRejected, relay.OutboundErrorKindUnknown:
		return true
	default:
		return false
	}
}
