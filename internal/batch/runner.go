// Package batch runs multi-message jobs on top of the delivery pipeline:
// random samples to a user, cloning a link list into a channel, and
// collecting a channel's history into a link list.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"relaybot/internal/linkstore"
	"relaybot/pkg/relay"

	"github.com/google/uuid"
)

const (
	// DefaultRandomCount is how many messages a random sample sends.
	DefaultRandomCount = 10
	// MaxRandomCount bounds the random sample size.
	MaxRandomCount = 50
	// DefaultRandomDelay separates random sample deliveries.
	DefaultRandomDelay = 2 * time.Second
	// DefaultProgressEvery is how many items pass between progress reports.
	DefaultProgressEvery = 10

	randomAttemptFactor = 5
)

var (
	// ErrInvalidCount indicates a random sample size outside [1, MaxRandomCount].
	ErrInvalidCount = errors.New("batch: invalid sample size")
	// ErrNoLinks indicates an empty link list.
	ErrNoLinks = errors.New("batch: no links to send")
	// ErrHistoryUnavailable indicates that no history reader is configured.
	ErrHistoryUnavailable = errors.New("batch: channel history unavailable")
)

// Deliverer sends one message group.
type Deliverer interface {
	SendToUser(ctx context.Context, source relay.MessageRef, userID int64) relay.SendOutcome
	SendToChannel(ctx context.Context, source relay.MessageRef, dest relay.ChannelRef) relay.SendOutcome
}

// DelaySource supplies the pause between cloned items.
type DelaySource interface {
	Delay() time.Duration
}

// Progress is a snapshot of a running job.
type Progress struct {
	JobID  string
	Done   int
	Total  int
	Sent   int
	Failed int
}

// ProgressFunc receives progress snapshots. It may be nil.
type ProgressFunc func(ctx context.Context, progress Progress)

// Report summarizes a finished or stopped job.
type Report struct {
	JobID    string
	Total    int
	Sent     int
	Failed   int
	Filtered int
	NotFound int
	Stopped  bool
	// MessageIDs lists messages created by the job.
	MessageIDs []int
}

// CollectReport summarizes a history collection.
type CollectReport struct {
	JobID   string
	Path    string
	Links   int
	Scanned int
}

// Option mutates runner configuration.
type Option func(*Runner)

// WithLogger configures job logging.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithHistoryReader enables history collection and channel-wide sampling.
func WithHistoryReader(history relay.HistoryReader) Option {
	return func(r *Runner) {
		r.history = history
	}
}

// WithLinkStore configures where collected link lists are kept.
func WithLinkStore(store *linkstore.Store) Option {
	return func(r *Runner) {
		if store != nil {
			r.links = store
		}
	}
}

// WithCloneDelay configures the pause between cloned items.
func WithCloneDelay(delay DelaySource) Option {
	return func(r *Runner) {
		r.cloneDelay = delay
	}
}

// WithRandomDelay configures the pause between random sample deliveries.
func WithRandomDelay(delay time.Duration) Option {
	return func(r *Runner) {
		if delay >= 0 {
			r.randomDelay = delay
		}
	}
}

// WithProgressEvery configures how often progress is reported.
func WithProgressEvery(every int) Option {
	return func(r *Runner) {
		if every > 0 {
			r.progressEvery = every
		}
	}
}

func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = sleep
	}
}

func withIntN(intn func(n int) int) Option {
	return func(r *Runner) {
		r.intn = intn
	}
}

// Runner executes batch jobs for users.
type Runner struct {
	deliverer     Deliverer
	sessions      relay.SessionStore
	history       relay.HistoryReader
	links         *linkstore.Store
	cloneDelay    DelaySource
	randomDelay   time.Duration
	progressEvery int
	logger        *slog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
	intn          func(n int) int
}

// NewRunner creates a runner delivering through deliverer.
func NewRunner(deliverer Deliverer, sessions relay.SessionStore, options ...Option) (*Runner, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("new batch runner: nil deliverer")
	}
	if sessions == nil {
		return nil, fmt.Errorf("new batch runner: nil session store")
	}

	runner := &Runner{
		deliverer:     deliverer,
		sessions:      sessions,
		links:         linkstore.New(""),
		randomDelay:   DefaultRandomDelay,
		progressEvery: DefaultProgressEvery,
		logger:        slog.Default(),
		sleep:         sleepContext,
		intn:          rand.IntN,
	}
	for _, option := range options {
		option(runner)
	}

	return runner, nil
}

// Links returns the link list store.
func (r *Runner) Links() *linkstore.Store {
	return r.links
}

// HasHistory reports whether history-based jobs are available.
func (r *Runner) HasHistory() bool {
	return r.history != nil
}

// Stop asks the running job of userID to stop before its next item.
func (r *Runner) Stop(ctx context.Context, userID int64) error {
	return r.sessions.SetStopFlag(ctx, userID, true)
}

// Clone delivers every link to dest in order, pausing between items.
//
// The stop flag of userID is cleared at start and checked before each item;
// when set, the report so far is returned with relay.ErrStopped.
func (r *Runner) Clone(
	ctx context.Context,
	userID int64,
	links []string,
	dest relay.ChannelRef,
	progress ProgressFunc,
) (Report, error) {
	report := Report{JobID: uuid.NewString(), Total: len(links)}
	if len(links) == 0 {
		return report, ErrNoLinks
	}
	if err := dest.Validate(); err != nil {
		return report, fmt.Errorf("clone to %s: %w", dest, err)
	}

	logger := r.logger.With("job_id", report.JobID, "job", "clone", "user_id", userID, "destination", dest.String())
	logger.InfoContext(ctx, "clone started", "links", len(links))
	if err := r.sessions.SetStopFlag(ctx, userID, false); err != nil {
		return report, fmt.Errorf("reset stop flag: %w", err)
	}

	for index, link := range links {
		if stop, err := r.stopRequested(ctx, userID); err != nil || stop {
			if err != nil {
				return report, err
			}
			report.Stopped = true
			logger.InfoContext(ctx, "clone stopped", "done", index)
			return report, fmt.Errorf("clone to %s after %d of %d: %w", dest, index, len(links), relay.ErrStopped)
		}

		source, err := relay.ParseLink(link)
		if err != nil {
			report.Failed++
			logger.WarnContext(ctx, "skipping invalid link", "link", link, "error", err)
		} else {
			r.count(&report, r.deliverer.SendToChannel(ctx, source, dest))
		}

		done := index + 1
		if progress != nil && (done%r.progressEvery == 0 || done == len(links)) {
			progress(ctx, Progress{JobID: report.JobID, Done: done, Total: len(links), Sent: report.Sent, Failed: report.Failed})
		}
		if done < len(links) {
			if err := r.sleep(ctx, r.delay()); err != nil {
				return report, fmt.Errorf("clone to %s: %w", dest, err)
			}
		}
	}

	logger.InfoContext(ctx, "clone finished",
		"sent", report.Sent,
		"failed", report.Failed,
		"filtered", report.Filtered,
		"not_found", report.NotFound,
	)

	return report, nil
}

// CloneFile clones the link list named by source into dest. Source is a
// link file name or a channel reference.
func (r *Runner) CloneFile(
	ctx context.Context,
	userID int64,
	source string,
	dest relay.ChannelRef,
	progress ProgressFunc,
) (Report, error) {
	path := r.links.ResolveSource(source)
	links, err := r.links.Read(path)
	if err != nil {
		return Report{}, err
	}
	if len(links) == 0 {
		return Report{}, fmt.Errorf("clone %s: %w", path, ErrNoLinks)
	}

	return r.Clone(ctx, userID, links, dest, progress)
}

// Random sends count randomly chosen messages with ids in [1, upper] from
// channel to userID. Upper is the latest message id when zero.
//
// At most count*5 ids are tried; ids are not repeated.
func (r *Runner) Random(
	ctx context.Context,
	userID int64,
	channel relay.ChannelRef,
	upper int,
	count int,
) (Report, error) {
	report := Report{JobID: uuid.NewString(), Total: count}
	if count < 1 || count > MaxRandomCount {
		return report, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidCount, count, MaxRandomCount)
	}
	if upper <= 0 {
		if r.history == nil {
			return report, ErrHistoryUnavailable
		}
		latest, err := r.history.LatestMessageID(ctx, channel)
		if err != nil {
			return report, fmt.Errorf("random sample latest id of %s: %w", channel, err)
		}
		upper = latest
	}
	if upper < 1 {
		return report, fmt.Errorf("random sample %s: %w", channel, relay.ErrNotFound)
	}

	logger := r.logger.With("job_id", report.JobID, "job", "random", "user_id", userID, "source", channel.String())
	if err := r.sessions.SetStopFlag(ctx, userID, false); err != nil {
		return report, fmt.Errorf("reset stop flag: %w", err)
	}

	tried := make(map[int]struct{}, count*randomAttemptFactor)
	for attempts := 0; report.Sent < count && attempts < count*randomAttemptFactor && len(tried) < upper; attempts++ {
		if stop, err := r.stopRequested(ctx, userID); err != nil {
			return report, err
		} else if stop {
			report.Stopped = true
			return report, fmt.Errorf("random sample of %s: %w", channel, relay.ErrStopped)
		}

		id := r.intn(upper) + 1
		if _, seen := tried[id]; seen {
			continue
		}
		tried[id] = struct{}{}

		outcome := r.deliverer.SendToUser(ctx, relay.MessageRef{Channel: channel, ID: id}, userID)
		r.count(&report, outcome)
		if outcome.OK() && report.Sent < count {
			if err := r.sleep(ctx, r.randomDelay); err != nil {
				return report, fmt.Errorf("random sample of %s: %w", channel, err)
			}
		}
	}

	logger.InfoContext(ctx, "random sample finished", "sent", report.Sent, "tried", len(tried))

	return report, nil
}

// Collect walks the history of channel oldest first and writes one link per
// message or media group to the channel's link list.
func (r *Runner) Collect(ctx context.Context, channel relay.ChannelRef, progress ProgressFunc) (CollectReport, error) {
	report := CollectReport{JobID: uuid.NewString()}
	if r.history == nil {
		return report, ErrHistoryUnavailable
	}

	logger := r.logger.With("job_id", report.JobID, "job", "collect", "source", channel.String())
	total, err := r.history.CountMessages(ctx, channel)
	if err != nil {
		return report, fmt.Errorf("count messages of %s: %w", channel, err)
	}
	logger.InfoContext(ctx, "collect started", "total", total)

	var links []string
	groups := make(map[int64]struct{})
	err = r.history.IterateHistory(ctx, channel, func(message relay.RawMessage) error {
		if message.Service {
			return nil
		}
		report.Scanned++
		_, seen := groups[message.GroupID]
		if !message.HasGroup() || !seen {
			if message.HasGroup() {
				groups[message.GroupID] = struct{}{}
			}
			links = append(links, relay.BuildLink(relay.MessageRef{Channel: channel, ID: message.ID}))
		}

		if progress != nil && report.Scanned%r.progressEvery == 0 {
			progress(ctx, Progress{JobID: report.JobID, Done: report.Scanned, Total: total, Sent: len(links)})
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("iterate history of %s: %w", channel, err)
	}

	path, err := r.links.Write(relay.SafeChannelName(channel), links)
	if err != nil {
		return report, err
	}
	report.Path = path
	report.Links = len(links)
	if progress != nil {
		progress(ctx, Progress{JobID: report.JobID, Done: report.Scanned, Total: total, Sent: len(links)})
	}
	logger.InfoContext(ctx, "collect finished", "links", report.Links, "scanned", report.Scanned, "path", path)

	return report, nil
}

func (r *Runner) stopRequested(ctx context.Context, userID int64) (bool, error) {
	stop, err := r.sessions.CheckStopFlag(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check stop flag: %w", err)
	}
	if stop {
		if err := r.sessions.SetStopFlag(ctx, userID, false); err != nil {
			r.logger.WarnContext(ctx, "clear stop flag failed", "user_id", userID, "error", err)
		}
	}

	return stop, nil
}

func (r *Runner) delay() time.Duration {
	if r.cloneDelay == nil {
		return time.Second
	}

	return r.cloneDelay.Delay()
}

func (r *Runner) count(report *Report, outcome relay.SendOutcome) {
	report.MessageIDs = append(report.MessageIDs, outcome.MessageIDs...)
	switch outcome.Status {
	case relay.SendStatusSent:
		report.Sent++
	case relay.SendStatusFiltered:
		report.Filtered++
	case relay.SendStatusNotFound:
		report.NotFound++
	default:
		report.Failed++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
