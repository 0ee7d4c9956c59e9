// Package bot is the Bot API command front-end: it long-polls updates, gates
// group chatter, routes commands and tracks the messages it exchanges with
// each user.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"relaybot/internal/batch"
	"relaybot/internal/linkstore"
	"relaybot/internal/textrules"
	"relaybot/pkg/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultPollTimeout    = 60
	defaultNoticeTTL      = 3 * time.Second
	defaultRulesFile      = "config.json"
	defaultHandlerTimeout = 0
)

// API is the subset of the Bot API client the front-end uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Forwarder delivers one message group to a user's private chat.
type Forwarder interface {
	SendToUser(ctx context.Context, source relay.MessageRef, userID int64) relay.SendOutcome
}

// Jobs runs the long batch operations.
type Jobs interface {
	CloneFile(
		ctx context.Context,
		userID int64,
		source string,
		dest relay.ChannelRef,
		progress batch.ProgressFunc,
	) (batch.Report, error)
	Random(ctx context.Context, userID int64, channel relay.ChannelRef, upper int, count int) (batch.Report, error)
	Collect(ctx context.Context, channel relay.ChannelRef, progress batch.ProgressFunc) (batch.CollectReport, error)
	Stop(ctx context.Context, userID int64) error
	HasHistory() bool
}

// Deleter removes messages from a private chat.
type Deleter interface {
	DeleteMessages(ctx context.Context, dest relay.Destination, ids []int) error
}

// Dependencies are the collaborators a Bot drives.
type Dependencies struct {
	Forwarder Forwarder
	Jobs      Jobs
	Links     *linkstore.Store
	Rules     *textrules.RuleSet
	Sessions  relay.SessionStore
	Deleter   Deleter
}

func (d Dependencies) validate() error {
	switch {
	case d.Forwarder == nil:
		return fmt.Errorf("nil forwarder")
	case d.Jobs == nil:
		return fmt.Errorf("nil jobs runner")
	case d.Links == nil:
		return fmt.Errorf("nil link store")
	case d.Rules == nil:
		return fmt.Errorf("nil rule set")
	case d.Sessions == nil:
		return fmt.Errorf("nil session store")
	case d.Deleter == nil:
		return fmt.Errorf("nil deleter")
	default:
		return nil
	}
}

// Option mutates bot configuration.
type Option func(*config)

// WithLogger configures structured logging for update handling.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithRulesFile configures the file behind /config save, load and reload.
func WithRulesFile(path string) Option {
	return func(cfg *config) {
		if strings.TrimSpace(path) != "" {
			cfg.rulesFile = path
		}
	}
}

// WithNoticeTTL configures how long transient notices stay visible.
func WithNoticeTTL(ttl time.Duration) Option {
	return func(cfg *config) {
		if ttl >= 0 {
			cfg.noticeTTL = ttl
		}
	}
}

// WithPollTimeout configures the long-poll timeout in seconds.
func WithPollTimeout(seconds int) Option {
	return func(cfg *config) {
		if seconds > 0 {
			cfg.pollTimeout = seconds
		}
	}
}

// WithHandlerTimeout bounds each update handler; zero means unbounded.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout >= 0 {
			cfg.handlerTimeout = timeout
		}
	}
}

type config struct {
	logger         *slog.Logger
	rulesFile      string
	noticeTTL      time.Duration
	pollTimeout    int
	handlerTimeout time.Duration
}

// Bot routes Bot API updates to forwarding, batch and rule commands.
type Bot struct {
	cfg      config
	api      API
	username string
	deps     Dependencies
	commands map[string]commandHandler
	wg       sync.WaitGroup
}

// New creates a bot answering as username.
func New(api API, username string, deps Dependencies, options ...Option) (*Bot, error) {
	if api == nil {
		return nil, fmt.Errorf("new bot: nil api")
	}
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("new bot: %w", err)
	}

	cfg := config{
		logger:         slog.Default(),
		rulesFile:      defaultRulesFile,
		noticeTTL:      defaultNoticeTTL,
		pollTimeout:    defaultPollTimeout,
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, option := range options {
		option(&cfg)
	}

	b := &Bot{
		cfg:      cfg,
		api:      api,
		username: strings.TrimPrefix(username, "@"),
		deps:     deps,
	}
	b.commands = b.commandTable()

	return b, nil
}

// Run registers the command menu and handles updates until ctx is done.
// Every update runs in its own goroutine so /stop reaches running jobs.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.RegisterCommands(); err != nil {
		b.cfg.logger.WarnContext(ctx, "register command menu failed", "error", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.cfg.pollTimeout
	updates := b.api.GetUpdatesChan(updateConfig)
	b.cfg.logger.InfoContext(ctx, "bot api polling started", "username", b.username)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.cfg.logger.InfoContext(ctx, "bot api polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		handlerCtx := ctx
		if b.cfg.handlerTimeout > 0 {
			var cancel context.CancelFunc
			handlerCtx, cancel = context.WithTimeout(ctx, b.cfg.handlerTimeout)
			defer cancel()
		}

		err := runSafely(fmt.Sprintf("handle update %d", update.UpdateID), func() error {
			return b.HandleUpdate(handlerCtx, update)
		})
		if err != nil {
			b.cfg.logger.ErrorContext(ctx, "update handler failed", "update_id", update.UpdateID, "error", err)
		}
	}()
}

// runSafely executes fn and converts panics into returned errors tagged with scope.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}

// APILogger adapts slog to the Bot API library logger.
func APILogger(logger *slog.Logger) tgbotapi.BotLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return apiLogger{logger: logger.With("component", "telegram-bot-api")}
}

type apiLogger struct {
	logger *slog.Logger
}

func (l apiLogger) Println(v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l apiLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
