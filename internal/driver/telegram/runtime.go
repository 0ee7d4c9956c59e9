package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"golang.org/x/term"
)

const (
	defaultBotSessionFile  = ".cache/telegram/bot_session.json"
	defaultUserSessionFile = ".cache/telegram/user_session.json"
	defaultAuthTimeout     = 3 * time.Minute
)

// Config configures the MTProto bot client and the optional user client.
//
// The user client is enabled when Phone is set; it reads channel history
// that bots cannot access.
type Config struct {
	AppID           int    `json:"app_id"`
	AppHash         string `json:"app_hash"`
	BotToken        string `json:"bot_token"`
	BotSessionFile  string `json:"bot_session_file"`
	UserSessionFile string `json:"user_session_file"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	Code            string `json:"code"`
	RPCTimeout      string `json:"rpc_timeout"`
	AuthTimeout     string `json:"auth_timeout"`
}

type parsedConfig struct {
	appID           int
	appHash         string
	botToken        string
	botSessionFile  string
	userSessionFile string
	phone           string
	password        string
	code            string
	rpcTimeout      time.Duration
	authTimeout     time.Duration
}

func (c Config) parse() (parsedConfig, error) {
	cfg := parsedConfig{
		appID:           c.AppID,
		appHash:         strings.TrimSpace(c.AppHash),
		botToken:        strings.TrimSpace(c.BotToken),
		botSessionFile:  strings.TrimSpace(c.BotSessionFile),
		userSessionFile: strings.TrimSpace(c.UserSessionFile),
		phone:           strings.TrimSpace(c.Phone),
		password:        strings.TrimSpace(c.Password),
		code:            strings.TrimSpace(c.Code),
		rpcTimeout:      defaultRPCTimeout,
		authTimeout:     defaultAuthTimeout,
	}
	if cfg.botSessionFile == "" {
		cfg.botSessionFile = defaultBotSessionFile
	}
	if cfg.userSessionFile == "" {
		cfg.userSessionFile = defaultUserSessionFile
	}

	if timeout := strings.TrimSpace(c.RPCTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedConfig{}, fmt.Errorf("parse rpc_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedConfig{}, fmt.Errorf("parse rpc_timeout: must be > 0")
		}
		cfg.rpcTimeout = parsedTimeout
	}
	if timeout := strings.TrimSpace(c.AuthTimeout); timeout != "" {
		parsedTimeout, err := time.ParseDuration(timeout)
		if err != nil {
			return parsedConfig{}, fmt.Errorf("parse auth_timeout: %w", err)
		}
		if parsedTimeout <= 0 {
			return parsedConfig{}, fmt.Errorf("parse auth_timeout: must be > 0")
		}
		cfg.authTimeout = parsedTimeout
	}

	if cfg.appID <= 0 {
		return parsedConfig{}, fmt.Errorf("app_id must be > 0")
	}
	if cfg.appHash == "" {
		return parsedConfig{}, fmt.Errorf("app_hash is required")
	}
	if cfg.botToken == "" {
		return parsedConfig{}, fmt.Errorf("bot_token is required")
	}

	return cfg, nil
}

// Clients are the ready-to-use adapters of an authorized runtime.
type Clients struct {
	// Messaging fetches, sends and deletes messages as the bot.
	Messaging *Client
	// History reads channel history as the user; nil without a user session.
	History *Client
}

// Runtime owns the MTProto client lifecycles and their peer caches.
//
// Access hashes are per account, so the bot and user clients never share a
// cache.
type Runtime struct {
	cfg       parsedConfig
	logger    *slog.Logger
	botPeers  *PeerCache
	userPeers *PeerCache
	bot       *gotdtelegram.Client
	user      *gotdtelegram.Client
}

// NewRuntime builds the bot client and, when a phone is configured, the user
// client. Nothing connects until Run.
func NewRuntime(config Config, logger *slog.Logger) (*Runtime, error) {
	cfg, err := config.parse()
	if err != nil {
		return nil, fmt.Errorf("parse telegram config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	botPeers := NewPeerCache()
	bot, err := newGotdClient(cfg, cfg.botSessionFile, botPeers)
	if err != nil {
		return nil, fmt.Errorf("new bot client: %w", err)
	}

	runtime := &Runtime{
		cfg:       cfg,
		logger:    logger,
		botPeers:  botPeers,
		userPeers: NewPeerCache(),
		bot:       bot,
	}
	if cfg.phone != "" {
		user, err := newGotdClient(cfg, cfg.userSessionFile, runtime.userPeers)
		if err != nil {
			return nil, fmt.Errorf("new user client: %w", err)
		}
		runtime.user = user
	}

	return runtime, nil
}

func newGotdClient(cfg parsedConfig, sessionFile string, peers *PeerCache) (*gotdtelegram.Client, error) {
	storage, err := newGotdSessionStorage(sessionFile)
	if err != nil {
		return nil, fmt.Errorf("new gotd session storage: %w", err)
	}

	return gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  peerRecorder{peers: peers},
		SessionStorage: storage,
	}), nil
}

// Run connects and authorizes the clients, then calls fn with their adapters.
// The clients stay connected until fn returns.
func (r *Runtime) Run(ctx context.Context, fn func(ctx context.Context, clients Clients) error) error {
	if fn == nil {
		return fmt.Errorf("run telegram runtime: nil callback")
	}

	err := r.bot.Run(ctx, func(botCtx context.Context) error {
		if err := authenticateBot(botCtx, r.logger, r.bot, r.cfg); err != nil {
			return fmt.Errorf("authenticate bot: %w", err)
		}

		messaging, err := NewClient(r.bot.API(), r.botPeers,
			WithRPCTimeout(r.cfg.rpcTimeout),
			WithClientLogger(r.logger),
			WithClientName("bot"),
		)
		if err != nil {
			return err
		}
		if r.user == nil {
			r.logger.Warn("telegram user session not configured, history features disabled")
			return fn(botCtx, Clients{Messaging: messaging})
		}

		return r.user.Run(botCtx, func(userCtx context.Context) error {
			if err := authenticateUser(userCtx, r.logger, r.user, r.cfg); err != nil {
				return fmt.Errorf("authenticate user: %w", err)
			}

			history, err := NewClient(r.user.API(), r.userPeers,
				WithRPCTimeout(r.cfg.rpcTimeout),
				WithClientLogger(r.logger),
				WithClientName("user"),
			)
			if err != nil {
				return err
			}

			return fn(userCtx, Clients{Messaging: messaging, History: history})
		})
	})
	if err != nil {
		return fmt.Errorf("run telegram runtime: %w", err)
	}

	return nil
}

// peerRecorder caches the users and channels attached to incoming updates,
// so destinations the bot has seen resolve without extra calls.
type peerRecorder struct {
	peers *PeerCache
}

func (r peerRecorder) Handle(_ context.Context, updates tg.UpdatesClass) error {
	switch typed := updates.(type) {
	case *tg.Updates:
		r.peers.RememberUsers(typed.Users)
		r.peers.RememberChats(typed.Chats)
	case *tg.UpdatesCombined:
		r.peers.RememberUsers(typed.Users)
		r.peers.RememberChats(typed.Chats)
	}

	return nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

func authContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, timeout)
}

func authenticateBot(ctx context.Context, logger *slog.Logger, client *gotdtelegram.Client, cfg parsedConfig) error {
	authCtx, cancel := authContext(ctx, cfg.authTimeout)
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		logger.Info("telegram bot session restored from local storage", "session_file", cfg.botSessionFile)
		return nil
	}

	if _, err := client.Auth().Bot(authCtx, cfg.botToken); err != nil {
		return fmt.Errorf("bot login: %w", err)
	}
	logger.Info("telegram authorized with bot token", "session_file", cfg.botSessionFile)

	return nil
}

func authenticateUser(ctx context.Context, logger *slog.Logger, client *gotdtelegram.Client, cfg parsedConfig) error {
	authCtx, cancel := authContext(ctx, cfg.authTimeout)
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		logger.Info("telegram user session restored from local storage", "session_file", cfg.userSessionFile)
		return nil
	}

	codeAuthenticator := auth.CodeAuthenticatorFunc(func(_ context.Context, _ *tg.AuthSentCode) (string, error) {
		code, err := telegramAuthCode(cfg.code)
		if err != nil {
			return "", fmt.Errorf("resolve login code: %w", err)
		}
		return code, nil
	})

	flow := auth.NewFlow(promptingAuthenticator{
		UserAuthenticator: auth.CodeOnly(cfg.phone, codeAuthenticator),
		password:          cfg.password,
	}, auth.SendCodeOptions{})
	if err := client.Auth().IfNecessary(authCtx, flow); err != nil {
		return fmt.Errorf("user login: %w", err)
	}
	logger.Info("telegram authorized with user flow", "session_file", cfg.userSessionFile)

	return nil
}

// promptingAuthenticator supplies the two-step verification password from
// config or, when absent, from an interactive terminal prompt.
type promptingAuthenticator struct {
	auth.UserAuthenticator
	password string
}

func (a promptingAuthenticator) Password(_ context.Context) (string, error) {
	if a.password != "" {
		return a.password, nil
	}

	return promptPassword(os.Stdin, os.Stdout)
}

func promptPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("telegram password is empty and stdin is not a terminal")
	}

	fmt.Fprint(out, "Enter Telegram two-step verification password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("empty password")
	}

	return string(password), nil
}

func telegramAuthCode(configuredCode string) (string, error) {
	if code := strings.TrimSpace(configuredCode); code != "" {
		return code, nil
	}

	stdinInfo, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("read stdin status: %w", err)
	}
	if stdinInfo.Mode()&os.ModeCharDevice == 0 {
		return "", fmt.Errorf("telegram login code is empty and stdin is not interactive")
	}

	fmt.Fprint(os.Stdout, "Enter Telegram login code: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read login code: %w", err)
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("empty login code")
	}

	return code, nil
}
