package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"relaybot/internal/batch"
	"relaybot/internal/bot"
	"relaybot/internal/driver/telegram"
	"relaybot/internal/linkstore"
	"relaybot/internal/pipeline"
	"relaybot/internal/session"
	"relaybot/internal/textrules"
	"relaybot/pkg/relay"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	envConfigFile           = "RELAYBOT_CONFIG_FILE"
	defaultConfigFilePath   = "config/bot.json"
	alternateConfigFilePath = "bin/config/bot.json"
	defaultRulesFile        = "config.json"
	defaultRandomDelay      = 2 * time.Second
	defaultProgressEvery    = 10
)

type appConfig struct {
	logLevel slog.Level
	logFile  logFileConfig

	telegram telegram.Config
	redis    *session.RedisConfig

	rulesFile     string
	watchRules    bool
	linksDir      string
	randomDelay   time.Duration
	progressEvery int

	groupWindow         int
	captionLimit        int
	retry               pipeline.RetryPolicy
	stripUserMarkers    bool
	stripChannelMarkers bool
}

type fileConfig struct {
	LogLevel string             `json:"log_level"`
	LogFile  *fileLogConfig     `json:"log_file"`
	Telegram telegram.Config    `json:"telegram"`
	Redis    *fileRedisConfig   `json:"redis"`
	Rules    fileRulesConfig    `json:"rules"`
	Links    fileLinksConfig    `json:"links"`
	Batch    fileBatchConfig    `json:"batch"`
	Pipeline filePipelineConfig `json:"pipeline"`
}

type fileLogConfig struct {
	Path       string `json:"path"`
	MaxSizeMB  *int   `json:"max_size_mb"`
	MaxBackups *int   `json:"max_backups"`
	MaxAgeDays *int   `json:"max_age_days"`
	Compress   *bool  `json:"compress"`
}

type fileRedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
	TTL      string `json:"ttl"`
}

type fileRulesConfig struct {
	File  string `json:"file"`
	Watch *bool  `json:"watch"`
}

type fileLinksConfig struct {
	Dir string `json:"dir"`
}

type fileBatchConfig struct {
	RandomDelay   string `json:"random_delay"`
	ProgressEvery *int   `json:"progress_every"`
}

type filePipelineConfig struct {
	GroupWindow         *int   `json:"group_window"`
	CaptionLimit        *int   `json:"caption_limit"`
	RetryAttempts       *int   `json:"retry_attempts"`
	RetryPadding        string `json:"retry_padding"`
	StripUserMarkers    *bool  `json:"strip_user_markers"`
	StripChannelMarkers *bool  `json:"strip_channel_markers"`
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := loadConfig(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg.logLevel, cfg.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)
	if err := tgbotapi.SetLogger(bot.APILogger(logger)); err != nil {
		return fmt.Errorf("set bot api logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rules := textrules.New(textrules.WithLogger(logger))
	found, err := rules.Load(cfg.rulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	logger.Info("text rules loaded", "path", cfg.rulesFile, "found", found)

	sessions, closeSessions, err := buildSessionStore(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	api, err := tgbotapi.NewBotAPI(cfg.telegram.BotToken)
	if err != nil {
		return fmt.Errorf("connect bot api: %w", err)
	}
	runtime, err := telegram.NewRuntime(cfg.telegram, logger)
	if err != nil {
		return fmt.Errorf("new telegram runtime: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if cfg.watchRules {
		group.Go(func() error {
			return rules.Watch(groupCtx, cfg.rulesFile)
		})
	}
	group.Go(func() error {
		return runtime.Run(groupCtx, func(ctx context.Context, clients telegram.Clients) error {
			front, err := buildBot(logger, cfg, api, clients, rules, sessions)
			if err != nil {
				return err
			}
			return front.Run(ctx)
		})
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run bot: %w", err)
	}
	logger.Info("bot stopped")

	return nil
}

func buildSessionStore(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
) (relay.SessionStore, func(), error) {
	if cfg.redis == nil {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), func() {}, nil
	}

	store, err := session.NewRedisStore(ctx, logger, *cfg.redis)
	if err != nil {
		return nil, nil, fmt.Errorf("new redis session store: %w", err)
	}

	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close redis session store failed", "error", err)
		}
	}, nil
}

func buildBot(
	logger *slog.Logger,
	cfg appConfig,
	api *tgbotapi.BotAPI,
	clients telegram.Clients,
	rules *textrules.RuleSet,
	sessions relay.SessionStore,
) (*bot.Bot, error) {
	dispatcher, err := pipeline.NewDispatcher(clients.Messaging, rules, sessions,
		pipeline.WithLogger(logger),
		pipeline.WithGroupWindow(cfg.groupWindow),
		pipeline.WithCaptionLimit(cfg.captionLimit),
		pipeline.WithMarkerStripping(cfg.stripUserMarkers, cfg.stripChannelMarkers),
		pipeline.WithRetryPolicy(cfg.retry),
	)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	links := linkstore.New(cfg.linksDir)
	options := []batch.Option{
		batch.WithLogger(logger),
		batch.WithLinkStore(links),
		batch.WithCloneDelay(rules),
		batch.WithRandomDelay(cfg.randomDelay),
		batch.WithProgressEvery(cfg.progressEvery),
	}
	if clients.History != nil {
		options = append(options, batch.WithHistoryReader(clients.History))
	}
	runner, err := batch.NewRunner(dispatcher, sessions, options...)
	if err != nil {
		return nil, fmt.Errorf("build batch runner: %w", err)
	}

	front, err := bot.New(api, api.Self.UserName, bot.Dependencies{
		Forwarder: dispatcher,
		Jobs:      runner,
		Links:     links,
		Rules:     rules,
		Sessions:  sessions,
		Deleter:   clients.Messaging,
	},
		bot.WithLogger(logger),
		bot.WithRulesFile(cfg.rulesFile),
	)
	if err != nil {
		return nil, fmt.Errorf("build bot: %w", err)
	}

	return front, nil
}

func loadConfig(lookupEnv func(string) (string, bool)) (appConfig, error) {
	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath(lookupEnv)
	if err != nil {
		return appConfig{}, err
	}

	if configFile != "" {
		if err := applyConfigFile(&cfg, configFile); err != nil {
			return appConfig{}, err
		}
	}
	if err := applyEnv(&cfg, lookupEnv); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(cfg); err != nil {
		if configFile == "" {
			return appConfig{}, fmt.Errorf("validate config: %w", err)
		}
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

// resolveConfigFilePath returns the config file to read, or "" when none of
// the default candidates exist and credentials must come from the environment.
func resolveConfigFilePath(lookupEnv func(string) (string, bool)) (string, error) {
	if configFile, ok := lookupEnv(envConfigFile); ok && strings.TrimSpace(configFile) != "" {
		return strings.TrimSpace(configFile), nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,
		logFile:  defaultLogFileConfig(),

		rulesFile:     defaultRulesFile,
		watchRules:    true,
		linksDir:      linkstore.DefaultDir,
		randomDelay:   defaultRandomDelay,
		progressEvery: defaultProgressEvery,

		groupWindow:  pipeline.DefaultGroupWindow,
		captionLimit: pipeline.DefaultCaptionLimit,
		retry: pipeline.RetryPolicy{
			MaxAttempts: pipeline.DefaultMaxAttempts,
			Padding:     pipeline.DefaultRetryPadding,
		},
		stripChannelMarkers: true,
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}
	if parsed.LogFile != nil {
		if err := applyLogFileConfig(&cfg.logFile, *parsed.LogFile); err != nil {
			return err
		}
	}

	cfg.telegram = parsed.Telegram

	if parsed.Redis != nil {
		redisConfig, err := parseRedisConfig(*parsed.Redis)
		if err != nil {
			return err
		}
		cfg.redis = &redisConfig
	}

	if file := strings.TrimSpace(parsed.Rules.File); file != "" {
		cfg.rulesFile = file
	}
	if parsed.Rules.Watch != nil {
		cfg.watchRules = *parsed.Rules.Watch
	}
	if dir := strings.TrimSpace(parsed.Links.Dir); dir != "" {
		cfg.linksDir = dir
	}

	if rawDelay := strings.TrimSpace(parsed.Batch.RandomDelay); rawDelay != "" {
		delay, err := time.ParseDuration(rawDelay)
		if err != nil {
			return fmt.Errorf("parse batch.random_delay: %w", err)
		}
		if delay < 0 {
			return fmt.Errorf("parse batch.random_delay: must be >= 0")
		}
		cfg.randomDelay = delay
	}
	if parsed.Batch.ProgressEvery != nil {
		if *parsed.Batch.ProgressEvery <= 0 {
			return fmt.Errorf("parse batch.progress_every: must be > 0")
		}
		cfg.progressEvery = *parsed.Batch.ProgressEvery
	}

	return applyPipelineConfig(cfg, parsed.Pipeline)
}

func applyPipelineConfig(cfg *appConfig, parsed filePipelineConfig) error {
	if parsed.GroupWindow != nil {
		if *parsed.GroupWindow <= 0 {
			return fmt.Errorf("parse pipeline.group_window: must be > 0")
		}
		cfg.groupWindow = *parsed.GroupWindow
	}
	if parsed.CaptionLimit != nil {
		if *parsed.CaptionLimit <= 0 {
			return fmt.Errorf("parse pipeline.caption_limit: must be > 0")
		}
		cfg.captionLimit = *parsed.CaptionLimit
	}
	if parsed.RetryAttempts != nil {
		if *parsed.RetryAttempts <= 0 {
			return fmt.Errorf("parse pipeline.retry_attempts: must be > 0")
		}
		cfg.retry.MaxAttempts = *parsed.RetryAttempts
	}
	if rawPadding := strings.TrimSpace(parsed.RetryPadding); rawPadding != "" {
		padding, err := time.ParseDuration(rawPadding)
		if err != nil {
			return fmt.Errorf("parse pipeline.retry_padding: %w", err)
		}
		if padding < 0 {
			return fmt.Errorf("parse pipeline.retry_padding: must be >= 0")
		}
		cfg.retry.Padding = padding
	}
	if parsed.StripUserMarkers != nil {
		cfg.stripUserMarkers = *parsed.StripUserMarkers
	}
	if parsed.StripChannelMarkers != nil {
		cfg.stripChannelMarkers = *parsed.StripChannelMarkers
	}

	return nil
}

func parseRedisConfig(raw fileRedisConfig) (session.RedisConfig, error) {
	cfg := session.RedisConfig{
		Addr:     strings.TrimSpace(raw.Addr),
		Password: raw.Password,
		DB:       raw.DB,
		Prefix:   strings.TrimSpace(raw.Prefix),
	}
	if cfg.Addr == "" {
		return session.RedisConfig{}, fmt.Errorf("parse redis.addr: required")
	}
	if cfg.DB < 0 {
		return session.RedisConfig{}, fmt.Errorf("parse redis.db: must be >= 0")
	}
	if rawTTL := strings.TrimSpace(raw.TTL); rawTTL != "" {
		ttl, err := time.ParseDuration(rawTTL)
		if err != nil {
			return session.RedisConfig{}, fmt.Errorf("parse redis.ttl: %w", err)
		}
		if ttl <= 0 {
			return session.RedisConfig{}, fmt.Errorf("parse redis.ttl: must be > 0")
		}
		cfg.TTL = ttl
	}

	return cfg, nil
}

// envOverride binds one credential to its environment variable names, the
// first set name winning.
type envOverride struct {
	names []string
	apply func(cfg *appConfig, value string) error
}

var envOverrides = []envOverride{
	{
		names: []string{"BOT_TOKEN", "TG_BOT_TOKEN"},
		apply: func(cfg *appConfig, value string) error {
			cfg.telegram.BotToken = value
			return nil
		},
	},
	{
		names: []string{"API_ID", "TG_API_ID"},
		apply: func(cfg *appConfig, value string) error {
			appID, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("parse API_ID: %w", err)
			}
			cfg.telegram.AppID = appID
			return nil
		},
	},
	{
		names: []string{"API_HASH", "TG_API_HASH"},
		apply: func(cfg *appConfig, value string) error {
			cfg.telegram.AppHash = value
			return nil
		},
	},
	{
		names: []string{"PHONE", "TG_PHONE"},
		apply: func(cfg *appConfig, value string) error {
			cfg.telegram.Phone = value
			return nil
		},
	},
	{
		names: []string{"PASSWORD", "TG_PASSWORD"},
		apply: func(cfg *appConfig, value string) error {
			cfg.telegram.Password = value
			return nil
		},
	},
	{
		names: []string{"REDIS_ADDR"},
		apply: func(cfg *appConfig, value string) error {
			if cfg.redis == nil {
				cfg.redis = &session.RedisConfig{}
			}
			cfg.redis.Addr = value
			return nil
		},
	},
	{
		names: []string{"REDIS_PASSWORD"},
		apply: func(cfg *appConfig, value string) error {
			if cfg.redis != nil {
				cfg.redis.Password = value
			}
			return nil
		},
	},
}

// applyEnv lets environment variables override credentials from the file.
func applyEnv(cfg *appConfig, lookupEnv func(string) (string, bool)) error {
	for _, override := range envOverrides {
		for _, name := range override.names {
			value, ok := lookupEnv(name)
			value = strings.TrimSpace(value)
			if !ok || value == "" {
				continue
			}
			if err := override.apply(cfg, value); err != nil {
				return err
			}
			break
		}
	}

	return nil
}

func validateAppConfig(cfg appConfig) error {
	switch {
	case cfg.telegram.AppID <= 0:
		return fmt.Errorf("telegram.app_id is required (or set API_ID)")
	case strings.TrimSpace(cfg.telegram.AppHash) == "":
		return fmt.Errorf("telegram.app_hash is required (or set API_HASH)")
	case strings.TrimSpace(cfg.telegram.BotToken) == "":
		return fmt.Errorf("telegram.bot_token is required (or set BOT_TOKEN)")
	}
	if cfg.redis != nil && cfg.redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
