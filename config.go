package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	defaultDataDir = "data"

	defaultScoresURL   = "http://nuh.pet/top.json"
	defaultMessagesURL = "http://nuh.pet/users"
	defaultTotalURL    = "http://nuh.pet/total.json"

	discordTokenEnv = "NUHBOT_DISCORD_TOKEN"
)

type Config struct {
	DataDir string

	// CommandPrefix triggers chat commands, e.g. "?top".
	CommandPrefix string
	// DiscordServerID optionally restricts the bot to a single guild.
	DiscordServerID string
	// DiscordBotToken is loaded from secrets.toml or the environment only.
	DiscordBotToken string

	ScoresURL   string
	MessagesURL string
	TotalURL    string

	RefreshInterval  time.Duration
	FetchTimeout     time.Duration
	FetchConcurrency int
	MaxPayloadBytes  int64
	UserAgent        string

	StatusDwell time.Duration

	CommandRatePerMinute int
	CommandBurst         int

	// MetricsListen is the address for /metrics and /healthz; empty disables.
	MetricsListen string

	BackblazeBackupEnabled  bool
	BackblazeBucket         string
	BackblazePrefix         string
	BackblazeBackupInterval time.Duration
	BackblazeAccountID      string
	BackblazeApplicationKey string
}

type fileConfig struct {
	DataDir   string              `toml:"data_dir"`
	Discord   discordFileConfig   `toml:"discord"`
	Sources   sourcesFileConfig   `toml:"sources"`
	Fetch     fetchFileConfig     `toml:"fetch"`
	Status    statusFileConfig    `toml:"status"`
	Commands  commandsFileConfig  `toml:"commands"`
	Metrics   metricsFileConfig   `toml:"metrics"`
	Backblaze backblazeFileConfig `toml:"backblaze"`
}

type discordFileConfig struct {
	CommandPrefix string `toml:"command_prefix"`
	ServerID      string `toml:"server_id"`
}

type sourcesFileConfig struct {
	ScoresURL   string `toml:"scores_url"`
	MessagesURL string `toml:"messages_url"`
	TotalURL    string `toml:"total_url"`
}

type fetchFileConfig struct {
	RefreshIntervalSeconds *int   `toml:"refresh_interval_seconds"`
	TimeoutSeconds         *int   `toml:"timeout_seconds"`
	Concurrency            *int   `toml:"concurrency"`
	MaxPayloadBytes        *int64 `toml:"max_payload_bytes"`
	UserAgent              string `toml:"user_agent"`
}

type statusFileConfig struct {
	DwellSeconds *int `toml:"dwell_seconds"`
}

type commandsFileConfig struct {
	RatePerMinute *int `toml:"rate_per_minute"`
	Burst         *int `toml:"burst"`
}

type metricsFileConfig struct {
	Listen string `toml:"listen"`
}

type backblazeFileConfig struct {
	Enabled         *bool  `toml:"enabled"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	IntervalSeconds *int   `toml:"interval_seconds"`
}

// secretsConfig holds the values that must stay out of config.toml.
type secretsConfig struct {
	DiscordBotToken         string `toml:"discord_bot_token"`
	BackblazeAccountID      string `toml:"backblaze_account_id"`
	BackblazeApplicationKey string `toml:"backblaze_application_key"`
}

// defaultConfig is the base for both runtime loading and example generation.
func defaultConfig() Config {
	return Config{
		DataDir:                 defaultDataDir,
		CommandPrefix:           defaultCommandPrefix,
		ScoresURL:               defaultScoresURL,
		MessagesURL:             defaultMessagesURL,
		TotalURL:                defaultTotalURL,
		RefreshInterval:         defaultRefreshInterval,
		FetchTimeout:            defaultFetchTimeout,
		FetchConcurrency:        defaultFetchConcurrency,
		MaxPayloadBytes:         defaultMaxPayloadBytes,
		UserAgent:               defaultUserAgent,
		StatusDwell:             defaultStatusDwell,
		CommandRatePerMinute:    defaultCommandRatePerMinute,
		CommandBurst:            defaultCommandBurst,
		BackblazeBackupInterval: defaultBackblazeBackupInterval,
	}
}

// loadConfig reads configPath (writing defaults there when it does not
// exist) and overlays secrets. It returns the secrets path actually used.
func loadConfig(configPath, secretsPath string) (Config, string, error) {
	cfg := defaultConfig()
	if configPath == "" {
		configPath = filepath.Join(defaultDataDir, "config.toml")
	}

	fc, ok, err := loadConfigFile(configPath)
	if err != nil {
		return Config{}, "", err
	}
	if ok {
		applyFileConfig(&cfg, *fc)
	} else {
		if err := rewriteConfigFile(configPath, cfg); err != nil {
			return Config{}, "", fmt.Errorf("write default config: %w", err)
		}
		logger.Info("created default config file", "path", configPath)
	}

	if secretsPath == "" {
		secretsPath = filepath.Join(cfg.DataDir, "secrets.toml")
	}
	sc, ok, err := loadSecretsFile(secretsPath)
	if err != nil {
		return Config{}, "", err
	}
	if ok {
		applySecretsConfig(&cfg, *sc)
	}
	if token := strings.TrimSpace(os.Getenv(discordTokenEnv)); token != "" {
		cfg.DiscordBotToken = token
	}
	return cfg, secretsPath, nil
}

func loadConfigFile(path string) (*fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, true, nil
}

func loadSecretsFile(path string) (*secretsConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	var sc secretsConfig
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sc, true, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if v := strings.TrimSpace(fc.DataDir); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(fc.Discord.CommandPrefix); v != "" {
		cfg.CommandPrefix = v
	}
	if v := strings.TrimSpace(fc.Discord.ServerID); v != "" {
		cfg.DiscordServerID = v
	}

	if v := strings.TrimSpace(fc.Sources.ScoresURL); v != "" {
		cfg.ScoresURL = v
	}
	if v := strings.TrimSpace(fc.Sources.MessagesURL); v != "" {
		cfg.MessagesURL = v
	}
	if v := strings.TrimSpace(fc.Sources.TotalURL); v != "" {
		cfg.TotalURL = v
	}

	if fc.Fetch.RefreshIntervalSeconds != nil {
		cfg.RefreshInterval = time.Duration(*fc.Fetch.RefreshIntervalSeconds) * time.Second
	}
	if fc.Fetch.TimeoutSeconds != nil {
		cfg.FetchTimeout = time.Duration(*fc.Fetch.TimeoutSeconds) * time.Second
	}
	if fc.Fetch.Concurrency != nil {
		cfg.FetchConcurrency = *fc.Fetch.Concurrency
	}
	if fc.Fetch.MaxPayloadBytes != nil {
		cfg.MaxPayloadBytes = *fc.Fetch.MaxPayloadBytes
	}
	if v := strings.TrimSpace(fc.Fetch.UserAgent); v != "" {
		cfg.UserAgent = v
	}

	if fc.Status.DwellSeconds != nil {
		cfg.StatusDwell = time.Duration(*fc.Status.DwellSeconds) * time.Second
	}
	if fc.Commands.RatePerMinute != nil {
		cfg.CommandRatePerMinute = *fc.Commands.RatePerMinute
	}
	if fc.Commands.Burst != nil {
		cfg.CommandBurst = *fc.Commands.Burst
	}
	cfg.MetricsListen = strings.TrimSpace(fc.Metrics.Listen)

	if fc.Backblaze.Enabled != nil {
		cfg.BackblazeBackupEnabled = *fc.Backblaze.Enabled
	}
	if v := strings.TrimSpace(fc.Backblaze.Bucket); v != "" {
		cfg.BackblazeBucket = v
	}
	if v := strings.TrimSpace(fc.Backblaze.Prefix); v != "" {
		cfg.BackblazePrefix = v
	}
	if fc.Backblaze.IntervalSeconds != nil {
		cfg.BackblazeBackupInterval = time.Duration(*fc.Backblaze.IntervalSeconds) * time.Second
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if v := strings.TrimSpace(sc.DiscordBotToken); v != "" {
		cfg.DiscordBotToken = v
	}
	if v := strings.TrimSpace(sc.BackblazeAccountID); v != "" {
		cfg.BackblazeAccountID = v
	}
	if v := strings.TrimSpace(sc.BackblazeApplicationKey); v != "" {
		cfg.BackblazeApplicationKey = v
	}
}

// buildFileConfig is the inverse of applyFileConfig; secrets are never
// written back.
func buildFileConfig(cfg Config) fileConfig {
	refresh := int(cfg.RefreshInterval / time.Second)
	timeout := int(cfg.FetchTimeout / time.Second)
	concurrency := cfg.FetchConcurrency
	maxBytes := cfg.MaxPayloadBytes
	dwell := int(cfg.StatusDwell / time.Second)
	ratePerMinute := cfg.CommandRatePerMinute
	burst := cfg.CommandBurst
	backupEnabled := cfg.BackblazeBackupEnabled
	backupInterval := int(cfg.BackblazeBackupInterval / time.Second)

	return fileConfig{
		DataDir: cfg.DataDir,
		Discord: discordFileConfig{
			CommandPrefix: cfg.CommandPrefix,
			ServerID:      cfg.DiscordServerID,
		},
		Sources: sourcesFileConfig{
			ScoresURL:   cfg.ScoresURL,
			MessagesURL: cfg.MessagesURL,
			TotalURL:    cfg.TotalURL,
		},
		Fetch: fetchFileConfig{
			RefreshIntervalSeconds: &refresh,
			TimeoutSeconds:         &timeout,
			Concurrency:            &concurrency,
			MaxPayloadBytes:        &maxBytes,
			UserAgent:              cfg.UserAgent,
		},
		Status:   statusFileConfig{DwellSeconds: &dwell},
		Commands: commandsFileConfig{RatePerMinute: &ratePerMinute, Burst: &burst},
		Metrics:  metricsFileConfig{Listen: cfg.MetricsListen},
		Backblaze: backblazeFileConfig{
			Enabled:         &backupEnabled,
			Bucket:          cfg.BackblazeBucket,
			Prefix:          cfg.BackblazePrefix,
			IntervalSeconds: &backupInterval,
		},
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DiscordBotToken) == "" {
		return fmt.Errorf("discord_bot_token is required (secrets.toml or %s)", discordTokenEnv)
	}
	if strings.TrimSpace(cfg.CommandPrefix) == "" {
		return fmt.Errorf("discord.command_prefix must not be empty")
	}
	for name, raw := range map[string]string{
		"sources.scores_url":   cfg.ScoresURL,
		"sources.messages_url": cfg.MessagesURL,
		"sources.total_url":    cfg.TotalURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
		}
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("fetch.refresh_interval_seconds must be > 0")
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if cfg.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if cfg.MaxPayloadBytes <= 0 {
		return fmt.Errorf("fetch.max_payload_bytes must be > 0")
	}
	if cfg.StatusDwell <= 0 {
		return fmt.Errorf("status.dwell_seconds must be > 0")
	}
	if cfg.CommandRatePerMinute < 0 || cfg.CommandBurst < 0 {
		return fmt.Errorf("commands.rate_per_minute and commands.burst must be >= 0")
	}
	if cfg.BackblazeBackupEnabled && !backblazeConfigured(cfg) {
		return fmt.Errorf("backblaze.enabled requires bucket and credentials in secrets.toml")
	}
	return nil
}

func backblazeConfigured(cfg Config) bool {
	if !cfg.BackblazeBackupEnabled {
		return false
	}
	return strings.TrimSpace(cfg.BackblazeBucket) != "" &&
		strings.TrimSpace(cfg.BackblazeAccountID) != "" &&
		strings.TrimSpace(cfg.BackblazeApplicationKey) != ""
}
