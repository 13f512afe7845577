package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	debugpkg "runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Capture unexpected panics to panic.log with a stack trace.
	defer func() {
		if r := recover(); r != nil {
			if f, err := os.OpenFile("panic.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				fmt.Fprintf(f, "[%s] panic: %v\n%s\n\n", time.Now().UTC().Format(time.RFC3339), r, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	dataDirFlag := flag.String("data-dir", "", "override data directory (default \"data\")")
	configFlag := flag.String("config", "", "path to config.toml (default <data-dir>/config.toml)")
	secretsFlag := flag.String("secrets", "", "path to secrets.toml (default <data-dir>/secrets.toml)")
	logDirFlag := flag.String("log-dir", "", "override log directory")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	rewriteConfigFlag := flag.Bool("rewrite-config", false, "rewrite config on startup")
	backupOnBootFlag := flag.Bool("backup-on-boot", false, "run one offsite backup at startup (best-effort)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir := strings.TrimSpace(*dataDirFlag)
	cfgPath := strings.TrimSpace(*configFlag)
	if cfgPath == "" {
		base := dataDir
		if base == "" {
			base = defaultDataDir
		}
		cfgPath = filepath.Join(base, "config.toml")
	}
	secretsPath := strings.TrimSpace(*secretsFlag)
	if secretsPath == "" && dataDir != "" {
		secretsPath = filepath.Join(dataDir, "secrets.toml")
	}
	cfg, secretsPath, err := loadConfig(cfgPath, secretsPath)
	if err != nil {
		fatal("config", err, "path", cfgPath)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if *rewriteConfigFlag {
		if err := rewriteConfigFile(cfgPath, cfg); err != nil {
			logger.Warn("rewrite config file", "path", cfgPath, "error", err)
		}
	}
	if err := validateConfig(cfg); err != nil {
		fatal("config", err, "path", cfgPath, "secrets", secretsPath)
	}

	logPath, err := initNamedLogOutput(cfg, strings.TrimSpace(*logDirFlag), "bot.log")
	if err != nil {
		fatal("log file", err)
	}
	debugLogPath := ""
	if *debugFlag {
		logger.setLevel(logLevelDebug)
		debugLogPath, err = initNamedLogOutput(cfg, strings.TrimSpace(*logDirFlag), "debug.log")
		if err != nil {
			fatal("debug log file", err)
		}
	}
	configureFileLogging(logPath, debugLogPath, *stdoutLogFlag)
	defer logger.Stop()
	ensureExampleFiles(cfg.DataDir)

	dbPath := stateDBPath(cfg.DataDir)
	db, err := openStateDB(dbPath)
	if err != nil {
		fatal("open state database", err, "path", dbPath)
	}
	defer db.Close()

	store := newCacheStore()
	persister := newCachePersister(db)
	restoreSnapshot(ctx, persister, store)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := newBotMetrics(reg)
	if snap := store.read(); snap != nil {
		metrics.SetRefreshedAt(snap.refreshedAt)
	}

	f := newFetcher(cfg, store, newHTTPGetter(cfg.MaxPayloadBytes, cfg.UserAgent), persister, metrics)
	loop := newFetchLoop(f, cfg.RefreshInterval, metrics)
	queries := newQueryService(store)
	limiter := newCommandRateLimiter(cfg.CommandRatePerMinute, cfg.CommandBurst)
	dispatcher := newCommandDispatcher(queries, cfg.CommandPrefix, limiter, metrics)
	go limiter.janitor(ctx)

	startMetricsServer(ctx, cfg.MetricsListen, newMetricsRouter(reg, queries))

	backup, err := newBackblazeBackupService(ctx, cfg, dbPath)
	if err != nil {
		logger.Warn("backblaze backup disabled", "error", err)
	}
	if backup != nil {
		if *backupOnBootFlag {
			backup.run(ctx)
		}
		backup.start(ctx)
	}

	bot := newDiscordBot(cfg, dispatcher)
	onReady := func(ctx context.Context, s *discordgo.Session) {
		loop.start(ctx)
		go newStatusRotator(queries, s, cfg.CommandPrefix, cfg.StatusDwell).run(ctx)
	}
	if err := bot.start(ctx, onReady); err != nil {
		fatal("discord", err)
	}

	logger.Info("nuhbot running",
		"data_dir", cfg.DataDir,
		"refresh_every", humanDuration(cfg.RefreshInterval),
		"status_dwell", humanDuration(cfg.StatusDwell))

	<-ctx.Done()
	logger.Info("shutting down")
	bot.close()
	loop.wait()
}

func initNamedLogOutput(cfg Config, logDirOverride, baseName string) (string, error) {
	logDir := logDirOverride
	if logDir == "" {
		dir := cfg.DataDir
		if dir == "" {
			dir = defaultDataDir
		}
		logDir = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(logDir, baseName), nil
}
