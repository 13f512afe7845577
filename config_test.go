package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_WritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	secretsPath := filepath.Join(dir, "secrets.toml")
	t.Setenv(discordTokenEnv, "")

	cfg, usedSecrets, err := loadConfig(cfgPath, secretsPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if usedSecrets != secretsPath {
		t.Fatalf("secrets path = %q", usedSecrets)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	def := defaultConfig()
	if cfg.CommandPrefix != def.CommandPrefix || cfg.RefreshInterval != def.RefreshInterval || cfg.ScoresURL != def.ScoresURL {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.DiscordBotToken != "" {
		t.Fatalf("token should be empty without secrets")
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validate should require a token")
	}

	// The file written above must load back to the same values.
	again, _, err := loadConfig(cfgPath, secretsPath)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again != cfg {
		t.Fatalf("reloaded config differs:\n got %+v\nwant %+v", again, cfg)
	}
}

func TestLoadConfig_FileAndSecretsOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	secretsPath := filepath.Join(dir, "secrets.toml")
	t.Setenv(discordTokenEnv, "")

	writeFile(t, cfgPath, `
data_dir = "/var/lib/nuhbot"

[discord]
command_prefix = "!"
server_id = "1234"

[sources]
scores_url = "https://example.test/top.json"

[fetch]
refresh_interval_seconds = 60
timeout_seconds = 5
concurrency = 2

[status]
dwell_seconds = 15

[commands]
rate_per_minute = 0

[metrics]
listen = "127.0.0.1:9464"
`)
	writeFile(t, secretsPath, `discord_bot_token = "  abc.def  "`+"\n")

	cfg, _, err := loadConfig(cfgPath, secretsPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DataDir != "/var/lib/nuhbot" || cfg.CommandPrefix != "!" || cfg.DiscordServerID != "1234" {
		t.Fatalf("discord section not applied: %+v", cfg)
	}
	if cfg.ScoresURL != "https://example.test/top.json" || cfg.MessagesURL != defaultMessagesURL {
		t.Fatalf("sources = %q %q", cfg.ScoresURL, cfg.MessagesURL)
	}
	if cfg.RefreshInterval != time.Minute || cfg.FetchTimeout != 5*time.Second || cfg.FetchConcurrency != 2 {
		t.Fatalf("fetch = %v %v %d", cfg.RefreshInterval, cfg.FetchTimeout, cfg.FetchConcurrency)
	}
	if cfg.StatusDwell != 15*time.Second {
		t.Fatalf("dwell = %v", cfg.StatusDwell)
	}
	if cfg.CommandRatePerMinute != 0 || cfg.CommandBurst != defaultCommandBurst {
		t.Fatalf("commands = %d/%d", cfg.CommandRatePerMinute, cfg.CommandBurst)
	}
	if cfg.MetricsListen != "127.0.0.1:9464" {
		t.Fatalf("metrics = %q", cfg.MetricsListen)
	}
	if cfg.DiscordBotToken != "abc.def" {
		t.Fatalf("token = %q", cfg.DiscordBotToken)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfig_EnvTokenWins(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.toml")
	writeFile(t, secretsPath, `discord_bot_token = "from-file"`+"\n")
	t.Setenv(discordTokenEnv, "from-env")

	cfg, _, err := loadConfig(filepath.Join(dir, "config.toml"), secretsPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.DiscordBotToken != "from-env" {
		t.Fatalf("token = %q", cfg.DiscordBotToken)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	writeFile(t, cfgPath, "[discord\ncommand_prefix = ")
	if _, _, err := loadConfig(cfgPath, filepath.Join(dir, "secrets.toml")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := defaultConfig()
	valid.DiscordBotToken = "token"
	if err := validateConfig(valid); err != nil {
		t.Fatalf("default config with token should validate: %v", err)
	}

	tests := map[string]func(*Config){
		"empty prefix":    func(c *Config) { c.CommandPrefix = " " },
		"bad url scheme":  func(c *Config) { c.TotalURL = "ftp://nuh.pet/total.json" },
		"no host":         func(c *Config) { c.ScoresURL = "http://" },
		"zero interval":   func(c *Config) { c.RefreshInterval = 0 },
		"zero timeout":    func(c *Config) { c.FetchTimeout = 0 },
		"zero workers":    func(c *Config) { c.FetchConcurrency = 0 },
		"zero payload":    func(c *Config) { c.MaxPayloadBytes = 0 },
		"zero dwell":      func(c *Config) { c.StatusDwell = 0 },
		"negative burst":  func(c *Config) { c.CommandBurst = -1 },
		"b2 without keys": func(c *Config) {
			c.BackblazeBackupEnabled = true
			c.BackblazeBucket = "b"
		},
	}
	for name, mutate := range tests {
		cfg := valid
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestBackblazeConfigured(t *testing.T) {
	cfg := defaultConfig()
	cfg.BackblazeBucket = "bucket"
	cfg.BackblazeAccountID = "id"
	cfg.BackblazeApplicationKey = "key"
	if backblazeConfigured(cfg) {
		t.Fatalf("disabled backups should not count as configured")
	}
	cfg.BackblazeBackupEnabled = true
	if !backblazeConfigured(cfg) {
		t.Fatalf("expected configured")
	}
}

func TestRewriteConfigFile_KeepsBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "# old\n")

	cfg := defaultConfig()
	cfg.CommandPrefix = "$"
	cfg.DiscordBotToken = "secret-token"
	if err := rewriteConfigFile(path, cfg); err != nil {
		t.Fatalf("rewriteConfigFile: %v", err)
	}
	bak, err := os.ReadFile(path + ".bak")
	if err != nil || string(bak) != "# old\n" {
		t.Fatalf("backup = %q, %v", bak, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `command_prefix = "$"`) {
		t.Fatalf("rewritten config missing prefix:\n%s", data)
	}
	if strings.Contains(string(data), "secret-token") {
		t.Fatalf("secrets must never be written to config.toml")
	}

	// Same config again: the file and its backup stay as they are.
	if err := rewriteConfigFile(path, cfg); err != nil {
		t.Fatalf("second rewrite: %v", err)
	}
	bak, err = os.ReadFile(path + ".bak")
	if err != nil || string(bak) != "# old\n" {
		t.Fatalf("unchanged rewrite replaced backup: %q, %v", bak, err)
	}
	again, err := os.ReadFile(path)
	if err != nil || string(again) != string(data) {
		t.Fatalf("unchanged rewrite altered config: %v", err)
	}
}

func TestReplaceFileContents_SkipsIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "x.example")
	changed, err := replaceFileContents(path, []byte("a = 1\n"), false)
	if err != nil || !changed {
		t.Fatalf("first write changed=%v err=%v", changed, err)
	}
	changed, err = replaceFileContents(path, []byte("a = 1\n"), false)
	if err != nil || changed {
		t.Fatalf("identical write changed=%v err=%v", changed, err)
	}
	changed, err = replaceFileContents(path, []byte("a = 2\n"), false)
	if err != nil || !changed {
		t.Fatalf("new contents changed=%v err=%v", changed, err)
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("no backup expected, stat err = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("leftover temp files: %v", entries)
	}
}

func TestEnsureExampleFiles(t *testing.T) {
	dir := t.TempDir()
	ensureExampleFiles(dir)
	for _, name := range []string{"config.toml.example", "secrets.toml.example"} {
		data, err := os.ReadFile(filepath.Join(dir, "config", "examples", name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.HasPrefix(string(data), "# Generated") {
			t.Fatalf("%s missing header", name)
		}
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
