package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
)

func ensureExampleFiles(dataDir string) {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	examplesDir := filepath.Join(dataDir, "config", "examples")
	if err := os.MkdirAll(examplesDir, 0o755); err != nil {
		logger.Warn("create examples directory failed", "dir", examplesDir, "error", err)
		return
	}
	ensureExampleFile(filepath.Join(examplesDir, "config.toml.example"), exampleConfigBytes())
	ensureExampleFile(filepath.Join(examplesDir, "secrets.toml.example"), exampleSecretsBytes())
}

func ensureExampleFile(path string, contents []byte) {
	if len(contents) == 0 {
		return
	}
	if _, err := replaceFileContents(path, contents, false); err != nil {
		logger.Warn("write example config failed", "path", path, "error", err)
	}
}

func exampleHeader(text string) []byte {
	return []byte(fmt.Sprintf("# Generated %s example (copy to a real config and edit as needed)\n\n", text))
}

func exampleConfigBytes() []byte {
	cfg := defaultConfig()
	cfg.MetricsListen = "127.0.0.1:9464"
	cfg.BackblazeBucket = "OPTIONAL_B2_BUCKET"
	data, err := toml.Marshal(buildFileConfig(cfg))
	if err != nil {
		logger.Warn("encode config example failed", "error", err)
		return nil
	}
	return append(exampleHeader("base config"), data...)
}

func exampleSecretsBytes() []byte {
	data, err := toml.Marshal(secretsConfig{
		DiscordBotToken:         "YOUR_DISCORD_BOT_TOKEN",
		BackblazeAccountID:      "",
		BackblazeApplicationKey: "",
	})
	if err != nil {
		logger.Warn("encode secrets example failed", "error", err)
		return nil
	}
	return append(exampleHeader("secrets"), data...)
}

// rewriteConfigFile writes cfg to path. The previous file is kept as
// path.bak, and nothing is touched when the encoded config is unchanged.
func rewriteConfigFile(path string, cfg Config) error {
	data, err := toml.Marshal(buildFileConfig(cfg))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	changed, err := replaceFileContents(path, data, true)
	if err != nil {
		return err
	}
	if !changed {
		logger.Debug("config file already up to date", "path", path)
	}
	return nil
}

// replaceFileContents swaps data into path through a temp file in the same
// directory. It reports false without writing when path already holds data.
func replaceFileContents(path string, data []byte, keepBackup bool) (bool, error) {
	current, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(current, data):
		return false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	existed := err == nil

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("write temp for %s: %w", path, werr)
	}

	if existed && keepBackup {
		if err := os.WriteFile(path+".bak", current, 0o644); err != nil {
			_ = os.Remove(tmpName)
			return false, fmt.Errorf("write %s.bak: %w", path, err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("rename %s to %s: %w", tmpName, path, err)
	}
	return true, nil
}
