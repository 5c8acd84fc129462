package ledgerAuth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by [ApplyEnv].
const EnvPrefix = "LEDGERAUTH_"

// LoadConfig reads a TOML (.toml) or YAML (.yaml, .yml) file over
// [DefaultConfig] and validates the result. Keys absent from the file keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("load config %s: unsupported extension", path)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays LEDGERAUTH_* variables onto cfg. Values come from the
// process environment first, then from envFiles (".env" when none are
// given). Missing env files are ignored.
//
//	LEDGERAUTH_BACKEND_URL      Backend.BaseURL
//	LEDGERAUTH_BACKEND_TIMEOUT  Backend.Timeout (Go duration)
//	LEDGERAUTH_RPS              Backend.RequestsPerSecond
//	LEDGERAUTH_STORE_DRIVER     Store.Driver
//	LEDGERAUTH_SQLITE_PATH      Store.SQLitePath
//	LEDGERAUTH_REDIS_ADDR       Store.RedisAddr
//	LEDGERAUTH_REDIS_PASSWORD   Store.RedisPassword
//	LEDGERAUTH_REDIS_DB         Store.RedisDB
//	LEDGERAUTH_LOG_LEVEL        Log.Level
//	LEDGERAUTH_LOG_FORMAT       Log.Format
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}

	fileVars := map[string]string{}
	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vars {
			if _, seen := fileVars[k]; !seen {
				fileVars[k] = v
			}
		}
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}
		v, ok := fileVars[EnvPrefix+name]
		return v, ok
	}

	if v, ok := lookup("BACKEND_URL"); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := lookup("BACKEND_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sBACKEND_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Backend.Timeout = d
	}
	if v, ok := lookup("RPS"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRPS: %w", EnvPrefix, err)
		}
		cfg.Backend.RequestsPerSecond = rps
	}
	if v, ok := lookup("STORE_DRIVER"); ok {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("SQLITE_PATH"); ok {
		cfg.Store.SQLitePath = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.Store.RedisAddr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Store.RedisPassword = v
	}
	if v, ok := lookup("REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREDIS_DB: %w", EnvPrefix, err)
		}
		cfg.Store.RedisDB = db
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	return nil
}
