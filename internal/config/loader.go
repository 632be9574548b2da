package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment driven configuration values for the chronopact service.
type Config struct {
	HTTPPort         int
	SQLitePath       string
	TickInterval     time.Duration
	HarassInterval   int
	APITokenHash     string
	RedisAddr        string
	PresencePoints   []string
	WebhookURL       string
	InsultEndpoint   string
	InsultAPIKey     string
	InsultModel      string
	InsultTimeout    time.Duration
	LogLevel         slog.Level
	StrictInvariants bool
}

// Load parses configuration values from the current process environment.
//
// Optional values fall back to defaults. Every missing or invalid key is
// collected before failing so the operator sees them all at once.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:       8080,
		SQLitePath:     "chronopact.db",
		TickInterval:   time.Minute,
		HarassInterval: 2,
		InsultTimeout:  10 * time.Second,
		LogLevel:       slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if value := env("CHRONOPACT_HTTP_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "CHRONOPACT_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := env("CHRONOPACT_SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	if value := env("CHRONOPACT_TICK_INTERVAL"); value != "" {
		interval, err := time.ParseDuration(value)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "CHRONOPACT_TICK_INTERVAL")
		} else {
			cfg.TickInterval = interval
		}
	}

	if value := env("CHRONOPACT_HARASS_INTERVAL"); value != "" {
		minutes, err := strconv.Atoi(value)
		if err != nil || minutes <= 0 {
			invalid = append(invalid, "CHRONOPACT_HARASS_INTERVAL")
		} else {
			cfg.HarassInterval = minutes
		}
	}

	if hash := env("CHRONOPACT_API_TOKEN_HASH"); hash == "" {
		missing = append(missing, "CHRONOPACT_API_TOKEN_HASH")
	} else if !strings.HasPrefix(hash, "$argon2id$") {
		invalid = append(invalid, "CHRONOPACT_API_TOKEN_HASH")
	} else {
		cfg.APITokenHash = hash
	}

	cfg.RedisAddr = env("CHRONOPACT_REDIS_ADDR")
	cfg.PresencePoints = splitList(env("CHRONOPACT_PRESENCE_POINTS"))
	cfg.WebhookURL = env("CHRONOPACT_WEBHOOK_URL")
	cfg.InsultEndpoint = env("CHRONOPACT_INSULT_ENDPOINT")
	cfg.InsultAPIKey = env("CHRONOPACT_INSULT_API_KEY")
	cfg.InsultModel = env("CHRONOPACT_INSULT_MODEL")

	if value := env("CHRONOPACT_INSULT_TIMEOUT"); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "CHRONOPACT_INSULT_TIMEOUT")
		} else {
			cfg.InsultTimeout = timeout
		}
	}

	if value := env("CHRONOPACT_LOG_LEVEL"); value != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(value)); err != nil {
			invalid = append(invalid, "CHRONOPACT_LOG_LEVEL")
		}
	}

	if value := env("CHRONOPACT_STRICT_INVARIANTS"); value != "" {
		strict, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "CHRONOPACT_STRICT_INVARIANTS")
		} else {
			cfg.StrictInvariants = strict
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// splitList splits a comma separated value, dropping blanks and duplicates.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	seen := make(map[string]bool)
	var items []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		items = append(items, part)
	}
	return items
}
