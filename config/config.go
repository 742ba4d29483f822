package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tazhate/icsync/pkg/logger"
)

type (
	// Config is the immutable runtime configuration. It is read once at
	// startup and passed explicitly to every component.
	Config struct {
		Remote   Remote   `yaml:"remote"`
		Local    Local    `yaml:"local"`
		Sync     Sync     `yaml:"sync"`
		Journal  Journal  `yaml:"journal"`
		Status   Status   `yaml:"status"`
		Telegram Telegram `yaml:"telegram"`
		Log      Log      `yaml:"log"`

		// Derived by Load.
		Interval time.Duration
		Location *time.Location
	}

	// Remote is the ICS feed to mirror.
	Remote struct {
		URL      string `yaml:"url" env:"REMOTE_URL" env-required:"true"`
		Username string `yaml:"username" env:"REMOTE_USERNAME"`
		Password string `yaml:"password" env:"REMOTE_PASSWORD"`
	}

	// Local is the CalDAV server receiving the mirror.
	Local struct {
		URL            string `yaml:"url" env:"LOCAL_URL" env-required:"true"`
		CalendarName   string `yaml:"calendar_name" env:"LOCAL_CALENDAR_NAME" env-required:"true"`
		Username       string `yaml:"username" env:"LOCAL_USERNAME" env-required:"true"`
		Password       string `yaml:"password" env:"LOCAL_PASSWORD" env-required:"true"`
		CreateCalendar bool   `yaml:"create_calendar" env:"CREATE_CALENDAR" env-default:"false"`
	}

	// Sync controls the cycle loop.
	Sync struct {
		Every       string        `yaml:"every" env:"SYNC_EVERY"`
		Cron        string        `yaml:"cron" env:"SYNC_CRON"`
		Timezone    string        `yaml:"timezone" env:"TIMEZONE" env-default:"UTC"`
		HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
		FutureOnly  bool          `yaml:"future_only" env:"FUTURE_ONLY" env-default:"false"`
	}

	// Journal enables the SQLite run journal when Path is set.
	Journal struct {
		Path string `yaml:"path" env:"JOURNAL_PATH"`
		Keep int    `yaml:"keep" env:"JOURNAL_KEEP" env-default:"500"`
	}

	// Status enables the status HTTP API when Listen is set.
	Status struct {
		Listen   string `yaml:"listen" env:"STATUS_LISTEN"`
		Username string `yaml:"username" env:"STATUS_USERNAME"`
		Password string `yaml:"password" env:"STATUS_PASSWORD"`
	}

	// Telegram enables run notifications when Token is set.
	Telegram struct {
		Token           string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
		ChatID          int64  `yaml:"chat_id" env:"TELEGRAM_CHAT_ID" env-default:"0"`
		NotifyOnSuccess bool   `yaml:"notify_on_success" env:"NOTIFY_ON_SUCCESS" env-default:"false"`
	}

	// Log -.
	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"pretty"`
	}
)

// Load reads the configuration from the environment, or from the YAML
// file named by CONFIG_PATH with environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}

	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) finish() error {
	if c.Sync.Every != "" {
		every, err := ParseEvery(c.Sync.Every)
		if err != nil {
			return fmt.Errorf("SYNC_EVERY is invalid (try \"2 minutes\" or \"1 hour\"): %w", err)
		}
		if every < time.Second {
			return fmt.Errorf("SYNC_EVERY must be at least one second, got %s", every)
		}
		c.Interval = every
	}

	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	c.Location = loc

	switch strings.ToLower(c.Log.Format) {
	case logger.FormatPretty, logger.FormatJSON:
	default:
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q",
			logger.FormatPretty, logger.FormatJSON, c.Log.Format)
	}

	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if (c.Status.Username == "") != (c.Status.Password == "") {
		return fmt.Errorf("STATUS_USERNAME and STATUS_PASSWORD must be set together")
	}

	return nil
}

// OneShot returns true if the process should run a single cycle and exit.
func (c *Config) OneShot() bool {
	return c.Interval == 0 && c.Sync.Cron == ""
}

var everyUnits = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"sec":     time.Second,
	"secs":    time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"min":     time.Minute,
	"mins":    time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// ParseEvery parses humanized intervals like "2 minutes", "an hour" or
// "1 hour 30 minutes". Plain Go durations ("90m", "1.5h") are accepted
// as well.
func ParseEvery(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive, got %q", s)
		}
		return d, nil
	}

	fields := strings.Fields(s)
	var total time.Duration

	i := 0
	for i < len(fields) {
		count := int64(1)
		switch fields[i] {
		case "a", "an":
			i++
		default:
			if n, err := strconv.ParseInt(fields[i], 10, 64); err == nil {
				count = n
				i++
			}
		}
		if i >= len(fields) {
			return 0, fmt.Errorf("missing unit in %q", s)
		}
		unit, ok := everyUnits[fields[i]]
		if !ok {
			return 0, fmt.Errorf("unknown unit %q", fields[i])
		}
		total += time.Duration(count) * unit
		i++
	}

	if total <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", s)
	}
	return total, nil
}
