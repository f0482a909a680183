package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"studylog/internal/core"
)

// Config is the process configuration. Environment variables take
// defaults from XDG paths; the optional TOML file overrides the study
// settings (category set, week start).
type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Study settings
	WeekStart  time.Weekday
	Categories []core.Category

	// AMQP change-event pipeline (optional; empty URL disables it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets backup (optional; empty spreadsheet ID disables it)
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// Load builds the configuration from the environment, then applies the
// TOML file at STUDYLOG_CONFIG (or the default XDG location) on top.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", DefaultDBPath()),

		WeekStart:  time.Monday,
		Categories: core.DefaultCategories(),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "studylog"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "study_changes"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "StudyLog"),
	}

	if ws := getEnv("WEEK_START", ""); ws != "" {
		day, err := ParseWeekday(ws)
		if err != nil {
			return nil, err
		}
		cfg.WeekStart = day
	}

	path := getEnv("STUDYLOG_CONFIG", DefaultConfigPath())
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyFile(file); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyFile(file FileConfig) error {
	if file.Study.WeekStart != nil {
		day, err := ParseWeekday(*file.Study.WeekStart)
		if err != nil {
			return err
		}
		c.WeekStart = day
	}
	if len(file.Study.Categories) > 0 {
		cats := make([]core.Category, 0, len(file.Study.Categories))
		for _, name := range file.Study.Categories {
			name = strings.TrimSpace(name)
			if name != "" {
				cats = append(cats, core.Category(name))
			}
		}
		if len(cats) > 0 {
			c.Categories = cats
		}
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errs = append(errs, "SQLite database path cannot be empty")
	}

	if len(c.Categories) == 0 {
		errs = append(errs, "category set cannot be empty")
	}
	seen := make(map[core.Category]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if _, dup := seen[cat]; dup {
			errs = append(errs, fmt.Sprintf("duplicate category %q", cat))
		}
		seen[cat] = struct{}{}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errs = append(errs, "Google sheet name cannot be empty when a spreadsheet ID is provided")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ParseWeekday maps a day name ("monday", "Mon") to its time.Weekday.
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return time.Sunday, fmt.Errorf("invalid week start %q", s)
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
