package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ccollicutt/validata/pkg/source"
)

// Default values for configuration.
const (
	DefaultSystemDir     = "/etc/validata"
	DefaultHistoryFile   = "validata.history.yaml"
	DefaultReportTimeout = 10 * time.Second
	DefaultFetchTimeout  = 30 * time.Second
	DefaultEncoding      = source.DefaultEncoding
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultJobs          = 1
	DefaultMaxReported   = 5
)

// Environment variable names.
const (
	EnvConfigDir     = "VALIDATA_CONFIG_DIR"
	EnvPath          = "VALIDATA_PATH"
	EnvHistory       = "VALIDATA_HISTORY"
	EnvReportURL     = "VALIDATA_REPORT_URL"
	EnvReportTimeout = "VALIDATA_REPORT_TIMEOUT"
	EnvViewerURL     = "VALIDATA_VIEWER_URL"
	EnvEncoding      = "VALIDATA_ENCODING"
	EnvLogLevel      = "VALIDATA_LOG_LEVEL"
	EnvLogFormat     = "VALIDATA_LOG_FORMAT"
	EnvJobs          = "VALIDATA_JOBS"
	EnvMaxReported   = "VALIDATA_MAX_REPORTED"
	EnvWebhookURL    = "VALIDATA_WEBHOOK_URL"
	EnvWebhookToken  = "VALIDATA_WEBHOOK_TOKEN"
)

// Settings configure the validata process itself. They come from the
// environment, optionally seeded by a .env file, and are overridden by
// command line flags.
type Settings struct {
	ConfigDir     string        `env:"VALIDATA_CONFIG_DIR" envDefault:"/etc/validata"`
	SearchPath    []string      `env:"VALIDATA_PATH" envSeparator:":"`
	History       string        `env:"VALIDATA_HISTORY" envDefault:"validata.history.yaml"`
	ReportURL     string        `env:"VALIDATA_REPORT_URL"`
	ReportTimeout time.Duration `env:"VALIDATA_REPORT_TIMEOUT" envDefault:"10s"`
	ViewerURL     string        `env:"VALIDATA_VIEWER_URL"`
	Encoding      string        `env:"VALIDATA_ENCODING" envDefault:"windows-1252"`
	LogLevel      string        `env:"VALIDATA_LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"VALIDATA_LOG_FORMAT" envDefault:"text"`
	Jobs          int           `env:"VALIDATA_JOBS" envDefault:"1"`
	MaxReported   int           `env:"VALIDATA_MAX_REPORTED" envDefault:"5"`
	WebhookURL    string        `env:"VALIDATA_WEBHOOK_URL"`
	WebhookToken  string        `env:"VALIDATA_WEBHOOK_TOKEN"`
}

// ErrSettings is returned when the environment cannot be parsed.
var ErrSettings = errors.New("invalid settings")

// LoadSettings reads Settings from the environment after loading a .env
// file from the working directory when one exists.
func LoadSettings() (*Settings, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, errors.Join(ErrSettings, err)
	}
	if s.Jobs < 1 {
		return nil, fmt.Errorf("%w: %s must be at least 1", ErrSettings, EnvJobs)
	}
	if s.MaxReported < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrSettings, EnvMaxReported)
	}
	return s, nil
}
