package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissing is wrapped by every required-field error returned from Validate.
var ErrMissing = errors.New("missing required configuration")

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	LLMBaseURL      string
	LLMRetries      int
	LLMRetryDelay   time.Duration

	ProtocolFile string

	TranscriptsDir  string
	BackupsDir      string
	EmergencyDir    string
	FinalRetries    int
	FinalRetryDelay time.Duration

	DriveFolderID        string
	DriveCredentialsFile string
	DriveCredentialsJSON string

	QualtricsAPIToken   string
	QualtricsSurveyID   string
	QualtricsDatacenter string

	NatsURL   string
	NatsToken string

	RedirectDelay   time.Duration
	SessionTimezone string
}

// Load reads .env from the working directory (if present) and then the
// process environment. Values already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:      envInt("INTERVIEWER_PORT", 8760),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		LLMProvider:     envStr("LLM_PROVIDER", ""),
		LLMModel:        envStr("LLM_MODEL", ""),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		LLMBaseURL:      envStr("LLM_BASE_URL", ""),
		LLMRetries:      envInt("LLM_RETRIES", 0),
		LLMRetryDelay:   envDuration("LLM_RETRY_DELAY", time.Second),

		ProtocolFile: envStr("PROTOCOL_FILE", ""),

		TranscriptsDir:  envStr("TRANSCRIPTS_DIR", "data/transcripts"),
		BackupsDir:      envStr("BACKUPS_DIR", "data/backups"),
		EmergencyDir:    envStr("EMERGENCY_DIR", "."),
		FinalRetries:    envInt("FINAL_RETRIES", 10),
		FinalRetryDelay: envDuration("FINAL_RETRY_DELAY", 100*time.Millisecond),

		DriveFolderID:        envStr("DRIVE_FOLDER_ID", ""),
		DriveCredentialsFile: envStr("DRIVE_CREDENTIALS_FILE", ""),
		DriveCredentialsJSON: envStr("DRIVE_CREDENTIALS_JSON", ""),

		QualtricsAPIToken:   envStr("QUALTRICS_API_TOKEN", ""),
		QualtricsSurveyID:   envStr("QUALTRICS_SURVEY_ID", ""),
		QualtricsDatacenter: envStr("QUALTRICS_DATACENTER", ""),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		RedirectDelay:   envDuration("REDIRECT_DELAY", 5*time.Second),
		SessionTimezone: envStr("SESSION_TIMEZONE", "America/Chicago"),
	}
	cfg.ApplyModel("")
	return cfg
}

// ApplyModel fills LLMModel from fallback (normally the protocol's model)
// when the environment did not set one, then infers LLMProvider from the
// model name if it is still empty. Provider selection happens here, once.
// A fallback that belongs to a different provider than an explicit
// LLM_PROVIDER is ignored, leaving LLM_MODEL for Validate to report.
func (c *Config) ApplyModel(fallback string) {
	if c.LLMModel == "" && fallback != "" {
		if c.LLMProvider == "" || inferProvider(fallback) == c.LLMProvider {
			c.LLMModel = fallback
		}
	}
	if c.LLMProvider == "" && c.LLMModel != "" {
		c.LLMProvider = inferProvider(c.LLMModel)
	}
}

// Validate reports every missing or inconsistent field at once.
func (c Config) Validate() error {
	var errs []error

	switch c.LLMProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: ANTHROPIC_API_KEY", ErrMissing))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: OPENAI_API_KEY", ErrMissing))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.LLMModel == "" {
		errs = append(errs, fmt.Errorf("%w: LLM_MODEL", ErrMissing))
	}

	if c.DriveFolderID != "" && c.DriveCredentialsFile == "" && c.DriveCredentialsJSON == "" {
		errs = append(errs, fmt.Errorf("%w: DRIVE_CREDENTIALS_FILE or DRIVE_CREDENTIALS_JSON", ErrMissing))
	}

	if c.QualtricsAPIToken != "" || c.QualtricsSurveyID != "" || c.QualtricsDatacenter != "" {
		for key, v := range map[string]string{
			"QUALTRICS_API_TOKEN":  c.QualtricsAPIToken,
			"QUALTRICS_SURVEY_ID":  c.QualtricsSurveyID,
			"QUALTRICS_DATACENTER": c.QualtricsDatacenter,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, key))
			}
		}
	}

	if _, err := time.LoadLocation(c.SessionTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid SESSION_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// DriveEnabled reports whether transcripts are uploaded to Drive.
func (c Config) DriveEnabled() bool { return c.DriveFolderID != "" }

// QualtricsEnabled reports whether completion is reported to Qualtrics.
func (c Config) QualtricsEnabled() bool {
	return c.QualtricsAPIToken != "" && c.QualtricsSurveyID != "" && c.QualtricsDatacenter != ""
}

// APIKey returns the key of the selected provider.
func (c Config) APIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// Location returns the configured session timezone, UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SessionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func inferProvider(model string) string {
	if strings.HasPrefix(strings.ToLower(model), "claude") {
		return ProviderAnthropic
	}
	return ProviderOpenAI
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
