package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds the server's environment-derived settings. The workbook path
// is the only required value; everything external (OpenAI, Postgres, Redis)
// is optional and disabled when unset.
type Config struct {
	Port         string
	WorkbookPath string

	Rounds           int
	InvestigationSec int
	ScoringSec       int
	VaultStart       int
	PollIntervalSec  int
	InsiderEnabled   bool
	WriteAcks        bool

	DealerPassphrase string
	TokenExpire      time.Duration

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	DatabaseURL string
	RedisAddr   string
	RedisDB     int
}

// ErrNoWorkbookPath is returned when WORKBOOK_PATH is unset.
var ErrNoWorkbookPath = errors.New("WORKBOOK_PATH must be set")

// ErrBadGameValue is returned when a numeric game parameter would break the
// engine (zero or negative counts, intervals, or a negative vault start).
var ErrBadGameValue = errors.New("ROUNDS, INVESTIGATION_SEC, SCORING_SEC and POLL_INTERVAL_SEC must be positive and VAULT_START non-negative")

// FromEnv reads configuration from the environment.
func FromEnv() (Config, error) {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.WorkbookPath = os.Getenv("WORKBOOK_PATH")
	if c.WorkbookPath == "" {
		return Config{}, ErrNoWorkbookPath
	}

	c.Rounds = getint("ROUNDS", 5)
	c.InvestigationSec = getint("INVESTIGATION_SEC", 300)
	c.ScoringSec = getint("SCORING_SEC", 120)
	c.VaultStart = getint("VAULT_START", 4)
	c.PollIntervalSec = getint("POLL_INTERVAL_SEC", 5)
	if c.Rounds < 1 || c.InvestigationSec < 1 || c.ScoringSec < 1 ||
		c.PollIntervalSec < 1 || c.VaultStart < 0 {
		return Config{}, ErrBadGameValue
	}
	c.InsiderEnabled = getenv("INSIDER_ENABLED", "false") == "true"
	c.WriteAcks = getenv("WRITE_ACKS", "true") == "true"

	c.DealerPassphrase = os.Getenv("DEALER_PASS")
	c.TokenExpire = time.Duration(getint("TOKEN_EXPIRE_SEC", 6*3600)) * time.Second

	c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAIBaseURL = getenv("OPENAI_BASE_URL", "https://api.openai.com")
	c.OpenAIModel = getenv("OPENAI_MODEL", "gpt-4o-mini")

	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisDB = getint("REDIS_DB", 0)
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
