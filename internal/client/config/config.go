package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/common"
)

// Remote backends the sync uploader can talk to.
const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
)

// Patch modes for the sync uploader.
const (
	PatchPerRow  = "per-row"
	PatchBatched = "batched"
)

// Failure policies applied when native processing fails.
const (
	FailureMarkFailed = "mark-failed"
	FailureLeave      = "leave"
)

// Config holds runtime settings for the poleshift agent.
type Config struct {
	DataDir      string `env:"DATA_DIR"`
	DatabasePath string `env:"DATABASE_PATH"`

	WorkerAddr   string `env:"WORKER_ADDR"`
	WorkerSecret string `env:"WORKER_SECRET"`

	// WorkerMaxMessageSize bounds one worker frame; keep it at or above the
	// worker's own limit.
	WorkerMaxMessageSize int `env:"WORKER_MAX_MESSAGE_SIZE"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	SessionFile       string `env:"SESSION_FILE"`
	AccessToken       string `env:"ACCESS_TOKEN"`
	UserID            string `env:"USER_ID"`
	OrgID             string `env:"ORG_ID"`

	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3Region       string `env:"S3_REGION"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `env:"S3_PATH_STYLE"`
	RawDataBucket  string `env:"RAW_DATA_BUCKET"`

	RemoteBackend string `env:"REMOTE_BACKEND"`
	PostgresDSN   string `env:"POSTGRES_DSN"`

	OnlineCheckInterval time.Duration `env:"ONLINE_CHECK_INTERVAL"`
	SyncInterval        time.Duration `env:"SYNC_INTERVAL"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL"`

	MaxBatchSize    int           `env:"MAX_BATCH_SIZE"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY"`
	PatchMode       string        `env:"PATCH_MODE"`
	DiscardRejected bool          `env:"DISCARD_REJECTED"`

	FailurePolicy string `env:"FAILURE_POLICY"`

	LogLevel string `env:"LOG_LEVEL"`
	LogFile  string `env:"LOG_FILE"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = "poleshift-data"
	c.DatabasePath = ""
	c.WorkerAddr = "127.0.0.1:50061"
	c.WorkerSecret = "workerSecret"
	c.WorkerMaxMessageSize = common.MaxWorkerMessageSize
	c.SupabaseURL = "http://127.0.0.1:54321"
	c.SessionFile = "session.json"
	c.S3Region = "us-east-1"
	c.S3Endpoint = "http://127.0.0.1:9000/"
	c.S3UsePathStyle = true
	c.RawDataBucket = common.RawDataBucket
	c.RemoteBackend = BackendPostgREST
	c.OnlineCheckInterval = 5 * time.Second
	c.SyncInterval = 30 * time.Second
	c.ReconcileInterval = time.Minute
	c.MaxBatchSize = 10000
	c.MaxAttempts = 10
	c.RetryBaseDelay = time.Second
	c.PatchMode = PatchPerRow
	c.FailurePolicy = FailureMarkFailed
	c.LogLevel = "info"
	c.LogFile = ""
}

// DatabaseFile resolves the SQLite file, placing it in DataDir unless an
// explicit path was configured.
func (c *Config) DatabaseFile() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.DataDir, "poleshift.db")
}

// Validate checks enumerated settings and numeric bounds.
func (c *Config) Validate() error {
	switch c.RemoteBackend {
	case BackendPostgREST:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres backend needs a dsn", common.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown remote backend %q", common.ErrInvalidInput, c.RemoteBackend)
	}

	if c.PatchMode != PatchPerRow && c.PatchMode != PatchBatched {
		return fmt.Errorf("%w: unknown patch mode %q", common.ErrInvalidInput, c.PatchMode)
	}
	if c.FailurePolicy != FailureMarkFailed && c.FailurePolicy != FailureLeave {
		return fmt.Errorf("%w: unknown failure policy %q", common.ErrInvalidInput, c.FailurePolicy)
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max batch size must be positive", common.ErrInvalidInput)
	}
	if c.WorkerMaxMessageSize <= 0 {
		return fmt.Errorf("%w: worker max message size must be positive", common.ErrInvalidInput)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", common.ErrInvalidInput)
	}
	return nil
}

// LoadConfig applies defaults, then JSON, environment and flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
