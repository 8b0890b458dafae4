package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/poleshift/internal/flagx"
	"github.com/dmitrijs2005/poleshift/internal/timex"
)

// JsonConfig is the on-disk shape. Intervals use timex.Duration so they can
// be written as "5s" or as nanoseconds. Pointer fields distinguish "absent"
// from an explicit zero or false.
type JsonConfig struct {
	DataDir      string `json:"data_dir"`
	DatabasePath string `json:"database_path"`

	WorkerAddr   string `json:"worker_addr"`
	WorkerSecret string `json:"worker_secret"`

	// WorkerMaxMessageSize is in bytes.
	WorkerMaxMessageSize int `json:"worker_max_message_size"`

	SupabaseURL       string `json:"supabase_url"`
	SupabaseAnonKey   string `json:"supabase_anon_key"`
	SupabaseJWTSecret string `json:"supabase_jwt_secret"`
	SessionFile       string `json:"session_file"`
	UserID            string `json:"user_id"`
	OrgID             string `json:"org_id"`

	S3Endpoint     string `json:"s3_endpoint"`
	S3Region       string `json:"s3_region"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3UsePathStyle *bool  `json:"s3_path_style"`
	RawDataBucket  string `json:"raw_data_bucket"`

	RemoteBackend string `json:"remote_backend"`
	PostgresDSN   string `json:"postgres_dsn"`

	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	ReconcileInterval   *timex.Duration `json:"reconcile_interval"`

	MaxBatchSize    int             `json:"max_batch_size"`
	MaxAttempts     int             `json:"max_attempts"`
	RetryBaseDelay  *timex.Duration `json:"retry_base_delay"`
	PatchMode       string          `json:"patch_mode"`
	DiscardRejected *bool           `json:"discard_rejected"`

	FailurePolicy string `json:"failure_policy"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// parseJson overlays cfg with the file named by -c / -config, if any.
// Read or decode errors panic.
func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.WorkerAddr, jc.WorkerAddr)
	setString(&cfg.WorkerSecret, jc.WorkerSecret)
	setString(&cfg.SupabaseURL, jc.SupabaseURL)
	setString(&cfg.SupabaseAnonKey, jc.SupabaseAnonKey)
	setString(&cfg.SupabaseJWTSecret, jc.SupabaseJWTSecret)
	setString(&cfg.SessionFile, jc.SessionFile)
	setString(&cfg.UserID, jc.UserID)
	setString(&cfg.OrgID, jc.OrgID)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.RawDataBucket, jc.RawDataBucket)
	setString(&cfg.RemoteBackend, jc.RemoteBackend)
	setString(&cfg.PostgresDSN, jc.PostgresDSN)
	setString(&cfg.PatchMode, jc.PatchMode)
	setString(&cfg.FailurePolicy, jc.FailurePolicy)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFile, jc.LogFile)

	if jc.S3UsePathStyle != nil {
		cfg.S3UsePathStyle = *jc.S3UsePathStyle
	}
	if jc.DiscardRejected != nil {
		cfg.DiscardRejected = *jc.DiscardRejected
	}
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.ReconcileInterval != nil {
		cfg.ReconcileInterval = jc.ReconcileInterval.Duration
	}
	if jc.RetryBaseDelay != nil {
		cfg.RetryBaseDelay = jc.RetryBaseDelay.Duration
	}
	if jc.MaxBatchSize > 0 {
		cfg.MaxBatchSize = jc.MaxBatchSize
	}
	if jc.MaxAttempts > 0 {
		cfg.MaxAttempts = jc.MaxAttempts
	}
	if jc.WorkerMaxMessageSize > 0 {
		cfg.WorkerMaxMessageSize = jc.WorkerMaxMessageSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
