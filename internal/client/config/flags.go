package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/poleshift/internal/flagx"
)

var agentFlags = flagx.Set{
	Values: []string{
		"-d", "-db", "-w", "-ws", "-wmsg", "-u", "-k", "-jwt", "-session", "-org",
		"-s3", "-s3-region", "-bucket", "-backend", "-pg",
		"-i", "-sync", "-reconcile", "-batch", "-attempts", "-retry-delay",
		"-patch", "-on-failure", "-log-level", "-log-file",
	},
	Bools: []string{"-discard-rejected", "-s3-path-style"},
}

// parseFlags overlays cfg with the agent's command-line flags. Arguments
// owned by other layers (e.g. -c) are filtered out first.
func parseFlags(cfg *Config) {
	args := agentFlags.Filter(os.Args[1:])

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "sqlite database path (defaults to <data dir>/poleshift.db)")
	fs.StringVar(&cfg.WorkerAddr, "w", cfg.WorkerAddr, "address of the processing worker")
	fs.StringVar(&cfg.WorkerSecret, "ws", cfg.WorkerSecret, "shared secret for worker calls")
	fs.IntVar(&cfg.WorkerMaxMessageSize, "wmsg", cfg.WorkerMaxMessageSize, "max worker message size in bytes")
	fs.StringVar(&cfg.SupabaseURL, "u", cfg.SupabaseURL, "hosted backend base url")
	fs.StringVar(&cfg.SupabaseAnonKey, "k", cfg.SupabaseAnonKey, "hosted backend anon key")
	fs.StringVar(&cfg.SupabaseJWTSecret, "jwt", cfg.SupabaseJWTSecret, "jwt secret for verifying the session token")
	fs.StringVar(&cfg.SessionFile, "session", cfg.SessionFile, "session file written by the login flow")
	fs.StringVar(&cfg.OrgID, "org", cfg.OrgID, "organisation id override")
	fs.StringVar(&cfg.S3Endpoint, "s3", cfg.S3Endpoint, "object storage endpoint")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "object storage region")
	fs.BoolVar(&cfg.S3UsePathStyle, "s3-path-style", cfg.S3UsePathStyle, "use path-style bucket addressing")
	fs.StringVar(&cfg.RawDataBucket, "bucket", cfg.RawDataBucket, "bucket for raw files")
	fs.StringVar(&cfg.RemoteBackend, "backend", cfg.RemoteBackend, "remote sync backend: postgrest or postgres")
	fs.StringVar(&cfg.PostgresDSN, "pg", cfg.PostgresDSN, "postgres dsn for the postgres backend")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.SyncInterval, "sync", cfg.SyncInterval, "sync interval")
	fs.DurationVar(&cfg.ReconcileInterval, "reconcile", cfg.ReconcileInterval, "upload queue reconcile interval")
	fs.IntVar(&cfg.MaxBatchSize, "batch", cfg.MaxBatchSize, "max rows per upload batch")
	fs.IntVar(&cfg.MaxAttempts, "attempts", cfg.MaxAttempts, "max upload attempts per transaction")
	fs.DurationVar(&cfg.RetryBaseDelay, "retry-delay", cfg.RetryBaseDelay, "base delay between upload attempts")
	fs.StringVar(&cfg.PatchMode, "patch", cfg.PatchMode, "patch mode: per-row or batched")
	fs.BoolVar(&cfg.DiscardRejected, "discard-rejected", cfg.DiscardRejected, "drop transactions the backend rejects")
	fs.StringVar(&cfg.FailurePolicy, "on-failure", cfg.FailurePolicy, "processing failure policy: mark-failed or leave")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file (stderr only when empty)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
