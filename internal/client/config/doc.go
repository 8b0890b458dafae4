// Package config loads runtime configuration for the poleshift agent.
//
// Sources, later ones win:
//
//  1. Built-in defaults, see (*Config).LoadDefaults.
//  2. Optional JSON file named by -c or -config.
//  3. Environment variables with the POLESHIFT_ prefix, e.g.
//     POLESHIFT_SUPABASE_URL or POLESHIFT_SYNC_INTERVAL=10s.
//  4. Command-line flags.
//
// # JSON schema
//
// Intervals accept strings like "5s" or integer nanoseconds:
//
//	{
//	  "supabase_url": "https://project.supabase.co",
//	  "worker_addr": "127.0.0.1:50061",
//	  "sync_interval": "30s",
//	  "max_batch_size": 10000,
//	  "patch_mode": "batched"
//	}
//
// Malformed input at any layer panics; callers recover in main.
package config
