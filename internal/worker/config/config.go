// Package config handles configuration for the processing worker: defaults,
// JSON overlay, POLESHIFT_WORKER_ environment variables and flags.
package config

import (
	"time"

	"github.com/dmitrijs2005/poleshift/internal/common"
)

// Config holds runtime settings for the worker.
//
// KrakenBinary and KrakenDB locate the classifier; the worker refuses
// Sequence requests when the binary is missing. RequestTimeout of zero lets a
// run take as long as it needs.
type Config struct {
	ListenAddr     string        `env:"LISTEN_ADDR"`
	Secret         string        `env:"SECRET"`
	TempDir        string        `env:"TEMP_DIR"`
	KrakenBinary   string        `env:"KRAKEN_BINARY"`
	KrakenDB       string        `env:"KRAKEN_DB"`
	KrakenThreads  int           `env:"KRAKEN_THREADS"`
	MaxMessageSize int           `env:"MAX_MESSAGE_SIZE"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
	LogLevel       string        `env:"LOG_LEVEL"`
	LogFile        string        `env:"LOG_FILE"`
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.ListenAddr = "127.0.0.1:50061"
	c.Secret = "workerSecret"
	c.TempDir = ""
	c.KrakenBinary = "krakenuniq"
	c.KrakenDB = "kudb"
	c.KrakenThreads = 8
	c.MaxMessageSize = common.MaxWorkerMessageSize
	c.RequestTimeout = 0
	c.LogLevel = "info"
	c.LogFile = ""
}

// LoadConfig builds a Config from defaults, then JSON, env and flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
