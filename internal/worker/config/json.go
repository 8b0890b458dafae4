package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/poleshift/internal/flagx"
	"github.com/dmitrijs2005/poleshift/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ListenAddr     string          `json:"listen_addr"`
	Secret         string          `json:"secret"`
	TempDir        string          `json:"temp_dir"`
	KrakenBinary   string          `json:"kraken_binary"`
	KrakenDB       string          `json:"kraken_db"`
	KrakenThreads  int             `json:"kraken_threads"`
	MaxMessageSize int             `json:"max_message_size"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	LogLevel       string          `json:"log_level"`
	LogFile        string          `json:"log_file"`
}

func parseJson(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	for dst, v := range map[*string]string{
		&cfg.ListenAddr:   jc.ListenAddr,
		&cfg.Secret:       jc.Secret,
		&cfg.TempDir:      jc.TempDir,
		&cfg.KrakenBinary: jc.KrakenBinary,
		&cfg.KrakenDB:     jc.KrakenDB,
		&cfg.LogLevel:     jc.LogLevel,
		&cfg.LogFile:      jc.LogFile,
	} {
		if v != "" {
			*dst = v
		}
	}
	if jc.KrakenThreads > 0 {
		cfg.KrakenThreads = jc.KrakenThreads
	}
	if jc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = jc.MaxMessageSize
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
