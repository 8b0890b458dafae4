package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/poleshift/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string   listen address
//	-s string   shared secret for agent tokens
//	-t string   temp dir for classifier output
//	-k string   krakenuniq binary
//	-db string  krakenuniq database dir
//	-j int      classifier threads
//	-m int      max gRPC message size (bytes)
//	-r dur      per-request timeout
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-t", "-k", "-db", "-j", "-m", "-r", "-log-level", "-log-file"})

	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	fs.StringVar(&cfg.ListenAddr, "a", cfg.ListenAddr, "listen address")
	fs.StringVar(&cfg.Secret, "s", cfg.Secret, "shared secret")
	fs.StringVar(&cfg.TempDir, "t", cfg.TempDir, "temp dir")
	fs.StringVar(&cfg.KrakenBinary, "k", cfg.KrakenBinary, "krakenuniq binary")
	fs.StringVar(&cfg.KrakenDB, "db", cfg.KrakenDB, "krakenuniq database dir")
	fs.IntVar(&cfg.KrakenThreads, "j", cfg.KrakenThreads, "classifier threads")
	fs.IntVar(&cfg.MaxMessageSize, "m", cfg.MaxMessageSize, "max message size in bytes")
	fs.DurationVar(&cfg.RequestTimeout, "r", cfg.RequestTimeout, "per-request timeout (0 disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
