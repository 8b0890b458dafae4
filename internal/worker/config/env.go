package config

import "github.com/caarlos0/env/v9"

const EnvPrefix = "POLESHIFT_WORKER_"

func parseEnv(cfg *Config) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
