package config

import "github.com/caarlos0/env/v9"

// EnvPrefix is prepended to every variable name in the env tags.
const EnvPrefix = "POLESHIFT_"

// parseEnv overlays variables that are present; unset ones keep the value
// from earlier layers.
func parseEnv(cfg *Config) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
