package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Server struct {
	Host              string `json:"host" env:"HOST" env-default:"0.0.0.0"`
	Port              string `json:"port" env:"PORT" env-default:"8000"`
	RequestTimeoutSec int    `json:"request_timeout_sec" env:"REQUEST_TIMEOUT_SEC" env-default:"30"`
}

type Coinbase struct {
	APIURL string `json:"api_url" env:"COINBASE_API_URL" env-default:"https://api.coinbase.com/v2/exchange-rates"`
}

type Cache struct {
	TTLSeconds int `json:"ttl_sec" env:"CACHE_TTL" env-default:"60"`
}

type Config struct {
	Server          Server   `json:"server"`
	Coinbase        Coinbase `json:"coinbase"`
	Cache           Cache    `json:"cache"`
	DefaultCurrency string   `json:"default_currency" env:"DEFAULT_CURRENCY" env-default:"USD"`
	WatchSymbols    []string `json:"watch_symbols" env:"WATCH_SYMBOLS" env-default:"BTC,ETH,SOL"`
}

// Load reads configuration from an optional JSON file at path, then applies
// environment overrides. An empty path means environment and defaults only.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read config from env: %w", err)
	}
	return cfg, nil
}
