// Package config loads daemon configuration from a TOML file with sane
// defaults for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root configuration for the freshchain daemon.
type Config struct {
	Admin   string          `toml:"admin"`
	Server  Server          `toml:"server"`
	Storage Storage         `toml:"storage"`
	Blob    Blob            `toml:"blob"`
	Escrow  Escrow          `toml:"escrow"`
	Bands   map[string]Band `toml:"bands"`
	Logging Logging         `toml:"logging"`
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Storage selects the ledger persistence backend.
type Storage struct {
	Driver      string `toml:"driver"` // memory | sqlite | postgres
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Blob selects the passport archive backend.
type Blob struct {
	Driver string `toml:"driver"` // memory | fs | s3
	FSRoot string `toml:"fs_root"`
}

// Escrow holds staking policy settings.
type Escrow struct {
	DefaultRequiredStake uint64 `toml:"default_required_stake"`
	ForfeitTo            string `toml:"forfeit_to"` // retailer | producer | burn
}

// Band is a per-product-class safety envelope for sensor readings.
type Band struct {
	TempMin int `toml:"temp_min"`
	TempMax int `toml:"temp_max"`
	HumMin  int `toml:"hum_min"`
	HumMax  int `toml:"hum_max"`
}

// Logging controls the zap logger.
type Logging struct {
	Level       string `toml:"level"` // debug | info | warn | error
	Development bool   `toml:"development"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Admin: "admin",
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Driver:     "sqlite",
			SQLitePath: "freshchain.db",
		},
		Blob: Blob{
			Driver: "fs",
			FSRoot: "archive",
		},
		Escrow: Escrow{
			DefaultRequiredStake: 100,
			ForfeitTo:            "retailer",
		},
		Bands: map[string]Band{
			"default": {TempMin: 0, TempMax: 8, HumMin: 20, HumMax: 90},
		},
		Logging: Logging{Level: "info"},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints after decoding.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres driver requires postgres_dsn")
	}
	switch c.Blob.Driver {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("config: unknown blob driver %q", c.Blob.Driver)
	}
	switch c.Escrow.ForfeitTo {
	case "retailer", "producer", "burn":
	default:
		return fmt.Errorf("config: unknown forfeit beneficiary %q", c.Escrow.ForfeitTo)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr must not be empty")
	}
	if c.Admin == "" {
		return fmt.Errorf("config: admin identity must not be empty")
	}
	for class, band := range c.Bands {
		if band.TempMin > band.TempMax {
			return fmt.Errorf("config: band %q temperature range inverted", class)
		}
		if band.HumMin > band.HumMax {
			return fmt.Errorf("config: band %q humidity range inverted", class)
		}
	}
	return nil
}
