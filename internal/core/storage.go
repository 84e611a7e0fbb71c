package core

import (
	"fmt"
	"os"

	"freshchain/internal/infra/persistence/memory"
	"freshchain/internal/infra/persistence/postgres"
	"freshchain/internal/infra/persistence/sqlite"
	"freshchain/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions carries backend-specific settings for OpenStorage.
type StorageOptions struct {
	SQLitePath  string
	PostgresDSN string
}

// OpenStorage constructs the persistent store for the given driver.
func OpenStorage(driver StorageDriver, opts StorageOptions, admin domain.Identity, engine *RulesEngine) (PersistentStore, error) {
	switch driver {
	case StorageMemory:
		return memory.NewStore(admin, engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, admin, engine)
	case StoragePostgres:
		return postgres.NewStore(opts.PostgresDSN, admin, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	FRESHCHAIN_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FRESHCHAIN_SQLITE_PATH: path to sqlite file (default ./freshchain.db)
//	FRESHCHAIN_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(admin domain.Identity, engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("FRESHCHAIN_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	return OpenStorage(StorageDriver(driver), StorageOptions{
		SQLitePath:  os.Getenv("FRESHCHAIN_SQLITE_PATH"),
		PostgresDSN: os.Getenv("FRESHCHAIN_POSTGRES_DSN"),
	}, admin, engine)
}
