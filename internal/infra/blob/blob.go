// Package blob abstracts the object storage backends used for archived
// batch passports.
package blob

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem stores objects under a local directory root.
	DriverFilesystem Driver = "fs"
	// DriverS3 targets an S3 / MinIO compatible service.
	DriverS3 Driver = "s3"
	// DriverMemory keeps objects in process memory (tests).
	DriverMemory Driver = "memory"
)

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the minimal object-store surface the passport archiver needs.
type Store interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, []byte, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

// OpenDriver constructs the Store for the given driver. S3 settings come
// from the environment (see s3.go); fsRoot only applies to the filesystem
// driver.
func OpenDriver(ctx context.Context, driver Driver, fsRoot string) (Store, error) {
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(fsRoot)
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// Open selects a Store implementation using environment variables.
//
//	FRESHCHAIN_BLOB_DRIVER: fs|s3|memory (default fs)
//	FRESHCHAIN_BLOB_FS_ROOT: directory root when driver=fs (default ./archive)
//	(S3 specific variables documented in s3.go)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FRESHCHAIN_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	return OpenDriver(ctx, Driver(driver), os.Getenv("FRESHCHAIN_BLOB_FS_ROOT"))
}
