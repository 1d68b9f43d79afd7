package interfaces

import "context"

// StorageManager - composite interface for the optional local store
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	SnapshotStorage() SnapshotStorage

	// LoadVariablesFromFiles loads variables.toml and variables/*.toml into the KV store
	LoadVariablesFromFiles(ctx context.Context, dirPath string) (int, error)

	// LoadEnvFile loads a .env file into the KV store
	LoadEnvFile(ctx context.Context, filePath string) (int, error)

	Close() error
}
