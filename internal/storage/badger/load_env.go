package badger

import (
	"context"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads variables from a .env file into the KV store. Keys are
// stored lowercase, so TUSHARE_TOKEN becomes tushare_token.
// A missing or unparseable file is logged, not returned.
func (m *Manager) LoadEnvFile(ctx context.Context, filePath string) (int, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		m.logger.Debug().Str("file", filePath).Msg(".env file does not exist, skipping")
		return 0, nil
	}

	env, err := godotenv.Read(filePath)
	if err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to parse .env file")
		return 0, nil
	}

	vars := make(map[string]VariableFile, len(env))
	for key, value := range env {
		vars[key] = VariableFile{Value: value, Description: "Loaded from .env file"}
	}

	stats := m.storeVariables(ctx, ".env", vars)
	m.logger.Debug().
		Str("file", filePath).
		Int("loaded", stats.loaded).
		Int("skipped", stats.skipped).
		Int("errors", stats.failed).
		Msg("Finished loading variables from .env file")
	return stats.loaded, nil
}
