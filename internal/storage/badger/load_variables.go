package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// VariableFile is one variable of a variables TOML file:
//
//	[tushare_token]
//	value = "..."
//	description = "Tushare Pro token"
type VariableFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// loadStats counts the outcome of one variables load.
type loadStats struct {
	loaded, skipped, failed int
}

func (s *loadStats) add(o loadStats) {
	s.loaded += o.loaded
	s.skipped += o.skipped
	s.failed += o.failed
}

// LoadVariablesFromFiles loads credentials and SMTP settings from TOML files:
// dirPath/variables.toml, then every .toml file under dirPath/variables.
// Unreadable files are logged and skipped.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) (int, error) {
	files := make([]string, 0, 4)
	if _, err := os.Stat(filepath.Join(dirPath, "variables.toml")); err == nil {
		files = append(files, filepath.Join(dirPath, "variables.toml"))
	}

	variablesDir := filepath.Join(dirPath, "variables")
	if entries, err := os.ReadDir(variablesDir); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
				files = append(files, filepath.Join(variablesDir, entry.Name()))
			}
		}
	}

	var total loadStats
	for _, file := range files {
		vars, err := readVariablesFile(file)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", file).Msg("Skipping variables file")
			total.failed++
			continue
		}
		total.add(m.storeVariables(ctx, filepath.Base(file), vars))
	}

	m.logger.Debug().
		Str("dir", dirPath).
		Int("files", len(files)).
		Int("loaded", total.loaded).
		Int("skipped", total.skipped).
		Int("errors", total.failed).
		Msg("Finished loading variables from files")
	return total.loaded, nil
}

func readVariablesFile(path string) (map[string]VariableFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var variables map[string]VariableFile
	if err := toml.Unmarshal(content, &variables); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return variables, nil
}

// storeVariables upserts vars into the KV store in key order. Variables
// without a value are skipped.
func (m *Manager) storeVariables(ctx context.Context, origin string, vars map[string]VariableFile) loadStats {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var stats loadStats
	for _, key := range keys {
		variable := vars[key]
		value := strings.TrimSpace(variable.Value)
		if strings.TrimSpace(key) == "" || value == "" {
			m.logger.Warn().Str("origin", origin).Str("key", key).Msg("Skipping variable with empty value")
			stats.skipped++
			continue
		}

		description := variable.Description
		if description == "" {
			description = "Loaded from " + origin
		}

		isNew, err := m.kv.Upsert(ctx, key, value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable")
			stats.failed++
			continue
		}
		m.logger.Debug().Str("key", key).Bool("new", isNew).Str("origin", origin).Msg("Stored variable")
		stats.loaded++
	}
	return stats
}
