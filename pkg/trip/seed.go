package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadTripFile reads one trip context from a JSON file. The trip id defaults
// to the file name without its extension.
func LoadTripFile(path string) (Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("load trip %s: %w", path, err)
	}
	var c Context
	if err := json.Unmarshal(data, &c); err != nil {
		return Context{}, fmt.Errorf("parse trip %s: %w", path, err)
	}
	if c.TripID == "" {
		c.TripID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// SeedDir saves every *.json trip in dir into repo and returns how many were stored.
func SeedDir(ctx context.Context, repo Repository, dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return 0, fmt.Errorf("seed trips: %w", err)
		}
	}
	for i, path := range matches {
		c, err := LoadTripFile(path)
		if err != nil {
			return i, err
		}
		if err := repo.SaveTripContext(ctx, c); err != nil {
			return i, fmt.Errorf("seed trip %s: %w", c.TripID, err)
		}
	}
	return len(matches), nil
}
