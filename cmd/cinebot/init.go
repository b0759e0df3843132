package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/cinebot/internal/defaults"
)

// runInit writes an example config.yaml into dir. An existing file is
// never overwritten. The file may hold API keys, so it is owner-only.
func runInit(w io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	written, err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(w, "Wrote %s\n", configPath)
	} else {
		fmt.Fprintf(w, "%s already exists, left unchanged\n", configPath)
	}
	fmt.Fprintln(w, "Set tmdb.api_key (or TMDB_API_KEY) and a search provider to enable every tool.")
	return nil
}

func writeIfMissing(path string, content []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, perm); err != nil {
		return false, err
	}
	return true, nil
}
