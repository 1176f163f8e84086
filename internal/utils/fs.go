package utils

import (
	"fmt"
	"os"
)

// SafeMakedir creates dir and any missing parents. An existing directory,
// including one created concurrently by another worker, is not an error.
func SafeMakedir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
