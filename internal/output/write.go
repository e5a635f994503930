// Package output writes the results of a clustering run back to disk in the
// formats the inputs were read from.
//
// Every writer renders the whole file in memory and commits it with a
// temp file + rename, so a failed run never leaves a partial output behind.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeAtomic writes data to path through a temporary sibling file.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) // best effort
		return fmt.Errorf("committing %s: %w", path, err)
	}

	return nil
}

// siblingPath returns input with its extension replaced by suffix, in the
// same directory: "dir/run.csv" + "_matched.csv" is "dir/run_matched.csv".
func siblingPath(input, suffix string) string {
	dir, base := filepath.Split(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, stem+suffix)
}
