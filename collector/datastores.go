package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// StoreCounter counts discoverable local data stores (files matching
// Pattern) under a set of directories.
type StoreCounter struct {
	Fs      afero.Fs
	Dirs    []string
	Pattern string // glob relative to each dir, default "*.db"
	Log     *zap.Logger
}

// NewStoreCounter scans dirs on the OS filesystem.
func NewStoreCounter(log *zap.Logger, dirs ...string) *StoreCounter {
	return &StoreCounter{
		Fs:      afero.NewOsFs(),
		Dirs:    dirs,
		Pattern: "*.db",
		Log:     log,
	}
}

// Count returns the number of matching files. Missing directories count as
// zero; a directory that exists but cannot be read is reported as an error.
func (c *StoreCounter) Count() (int, error) {
	pattern := c.Pattern
	if pattern == "" {
		pattern = "*.db"
	}

	total := 0
	for _, dir := range c.Dirs {
		info, err := c.Fs.Stat(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			continue
		}

		matches, err := afero.Glob(c.Fs, filepath.Join(dir, pattern))
		if err != nil {
			return 0, fmt.Errorf("glob %s: %w", dir, err)
		}
		total += len(matches)
	}
	if c.Log != nil {
		c.Log.Debug("data stores counted", zap.Int("count", total), zap.Strings("dirs", c.Dirs))
	}
	return total, nil
}
