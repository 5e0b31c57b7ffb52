package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"etlpipe/internal/domain"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from ETL_* environment variables.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ETL_STORE_DRIVER"); ok && v != "" {
		c.Store.Driver = domain.StoreDriver(v)
	}
	if v, ok := lookup("ETL_STORE_PATH"); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup("ETL_STORE_DSN"); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := lookup("ETL_CSV_DIR"); ok {
		c.CSVDir = v
	}
	if v, ok := lookup("ETL_DOWNLOAD_DIR"); ok && v != "" {
		c.DownloadDir = v
	}
	if v, ok := lookup("ETL_KAGGLE_BIN"); ok && v != "" {
		c.KaggleBin = v
	}
	if v, ok := lookup("ETL_HTTP_TIMEOUT"); ok && v != "" {
		if err := c.HTTPTimeout.set(v); err != nil {
			return fmt.Errorf("ETL_HTTP_TIMEOUT: %w", err)
		}
	}
	return nil
}
