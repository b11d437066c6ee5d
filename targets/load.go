package targets

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/aluiziolira/go-scrape-customers/config"
	"github.com/aluiziolira/go-scrape-customers/models"
)

type fileCatalog struct {
	Targets []fileTarget `toml:"targets"`
}

type fileTarget struct {
	ID               string           `toml:"id"`
	DisplayName      string           `toml:"display_name"`
	TotalPages       int              `toml:"total_pages"`
	IncrementalPages int              `toml:"incremental_pages"`
	Output           string           `toml:"output"`
	Countries        []models.Country `toml:"countries"`
}

// Load returns the default catalog, or the catalog described by the TOML
// file at path when path is set. Targets missing from the file keep their
// defaults; page counts drift on the live site and are the usual reason to
// ship a file.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	var fc fileCatalog
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, &config.ConfigError{Field: "catalog", Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &config.ConfigError{Field: "catalog", Err: fmt.Errorf("unknown keys in %s: %v", path, undecoded)}
	}

	merged := make(map[models.TargetID]TargetConfig)
	for _, tc := range Default().All() {
		merged[tc.ID] = tc
	}
	for _, ft := range fc.Targets {
		id, err := models.ParseTargetID(ft.ID)
		if err != nil {
			return nil, &config.ConfigError{Field: "catalog", Err: err}
		}
		tc := merged[id]
		if ft.DisplayName != "" {
			tc.DisplayName = ft.DisplayName
		}
		if ft.TotalPages > 0 {
			tc.TotalPages = ft.TotalPages
		}
		if ft.IncrementalPages > 0 {
			tc.IncrementalPages = ft.IncrementalPages
		}
		if ft.Output != "" {
			tc.Output = ft.Output
		}
		if len(ft.Countries) > 0 {
			if tc.IsAggregate() {
				return nil, &config.ConfigError{Field: "catalog", Err: fmt.Errorf("target %s cannot be filtered by country", id)}
			}
			tc.Countries = ft.Countries
		}
		merged[id] = tc
	}

	configs := make([]TargetConfig, 0, len(merged))
	for _, id := range models.KnownTargets {
		configs = append(configs, merged[id])
	}
	c, err := New(configs)
	if err != nil {
		return nil, &config.ConfigError{Field: "catalog", Err: err}
	}
	return c, nil
}
