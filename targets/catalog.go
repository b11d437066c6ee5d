// Package targets holds the static catalog of scraping targets and the page
// URL scheme of the customer listing.
package targets

import (
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-customers/models"
)

// TargetConfig describes one logical target. A target without countries is
// an aggregate target; otherwise it is a region group.
type TargetConfig struct {
	ID               models.TargetID
	DisplayName      string
	Countries        []models.Country
	TotalPages       int
	IncrementalPages int
	Output           string
}

// IsAggregate reports whether the target scans the unfiltered listing.
func (t TargetConfig) IsAggregate() bool {
	return len(t.Countries) == 0
}

// Country looks up a country of the target by its numeric id.
func (t TargetConfig) Country(id int) (models.Country, bool) {
	for _, c := range t.Countries {
		if c.ID == id {
			return c, true
		}
	}
	return models.Country{}, false
}

// Catalog is the process-wide, read-only set of targets.
type Catalog struct {
	targets map[models.TargetID]TargetConfig
}

// ErrUnknownTarget is returned for target ids outside the catalog.
var ErrUnknownTarget = errors.New("unknown target")

// Default returns the compiled-in catalog.
func Default() *Catalog {
	c, err := New([]TargetConfig{
		{
			ID:               models.TargetAll,
			DisplayName:      "All Customers",
			TotalPages:       4282,
			IncrementalPages: 5,
			Output:           "All",
		},
		{
			ID:          models.TargetDACH,
			DisplayName: "DACH (Germany, Austria, Switzerland)",
			Countries: []models.Country{
				{Name: "Germany", Slug: "deutschland", ID: 56, Pages: 115},
				{Name: "Austria", Slug: "osterreich", ID: 13, Pages: 40},
				{Name: "Switzerland", Slug: "schweiz", ID: 41, Pages: 103},
			},
			IncrementalPages: 10,
			Output:           "DACH",
		},
		{
			ID:          models.TargetUK,
			DisplayName: "United Kingdom",
			Countries: []models.Country{
				{Name: "United Kingdom", Slug: "vereinigtes-konigreich", ID: 222, Pages: 36},
			},
			IncrementalPages: 36,
			Output:           "UK",
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// New validates configs and builds a catalog. Region totals are derived
// from their countries.
func New(configs []TargetConfig) (*Catalog, error) {
	c := &Catalog{targets: make(map[models.TargetID]TargetConfig, len(configs))}
	for _, tc := range configs {
		if _, err := models.ParseTargetID(string(tc.ID)); err != nil {
			return nil, err
		}
		if _, dup := c.targets[tc.ID]; dup {
			return nil, fmt.Errorf("target %s defined twice", tc.ID)
		}
		if !tc.IsAggregate() {
			total := 0
			seen := make(map[int]bool, len(tc.Countries))
			for _, country := range tc.Countries {
				if country.Slug == "" || country.ID <= 0 || country.Pages <= 0 {
					return nil, fmt.Errorf("target %s: country %q needs slug, id and pages", tc.ID, country.Name)
				}
				if seen[country.ID] {
					return nil, fmt.Errorf("target %s: country id %d listed twice", tc.ID, country.ID)
				}
				seen[country.ID] = true
				total += country.Pages
			}
			tc.TotalPages = total
		}
		if tc.TotalPages <= 0 {
			return nil, fmt.Errorf("target %s: total pages must be positive", tc.ID)
		}
		if tc.IncrementalPages <= 0 {
			return nil, fmt.Errorf("target %s: incremental pages must be positive", tc.ID)
		}
		if tc.Output == "" {
			tc.Output = string(tc.ID)
		}
		c.targets[tc.ID] = tc
	}
	return c, nil
}

// Get returns the configuration of id.
func (c *Catalog) Get(id models.TargetID) (TargetConfig, error) {
	tc, ok := c.targets[id]
	if !ok {
		return TargetConfig{}, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	return tc, nil
}

// All returns the configured targets in planning order.
func (c *Catalog) All() []TargetConfig {
	out := make([]TargetConfig, 0, len(c.targets))
	for _, id := range models.KnownTargets {
		if tc, ok := c.targets[id]; ok {
			out = append(out, tc)
		}
	}
	return out
}

// Resolve turns a queue payload back into a job, enforcing the job
// invariants against the catalog.
func (c *Catalog) Resolve(p models.JobPayload) (models.Job, error) {
	tc, err := c.Get(p.Target)
	if err != nil {
		return nil, err
	}
	if p.Page < 1 {
		return nil, fmt.Errorf("target %s: page %d out of range", p.Target, p.Page)
	}
	if tc.IsAggregate() {
		if p.CountryID != nil {
			return nil, fmt.Errorf("target %s does not accept a country filter", p.Target)
		}
		if p.Page > tc.TotalPages {
			return nil, fmt.Errorf("target %s: page %d exceeds %d pages", p.Target, p.Page, tc.TotalPages)
		}
		return models.NewAggregateJob(tc.ID, p.Page), nil
	}

	if p.CountryID == nil {
		return nil, fmt.Errorf("target %s requires a country", p.Target)
	}
	country, ok := tc.Country(*p.CountryID)
	if !ok {
		return nil, fmt.Errorf("target %s: country not found: %s (%d)", p.Target, p.Country, *p.CountryID)
	}
	if p.Page > country.Pages {
		return nil, fmt.Errorf("target %s: page %d exceeds %d pages for %s", p.Target, p.Page, country.Pages, country.Name)
	}
	return models.NewRegionJob(tc.ID, country, p.Page), nil
}
