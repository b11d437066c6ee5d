package targets

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-customers/models"
)

// URLBuilder renders listing page URLs below a base listing URL such as
// https://www.odoo.com/de_DE/customers.
type URLBuilder struct {
	base string
}

// NewURLBuilder validates base and strips any trailing slash.
func NewURLBuilder(base string) (*URLBuilder, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	return &URLBuilder{base: strings.TrimSuffix(base, "/")}, nil
}

// Base returns the normalized listing URL.
func (b *URLBuilder) Base() string {
	return b.base
}

// JobURL returns the page URL a job fetches.
func (b *URLBuilder) JobURL(job models.Job) string {
	switch j := job.(type) {
	case models.RegionJob:
		return b.CountryPage(j.Country(), j.Page())
	default:
		return b.Page(job.Page())
	}
}

// Page returns the unfiltered listing URL for page.
func (b *URLBuilder) Page(page int) string {
	if page <= 1 {
		return b.base
	}
	return fmt.Sprintf("%s/page/%d", b.base, page)
}

// CountryPage returns the country-filtered listing URL for page.
func (b *URLBuilder) CountryPage(country models.Country, page int) string {
	path := fmt.Sprintf("%s/country/%s-%d", b.base, country.Slug, country.ID)
	if page <= 1 {
		return path
	}
	return fmt.Sprintf("%s/page/%d", path, page)
}
