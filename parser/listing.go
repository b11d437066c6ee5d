// Package parser extracts customer records from listing pages and derives
// their identity fingerprints.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-customers/models"
)

const (
	minNameLength        = 2
	minDescriptionLength = 21
)

var (
	errNotDetailLink = errors.New("not a detail link")
	errMissingName   = errors.New("missing name")
)

// ListingParser recognises customer cards on listing pages below one
// listing path.
type ListingParser struct {
	origin   *url.URL
	selector string
	detail   *regexp.Regexp
}

// NewListingParser builds a parser for the listing rooted at baseURL, e.g.
// https://www.odoo.com/de_DE/customers.
func NewListingParser(baseURL string) (*ListingParser, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	listingPath := strings.TrimSuffix(parsed.Path, "/") + "/"

	return &ListingParser{
		origin:   &url.URL{Scheme: parsed.Scheme, Host: parsed.Host},
		selector: fmt.Sprintf("a[href*='%s']", listingPath),
		detail:   regexp.MustCompile(regexp.QuoteMeta(listingPath) + `[^/]+-\d+$`),
	}, nil
}

// ParseHTML reads a listing document and extracts its records.
func (p *ListingParser) ParseHTML(r io.Reader, now time.Time) ([]models.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return p.Extract(doc.Selection, now), nil
}

// Extract walks every detail link below root. Candidates that cannot be
// turned into a record are skipped; the rest of the page is still used.
func (p *ListingParser) Extract(root *goquery.Selection, now time.Time) []models.Record {
	var records []models.Record
	seen := make(map[string]struct{})

	root.Find(p.selector).Each(func(_ int, link *goquery.Selection) {
		record, err := p.extractCandidate(link, now)
		if err != nil {
			if !errors.Is(err, errNotDetailLink) {
				slog.Debug("skipping listing candidate", slog.Any("error", err))
			}
			return
		}
		if _, dup := seen[record.DetailURL]; dup {
			return
		}
		seen[record.DetailURL] = struct{}{}
		records = append(records, record)
	})

	return records
}

func (p *ListingParser) extractCandidate(link *goquery.Selection, now time.Time) (models.Record, error) {
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || !p.detail.MatchString(href) {
		return models.Record{}, errNotDetailLink
	}

	detailURL, err := p.absolute(href)
	if err != nil {
		return models.Record{}, err
	}

	name := cleanText(link.Find("h5, h4, h3").First().Text())
	if name == "" {
		name = cleanText(link.Text())
	}
	if utf8.RuneCountInString(name) < minNameLength {
		return models.Record{}, fmt.Errorf("%w: %s", errMissingName, href)
	}

	card := link.Closest("div").Parent()
	record := models.Record{
		Name:        name,
		Industry:    firstLinkText(card, "a[href*='/industry/']"),
		Country:     firstLinkText(card, "a[href*='/country/']"),
		Description: firstParagraph(card),
		DetailURL:   detailURL,
		DetectedAt:  now,
	}
	if record.Industry == "" {
		record.Industry = models.Unknown
	}
	if record.Country == "" {
		record.Country = models.Unknown
	}
	return record, ValidateRecord(record)
}

func (p *ListingParser) absolute(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse detail href %q: %w", href, err)
	}
	return p.origin.ResolveReference(ref).String(), nil
}

func firstLinkText(card *goquery.Selection, selector string) string {
	var text string
	card.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = cleanText(s.Text())
		return text == ""
	})
	return text
}

func firstParagraph(card *goquery.Selection) string {
	var text string
	card.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		candidate := cleanText(s.Text())
		if utf8.RuneCountInString(candidate) >= minDescriptionLength {
			text = candidate
			return false
		}
		return true
	})
	return text
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ValidateRecord ensures the parser captured the required fields.
func ValidateRecord(r models.Record) error {
	if utf8.RuneCountInString(strings.TrimSpace(r.Name)) < minNameLength {
		return fmt.Errorf("record name %q too short", r.Name)
	}
	if strings.TrimSpace(r.DetailURL) == "" {
		return fmt.Errorf("record missing detail url for %s", r.Name)
	}
	return nil
}
