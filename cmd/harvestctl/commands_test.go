package main

import (
	"testing"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/targets"
)

func TestScrapePayload(t *testing.T) {
	catalog := targets.Default()

	all, err := scrapePayload(catalog, "all", 0, 3)
	if err != nil {
		t.Fatalf("scrapePayload(all) error = %v", err)
	}
	if all.CountryID != nil || all.Page != 3 {
		t.Fatalf("aggregate payload = %+v", all)
	}

	dach, err := scrapePayload(catalog, "dach", 0, 1)
	if err != nil {
		t.Fatalf("scrapePayload(dach) error = %v", err)
	}
	if dach.CountryID == nil || *dach.CountryID != 56 {
		t.Fatalf("expected first DACH country, got %+v", dach)
	}
	if _, err := catalog.Resolve(dach); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, err := scrapePayload(catalog, "fr", 0, 1); err == nil {
		t.Fatal("expected unknown target error")
	}
}

func TestSelectTargets(t *testing.T) {
	catalog := targets.Default()

	ids, err := selectTargets(catalog, "")
	if err != nil {
		t.Fatalf("selectTargets() error = %v", err)
	}
	if len(ids) != len(models.KnownTargets) {
		t.Fatalf("expected %d targets, got %v", len(models.KnownTargets), ids)
	}

	ids, err = selectTargets(catalog, "uk")
	if err != nil || len(ids) != 1 || ids[0] != models.TargetUK {
		t.Fatalf("selectTargets(uk) = %v, %v", ids, err)
	}
}
