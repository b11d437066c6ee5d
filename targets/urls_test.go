package targets

import (
	"testing"

	"github.com/aluiziolira/go-scrape-customers/models"
)

func TestURLBuilder(t *testing.T) {
	b, err := NewURLBuilder("https://www.odoo.com/de_DE/customers/")
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	germany := models.Country{Name: "Germany", Slug: "deutschland", ID: 56, Pages: 115}

	tests := []struct {
		name string
		job  models.Job
		want string
	}{
		{name: "aggregate first page", job: models.NewAggregateJob(models.TargetAll, 1), want: "https://www.odoo.com/de_DE/customers"},
		{name: "aggregate later page", job: models.NewAggregateJob(models.TargetAll, 7), want: "https://www.odoo.com/de_DE/customers/page/7"},
		{name: "country first page", job: models.NewRegionJob(models.TargetDACH, germany, 1), want: "https://www.odoo.com/de_DE/customers/country/deutschland-56"},
		{name: "country later page", job: models.NewRegionJob(models.TargetDACH, germany, 9), want: "https://www.odoo.com/de_DE/customers/country/deutschland-56/page/9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.JobURL(tt.job); got != tt.want {
				t.Fatalf("JobURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestURLBuilderRejectsRelativeBase(t *testing.T) {
	if _, err := NewURLBuilder("/customers"); err == nil {
		t.Fatalf("expected error for base without host")
	}
}
