package models

import (
	"fmt"
	"time"
)

// Job is one page-fetch unit of work. It is either an AggregateJob or a
// RegionJob; no other implementations exist.
type Job interface {
	Target() TargetID
	Page() int
	String() string
	sealed()
}

// AggregateJob fetches one page of an unfiltered listing.
type AggregateJob struct {
	target TargetID
	page   int
}

// NewAggregateJob builds a job for an aggregate target.
func NewAggregateJob(target TargetID, page int) AggregateJob {
	return AggregateJob{target: target, page: page}
}

func (j AggregateJob) Target() TargetID { return j.target }
func (j AggregateJob) Page() int        { return j.page }
func (j AggregateJob) String() string   { return fmt.Sprintf("%s/page-%d", j.target, j.page) }
func (AggregateJob) sealed()            {}

// RegionJob fetches one page of a country-filtered listing.
type RegionJob struct {
	target  TargetID
	country Country
	page    int
}

// NewRegionJob builds a job for one country of a region target.
func NewRegionJob(target TargetID, country Country, page int) RegionJob {
	return RegionJob{target: target, country: country, page: page}
}

func (j RegionJob) Target() TargetID  { return j.target }
func (j RegionJob) Country() Country  { return j.country }
func (j RegionJob) Page() int         { return j.page }
func (RegionJob) sealed()             {}
func (j RegionJob) String() string {
	return fmt.Sprintf("%s/%s-%d/page-%d", j.target, j.country.Slug, j.country.ID, j.page)
}

// ScheduledJob pairs a job with the delay it was enqueued with.
type ScheduledJob struct {
	Job   Job
	Delay time.Duration
}

// JobPayload is the wire form of a job carried by the queue.
type JobPayload struct {
	Target      TargetID `json:"target"`
	Country     string   `json:"country,omitempty"`
	CountryID   *int     `json:"countryId,omitempty"`
	Page        int      `json:"page"`
	ScheduledAt int64    `json:"scheduledAt"`
}

// NewPayload encodes job for the queue. scheduledAt is stored in Unix
// milliseconds.
func NewPayload(job Job, scheduledAt time.Time) JobPayload {
	p := JobPayload{
		Target:      job.Target(),
		Page:        job.Page(),
		ScheduledAt: scheduledAt.UnixMilli(),
	}
	if rj, ok := job.(RegionJob); ok {
		id := rj.country.ID
		p.Country = rj.country.Name
		p.CountryID = &id
	}
	return p
}
