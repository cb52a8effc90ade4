// Package metrics collects per-feed sync counters and writes them as a
// node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is what the synchronizer reports to.
type Recorder interface {
	IssuesFetched(feed string, n int)
	Candidates(feed string, n int)
	Skipped(feed, reason string, n int)
	Published(feed string)
	PublishFailed(feed string)
	FeedFailed(feed string)
	FeedDuration(feed string, d time.Duration)
	FeedSucceeded(feed string, at time.Time)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IssuesFetched(string, int) {}
func (Nop) Candidates(string, int) {}
func (Nop) Skipped(string, string, int) {}
func (Nop) Published(string) {}
func (Nop) PublishFailed(string) {}
func (Nop) FeedFailed(string) {}
func (Nop) FeedDuration(string, time.Duration) {}
func (Nop) FeedSucceeded(string, time.Time) {}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	issuesFetched *prometheus.CounterVec
	candidates    *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	published     *prometheus.CounterVec
	publishFailed *prometheus.CounterVec
	feedFailed    *prometheus.CounterVec
	feedDuration  *prometheus.HistogramVec
	lastSuccess   *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	feed := []string{"feed"}
	c := &Collector{
		issuesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_issues_fetched_total",
			Help: "Issues returned by the issue source inside the backlog window.",
		}, feed),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_candidates_total",
			Help: "Formatted candidates before history reconciliation.",
		}, feed),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_skipped_total",
			Help: "Issues not published, by reason.",
		}, []string{"feed", "reason"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_published_total",
			Help: "Posts published.",
		}, feed),
		publishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_publish_failures_total",
			Help: "Publish attempts that failed.",
		}, feed),
		feedFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "issuetweet_feed_failures_total",
			Help: "Feed sync passes that ended in an error.",
		}, feed),
		feedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "issuetweet_feed_duration_seconds",
			Help:    "Wall time of one feed sync pass.",
			Buckets: prometheus.DefBuckets,
		}, feed),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "issuetweet_last_success_timestamp_seconds",
			Help: "Unix time of the last feed sync pass without errors.",
		}, feed),
	}

	reg.MustRegister(
		c.issuesFetched,
		c.candidates,
		c.skipped,
		c.published,
		c.publishFailed,
		c.feedFailed,
		c.feedDuration,
		c.lastSuccess,
	)

	return c
}

func (c *Collector) IssuesFetched(feed string, n int) {
	c.issuesFetched.WithLabelValues(feed).Add(float64(n))
}

func (c *Collector) Candidates(feed string, n int) {
	c.candidates.WithLabelValues(feed).Add(float64(n))
}

func (c *Collector) Skipped(feed, reason string, n int) {
	c.skipped.WithLabelValues(feed, reason).Add(float64(n))
}

func (c *Collector) Published(feed string) {
	c.published.WithLabelValues(feed).Inc()
}

func (c *Collector) PublishFailed(feed string) {
	c.publishFailed.WithLabelValues(feed).Inc()
}

func (c *Collector) FeedFailed(feed string) {
	c.feedFailed.WithLabelValues(feed).Inc()
}

func (c *Collector) FeedDuration(feed string, d time.Duration) {
	c.feedDuration.WithLabelValues(feed).Observe(d.Seconds())
}

func (c *Collector) FeedSucceeded(feed string, at time.Time) {
	c.lastSuccess.WithLabelValues(feed).Set(float64(at.Unix()))
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format. The file is replaced atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
