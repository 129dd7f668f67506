// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Metrics are buffered in memory, submitted on a ticker (default once per
// minute) and flushed one final time on Close. Short-lived commands get the
// tail flush; long imports get a time series instead of a single spike at
// exit.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"chatdb/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. If empty, defaults
	// to "chatdb".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:chatdb"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests use
	// them to avoid real network submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend needs.
// The SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead lets tests stub submission.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[string]*entry
	timings  map[string][]float64
	timeTags map[string][]string
}

// entry is one buffered counter: accumulated value plus its tag set.
type entry struct {
	value float64
	tags  []string
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "chatdb".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Network errors occur during Flush, not here; the API key is read from the
// environment by the SDK's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "chatdb"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	tickerFn := opts.newTicker
	if tickerFn == nil {
		tickerFn = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  tickerFn,
		counters:   make(map[string]*entry),
		timings:    make(map[string][]float64),
		timeTags:   make(map[string][]string),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, value float64, tags ...string) {
	if value <= 0 {
		return
	}
	key := bufferKey(name, tags)

	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.counters[key]
	if !ok {
		b.counters[key] = &entry{value: value, tags: tags}
		return
	}
	e.value += value
}

// ObserveMS implements metrics.Backend.
func (b *Backend) ObserveMS(name string, ms float64, tags ...string) {
	if ms < 0 {
		return
	}
	key := bufferKey(name, tags)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.timings[key] = append(b.timings[key], ms)
	b.timeTags[key] = tags
}

// Flush submits buffered metrics and resets local buffers.
//
// Buffers reset even when submission fails so a slow Datadog intake cannot
// back up the import hot path. Returns nil when nothing is buffered.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters := b.counters
	timings := b.timings
	timeTags := b.timeTags
	b.counters = make(map[string]*entry)
	b.timings = make(map[string][]float64)
	b.timeTags = make(map[string][]string)
	b.mu.Unlock()

	if len(counters) == 0 && len(timings) == 0 {
		return nil
	}

	nowUnix := b.now().Unix()
	series := b.buildSeries(counters, timings, timeTags, nowUnix)

	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, no network, no clocks) so tests can assert
// on naming and tagging directly. Output order is deterministic.
func (b *Backend) buildSeries(counters map[string]*entry, timings map[string][]float64, timeTags map[string][]string, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counters)+4*len(timings))

	for _, key := range sortedKeys(counters) {
		e := counters[key]
		series = append(series, datadogV2.MetricSeries{
			Metric: metricName(key),
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(e.value)},
			},
			Tags: withTags(b.baseTags, e.tags...),
		})
	}

	timingKeys := make([]string, 0, len(timings))
	for k := range timings {
		timingKeys = append(timingKeys, k)
	}
	sort.Strings(timingKeys)

	for _, key := range timingKeys {
		samples := append([]float64(nil), timings[key]...)
		sort.Float64s(samples)
		tags := withTags(b.baseTags, timeTags[key]...)
		name := metricName(key)

		series = append(series,
			gaugeSeries(name+".p50", percentileNearestRank(samples, 0.50), tags, nowUnix),
			gaugeSeries(name+".p95", percentileNearestRank(samples, 0.95), tags, nowUnix),
			gaugeSeries(name+".max", samples[len(samples)-1], tags, nowUnix),
			gaugeSeries(name+".samples", float64(len(samples)), tags, nowUnix),
		)
	}

	return series
}

// Close stops the background flush loop and performs one final Flush.
// Close once; a second Close panics on the already-closed channel.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func bufferKey(name string, tags []string) string {
	if len(tags) == 0 {
		return name
	}
	return name + "\x00" + strings.Join(tags, "\x00")
}

func metricName(key string) string {
	if i := strings.IndexByte(key, 0); i >= 0 {
		return key[:i]
	}
	return key
}

func sortedKeys(m map[string]*entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:chatdb".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
