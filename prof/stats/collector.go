// Package stats aggregates drained frame reports into per-stream histories
// and per-region latency statistics.
package stats

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/tinyprof/prof"
)

// StreamKey identifies a logical report stream. Threads that share a
// display name coalesce into one stream per time-source kind.
type StreamKey struct {
	Thread string    `json:"thread"`
	Source prof.Kind `json:"source"`
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s/%s", k.Thread, k.Source)
}

// Key returns the stream a report belongs to.
func Key(r prof.FrameReport) StreamKey {
	return StreamKey{Thread: r.ThreadName, Source: r.Source}
}

// Config contains configuration for a Collector.
type Config struct {
	// HistoryFrames is the number of reports kept per stream (default: 300)
	HistoryFrames int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 3600000000 = 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistoryFrames:    DefaultHistoryFrames,
		HistogramMin:     1,
		HistogramMax:     3600000000, // 1 hour in microseconds
		HistogramSigFigs: 3,
	}
}

// RegionStats summarizes every recorded duration of one region id within a
// stream.
type RegionStats struct {
	Name    string        `json:"name"`
	ID      string        `json:"id"`
	Count   int64         `json:"count"`
	Pending int64         `json:"pending"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Mean    time.Duration `json:"mean"`
	StdDev  time.Duration `json:"stdDev"`
	P50     time.Duration `json:"p50"`
	P90     time.Duration `json:"p90"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// Totals counts what a Collector has ingested.
type Totals struct {
	Reports     int64 `json:"reports"`
	Resolutions int64 `json:"resolutions"`
	// Unmatched counts resolutions whose report had already left the
	// history. Their durations still reach the region statistics.
	Unmatched int64 `json:"unmatched"`
}

// Collector is the consumer-side aggregate of drained reports.
//
// # Thread Safety
//
// Collector is safe for concurrent use. Ingest takes the write lock; the
// accessors take the read lock and return copies.
type Collector struct {
	mu      sync.RWMutex
	config  Config
	streams map[StreamKey]*stream
	totals  Totals
}

type stream struct {
	history   *History
	regions   map[string]*regionHist
	order     []string // region ids in first-seen order
	variables map[string]float64
	frames    int64
}

type regionHist struct {
	name    string
	id      string
	hist    *hdrhistogram.Histogram
	pending int64
}

// NewCollector creates a Collector with default configuration.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultConfig())
}

// NewCollectorWithConfig creates a Collector with custom configuration.
func NewCollectorWithConfig(config Config) *Collector {
	defaults := DefaultConfig()
	if config.HistoryFrames <= 0 {
		config.HistoryFrames = defaults.HistoryFrames
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	return &Collector{
		config:  config,
		streams: make(map[StreamKey]*stream),
	}
}

// Ingest adds drained reports in receipt order. Late resolutions patch the
// stored report they refer to and feed the region statistics.
func (c *Collector) Ingest(reports ...prof.FrameReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range reports {
		s := c.stream(Key(r))
		c.totals.Reports++
		s.frames++

		for _, res := range r.Resolved {
			c.totals.Resolutions++
			if !s.history.Resolve(res) {
				c.totals.Unmatched++
			}
			rh := c.region(s, res.Name, res.ID)
			if rh.pending > 0 {
				rh.pending--
			}
			c.record(rh, res.Duration)
		}

		r.Walk(func(_ []int, n prof.Node) bool {
			rh := c.region(s, n.Name, n.ID)
			if n.Pending {
				rh.pending++
			} else {
				c.record(rh, n.Duration)
			}
			return true
		})

		if len(r.Roots) > 0 {
			s.variables = r.Variables
		}
		s.history.Add(r)
	}
}

func (c *Collector) stream(key StreamKey) *stream {
	s, ok := c.streams[key]
	if !ok {
		s = &stream{
			history: NewHistory(c.config.HistoryFrames),
			regions: make(map[string]*regionHist),
		}
		c.streams[key] = s
	}
	return s
}

func (c *Collector) region(s *stream, name, id string) *regionHist {
	key := id
	if key == "" {
		key = name
	}
	rh, ok := s.regions[key]
	if !ok {
		rh = &regionHist{
			name: name,
			id:   id,
			hist: hdrhistogram.New(c.config.HistogramMin, c.config.HistogramMax, c.config.HistogramSigFigs),
		}
		s.regions[key] = rh
		s.order = append(s.order, key)
	}
	return rh
}

func (c *Collector) record(rh *regionHist, d time.Duration) {
	// Convert to microseconds and clamp to the valid range
	micros := d.Microseconds()
	if micros < c.config.HistogramMin {
		micros = c.config.HistogramMin
	}
	if micros > c.config.HistogramMax {
		micros = c.config.HistogramMax
	}
	_ = rh.hist.RecordValue(micros)
}

// Streams returns every stream seen so far, sorted by thread name then kind.
func (c *Collector) Streams() []StreamKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]StreamKey, 0, len(c.streams))
	for k := range c.streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Thread != keys[j].Thread {
			return keys[i].Thread < keys[j].Thread
		}
		return keys[i].Source < keys[j].Source
	})
	return keys
}

// Latest returns the most recent report of a stream.
func (c *Collector) Latest(key StreamKey) (prof.FrameReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.streams[key]
	if !ok {
		return prof.FrameReport{}, false
	}
	return s.history.Latest()
}

// History returns the retained reports of a stream, oldest first.
func (c *Collector) History(key StreamKey) []prof.FrameReport {
	return c.Recent(key, 0)
}

// Recent returns up to n of the most recent reports of a stream, oldest
// first. n <= 0 returns the whole history.
func (c *Collector) Recent(key StreamKey, n int) []prof.FrameReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.streams[key]
	if !ok {
		return nil
	}
	return s.history.Recent(n)
}

// Variables returns the trace variables of the stream's latest report that
// recorded regions.
func (c *Collector) Variables(key StreamKey) map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.streams[key]
	if !ok {
		return nil
	}
	vars := make(map[string]float64, len(s.variables))
	for k, v := range s.variables {
		vars[k] = v
	}
	return vars
}

// Frames returns the number of reports ingested for a stream.
func (c *Collector) Frames(key StreamKey) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, ok := c.streams[key]; ok {
		return s.frames
	}
	return 0
}

// Regions returns per-region statistics of a stream in first-seen order.
func (c *Collector) Regions(key StreamKey) []RegionStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.streams[key]
	if !ok {
		return nil
	}

	result := make([]RegionStats, 0, len(s.order))
	for _, id := range s.order {
		rh := s.regions[id]
		hist := rh.hist
		stats := RegionStats{
			Name:    rh.name,
			ID:      rh.id,
			Count:   hist.TotalCount(),
			Pending: rh.pending,
		}
		if stats.Count > 0 {
			stats.Min = time.Duration(hist.Min()) * time.Microsecond
			stats.Max = time.Duration(hist.Max()) * time.Microsecond
			stats.Mean = time.Duration(hist.Mean()) * time.Microsecond
			stats.StdDev = time.Duration(hist.StdDev()) * time.Microsecond
			stats.P50 = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
			stats.P90 = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
			stats.P95 = time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond
			stats.P99 = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond
		}
		result = append(result, stats)
	}
	return result
}

// Totals returns a copy of the ingest counters.
func (c *Collector) Totals() Totals {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totals
}

// Reset discards every stream.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streams = make(map[StreamKey]*stream)
	c.totals = Totals{}
}
