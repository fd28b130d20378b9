package ncd

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// BuildConfig controls how a Build sizes and lays out its output file. The
// zero value is not usable directly; start from DefaultBuildConfig.
//
// Every With* method returns a modified copy, mirroring the reference
// implementation's clone-and-override builder macro.
type BuildConfig struct {
	targetPageSize      uint32
	targetLoadFactor    float64
	heapWiggleRoom      float64
	minEntriesPerPage   uint64
	externalThreshold   float64
	rebuildPageFactor   float64
	forceHeaderSize     uint32 // 0 = unset
	maxAttempts         int
}

// DefaultBuildConfig returns the configuration the builder uses unless the
// caller overrides individual fields.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		targetPageSize:    32 * 1024,
		targetLoadFactor:  0.5,
		heapWiggleRoom:    1.25,
		minEntriesPerPage: 100,
		externalThreshold: 0.1,
		rebuildPageFactor: 1.2,
		maxAttempts:       64,
	}
}

func (c BuildConfig) WithTargetPageSize(v uint32) BuildConfig    { c.targetPageSize = v; return c }
func (c BuildConfig) TargetPageSize() uint32                     { return c.targetPageSize }
func (c BuildConfig) WithTargetLoadFactor(v float64) BuildConfig { c.targetLoadFactor = v; return c }
func (c BuildConfig) TargetLoadFactor() float64                  { return c.targetLoadFactor }
func (c BuildConfig) WithHeapWiggleRoom(v float64) BuildConfig   { c.heapWiggleRoom = v; return c }
func (c BuildConfig) HeapWiggleRoom() float64                    { return c.heapWiggleRoom }

// WithMinEntriesPerPage is accepted and stored but is advisory only: the
// sizing computation does not consult it, matching the reference
// implementation exactly (see SPEC_FULL.md Open Questions).
func (c BuildConfig) WithMinEntriesPerPage(v uint64) BuildConfig { c.minEntriesPerPage = v; return c }
func (c BuildConfig) MinEntriesPerPage() uint64                 { return c.minEntriesPerPage }
func (c BuildConfig) WithExternalThreshold(v float64) BuildConfig {
	c.externalThreshold = v
	return c
}
func (c BuildConfig) ExternalThreshold() float64 { return c.externalThreshold }
func (c BuildConfig) WithRebuildPageFactor(v float64) BuildConfig {
	c.rebuildPageFactor = v
	return c
}
func (c BuildConfig) RebuildPageFactor() float64 { return c.rebuildPageFactor }
func (c BuildConfig) WithForceHeaderSize(v uint32) BuildConfig { c.forceHeaderSize = v; return c }
func (c BuildConfig) ForceHeaderSize() uint32                 { return c.forceHeaderSize }
func (c BuildConfig) WithMaxAttempts(v int) BuildConfig        { c.maxAttempts = v; return c }
func (c BuildConfig) MaxAttempts() int                         { return c.maxAttempts }

// Stats summarizes a ValueSource's contents, scanned once up front to size
// the output file.
type Stats struct {
	NumberOfKeys uint64
	TotalLength  uint64
}

// scanStats walks source once, computing the same per-entry size estimate
// as the reference implementation: key + value + 6 bytes of encoding
// overhead.
func scanStats(source ValueSource) (Stats, error) {
	it, err := source.Iter()
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrIO, err)
	}
	var s Stats
	for {
		key, value, ok, err := it.Next()
		if err != nil {
			return Stats{}, fmt.Errorf("%w: %v", ErrIO, err)
		}
		if !ok {
			break
		}
		s.NumberOfKeys++
		s.TotalLength += uint64(len(key)) + uint64(len(value)) + 6
	}
	return s, nil
}

func guessNumberOfPages(config BuildConfig, stats Stats) uint64 {
	pointerSizeK := 2.0
	if config.targetPageSize >= 65536 {
		pointerSizeK = 4.0
	}
	totalTableSpace := pointerSizeK * float64(stats.NumberOfKeys) / config.targetLoadFactor
	totalHeapSpace := config.heapWiggleRoom * float64(stats.TotalLength)
	totalSpace := totalTableSpace + totalHeapSpace
	reducedPageSize := float64(config.targetPageSize) - float64(HeaderSize)
	return uint64(totalSpace/reducedPageSize) + 1
}

func guessEntriesPerPage(stats Stats, numberOfPages uint64) uint64 {
	if numberOfPages == 0 {
		return 1
	}
	v := stats.NumberOfKeys / numberOfPages
	if v < 1 {
		return 1
	}
	return v
}

// initialHeaderGuess computes the first Header to try, and the external
// threshold (in bytes) records above which move to the overflow region.
func initialHeaderGuess(config BuildConfig, stats Stats, stamp uint32) (*Header, uint64, error) {
	if stats.NumberOfKeys == 0 {
		h, err := NewHeader(1, uint32(HeaderSize), 0, config.forceHeaderSize, stamp)
		if err != nil {
			return nil, 0, err
		}
		return h, 0, nil
	}
	pointerSizeK := uint32(2)
	if config.targetPageSize >= 65536 {
		pointerSizeK = 4
	}
	numberOfPages := guessNumberOfPages(config, stats)
	if numberOfPages == 0 {
		numberOfPages = 1
	}
	entriesPerPage := guessEntriesPerPage(stats, numberOfPages)
	tableSizeEntries := uint32(float64(entriesPerPage)/config.targetLoadFactor) + 1
	tableSizeBytes := tableSizeEntries * pointerSizeK
	heapSize := uint32(HeaderSize)
	if config.targetPageSize > tableSizeBytes+4 {
		if v := config.targetPageSize - tableSizeBytes - 4; v > heapSize {
			heapSize = v
		}
	}
	externalMinimum := uint64(config.externalThreshold * float64(heapSize))
	threshold := externalMinimum
	if threshold < 16 {
		threshold = 16
	}
	h, err := NewHeader(numberOfPages, heapSize, tableSizeEntries, config.forceHeaderSize, stamp)
	if err != nil {
		return nil, 0, err
	}
	return h, threshold, nil
}

// Build drives the write-attempt retry loop: size the file, attempt a
// write, and on overflow grow the page count and try again.
type Build struct {
	source        ValueSource
	config        BuildConfig
	header        *Header
	threshold     uint64
	path          string
	failureReason string
	attempts      int
	metrics       *Metrics
	logger        zerolog.Logger
}

// NewBuild scans source for sizing statistics and prepares the initial
// header guess. stamp should be a fresh seconds-since-epoch value supplied
// by the caller (the package never reads the system clock itself, so
// builds stay deterministic and testable).
func NewBuild(config BuildConfig, source ValueSource, path string, stamp uint32, logger zerolog.Logger) (*Build, error) {
	stats, err := scanStats(source)
	if err != nil {
		return nil, err
	}
	header, threshold, err := initialHeaderGuess(config, stats, stamp)
	if err != nil {
		return nil, err
	}
	return &Build{
		source:    source,
		config:    config,
		header:    header,
		threshold: threshold,
		path:      path,
		logger:    logger,
	}, nil
}

// SetMetrics attaches a Metrics collector; optional.
func (b *Build) SetMetrics(m *Metrics) { b.metrics = m }

// DescribeAttempt summarizes the header the next attempt will use.
func (b *Build) DescribeAttempt() string {
	return fmt.Sprintf("%d pages", b.header.NumberOfPages)
}

// Result returns a human-readable description of the most recent attempt's
// outcome.
func (b *Build) Result() string { return b.failureReason }

func (b *Build) crankPageCount() (*Header, error) {
	grown := uint64(math.Ceil(float64(b.header.NumberOfPages) * b.config.rebuildPageFactor))
	if grown <= b.header.NumberOfPages {
		grown = b.header.NumberOfPages + 1
	}
	return NewHeader(grown, b.header.HeapSize, b.header.TableSizeEntries, b.config.forceHeaderSize, b.header.Stamp)
}

// Attempt runs a single write pass. It returns true on success; false means
// the file overflowed and the Build has already grown its page count for
// the next call. Run returns a terminal error (wrapping ErrBadConfiguration)
// once MaxAttempts is exceeded.
func (b *Build) Attempt(ctx context.Context) (bool, error) {
	if b.config.maxAttempts > 0 && b.attempts >= b.config.maxAttempts {
		return false, fmt.Errorf("%w: build did not converge after %d attempts: %s", ErrBadConfiguration, b.attempts, b.failureReason)
	}
	b.attempts++
	if b.metrics != nil {
		b.metrics.attempts.Inc()
	}

	wa, err := newWriteAttempt(b.header, b.path, b.threshold)
	if err != nil {
		return false, err
	}

	if err := wa.addAll(b.source); err != nil {
		wa.abandon()
		switch {
		case errors.Is(err, ErrTableFull):
			b.failureReason = "table overflow"
			b.logger.Info().Str("attempt", b.DescribeAttempt()).Msg("table overflow, retrying with more pages")
			if b.metrics != nil {
				b.metrics.tableFull.Inc()
			}
			next, cerr := b.crankPageCount()
			if cerr != nil {
				return false, cerr
			}
			b.header = next
			return false, nil
		case errors.Is(err, ErrHeapFull):
			b.failureReason = "heap overflow"
			b.logger.Info().Str("attempt", b.DescribeAttempt()).Msg("heap overflow, retrying with more pages")
			if b.metrics != nil {
				b.metrics.heapFull.Inc()
			}
			next, cerr := b.crankPageCount()
			if cerr != nil {
				return false, cerr
			}
			b.header = next
			return false, nil
		default:
			return false, err
		}
	}

	if err := wa.finish(); err != nil {
		return false, err
	}
	b.failureReason = fmt.Sprintf("succeeded with %d pages", b.header.NumberOfPages)
	if b.metrics != nil {
		b.metrics.finalPages.Set(float64(b.header.NumberOfPages))
	}
	b.logger.Info().Str("attempt", b.DescribeAttempt()).Msg("build succeeded")
	return true, nil
}

// Run calls Attempt repeatedly until it succeeds or returns an error.
func (b *Build) Run(ctx context.Context) error {
	for {
		ok, err := b.Attempt(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// Metrics exposes prometheus counters/gauges for build observability:
// attempt count, overflow retries by kind, and the page count of the final
// successful attempt.
type Metrics struct {
	attempts   prometheus.Counter
	tableFull  prometheus.Counter
	heapFull   prometheus.Counter
	finalPages prometheus.Gauge
}

// NewMetrics constructs a Metrics and registers it with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncd",
			Subsystem: "build",
			Name:      "attempts_total",
			Help:      "Number of write attempts made by a build.",
		}),
		tableFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncd",
			Subsystem: "build",
			Name:      "table_full_total",
			Help:      "Number of attempts that failed with a full page table.",
		}),
		heapFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ncd",
			Subsystem: "build",
			Name:      "heap_full_total",
			Help:      "Number of attempts that failed with a full page heap.",
		}),
		finalPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ncd",
			Subsystem: "build",
			Name:      "final_pages",
			Help:      "Page count of the most recently succeeded build.",
		}),
	}
	for _, c := range []prometheus.Collector{m.attempts, m.tableFull, m.heapFull, m.finalPages} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("ncd: register metric: %w", err)
		}
	}
	return m, nil
}
