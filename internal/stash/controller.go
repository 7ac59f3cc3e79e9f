// Package stash implements the stash-buffer I/O controller: it drives a
// pkg/loader.Loader, presents byte chunks to a consumer with absolute
// offsets, honors partial-consumption back-pressure, adapts its buffer size
// to observed throughput, and recovers transparently from early EOF.
package stash

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/jmylchreest/flvtransmux/internal/config"
	"github.com/jmylchreest/flvtransmux/pkg/loader"
)

// Consumer is the callback the controller drives on every chunk it is ready
// to dispatch. It mirrors internal/flv.Demuxer.Feed's signature exactly:
// the consumer reports how many leading bytes of chunk it absorbed, and the
// controller retains the remainder.
type Consumer func(chunk []byte, absOffset int64) (consumed int, err error)

// Controller is the stash-buffer I/O controller (spec §4.1).
type Controller struct {
	cfg config.StashConfig

	ld      loader.Loader
	onChunk Consumer
	logger  *slog.Logger

	mu           sync.Mutex
	buf          *buffer
	totalLength  int64
	haveTotal    bool
	currentRange loader.Range
	source       loader.DataSource
	pauseOffset  int64
	paused       bool
	aborted      bool
	recovering   bool
	recoverCount int
	ctx          context.Context
	cancel       context.CancelFunc

	// OnRecoveredEarlyEof fires exactly once per recovery, the first time
	// bytes arrive after an internal EarlyEof reconnect.
	OnRecoveredEarlyEof func()
	// OnError reports a terminal failure (UnrecoverableEarlyEof or any
	// other loader error that isn't recoverable).
	OnError func(*Error)
	// OnWarning reports non-fatal conditions, including the gopsutil-backed
	// memory-pressure soft warning.
	OnWarning func(string)

	probeScheduler *cron.Cron
}

// NewController constructs a Controller bound to ld. onChunk is invoked for
// every dispatched chunk; it must not retain chunk beyond the call.
func NewController(cfg config.StashConfig, ld loader.Loader, onChunk Consumer) *Controller {
	logger := slog.Default()
	initial := int(cfg.InitialSize)
	if initial <= 0 {
		initial = minStashSizeKiB * 1024
	}
	return &Controller{
		cfg:     cfg,
		ld:      ld,
		onChunk: onChunk,
		logger:  logger,
		buf:     newBuffer(initial),
	}
}

// WithLogger sets a custom logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	c.logger = logger
	return c
}

// Open begins fetching source starting at from (spec §4.1 "open(from?)").
// from < 0 means a full-request from the beginning.
func (c *Controller) Open(ctx context.Context, source loader.DataSource, from int64) error {
	c.mu.Lock()
	c.source = source
	c.aborted = false
	c.recovering = false
	c.ctx, c.cancel = context.WithCancel(ctx)
	fetchCtx := c.ctx
	start := from
	if start < 0 {
		start = 0
	}
	c.currentRange = loader.Range{From: start, To: -1}
	r := c.currentRange
	c.mu.Unlock()

	return c.openRange(fetchCtx, source, r)
}

func (c *Controller) openRange(ctx context.Context, source loader.DataSource, r loader.Range) error {
	cb := loader.Callbacks{
		OnContentLengthKnown: c.handleContentLength,
		OnDataArrival:        c.handleDataArrival,
		OnError:              c.handleLoaderError,
		OnComplete:           c.handleComplete,
	}
	return c.ld.Open(ctx, source, r, cb)
}

func (c *Controller) handleContentLength(length int64) {
	c.mu.Lock()
	c.totalLength = length
	c.haveTotal = length > 0
	c.mu.Unlock()
}

func (c *Controller) handleDataArrival(chunk []byte, absOffset int64, totalReceived int64) {
	c.mu.Lock()
	wasRecovering := c.recovering
	c.recovering = false
	speed := c.ld.CurrentSpeed()
	targetKiB := computeStashSizeKiB(speed, c.cfg.IsLive)
	c.buf.setTargetSize(targetKiB * 1024)
	c.mu.Unlock()

	if wasRecovering {
		c.recoverCount = 0
		if c.OnRecoveredEarlyEof != nil {
			c.OnRecoveredEarlyEof()
		}
	}

	c.ingest(chunk, absOffset)
}

// ingest implements the "Control flow on chunk arrival" rule (spec §4.1).
func (c *Controller) ingest(chunk []byte, absOffset int64) {
	if !c.cfg.Enabled {
		if err := c.dispatch(chunk, absOffset); err != nil {
			c.reportLoaderErr(err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf.fitsWithoutDispatch(len(chunk)) {
		c.buf.append(chunk, absOffset)
		return
	}

	if c.buf.len() == 0 {
		if err := c.dispatchLocked(chunk, absOffset); err != nil {
			c.reportLoaderErrLocked(err)
		}
		return
	}

	c.flushLocked(false)
	c.buf.append(chunk, absOffset)
}

// dispatch invokes onChunk and stashes any unconsumed tail.
func (c *Controller) dispatch(chunk []byte, absOffset int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatchLocked(chunk, absOffset)
}

func (c *Controller) dispatchLocked(chunk []byte, absOffset int64) error {
	consumed, err := c.onChunk(chunk, absOffset)
	if err != nil {
		return err
	}
	if consumed < len(chunk) {
		c.buf.append(chunk[consumed:], absOffset+int64(consumed))
	}
	return nil
}

// flushLocked implements _flushStashBuffer(dropUnconsumed) (spec §4.1).
func (c *Controller) flushLocked(dropUnconsumed bool) {
	if c.buf.len() == 0 {
		return
	}
	absOffset := c.buf.stashByteStart
	data := append([]byte(nil), c.buf.bytes()...)
	c.buf.reset(c.buf.stashByteStart + int64(len(data)))

	consumed, err := c.onChunk(data, absOffset)
	if err != nil {
		c.reportLoaderErrLocked(err)
		return
	}
	if !dropUnconsumed && consumed < len(data) {
		c.buf.append(data[consumed:], absOffset+int64(consumed))
	}
}

func (c *Controller) handleComplete(rangeFrom, rangeTo int64) {
	c.mu.Lock()
	c.flushLocked(false)
	c.mu.Unlock()
}

func (c *Controller) handleLoaderError(info loader.ErrorInfo) {
	if info.Code == loader.ErrorCodeEarlyEof {
		c.tryRecoverEarlyEof()
		return
	}
	if info.Code == loader.ErrorCodeAborted {
		return
	}
	c.reportLoaderErr(newError(KindLoaderError, info))
}

// tryRecoverEarlyEof implements spec §4.1's EarlyEof recovery rule.
func (c *Controller) tryRecoverEarlyEof() {
	c.mu.Lock()
	if !c.haveTotal {
		c.mu.Unlock()
		c.reportLoaderErr(newError(KindEarlyEof, errors.New("early eof, total length unknown")))
		return
	}
	nextFrom := c.currentRange.To + 1
	if c.currentRange.To < 0 {
		nextFrom = c.buf.stashByteStart + int64(c.buf.len())
	}
	if nextFrom >= c.totalLength {
		c.mu.Unlock()
		c.reportLoaderErr(newError(KindEarlyEof, errors.New("early eof at end of stream")))
		return
	}
	c.recovering = true
	c.recoverCount++
	r := loader.Range{From: nextFrom, To: -1}
	c.currentRange = r
	source := c.source
	ctx := c.ctx
	c.mu.Unlock()

	if err := c.openRange(ctx, source, r); err != nil {
		c.reportLoaderErr(newError(KindUnrecoverableEarlyEof, err))
	}
}

func (c *Controller) reportLoaderErr(err error) {
	c.mu.Lock()
	c.reportLoaderErrLocked(err)
	c.mu.Unlock()
}

func (c *Controller) reportLoaderErrLocked(err error) {
	var se *Error
	if !errors.As(err, &se) {
		se = newError(KindLoaderError, err)
	}
	if c.OnError != nil {
		c.OnError(se)
	}
}

// Abort implements spec §4.1 "abort()": aborts the loader and clears pause
// state.
func (c *Controller) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.paused = false
	cancel := c.cancel
	c.mu.Unlock()
	c.ld.Abort()
	if cancel != nil {
		cancel()
	}
}

// Pause implements spec §4.1 "pause()".
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.len() > 0 {
		c.pauseOffset = c.buf.stashByteStart + int64(c.buf.len())
	} else {
		c.pauseOffset = c.currentRange.To + 1
		if c.currentRange.To < 0 {
			c.pauseOffset = c.buf.stashByteStart
		}
	}
	c.paused = true
	c.buf.reset(c.pauseOffset)
	c.ld.Abort()
}

// Resume implements spec §4.1 "resume()": internal-seek to the recorded
// resume offset, preserving any stash contents (dropUnconsumed=false).
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	c.paused = false
	from := c.pauseOffset
	c.currentRange = loader.Range{From: from, To: -1}
	r := c.currentRange
	source := c.source
	c.mu.Unlock()

	return c.openRange(ctx, source, r)
}

// Seek implements spec §4.1 "seek(bytes)": internal-seek, dropping any
// unconsumed stash contents.
func (c *Controller) Seek(ctx context.Context, absoluteOffset int64) error {
	c.mu.Lock()
	c.flushLocked(true)
	c.buf.reset(absoluteOffset)
	c.currentRange = loader.Range{From: absoluteOffset, To: -1}
	r := c.currentRange
	source := c.source
	c.mu.Unlock()

	c.ld.Abort()
	return c.openRange(ctx, source, r)
}

// StartMemoryPressureProbe schedules a periodic gopsutil-backed host memory
// check (spec SPEC_FULL domain stack: "soft warning only, never overrides
// the hard cap"), grounded on the donor scheduler's cron.NewParser/cron.New
// wiring. schedule is a 6-field cron expression (seconds-first); an empty
// schedule disables the probe.
func (c *Controller) StartMemoryPressureProbe(schedule string) error {
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := sched.AddFunc(schedule, c.probeMemoryPressure); err != nil {
		return err
	}
	c.probeScheduler = sched
	sched.Start()
	return nil
}

// StopMemoryPressureProbe stops and releases the probe scheduler, if one was
// started.
func (c *Controller) StopMemoryPressureProbe() {
	if c.probeScheduler == nil {
		return
	}
	ctx := c.probeScheduler.Stop()
	<-ctx.Done()
	c.probeScheduler = nil
}

func (c *Controller) probeMemoryPressure() {
	info, err := mem.VirtualMemoryWithContext(context.Background())
	if err != nil {
		return
	}

	c.mu.Lock()
	nearCap := c.buf.stashSizeBytes >= (maxStashSizeKiB*1024)*9/10
	c.mu.Unlock()

	availablePercent := 100.0
	if info.Total > 0 {
		availablePercent = float64(info.Available) / float64(info.Total) * 100
	}

	if nearCap && availablePercent < 10 {
		if c.OnWarning != nil {
			c.OnWarning("stash buffer near its size cap while host memory is low")
		}
		if c.logger != nil {
			c.logger.Warn("stash buffer near cap under memory pressure",
				"available_percent", availablePercent,
				"used_percent", info.UsedPercent)
		}
	}
}

// StashByteStart returns the absolute source offset of byte zero of the
// stash (spec §3 "stashByteStart").
func (c *Controller) StashByteStart() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.stashByteStart
}

// StashLen returns the number of unconsumed stashed bytes.
func (c *Controller) StashLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}
