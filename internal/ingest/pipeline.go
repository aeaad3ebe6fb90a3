package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/pulse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256

	// sinkTimeout bounds each store write made by a worker.
	sinkTimeout = 5 * time.Second
)

// Logger is the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// IdentitySource resolves device links from memory without blocking.
type IdentitySource interface {
	Lookup(deviceID uint32) (*telemetry.Identity, bool)
}

// SessionState reports the lesson currently accepting samples.
type SessionState interface {
	ActiveSessionID() (string, bool)
}

// HistoryWriter appends a reading to a lesson's history.
type HistoryWriter interface {
	AppendSample(ctx context.Context, sessionID string, r telemetry.Reading) error
}

// CurrentWriter stores the latest reading per device.
type CurrentWriter interface {
	UpsertCurrent(ctx context.Context, r telemetry.Reading) error
}

// Publisher publishes JSON messages. *mqtt.Client satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// TimeSeriesWriter mirrors readings to a time-series store.
// *influxdb.Client satisfies it.
type TimeSeriesWriter interface {
	WriteHeartRate(r telemetry.Reading, identity *telemetry.Identity)
}

// Options configures a Pipeline. Cache is required; every other sink is
// optional and skipped when nil.
type Options struct {
	Cache      *Cache
	Identities IdentitySource
	History    HistoryWriter
	Current    CurrentWriter
	Publisher  Publisher
	TimeSeries TimeSeriesWriter
	Metrics    *metrics.Metrics

	Workers   int
	QueueSize int
}

// ReadingMessage is the JSON body published for every reading.
type ReadingMessage struct {
	DeviceID   uint32              `json:"device_id"`
	HeartRate  uint16              `json:"heart_rate"`
	BeatTime   uint16              `json:"beat_time"`
	BeatCount  uint8               `json:"beat_count"`
	Channel    string              `json:"channel"`
	ReceivedAt string              `json:"received_at"`
	UserID     string              `json:"user_id,omitempty"`
	UserName   string              `json:"user_name,omitempty"`
	Zones      *scoring.ZoneRanges `json:"zones,omitempty"`
}

type job struct {
	entry     CacheEntry
	sessionID string
}

// Pipeline distributes readings to the cache and the asynchronous sinks.
type Pipeline struct {
	opts    Options
	session SessionState
	logger  Logger
	topics  mqtt.Topics

	mu      sync.RWMutex // guards running and queues
	running bool
	queues  []chan job
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	pendingMu sync.Mutex
	pending   int
	waiters   []chan struct{}
}

// NewPipeline creates a pipeline. It does not accept work until Start.
func NewPipeline(opts Options) *Pipeline {
	if opts.Cache == nil {
		opts.Cache = NewCache()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Pipeline{opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetSessionState sets the source of the active lesson id. Readings are
// only appended to history while it reports an active lesson.
// Must be called before Start.
func (p *Pipeline) SetSessionState(s SessionState) {
	p.session = s
}

// Cache returns the pipeline's cache.
func (p *Pipeline) Cache() *Cache {
	return p.opts.Cache
}

// Start launches the worker goroutines.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.queues = make([]chan job, p.opts.Workers)
	for i := range p.queues {
		q := make(chan job, p.opts.QueueSize)
		p.queues[i] = q
		p.wg.Add(1)
		go p.worker(ctx, q)
	}
	p.running = true
	p.logger.Info("ingest pipeline started", "workers", p.opts.Workers, "queue_size", p.opts.QueueSize)
}

// Stop closes the queues and waits for the workers to finish what was
// already queued.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.logger.Info("ingest pipeline stopped")
}

// Forward accepts one reading. It never blocks.
func (p *Pipeline) Forward(r telemetry.Reading) {
	p.opts.Metrics.IncReading()

	entry := CacheEntry{Reading: r}
	if p.opts.Identities != nil {
		if id, ok := p.opts.Identities.Lookup(r.DeviceID); ok {
			entry.Identity = id
			entry.Zones = scoring.IdentityZoneRanges(id, r.ReceivedAt)
		}
	}
	p.opts.Cache.Upsert(entry)
	p.opts.Metrics.SetCacheDevices(p.opts.Cache.Len())

	// Count the history write before reading the session id so that Drain,
	// called after the gate stops accepting, also waits for this reading.
	sessionID := ""
	if p.session != nil && p.opts.History != nil {
		p.addPending()
		if id, ok := p.session.ActiveSessionID(); ok {
			sessionID = id
		} else {
			p.donePending()
		}
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		p.drop(r, sessionID, "pipeline not running")
		return
	}

	select {
	case p.queues[shard(r.DeviceID, len(p.queues))] <- job{entry: entry, sessionID: sessionID}:
	default:
		p.drop(r, sessionID, "queue full")
	}
}

func (p *Pipeline) drop(r telemetry.Reading, sessionID, reason string) {
	if sessionID != "" {
		p.donePending()
	}
	p.opts.Metrics.IncIngestDropped()
	p.logger.Warn("reading dropped", "device_id", r.DeviceID, "reason", reason)
}

// Drain waits until every history write counted so far has completed.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.pendingMu.Lock()
	if p.pending == 0 {
		p.pendingMu.Unlock()
		return nil
	}
	done := make(chan struct{})
	p.waiters = append(p.waiters, done)
	p.pendingMu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) addPending() {
	p.pendingMu.Lock()
	p.pending++
	p.pendingMu.Unlock()
}

func (p *Pipeline) donePending() {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	p.pending--
	if p.pending == 0 {
		for _, w := range p.waiters {
			close(w)
		}
		p.waiters = nil
	}
}

func (p *Pipeline) worker(ctx context.Context, q <-chan job) {
	defer p.wg.Done()
	for j := range q {
		p.process(ctx, j)
	}
}

func (p *Pipeline) process(ctx context.Context, j job) {
	r := j.entry.Reading

	if j.sessionID != "" {
		p.writeStore(ctx, metrics.SinkHistory, r, func(ctx context.Context) error {
			return p.opts.History.AppendSample(ctx, j.sessionID, r)
		})
		p.donePending()
	}

	if p.opts.Current != nil {
		p.writeStore(ctx, metrics.SinkCurrent, r, func(ctx context.Context) error {
			return p.opts.Current.UpsertCurrent(ctx, r)
		})
	}

	if p.opts.Publisher != nil {
		if err := p.opts.Publisher.PublishJSON(p.topics.Reading(r.DeviceID), newReadingMessage(j.entry), true); err != nil {
			p.opts.Metrics.IncSinkError(metrics.SinkMQTT)
			p.logger.Debug("reading publish failed", "device_id", r.DeviceID, "error", err)
		}
	}

	if p.opts.TimeSeries != nil {
		p.opts.TimeSeries.WriteHeartRate(r, j.entry.Identity)
	}
}

func (p *Pipeline) writeStore(ctx context.Context, sink string, r telemetry.Reading, write func(context.Context) error) {
	writeCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := write(writeCtx); err != nil {
		p.opts.Metrics.IncSinkError(sink)
		p.logger.Error("ingest write failed", "sink", sink, "device_id", r.DeviceID, "error", err)
	}
}

func newReadingMessage(e CacheEntry) ReadingMessage {
	msg := ReadingMessage{
		DeviceID:   e.Reading.DeviceID,
		HeartRate:  e.Reading.HeartRate,
		BeatTime:   e.Reading.BeatTime,
		BeatCount:  e.Reading.BeatCount,
		Channel:    e.Reading.Channel.String(),
		ReceivedAt: telemetry.FormatTime(e.Reading.ReceivedAt),
		Zones:      e.Zones,
	}
	if e.Identity != nil {
		msg.UserID = e.Identity.UserID
		msg.UserName = e.Identity.Name
	}
	return msg
}

// shard maps a device id onto one of n worker queues.
func shard(deviceID uint32, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte{byte(deviceID), byte(deviceID >> 8), byte(deviceID >> 16), byte(deviceID >> 24)})
	return int(h.Sum32() % uint32(n)) // #nosec G115 -- n is a small positive worker count
}
