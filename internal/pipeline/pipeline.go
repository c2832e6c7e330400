// Package pipeline fetches and parses media segments with bounded
// retry/backoff, an initialization-segment cache with at-most-one in-flight
// fetch per representation, and sample emission back to the bandwidth
// estimator. One Pipeline instance exists per track type.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jilles-sg/rx-player/internal/metrics"
	"github.com/jilles-sg/rx-player/internal/model"
	"github.com/jilles-sg/rx-player/internal/perr"
	"github.com/jilles-sg/rx-player/internal/telemetry"
	"github.com/jilles-sg/rx-player/internal/transport"
)

// SegmentDescriptor identifies one segment to fetch: an index (init segments
// use IsInit) and a URL resolved by the (out-of-core) manifest parser.
type SegmentDescriptor struct {
	URL    string
	Index  int // segment index within the representation; ignored for init
	IsInit bool
}

// EventKind discriminates the events LoadSegment emits.
type EventKind int

const (
	EventProgress EventKind = iota
	EventParsed
	EventWarning
	EventError
)

// Event is one message on a LoadSegment stream.
type Event struct {
	Kind     EventKind
	Progress ProgressInfo
	Parsed   []byte // opaque parsed payload; container parsing is out of core scope
	Err      error
}

// ProgressInfo carries an intermediate chunk's progress within a segment.
type ProgressInfo struct {
	DurationSoFarMs float64
	BytesSoFar      int64
}

// OnSample is called once per completed media segment (and once per
// throttled progress tick, with IsChunk set) with the (duration, bytes,
// isChunk) sample the bandwidth estimator consumes.
type OnSample func(model.Sample)

// Config configures one Pipeline instance.
type Config struct {
	Fetcher          transport.Fetcher
	MaxRetry         int           // 0 disables retry (optional image/BIF tracks)
	RequestTimeout   time.Duration // default 30s
	ProgressInterval time.Duration // default 200ms
	OnSample         OnSample
	Log              *zap.Logger
	Metrics          *metrics.Bus       // optional; retry counts and segment durations
	Telemetry        *telemetry.Manager // optional; one span per fetch attempt
}

// Pipeline fetches and caches segments for one track type.
type Pipeline struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	initCache map[string]*initEntry // keyed by representationID
}

type initEntry struct {
	done chan struct{}
	data []byte
	err  error
}

// New builds a Pipeline. Unset Config fields are defaulted (30s timeout,
// 200ms progress interval, zap.NewNop() logger). MaxRetry is used as given:
// a zero value means no retry.
func New(cfg Config) *Pipeline {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 200 * time.Millisecond
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, log: cfg.Log, initCache: make(map[string]*initEntry)}
}

// LoadInitSegment fetches and caches the initialization segment for
// representationID, guaranteeing at-most-one concurrent fetch: concurrent
// callers await the in-flight request.
func (p *Pipeline) LoadInitSegment(ctx context.Context, representationID, url string) ([]byte, error) {
	p.mu.Lock()
	if entry, ok := p.initCache[representationID]; ok {
		p.mu.Unlock()
		<-entry.done
		return entry.data, entry.err
	}
	entry := &initEntry{done: make(chan struct{})}
	p.initCache[representationID] = entry
	p.mu.Unlock()

	data, err := p.fetchWithRetry(ctx, representationID, transport.SegmentRequest{URL: url, IsInit: true}, nil)
	entry.data, entry.err = data, err
	close(entry.done)

	if err != nil {
		p.mu.Lock()
		delete(p.initCache, representationID)
		p.mu.Unlock()
	}
	return data, err
}

// EvictInitCache clears every cached initialization segment. Called on
// pipeline stop so a subsequent load re-fetches rather than serving stale
// init data.
func (p *Pipeline) EvictInitCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initCache = make(map[string]*initEntry)
}

// LoadSegment fetches one media segment, retrying transient failures and
// streaming progress events. The returned channel is closed after the
// terminal event (EventParsed or EventError); a cancelled ctx emits no
// terminal event at all.
func (p *Pipeline) LoadSegment(ctx context.Context, repr model.Representation, desc SegmentDescriptor) <-chan Event {
	out := make(chan Event, 4)
	go func() {
		defer close(out)

		requestID := uuid.NewString()
		log := p.log.With(zap.String("request_id", requestID), zap.String("representation_id", repr.ID))

		var lastProgress time.Time
		var bytesSoFar int64
		start := time.Now()

		onChunk := func(n int64, isFinal bool) {
			bytesSoFar += n
			if isFinal {
				return
			}
			if time.Since(lastProgress) < p.cfg.ProgressInterval {
				return
			}
			lastProgress = time.Now()
			elapsed := time.Since(start)
			select {
			case out <- Event{Kind: EventProgress, Progress: ProgressInfo{DurationSoFarMs: float64(elapsed.Milliseconds()), BytesSoFar: bytesSoFar}}:
			case <-ctx.Done():
			}
			if p.cfg.OnSample != nil {
				p.cfg.OnSample(model.Sample{DurationMs: float64(elapsed.Milliseconds()), Bytes: bytesSoFar, IsChunk: true})
			}
		}

		data, err := p.fetchWithRetry(ctx, repr.ID, transport.SegmentRequest{URL: desc.URL, IsInit: desc.IsInit}, onChunk)
		if ctx.Err() != nil {
			log.Debug("pipeline: load cancelled, suppressing terminal event")
			return
		}
		if err != nil {
			log.Warn("pipeline: segment load failed", zap.Error(err))
			select {
			case out <- Event{Kind: EventError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		durationMs := float64(time.Since(start).Milliseconds())
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.ObserveSegmentDuration(durationMs)
		}
		if !desc.IsInit && p.cfg.OnSample != nil {
			p.cfg.OnSample(model.Sample{DurationMs: durationMs, Bytes: int64(len(data)), IsChunk: false})
		}

		select {
		case out <- Event{Kind: EventParsed, Parsed: data}:
		case <-ctx.Done():
		}
	}()
	return out
}

// fetchWithRetry performs one logical fetch with bounded retry and
// truncated exponential backoff. onChunk, if non-nil, is called
// for each progress chunk observed and once more (n=0, isFinal=true) once
// the body has been read in full.
func (p *Pipeline) fetchWithRetry(ctx context.Context, representationID string, req transport.SegmentRequest, onChunk func(n int64, isFinal bool)) ([]byte, error) {
	maxTries := uint(p.cfg.MaxRetry + 1)

	attempt := 0
	parseRetried := false
	op := func() (result []byte, err error) {
		attempt++
		deadline := time.Now().Add(p.cfg.RequestTimeout)
		attemptReq := req
		attemptReq.Deadline = deadline

		spanCtx := ctx
		var span trace.Span
		if p.cfg.Telemetry != nil {
			spanCtx, span = p.cfg.Telemetry.StartSegmentFetchSpan(ctx, representationID, attempt)
			defer func() { endSpan(span, err) }()
		}

		resp, err := p.cfg.Fetcher.Fetch(spanCtx, attemptReq)
		if err != nil {
			classified := classifyTransportError(err)
			if !classified.Retryable {
				return nil, backoff.Permanent(classified)
			}
			return nil, classified
		}
		defer resp.Body.Close()

		if resp.StatusCode == 429 {
			return nil, perr.RateLimited(fmt.Errorf("rate limited"))
		}
		if resp.StatusCode >= 500 {
			return nil, perr.Network(fmt.Errorf("server error %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(perr.HTTP(resp.StatusCode, fmt.Errorf("client error")))
		}

		data, readErr := readAllCounting(resp.Body, onChunk)
		if readErr != nil {
			// A malformed payload is retried once; a repeat failure is fatal.
			pe := perr.Parse(!parseRetried, readErr)
			if !pe.Retryable {
				return nil, backoff.Permanent(pe)
			}
			parseRetried = true
			return nil, pe
		}
		if onChunk != nil {
			onChunk(0, true)
		}
		return data, nil
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newTruncatedBackoff()),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, dur time.Duration) {
			p.log.Warn("pipeline: retrying after failure", zap.Error(err), zap.Duration("backoff", dur))
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.IncRetry()
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// endSpan is a no-op when span is nil (telemetry disabled), so call sites
// don't need their own nil check.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func classifyTransportError(err error) *perr.Error {
	var pe *perr.Error
	if errors.As(err, &pe) {
		return pe
	}
	return perr.Network(err)
}

func readAllCounting(r io.Reader, onChunk func(n int64, isFinal bool)) ([]byte, error) {
	buf := make([]byte, 32*1024)
	var out []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			if onChunk != nil {
				onChunk(int64(n), false)
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
