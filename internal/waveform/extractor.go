package waveform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MimeLyc/caption-sync/internal/audio"
	"github.com/MimeLyc/caption-sync/pkg/log"
)

var (
	// ErrDecode is returned when the audio resource cannot be decoded.
	ErrDecode = audio.ErrDecode
	// ErrStale is returned by a decode that was superseded by a newer load.
	ErrStale = errors.New("waveform superseded by a newer load")
)

// Status describes the availability of the current envelope.
type Status string

const (
	StatusEmpty       Status = "empty"
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "unavailable"
)

// Extractor computes envelopes and keeps the one belonging to the most
// recently requested resource. Each Begin bumps a generation counter and
// cancels the decode it supersedes; a decode that finishes after being
// superseded is discarded.
type Extractor struct {
	decoder    audio.Decoder
	resolution int
	logger     *log.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	status     Status
	current    *Envelope
	lastErr    error
}

type Option func(*Extractor)

// WithResolution sets the number of peaks per envelope.
func WithResolution(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.resolution = n
		}
	}
}

// WithLogger sets the logger used for decode failures.
func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor backed by decoder.
func NewExtractor(decoder audio.Decoder, opts ...Option) *Extractor {
	e := &Extractor{
		decoder:    decoder,
		resolution: DefaultResolution,
		logger:     log.GetLogger(),
		status:     StatusEmpty,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolution returns the number of peaks produced per envelope.
func (e *Extractor) Resolution() int {
	return e.resolution
}

// Extract decodes data and computes its envelope without touching the
// extractor's current state.
func (e *Extractor) Extract(ctx context.Context, data []byte) (Envelope, error) {
	buf, err := e.decoder.Decode(ctx, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Envelope{}, ctxErr
		}
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return Envelope{}, err
	}
	return Envelope{
		Peaks:    Peaks(buf.Channel(0), e.resolution),
		Duration: buf.Duration(),
	}, nil
}

// Pending is a load started by Begin and not yet finished.
type Pending struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Begin supersedes any in-flight decode and reserves the next generation.
// Callers that decode in the background must call Begin before handing
// the work off, so loads are ordered by when they were requested.
func (e *Extractor) Begin(ctx context.Context) *Pending {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.status = StatusLoading
	e.current = nil
	e.lastErr = nil
	return &Pending{gen: e.generation, ctx: ctx, cancel: cancel}
}

// Finish decodes data for p. On success the result becomes the current
// envelope, unless a newer Begin or Reset happened in the meantime, in
// which case ErrStale is returned and the result is dropped. Decode
// failures leave the envelope unavailable.
func (e *Extractor) Finish(p *Pending, data []byte) (Envelope, error) {
	defer p.cancel()

	env, err := e.Extract(p.ctx, data)

	e.mu.Lock()
	defer e.mu.Unlock()
	if p.gen != e.generation {
		return Envelope{}, ErrStale
	}
	e.cancel = nil
	if err != nil {
		e.status = StatusUnavailable
		e.lastErr = err
		e.logger.Warn("Waveform unavailable: %v", err)
		return Envelope{}, err
	}
	e.status = StatusReady
	e.current = &env
	return env.Clone(), nil
}

// Load is Begin followed by Finish.
func (e *Extractor) Load(ctx context.Context, data []byte) (Envelope, error) {
	return e.Finish(e.Begin(ctx), data)
}

// Reset abandons any in-flight decode and clears the current envelope.
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.status = StatusEmpty
	e.current = nil
	e.lastErr = nil
}

// Current returns the envelope of the latest successful load.
func (e *Extractor) Current() (Envelope, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Envelope{}, false
	}
	return e.current.Clone(), true
}

// Status returns the envelope availability and the last decode error.
func (e *Extractor) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.lastErr
}
