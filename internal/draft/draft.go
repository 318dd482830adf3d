// Package draft persists in-progress wizard sessions so that an author can
// close the studio and pick up where they left off.
//
// A Persister watches a stream of states and writes only the state that has
// been stable for the debounce window. Nothing is written until the
// activation delay has passed, which keeps a freshly constructed session from
// overwriting the stored draft before it has been restored.
package draft

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/podcast-studio/internal/core"
)

// Storage keys of the two authoring flows.
const (
	DefaultKey = "castory.draft.news-podcast"
	ManualKey  = "castory.draft.podcast"
)

// Default timings.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultActivation   = 750 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
)

const (
	logFmtMarshalFailed = "Draft %s not saved: failed to serialize state: %v"
	logFmtWriteFailed   = "Draft %s not saved: %v"
	logFmtDeleteFailed  = "Draft %s not cleared: %v"
)

// Options tunes a Persister. Zero values select the defaults.
type Options struct {
	Debounce     time.Duration
	Activation   time.Duration
	WriteTimeout time.Duration
}

// WithDefaults fills unset fields and keeps Activation strictly longer than
// Debounce.
func (o Options) WithDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}

	if o.Activation <= 0 {
		o.Activation = DefaultActivation
	}

	if o.Activation <= o.Debounce {
		o.Activation = o.Debounce + o.Debounce/2
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}

	return o
}

// Read loads the draft stored under key into target. It reports false when no
// draft exists, the store fails, or the stored value does not parse.
func Read(ctx context.Context, kv core.KeyValueStore, key string, target any) bool {
	data, err := kv.Get(ctx, key)
	if err != nil || len(data) == 0 {
		return false
	}

	return json.Unmarshal(data, target) == nil
}

// Persister debounces state changes into single writes. Write failures are
// logged and otherwise ignored; the in-memory session stays authoritative.
type Persister struct {
	kv     core.KeyValueStore
	key    string
	opts   Options
	logger *logger.Logger

	mu         sync.Mutex
	generation uint64
	pending    []byte
	settled    bool
	active     bool
	closed     bool
	debounce   *time.Timer
	activation *time.Timer
	lastSaved  time.Time

	// writeMu orders writes and deletes against each other.
	writeMu sync.Mutex
}

// NewPersister starts the activation clock for key.
func NewPersister(kv core.KeyValueStore, key string, opts Options, log *logger.Logger) *Persister {
	persister := &Persister{
		kv:     kv,
		key:    key,
		opts:   opts.WithDefaults(),
		logger: log,
	}

	persister.activation = time.AfterFunc(persister.opts.Activation, persister.activate)

	return persister
}

// Key returns the storage key drafts are written to.
func (p *Persister) Key() string {
	return p.key
}

// Watch records a new state. The state is serialized immediately, so the
// caller may keep mutating its own copy.
func (p *Persister) Watch(state any) {
	data, err := json.Marshal(state)
	if err != nil {
		p.logger.Warn(logFmtMarshalFailed, p.key, err)

		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.generation++
	p.pending = data
	p.settled = false

	if p.debounce != nil {
		p.debounce.Stop()
	}

	generation := p.generation
	p.debounce = time.AfterFunc(p.opts.Debounce, func() { p.settle(generation) })
}

// LastSaved reports when a draft was last written successfully.
func (p *Persister) LastSaved() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.lastSaved, !p.lastSaved.IsZero()
}

// Active reports whether the activation delay has elapsed.
func (p *Persister) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.active
}

// Discard removes the stored draft and cancels any pending write. Removing a
// draft that does not exist is not an error.
func (p *Persister) Discard(ctx context.Context) {
	p.mu.Lock()
	p.generation++
	p.pending = nil
	p.settled = false

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()

	// A write already inside Put holds writeMu and stamps lastSaved before
	// releasing it, so the reset must follow the delete.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	err := p.kv.Delete(ctx, p.key)
	if err != nil {
		p.logger.Warn(logFmtDeleteFailed, p.key, err)
	}

	p.mu.Lock()
	p.lastSaved = time.Time{}
	p.mu.Unlock()
}

// Flush writes the latest watched state now, skipping the debounce and
// activation delays. It does nothing when no state is pending.
func (p *Persister) Flush() {
	p.mu.Lock()

	if p.closed || p.pending == nil {
		p.mu.Unlock()

		return
	}

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.settled = false
	generation, data := p.generation, p.pending
	p.mu.Unlock()

	p.write(generation, data)
}

// Close stops all timers. A write that has not started yet is dropped.
func (p *Persister) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.pending = nil

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.activation.Stop()
}

func (p *Persister) settle(generation uint64) {
	p.mu.Lock()

	if p.closed || generation != p.generation {
		p.mu.Unlock()

		return
	}

	if !p.active {
		p.settled = true
		p.mu.Unlock()

		return
	}

	data := p.pending
	p.mu.Unlock()

	p.write(generation, data)
}

func (p *Persister) activate() {
	p.mu.Lock()

	p.active = true
	if p.closed || !p.settled {
		p.mu.Unlock()

		return
	}

	p.settled = false
	generation, data := p.generation, p.pending
	p.mu.Unlock()

	p.write(generation, data)
}

// write stores data unless a newer state, a discard or a close has happened
// since it was scheduled.
func (p *Persister) write(generation uint64, data []byte) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if !p.current(generation) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.WriteTimeout)
	defer cancel()

	err := p.kv.Put(ctx, p.key, data)
	if err != nil {
		p.logger.Warn(logFmtWriteFailed, p.key, err)

		return
	}

	p.mu.Lock()
	p.lastSaved = time.Now()
	p.mu.Unlock()
}

func (p *Persister) current(generation uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.closed && generation == p.generation
}
