package resource

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/cdlcore/internal/ir"
)

// ClientIDGenerator produces originating client IDs.
type ClientIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 client IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClientIDGenerator sets the generator for the manager's originating
// client ID. Tests use a fixed generator for reproducible records.
func WithClientIDGenerator(g ClientIDGenerator) Option {
	return func(m *Manager) {
		m.clientIDs = g
	}
}

// WithLogger sets the logger for load and drain events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Subscriber is told about every write applied through the manager.
type Subscriber func(Update)

type subscription struct {
	id int
	fn Subscriber
}

// resourceState tracks one resource. Guarded by Manager.mu except for
// queue, which has its own lock.
type resourceState struct {
	name     string
	loaded   bool
	loading  bool
	draining bool
	revision int64
	elements map[string]ir.Value
	subs     []subscription
	queue    *readyQueue
}

// Manager serializes access to resources held in a Backend.
//
// Requests for a resource wait in its ready queue until the resource is
// loaded, then run one at a time in FIFO order on a drain goroutine.
// Subscribers and future completions run on that goroutine.
type Manager struct {
	backend   Backend
	clientIDs ClientIDGenerator
	clientID  string
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	resources map[string]*resourceState
	nextSub   int
}

// NewManager creates a manager over backend.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:   backend,
		clientIDs: UUIDv7Generator{},
		log:       slog.Default(),
		resources: make(map[string]*resourceState),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.clientID = m.clientIDs.Generate()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// ClientID returns the originating client ID stamped on this manager's
// writes.
func (m *Manager) ClientID() string {
	return m.clientID
}

// Load resolves to a snapshot of the resource once it is loaded and every
// request queued before this one has run.
func (m *Manager) Load(resource string) *Future[Snapshot] {
	f := newFuture[Snapshot]()
	m.enqueue(resource, request{
		op: "load",
		run: func() {
			f.complete(m.snapshot(resource), nil)
		},
		fail: func(err error) {
			f.complete(Snapshot{}, err)
		},
	})
	return f
}

// Write resolves to the revision assigned to the write. Subscribers are
// notified before the future completes.
func (m *Manager) Write(ctx context.Context, resource string, changes []Element) *Future[int64] {
	if err := validateChanges(resource, changes); err != nil {
		return failedFuture[int64](err)
	}
	changes = slices.Clone(changes)

	f := newFuture[int64]()
	m.enqueue(resource, request{
		op: "write",
		run: func() {
			m.applyWrite(ctx, resource, changes, f)
		},
		fail: func(err error) {
			f.complete(0, err)
		},
	})
	return f
}

// Subscribe registers fn for writes to resource and returns a function
// that removes it. Subscribers run in registration order.
func (m *Manager) Subscribe(resource string, fn Subscriber) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(resource)
	m.nextSub++
	id := m.nextSub
	st.subs = append(st.subs, subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		st.subs = slices.DeleteFunc(st.subs, func(s subscription) bool { return s.id == id })
	}
}

// Pending returns the number of requests waiting for resource.
func (m *Manager) Pending(resource string) int {
	m.mu.Lock()
	st, ok := m.resources[resource]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return st.queue.Len()
}

// Revision returns the last revision the manager has seen for resource.
// ok is false until the resource has been loaded.
func (m *Manager) Revision(resource string) (rev int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, found := m.resources[resource]
	if !found || !st.loaded {
		return 0, false
	}
	return st.revision, true
}

// Close fails every queued request with a CLOSED error and waits for
// running loads and drains to finish. Requests made after Close fail
// immediately.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	states := slices.Collect(maps.Values(m.resources))
	m.mu.Unlock()

	for _, st := range states {
		st.queue.Close()
		err := &Error{Code: ErrCodeClosed, Op: "close", Resource: st.name, Message: "manager closed"}
		if n := st.queue.FailAll(err); n > 0 {
			m.log.Debug("resource requests cancelled", "resource", st.name, "count", n)
		}
	}
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) state(resource string) *resourceState {
	st, ok := m.resources[resource]
	if !ok {
		st = &resourceState{
			name:     resource,
			elements: make(map[string]ir.Value),
			queue:    newReadyQueue(),
		}
		m.resources[resource] = st
	}
	return st
}

func (m *Manager) enqueue(resource string, r request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		r.fail(&Error{Code: ErrCodeClosed, Op: r.op, Resource: resource, Message: "manager closed"})
		return
	}
	st := m.state(resource)
	if !st.queue.Enqueue(r) {
		r.fail(&Error{Code: ErrCodeClosed, Op: r.op, Resource: resource, Message: "manager closed"})
		return
	}
	m.kick(st)
}

// kick starts a load or a drain for st if one is needed and none is
// running. Must be called with m.mu held.
func (m *Manager) kick(st *resourceState) {
	if m.closed {
		return
	}
	if !st.loaded {
		if !st.loading {
			st.loading = true
			m.wg.Add(1)
			go m.load(st)
		}
		return
	}
	if !st.draining && st.queue.Len() > 0 {
		st.draining = true
		m.wg.Add(1)
		go m.drain(st)
	}
}

func (m *Manager) load(st *resourceState) {
	defer m.wg.Done()

	snap, err := m.backend.Load(m.ctx, st.name)

	m.mu.Lock()
	st.loading = false
	if err != nil {
		if !IsStorageError(err) {
			err = storageError("load", st.name, err)
		}
		n := st.queue.FailAll(err)
		m.mu.Unlock()
		m.log.Warn("resource load failed", "resource", st.name, "pending", n, "error", err)
		return
	}
	st.loaded = true
	st.revision = snap.Revision
	for _, e := range snap.Elements {
		st.elements[e.Ident] = e.Value
	}
	m.log.Debug("resource loaded", "resource", st.name, "revision", snap.Revision,
		"elements", len(snap.Elements), "pending", st.queue.Len())
	m.kick(st)
	m.mu.Unlock()
}

// drain runs queued requests until the queue is empty. Requests enqueued
// while draining, including those made by subscribers, run in the same
// pass.
func (m *Manager) drain(st *resourceState) {
	defer m.wg.Done()

	ran := 0
	for {
		r, ok := st.queue.TryDequeue()
		if !ok {
			m.mu.Lock()
			if st.queue.Len() > 0 {
				m.mu.Unlock()
				continue
			}
			st.draining = false
			m.mu.Unlock()
			m.log.Debug("resource drained", "resource", st.name, "requests", ran)
			return
		}
		r.run()
		ran++
	}
}

func (m *Manager) snapshot(resource string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.resources[resource]
	snap := Snapshot{Resource: resource, Revision: st.revision, Elements: make([]Element, 0, len(st.elements))}
	for _, ident := range slices.Sorted(maps.Keys(st.elements)) {
		snap.Elements = append(snap.Elements, Element{Ident: ident, Value: st.elements[ident]})
	}
	return snap
}

func (m *Manager) applyWrite(ctx context.Context, resource string, changes []Element, f *Future[int64]) {
	if err := ctx.Err(); err != nil {
		f.complete(0, err)
		return
	}

	rev, err := m.backend.Write(ctx, resource, m.clientID, changes)
	if err != nil {
		if !IsStorageError(err) && !IsInvalidWrite(err) {
			err = storageError("write", resource, err)
		}
		f.complete(0, err)
		return
	}

	m.mu.Lock()
	st := m.resources[resource]
	st.revision = rev
	for _, c := range changes {
		if c.Deleted() {
			delete(st.elements, c.Ident)
		} else {
			st.elements[c.Ident] = c.Value
		}
	}
	subs := slices.Clone(st.subs)
	m.mu.Unlock()

	upd := Update{Resource: resource, Revision: rev, ClientID: m.clientID, Changes: changes}
	for _, s := range subs {
		s.fn(upd)
	}
	f.complete(rev, nil)
}
