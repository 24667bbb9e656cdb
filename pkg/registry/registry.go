// Package registry maps (session id, executor id) pairs to worker
// definitions and hands out per-activation instances.
//
// A definition is shared and never executed directly. Every activation gets
// a clean copy, so a chain that invokes itself, directly or through other
// chains, never observes the in-flight state of its callers. Leaf workers
// that declare themselves shareable are copied once per session and reused.
package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// Worker is a live realization of an executor spec.
type Worker interface {
	// Spec returns the immutable specification the worker realizes.
	Spec() *spec.ExecutorSpec
	// CleanCopy returns an independent instance sharing only immutable state.
	CleanCopy() (Worker, error)
	// Close releases resources held by the instance.
	Close() error
}

// Shareable is implemented by workers that hold no cross-call mutable state
// and may serve concurrent and recursive activations from one instance.
type Shareable interface {
	Shareable() bool
}

func isShareable(w Worker) bool {
	s, ok := w.(Shareable)
	return ok && s.Shareable() && !w.Spec().IsContainer()
}

type entry struct {
	spec       *spec.ExecutorSpec
	definition Worker
	shared     Worker
}

// Registry is safe for concurrent use. Its lock covers lookup and cloning
// only, never execution.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[string]*entry
	live     atomic.Int64
	logger   *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]map[string]*entry),
		logger:   logger,
	}
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Register installs a definition. It fails with ErrDuplicateWorker if the id
// is already present in the session; the existing registration is kept.
func (r *Registry) Register(session string, s *spec.ExecutorSpec, w Worker) error {
	return r.install(session, s, w, false)
}

// Replace installs a definition, discarding any previous one with the same id.
func (r *Registry) Replace(session string, s *spec.ExecutorSpec, w Worker) error {
	return r.install(session, s, w, true)
}

func (r *Registry) install(session string, s *spec.ExecutorSpec, w Worker, replace bool) error {
	if err := checkKey(session, specID(s)); err != nil {
		return err
	}
	if w == nil {
		return daedaluserrors.Contract(daedaluserrors.ErrInvalidSpecification, "nil worker for executor %q", s.ID)
	}
	if ws := w.Spec(); ws == nil || ws.ID != s.ID {
		got := "<nil>"
		if ws != nil {
			got = ws.ID
		}
		return daedaluserrors.Contract(daedaluserrors.ErrInvalidSpecification,
			"worker for executor %q realizes %q", s.ID, got)
	}

	r.mu.Lock()
	executors, ok := r.sessions[session]
	if !ok {
		executors = make(map[string]*entry)
		r.sessions[session] = executors
	}
	prev, exists := executors[s.ID]
	if exists && !replace {
		r.mu.Unlock()
		return daedaluserrors.Configuration(daedaluserrors.ErrDuplicateWorker,
			"executor %q is already registered in session %s", s.ID, session)
	}
	executors[s.ID] = &entry{spec: s, definition: w}
	r.mu.Unlock()

	if exists {
		return closeEntry(prev)
	}
	r.logger.Debug("registered worker",
		zap.String("session_id", session),
		zap.String("executor_id", s.ID),
		zap.String("kind", string(s.Kind)))
	return nil
}

// RegisteredWorker returns the definition registered for id.
func (r *Registry) RegisteredWorker(session, id string) (Worker, error) {
	if err := checkKey(session, id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(session, id)
	if err != nil {
		return nil, err
	}
	return e.definition, nil
}

// Spec returns the spec registered for id.
func (r *Registry) Spec(session, id string) (*spec.ExecutorSpec, error) {
	w, err := r.RegisteredWorker(session, id)
	if err != nil {
		return nil, err
	}
	return w.Spec(), nil
}

func (r *Registry) lookup(session, id string) (*entry, error) {
	executors, ok := r.sessions[session]
	if !ok {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrWorkerNotFound,
			"executor %q: unknown session %s", id, session)
	}
	e, ok := executors[id]
	if !ok {
		return nil, daedaluserrors.Configuration(daedaluserrors.ErrWorkerNotFound,
			"executor %q is not registered in session %s", id, session)
	}
	return e, nil
}

// Acquire returns a lease on an instance of id for one activation.
// Containers and non-shareable leaves are cloned; shareable leaves are
// copied once per session and reused. The caller must Release the lease.
func (r *Registry) Acquire(session, id string) (*Lease, error) {
	if err := checkKey(session, id); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.lookup(session, id)
	if err != nil {
		return nil, err
	}

	lease := &Lease{
		ID:       uuid.NewString(),
		Session:  session,
		Executor: id,
		registry: r,
	}

	if isShareable(e.definition) {
		if e.shared == nil {
			shared, err := e.definition.CleanCopy()
			if err != nil {
				return nil, err
			}
			e.shared = shared
		}
		lease.Worker = e.shared
		return lease, nil
	}

	clone, err := e.definition.CleanCopy()
	if err != nil {
		return nil, err
	}
	lease.Worker = clone
	lease.cloned = true
	r.live.Add(1)
	return lease, nil
}

// LiveClones returns the number of per-activation clones not yet released.
func (r *Registry) LiveClones() int64 {
	return r.live.Load()
}

// Sessions returns the sorted ids of sessions holding registrations.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Executors returns the sorted executor ids registered in session.
func (r *Registry) Executors(session string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	executors := r.sessions[session]
	ids := make([]string, 0, len(executors))
	for id := range executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseSession drops every registration of session and closes the
// definitions and shared instances it held.
func (r *Registry) CloseSession(session string) error {
	r.mu.Lock()
	executors := r.sessions[session]
	delete(r.sessions, session)
	r.mu.Unlock()

	var errs []error
	for _, e := range executors {
		if err := closeEntry(e); err != nil {
			errs = append(errs, err)
		}
	}
	r.logger.Debug("closed session",
		zap.String("session_id", session),
		zap.Int("executors", len(executors)))
	return errors.Join(errs...)
}

func closeEntry(e *entry) error {
	var errs []error
	if e.shared != nil {
		errs = append(errs, e.shared.Close())
	}
	errs = append(errs, e.definition.Close())
	return errors.Join(errs...)
}

func checkKey(session, id string) error {
	if session == "" {
		return daedaluserrors.Configuration(daedaluserrors.ErrMissingSession, "executor %q", id)
	}
	if id == "" {
		return daedaluserrors.Configuration(daedaluserrors.ErrWorkerNotFound, "executor id is required")
	}
	return nil
}

func specID(s *spec.ExecutorSpec) string {
	if s == nil {
		return ""
	}
	return s.ID
}

// Lease is one activation's hold on a worker instance.
type Lease struct {
	// Worker is exclusively owned by the activation unless it is shared.
	Worker Worker
	// ID identifies the activation.
	ID       string
	Session  string
	Executor string

	cloned   bool
	released atomic.Bool
	registry *Registry
}

// Cloned reports whether the lease holds a private clone.
func (l *Lease) Cloned() bool { return l.cloned }

// Release closes a private clone. It must be called exactly once.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return daedaluserrors.Contract(daedaluserrors.ErrReleased,
			"executor %q activation %s", l.Executor, l.ID)
	}
	if !l.cloned {
		return nil
	}
	defer l.registry.live.Add(-1)
	return l.Worker.Close()
}
