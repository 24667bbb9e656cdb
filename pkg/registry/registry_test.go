package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

type fakeWorker struct {
	spec      *spec.ExecutorSpec
	shareable bool
	state     []int
	closed    *int
	mu        *sync.Mutex
}

func newFake(id string, kind spec.ExecutorKind, shareable bool) *fakeWorker {
	return &fakeWorker{
		spec:      &spec.ExecutorSpec{ID: id, Kind: kind},
		shareable: shareable,
		closed:    new(int),
		mu:        &sync.Mutex{},
	}
}

func (f *fakeWorker) Spec() *spec.ExecutorSpec { return f.spec }
func (f *fakeWorker) Shareable() bool         { return f.shareable }

func (f *fakeWorker) CleanCopy() (Worker, error) {
	return &fakeWorker{spec: f.spec, shareable: f.shareable, closed: f.closed, mu: f.mu}, nil
}

func (f *fakeWorker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.closed++
	return nil
}

func TestDuplicateRegistrationIsRejected(t *testing.T) {
	r := New(nil)
	first := newFake("a", spec.KindChain, false)
	second := newFake("a", spec.KindChain, false)

	require.NoError(t, r.Register("s1", first.spec, first))
	err := r.Register("s1", second.spec, second)
	require.ErrorIs(t, err, daedaluserrors.ErrDuplicateWorker)

	w, err := r.RegisteredWorker("s1", "a")
	require.NoError(t, err)
	assert.Same(t, first, w)

	require.NoError(t, r.Replace("s1", second.spec, second))
	w, err = r.RegisteredWorker("s1", "a")
	require.NoError(t, err)
	assert.Same(t, second, w)
	assert.Equal(t, 1, *first.closed)
}

func TestRegisterRejectsWorkerOfAnotherSpec(t *testing.T) {
	r := New(nil)
	a := newFake("a", spec.KindLeaf, false)
	b := newFake("b", spec.KindLeaf, false)

	err := r.Register("s1", a.spec, b)
	require.ErrorIs(t, err, daedaluserrors.ErrInvalidSpecification)
	assert.Contains(t, err.Error(), `worker for executor "a" realizes "b"`)

	require.NoError(t, r.Register("s1", a.spec, a))
	require.ErrorIs(t, r.Replace("s1", a.spec, b), daedaluserrors.ErrInvalidSpecification)

	w, err := r.RegisteredWorker("s1", "a")
	require.NoError(t, err)
	assert.Same(t, a, w)
	assert.Zero(t, *a.closed)
	_, err = r.RegisteredWorker("s1", "b")
	assert.ErrorIs(t, err, daedaluserrors.ErrWorkerNotFound)
}

func TestSessionsArePartitioned(t *testing.T) {
	r := New(nil)
	w := newFake("a", spec.KindLeaf, false)
	require.NoError(t, r.Register("s1", w.spec, w))
	require.NoError(t, r.Register("s2", w.spec, w))

	_, err := r.RegisteredWorker("s3", "a")
	assert.ErrorIs(t, err, daedaluserrors.ErrWorkerNotFound)

	_, err = r.RegisteredWorker("s1", "b")
	assert.ErrorIs(t, err, daedaluserrors.ErrWorkerNotFound)

	assert.Equal(t, []string{"s1", "s2"}, r.Sessions())
	assert.Equal(t, []string{"a"}, r.Executors("s1"))
}

func TestMissingSessionIsAnError(t *testing.T) {
	r := New(nil)
	w := newFake("a", spec.KindLeaf, false)

	assert.ErrorIs(t, r.Register("", w.spec, w), daedaluserrors.ErrMissingSession)
	_, err := r.Acquire("", "a")
	assert.ErrorIs(t, err, daedaluserrors.ErrMissingSession)
	assert.True(t, daedaluserrors.IsConfiguration(err))
}

func TestAcquireClonesContainers(t *testing.T) {
	r := New(nil)
	def := newFake("chain", spec.KindChain, true)
	require.NoError(t, r.Register("s", def.spec, def))

	outer, err := r.Acquire("s", "chain")
	require.NoError(t, err)
	inner, err := r.Acquire("s", "chain")
	require.NoError(t, err)

	assert.True(t, outer.Cloned())
	assert.NotSame(t, outer.Worker, inner.Worker)
	assert.NotSame(t, def, outer.Worker)
	assert.NotEqual(t, outer.ID, inner.ID)
	assert.EqualValues(t, 2, r.LiveClones())

	outer.Worker.(*fakeWorker).state = append(outer.Worker.(*fakeWorker).state, 1)
	assert.Empty(t, inner.Worker.(*fakeWorker).state)
	assert.Empty(t, def.state)

	require.NoError(t, inner.Release())
	require.NoError(t, outer.Release())
	assert.Zero(t, r.LiveClones())
	assert.Equal(t, 2, *def.closed)
}

func TestShareableLeavesAreCached(t *testing.T) {
	r := New(nil)
	def := newFake("leaf", spec.KindLeaf, true)
	require.NoError(t, r.Register("s", def.spec, def))

	a, err := r.Acquire("s", "leaf")
	require.NoError(t, err)
	b, err := r.Acquire("s", "leaf")
	require.NoError(t, err)

	assert.False(t, a.Cloned())
	assert.Same(t, a.Worker, b.Worker)
	assert.Zero(t, r.LiveClones())
	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	assert.Zero(t, *def.closed)

	require.NoError(t, r.CloseSession("s"))
	assert.Equal(t, 2, *def.closed)
	assert.Empty(t, r.Sessions())
}

func TestReleaseTwiceIsAContractViolation(t *testing.T) {
	r := New(nil)
	def := newFake("leaf", spec.KindLeaf, false)
	require.NoError(t, r.Register("s", def.spec, def))

	lease, err := r.Acquire("s", "leaf")
	require.NoError(t, err)
	require.NoError(t, lease.Release())

	err = lease.Release()
	assert.ErrorIs(t, err, daedaluserrors.ErrReleased)
	assert.Equal(t, daedaluserrors.CategoryContract, daedaluserrors.CategoryOf(err))
	assert.Zero(t, r.LiveClones())
}

func TestConcurrentAcquire(t *testing.T) {
	r := New(nil)
	def := newFake("chain", spec.KindChain, false)
	require.NoError(t, r.Register("s", def.spec, def))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := r.Acquire("s", "chain")
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, lease.Release())
		}()
	}
	wg.Wait()
	assert.Zero(t, r.LiveClones())
}
