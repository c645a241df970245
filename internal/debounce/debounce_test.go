package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) record(v string) func() {
	return func() {
		r.mu.Lock()
		r.calls = append(r.calls, v)
		r.mu.Unlock()
		r.fired <- struct{}{}
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestScheduleFiresAfterWindow(t *testing.T) {
	d := New(50 * time.Millisecond)
	rec := newRecorder()

	start := time.Now()
	d.Schedule(rec.record("backup"))
	assert.True(t, d.Pending())

	select {
	case <-rec.fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled call did not fire")
	}

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, []string{"backup"}, rec.snapshot())
	assert.False(t, d.Pending())
}

// TestOnlyLastScheduleFires covers rapid input within one window: "back" then
// "backup" 100ms apart with a 300ms window must issue a single call for "backup".
func TestOnlyLastScheduleFires(t *testing.T) {
	d := New(300 * time.Millisecond)
	rec := newRecorder()

	superseded := d.Schedule(rec.record("back"))
	assert.False(t, superseded)

	time.Sleep(100 * time.Millisecond)
	superseded = d.Schedule(rec.record("backup"))
	assert.True(t, superseded, "second schedule should cancel the unfired first one")

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled call did not fire")
	}

	// Give a stale timer a chance to misfire
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, []string{"backup"}, rec.snapshot())
}

func TestSchedulesOutsideWindowBothFire(t *testing.T) {
	d := New(30 * time.Millisecond)
	rec := newRecorder()

	d.Schedule(rec.record("first"))
	<-rec.fired
	superseded := d.Schedule(rec.record("second"))
	assert.False(t, superseded, "a fired call is not superseded")
	<-rec.fired

	assert.Equal(t, []string{"first", "second"}, rec.snapshot())
}

func TestScheduleDoesNotCancelRunningCall(t *testing.T) {
	d := New(10 * time.Millisecond)

	release := make(chan struct{})
	var finished int32
	started := make(chan struct{})

	d.Schedule(func() {
		close(started)
		<-release
		atomic.StoreInt32(&finished, 1)
	})
	<-started

	// A new schedule while the first call runs leaves it alone
	superseded := d.Schedule(func() {})
	assert.False(t, superseded)

	close(release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&finished) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCancel(t *testing.T) {
	d := New(30 * time.Millisecond)
	var calls int32

	d.Schedule(func() { atomic.AddInt32(&calls, 1) })
	assert.True(t, d.Cancel())
	assert.False(t, d.Cancel(), "nothing left to cancel")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestStop(t *testing.T) {
	d := New(20 * time.Millisecond)
	var calls int32

	d.Schedule(func() { atomic.AddInt32(&calls, 1) })
	d.Stop()
	d.Schedule(func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	assert.False(t, d.Pending())
}

func TestConcurrentSchedules(t *testing.T) {
	d := New(50 * time.Millisecond)
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Schedule(func() { atomic.AddInt32(&calls, 1) })
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
