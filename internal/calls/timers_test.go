package calls

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_FiresOnce(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired int32
	s.Schedule("call:ringing", 10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	// The key is gone after firing; cancelling it is a no-op.
	assert.False(t, s.Cancel("call:ringing"))
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var fired int32
	s.Schedule("call:ringing", 20*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	assert.True(t, s.Cancel("call:ringing"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestScheduler_ScheduleReplacesExisting(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	var first, second int32
	s.Schedule("call:ringing", 15*time.Millisecond, func() {
		atomic.AddInt32(&first, 1)
	})
	s.Schedule("call:ringing", 15*time.Millisecond, func() {
		atomic.AddInt32(&second, 1)
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first), "replaced timer must not fire")
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestScheduler_StopCancelsAll(t *testing.T) {
	s := NewScheduler()

	var fired int32
	for _, key := range []string{"a:ringing", "b:connecting", "c:remove"} {
		s.Schedule(key, 20*time.Millisecond, func() {
			atomic.AddInt32(&fired, 1)
		})
	}
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
