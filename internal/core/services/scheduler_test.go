package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerScheduler_RunsImmediatelyForZeroDelay(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	ran := false
	s.After(0, func() { ran = true })
	assert.True(t, ran)
}

func TestTimerScheduler_RunsAfterDelay(t *testing.T) {
	s := NewTimerScheduler()
	defer s.Stop()

	var fired atomic.Int32
	s.After(10*time.Millisecond, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTimerScheduler_StopCancelsPending(t *testing.T) {
	s := NewTimerScheduler()

	var fired atomic.Int32
	s.After(50*time.Millisecond, func() { fired.Add(1) })
	s.Stop()
	s.After(0, func() { fired.Add(1) })

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, s.Pending())
}
