package imagegate_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	ig "github.com/ineyio/imagegate"
)

func TestHealthTracker_OpensAfterThreeFailures(t *testing.T) {
	h := ig.NewHealthTracker(clockwork.NewFakeClock())

	h.RecordFailure("g")
	h.RecordFailure("g")
	assert.Equal(t, ig.HealthHealthy, h.State("g"))

	h.RecordFailure("g")
	assert.Equal(t, ig.HealthUnhealthy, h.State("g"))
}

func TestHealthTracker_FailuresOutsideWindowExpire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := ig.NewHealthTracker(clock)

	h.RecordFailure("g")
	h.RecordFailure("g")
	clock.Advance(6 * time.Minute)
	h.RecordFailure("g")

	assert.Equal(t, ig.HealthHealthy, h.State("g"))
}

func TestHealthTracker_HalfOpenRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := ig.NewHealthTracker(clock)
	for range 3 {
		h.RecordFailure("g")
	}

	clock.Advance(29 * time.Second)
	assert.Equal(t, ig.HealthUnhealthy, h.State("g"))

	clock.Advance(time.Second)
	assert.Equal(t, ig.HealthHalfOpen, h.State("g"))

	// A failed request reopens at once.
	h.RecordFailure("g")
	assert.Equal(t, ig.HealthUnhealthy, h.State("g"))

	clock.Advance(30 * time.Second)
	assert.Equal(t, ig.HealthHalfOpen, h.State("g"))
	h.RecordSuccess("g")
	assert.Equal(t, ig.HealthHealthy, h.State("g"))
}

func TestHealthTracker_HalfOpenAdmitsEveryCaller(t *testing.T) {
	clock := clockwork.NewFakeClock()
	h := ig.NewHealthTracker(clock)
	for range 3 {
		h.RecordFailure("g")
	}
	clock.Advance(30 * time.Second)

	for range 3 {
		assert.Equal(t, ig.HealthHalfOpen, h.State("g"))
	}
}

func TestHealthState_String(t *testing.T) {
	assert.Equal(t, "healthy", ig.HealthHealthy.String())
	assert.Equal(t, "unhealthy", ig.HealthUnhealthy.String())
	assert.Equal(t, "half-open", ig.HealthHalfOpen.String())
	assert.Equal(t, "unknown", ig.HealthState(42).String())
}
