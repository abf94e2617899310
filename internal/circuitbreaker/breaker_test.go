package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClosedCircuitAllows(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	assert.True(t, b.Allow("payouts"))
	assert.Equal(t, StateClosed, b.State("payouts"))
}

func TestTripsAtThreshold(t *testing.T) {
	b := New(3, 100*time.Millisecond)

	b.RecordFailure("payouts")
	b.RecordFailure("payouts")
	assert.True(t, b.Allow("payouts"), "below threshold stays closed")

	b.RecordFailure("payouts")
	assert.False(t, b.Allow("payouts"))
	assert.Equal(t, StateOpen, b.State("payouts"))
}

func TestHalfOpenProbeAfterCoolOff(t *testing.T) {
	b := New(2, 50*time.Millisecond)
	b.RecordFailure("payouts")
	b.RecordFailure("payouts")
	assert.False(t, b.Allow("payouts"))

	time.Sleep(60 * time.Millisecond)

	assert.True(t, b.Allow("payouts"), "cool-off elapsed, one probe admitted")
	assert.Equal(t, StateHalfOpen, b.State("payouts"))
	assert.False(t, b.Allow("payouts"), "only one probe at a time")
}

func TestProbeSuccessCloses(t *testing.T) {
	b := New(2, 50*time.Millisecond)
	b.RecordFailure("payouts")
	b.RecordFailure("payouts")
	time.Sleep(60 * time.Millisecond)
	b.Allow("payouts")

	b.RecordSuccess("payouts")
	assert.Equal(t, StateClosed, b.State("payouts"))
	assert.True(t, b.Allow("payouts"))
}

func TestProbeFailureReopens(t *testing.T) {
	b := New(2, 50*time.Millisecond)
	b.RecordFailure("payouts")
	b.RecordFailure("payouts")
	time.Sleep(60 * time.Millisecond)
	b.Allow("payouts")

	b.RecordFailure("payouts")
	assert.Equal(t, StateOpen, b.State("payouts"))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(3, 100*time.Millisecond)
	b.RecordFailure("payouts")
	b.RecordFailure("payouts")
	b.RecordSuccess("payouts")

	b.RecordFailure("payouts")
	assert.True(t, b.Allow("payouts"), "counter was reset before the third failure")
}

func TestKeysAreIndependent(t *testing.T) {
	b := New(2, 100*time.Millisecond)
	b.RecordFailure("mobilemoney.b2c")
	b.RecordFailure("mobilemoney.b2c")

	assert.False(t, b.Allow("mobilemoney.b2c"))
	assert.True(t, b.Allow("stripe.payouts"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
