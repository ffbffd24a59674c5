package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedAllowsBurstThenRefills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k := New(time.Minute, 2, time.Hour)
	k.now = func() time.Time { return now }

	assert.True(t, k.Allow("a@x.test"))
	assert.True(t, k.Allow("a@x.test"))
	assert.False(t, k.Allow("a@x.test"))
	assert.True(t, k.Allow("b@x.test"), "keys are independent")

	now = now.Add(time.Minute)
	assert.True(t, k.Allow("a@x.test"))
	assert.False(t, k.Allow("a@x.test"))
}

func TestKeyedDropsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	k := New(time.Minute, 1, 10*time.Minute)
	k.now = func() time.Time { return now }

	k.Allow("a")
	k.Allow("b")
	assert.Equal(t, 2, k.Len())

	now = now.Add(11 * time.Minute)
	k.Allow("c")
	assert.Equal(t, 1, k.Len())
}

func TestNilKeyedAllows(t *testing.T) {
	var k *Keyed
	assert.True(t, k.Allow("x"))
}
