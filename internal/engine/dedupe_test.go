package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryLog(t *testing.T) {
	d := NewDeliveryLog()
	assert.False(t, d.Seen("ph|m1", t0, time.Minute))
	assert.True(t, d.Seen("ph|m1", t0.Add(30*time.Second), time.Minute))
	assert.False(t, d.Seen("ph|m1", t0.Add(2*time.Minute), time.Minute), "outside the window")

	d.Forget("ph|m1")
	assert.False(t, d.Seen("ph|m1", t0.Add(2*time.Minute), time.Minute))

	assert.False(t, d.TakeRetry("ph|m2"))
	d.MarkFailed("ph|m2")
	assert.True(t, d.TakeRetry("ph|m2"))
	assert.False(t, d.TakeRetry("ph|m2"), "a retry is granted once")

	d.MarkFailed("ph|m3")
	d.Seen("ph|m4", t0, time.Minute)
	d.Clear()
	assert.False(t, d.TakeRetry("ph|m3"))
	assert.False(t, d.Seen("ph|m4", t0, time.Minute))
}
