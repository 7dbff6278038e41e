package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, K: 2}
	assert.Equal(t, time.Duration(0), b.Remaining())
	assert.Equal(t, 100*time.Millisecond, b.Failure())
	assert.Equal(t, 200*time.Millisecond, b.Failure())
	assert.Equal(t, 400*time.Millisecond, b.Failure())
	assert.Equal(t, 800*time.Millisecond, b.Failure())
	assert.Equal(t, time.Second, b.Failure())
	assert.Equal(t, time.Second, b.Failure())
	r := b.Remaining()
	assert.True(t, r > 0 && r <= time.Second, "remaining=%s", r)
	b.Reset()
	assert.Equal(t, time.Duration(0), b.Remaining())
	assert.Equal(t, 100*time.Millisecond, b.Failure())
}
