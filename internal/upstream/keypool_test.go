package upstream

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPoolRotation(t *testing.T) {
	p := NewKeyPool("search", []string{"k1", "k2", "k3"}, zerolog.Nop())

	key, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	// success rotates the key to the tail
	p.MarkSuccess("k1")
	key, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	p.MarkSuccess("k2")
	key, _ = p.Acquire()
	assert.Equal(t, "k3", key)

	p.MarkSuccess("k3")
	key, _ = p.Acquire()
	assert.Equal(t, "k1", key, "rotation wraps around")
}

func TestKeyPoolExhaustionRemovesKey(t *testing.T) {
	p := NewKeyPool("search", []string{"k1", "k2"}, zerolog.Nop())

	p.MarkExhausted("k1")
	assert.Equal(t, 1, p.Size())

	key, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	p.MarkExhausted("k2")
	_, err = p.Acquire()
	require.Error(t, err)
	assert.Equal(t, ClassNoKeyAvailable, ClassOf(err))
}

func TestKeyPoolReset(t *testing.T) {
	p := NewKeyPool("search", []string{"k1"}, zerolog.Nop())
	p.MarkExhausted("k1")
	require.Equal(t, 0, p.Size())

	p.Reset([]string{"k1", "k2"})
	assert.Equal(t, 2, p.Size())
	key, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
}

func TestKeyPoolUnknownKeyMarksAreNoops(t *testing.T) {
	p := NewKeyPool("search", []string{"k1"}, zerolog.Nop())
	p.MarkSuccess("ghost")
	p.MarkExhausted("ghost")
	assert.Equal(t, 1, p.Size())
}
