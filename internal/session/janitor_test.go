package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJanitorRunOnce(t *testing.T) {
	clock := newFakeClock()
	reg := newRegistry(t, clock)
	_, err := reg.CreateSession("user-1", "br-1")
	require.NoError(t, err)
	_, err = reg.CreateSession("user-2", "br-1")
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	j := NewJanitor(reg, time.Minute, zap.New(core))

	assert.Equal(t, 0, j.RunOnce(clock.Now()))
	assert.Equal(t, 0, logs.Len())

	assert.Equal(t, 2, j.RunOnce(clock.Now().Add(time.Hour)))
	entries := logs.FilterMessage("expired sessions removed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["removed"])
	assert.Equal(t, 0, reg.Len())
}

func TestJanitorStartStop(t *testing.T) {
	reg := newRegistry(t, newFakeClock())
	core, logs := observer.New(zap.InfoLevel)
	j := NewJanitor(reg, 0, zap.New(core))
	assert.Equal(t, DefaultCleanupInterval, j.interval)

	require.NoError(t, j.Start())
	require.NoError(t, j.Start())
	j.Stop()
	j.Stop()

	assert.Equal(t, 1, logs.FilterMessage("session janitor started").Len())
	assert.Equal(t, 1, logs.FilterMessage("session janitor stopped").Len())
}
