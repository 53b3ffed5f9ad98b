package logging_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/mynextid/zk-kyc/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingDropsOldest(t *testing.T) {
	r := logging.NewRing(3)
	for i := 0; i < 5; i++ {
		r.Add(logging.Entry{Message: fmt.Sprintf("m%d", i)})
	}

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "m2", entries[0].Message)
	assert.Equal(t, "m4", entries[2].Message)
	assert.Equal(t, uint64(2), r.Dropped())
	assert.Equal(t, 3, r.Len())

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRingPartial(t *testing.T) {
	r := logging.NewRing(0)
	assert.Equal(t, logging.DefaultRingSize, r.Cap())
	r.Add(logging.Entry{Message: "one"})
	assert.Len(t, r.Entries(), 1)
}

func TestLoggerWritesToRing(t *testing.T) {
	var out bytes.Buffer
	r := logging.NewRing(10)
	logger := logging.New(logging.Options{Level: "debug", Format: "json", Out: &out, Ring: r})

	logger.With("session", "s1").Info("step done", "step", "encrypting")
	logger.Debug("details")

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "step done", entries[0].Message)
	assert.Equal(t, "s1", entries[0].Fields["session"])
	assert.Equal(t, "encrypting", entries[0].Fields["step"])
	assert.Contains(t, out.String(), "step done")
}

func TestLoggerLevel(t *testing.T) {
	r := logging.NewRing(10)
	logger := logging.New(logging.Options{Level: "warn", Format: "text", Out: &bytes.Buffer{}, Ring: r})
	logger.Info("hidden")
	logger.Warn("shown")

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
}
