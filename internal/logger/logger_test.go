package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEBUG", "1")
	assert.Equal(t, zerolog.DebugLevel, LevelFromEnv(zerolog.InfoLevel))

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, zerolog.ErrorLevel, LevelFromEnv(zerolog.InfoLevel))
}

func TestZerologAdapterWritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.DebugLevel)

	log.Info("DistView", "binning published", map[string]interface{}{"bins": 64})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DistView", entry["component"])
	assert.Equal(t, "binning published", entry["message"])
	assert.EqualValues(t, 64, entry["bins"])
}

func TestZerologAdapterWithCarriesField(t *testing.T) {
	var buf bytes.Buffer
	parent := NewZerolog(&buf, zerolog.InfoLevel)
	child := parent.With("view", "GRAD")

	child.Info("DistView", "published", nil)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "GRAD", entry["view"])

	buf.Reset()
	parent.Info("DistView", "published", nil)
	entry = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "view")
}

func TestZerologAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.WarnLevel)

	log.Debug("Queue", "hidden", nil)
	log.Info("Queue", "hidden", nil)
	assert.Zero(t, buf.Len())

	log.Error("Queue", errors.New("boom"), nil)
	assert.Contains(t, buf.String(), "boom")
}
