package kafka

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpolar/polar-service/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	summary := domain.Summary{
		Boat:        "aurelius",
		Version:     3,
		Files:       2,
		CellsFilled: 41,
		GeneratedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(summary)
	require.NoError(t, err)

	assert.Equal(t, []byte("aurelius"), msg.Key)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "boat", msg.Headers[0].Key)
	assert.Equal(t, []byte("aurelius"), msg.Headers[0].Value)
	assert.Equal(t, "version", msg.Headers[1].Key)
	assert.Equal(t, []byte("3"), msg.Headers[1].Value)

	var decoded domain.Summary
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, summary, decoded)
}

func TestNewWriter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWriter([]string{"localhost:9092"}, "polar-generated", logger)
	require.NotNil(t, w)
	assert.Equal(t, "polar-generated", w.writer.Topic)
	assert.NoError(t, w.Close())
}
