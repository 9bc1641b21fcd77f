package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec("test-secret")

	msg, err := codec.Sign("run_curator", map[string]any{
		"curator_id": "c-1",
		"strategy":   "default",
	})
	require.NoError(t, err)

	assert.True(t, codec.Verify(msg))

	var data map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "run_curator", data["type"])
	assert.Equal(t, "c-1", data["curator_id"])
	assert.NotEmpty(t, data["id"])
}

func TestCodecReplayWindow(t *testing.T) {
	signedAt := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	codec := NewCodec("test-secret")
	codec.now = fixedClock(signedAt)

	msg, err := codec.Sign("run_curator", map[string]any{"curator_id": "c-1"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		skew  time.Duration
		valid bool
	}{
		{"just inside window", 59999 * time.Millisecond, true},
		{"exactly at window", 60000 * time.Millisecond, true},
		{"just past window", 60001 * time.Millisecond, false},
		{"far in the past", -2 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codec.now = fixedClock(signedAt.Add(tc.skew))
			assert.Equal(t, tc.valid, codec.Verify(msg))
		})
	}
}

func TestCodecRejectsTamperedData(t *testing.T) {
	codec := NewCodec("test-secret")

	msg, err := codec.Sign("run_curator", map[string]any{"curator_id": "c-1"})
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	data["curator_id"] = "c-2"
	tampered, err := json.Marshal(data)
	require.NoError(t, err)
	msg.Data = tampered

	assert.False(t, codec.Verify(msg))
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	signer := NewCodec("test-secret")
	verifier := NewCodec("another-secret")

	msg, err := signer.Sign("run_curator", map[string]any{"curator_id": "c-1"})
	require.NoError(t, err)

	assert.False(t, verifier.Verify(msg))
}

func TestCodecRejectsMissingFields(t *testing.T) {
	codec := NewCodec("test-secret")

	msg, err := codec.Sign("run_curator", map[string]any{"curator_id": "c-1"})
	require.NoError(t, err)

	noData := msg
	noData.Data = nil
	assert.False(t, codec.Verify(noData))

	noTimestamp := msg
	noTimestamp.Timestamp = 0
	assert.False(t, codec.Verify(noTimestamp))

	noSignature := msg
	noSignature.Signature = ""
	assert.False(t, codec.Verify(noSignature))
}

func TestCodecAcceptsReorderedJSON(t *testing.T) {
	codec := NewCodec("test-secret")

	msg, err := codec.Sign("run_curator", map[string]any{
		"curator_id": "c-1",
		"strategy":   "default",
	})
	require.NoError(t, err)

	// Rewrite the data with keys in a different textual order; the signature
	// must still verify because both sides canonicalize before hashing.
	var data map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	reordered := "{"
	for _, key := range []string{"type", "strategy", "id", "curator_id"} {
		value, _ := json.Marshal(data[key])
		if len(reordered) > 1 {
			reordered += ","
		}
		reordered += `"` + key + `":` + string(value)
	}
	reordered += "}"
	msg.Data = json.RawMessage(reordered)

	assert.True(t, codec.Verify(msg))
}
