package bus

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ReplayWindow is the maximum clock skew, in either direction, between a
// message's signing time and its verification time. The boundary is
// inclusive: a message exactly ReplayWindow old still verifies.
const ReplayWindow = 60 * time.Second

// SignedMessage is the wire envelope for all bus traffic.
type SignedMessage struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
}

// Codec signs and verifies envelopes with an HMAC-SHA256 over the canonical
// JSON of data concatenated with the millisecond timestamp. Canonical JSON
// here means encoding/json output of a map, which sorts keys; both sides of
// the bus must serialize the same way or signatures will not match.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret), now: time.Now}
}

// Sign wraps payload in a signed envelope, adding the type discriminator and
// a fresh message id.
func (c *Codec) Sign(msgType string, payload map[string]any) (SignedMessage, error) {
	data := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	data["type"] = msgType
	data["id"] = uuid.New().String()

	encoded, err := json.Marshal(data)
	if err != nil {
		return SignedMessage{}, err
	}

	timestamp := c.now().UnixMilli()
	return SignedMessage{
		Data:      encoded,
		Timestamp: timestamp,
		Signature: c.signature(encoded, timestamp),
	}, nil
}

// Verify checks the envelope's fields, replay window, and signature. All
// failure modes look identical to the caller.
func (c *Codec) Verify(msg SignedMessage) bool {
	if len(msg.Data) == 0 || msg.Timestamp == 0 || msg.Signature == "" {
		return false
	}

	skew := c.now().UnixMilli() - msg.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > ReplayWindow.Milliseconds() {
		return false
	}

	canonical, ok := canonicalize(msg.Data)
	if !ok {
		return false
	}

	expected, err := hex.DecodeString(msg.Signature)
	if err != nil {
		return false
	}
	actual, err := hex.DecodeString(c.signature(canonical, msg.Timestamp))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, actual)
}

func (c *Codec) signature(data []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(data)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalize re-serializes received data through a map so key order is
// deterministic regardless of how the sender laid out the JSON text.
func canonicalize(data json.RawMessage) ([]byte, bool) {
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return nil, false
	}
	return encoded, true
}
