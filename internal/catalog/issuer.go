package catalog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// LocalIssuer mints opaque bearer tokens locally. Production deployments
// plug in the main application's token service instead; this one serves
// development and tests.
type LocalIssuer struct{}

func (LocalIssuer) IssueBearerToken(ctx context.Context, identity, label string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("error generating token: %v", err)
	}
	return fmt.Sprintf("%s|%s", label, hex.EncodeToString(buf)), nil
}
