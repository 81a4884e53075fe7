package privmsg

import (
	"context"
	"crypto/rand"
	"fmt"
)

// DefaultPublicIDLength is the length of generated public IDs.
const DefaultPublicIDLength = 10

// publicIDAlphabet is URL-safe: IDs appear verbatim in deep links.
const publicIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// PublicIDGenerator produces opaque public message identifiers.
// Generated IDs must be URL-safe. Uniqueness is enforced by the store;
// the service retries generation on collision.
type PublicIDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// randomPublicIDs is the default generator: fixed-length random strings
// over a base-62 alphabet from crypto/rand.
type randomPublicIDs struct {
	length int
}

// NewPublicIDGenerator returns the default random public ID generator.
// Length must be positive; zero or negative falls back to DefaultPublicIDLength.
func NewPublicIDGenerator(length int) PublicIDGenerator {
	if length <= 0 {
		length = DefaultPublicIDLength
	}
	return &randomPublicIDs{length: length}
}

func (g *randomPublicIDs) Generate(_ context.Context) (string, error) {
	buf := make([]byte, g.length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = publicIDAlphabet[int(b)%len(publicIDAlphabet)]
	}
	return string(buf), nil
}
