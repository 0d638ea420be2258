package notify

import "github.com/google/uuid"

// TokenGenerator mints the token returned by Subscribe. Tests swap in
// testutil.SequenceGenerator for stable tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-ordered UUIDv7 tokens, so a token sorts after
// every token issued before it.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	// NewV7 only fails when the system random source does.
	return uuid.Must(uuid.NewV7()).String()
}
