package alphabridge

import (
	"github.com/gofrs/uuid"
)

// Profile is a player identity as confirmed by the account service. It is
// created only by a successful verification and never mutated afterwards; a
// later verification for the same username supersedes it in the cache.
type Profile struct {
	// Username is the name the legacy protocol knows the player by. It is
	// byte-for-byte identical to the account service's reported name.
	Username string `json:"username"`
	// ID is the account service's durable unique identifier.
	ID uuid.UUID `json:"id"`
	// SkinURL points to the active custom skin, if any.
	SkinURL string `json:"skinUrl,omitempty"`
	// CapeURL points to the active cape, if any.
	CapeURL string `json:"capeUrl,omitempty"`
}

// AccountProfile is the raw identity the account service reports for a
// bearer token, before the claimed name has been checked against it.
type AccountProfile struct {
	ID      uuid.UUID
	Name    string
	SkinURL string
	CapeURL string
}
