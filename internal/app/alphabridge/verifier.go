package alphabridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNameMismatch is returned by Verify when the account service reports a
// different name than the client claims. This is the anti-spoofing gate: a
// valid token for account A must not let a client join as player B.
var ErrNameMismatch = errors.New("claimed username does not match account name")

// AccountService resolves a bearer token to the profile of the account it
// belongs to.
type AccountService interface {
	Profile(ctx context.Context, bearerToken string) (AccountProfile, error)
}

// Verifier checks a client's claimed username against the account service.
type Verifier interface {
	Verify(ctx context.Context, bearerToken, username string) (Profile, error)
}

// ProfileVerifier verifies claimed usernames against an AccountService and
// upserts the ProfileCache at the moment of trust establishment. The
// account call runs without any lock held; only the cache upsert touches
// shared state.
type ProfileVerifier struct {
	Service AccountService
	Cache   ProfileCache
	Logger  *zap.Logger
}

func (v *ProfileVerifier) Verify(ctx context.Context, bearerToken, username string) (Profile, error) {
	acc, err := v.Service.Profile(ctx, bearerToken)
	if err != nil {
		return Profile{}, fmt.Errorf("account service: %w", err)
	}

	if acc.Name != username {
		return Profile{}, fmt.Errorf("%w: claimed %q, account reports %q",
			ErrNameMismatch, username, acc.Name)
	}

	profile := Profile{
		Username: acc.Name,
		ID:       acc.ID,
		SkinURL:  acc.SkinURL,
		CapeURL:  acc.CapeURL,
	}

	// The cache only feeds appearance lookups; a failed upsert must not
	// undo an already established verification.
	if err := v.Cache.Put(ctx, profile); err != nil {
		v.logger().Error("failed to cache verified profile",
			zap.Error(err),
			zap.String("username", username),
		)
	}

	v.logger().Info("verified player",
		zap.String("username", username),
		zap.String("uuid", profile.ID.String()),
	)
	return profile, nil
}

func (v *ProfileVerifier) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
