package mojang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

// DefaultProfileURL is the Minecraft services endpoint that resolves a
// bearer token to the profile of the account it belongs to.
const DefaultProfileURL = "https://api.minecraftservices.com/minecraft/profile"

const assetStateActive = "ACTIVE"

// Authenticator implements alphabridge.AccountService against the Minecraft
// services API.
type Authenticator struct {
	// ProfileURL defaults to DefaultProfileURL when empty.
	ProfileURL string
	Client     *http.Client
	Logger     *zap.Logger
}

type profileDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Skins []struct {
		State string `json:"state"`
		URL   string `json:"url"`
	} `json:"skins"`
	Capes []struct {
		State string `json:"state"`
		URL   string `json:"url"`
	} `json:"capes"`
}

func (a *Authenticator) Profile(ctx context.Context, bearerToken string) (alphabridge.AccountProfile, error) {
	a.debugLogTokenClaims(bearerToken)

	url := a.ProfileURL
	if url == "" {
		url = DefaultProfileURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return alphabridge.AccountProfile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client().Do(req)
	if err != nil {
		return alphabridge.AccountProfile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return alphabridge.AccountProfile{}, fmt.Errorf("unable to fetch profile (%s)", resp.Status)
	}

	var dto profileDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return alphabridge.AccountProfile{}, err
	}

	if dto.Name == "" {
		return alphabridge.AccountProfile{}, errors.New("profile response carries no name")
	}

	accountID, err := uuid.FromString(dto.ID)
	if err != nil {
		return alphabridge.AccountProfile{}, fmt.Errorf("profile response carries no usable id: %w", err)
	}

	profile := alphabridge.AccountProfile{
		ID:   accountID,
		Name: dto.Name,
	}

	// Last active asset wins when the service reports several.
	for _, skin := range dto.Skins {
		if skin.State == assetStateActive && skin.URL != "" {
			profile.SkinURL = skin.URL
		}
	}
	for _, cape := range dto.Capes {
		if cape.State == assetStateActive && cape.URL != "" {
			profile.CapeURL = cape.URL
		}
	}

	return profile, nil
}

// debugLogTokenClaims surfaces the token expiry for operators. The claims
// are read unverified and play no part in the trust decision; the services
// API is the only authority on token validity.
func (a *Authenticator) debugLogTokenClaims(bearerToken string) {
	if a.Logger == nil || !a.Logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(bearerToken, &claims); err != nil {
		a.Logger.Debug("bearer token is not a parsable JWT",
			zap.Error(err),
		)
		return
	}

	fields := []zap.Field{zap.String("subject", claims.Subject)}
	if claims.ExpiresAt != nil {
		fields = append(fields, zap.Time("expiresAt", claims.ExpiresAt.Time))
	}
	a.Logger.Debug("bearer token claims", fields...)
}

func (a *Authenticator) client() *http.Client {
	if a.Client == nil {
		return http.DefaultClient
	}
	return a.Client
}
