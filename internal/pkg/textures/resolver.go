package textures

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
)

// DefaultOptiFineCapeBaseURL is the third-party cape host probed before the
// account service's own cape.
const DefaultOptiFineCapeBaseURL = "http://s.optifine.net/capes"

// DefaultMaxSkinSize bounds how many skin bytes are streamed to a client.
const DefaultMaxSkinSize = 8 * datasize.MB

// Resolver serves skin and cape lookups from the profile cache. It holds no
// state of its own; everything it knows comes from the latest verification.
type Resolver struct {
	Cache  alphabridge.ProfileCache
	Client *http.Client
	// OptiFineCapeBaseURL set to "-" disables the third-party probe.
	OptiFineCapeBaseURL string
	MaxSkinSize         datasize.ByteSize
	Logger              *zap.Logger
}

// SkinHandler streams the skin bytes of a cached profile. The route is
// /skin/{username}.png, mounted as /skin/{filename}.
func (rv *Resolver) SkinHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		username := strings.TrimSuffix(filename, ".png")
		if username == filename || username == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		profile, err := rv.Cache.Get(r.Context(), username)
		if err != nil || profile.SkinURL == "" {
			if err != nil && !errors.Is(err, alphabridge.ErrProfileNotFound) {
				rv.logger().Error("profile cache failure",
					zap.Error(err),
					zap.String("username", username),
				)
			}
			w.WriteHeader(http.StatusNotFound)
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, profile.SkinURL, nil)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		resp, err := rv.client().Do(req)
		if err != nil {
			rv.logger().Debug("failed to fetch skin",
				zap.Error(err),
				zap.String("username", username),
			)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		rv.logger().Debug("streaming skin",
			zap.String("username", username),
			zap.String("skinUrl", profile.SkinURL),
		)

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, io.LimitReader(resp.Body, int64(rv.maxSkinSize())))
	})
}

// CapeHandler redirects to a player's cape. A third-party OptiFine cape
// takes precedence over the account service's cape, matching what era
// clients expect.
func (rv *Resolver) CapeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username := r.URL.Query().Get("user")
		if username == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if capeURL := rv.probeOptiFineCape(r, username); capeURL != "" {
			rv.redirect(w, username, capeURL)
			return
		}

		profile, err := rv.Cache.Get(r.Context(), username)
		if err != nil || profile.CapeURL == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rv.redirect(w, username, profile.CapeURL)
	})
}

func (rv *Resolver) redirect(w http.ResponseWriter, username, capeURL string) {
	rv.logger().Debug("redirecting to cape",
		zap.String("username", username),
		zap.String("capeUrl", capeURL),
	)
	w.Header().Set("Location", capeURL)
	w.WriteHeader(http.StatusMovedPermanently)
}

func (rv *Resolver) probeOptiFineCape(r *http.Request, username string) string {
	baseURL := rv.OptiFineCapeBaseURL
	if baseURL == "-" {
		return ""
	}
	if baseURL == "" {
		baseURL = DefaultOptiFineCapeBaseURL
	}

	capeURL := fmt.Sprintf("%s/%s.png", baseURL, username)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodHead, capeURL, nil)
	if err != nil {
		return ""
	}

	resp, err := rv.client().Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return capeURL
}

func (rv *Resolver) maxSkinSize() datasize.ByteSize {
	if rv.MaxSkinSize == 0 {
		return DefaultMaxSkinSize
	}
	return rv.MaxSkinSize
}

func (rv *Resolver) client() *http.Client {
	if rv.Client == nil {
		return http.DefaultClient
	}
	return rv.Client
}

func (rv *Resolver) logger() *zap.Logger {
	if rv.Logger == nil {
		return zap.NewNop()
	}
	return rv.Logger
}
