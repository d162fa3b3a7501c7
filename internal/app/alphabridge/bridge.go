package alphabridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/pkg/event"
)

// DefaultLegacyHost is the host the legacy protocol hardcodes for its
// session endpoints. Proxy-style requests for any other host fall through
// to the passthrough handler.
const DefaultLegacyHost = "www.minecraft.net"

// Fixed plaintext bodies of the legacy wire surface. Game clients and
// servers match these byte for byte.
const (
	joinAcceptedBody  = "ok"
	checkAffirmedBody = "YES"
	rejectedBody      = "invalid"
)

// Bridge impersonates the legacy session authority: it accepts the
// two-phase join/check handshake and lets a check succeed only for a
// username whose join was verified against the account service.
type Bridge struct {
	Verifier     Verifier
	SessionStore SessionStore
	ProfileCache ProfileCache

	// SkinHandler and CapeHandler serve the appearance endpoints. Either
	// may be nil, in which case the route responds 404.
	SkinHandler http.Handler
	CapeHandler http.Handler
	// Passthrough handles proxy-style requests that do not belong to the
	// legacy surface. Nil disables forwarding.
	Passthrough http.Handler

	LegacyHost string
	Logger     *zap.Logger
	EventBus   event.Bus
	StartedAt  time.Time

	joins         atomic.Int64
	joinFailures  atomic.Int64
	checks        atomic.Int64
	checkFailures atomic.Int64
}

type joinRequest struct {
	Username  string `schema:"user,required"`
	SessionID string `schema:"sessionId,required"`
	ServerID  string `schema:"serverId,required"`
}

type checkRequest struct {
	Username string `schema:"user,required"`
	ServerID string `schema:"serverId,required"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Router builds the HTTP surface: the two legacy session endpoints, the
// appearance endpoints, and passthrough for everything else.
func (b *Bridge) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(b.hostGate)

	r.Get("/game/joinserver.jsp", b.handleJoin)
	r.Get("/game/checkserver.jsp", b.handleCheck)
	r.Get("/skin/{filename}", b.serveOptional(b.SkinHandler))
	r.Get("/cloak/get.jsp", b.serveOptional(b.CapeHandler))
	r.NotFound(b.handleUnmatched)
	return r
}

// hostGate forwards proxy-style requests that target a host other than the
// legacy one before any route can match. Direct requests pass through.
func (b *Bridge) hostGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.IsAbs() && !strings.EqualFold(r.URL.Hostname(), b.legacyHost()) {
			b.handleUnmatched(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Bridge) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := queryDecoder.Decode(&req, r.URL.Query()); err != nil {
		b.logger().Debug("rejecting malformed join request",
			zap.Error(err),
		)
		b.finishJoin(w, req.Username, req.ServerID, ReasonMalformedRequest)
		return
	}

	log := b.logger().With(
		zap.String("username", req.Username),
		zap.String("serverId", req.ServerID),
	)
	log.Info("received join request")

	bearerToken, err := bearerFromSessionID(req.SessionID)
	if err != nil {
		log.Debug("rejecting join with malformed session id",
			zap.Error(err),
		)
		b.finishJoin(w, req.Username, req.ServerID, ReasonMalformedRequest)
		return
	}

	// The account call blocks on network I/O; no store lock is held here.
	if _, err := b.Verifier.Verify(r.Context(), bearerToken, req.Username); err != nil {
		reason := ReasonProviderError
		if errors.Is(err, ErrNameMismatch) {
			reason = ReasonNameMismatch
		}
		log.Warn("failed to verify join",
			zap.Error(err),
			zap.String("reason", reason),
		)
		b.finishJoin(w, req.Username, req.ServerID, reason)
		return
	}

	if err := b.SessionStore.Put(r.Context(), req.ServerID, req.Username); err != nil {
		log.Error("failed to store session hash",
			zap.Error(err),
		)
		b.finishJoin(w, req.Username, req.ServerID, ReasonStorageError)
		return
	}

	log.Info("approved join request")
	b.finishJoin(w, req.Username, req.ServerID, "")
}

func (b *Bridge) finishJoin(w http.ResponseWriter, username, serverID, reason string) {
	succeeded := reason == ""
	if succeeded {
		b.joins.Inc()
		respondPlain(w, http.StatusOK, joinAcceptedBody)
	} else {
		b.joinFailures.Inc()
		respondPlain(w, http.StatusUnauthorized, rejectedBody)
	}
	b.push(JoinEvent{
		Username:  username,
		ServerID:  serverID,
		Succeeded: succeeded,
		Reason:    reason,
	}, JoinEventTopic)
}

func (b *Bridge) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := queryDecoder.Decode(&req, r.URL.Query()); err != nil {
		b.logger().Debug("rejecting malformed check request",
			zap.Error(err),
		)
		b.finishCheck(w, req.Username, req.ServerID, ReasonMalformedRequest)
		return
	}

	log := b.logger().With(
		zap.String("username", req.Username),
		zap.String("serverId", req.ServerID),
	)
	log.Info("received check request")

	if err := b.SessionStore.TakeIfMatches(r.Context(), req.ServerID, req.Username); err != nil {
		var reason string
		switch {
		case errors.Is(err, ErrSessionNotFound):
			reason = ReasonTokenNotFound
		case errors.Is(err, ErrUsernameMismatch):
			reason = ReasonTokenMismatch
		default:
			reason = ReasonStorageError
			log.Error("session store failure",
				zap.Error(err),
			)
		}
		log.Info("declined check request",
			zap.String("reason", reason),
		)
		b.finishCheck(w, req.Username, req.ServerID, reason)
		return
	}

	log.Info("approved check request")
	b.finishCheck(w, req.Username, req.ServerID, "")
}

func (b *Bridge) finishCheck(w http.ResponseWriter, username, serverID, reason string) {
	succeeded := reason == ""
	if succeeded {
		b.checks.Inc()
		respondPlain(w, http.StatusOK, checkAffirmedBody)
	} else {
		b.checkFailures.Inc()
		respondPlain(w, http.StatusUnauthorized, rejectedBody)
	}
	b.push(CheckEvent{
		Username:  username,
		ServerID:  serverID,
		Succeeded: succeeded,
		Reason:    reason,
	}, CheckEventTopic)
}

func (b *Bridge) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	if b.Passthrough != nil && r.URL.IsAbs() {
		b.Passthrough.ServeHTTP(w, r)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (b *Bridge) serveOptional(h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ServeHTTP(w, r)
	}
}

func (b *Bridge) push(data any, topic string) {
	if b.EventBus != nil {
		b.EventBus.Push(data, topic)
	}
}

func (b *Bridge) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func (b *Bridge) legacyHost() string {
	if b.LegacyHost == "" {
		return DefaultLegacyHost
	}
	return b.LegacyHost
}

// bearerFromSessionID extracts the bearer credential from the legacy
// composite session id, formatted as "<ignored>:<bearerToken>:<ignored...>".
func bearerFromSessionID(sessionID string) (string, error) {
	fields := strings.Split(sessionID, ":")
	if len(fields) < 2 || fields[1] == "" {
		return "", errors.New("session id does not carry a bearer token")
	}
	return fields[1], nil
}

func respondPlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Status is an operator-facing snapshot served by the admin API.
type Status struct {
	StartedAt       time.Time `json:"startedAt"`
	Joins           int64     `json:"joins"`
	JoinFailures    int64     `json:"joinFailures"`
	Checks          int64     `json:"checks"`
	CheckFailures   int64     `json:"checkFailures"`
	PendingSessions int       `json:"pendingSessions"`
	CachedProfiles  int       `json:"cachedProfiles"`
}

// API is the surface the plugins see. All reads go through the store
// interfaces, so the admin API observes the same state as the handshake.
type API interface {
	Sessions(ctx context.Context) ([]SessionEntry, error)
	RemoveSession(ctx context.Context, serverID string) (bool, error)
	Profile(ctx context.Context, username string) (Profile, error)
	RemoveProfile(ctx context.Context, username string) (bool, error)
	Status(ctx context.Context) (Status, error)
}

func (b *Bridge) Sessions(ctx context.Context) ([]SessionEntry, error) {
	return b.SessionStore.Entries(ctx)
}

func (b *Bridge) RemoveSession(ctx context.Context, serverID string) (bool, error) {
	return b.SessionStore.Remove(ctx, serverID)
}

func (b *Bridge) Profile(ctx context.Context, username string) (Profile, error) {
	return b.ProfileCache.Get(ctx, username)
}

func (b *Bridge) RemoveProfile(ctx context.Context, username string) (bool, error) {
	return b.ProfileCache.Remove(ctx, username)
}

func (b *Bridge) Status(ctx context.Context) (Status, error) {
	pending, err := b.SessionStore.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	cached, err := b.ProfileCache.Len(ctx)
	if err != nil {
		return Status{}, err
	}

	return Status{
		StartedAt:       b.StartedAt,
		Joins:           b.joins.Load(),
		JoinFailures:    b.joinFailures.Load(),
		Checks:          b.checks.Load(),
		CheckFailures:   b.checkFailures.Load(),
		PendingSessions: pending,
		CachedProfiles:  cached,
	}, nil
}
