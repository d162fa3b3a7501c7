package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
	"github.com/alphabridge/alphabridge/internal/pkg/config"
)

type PluginConfig struct {
	API struct {
		Enable         bool     `mapstructure:"enable"`
		Bind           string   `mapstructure:"bind"`
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
		AllowedMethods []string `mapstructure:"allowedMethods"`
		AllowedHeaders []string `mapstructure:"allowedHeaders"`
	} `mapstructure:"api"`
}

type Plugin struct {
	Config PluginConfig
	logger *zap.Logger
	bridge alphabridge.API

	quit chan bool
}

func (p Plugin) Name() string {
	return "API"
}

func (p Plugin) Version() string {
	return "internal"
}

func (p *Plugin) Load(cfg map[string]any) error {
	pluginCfg := PluginConfig{}
	if err := config.Unmarshal(cfg, &pluginCfg); err != nil {
		return err
	}
	p.Config = pluginCfg

	if !p.Config.API.Enable {
		return alphabridge.ErrPluginViaConfigDisabled
	}
	return nil
}

func (p *Plugin) Reload(cfg map[string]any) error {
	var pluginCfg PluginConfig
	if err := config.Unmarshal(cfg, &pluginCfg); err != nil {
		return err
	}

	if !pluginCfg.API.Enable {
		return alphabridge.ErrPluginViaConfigDisabled
	}

	if pluginCfg.API.Bind == p.Config.API.Bind {
		return nil
	}

	p.Config = pluginCfg
	p.quit <- true

	go p.startAPIServer()
	return nil
}

func (p *Plugin) Enable(api alphabridge.PluginAPI) error {
	p.logger = api.Logger()
	p.bridge = api.Bridge()
	p.quit = make(chan bool)

	go p.startAPIServer()
	return nil
}

func (p Plugin) Disable() error {
	select {
	case p.quit <- true:
	default:
	}
	return nil
}

func (p Plugin) startAPIServer() {
	srv := http.Server{
		Handler: p.router(),
		Addr:    p.Config.API.Bind,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("failed to start api server", zap.Error(err))
			return
		}
	}()

	p.logger.Info("started api server",
		zap.String("bind", p.Config.API.Bind),
	)

	<-p.quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (p Plugin) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   p.Config.API.AllowedOrigins,
		AllowedMethods:   p.Config.API.AllowedMethods,
		AllowedHeaders:   p.Config.API.AllowedHeaders,
		AllowCredentials: false,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", getSessionsHandler(p.bridge))
			r.Delete("/{serverId}", deleteSessionHandler(p.bridge))
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/{username}", getProfileHandler(p.bridge))
			r.Delete("/{username}", deleteProfileHandler(p.bridge))
		})

		r.Get("/status", getStatusHandler(p.bridge))
	})
	return r
}

// requestContext bounds store reads so a stuck backend cannot pin an admin
// request forever.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}
