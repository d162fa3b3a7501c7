package prometheus

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
	"github.com/alphabridge/alphabridge/internal/pkg/config"
	"github.com/alphabridge/alphabridge/pkg/event"
)

var (
	joinCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphabridge_joins",
		Help: "The total number of join requests by outcome and reason",
	}, []string{"outcome", "reason"})
	checkCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphabridge_checks",
		Help: "The total number of check requests by outcome and reason",
	}, []string{"outcome", "reason"})
	pendingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphabridge_pending_sessions",
		Help: "The number of joined sessions not yet consumed by a check",
	})
	cachedProfiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphabridge_cached_profiles",
		Help: "The number of verified profiles currently cached",
	})
)

type PluginConfig struct {
	Prometheus struct {
		Enable bool   `mapstructure:"enable"`
		Bind   string `mapstructure:"bind"`
	} `mapstructure:"prometheus"`
}

type Plugin struct {
	Config   PluginConfig
	logger   *zap.Logger
	eventBus event.Bus
	bridge   alphabridge.API
	eventID  string

	quit chan bool
}

func (p Plugin) Name() string {
	return "Prometheus"
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

	if !p.Config.Prometheus.Enable {
		return alphabridge.ErrPluginViaConfigDisabled
	}
	return nil
}

func (p *Plugin) Reload(cfg map[string]any) error {
	return p.Load(cfg)
}

func (p *Plugin) Enable(api alphabridge.PluginAPI) error {
	p.logger = api.Logger()
	p.eventBus = api.EventBus()
	p.bridge = api.Bridge()
	p.quit = make(chan bool)

	p.eventID, _ = p.eventBus.AttachHandlerFunc("", p.handleEvent,
		alphabridge.JoinEventTopic,
		alphabridge.CheckEventTopic,
	)

	go p.startMetricsServer()
	return nil
}

func (p Plugin) Disable() error {
	p.eventBus.DetachRecipient(p.eventID)
	select {
	case p.quit <- true:
	default:
	}
	return nil
}

func (p Plugin) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := http.Server{
		Handler: mux,
		Addr:    p.Config.Prometheus.Bind,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("failed to start metrics server", zap.Error(err))
			return
		}
	}()

	p.logger.Info("started metrics server",
		zap.String("bind", p.Config.Prometheus.Bind),
	)

	<-p.quit

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func (p Plugin) handleEvent(e event.Event) {
	switch data := e.Data.(type) {
	case alphabridge.JoinEvent:
		joinCount.With(outcomeLabels(data.Succeeded, data.Reason)).Inc()
	case alphabridge.CheckEvent:
		checkCount.With(outcomeLabels(data.Succeeded, data.Reason)).Inc()
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := p.bridge.Status(ctx)
	if err != nil {
		p.logger.Debug("failed to read bridge status", zap.Error(err))
		return
	}
	pendingSessions.Set(float64(status.PendingSessions))
	cachedProfiles.Set(float64(status.CachedProfiles))
}

func outcomeLabels(succeeded bool, reason string) prometheus.Labels {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	return prometheus.Labels{
		"outcome": outcome,
		"reason":  reason,
	}
}
