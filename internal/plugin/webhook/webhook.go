package webhook

import (
	"errors"
	"net/http"
	"time"

	"github.com/imdario/mergo"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
	"github.com/alphabridge/alphabridge/internal/pkg/config"
	"github.com/alphabridge/alphabridge/pkg/event"
	"github.com/alphabridge/alphabridge/pkg/webhook"
)

type webhookConfig struct {
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	URL         string        `mapstructure:"url"`
	Events      []string      `mapstructure:"events"`
}

type PluginConfig struct {
	Webhooks map[string]webhookConfig `mapstructure:"webhooks"`
	Defaults struct {
		Webhook webhookConfig `mapstructure:"webhook"`
	} `mapstructure:"defaults"`
}

func (cfg PluginConfig) loadWebhooks() ([]webhook.Webhook, error) {
	webhooks := make([]webhook.Webhook, 0, len(cfg.Webhooks))
	for id, whCfg := range cfg.Webhooks {
		if err := mergo.Merge(&whCfg, cfg.Defaults.Webhook); err != nil {
			return nil, err
		}
		webhooks = append(webhooks, newWebhook(id, whCfg))
	}
	return webhooks, nil
}

func newWebhook(id string, cfg webhookConfig) webhook.Webhook {
	return webhook.Webhook{
		ID: id,
		HTTPClient: &http.Client{
			Timeout: cfg.DialTimeout,
		},
		URL:           cfg.URL,
		AllowedTopics: cfg.Events,
	}
}

type Plugin struct {
	Config   PluginConfig
	logger   *zap.Logger
	eventBus event.Bus
	eventID  string
	whks     []webhook.Webhook
}

func (p Plugin) Name() string {
	return "Webhook"
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

	if len(p.Config.Webhooks) == 0 {
		return alphabridge.ErrPluginViaConfigDisabled
	}

	whks, err := p.Config.loadWebhooks()
	if err != nil {
		return err
	}
	p.whks = whks
	return nil
}

func (p *Plugin) Reload(cfg map[string]any) error {
	return p.Load(cfg)
}

func (p *Plugin) Enable(api alphabridge.PluginAPI) error {
	p.logger = api.Logger()
	p.eventBus = api.EventBus()

	p.eventID, _ = p.eventBus.AttachHandlerFunc("", p.handleEvent,
		alphabridge.JoinEventTopic,
		alphabridge.CheckEventTopic,
	)
	return nil
}

func (p Plugin) Disable() error {
	p.eventBus.DetachRecipient(p.eventID)
	return nil
}

type eventData struct {
	Phase     string `json:"phase"`
	Username  string `json:"username"`
	ServerID  string `json:"serverId"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

func (p Plugin) handleEvent(e event.Event) {
	var data eventData
	switch d := e.Data.(type) {
	case alphabridge.JoinEvent:
		data = eventData{
			Phase:     "join",
			Username:  d.Username,
			ServerID:  d.ServerID,
			Succeeded: d.Succeeded,
			Reason:    d.Reason,
		}
	case alphabridge.CheckEvent:
		data = eventData{
			Phase:     "check",
			Username:  d.Username,
			ServerID:  d.ServerID,
			Succeeded: d.Succeeded,
			Reason:    d.Reason,
		}
	default:
		return
	}

	el := webhook.EventLog{
		Topics:     e.Topics,
		OccurredAt: e.OccurredAt,
		Data:       data,
	}

	for _, wh := range p.whks {
		if err := wh.DispatchEvent(el); err != nil && !errors.Is(err, webhook.ErrTopicNotAllowed) {
			p.logger.Error("dispatching webhook event",
				zap.Error(err),
				zap.String("webhookId", wh.ID),
			)
		}
	}
}
