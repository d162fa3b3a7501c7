package alphabridge

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alphabridge/alphabridge/pkg/event"
)

// ErrPluginViaConfigDisabled is returned from Plugin.Load by plugins that
// are turned off in the config. The manager skips them silently.
var ErrPluginViaConfigDisabled = errors.New("plugin disabled via config")

type PluginAPI interface {
	Bridge() API
	Logger() *zap.Logger
	EventBus() event.Bus
}

type Plugin interface {
	Name() string
	Version() string
	Load(cfg map[string]any) error
	Reload(cfg map[string]any) error
	Enable(PluginAPI) error
	Disable() error
}

type pluginManagerAPI struct {
	pm *PluginManager
}

func (api pluginManagerAPI) Bridge() API {
	return api.pm.Bridge
}

func (api pluginManagerAPI) Logger() *zap.Logger {
	return api.pm.Logger
}

func (api pluginManagerAPI) EventBus() event.Bus {
	return api.pm.EventBus
}

type PluginManager struct {
	Bridge   *Bridge
	Logger   *zap.Logger
	EventBus event.Bus

	mu      sync.Mutex
	plugins []Plugin
	loaded  map[Plugin]bool
}

func (pm *PluginManager) RegisterPlugin(p Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.plugins = append(pm.plugins, p)
}

// LoadPlugins hands the raw config to every registered plugin. Plugins that
// report ErrPluginViaConfigDisabled stay registered but are not enabled.
func (pm *PluginManager) LoadPlugins(cfg map[string]any) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.loaded = map[Plugin]bool{}
	for _, p := range pm.plugins {
		if err := p.Load(cfg); err != nil {
			if !errors.Is(err, ErrPluginViaConfigDisabled) {
				pm.Logger.Error("failed to load plugin",
					zap.Error(err),
					zap.String("pluginName", p.Name()),
				)
			}
			continue
		}
		pm.loaded[p] = true
	}
}

func (pm *PluginManager) ReloadPlugins(cfg map[string]any) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.plugins {
		if !pm.loaded[p] {
			continue
		}
		if err := p.Reload(cfg); err != nil && !errors.Is(err, ErrPluginViaConfigDisabled) {
			pm.Logger.Error("failed to reload plugin",
				zap.Error(err),
				zap.String("pluginName", p.Name()),
			)
		}
	}
}

func (pm *PluginManager) EnablePlugins() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	api := pluginManagerAPI{pm: pm}

	var result error
	for _, p := range pm.plugins {
		if !pm.loaded[p] {
			continue
		}
		pm.Logger.Info("enabling plugin",
			zap.String("pluginName", p.Name()),
			zap.String("pluginVersion", p.Version()),
		)
		if err := p.Enable(api); err != nil {
			result = multierr.Append(result, err)
		}
	}
	return result
}

func (pm *PluginManager) DisablePlugins() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var result error
	for _, p := range pm.plugins {
		if !pm.loaded[p] {
			continue
		}
		if err := p.Disable(); err != nil {
			result = multierr.Append(result, err)
		}
	}
	return result
}
