package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pires/go-proxyproto"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alphabridge/alphabridge/internal/app/alphabridge"
	"github.com/alphabridge/alphabridge/internal/pkg/config"
	"github.com/alphabridge/alphabridge/internal/pkg/mojang"
	redisstorage "github.com/alphabridge/alphabridge/internal/pkg/storage/redis"
	"github.com/alphabridge/alphabridge/internal/pkg/textures"
	"github.com/alphabridge/alphabridge/internal/plugin/api"
	"github.com/alphabridge/alphabridge/internal/plugin/prometheus"
	"github.com/alphabridge/alphabridge/internal/plugin/webhook"
	"github.com/alphabridge/alphabridge/pkg/event"
)

var (
	version string

	configPath  = "config.yml"
	workingDir  = "."
	environment = "prod"
	logEncoder  = "console"

	logger        *zap.Logger
	pluginManager *alphabridge.PluginManager

	mu sync.Mutex

	rootCmd = &cobra.Command{
		Use:   "alphabridge",
		Short: "Starts the legacy session bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = newLogger(environment)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := os.Chdir(workingDir); err != nil {
				return err
			}

			if _, err := os.Stat(configPath); err != nil && errors.Is(err, os.ErrNotExist) {
				logger.Info("writing default config",
					zap.String("config", configPath),
				)
				if err := config.WriteDefault(configPath); err != nil {
					return err
				}
			}

			logger.Info("loading config",
				zap.String("config", configPath),
			)

			cfg, data, err := config.Load(configPath)
			if err != nil {
				return err
			}

			sessions, err := newSessionStore(cfg.Sessions)
			if err != nil {
				return err
			}

			profiles, err := newProfileCache(cfg.Profiles)
			if err != nil {
				return err
			}

			resolver := &textures.Resolver{
				Cache: profiles,
				Client: &http.Client{
					Timeout: cfg.Textures.RequestTimeout,
				},
				OptiFineCapeBaseURL: cfg.OptiFine.CapeBaseURL,
				MaxSkinSize:         cfg.Textures.MaxSkinSize,
				Logger:              logger,
			}

			eventBus := event.NewInternalBus()
			bridge := &alphabridge.Bridge{
				Verifier: &alphabridge.ProfileVerifier{
					Service: &mojang.Authenticator{
						ProfileURL: cfg.Mojang.ProfileURL,
						Client: &http.Client{
							Timeout: cfg.Mojang.RequestTimeout,
						},
						Logger: logger,
					},
					Cache:  profiles,
					Logger: logger,
				},
				SessionStore: sessions,
				ProfileCache: profiles,
				SkinHandler:  resolver.SkinHandler(),
				CapeHandler:  resolver.CapeHandler(),
				Passthrough: alphabridge.Passthrough{
					Logger: logger,
				},
				LegacyHost: cfg.LegacyHost,
				Logger:     logger,
				EventBus:   eventBus,
				StartedAt:  time.Now(),
			}

			pluginManager = &alphabridge.PluginManager{
				Bridge:   bridge,
				Logger:   logger,
				EventBus: eventBus,
			}
			pluginManager.RegisterPlugin(&webhook.Plugin{})
			pluginManager.RegisterPlugin(&prometheus.Plugin{})
			pluginManager.RegisterPlugin(&api.Plugin{})

			logger.Debug("loading plugins")
			pluginManager.LoadPlugins(data)
			logger.Debug("enabling plugins")
			if err := pluginManager.EnablePlugins(); err != nil {
				logger.Error("failed to enable plugins",
					zap.Error(err),
				)
			}
			defer pluginManager.DisablePlugins()

			if cfg.Sessions.TTL > 0 {
				scheduler := cron.New()
				if _, err := scheduler.AddFunc("@every 1m", sweepSessions(sessions, cfg.Sessions.TTL)); err != nil {
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}

			watcher, err := config.Watch(configPath, onConfigChange, logger)
			if err != nil {
				logger.Error("failed to watch config",
					zap.Error(err),
				)
			} else {
				defer watcher.Close()
			}

			ln, err := net.Listen("tcp", cfg.Bind)
			if err != nil {
				return err
			}
			if cfg.ProxyProtocol {
				ln = &proxyproto.Listener{Listener: ln}
			}

			srv := &http.Server{
				Handler: bridge.Router(),
			}

			go func() {
				logger.Info("listening",
					zap.String("bind", cfg.Bind),
				)
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server exited",
						zap.Error(err),
					)
				}
			}()

			sc := make(chan os.Signal, 1)
			signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
			<-sc

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return multierr.Append(srv.Shutdown(ctx), ln.Close())
		},
	}
)

func newSessionStore(cfg config.SessionsConfig) (alphabridge.SessionStore, error) {
	switch cfg.Storage {
	case "", config.StorageMemory:
		return alphabridge.NewMemorySessionStore(), nil
	case config.StorageRedis:
		return redisstorage.NewSessionStore(redisstorage.Config{
			URI: cfg.Redis.URI,
			TTL: cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unsupported session storage %q", cfg.Storage)
	}
}

func newProfileCache(cfg config.ProfilesConfig) (alphabridge.ProfileCache, error) {
	switch cfg.Storage {
	case "", config.StorageMemory:
		return alphabridge.NewMemoryProfileCache(), nil
	case config.StorageRedis:
		return redisstorage.NewProfileCache(redisstorage.Config{
			URI: cfg.Redis.URI,
		})
	default:
		return nil, fmt.Errorf("unsupported profile storage %q", cfg.Storage)
	}
}

func sweepSessions(sessions alphabridge.SessionStore, ttl time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := sessions.Evict(ctx, ttl)
		if err != nil {
			logger.Error("failed to evict stale sessions",
				zap.Error(err),
			)
			return
		}
		if n > 0 {
			logger.Info("evicted stale sessions",
				zap.Int("count", n),
			)
		}
	}
}

func onConfigChange(cfg map[string]any) {
	mu.Lock()
	defer mu.Unlock()

	logger.Debug("reloading plugins")
	pluginManager.ReloadPlugins(cfg)
}

func envString(name string, defVal string) string {
	envString := os.Getenv(name)
	if envString == "" {
		return defVal
	}
	return envString
}

func init() {
	envVarPrefix := "ALPHABRIDGE_"
	workingDir = envString(envVarPrefix+"WORKING_DIR", workingDir)
	rootCmd.PersistentFlags().StringVarP(&workingDir, "working-dir", "w", workingDir, "set the working directory")
	environment = envString(envVarPrefix+"ENVIRONMENT", environment)
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", environment, "set the deployment environment")
	logEncoder = envString(envVarPrefix+"LOG_ENCODER", logEncoder)
	rootCmd.PersistentFlags().StringVarP(&logEncoder, "log-encoder", "l", logEncoder, "set the log encoder")
	configPath = envString(envVarPrefix+"CONFIG", configPath)
	rootCmd.Flags().StringVarP(&configPath, "config", "c", configPath, "path of the config file")

	rootCmd.AddCommand(versionCmd)
}

func newLogger(env string) (*zap.Logger, error) {
	switch env {
	case "nop":
		return zap.NewNop(), nil
	case "dev":
		return zap.NewDevelopment()
	case "prod":
		cfg := zap.NewProductionConfig()
		cfg.Encoding = logEncoder
		if logEncoder == "console" {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
		return cfg.Build()
	default:
		return nil, fmt.Errorf("unsupported environment %q", env)
	}
}

// Execute executes the root command.
func Execute(v string) error {
	version = v
	return rootCmd.Execute()
}
