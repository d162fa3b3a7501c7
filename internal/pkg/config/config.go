package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type MojangConfig struct {
	ProfileURL     string        `mapstructure:"profileURL"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

type OptiFineConfig struct {
	CapeBaseURL string `mapstructure:"capeBaseURL"`
}

type RedisConfig struct {
	URI string `mapstructure:"uri"`
}

type SessionsConfig struct {
	Storage string        `mapstructure:"storage"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type ProfilesConfig struct {
	Storage string      `mapstructure:"storage"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type TexturesConfig struct {
	MaxSkinSize    datasize.ByteSize `mapstructure:"maxSkinSize"`
	RequestTimeout time.Duration     `mapstructure:"requestTimeout"`
}

type Config struct {
	Bind          string         `mapstructure:"bind"`
	ProxyProtocol bool           `mapstructure:"proxyProtocol"`
	LegacyHost    string         `mapstructure:"legacyHost"`
	Mojang        MojangConfig   `mapstructure:"mojang"`
	OptiFine      OptiFineConfig `mapstructure:"optifine"`
	Sessions      SessionsConfig `mapstructure:"sessions"`
	Profiles      ProfilesConfig `mapstructure:"profiles"`
	Textures      TexturesConfig `mapstructure:"textures"`
}

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

func DefaultConfig() Config {
	return Config{
		Bind:       ":5000",
		LegacyHost: "www.minecraft.net",
		Mojang: MojangConfig{
			ProfileURL:     "https://api.minecraftservices.com/minecraft/profile",
			RequestTimeout: 10 * time.Second,
		},
		OptiFine: OptiFineConfig{
			CapeBaseURL: "http://s.optifine.net/capes",
		},
		Sessions: SessionsConfig{
			Storage: StorageMemory,
		},
		Profiles: ProfilesConfig{
			Storage: StorageMemory,
		},
		Textures: TexturesConfig{
			MaxSkinSize:    8 * datasize.MB,
			RequestTimeout: 10 * time.Second,
		},
	}
}

// Load reads the config file and returns the typed config next to the raw
// settings map that is handed to the plugins. Values can be overridden via
// ALPHABRIDGE_* environment variables, e.g. ALPHABRIDGE_SESSIONS_TTL.
func Load(path string) (Config, map[string]any, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("alphabridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Registering the defaults makes every key known to viper, which is
	// what lets AllSettings consult the environment for them.
	for key, value := range defaultSettings() {
		v.SetDefault(key, value)
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, nil, err
	}

	data := v.AllSettings()

	var cfg Config
	if err := Unmarshal(data, &cfg); err != nil {
		return Config{}, nil, err
	}
	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return Config{}, nil, err
	}
	return cfg, data, nil
}

// Unmarshal decodes a raw settings map into a tagged struct. Durations and
// byte sizes may be given as human-readable strings ("10s", "8MB").
func Unmarshal(cfg map[string]any, v any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: v,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToByteSizeHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(cfg)
}

func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(datasize.ByteSize(0)) {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			return nil, err
		}
		return size, nil
	}
}

// defaultSettings is DefaultConfig as a raw settings map, with durations and
// sizes in their human-readable string form.
func defaultSettings() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"bind":          def.Bind,
		"proxyProtocol": def.ProxyProtocol,
		"legacyHost":    def.LegacyHost,
		"mojang": map[string]any{
			"profileURL":     def.Mojang.ProfileURL,
			"requestTimeout": def.Mojang.RequestTimeout.String(),
		},
		"optifine": map[string]any{
			"capeBaseURL": def.OptiFine.CapeBaseURL,
		},
		"sessions": map[string]any{
			"storage": def.Sessions.Storage,
			"ttl":     def.Sessions.TTL.String(),
		},
		"profiles": map[string]any{
			"storage": def.Profiles.Storage,
		},
		"textures": map[string]any{
			"maxSkinSize":    def.Textures.MaxSkinSize.String(),
			"requestTimeout": def.Textures.RequestTimeout.String(),
		},
	}
}

// WriteDefault renders the default config to path so a fresh install has a
// file to edit.
func WriteDefault(path string) error {
	bb, err := yaml.Marshal(defaultSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(path, bb, 0644)
}
