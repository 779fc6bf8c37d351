package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Models    ModelsConfig    `mapstructure:"models"`
	Inference InferenceConfig `mapstructure:"inference"`
	Frontend  FrontendConfig  `mapstructure:"frontend"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

type ModelsConfig struct {
	Dir          string `mapstructure:"dir"`
	DefaultAlias string `mapstructure:"default_alias"`
}

type InferenceConfig struct {
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
	IntraOpThreads int    `mapstructure:"intra_op_threads"`
	SharedLibrary  string `mapstructure:"shared_library"`
}

type FrontendConfig struct {
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// Load reads the YAML file at configPath on top of the built-in defaults.
// Environment variables prefixed with ONCO_ override both.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ONCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, BasePath())

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return unmarshal(v)
}

// New loads configPath and falls back to the defaults (still honoring
// environment overrides) when the file cannot be read. The returned error
// is the read failure, for the caller to log.
func New(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err == nil {
		return cfg, nil
	}

	v := viper.New()
	v.SetEnvPrefix("ONCO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, BasePath())

	cfg, uerr := unmarshal(v)
	if uerr != nil {
		return getDefaultConfig(BasePath()), err
	}
	return cfg, err
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

// BasePath is the directory holding the running executable, or the working
// directory when that cannot be determined.
func BasePath() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func setDefaults(v *viper.Viper, base string) {
	d := getDefaultConfig(base)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_upload_size", d.Server.MaxUploadSize)

	v.SetDefault("models.dir", d.Models.Dir)
	v.SetDefault("models.default_alias", d.Models.DefaultAlias)

	v.SetDefault("inference.max_concurrent", d.Inference.MaxConcurrent)
	v.SetDefault("inference.intra_op_threads", d.Inference.IntraOpThreads)
	v.SetDefault("inference.shared_library", d.Inference.SharedLibrary)

	v.SetDefault("frontend.dir", d.Frontend.Dir)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetDefault("cors.allow_origins", d.CORS.AllowOrigins)
}

func getDefaultConfig(base string) *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "0.0.0.0:5000",
			Mode:          "release",
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  120 * time.Second,
			MaxUploadSize: 32 << 20,
		},
		Models: ModelsConfig{
			Dir:          base,
			DefaultAlias: "YOLOv11-Prostate-Seg",
		},
		Inference: InferenceConfig{
			MaxConcurrent:  0,
			IntraOpThreads: 0,
			SharedLibrary:  "",
		},
		Frontend: FrontendConfig{
			Dir: filepath.Clean(filepath.Join(base, "..", "frontend")),
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     time.Hour,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
	}
}
