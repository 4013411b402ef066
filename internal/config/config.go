// Package config loads service configuration from defaults, an optional
// config file and GLOBE_* environment variables, in increasing priority.
//
// Invalid values are logged and replaced by their defaults. Only settings
// that make the service unusable (an unreadable config file, auth enabled
// without a token) are returned as errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/vsr83/WebGLGlobeTest/internal/auth"
	"github.com/vsr83/WebGLGlobeTest/internal/cache"
	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/observability"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/stream"
)

// EnvPrefix prefixes every environment override, e.g. GLOBE_HTTP_ADDR.
const EnvPrefix = "GLOBE"

// Observer is the default ground observer for pass prediction.
type Observer struct {
	LatDeg float64 `mapstructure:"lat"`
	LonDeg float64 `mapstructure:"lon"`
	AltKm  float64 `mapstructure:"alt_km"`
}

// Config is the complete service configuration.
type Config struct {
	HTTPAddr   string
	LogLevel   slog.Level
	TrustProxy bool

	Auth            auth.Config
	Catalog         catalog.Source
	CatalogRefresh  time.Duration // zero disables periodic reload
	Propagation     propagation.PropConfig
	Cache           cache.Config
	Stream          stream.Config
	Observer        Observer
	Globe           geometry.Ellipsoid
	Tracing         observability.TracingConfig
	ShutdownTimeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("shutdown_timeout_seconds", 5)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("catalog.tle_file", "")
	v.SetDefault("catalog.tle_url", "")
	v.SetDefault("catalog.tle_extra_urls", []string{})
	v.SetDefault("catalog.cache_dir", "/tmp/globe/tle")
	v.SetDefault("catalog.mu", 0.0)
	v.SetDefault("catalog.refresh_interval_seconds", 0)

	v.SetDefault("propagation.workers", runtime.NumCPU())
	v.SetDefault("propagation.step_seconds", 5)
	v.SetDefault("propagation.horizon_seconds", 600)
	v.SetDefault("cache.buffer_seconds", 60)

	v.SetDefault("stream.max_concurrent_per_ip", 10)
	v.SetDefault("stream.bandwidth_limit", 1048576)
	v.SetDefault("stream.max_frame_rate", 200)
	v.SetDefault("stream.keepalive_interval_seconds", 30)

	v.SetDefault("observer.lat", 60.17)
	v.SetDefault("observer.lon", 24.94)
	v.SetDefault("observer.alt_km", 0.0)

	v.SetDefault("globe.a", geometry.DefaultEllipsoid.A)
	v.SetDefault("globe.b", geometry.DefaultEllipsoid.B)
	v.SetDefault("globe.n_lon", geometry.DefaultEllipsoid.NLon)
	v.SetDefault("globe.n_lat", geometry.DefaultEllipsoid.NLat)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "globe")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads the configuration. path may be empty, in which case GLOBE_CONFIG
// is consulted; with neither set only defaults and the environment apply.
func Load(path string, logger *slog.Logger) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		logger.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	cfg := Config{
		HTTPAddr:   v.GetString("http_addr"),
		TrustProxy: v.GetBool("trust_proxy"),
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		logger.Warn("invalid log_level value, using default", "value", v.GetString("log_level"), "default", "info")
		cfg.LogLevel = slog.LevelInfo
	}
	cfg.ShutdownTimeout = seconds(v, logger, "shutdown_timeout_seconds", 5, 1)

	cfg.Auth = auth.Config{
		Enabled: v.GetBool("auth.enabled"),
		Token:   v.GetString("auth.token"),
	}
	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		return cfg, errors.New("GLOBE_AUTH_TOKEN is required when auth is enabled")
	}

	cfg.Catalog = catalog.Source{
		TLEFile:   v.GetString("catalog.tle_file"),
		TLEURL:    v.GetString("catalog.tle_url"),
		ExtraURLs: stringList(v, "catalog.tle_extra_urls"),
		CacheDir:  v.GetString("catalog.cache_dir"),
		Mu:        v.GetFloat64("catalog.mu"),
	}
	if err := v.UnmarshalKey("catalog.objects", &cfg.Catalog.Objects); err != nil {
		logger.Warn("invalid catalog.objects, ignoring", "error", err)
		cfg.Catalog.Objects = nil
	}
	if cfg.Catalog.Mu < 0 {
		logger.Warn("invalid catalog.mu value, using Earth's", "value", cfg.Catalog.Mu)
		cfg.Catalog.Mu = 0
	}
	cfg.CatalogRefresh = seconds(v, logger, "catalog.refresh_interval_seconds", 0, 0)

	cfg.Propagation = propagation.PropConfig{
		Workers: positiveInt(v, logger, "propagation.workers", runtime.NumCPU()),
		Step:    seconds(v, logger, "propagation.step_seconds", 5, 1),
		Horizon: seconds(v, logger, "propagation.horizon_seconds", 600, 1),
	}
	cfg.Cache = cache.Config{
		Step:    cfg.Propagation.Step,
		Horizon: cfg.Propagation.Horizon,
		Buffer:  seconds(v, logger, "cache.buffer_seconds", 60, 1),
	}

	cfg.Stream = stream.Config{
		MaxConcurrentPerIP: positiveInt(v, logger, "stream.max_concurrent_per_ip", 10),
		BandwidthLimit:     positiveInt(v, logger, "stream.bandwidth_limit", 1048576),
		MaxFrameRate:       v.GetFloat64("stream.max_frame_rate"),
		KeepaliveInterval:  seconds(v, logger, "stream.keepalive_interval_seconds", 30, 1),
		TrustProxy:         cfg.TrustProxy,
	}

	if r := cfg.Stream.MaxFrameRate; !(r >= 1) || math.IsInf(r, 0) {
		logger.Warn("invalid stream.max_frame_rate value, using default", "value", v.Get("stream.max_frame_rate"), "default", 200)
		cfg.Stream.MaxFrameRate = 200
	}

	cfg.Observer = Observer{
		LatDeg: v.GetFloat64("observer.lat"),
		LonDeg: v.GetFloat64("observer.lon"),
		AltKm:  v.GetFloat64("observer.alt_km"),
	}
	if cfg.Observer.LatDeg < -90 || cfg.Observer.LatDeg > 90 || cfg.Observer.LonDeg < -180 || cfg.Observer.LonDeg > 180 {
		logger.Warn("invalid observer location, using default", "lat", cfg.Observer.LatDeg, "lon", cfg.Observer.LonDeg)
		cfg.Observer = Observer{LatDeg: 60.17, LonDeg: 24.94}
	}

	cfg.Globe = geometry.Ellipsoid{
		A:    v.GetFloat64("globe.a"),
		B:    v.GetFloat64("globe.b"),
		NLon: v.GetInt("globe.n_lon"),
		NLat: v.GetInt("globe.n_lat"),
	}
	if err := cfg.Globe.Validate(); err != nil {
		logger.Warn("invalid globe, using default", "error", err)
		cfg.Globe = geometry.DefaultEllipsoid
	}

	cfg.Tracing = observability.TracingConfig{
		Enabled:     v.GetBool("tracing.enabled"),
		ServiceName: v.GetString("tracing.service_name"),
		Exporter:    v.GetString("tracing.exporter"),
		Endpoint:    v.GetString("tracing.endpoint"),
		SampleRatio: v.GetFloat64("tracing.sample_ratio"),
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		logger.Warn("invalid tracing.sample_ratio value, using default", "value", cfg.Tracing.SampleRatio, "default", 1.0)
		cfg.Tracing.SampleRatio = 1
	}

	logger.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"auth_enabled", cfg.Auth.Enabled,
		"trust_proxy", cfg.TrustProxy,
		"catalog_objects", len(cfg.Catalog.Objects),
		"tle_file", cfg.Catalog.TLEFile,
		"tle_url", cfg.Catalog.TLEURL,
		"catalog_refresh_seconds", cfg.CatalogRefresh.Seconds(),
		"workers", cfg.Propagation.Workers,
		"step_seconds", cfg.Propagation.Step.Seconds(),
		"horizon_seconds", cfg.Propagation.Horizon.Seconds(),
		"buffer_seconds", cfg.Cache.Buffer.Seconds(),
		"max_concurrent_per_ip", cfg.Stream.MaxConcurrentPerIP,
		"max_frame_rate", cfg.Stream.MaxFrameRate,
		"tracing_enabled", cfg.Tracing.Enabled,
	)
	return cfg, nil
}

// positiveInt reads key, falling back to def for values below 1.
func positiveInt(v *viper.Viper, logger *slog.Logger, key string, def int) int {
	n, err := toInt(v.Get(key))
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v.Get(key), "default", def)
		return def
	}
	return n
}

// seconds reads key as whole seconds, falling back to def below min.
func seconds(v *viper.Viper, logger *slog.Logger, key string, def, min int) time.Duration {
	n, err := toInt(v.Get(key))
	if err != nil || n < min {
		logger.Warn("invalid "+key+" value, using default", "value", v.Get(key), "default", def)
		n = def
	}
	return time.Duration(n) * time.Second
}

func toInt(raw any) (int, error) {
	switch x := raw.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%v is not a whole number", x)
		}
		return int(x), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

// stringList accepts a YAML list or a comma-separated environment value.
func stringList(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	s, ok := raw.(string)
	if !ok {
		return v.GetStringSlice(key)
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
