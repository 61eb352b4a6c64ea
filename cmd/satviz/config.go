package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/satviz/internal/auth"
	"github.com/star/satviz/internal/groundstation"
	"github.com/star/satviz/internal/observability"
	"github.com/star/satviz/internal/propagation"
	"github.com/star/satviz/internal/stream"
	"github.com/star/satviz/internal/tle"
	"github.com/star/satviz/internal/tracker"
)

// defaultSelection is the ISS and one GPS satellite.
const defaultSelection = "25544,28129"

func loadLogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("SATVIZ_LOG_LEVEL"))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SATVIZ_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SATVIZ_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SATVIZ_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SATVIZ_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// TLEConfig configures element set retrieval.
type TLEConfig struct {
	URLTemplate   string
	RatePerSecond float64
	Burst         int
}

func loadTLEConfig(logger *slog.Logger) TLEConfig {
	cfg := TLEConfig{
		URLTemplate:   tle.DefaultURLTemplate,
		RatePerSecond: 2,
		Burst:         1,
	}

	if v := os.Getenv("SATVIZ_TLE_URL_TEMPLATE"); v != "" {
		if !strings.Contains(v, "{id}") && !strings.Contains(v, "{ids}") {
			logger.Warn("SATVIZ_TLE_URL_TEMPLATE has no {id} or {ids} placeholder, using default", "value", v)
		} else {
			cfg.URLTemplate = v
		}
	}

	if v := os.Getenv("SATVIZ_TLE_RATE_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			logger.Warn("invalid SATVIZ_TLE_RATE_PER_SECOND value, using default", "value", v, "default", cfg.RatePerSecond)
		} else {
			cfg.RatePerSecond = f
		}
	}

	logger.Info("TLE config",
		"url_template", cfg.URLTemplate,
		"rate_per_second", cfg.RatePerSecond,
	)

	return cfg
}

func loadTrackerConfig(logger *slog.Logger) (tracker.Config, error) {
	cfg := tracker.DefaultConfig()
	cfg.Workers = runtime.NumCPU()

	cfg.TickInterval = envMillis(logger, "SATVIZ_TICK_INTERVAL_MS", cfg.TickInterval)
	cfg.Workers = envPositiveInt(logger, "SATVIZ_PROP_WORKERS", cfg.Workers)
	cfg.OrbitSegments = envPositiveInt(logger, "SATVIZ_ORBIT_SEGMENTS", cfg.OrbitSegments)
	cfg.MaxSelection = envPositiveInt(logger, "SATVIZ_MAX_SELECTION", cfg.MaxSelection)

	if v := os.Getenv("SATVIZ_FETCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			logger.Warn("invalid SATVIZ_FETCH_INTERVAL value, using default", "value", v, "default", cfg.FetchInterval.String())
		} else {
			cfg.FetchInterval = d
		}
	}

	if v := os.Getenv("SATVIZ_ORBIT_REFRESH"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logger.Warn("invalid SATVIZ_ORBIT_REFRESH value, using default", "value", v, "default", cfg.OrbitRefresh.String())
		} else {
			cfg.OrbitRefresh = d
		}
	}

	if v := os.Getenv("SATVIZ_GRAVITY"); v != "" {
		g, err := propagation.ParseGravity(v)
		if err != nil {
			return cfg, fmt.Errorf("SATVIZ_GRAVITY: %w", err)
		}
		cfg.Propagation.Gravity = g
	}

	if v := os.Getenv("SATVIZ_MAX_EPOCH_AGE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid SATVIZ_MAX_EPOCH_AGE_DAYS value, using default", "value", v)
		} else {
			cfg.Propagation.MaxEpochAge = time.Duration(n) * 24 * time.Hour
		}
	}

	logger.Info("tracker config",
		"tick_interval_ms", cfg.TickInterval.Milliseconds(),
		"fetch_interval", cfg.FetchInterval.String(),
		"workers", cfg.Workers,
		"orbit_segments", cfg.OrbitSegments,
		"orbit_refresh", cfg.OrbitRefresh.String(),
		"max_selection", cfg.MaxSelection,
		"gravity", cfg.Propagation.Gravity.String(),
	)

	return cfg, nil
}

// SimConfig is the initial state of the simulation.
type SimConfig struct {
	Selection   []tle.CatalogNumber
	TimeScale   float64
	StationMode groundstation.Mode
}

func loadSimConfig(logger *slog.Logger) (SimConfig, error) {
	cfg := SimConfig{TimeScale: 1}

	list := os.Getenv("SATVIZ_SELECTION")
	if list == "" {
		list = defaultSelection
	}
	ids, err := tle.ParseCatalogNumbers(list)
	if err != nil {
		return cfg, fmt.Errorf("SATVIZ_SELECTION: %w", err)
	}
	cfg.Selection = ids

	if v := os.Getenv("SATVIZ_TIME_SCALE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 1 {
			logger.Warn("invalid SATVIZ_TIME_SCALE value, using default", "value", v, "default", 1)
		} else {
			cfg.TimeScale = f
		}
	}

	mode, err := groundstation.ParseMode(os.Getenv("SATVIZ_GROUND_STATION_MODE"))
	if err != nil {
		return cfg, fmt.Errorf("SATVIZ_GROUND_STATION_MODE: %w", err)
	}
	cfg.StationMode = mode

	logger.Info("simulation config",
		"selection", list,
		"time_scale", cfg.TimeScale,
		"ground_station_mode", cfg.StationMode.String(),
	)

	return cfg, nil
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.DefaultConfig()

	cfg.MaxConcurrentPerIP = envPositiveInt(logger, "SATVIZ_STREAM_MAX_PER_IP", cfg.MaxConcurrentPerIP)
	cfg.Interval = envMillis(logger, "SATVIZ_STREAM_INTERVAL_MS", cfg.Interval)

	if v := os.Getenv("SATVIZ_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATVIZ_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	if v := os.Getenv("SATVIZ_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"interval_ms", cfg.Interval.Milliseconds(),
		"trust_proxy", cfg.TrustProxy,
		"allowed_origins", cfg.AllowedOrigins,
	)

	return cfg
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()

	if v := os.Getenv("SATVIZ_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SATVIZ_TRACING_ENABLED value, defaulting to false", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("SATVIZ_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = v
	}
	if v := os.Getenv("SATVIZ_TRACING_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("SATVIZ_TRACING_SAMPLE_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			logger.Warn("invalid SATVIZ_TRACING_SAMPLE_RATIO value, using default", "value", v, "default", cfg.SampleRatio)
		} else {
			cfg.SampleRatio = f
		}
	}
	return cfg
}

func envPositiveInt(logger *slog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def)
		return def
	}
	return n
}

func envMillis(logger *slog.Logger, key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+key+" value, using default", "value", v, "default", def.Milliseconds())
		return def
	}
	return time.Duration(n) * time.Millisecond
}
