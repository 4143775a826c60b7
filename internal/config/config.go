package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the latency study call service.
type Config struct {
	BindAddr                 string
	LogLevel                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	ACSConnectionString string
	ACSPublicBase       string
	ACSPhoneNumber      string
	MediaTransportURL   string
	RingDelay           time.Duration
	AnswerTimeout       time.Duration

	AudioInSampleRate  int
	AudioOutSampleRate int
	AutoStopAudio      bool

	LatencyStrategy string
	LatencyChoices  []time.Duration

	CallNumberBackend    string
	CallNumberPoolFile   string
	CallNumberBadgerDir  string
	CallNumberRangeStart int
	CallNumberRangeEnd   int

	DatabaseURL string

	SystemPromptName string
	SlotsWeeksAhead  int
	SlotsWithinDays  int
	SlotsMaxOffered  int

	VoiceProvider string
	STTLanguage   string

	RecordingDir string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8765"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicelat"),
		AllowAnyOrigin:   false,

		ACSConnectionString: envTrimmed("ACS_CONNECTION_STRING"),
		ACSPublicBase:       envTrimmed("ACS_PUBLIC_BASE"),
		ACSPhoneNumber:      envTrimmed("ACS_PHONE_NUMBER"),
		MediaTransportURL:   envTrimmed("MEDIA_TRANSPORT_URL"),

		AudioInSampleRate:  16000,
		AudioOutSampleRate: 16000,
		AutoStopAudio:      true,

		LatencyStrategy: envOrDefault("LATENCY_STRATEGY", "round_robin"),
		LatencyChoices:  []time.Duration{3 * time.Second, 7 * time.Second, 100 * time.Millisecond},

		CallNumberBackend:    envOrDefault("CALL_NUMBER_BACKEND", "file"),
		CallNumberPoolFile:   envOrDefault("CALL_NUMBER_POOL_FILE", "assets/call_numbers.json"),
		CallNumberBadgerDir:  envOrDefault("CALL_NUMBER_BADGER_DIR", ""),
		CallNumberRangeStart: 501,
		CallNumberRangeEnd:   800,

		DatabaseURL: envTrimmed("DATABASE_URL"),

		SystemPromptName: envOrDefault("SYSTEM_PROMPT_NAME", "german_voice_agent_appointment"),
		SlotsWeeksAhead:  4,
		SlotsWithinDays:  7,
		SlotsMaxOffered:  2,

		VoiceProvider: envOrDefault("VOICE_PROVIDER", "mock"),
		STTLanguage:   envOrDefault("STT_LANGUAGE", "de"),

		RecordingDir: envOrDefault("RECORDING_DIR", ""),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 5 * time.Minute,
		RingDelay:                2 * time.Second,
		AnswerTimeout:            10 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RingDelay, err = durationFromEnv("RING_DELAY", cfg.RingDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AnswerTimeout, err = durationFromEnv("ANSWER_TIMEOUT", cfg.AnswerTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoStopAudio, err = boolFromEnv("AUTO_STOP_AUDIO", cfg.AutoStopAudio)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioInSampleRate, err = intFromEnv("AUDIO_IN_SAMPLE_RATE", cfg.AudioInSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioOutSampleRate, err = intFromEnv("AUDIO_OUT_SAMPLE_RATE", cfg.AudioOutSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.LatencyChoices, err = durationListFromEnv("LATENCY_CHOICES_S", cfg.LatencyChoices)
	if err != nil {
		return Config{}, err
	}
	cfg.CallNumberRangeStart, err = intFromEnv("CALL_NUMBER_RANGE_START", cfg.CallNumberRangeStart)
	if err != nil {
		return Config{}, err
	}
	cfg.CallNumberRangeEnd, err = intFromEnv("CALL_NUMBER_RANGE_END", cfg.CallNumberRangeEnd)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotsWeeksAhead, err = intFromEnv("SLOTS_WEEKS_AHEAD", cfg.SlotsWeeksAhead)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotsWithinDays, err = intFromEnv("SLOTS_WITHIN_DAYS", cfg.SlotsWithinDays)
	if err != nil {
		return Config{}, err
	}
	cfg.SlotsMaxOffered, err = intFromEnv("SLOTS_MAX_OFFERED", cfg.SlotsMaxOffered)
	if err != nil {
		return Config{}, err
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("APP_LOG_LEVEL must be debug, info, warn or error")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.RingDelay < 0 {
		return Config{}, fmt.Errorf("RING_DELAY must not be negative")
	}
	if cfg.AudioInSampleRate <= 0 || cfg.AudioOutSampleRate <= 0 {
		return Config{}, fmt.Errorf("audio sample rates must be positive")
	}
	switch cfg.LatencyStrategy {
	case "random", "round_robin":
	default:
		return Config{}, fmt.Errorf("LATENCY_STRATEGY must be random or round_robin")
	}
	for _, c := range cfg.LatencyChoices {
		if c < 0 {
			return Config{}, fmt.Errorf("LATENCY_CHOICES_S must not contain negative values")
		}
	}
	if cfg.CallNumberRangeStart < 0 {
		return Config{}, fmt.Errorf("CALL_NUMBER_RANGE_START must not be negative")
	}
	if cfg.CallNumberRangeEnd < cfg.CallNumberRangeStart {
		return Config{}, fmt.Errorf("CALL_NUMBER_RANGE_END must be at least CALL_NUMBER_RANGE_START")
	}
	switch cfg.CallNumberBackend {
	case "file":
		if cfg.CallNumberPoolFile == "" {
			return Config{}, fmt.Errorf("CALL_NUMBER_POOL_FILE must not be empty")
		}
	case "badger":
		if cfg.CallNumberBadgerDir == "" {
			return Config{}, fmt.Errorf("CALL_NUMBER_BADGER_DIR is required for the badger backend")
		}
	default:
		return Config{}, fmt.Errorf("CALL_NUMBER_BACKEND must be file or badger")
	}
	if cfg.SlotsWeeksAhead <= 0 {
		return Config{}, fmt.Errorf("SLOTS_WEEKS_AHEAD must be positive")
	}
	if cfg.SlotsWithinDays <= 0 {
		return Config{}, fmt.Errorf("SLOTS_WITHIN_DAYS must be positive")
	}
	if cfg.SlotsMaxOffered <= 0 {
		return Config{}, fmt.Errorf("SLOTS_MAX_OFFERED must be positive")
	}
	if cfg.ACSConnectionString != "" {
		if cfg.ACSPublicBase == "" {
			return Config{}, fmt.Errorf("ACS_PUBLIC_BASE is required when ACS_CONNECTION_STRING is set")
		}
		if cfg.ACSPhoneNumber == "" {
			return Config{}, fmt.Errorf("ACS_PHONE_NUMBER is required when ACS_CONNECTION_STRING is set")
		}
		if cfg.MediaTransportURL == "" {
			return Config{}, fmt.Errorf("MEDIA_TRANSPORT_URL is required when ACS_CONNECTION_STRING is set")
		}
	}

	return cfg, nil
}

// CallbackURL returns the call-events URL the telephony service reports to
// for the given caller.
func (c Config) CallbackURL(callerID string) string {
	return fmt.Sprintf("%s/acs-events/?call_id=%s",
		strings.TrimRight(c.ACSPublicBase, "/"), url.QueryEscape(callerID))
}

// SlogLevel maps the configured level onto slog's scale.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

// durationListFromEnv parses a comma separated list of seconds, accepting
// fractional values like "3.0,7.0,0.1".
func durationListFromEnv(key string, fallback []time.Duration) ([]time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	parts := strings.Split(v, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		secs, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		out = append(out, time.Duration(secs*float64(time.Second)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s parse error: empty list", key)
	}
	return out, nil
}
