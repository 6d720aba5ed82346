// Package config loads and validates server configuration the way the
// teacher does — viper for defaults and environment binding — extended
// with a small key-colon-value file parser for the custom file grammar
// spec'd in §6.1, which no library in the retrieval pack (or viper
// itself) speaks directly. See DESIGN.md for why that one parser stays
// stdlib.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// JoinMode selects late-joiner playback-position semantics.
type JoinMode string

const (
	JoinModeSync  JoinMode = "sync"
	JoinModeReset JoinMode = "reset"
)

// Config is the immutable, validated configuration record for the
// process lifetime (spec §4.1).
type Config struct {
	Mode string // "debug" or "release", gin's logging mode

	Port int

	VolumeStep               int
	SkipSeconds              int
	JoinMode                 JoinMode
	UseHTTPS                 bool
	BSLS2Mode                string
	BSLAdvancedMatch         bool
	BSLAdvancedMatchThreshold int
	VideoAutoplay            bool
	AdminFingerprintLock     bool
	ServerMode               bool
	ClientControlsDisabled   bool
	ClientSyncDisabled       bool
	ChatEnabled              bool
	MaxVolume                int
	SkipIntroSeconds         int
	DataHydration            bool

	StaticPath string
	MediaPath  string
	DataDir    string
	Secret     string
	TLSCert    string
	TLSKey     string
}

const envPrefix = "SYNC"

// Load reads defaults, then the key-colon-value file at filePath (if it
// exists), then environment variables prefixed SYNC_, validating and
// clamping every recognized option. Invalid values warn and revert to
// default rather than failing the process.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	setDefaults(v)

	if fileValues, err := parseKeyColonFile(filePath); err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("module", "config").Str("path", filePath).Msg("failed to read config file, using defaults/env only")
		}
	} else {
		for k, val := range fileValues {
			// v.Set outranks viper's env binding, so skip keys the
			// environment already provides to keep env values on top.
			if _, set := os.LookupEnv(envPrefix + "_" + strings.ToUpper(k)); set {
				continue
			}
			v.Set(k, val)
		}
	}

	cfg := &Config{
		Mode:       v.GetString("mode"),
		Port:       clampInt(v, "port", 3000, 1024, 49151),
		StaticPath: v.GetString("static_path"),
		MediaPath:  v.GetString("media_path"),
		DataDir:    v.GetString("data_dir"),
		Secret:     v.GetString("secret"),
		TLSCert:    v.GetString("tls_cert"),
		TLSKey:     v.GetString("tls_key"),

		VolumeStep:                clampInt(v, "volume_step", 5, 1, 20),
		SkipSeconds:               clampInt(v, "skip_seconds", 5, 5, 60),
		JoinMode:                  clampJoinMode(v.GetString("join_mode")),
		UseHTTPS:                  v.GetBool("use_https"),
		BSLS2Mode:                 clampEnum(v.GetString("bsl_s2_mode"), "any", "any", "all"),
		BSLAdvancedMatch:          v.GetBool("bsl_advanced_match"),
		BSLAdvancedMatchThreshold: clampInt(v, "bsl_advanced_match_threshold", 1, 1, 4),
		VideoAutoplay:             v.GetBool("video_autoplay"),
		AdminFingerprintLock:      v.GetBool("admin_fingerprint_lock"),
		ServerMode:                v.GetBool("server_mode"),
		ClientControlsDisabled:    v.GetBool("client_controls_disabled"),
		ClientSyncDisabled:        v.GetBool("client_sync_disabled"),
		ChatEnabled:               v.GetBool("chat_enabled"),
		MaxVolume:                 clampInt(v, "max_volume", 100, 100, 1000),
		SkipIntroSeconds:          clampPositive(v, "skip_intro_seconds", 87),
		DataHydration:             v.GetBool("data_hydration"),
	}

	log.Info().
		Str("module", "config").
		Int("port", cfg.Port).
		Bool("server_mode", cfg.ServerMode).
		Str("join_mode", string(cfg.JoinMode)).
		Msg("configuration loaded")

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("media_path", "./media")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("secret", "")
	v.SetDefault("tls_cert", "")
	v.SetDefault("tls_key", "")

	v.SetDefault("volume_step", 5)
	v.SetDefault("skip_seconds", 5)
	v.SetDefault("join_mode", "sync")
	v.SetDefault("use_https", false)
	v.SetDefault("bsl_s2_mode", "any")
	v.SetDefault("bsl_advanced_match", true)
	v.SetDefault("bsl_advanced_match_threshold", 1)
	v.SetDefault("video_autoplay", false)
	v.SetDefault("admin_fingerprint_lock", false)
	v.SetDefault("server_mode", false)
	v.SetDefault("client_controls_disabled", false)
	v.SetDefault("client_sync_disabled", false)
	v.SetDefault("chat_enabled", true)
	v.SetDefault("max_volume", 100)
	v.SetDefault("skip_intro_seconds", 87)
	v.SetDefault("data_hydration", true)
}

func clampInt(v *viper.Viper, key string, def, min, max int) int {
	n := v.GetInt(key)
	if n < min || n > max {
		log.Warn().Str("module", "config").Str("key", key).Int("value", n).Int("default", def).Msg("value out of range, reverting to default")
		return def
	}
	return n
}

func clampPositive(v *viper.Viper, key string, def int) int {
	n := v.GetInt(key)
	if n <= 0 {
		log.Warn().Str("module", "config").Str("key", key).Int("value", n).Int("default", def).Msg("value must be positive, reverting to default")
		return def
	}
	return n
}

func clampEnum(val, def string, allowed ...string) string {
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	log.Warn().Str("module", "config").Str("value", val).Str("default", def).Msg("value not in allowed set, reverting to default")
	return def
}

func clampJoinMode(val string) JoinMode {
	switch JoinMode(val) {
	case JoinModeSync, JoinModeReset:
		return JoinMode(val)
	default:
		log.Warn().Str("module", "config").Str("value", val).Msg("invalid join_mode, reverting to sync")
		return JoinModeSync
	}
}

// parseKeyColonFile parses lines of the form "key: value", skipping blank
// lines and lines starting with "#", and ignoring any line with no colon.
func parseKeyColonFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		out[key] = val
	}
	return out, scanner.Err()
}

// ParseBool is exported for callers that read boolean-shaped strings out
// of band (e.g. query parameters mirroring a config key).
func ParseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
