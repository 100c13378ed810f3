package config

import (
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SDRWAVE_"

// ApplyEnv overrides values from SDRWAVE_* variables found through lookup,
// typically os.LookupEnv. Unparsable values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	c.Radio.Backend = envString(lookup, "BACKEND", c.Radio.Backend)
	c.Radio.Address = envString(lookup, "ADDRESS", c.Radio.Address)
	c.Radio.Discover = envBool(lookup, "DISCOVER", c.Radio.Discover)
	c.Radio.SampleRate = envFloat(lookup, "SAMPLE_RATE", c.Radio.SampleRate)
	c.Radio.CenterHz = envFloat(lookup, "CENTER_HZ", c.Radio.CenterHz)
	c.Radio.Bandwidth = envFloat(lookup, "BANDWIDTH", c.Radio.Bandwidth)
	c.Radio.Amplifier = envBool(lookup, "AMPLIFIER", c.Radio.Amplifier)
	c.Radio.SSH.Host = envString(lookup, "SSH_HOST", c.Radio.SSH.Host)
	c.Radio.SSH.User = envString(lookup, "SSH_USER", c.Radio.SSH.User)
	c.Radio.SSH.Password = envString(lookup, "SSH_PASSWORD", c.Radio.SSH.Password)
	c.Radio.SSH.KeyPath = envString(lookup, "SSH_KEY", c.Radio.SSH.KeyPath)

	c.Transmit.Waveform = envString(lookup, "WAVEFORM", c.Transmit.Waveform)
	c.Transmit.Duration = envDuration(lookup, "DURATION", c.Transmit.Duration)
	c.Transmit.ChunkSize = envInt(lookup, "CHUNK_SIZE", c.Transmit.ChunkSize)
	c.Transmit.Seed = int64(envInt(lookup, "SEED", int(c.Transmit.Seed)))
	c.Transmit.Backoff.Policy = envString(lookup, "BACKOFF", c.Transmit.Backoff.Policy)

	if v, ok := lookup(EnvPrefix + "SWEEP_FREQUENCIES"); ok {
		if freqs, ok := parseFloatList(v); ok {
			c.Sweep.Frequencies = freqs
		}
	}
	c.Sweep.Dwell = envDuration(lookup, "SWEEP_DWELL", c.Sweep.Dwell)
	c.Sweep.Total = envDuration(lookup, "SWEEP_TOTAL", c.Sweep.Total)

	c.Scan.FFTSize = envInt(lookup, "FFT_SIZE", c.Scan.FFTSize)
	c.Scan.Average = envInt(lookup, "AVERAGE", c.Scan.Average)

	c.Log.Level = envString(lookup, "LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString(lookup, "LOG_FORMAT", c.Log.Format)
	c.Telemetry.Addr = envString(lookup, "WEB_ADDR", c.Telemetry.Addr)
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(EnvPrefix + key); ok {
		return val
	}
	return def
}

// parseFloatList parses a comma separated list such as "2.452e9,2.462e9".
func parseFloatList(s string) ([]float64, bool) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, len(out) > 0
}
