package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// env returns the parsed value of k, or d when k is unset, empty or does
// not parse.
func env[T any](k string, d T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	out, err := parse(v)
	if err != nil {
		return d
	}
	return out
}

func envStr(k, d string) string {
	return env(k, d, func(s string) (string, error) { return s, nil })
}

func envInt(k string, d int) int { return env(k, d, strconv.Atoi) }

func envDur(k string, d time.Duration) time.Duration { return env(k, d, time.ParseDuration) }

func envBool(k string, d bool) bool { return env(k, d, parseSwitch) }

// parseSwitch accepts strconv.ParseBool spellings plus yes/no and on/off.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
