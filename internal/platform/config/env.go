package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// env resolves keys with the precedence explicit map > process environment > .env file.
type env struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func newEnv(o loaderOptions) (env, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return env{}, err
	}
	return env{explicit: o.envMap, system: o.useSystemEnv, dotenv: dotenv}, nil
}

func (e env) lookup(key string) (string, bool) {
	if v, ok := e.explicit[key]; ok {
		return v, true
	}
	if e.system {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
	}
	v, ok := e.dotenv[key]
	return v, ok
}

func (e env) value(key string) string {
	v, _ := e.lookup(key)
	return strings.TrimSpace(v)
}

func (e env) str(key, fallback string) string {
	if v := e.value(key); v != "" {
		return v
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(e.value(key)); err == nil {
		return d
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if n, err := strconv.Atoi(e.value(key)); err == nil {
		return n
	}
	return fallback
}

// list splits a comma-separated value, dropping blanks.
func (e env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.value(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// merged flattens all sources into one map with the same precedence as lookup.
func (e env) merged() map[string]string {
	out := make(map[string]string, len(e.dotenv)+len(e.explicit))
	for k, v := range e.dotenv {
		out[k] = v
	}
	if e.system {
		for _, entry := range os.Environ() {
			if k, v, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(k) != "" {
				out[k] = v
			}
		}
	}
	for k, v := range e.explicit {
		out[k] = v
	}
	return out
}

// readDotEnv returns nil when path is empty or the file does not exist.
func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}
