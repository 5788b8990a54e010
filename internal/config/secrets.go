package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ParseEnvFile reads KEY=VALUE lines from a dotenv-style file. Blank lines,
// comments and lines without '=' are skipped; an "export " prefix and
// matching surrounding quotes are stripped.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	vars := map[string]string{}
	for _, line := range bytes.Split(data, []byte("\n")) {
		s := strings.TrimSpace(string(line))
		if s == "" || s[0] == '#' {
			continue
		}
		s = strings.TrimPrefix(s, "export ")
		eqIdx := strings.IndexByte(s, '=')
		if eqIdx < 0 {
			continue
		}
		key := strings.TrimSpace(s[:eqIdx])
		if key == "" {
			continue
		}
		vars[key] = stripQuotes(strings.TrimSpace(s[eqIdx+1:]))
	}
	return vars, nil
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// SecretSource resolves credentials from the env file first, then the process
// environment.
type SecretSource struct {
	vars map[string]string
}

// LoadSecrets reads the configured env file. A missing path yields a source
// backed by the process environment only.
func LoadSecrets(s Secrets) (*SecretSource, error) {
	src := &SecretSource{vars: map[string]string{}}
	if s.EnvFile == "" {
		return src, nil
	}
	vars, err := ParseEnvFile(s.EnvFile)
	if err != nil {
		return nil, err
	}
	src.vars = vars
	return src, nil
}

// Getenv looks key up in the env file, then in the environment.
func (s *SecretSource) Getenv(key string) string {
	if s != nil {
		if v, ok := s.vars[key]; ok {
			return v
		}
	}
	return os.Getenv(key)
}
