// Package config loads the connection-config JSON files named in spec §6
// (--raw, --cros, --intermediate) and the --state processor-state file, and
// performs env[NAME] substitution inside their string fields.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"
)

// envRef matches the bespoke env[NAME] substitution syntax from spec §6.
// This is not the ${NAME} syntax any config library in the example pack
// understands (koanf's env provider included), so it is hand-rolled here.
var envRef = regexp.MustCompile(`env\[([^\]]*)\]`)

// ConnectionConfig is the connection config JSON schema from spec §6:
// database, host, user, password, port. All fields are carried as strings so
// that env[NAME] substitution (which only ever operates on string values)
// applies uniformly, regardless of which fields a given backing store
// actually consumes.
type ConnectionConfig struct {
	Database string `json:"database"`
	Host     string `json:"host"`
	User     string `json:"user"`
	Password string `json:"password"`
	Port     string `json:"port"`
}

// LoadConnectionConfig reads and parses the JSON file at path, substituting
// any env[NAME] references in its string fields.
func LoadConnectionConfig(path string, logger zerolog.Logger) (*ConnectionConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection config %s: %w", path, err)
	}
	var cfg ConnectionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing connection config %s: %w", path, err)
	}

	cfg.Database = substitute("database", cfg.Database, logger)
	cfg.Host = substitute("host", cfg.Host, logger)
	cfg.User = substitute("user", cfg.User, logger)
	cfg.Password = substitute("password", cfg.Password, logger)
	cfg.Port = substitute("port", cfg.Port, logger)

	return &cfg, nil
}

// substitute replaces every env[NAME] reference in value with the current
// process environment's value for NAME (empty string if unset), logging
// which field substituted and from where. password/user are treated as
// sensitive: the resolved value itself is never logged, mirroring the
// teacher's config.ParseString sensitive-key heuristic.
func substitute(field, value string, logger zerolog.Logger) string {
	if !envRef.MatchString(value) {
		return value
	}
	sensitive := field == "password" || field == "user"
	resolved := envRef.ReplaceAllStringFunc(value, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		return os.Getenv(name)
	})

	ev := logger.Debug().Str("field", field).Bool("sensitive", sensitive)
	if sensitive {
		ev.Msg("substituted env[NAME] reference")
	} else {
		ev.Str("value", resolved).Msg("substituted env[NAME] reference")
	}
	return resolved
}
