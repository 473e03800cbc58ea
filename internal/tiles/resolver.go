package tiles

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath holds the connection aliases consulted when no
// resolver is injected.
const DefaultConfigPath = "/etc/mb-util.conf"

// Resolver expands a descriptor alias into full connection parameters.
type Resolver func(alias string) (string, error)

// FileResolver resolves aliases from a config file with one
// "alias: parameters" mapping per line.
func FileResolver(path string) Resolver {
	return func(alias string) (string, error) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read config %s: %w", path, err)
		}
		aliases := map[string]string{}
		if err := yaml.Unmarshal(raw, &aliases); err != nil {
			return "", fmt.Errorf("parse config %s: %w", path, err)
		}
		params, ok := aliases[alias]
		if !ok {
			return "", fmt.Errorf("alias %q not found in %s", alias, path)
		}
		return params, nil
	}
}
