package cfg

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSettings reads the optional settings file. An empty path yields zero Settings, which the
// consumers fill with their defaults.
func LoadSettings(path string) (Settings, error) {
	var settings Settings
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	if err := validateSettings(settings); err != nil {
		return settings, fmt.Errorf("invalid settings file %s: %w", path, err)
	}

	return settings, nil
}

func validateSettings(s Settings) error {
	for name, path := range map[string]string{
		"ingest":     s.Endpoints.Ingest,
		"hydrate":    s.Endpoints.Hydrate,
		"incomplete": s.Endpoints.Incomplete,
	} {
		if path != "" && !strings.HasPrefix(path, "/") {
			return fmt.Errorf("endpoint %s must start with '/': %q", name, path)
		}
	}

	if s.Endpoints.Hydrate != "" && !strings.Contains(s.Endpoints.Hydrate, "{id}") {
		return fmt.Errorf("endpoint hydrate must contain {id}: %q", s.Endpoints.Hydrate)
	}

	return nil
}
