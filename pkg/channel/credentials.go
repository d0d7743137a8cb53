package channel

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Credentials is the credential mapping of one channel.
type Credentials map[string]any

// String returns the trimmed string value of key, or "" when absent or not scalar.
func (c Credentials) String(key string) string {
	switch value := c[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case int, int64, float64, bool:
		return fmt.Sprint(value)
	default:
		return ""
	}
}

// CredentialsFile maps channel names to their credentials.
type CredentialsFile map[string]Credentials

// LoadCredentials reads a YAML credentials file. An empty path yields no credentials.
func LoadCredentials(path string) (CredentialsFile, error) {
	if strings.TrimSpace(path) == "" {
		return CredentialsFile{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	creds, err := ParseCredentials(data)
	if err != nil {
		return nil, fmt.Errorf("credentials file %s: %w", path, err)
	}

	return creds, nil
}

// ParseCredentials decodes YAML credentials, expanding ${VAR} references in string values.
// A reference to an unset variable is an error naming every missing variable.
func ParseCredentials(data []byte) (CredentialsFile, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	var missing []string
	creds := make(CredentialsFile, len(raw))
	for name, values := range raw {
		entry := make(Credentials, len(values))
		for key, value := range values {
			if s, ok := value.(string); ok {
				value = expandEnv(s, &missing)
			}
			entry[key] = value
		}
		creds[name] = entry
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		missing = slices.Compact(missing)
		return nil, errors.New("environment variables not set: " + strings.Join(missing, ", "))
	}

	return creds, nil
}

func expandEnv(value string, missing *[]string) string {
	return os.Expand(value, func(name string) string {
		resolved, ok := os.LookupEnv(name)
		if !ok {
			*missing = append(*missing, name)
		}
		return resolved
	})
}
