package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret returns the first non-empty secret among names. For each
// name, the file named by NAME_FILE wins over the NAME variable itself.
// File contents are trimmed. An unreadable NAME_FILE is an error.
func ResolveSecret(names ...string) (string, error) {
	for _, name := range names {
		v, err := resolveOne(name)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

func resolveOne(name string) (string, error) {
	fileEnv := name + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read secret %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(name), nil
}
