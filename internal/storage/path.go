package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const objectScheme = "s3://"

// ParseObjectURI splits "s3://some/key.gguf" into its key. ok is false for
// anything that is not an object URI, such as a local filesystem path.
func ParseObjectURI(raw string) (key string, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(strings.ToLower(raw), objectScheme) {
		return "", false, nil
	}
	key, err = CleanKey(raw[len(objectScheme):])
	if err != nil {
		return "", true, err
	}
	return key, true, nil
}

func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return cleaned, nil
}

// CachePath maps an object key to a file under cacheDir.
func CachePath(cacheDir, key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cacheDir) == "" {
		return "", fmt.Errorf("cache dir is required")
	}
	return filepath.Join(cacheDir, filepath.FromSlash(cleaned)), nil
}
