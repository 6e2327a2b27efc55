package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	keyMaxAttempts = 20
	maxKeyNameLen  = 200
)

// GenerateStorageKey returns "{scopeID}/{token}-{name}", or "{token}-{name}"
// when scopeID is empty. It retries on collisions using the exists function.
func GenerateStorageKey(scopeID, name string, exists func(string) (bool, error)) (string, error) {
	name = sanitizeKeyName(name)
	if name == "" {
		return "", fmt.Errorf("file name is required")
	}
	scopeID = strings.Trim(strings.TrimSpace(scopeID), "/")

	for i := 0; i < keyMaxAttempts; i++ {
		key := newKeyToken() + "-" + name
		if scopeID != "" {
			key = scopeID + "/" + key
		}
		if exists == nil {
			return key, nil
		}
		ok, err := exists(key)
		if err != nil {
			return "", err
		}
		if !ok {
			return key, nil
		}
	}

	return "", fmt.Errorf("unable to generate unique storage key")
}

func newKeyToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sanitizeKeyName keeps the declared name readable while preventing it from
// adding path segments to the key.
func sanitizeKeyName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > maxKeyNameLen {
		name = string(runes[len(runes)-maxKeyNameLen:])
	}
	return name
}
