// Package credentials stores provider API keys in the OS keyring.
package credentials

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "finroute"

// KeyType names a stored secret.
type KeyType string

const (
	KeyAnthropic KeyType = "anthropic_api_key"
	KeyOpenAI    KeyType = "openai_api_key"
	KeyGoogle    KeyType = "google_api_key"
	KeyDeepSeek  KeyType = "deepseek_api_key"
)

// AllKeys lists every provider key finroute knows about.
var AllKeys = []KeyType{KeyAnthropic, KeyOpenAI, KeyGoogle, KeyDeepSeek}

// KeyForProvider maps a provider name to its keyring entry.
func KeyForProvider(provider string) (KeyType, bool) {
	switch provider {
	case "anthropic":
		return KeyAnthropic, true
	case "openai":
		return KeyOpenAI, true
	case "google":
		return KeyGoogle, true
	case "deepseek":
		return KeyDeepSeek, true
	default:
		return "", false
	}
}

func Set(key KeyType, value string) error {
	return keyring.Set(serviceName, string(key), value)
}

func Get(key KeyType) (string, error) {
	return keyring.Get(serviceName, string(key))
}

func Delete(key KeyType) error {
	return keyring.Delete(serviceName, string(key))
}

// GetOrEnv returns envValue when set, otherwise the keyring entry. A missing
// or unreachable keyring yields "".
func GetOrEnv(key KeyType, envValue string) string {
	if envValue != "" {
		return envValue
	}
	val, err := Get(key)
	if err != nil {
		return ""
	}
	return val
}

// ListConfigured reports which provider keys are present in the keyring.
func ListConfigured() map[KeyType]bool {
	result := make(map[KeyType]bool, len(AllKeys))
	for _, k := range AllKeys {
		_, err := Get(k)
		result[k] = err == nil
	}
	return result
}

// ClearAll removes every stored provider key. Keys that were never stored
// are not an error.
func ClearAll() error {
	var lastErr error
	for _, k := range AllKeys {
		if err := Delete(k); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			lastErr = fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return lastErr
}
