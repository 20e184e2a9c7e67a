package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/tatianab/photo-game/internal/llm"
)

// KeyringService is the service name API keys are stored under.
const KeyringService = "photo-game"

func keyringUser(p llm.Provider) string {
	if p == "" {
		p = llm.ProviderGemini
	}
	return string(p) + "/apikey"
}

// LookupKey reads the API key for p from the OS keyring.
func LookupKey(p llm.Provider) (string, error) {
	key, err := keyring.Get(KeyringService, keyringUser(p))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// StoreKey saves the API key for p in the OS keyring.
func StoreKey(p llm.Provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}
	return keyring.Set(KeyringService, keyringUser(p), key)
}

// DeleteKey removes the stored key for p. A missing key is not an error.
func DeleteKey(p llm.Provider) error {
	err := keyring.Delete(KeyringService, keyringUser(p))
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}
