// Package secrets keeps ATS API tokens in the OS keychain.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// "Service" groups the crawler's secrets in the OS keychain.
	KeyringService = "jobvyne-crawler"
)

var ErrTokenNotFound = errors.New("api token not found (set it in keychain or via env)")

// EnvName is the environment override for a token key:
// "smartrecruiters:acme" -> JOBVYNE_TOKEN_SMARTRECRUITERS_ACME.
func EnvName(key string) string {
	var b strings.Builder
	b.WriteString("JOBVYNE_TOKEN_")
	for _, r := range strings.ToUpper(strings.TrimSpace(key)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func account(key string) string {
	return fmt.Sprintf("%s:token:%s", KeyringService, strings.TrimSpace(key))
}

// APIToken returns the token stored under key. The environment wins over the
// keychain so headless hosts can run without a keyring daemon.
func APIToken(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("token key is empty")
	}
	if v := strings.TrimSpace(os.Getenv(EnvName(key))); v != "" {
		return v, nil
	}
	tok, err := keyring.Get(KeyringService, account(key))
	if err == nil && strings.TrimSpace(tok) != "" {
		return tok, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: %w", ErrTokenNotFound, err)
	}
	return "", fmt.Errorf("%w: %s", ErrTokenNotFound, key)
}

func SetAPIToken(key, token string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("token key is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, account(key), token)
}

func DeleteAPIToken(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("token key is empty")
	}
	return keyring.Delete(KeyringService, account(key))
}
