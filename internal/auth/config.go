package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultKeysFile = "concord.keys.yaml"

type keysFile struct {
	DefaultPolicy struct {
		AllowLocalhostWithoutAuth *bool `yaml:"allow_localhost_without_auth"`
	} `yaml:"default_policy"`
	Organizations map[string]orgKeys `yaml:"organizations"`
}

type orgKeys struct {
	Keys []keyEntry `yaml:"keys"`
}

type keyEntry struct {
	Key   string `yaml:"key"`
	Actor string `yaml:"actor"`
	Email string `yaml:"email"`
}

// Keyring resolves static API keys to identities.
type Keyring struct {
	AllowLocalhostWithoutAuth bool
	keyToIdentity             map[string]Identity
}

func ResolveKeysPath() string {
	if v := strings.TrimSpace(os.Getenv("CONCORD_KEYS_FILE")); v != "" {
		return v
	}
	return filepath.Join(".", defaultKeysFile)
}

func LoadKeyringFromEnv() (*Keyring, error) {
	return LoadKeyring(ResolveKeysPath())
}

func LoadKeyring(path string) (*Keyring, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultKeyring(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if _, err := BootstrapDevKey(path, "dev"); err != nil {
				return nil, fmt.Errorf("bootstrap dev key: %w", err)
			}
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read keys file: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read keys file: %w", err)
		}
	}
	var cfg keysFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse keys file: %w", err)
	}
	ring := &Keyring{
		AllowLocalhostWithoutAuth: true,
		keyToIdentity:             make(map[string]Identity),
	}
	if cfg.DefaultPolicy.AllowLocalhostWithoutAuth != nil {
		ring.AllowLocalhostWithoutAuth = *cfg.DefaultPolicy.AllowLocalhostWithoutAuth
	}
	for org, keys := range cfg.Organizations {
		for _, entry := range keys.Keys {
			key := strings.TrimSpace(entry.Key)
			if key == "" {
				continue
			}
			if existing, ok := ring.keyToIdentity[key]; ok && existing.OrgID != org {
				return nil, fmt.Errorf("key reused across organizations: %q", key)
			}
			ring.keyToIdentity[key] = Identity{
				ActorID: strings.TrimSpace(entry.Actor),
				OrgID:   org,
				Email:   strings.TrimSpace(entry.Email),
				Mode:    ModeAPIKey,
			}
		}
	}
	return ring, nil
}

func defaultKeyring() *Keyring {
	return &Keyring{AllowLocalhostWithoutAuth: true, keyToIdentity: make(map[string]Identity)}
}

func NewKeyring(allowLocalhost bool, keyToIdentity map[string]Identity) *Keyring {
	clone := make(map[string]Identity, len(keyToIdentity))
	for k, v := range keyToIdentity {
		v.Mode = ModeAPIKey
		clone[k] = v
	}
	return &Keyring{AllowLocalhostWithoutAuth: allowLocalhost, keyToIdentity: clone}
}

func (k *Keyring) IdentityForKey(key string) (Identity, bool) {
	if k == nil {
		return Identity{}, false
	}
	id, ok := k.keyToIdentity[key]
	return id, ok
}
