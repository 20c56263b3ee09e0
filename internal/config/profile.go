package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Profile is the portal account used by scrape jobs.
type Profile struct {
	Username    string `json:"username"`
	PasswordSet bool   `json:"password_set"`
}

// ProfileStore reads and rewrites the portal account. Username lives in the
// config file, password in the secrets file. Jobs started after an update
// pick up the new values when they load their config snapshot.
type ProfileStore struct {
	mu      sync.Mutex
	backend ConfigBackend
	kc      keychain
	setPass func(service, account, value string) error
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		backend: newPlatformBackend(),
		kc:      secretReader{},
		setPass: secretSet,
	}
}

func (p *ProfileStore) Get() (Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := loadWith(p.backend, p.kc)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Username:    cfg.Portal.Username,
		PasswordSet: cfg.Portal.Password != "",
	}, nil
}

// Update stores the username and, when non-empty, the password. An empty
// password keeps the stored one.
func (p *ProfileStore) Update(username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.New("username is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.backend.SetString("portal.username", username); err != nil {
		return fmt.Errorf("saving username: %w", err)
	}
	if password != "" {
		if err := p.setPass(secretService, passwordAccount, password); err != nil {
			return fmt.Errorf("saving password: %w", err)
		}
	}
	return nil
}
