package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ninechan-dev/ninechan/shared/domain"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
	"github.com/ninechan-dev/ninechan/shared/logger"
)

// Accounts verifies credentials of registered users.
type Accounts interface {
	Verify(ctx context.Context, username, password string) (avatarURL string, err error)
}

// Presence is told when a client's identity changes. Replace reports
// whether the client currently has a live socket.
type Presence interface {
	Replace(id domain.Identity) bool
}

type IdentityService struct {
	accounts    Accounts
	presence    Presence
	guestPrefix string
}

func NewIdentity(accounts Accounts, presence Presence, guestPrefix string) *IdentityService {
	return &IdentityService{accounts: accounts, presence: presence, guestPrefix: guestPrefix}
}

// Connect upgrades a guest to a registered identity, keeping its client id.
// On failure the current identity stays as it is.
func (s *IdentityService) Connect(ctx context.Context, current domain.Identity, username, password string) (domain.Identity, error) {
	if !current.IsGuest(s.guestPrefix) {
		return current, &internal_errors.ValidationError{Message: "Already connected as " + current.Username + "."}
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return current, &internal_errors.ValidationError{Message: "Username and password are required."}
	}
	if strings.HasPrefix(username, s.guestPrefix) {
		return current, internal_errors.ErrInvalidCredentials
	}

	avatar, err := s.accounts.Verify(ctx, username, password)
	if err != nil {
		logger.Log.Error("identity upgrade failed", "client_id", current.ClientId, "username", username, "error", err)
		return current, fmt.Errorf("%w: %w", internal_errors.ErrConnectFailed, err)
	}

	upgraded := domain.Identity{ClientId: current.ClientId, Username: username, AvatarURL: avatar}
	live := s.presence.Replace(upgraded)
	logger.Log.Info("identity upgraded", "client_id", current.ClientId, "username", username, "live", live)
	return upgraded, nil
}
