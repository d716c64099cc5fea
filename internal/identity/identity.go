// Package identity issues guest identities and verifies registered accounts.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ninechan-dev/ninechan/shared/config"
	"github.com/ninechan-dev/ninechan/shared/domain"
	internal_errors "github.com/ninechan-dev/ninechan/shared/errors"
	"github.com/ninechan-dev/ninechan/shared/utils"
)

const (
	guestSuffixLen = 4
	passwordCost   = bcrypt.DefaultCost
)

// Guests mints anonymous identities.
type Guests struct {
	prefix string
}

func NewGuests(prefix string) *Guests {
	return &Guests{prefix: prefix}
}

// New returns a fresh guest with a random client id.
func (g *Guests) New() domain.Identity {
	return domain.Identity{
		ClientId: uuid.NewString(),
		Username: g.prefix + utils.NewId(guestSuffixLen),
	}
}

// Accounts checks passwords against the configured bcrypt hashes.
type Accounts struct {
	accounts map[string]config.Account
	// dummyHash keeps unknown-user checks as slow as wrong-password ones,
	// so it shares the cost of HashPassword.
	dummyHash []byte
}

func NewAccounts(accounts map[string]config.Account) *Accounts {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("ninechan"), passwordCost)
	return &Accounts{accounts: accounts, dummyHash: dummy}
}

func (a *Accounts) Verify(ctx context.Context, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	acc, ok := a.accounts[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
		return "", internal_errors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return "", internal_errors.ErrInvalidCredentials
		}
		return "", fmt.Errorf("check password for %s: %w", username, err)
	}
	return acc.AvatarURL, nil
}

// HashPassword produces a value for the accounts section of private.yaml.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
