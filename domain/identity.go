package domain

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// IdentityService resolves identity tokens to users.
type IdentityService struct {
	store  Store
	tpl    ProjectTemplate
	logger *log.Logger
}

func NewIdentityService(store Store, tpl ProjectTemplate, logger *log.Logger) *IdentityService {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &IdentityService{store: store, tpl: tpl, logger: logger}
}

// EnsureUser returns the user for token, provisioning it with a default
// project on first sight. Repeated calls for the same token are pure reads.
func (s *IdentityService) EnsureUser(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	var v validator
	v.length("username", token, 1, maxUsernameLen)
	if err := v.err(); err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByUsername(ctx, token)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user, err = s.store.ProvisionUser(ctx, token, s.tpl)
	if errors.Is(err, ErrConflict) {
		// another request provisioned the same token first
		return s.store.FindUserByUsername(ctx, token)
	}
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(log.Fields{"user": user.ID, "username": user.Username}).Info("auto-provisioned user with default project")
	return user, nil
}

// Register creates a bare user without a default project.
func (s *IdentityService) Register(ctx context.Context, username string) (*User, error) {
	var v validator
	v.length("username", username, 1, maxUsernameLen)
	if err := v.err(); err != nil {
		return nil, err
	}
	return s.store.CreateUser(ctx, username)
}
