package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"tradeledger/backend/internal/domain"
	"tradeledger/backend/internal/store"
)

// Authenticate verifies credentials. Unknown users and wrong passwords both
// yield ErrAuthFailure.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.User, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return domain.User{}, ErrAuthFailure
	}

	account, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrAuthFailure
		}
		return domain.User{}, err
	}
	if !verifyPassword(account.PasswordHash, password) {
		return domain.User{}, ErrAuthFailure
	}
	return account.Public(), nil
}

// ActiveUser reloads an account so that deleted users and changed roles
// take effect on tokens that are still within their lifetime.
func (s *Service) ActiveUser(ctx context.Context, userID string) (domain.User, error) {
	account, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return account.Public(), nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, account.Public())
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}

	account, err := s.repo.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.User{}, err
	}
	return account.Public(), nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}

	req.Username = normalizeUsername(req.Username)
	req.Role = strings.TrimSpace(req.Role)
	if err := s.check(req); err != nil {
		return domain.User{}, err
	}
	if err := checkUsername(req.Username); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return domain.User{}, err
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         req.Role,
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user.create", "user", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return created.Public(), nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}

	if req.Username != nil {
		username := normalizeUsername(*req.Username)
		req.Username = &username
	}
	req.Role = trimmed(req.Role)
	if err := s.check(req); err != nil {
		return domain.User{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.User{}, err
	}

	updated := *existing
	changes := make([]string, 0, 3)
	if req.Username != nil && *req.Username != existing.Username {
		if err := checkUsername(*req.Username); err != nil {
			return domain.User{}, err
		}
		updated.Username = *req.Username
		changes = append(changes, "username="+updated.Username)
	}
	if req.Role != nil && *req.Role != existing.Role {
		updated.Role = *req.Role
		changes = append(changes, "role="+updated.Role)
	}
	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return domain.User{}, err
		}
		updated.PasswordHash = hash
		changes = append(changes, "password")
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "user.update", "user", saved.ID, strings.Join(changes, ","))
	return saved.Public(), nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == actor.UserID {
		return ErrSelfDeletionForbidden
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "user.delete", "user", id, "")
	return nil
}

// EnsureBootstrapAdmin creates the first admin account when no accounts
// exist yet. It reports whether an account was created.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username string, password string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return false, nil
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return false, err
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return false, nil
		}
		return false, err
	}

	log.Info().Str("username", created.Username).Msg("bootstrap admin account created")
	s.logAudit(ctx, "user.bootstrap", "user", created.ID, "username="+created.Username)
	return true, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || input == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func checkUsername(username string) error {
	if strings.ContainsAny(username, " \t\r\n") {
		return invalidField("username", "must not contain whitespace")
	}
	return nil
}
