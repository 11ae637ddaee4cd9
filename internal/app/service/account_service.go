package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"oj_sync/internal/common"
	"oj_sync/internal/domain/model"
	"oj_sync/internal/domain/repository"
	"oj_sync/internal/fetcher"
	"oj_sync/internal/platform/logging"
)

// Actor is the authenticated caller of a service method.
type Actor struct {
	UserID string
	Role   string
}

// Owns reports whether the actor may see resources owned by ownerID.
func (a Actor) Owns(ownerID string) bool {
	return a.Role == model.RoleAdmin || a.UserID == ownerID
}

// Platforms is the registry view account management needs.
type Platforms interface {
	FetcherFactory
	MetaSource
}

type CreateAccountRequest struct {
	Platform       string `json:"platform" validate:"required"`
	ExternalUserID string `json:"external_user_id" validate:"required,max=128"`
	Cookie         string `json:"cookie,omitempty" validate:"max=8192"`
	Password       string `json:"password,omitempty" validate:"max=256"`
}

type AccountService struct {
	accounts  repository.PlatformAccountRepository
	platforms Platforms
	log       zerolog.Logger
}

func NewAccountService(accounts repository.PlatformAccountRepository, platforms Platforms) *AccountService {
	return &AccountService{accounts: accounts, platforms: platforms, log: logging.Component("accounts")}
}

// Create links a platform account to the actor. Credentials are checked for
// presence only; Validate performs the remote check.
func (s *AccountService) Create(ctx context.Context, actor Actor, req CreateAccountRequest) (*model.PlatformAccount, error) {
	req.ExternalUserID = strings.TrimSpace(req.ExternalUserID)
	req.Cookie = strings.TrimSpace(req.Cookie)
	if err := common.Validate(req); err != nil {
		return nil, err
	}
	meta, ok := s.platforms.Meta(req.Platform)
	if !ok {
		return nil, fmt.Errorf("%w: %s", fetcher.ErrUnknownPlatform, req.Platform)
	}
	if meta.RequiresAuth {
		switch meta.AuthMethod {
		case fetcher.AuthCookie:
			if req.Cookie == "" {
				return nil, common.Invalid("cookie", "is required for "+meta.DisplayName)
			}
		case fetcher.AuthPassword:
			if req.Password == "" {
				return nil, common.Invalid("password", "is required for "+meta.DisplayName)
			}
		}
	}

	a := &model.PlatformAccount{
		ID:             uuid.NewString(),
		OwnerID:        actor.UserID,
		Platform:       req.Platform,
		ExternalUserID: req.ExternalUserID,
		Cookie:         req.Cookie,
		Password:       req.Password,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Str("account_id", a.ID).Str("platform", a.Platform).Str("owner_id", a.OwnerID).Msg("platform account linked")
	return a, nil
}

// Get hides accounts of other users behind ErrNotFound.
func (s *AccountService) Get(ctx context.Context, actor Actor, id string) (*model.PlatformAccount, error) {
	a, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(a.OwnerID) {
		return nil, common.ErrNotFound
	}
	return a, nil
}

func (s *AccountService) List(ctx context.Context, actor Actor) ([]model.PlatformAccount, error) {
	return s.accounts.ListByOwner(ctx, actor.UserID)
}

func (s *AccountService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.accounts.Delete(ctx, id)
}

// Validate asks the platform whether the stored credentials still work.
func (s *AccountService) Validate(ctx context.Context, actor Actor, id string) (bool, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return false, err
	}
	f, err := s.platforms.New(a.Platform, fetcher.Credentials{
		ExternalUserID: a.ExternalUserID,
		Cookie:         a.Cookie,
		Password:       a.Password,
	})
	if err != nil {
		return false, err
	}
	ok := f.ValidateAccount(ctx, a.ExternalUserID)
	s.log.Info().Str("account_id", a.ID).Bool("valid", ok).Msg("account validated")
	return ok, nil
}

// Reactivate clears the failure counter of an auto-deactivated account.
func (s *AccountService) Reactivate(ctx context.Context, actor Actor, id string) (*model.PlatformAccount, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := s.accounts.Reactivate(ctx, id); err != nil {
		return nil, err
	}
	return s.accounts.FindByID(ctx, id)
}
