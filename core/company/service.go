package company

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/user"
)

var (
	// errors
	ErrNotFound   = errors.New("company not found")
	ErrSlugExists = errors.New("a company with this slug already exists")

	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationExpired   = errors.New("invitation has expired")
	ErrInvitationExhausted = errors.New("invitation has no uses left")
	ErrInvitationRevoked   = errors.New("invitation has been revoked")
	ErrSignupsDisabled     = errors.New("signups are disabled for this company")
)

type (
	Repository interface {
		CheckSlugUniqueness(slug string) error
		CreateCompany(cpy Company) (Company, error)
		DeleteCompany(id string) error
		GetCompanyByID(id string) (Company, error)
		GetCompanyBySlug(slug string) (Company, error)
		UpdateSettings(id string, settings Settings) (Company, error)

		CreateInvitation(inv Invitation) (Invitation, error)
		GetInvitationByID(id string) (Invitation, error)
		GetInvitationBySecret(secret string) (Invitation, error)
		QueryCompanyInvitations(companyID string) ([]Invitation, error)
		// ConsumeInvitation atomically increments Uses, failing with
		// ErrInvitationExhausted when MaxUses is already reached.
		ConsumeInvitation(id string) (Invitation, error)
		// ReleaseInvitation returns a consumed use when member creation
		// fails after the invitation was consumed.
		ReleaseInvitation(id string) error
		RevokeInvitation(id string, at time.Time) error
	}

	Service struct {
		repo     Repository
		usrSvc   *user.Service
		validate *validator.Validate
	}
)

func NewService(repo Repository, usrSvc *user.Service, validate *validator.Validate) *Service {
	return &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		validate: validate,
	}
}

func (svc *Service) checkSlugUniqueness(slug string) error {
	if err := svc.repo.CheckSlugUniqueness(slug); err != nil {
		if err == ErrSlugExists {
			return core.NewValidationError(err, core.FieldError{Field: "slug", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Onboard creates a Company together with its owner account.
func (svc *Service) Onboard(nc NewCompany) (Company, user.User, error) {
	// validate the owner account before touching storage; CompanyID is filled
	// in after the company row exists.
	nu := user.NewUser{
		CompanyID:       "pending",
		Name:            nc.OwnerName,
		Email:           nc.OwnerEmail,
		Password:        nc.OwnerPassword,
		PasswordConfirm: nc.OwnerPasswordConfirm,
		Roles:           []string{user.RoleAdminOwner},
	}
	if err := nu.Validate(svc.usrSvc); err != nil {
		return Company{}, user.User{}, err
	}

	now := time.Now().UTC()
	cpy := Company{
		Name:      nc.Name,
		Slug:      nc.Slug,
		Settings:  DefaultSettings(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	cpy, err := svc.repo.CreateCompany(cpy)
	if err != nil {
		return Company{}, user.User{}, errors.Wrap(err, "creating company")
	}

	nu.CompanyID = cpy.ID
	owner, err := svc.usrSvc.Create(nu)
	if err != nil {
		// do not leave an ownerless company behind
		if delErr := svc.repo.DeleteCompany(cpy.ID); delErr != nil {
			return Company{}, user.User{}, errors.Wrap(delErr, "removing ownerless company")
		}
		return Company{}, user.User{}, errors.Wrap(err, "creating owner")
	}
	return cpy, owner, nil
}

func (svc *Service) GetByID(id string) (Company, error) {
	return svc.repo.GetCompanyByID(id)
}

func (svc *Service) GetBySlug(slug string) (Company, error) {
	return svc.repo.GetCompanyBySlug(core.CleanString(slug, true /* lower */))
}

func (svc *Service) UpdateSettings(id string, us UpdateSettings) (Company, error) {
	cpy, err := svc.repo.GetCompanyByID(id)
	if err != nil {
		return Company{}, err
	}

	settings := cpy.Settings
	if us.AllowSignups != nil {
		settings.AllowSignups = *us.AllowSignups
	}
	if us.DefaultMemberRole != "" {
		settings.DefaultMemberRole = us.DefaultMemberRole
	}
	if us.Locale != "" {
		settings.Locale = us.Locale
	}
	return svc.repo.UpdateSettings(id, settings)
}

// CreateInvitation mints a shareable signup link for the company.
func (svc *Service) CreateInvitation(companyID, createdBy string, ni NewInvitation) (Invitation, error) {
	if _, err := svc.repo.GetCompanyByID(companyID); err != nil {
		return Invitation{}, err
	}

	inv := Invitation{
		CompanyID: companyID,
		Secret:    uuid.NewString(),
		Role:      ni.Role,
		MaxUses:   ni.MaxUses,
		ExpiresAt: ni.ExpiresAt,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateInvitation(inv)
}

func (svc *Service) GetInvitation(id string) (Invitation, error) {
	return svc.repo.GetInvitationByID(id)
}

func (svc *Service) QueryInvitations(companyID string) ([]Invitation, error) {
	return svc.repo.QueryCompanyInvitations(companyID)
}

func (svc *Service) RevokeInvitation(id string) error {
	inv, err := svc.repo.GetInvitationByID(id)
	if err != nil {
		return err
	}
	if inv.IsRevoked() {
		return nil
	}
	return svc.repo.RevokeInvitation(id, time.Now().UTC())
}

// checkInvitation validates the invitation against expiry, exhaustion,
// revocation and the company's signup settings.
func (svc *Service) checkInvitation(inv Invitation) error {
	switch {
	case inv.IsRevoked():
		return ErrInvitationRevoked
	case inv.IsExpired(time.Now().UTC()):
		return ErrInvitationExpired
	case inv.IsExhausted():
		return ErrInvitationExhausted
	}

	cpy, err := svc.repo.GetCompanyByID(inv.CompanyID)
	if err != nil {
		return err
	}
	if !cpy.Settings.AllowSignups {
		return ErrSignupsDisabled
	}
	return nil
}

// Redeem performs an anonymous invitation-based signup: it validates the
// secret and creates a member account in the invitation's company.
func (svc *Service) Redeem(ri RedeemInvitation) (user.User, error) {
	inv, err := svc.repo.GetInvitationBySecret(ri.Secret)
	if err != nil {
		if err == ErrInvitationNotFound {
			return user.User{}, core.NewValidationError(err, core.FieldError{Field: "secret", Error: err.Error()})
		}
		return user.User{}, err
	}
	if err = svc.checkInvitation(inv); err != nil {
		return user.User{}, core.NewValidationError(err, core.FieldError{Field: "secret", Error: err.Error()})
	}

	nu := user.NewUser{
		CompanyID:       inv.CompanyID,
		Name:            ri.Name,
		Username:        ri.Username,
		Email:           ri.Email,
		Password:        ri.Password,
		PasswordConfirm: ri.PasswordConfirm,
		Roles:           []string{inv.Role},
	}
	if err = nu.Validate(svc.usrSvc); err != nil {
		return user.User{}, err
	}

	if _, err = svc.repo.ConsumeInvitation(inv.ID); err != nil {
		if err == ErrInvitationExhausted {
			return user.User{}, core.NewValidationError(err, core.FieldError{Field: "secret", Error: err.Error()})
		}
		return user.User{}, errors.Wrap(err, "consuming invitation")
	}

	usr, err := svc.usrSvc.Create(nu)
	if err != nil {
		// hand the use back so a storage failure does not burn the secret
		if relErr := svc.repo.ReleaseInvitation(inv.ID); relErr != nil {
			return user.User{}, errors.Wrap(relErr, "releasing invitation use")
		}
		return user.User{}, errors.Wrap(err, "creating member")
	}
	return usr, nil
}
