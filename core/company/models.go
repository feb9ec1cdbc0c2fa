package company

import (
	"time"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/user"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Settings are the per-company toggles exposed to company admins.
type Settings struct {
	AllowSignups      bool   `json:"allow_signups"`
	DefaultMemberRole string `json:"default_member_role"`
	Locale            string `json:"locale"`
}

// DefaultSettings applied to every new Company.
func DefaultSettings() Settings {
	return Settings{
		AllowSignups:      true,
		DefaultMemberRole: user.RoleStudent,
		Locale:            "en",
	}
}

// Invitation is a shareable signup link scoped to a Company.
// Secret is the opaque capability embedded in the link.
type Invitation struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Secret    string    `json:"secret"`
	Role      string    `json:"role"`
	MaxUses   int       `json:"max_uses"` // 0 = unlimited
	Uses      int       `json:"uses"`
	ExpiresAt time.Time `json:"expires_at"` // UTC; zero = never
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
	RevokedAt time.Time `json:"revoked_at,omitempty"`
}

func (inv Invitation) IsExpired(now time.Time) bool {
	return !inv.ExpiresAt.IsZero() && now.After(inv.ExpiresAt)
}

func (inv Invitation) IsExhausted() bool {
	return inv.MaxUses > 0 && inv.Uses >= inv.MaxUses
}

func (inv Invitation) IsRevoked() bool {
	return !inv.RevokedAt.IsZero()
}

// NewCompany contains information needed to onboard a new Company along with
// its owner account.
type NewCompany struct {
	Name                 string `json:"name" validate:"required"`
	Slug                 string `json:"slug" validate:"required,slug"`
	OwnerName            string `json:"owner_name" validate:"required"`
	OwnerEmail           string `json:"owner_email" validate:"required,email"`
	OwnerPassword        string `json:"owner_password" validate:"required"`
	OwnerPasswordConfirm string `json:"owner_password_confirm" validate:"required,eqfield=OwnerPassword"`
}

func (nc *NewCompany) Validate(svc *Service) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.OwnerName = core.CleanString(nc.OwnerName)
	nc.OwnerEmail = core.CleanString(nc.OwnerEmail, true /* lower */)

	if err := svc.validate.Struct(nc); err != nil {
		return err
	}
	return svc.checkSlugUniqueness(nc.Slug)
}

// UpdateSettings defines what settings a company admin may modify.
type UpdateSettings struct {
	AllowSignups      *bool  `json:"allow_signups"`
	DefaultMemberRole string `json:"default_member_role" validate:"omitempty,allroles"`
	Locale            string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

func (us *UpdateSettings) Validate(svc *Service) error {
	us.Locale = core.CleanString(us.Locale, true /* lower */)
	return svc.validate.Struct(us)
}

// NewInvitation contains information needed to create an invitation link.
type NewInvitation struct {
	Role      string    `json:"role" validate:"required,allroles"`
	MaxUses   int       `json:"max_uses" validate:"omitempty,min=0"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (ni *NewInvitation) Validate(svc *Service) error { return svc.validate.Struct(ni) }

// RedeemInvitation is an anonymous signup against an invitation secret.
type RedeemInvitation struct {
	Secret          string `json:"secret" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (ri *RedeemInvitation) Validate(svc *Service) error {
	ri.Name = core.CleanString(ri.Name)
	ri.Username = core.CleanString(ri.Username, true /* lower */)
	ri.Email = core.CleanString(ri.Email, true /* lower */)
	return svc.validate.Struct(ri)
}
