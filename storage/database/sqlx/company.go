package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core/company"
)

type dbCompany struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	Slug              string    `db:"slug"`
	AllowSignups      bool      `db:"allow_signups"`
	DefaultMemberRole string    `db:"default_member_role"`
	Locale            string    `db:"locale"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (dc dbCompany) toCompany() company.Company {
	return company.Company{
		ID:   dc.ID,
		Name: dc.Name,
		Slug: dc.Slug,
		Settings: company.Settings{
			AllowSignups:      dc.AllowSignups,
			DefaultMemberRole: dc.DefaultMemberRole,
			Locale:            dc.Locale,
		},
		CreatedAt: dc.CreatedAt.UTC(),
		UpdatedAt: dc.UpdatedAt.UTC(),
	}
}

type dbInvitation struct {
	ID        string       `db:"id"`
	CompanyID string       `db:"company_id"`
	Secret    string       `db:"secret"`
	Role      string       `db:"role"`
	MaxUses   int          `db:"max_uses"`
	Uses      int          `db:"uses"`
	ExpiresAt sql.NullTime `db:"expires_at"`
	CreatedBy string       `db:"created_by"`
	CreatedAt time.Time    `db:"created_at"`
	RevokedAt sql.NullTime `db:"revoked_at"`
}

func (di dbInvitation) toInvitation() company.Invitation {
	inv := company.Invitation{
		ID:        di.ID,
		CompanyID: di.CompanyID,
		Secret:    di.Secret,
		Role:      di.Role,
		MaxUses:   di.MaxUses,
		Uses:      di.Uses,
		CreatedBy: di.CreatedBy,
		CreatedAt: di.CreatedAt.UTC(),
	}
	if di.ExpiresAt.Valid {
		inv.ExpiresAt = di.ExpiresAt.Time.UTC()
	}
	if di.RevokedAt.Valid {
		inv.RevokedAt = di.RevokedAt.Time.UTC()
	}
	return inv
}

const (
	companyColumns    = `id, name, slug, allow_signups, default_member_role, locale, created_at, updated_at`
	invitationColumns = `id, company_id, secret, role, max_uses, uses, expires_at, created_by, created_at, revoked_at`
)

type companyRepository struct {
	db *sqlx.DB
}

var _ company.Repository = (*companyRepository)(nil)

func NewCompanyRepository(db *sql.DB) company.Repository {
	return &companyRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *companyRepository) CheckSlugUniqueness(slug string) error {
	var exists bool
	err := repo.db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM company WHERE slug = $1)`, slug)
	if err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if exists {
		return company.ErrSlugExists
	}
	return nil
}

func (repo *companyRepository) CreateCompany(cpy company.Company) (company.Company, error) {
	query := `
INSERT INTO company (name, slug, allow_signups, default_member_role, locale, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + companyColumns
	var dc dbCompany
	err := repo.db.Get(
		&dc, query,
		cpy.Name, cpy.Slug, cpy.Settings.AllowSignups, cpy.Settings.DefaultMemberRole,
		cpy.Settings.Locale, cpy.CreatedAt, cpy.UpdatedAt,
	)
	if err != nil {
		return company.Company{}, errors.Wrap(err, "creating company")
	}
	return dc.toCompany(), nil
}

func (repo *companyRepository) DeleteCompany(id string) error {
	_, err := repo.db.Exec(`DELETE FROM company WHERE id = $1`, id)
	return errors.Wrap(err, "deleting company")
}

func (repo *companyRepository) getCompany(where string, args ...interface{}) (company.Company, error) {
	var dc dbCompany
	err := repo.db.Get(&dc, `SELECT `+companyColumns+` FROM company WHERE `+where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return company.Company{}, company.ErrNotFound
		}
		return company.Company{}, errors.Wrap(err, "getting company")
	}
	return dc.toCompany(), nil
}

func (repo *companyRepository) GetCompanyByID(id string) (company.Company, error) {
	return repo.getCompany(`id = $1`, id)
}

func (repo *companyRepository) GetCompanyBySlug(slug string) (company.Company, error) {
	return repo.getCompany(`slug = $1`, slug)
}

func (repo *companyRepository) UpdateSettings(id string, settings company.Settings) (company.Company, error) {
	query := `
UPDATE company
SET allow_signups = $2, default_member_role = $3, locale = $4, updated_at = $5
WHERE id = $1
RETURNING ` + companyColumns
	var dc dbCompany
	err := repo.db.Get(
		&dc, query,
		id, settings.AllowSignups, settings.DefaultMemberRole, settings.Locale, time.Now().UTC(),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return company.Company{}, company.ErrNotFound
		}
		return company.Company{}, errors.Wrap(err, "updating company settings")
	}
	return dc.toCompany(), nil
}

func (repo *companyRepository) CreateInvitation(inv company.Invitation) (company.Invitation, error) {
	query := `
INSERT INTO invitation (company_id, secret, role, max_uses, expires_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + invitationColumns
	var expiresAt sql.NullTime
	if !inv.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: inv.ExpiresAt, Valid: true}
	}
	var di dbInvitation
	err := repo.db.Get(
		&di, query,
		inv.CompanyID, inv.Secret, inv.Role, inv.MaxUses, expiresAt, inv.CreatedBy, inv.CreatedAt,
	)
	if err != nil {
		return company.Invitation{}, errors.Wrap(err, "creating invitation")
	}
	return di.toInvitation(), nil
}

func (repo *companyRepository) getInvitation(where string, args ...interface{}) (company.Invitation, error) {
	var di dbInvitation
	err := repo.db.Get(&di, `SELECT `+invitationColumns+` FROM invitation WHERE `+where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return company.Invitation{}, company.ErrInvitationNotFound
		}
		return company.Invitation{}, errors.Wrap(err, "getting invitation")
	}
	return di.toInvitation(), nil
}

func (repo *companyRepository) GetInvitationByID(id string) (company.Invitation, error) {
	return repo.getInvitation(`id = $1`, id)
}

func (repo *companyRepository) GetInvitationBySecret(secret string) (company.Invitation, error) {
	return repo.getInvitation(`secret = $1`, secret)
}

func (repo *companyRepository) QueryCompanyInvitations(companyID string) ([]company.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitation WHERE company_id = $1 ORDER BY created_at DESC`
	var dis []dbInvitation
	if err := repo.db.Select(&dis, query, companyID); err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	invs := make([]company.Invitation, 0, len(dis))
	for _, di := range dis {
		invs = append(invs, di.toInvitation())
	}
	return invs, nil
}

// ConsumeInvitation increments Uses with a guard in the WHERE clause so two
// concurrent redemptions cannot both take the last use.
func (repo *companyRepository) ConsumeInvitation(id string) (company.Invitation, error) {
	query := `
UPDATE invitation
SET uses = uses + 1
WHERE id = $1 AND (max_uses = 0 OR uses < max_uses)
RETURNING ` + invitationColumns
	var di dbInvitation
	err := repo.db.Get(&di, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			// no uses left, or no such invitation at all
			if _, getErr := repo.GetInvitationByID(id); getErr != nil {
				return company.Invitation{}, getErr
			}
			return company.Invitation{}, company.ErrInvitationExhausted
		}
		return company.Invitation{}, errors.Wrap(err, "consuming invitation")
	}
	return di.toInvitation(), nil
}

func (repo *companyRepository) ReleaseInvitation(id string) error {
	_, err := repo.db.Exec(`UPDATE invitation SET uses = uses - 1 WHERE id = $1 AND uses > 0`, id)
	return errors.Wrap(err, "releasing invitation")
}

func (repo *companyRepository) RevokeInvitation(id string, at time.Time) error {
	res, err := repo.db.Exec(`UPDATE invitation SET revoked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return errors.Wrap(err, "revoking invitation")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return company.ErrInvitationNotFound
	}
	return nil
}
