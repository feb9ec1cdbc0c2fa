package dummydb

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quizera/backend/core/company"
)

type companyRepository struct {
	companies   *companyTable
	invitations *invitationTable
}

var _ company.Repository = (*companyRepository)(nil) // interface compliance check

func NewCompanyRepository(db *DB) company.Repository {
	return &companyRepository{companies: db.company, invitations: db.invitation}
}

func (repo *companyRepository) CheckSlugUniqueness(slug string) error {
	repo.companies.RLock()
	defer repo.companies.RUnlock()

	for _, cpy := range repo.companies.table {
		if cpy.Slug == slug {
			return company.ErrSlugExists
		}
	}
	return nil
}

func (repo *companyRepository) CreateCompany(cpy company.Company) (company.Company, error) {
	repo.companies.Lock()
	defer repo.companies.Unlock()

	cpy.ID = uuid.NewString()
	repo.companies.table[cpy.ID] = &cpy
	return cpy, nil
}

func (repo *companyRepository) DeleteCompany(id string) error {
	repo.companies.Lock()
	defer repo.companies.Unlock()

	delete(repo.companies.table, id)
	return nil
}

func (repo *companyRepository) GetCompanyByID(id string) (company.Company, error) {
	repo.companies.RLock()
	defer repo.companies.RUnlock()

	if cpy, ok := repo.companies.table[id]; ok {
		return *cpy, nil
	}
	return company.Company{}, company.ErrNotFound
}

func (repo *companyRepository) GetCompanyBySlug(slug string) (company.Company, error) {
	repo.companies.RLock()
	defer repo.companies.RUnlock()

	for _, cpy := range repo.companies.table {
		if cpy.Slug == slug {
			return *cpy, nil
		}
	}
	return company.Company{}, company.ErrNotFound
}

func (repo *companyRepository) UpdateSettings(id string, settings company.Settings) (company.Company, error) {
	repo.companies.Lock()
	defer repo.companies.Unlock()

	cpy, ok := repo.companies.table[id]
	if !ok {
		return company.Company{}, company.ErrNotFound
	}
	cpy.Settings = settings
	cpy.UpdatedAt = time.Now().UTC()
	return *cpy, nil
}

func (repo *companyRepository) CreateInvitation(inv company.Invitation) (company.Invitation, error) {
	repo.invitations.Lock()
	defer repo.invitations.Unlock()

	inv.ID = uuid.NewString()
	repo.invitations.table[inv.ID] = &inv
	return inv, nil
}

func (repo *companyRepository) GetInvitationByID(id string) (company.Invitation, error) {
	repo.invitations.RLock()
	defer repo.invitations.RUnlock()

	if inv, ok := repo.invitations.table[id]; ok {
		return *inv, nil
	}
	return company.Invitation{}, company.ErrInvitationNotFound
}

func (repo *companyRepository) GetInvitationBySecret(secret string) (company.Invitation, error) {
	repo.invitations.RLock()
	defer repo.invitations.RUnlock()

	for _, inv := range repo.invitations.table {
		if inv.Secret == secret {
			return *inv, nil
		}
	}
	return company.Invitation{}, company.ErrInvitationNotFound
}

func (repo *companyRepository) QueryCompanyInvitations(companyID string) ([]company.Invitation, error) {
	repo.invitations.RLock()
	defer repo.invitations.RUnlock()

	invs := make([]company.Invitation, 0)
	for _, inv := range repo.invitations.table {
		if inv.CompanyID == companyID {
			invs = append(invs, *inv)
		}
	}
	sort.Slice(invs, func(i, j int) bool { return invs[i].CreatedAt.After(invs[j].CreatedAt) })
	return invs, nil
}

func (repo *companyRepository) ConsumeInvitation(id string) (company.Invitation, error) {
	repo.invitations.Lock()
	defer repo.invitations.Unlock()

	inv, ok := repo.invitations.table[id]
	if !ok {
		return company.Invitation{}, company.ErrInvitationNotFound
	}
	if inv.IsExhausted() {
		return company.Invitation{}, company.ErrInvitationExhausted
	}
	inv.Uses++
	return *inv, nil
}

func (repo *companyRepository) ReleaseInvitation(id string) error {
	repo.invitations.Lock()
	defer repo.invitations.Unlock()

	inv, ok := repo.invitations.table[id]
	if !ok {
		return company.ErrInvitationNotFound
	}
	if inv.Uses > 0 {
		inv.Uses--
	}
	return nil
}

func (repo *companyRepository) RevokeInvitation(id string, at time.Time) error {
	repo.invitations.Lock()
	defer repo.invitations.Unlock()

	inv, ok := repo.invitations.table[id]
	if !ok {
		return company.ErrInvitationNotFound
	}
	inv.RevokedAt = at
	return nil
}
