package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/quiz"
)

type dbModule struct {
	ID          string    `db:"id"`
	CompanyID   string    `db:"company_id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Position    int       `db:"position"`
	IsPublished bool      `db:"is_published"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (dm dbModule) toModule() quiz.Module {
	return quiz.Module{
		ID:          dm.ID,
		CompanyID:   dm.CompanyID,
		Title:       dm.Title,
		Description: dm.Description,
		Position:    dm.Position,
		IsPublished: dm.IsPublished,
		CreatedAt:   dm.CreatedAt.UTC(),
		UpdatedAt:   dm.UpdatedAt.UTC(),
	}
}

const moduleColumns = `id, company_id, title, description, position, is_published, created_at, updated_at`

type quizRepository struct {
	db *sqlx.DB
}

var _ quiz.Repository = (*quizRepository)(nil)

func NewQuizRepository(db *sql.DB) quiz.Repository {
	return &quizRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *quizRepository) CreateModule(mod quiz.Module) (quiz.Module, error) {
	query := `
INSERT INTO module (company_id, title, description, position, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + moduleColumns
	var dm dbModule
	err := repo.db.Get(
		&dm, query,
		mod.CompanyID, mod.Title, mod.Description, mod.Position, mod.CreatedAt, mod.UpdatedAt,
	)
	if err != nil {
		return quiz.Module{}, errors.Wrap(err, "creating module")
	}
	return dm.toModule(), nil
}

func (repo *quizRepository) GetModuleByID(id string) (quiz.Module, error) {
	var dm dbModule
	err := repo.db.Get(&dm, `SELECT `+moduleColumns+` FROM module WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return quiz.Module{}, quiz.ErrNotFound
		}
		return quiz.Module{}, errors.Wrap(err, "getting module")
	}
	return dm.toModule(), nil
}

func (repo *quizRepository) QueryCompanyModules(companyID string, ordering ...core.DBOrdering) ([]quiz.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM module WHERE company_id = $1` +
		orderingClause(ordering, `position ASC, created_at ASC`)
	var dms []dbModule
	if err := repo.db.Select(&dms, query, companyID); err != nil {
		return nil, errors.Wrap(err, "querying modules")
	}
	mods := make([]quiz.Module, 0, len(dms))
	for _, dm := range dms {
		mods = append(mods, dm.toModule())
	}
	return mods, nil
}

func (repo *quizRepository) UpdateModule(mod quiz.Module, isPublished *bool) (quiz.Module, error) {
	set := []string{`title = $2`, `description = $3`, `position = $4`, `updated_at = $5`}
	args := []interface{}{mod.ID, mod.Title, mod.Description, mod.Position, mod.UpdatedAt}

	if isPublished != nil {
		args = append(args, *isPublished)
		set = append(set, fmt.Sprintf(`is_published = $%d`, len(args)))
	}

	query := `UPDATE module SET ` + strings.Join(set, `, `) + ` WHERE id = $1 RETURNING ` + moduleColumns
	var dm dbModule
	if err := repo.db.Get(&dm, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return quiz.Module{}, quiz.ErrNotFound
		}
		return quiz.Module{}, errors.Wrap(err, "updating module")
	}
	return dm.toModule(), nil
}

func (repo *quizRepository) DeleteModulesByID(ids ...string) error {
	_, err := repo.db.Exec(`DELETE FROM module WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting modules")
}
