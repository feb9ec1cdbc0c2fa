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
	"github.com/quizera/backend/core/user"
)

type dbUser struct {
	ID           string         `db:"id"`
	CompanyID    string         `db:"company_id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (du dbUser) toUser() user.User {
	usr := user.User{
		ID:           du.ID,
		CompanyID:    du.CompanyID,
		Name:         du.Name,
		Username:     du.Username,
		Email:        du.Email,
		IsActive:     du.IsActive,
		Roles:        du.Roles,
		PasswordHash: du.PasswordHash,
		CreatedAt:    du.CreatedAt.UTC(),
		UpdatedAt:    du.UpdatedAt.UTC(),
	}
	if du.LastLogin.Valid {
		usr.LastLogin = du.LastLogin.Time.UTC()
	}
	return usr
}

const userColumns = `id, company_id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sql.DB) user.Repository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	query := `SELECT username, email FROM "user" WHERE ((username = $1 AND username <> '') OR email = $2) AND NOT (id = ANY($3))`
	rows, err := repo.db.Query(query, username, email, pq.Array(exclIDs))
	if err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uname, mail string
		if err = rows.Scan(&uname, &mail); err != nil {
			return errors.Wrap(err, "checking uniqueness")
		}
		if uname == username && username != "" {
			return user.ErrUsernameExists
		}
		if mail == email {
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(rows.Err(), "checking uniqueness")
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	query := `
INSERT INTO "user" (company_id, name, username, email, is_active, roles, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + userColumns
	var du dbUser
	err := repo.db.Get(
		&du, query,
		usr.CompanyID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.StringArray(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return du.toUser(), nil
}

func (repo *userRepository) getUser(where string, args ...interface{}) (user.User, error) {
	var du dbUser
	err := repo.db.Get(&du, `SELECT `+userColumns+` FROM "user" WHERE `+where, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return du.toUser(), nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	return repo.getUser(`id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(username string) (user.User, error) {
	return repo.getUser(`username = $1 AND username <> ''`, username)
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	return repo.getUser(`email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	return repo.getUser(`(username = $1 AND username <> '') OR email = $1`, username)
}

func (repo *userRepository) FilterUsers(filter user.QueryFilter, ordering ...core.DBOrdering) ([]user.User, error) {
	where := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CompanyID != "" {
		where = append(where, `company_id = `+arg(filter.CompanyID))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, `(name ILIKE `+p+` OR username ILIKE `+p+` OR email ILIKE `+p+`)`)
	}
	if filter.Roles != nil {
		where = append(where, `roles && `+arg(pq.StringArray(filter.Roles)))
	}
	if filter.IsActive != nil {
		where = append(where, `is_active = `+arg(*filter.IsActive))
	}
	if !filter.CreatedFrom.IsZero() {
		where = append(where, `created_at >= `+arg(filter.CreatedFrom))
	}
	if !filter.CreatedTo.IsZero() {
		where = append(where, `created_at <= `+arg(filter.CreatedTo))
	}

	query := `SELECT ` + userColumns + ` FROM "user"`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += orderingClause(ordering, `created_at DESC`)

	var dus []dbUser
	if err := repo.db.Select(&dus, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	users := make([]user.User, 0, len(dus))
	for _, du := range dus {
		users = append(users, du.toUser())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	set := []string{`name = $2`, `username = $3`, `email = $4`, `updated_at = $5`}
	args := []interface{}{usr.ID, usr.Name, usr.Username, usr.Email, usr.UpdatedAt}

	if usr.Roles != nil {
		args = append(args, pq.StringArray(usr.Roles))
		set = append(set, fmt.Sprintf(`roles = $%d`, len(args)))
	}
	if len(usr.PasswordHash) > 0 {
		args = append(args, usr.PasswordHash)
		set = append(set, fmt.Sprintf(`password_hash = $%d`, len(args)))
	}
	if isActive != nil {
		args = append(args, *isActive)
		set = append(set, fmt.Sprintf(`is_active = $%d`, len(args)))
	}

	query := `UPDATE "user" SET ` + strings.Join(set, `, `) + ` WHERE id = $1 RETURNING ` + userColumns
	var du dbUser
	if err := repo.db.Get(&du, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return du.toUser(), nil
}

func (repo *userRepository) SetLastLogin(usr user.User) (user.User, error) {
	query := `UPDATE "user" SET last_login = $2 WHERE id = $1 RETURNING ` + userColumns
	var du dbUser
	if err := repo.db.Get(&du, query, usr.ID, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return du.toUser(), nil
}

func (repo *userRepository) DeleteUsersByID(ids ...string) error {
	_, err := repo.db.Exec(`DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}

// orderingClause renders an ORDER BY from the given orderings, falling back
// to the default clause.
func orderingClause(ordering []core.DBOrdering, dflt string) string {
	if len(ordering) == 0 {
		return ` ORDER BY ` + dflt
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return ` ORDER BY ` + strings.Join(parts, `, `)
}
