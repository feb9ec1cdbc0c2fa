package dummydb

import (
	"sort"

	"github.com/google/uuid"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/quiz"
)

type quizRepository struct {
	db *moduleTable
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) quiz.Repository {
	return &quizRepository{db: db.module}
}

func (repo *quizRepository) CreateModule(mod quiz.Module) (quiz.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	mod.ID = uuid.NewString()
	repo.db.table[mod.ID] = &mod
	return mod, nil
}

func (repo *quizRepository) GetModuleByID(id string) (quiz.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if mod, ok := repo.db.table[id]; ok {
		return *mod, nil
	}
	return quiz.Module{}, quiz.ErrNotFound
}

func (repo *quizRepository) QueryCompanyModules(companyID string, ordering ...core.DBOrdering) ([]quiz.Module, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	mods := make([]quiz.Module, 0)
	for _, mod := range repo.db.table {
		if mod.CompanyID == companyID {
			mods = append(mods, *mod)
		}
	}
	if len(ordering) > 0 {
		sort.Slice(mods, func(i, j int) bool { return moduleLess(mods[i], mods[j], ordering) })
	} else {
		sort.Slice(mods, func(i, j int) bool {
			if mods[i].Position != mods[j].Position {
				return mods[i].Position < mods[j].Position
			}
			return mods[i].CreatedAt.Before(mods[j].CreatedAt)
		})
	}
	return mods, nil
}

func moduleLess(a, b quiz.Module, ordering []core.DBOrdering) bool {
	for _, ord := range ordering {
		var less, eq bool
		switch ord.Field {
		case "position":
			less, eq = a.Position < b.Position, a.Position == b.Position
		case "title":
			less, eq = a.Title < b.Title, a.Title == b.Title
		case "created_at":
			less, eq = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		case "updated_at":
			less, eq = a.UpdatedAt.Before(b.UpdatedAt), a.UpdatedAt.Equal(b.UpdatedAt)
		default:
			continue
		}
		if eq {
			continue
		}
		if ord.Ascending {
			return less
		}
		return !less
	}
	return false
}

func (repo *quizRepository) UpdateModule(mod quiz.Module, isPublished *bool) (quiz.Module, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	origMod, ok := repo.db.table[mod.ID]
	if !ok {
		return quiz.Module{}, quiz.ErrNotFound
	}
	origMod.Title = mod.Title
	origMod.Description = mod.Description
	origMod.Position = mod.Position
	origMod.UpdatedAt = mod.UpdatedAt
	if isPublished != nil {
		origMod.IsPublished = *isPublished
	}

	repo.db.table[mod.ID] = origMod
	return *origMod, nil
}

func (repo *quizRepository) DeleteModulesByID(ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
