package dummydb

import (
	"sync"

	"github.com/quizera/backend/core/company"
	"github.com/quizera/backend/core/quiz"
	"github.com/quizera/backend/core/user"
)

type (
	DB struct {
		user       *userTable
		company    *companyTable
		invitation *invitationTable
		module     *moduleTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	companyTable struct {
		sync.RWMutex
		table map[string]*company.Company
	}

	invitationTable struct {
		sync.RWMutex
		table map[string]*company.Invitation
	}

	moduleTable struct {
		sync.RWMutex
		table map[string]*quiz.Module
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		company:    &companyTable{table: make(map[string]*company.Company)},
		invitation: &invitationTable{table: make(map[string]*company.Invitation)},
		module:     &moduleTable{table: make(map[string]*quiz.Module)},
	}
	return db, nil
}
