package main

import (
	"time"

	"github.com/quizera/backend/core"
	"github.com/quizera/backend/core/user"
)

// addUser updates or creates a user in the given company.
func (cli *commandLine) addUser(companySlug, email, name, pwd string, isAdmin bool) error {
	email = core.CleanString(email, true /* lower */)

	cpy, err := cli.cpyRepo.GetCompanyBySlug(core.CleanString(companySlug, true /* lower */))
	if err != nil {
		return err
	}

	roles := []string{cpy.Settings.DefaultMemberRole}
	if isAdmin {
		roles = user.AllRoles
	}

	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUserByEmail(email)
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			CompanyID: cpy.ID,
			Name:      core.CleanString(name),
			Email:     email,
			IsActive:  true,
			Roles:     roles,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(usr)
		return err
	}

	if name != "" {
		usr.Name = core.CleanString(name)
	}
	usr.Roles = roles
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	isActive := true
	_, err = cli.usrRepo.UpdateUser(usr, &isActive)
	return err
}
