package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	}
	if isAdmin {
		nu.Roles = user.AllRoles
	}
	nu.Clean()

	usr, err := cli.findUser(ctx, nu.Username, nu.Email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		if err = cli.validate.Struct(nu); err != nil {
			return err
		}
		_, err = cli.usrSvc.Create(ctx, nu)
		return err
	}

	if err = user.ValidatePassword(cli.validate, pwd); err != nil {
		return err
	}
	usr.Name = nu.Name
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.SystemClock.Now()
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}

func (cli *commandLine) findUser(ctx context.Context, unames ...string) (user.User, error) {
	for _, uname := range unames {
		if uname == "" {
			continue
		}
		usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
		if errors.Cause(err) == user.ErrNotFound {
			continue
		}
		return usr, err
	}
	return user.User{}, user.ErrNotFound
}
