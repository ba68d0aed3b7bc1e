package main

import (
	"context"
)

func (cli *commandLine) unenroll(uname, courseID string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	return cli.enrollmentSvc.Unenroll(ctx, usr.ID, courseID)
}
