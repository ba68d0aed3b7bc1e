package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/user"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/storage/database"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
)

type commandLine struct {
	db            *sql.DB
	validate      *validator.Validate
	usrRepo       user.Repository
	usrSvc        user.Service
	catalogSvc    catalog.Service
	enrollmentSvc enrollment.Service
}

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	// errors are reported on the terminal
	logger.Enable(false)

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	db, err := database.Open(ctx, conf)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	catalogSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), core.SystemClock)

	// start CLI
	cli := commandLine{
		db:            db.DB,
		validate:      validate,
		usrRepo:       usrRepo,
		usrSvc:        user.NewService(usrRepo, core.SystemClock),
		catalogSvc:    catalogSvc,
		enrollmentSvc: enrollment.NewService(sqlxrepos.NewEnrollmentRepository(db), catalogSvc, core.SystemClock),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err))
		}
		os.Exit(1)
	}
}
