package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/elimu/apps/api/echo"
	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/catalog"
	"github.com/trezcool/elimu/core/enrollment"
	"github.com/trezcool/elimu/core/payment"
	"github.com/trezcool/elimu/core/user"
	emailsvc "github.com/trezcool/elimu/services/email"
	logsvc "github.com/trezcool/elimu/services/logger"
	"github.com/trezcool/elimu/services/payment/demo"
	"github.com/trezcool/elimu/services/payment/razorpay"
	"github.com/trezcool/elimu/storage/database"
	inmemdb "github.com/trezcool/elimu/storage/database/inmem"
	sqlxrepos "github.com/trezcool/elimu/storage/database/sqlx"
)

type repositories struct {
	users       user.Repository
	catalog     catalog.Repository
	enrollments enrollment.Repository
	payments    payment.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	dbLogger := logger.With(logsvc.Fields{"component": "database"})

	// set up storage
	var (
		repos repositories
		txDB  core.DB
	)
	if conf.Database.InMemory {
		logger.Warn("using in-memory storage: data is lost on shutdown")
		mem := inmemdb.NewDB()
		txDB = mem
		repos = repositories{
			users:       inmemdb.NewUserRepository(mem),
			catalog:     inmemdb.NewCatalogRepository(mem),
			enrollments: inmemdb.NewEnrollmentRepository(mem),
			payments:    inmemdb.NewPaymentRepository(mem),
		}
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		txDB = sqlxrepos.NewDB(db)
		repos = repositories{
			users:       sqlxrepos.NewUserRepository(db),
			catalog:     sqlxrepos.NewCatalogRepository(db),
			enrollments: sqlxrepos.NewEnrollmentRepository(db),
			payments:    sqlxrepos.NewPaymentRepository(db),
		}
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stdout, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	processor, paymentOpts, err := newProcessor(conf)
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
	if conf.Payment.Demo() {
		logger.Warn("payment gateway credentials missing: using the demo processor")
	}

	usrSvc := user.NewService(repos.users, core.SystemClock)
	catalogSvc := catalog.NewService(repos.catalog, core.SystemClock)
	enrollmentSvc := enrollment.NewService(repos.enrollments, catalogSvc, core.SystemClock)
	paymentSvc := payment.NewService(
		payment.ServiceDeps{
			Repo:      repos.payments,
			DB:        txDB,
			Processor: processor,
			Catalog:   catalogSvc,
			Ledger:    enrollmentSvc,
			Clock:     core.SystemClock,
			Logger:    logger.With(logsvc.Fields{"component": "payment", "processor": processorName(conf)}),
			Users:     usrSvc,
			MailSvc:   mailSvc,
		},
		paymentOpts,
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger, false)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("payment_processor").Set(processorName(conf))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			UserSvc:       usrSvc,
			CatalogSvc:    catalogSvc,
			EnrollmentSvc: enrollmentSvc,
			PaymentSvc:    paymentSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

// newProcessor picks the gateway client. Without credentials, the demo processor is used where
// conf.Payment.AllowDemo permits it: its signatures are derivable from the order reference.
func newProcessor(conf *core.Config) (payment.Processor, payment.Options, error) {
	opts := payment.Options{Currency: conf.Payment.Currency, KeyID: conf.Payment.KeyID}
	if !conf.Payment.Demo() {
		return razorpay.NewProcessor(conf.Payment), opts, nil
	}
	if !conf.Payment.AllowDemo {
		return nil, opts, errors.Errorf(
			"payment gateway credentials missing: set %[1]s_PAYMENT_KEYID and %[1]s_PAYMENT_KEYSECRET", conf.Env,
		)
	}
	opts.Notes = demo.Notes
	return demo.NewProcessor(), opts, nil
}

func processorName(conf *core.Config) string {
	if conf.Payment.Demo() {
		return "demo"
	}
	return "razorpay"
}
