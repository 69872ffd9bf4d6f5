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

	echoapi "github.com/trezcool/eagleeye/apps/api/echo"
	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
	logsvc "github.com/trezcool/eagleeye/services/logger"
	"github.com/trezcool/eagleeye/storage/database"
	dummydb "github.com/trezcool/eagleeye/storage/database/dummy"
	sqlxrepos "github.com/trezcool/eagleeye/storage/database/sqlx"
	sqlitekv "github.com/trezcool/eagleeye/storage/local/sqlite"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up local storage
	kv, err := sqlitekv.Open(conf.Local.Path)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening local storage: %v", err), err)
	}
	defer func() {
		if err = kv.Close(); err != nil {
			dbLogger.Error("Failed to close local storage", err)
		}
	}()

	// set up remote storage
	remote, closeRemote, err := setUpRemote(conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up remote database: %v", err), err)
	}
	defer func() {
		if err = closeRemote(); err != nil {
			dbLogger.Error("Failed to close remote database", err)
		}
	}()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	tracker.InitValidators(validate, translator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := tracker.OpenLocalStore(ctx, kv, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening local store: %v", err), err)
	}

	coord := tracker.NewCoordinator(tracker.CoordinatorDeps{
		Local:         local,
		Remote:        remote,
		Logger:        logger,
		SweepInterval: conf.Sync.SweepInterval,
	})
	coord.Start(ctx)
	defer coord.Close()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("sync", expvar.Func(func() interface{} { return coord.State() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			Coordinator: coord,
			Migrator:    tracker.NewMigrator(kv, remote, logger),
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpRemote returns the configured remote store, or nil when there is none.
// The returned func releases it.
func setUpRemote(conf *core.Config, logger core.Logger) (tracker.RemoteClient, func() error, error) {
	noop := func() error { return nil }

	if !conf.Remote.Configured() {
		logger.Info("remote store not configured, data stays on this device")
		return nil, noop, nil
	}
	if conf.Remote.Engine == core.RemoteEngineDummy {
		logger.Warn("using the in-memory remote store")
		return dummydb.Open(), noop, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, noop, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, noop, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	return sqlxrepos.NewRemoteClient(db, database.DSN(conf.Remote.Name, false, conf), logger), db.Close, nil
}
