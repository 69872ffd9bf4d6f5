package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
	logsvc "github.com/trezcool/eagleeye/services/logger"
	"github.com/trezcool/eagleeye/storage/database"
	sqlxrepos "github.com/trezcool/eagleeye/storage/database/sqlx"
	sqlitekv "github.com/trezcool/eagleeye/storage/local/sqlite"
)

func main() {
	os.Exit(start())
}

func start() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up local storage
	kv, err := sqlitekv.Open(conf.Local.Path)
	if err != nil {
		logger.Error(fmt.Sprintf("opening local storage: %v", err), err)
		return 1
	}
	defer func() { _ = kv.Close() }()

	// set up remote storage
	var db *sql.DB
	var remote tracker.RemoteClient
	if conf.Remote.Engine == core.RemoteEnginePostgres && conf.Remote.Configured() {
		xdb, err := database.Open(conf)
		if err != nil {
			logger.Error(fmt.Sprintf("opening remote database: %v", err), err)
			return 1
		}
		defer func() { _ = xdb.Close() }()

		db = xdb.DB
		remote = sqlxrepos.NewRemoteClient(xdb, database.DSN(conf.Remote.Name, false, conf), logger)
	}

	// start CLI
	cli := commandLine{
		conf:     conf,
		db:       db,
		migrator: tracker.NewMigrator(kv, remote, logger),
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		return 1
	}
	return 0
}
