package main

import (
	"log"
	"os"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	logsvc "github.com/trezcool/asistencia/services/logger"
	"github.com/trezcool/asistencia/storage/database"
	sqlxrepos "github.com/trezcool/asistencia/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(!conf.Debug)
	svc, err := attendance.NewService(sqlxrepos.NewStore(db), nil, svcLogger, conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		conf: conf,
		db:   db.DB,
		svc:  svc,
		out:  os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
