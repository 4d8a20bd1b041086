package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	echoapi "github.com/trezcool/asistencia/apps/api/echo"
	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	"github.com/trezcool/asistencia/storage/database"
)

var (
	migrateFunc    = database.Migrate // mockable
	isTerminalFunc = term.IsTerminal  // mockable

	errHelp = errors.New("help provided")
)

// dayCloser is the part of the attendance service the CLI drives.
type dayCloser interface {
	CloseGateDay(ctx context.Context, actor attendance.Actor, day attendance.Date) (int, error)
	Today() attendance.Date
}

type commandLine struct {
	conf *core.Config
	db   *sql.DB
	svc  dayCloser
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  closeday -institution ID [-date YYYY-MM-DD] - record INASISTENCIA for students who never reached the gate")
	fmt.Fprintln(cli.out, "  token -user ID -role ROLE -institution ID - issue an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	closeDayCmd := flag.NewFlagSet("closeday", flag.ContinueOnError)
	closeDayCmd.SetOutput(cli.out)
	closeDayInst := closeDayCmd.Int64("institution", 0, "The institution whose gate day is closed.")
	closeDayDate := closeDayCmd.String("date", "", "The day to close (YYYY-MM-DD). Defaults to today.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenUser := tokenCmd.String("user", "", "The user ID the token is issued to.")
	tokenRole := tokenCmd.String("role", "", "One of admin, teacher, gate or guardian.")
	tokenInst := tokenCmd.Int64("institution", 0, "The user's institution.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(cli.db, args[2], args[3:]...)

	case "closeday":
		if err := closeDayCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *closeDayInst <= 0 {
			closeDayCmd.Usage()
			return errHelp
		}
		day := cli.svc.Today()
		if *closeDayDate != "" {
			d, err := attendance.ParseDate(*closeDayDate)
			if err != nil {
				return err
			}
			day = d
		}
		return cli.closeDay(*closeDayInst, day)

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		role := attendance.Role(*tokenRole)
		if *tokenUser == "" || !role.Valid() || *tokenInst <= 0 {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*tokenUser, role, *tokenInst)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) closeDay(institutionID int64, day attendance.Date) error {
	actor := attendance.Actor{UserID: "admin-cli", Role: attendance.RoleAdmin, InstitutionID: institutionID}
	n, err := cli.svc.CloseGateDay(context.Background(), actor, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s: %d student(s) recorded as %s\n", day, n, attendance.GateNoShow)
	return nil
}

func (cli *commandLine) issueToken(userID string, role attendance.Role, institutionID int64) error {
	token, err := echoapi.GenerateToken(echoapi.NewClaims(cli.conf, userID, role, institutionID), cli.conf.SecretKey)
	if err != nil {
		return err
	}
	// bare token when piped
	if isTerminalFunc(int(os.Stdout.Fd())) {
		fmt.Fprintf(cli.out, "Token for %s (%s), valid for %s:\n", userID, role, cli.conf.Server.JWTExpirationDelta)
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
