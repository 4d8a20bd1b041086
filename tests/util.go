package testutil

import (
	"fmt"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	dummydb "github.com/trezcool/asistencia/storage/database/dummy"
)

const (
	InstitutionID      int64 = 1
	OtherInstitutionID int64 = 2
)

// Config returns a test configuration: Lima time, on time until 08:00, late until 08:30.
func Config(t *testing.T) *core.Config {
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		t.Fatalf("Config() failed: %v", err)
	}
	return &core.Config{
		Debug:            false,
		TestMode:         true,
		AppName:          "Asistencia",
		SecretKey:        "test-secret",
		Env:              "TEST",
		Build:            "test",
		DefaultFromEmail: mail.Address{Name: "Asistencia", Address: "noreply@test.pe"},
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Attendance: core.AttendanceConfig{
			Location:     loc,
			OnTimeCutoff: core.ClockTime{Hour: 8},
			LateCutoff:   core.ClockTime{Hour: 8, Minute: 30},
		},
	}
}

// Validator returns a validator with every custom tag and translation registered.
func Validator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

// Guardian returns a new guardian; the titular one may resolve withdrawals.
func Guardian(name string, titular bool) attendance.Guardian {
	return attendance.Guardian{
		ID:      uuid.New().String(),
		Name:    name,
		Email:   fmt.Sprintf("%s@test.pe", name),
		Titular: titular,
	}
}

// CreateStudent seeds an active student of the institution.
func CreateStudent(db *dummydb.DB, institutionID int64, classroomID, dni, lastName string, guardians ...attendance.Guardian) attendance.Student {
	st := attendance.Student{
		ID:            uuid.New().String(),
		InstitutionID: institutionID,
		ClassroomID:   classroomID,
		DNI:           dni,
		QRCode:        "QR-" + dni,
		FirstName:     "Alumno",
		LastName:      lastName,
		IsActive:      true,
		Guardians:     guardians,
	}
	db.AddStudent(st)
	return st
}

// Logger is a quiet core.Logger recording its entries.
type Logger struct {
	mu      sync.Mutex
	Entries []LogEntry
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Count returns how many entries were logged at `level`.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("fatal", msg, args) }
