package dummydb

import (
	"context"
	"sync"

	"github.com/trezcool/asistencia/core/attendance"
)

type (
	// DB is an in-memory attendance store for development and tests.
	// Units of work are serialized; each one runs on a copy swapped in on success.
	DB struct {
		mu     sync.Mutex
		tables *tables
	}

	tables struct {
		students        map[string]attendance.Student
		gateEvents      map[string]attendance.GateEvent // by gateKey
		records         map[string]attendance.ClassroomRecord
		statusChanges   []attendance.StatusChange
		incidents       []attendance.EvasionIncident
		withdrawals     map[string]attendance.WithdrawalRequest
		justifications  map[string]attendance.JustificationRequest
		appliedJustifis map[string]attendance.AppliedJustification // by appliedKey
	}
)

var _ attendance.Store = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{tables: &tables{
		students:        make(map[string]attendance.Student),
		gateEvents:      make(map[string]attendance.GateEvent),
		records:         make(map[string]attendance.ClassroomRecord),
		withdrawals:     make(map[string]attendance.WithdrawalRequest),
		justifications:  make(map[string]attendance.JustificationRequest),
		appliedJustifis: make(map[string]attendance.AppliedJustification),
	}}
}

func (db *DB) RunInTx(ctx context.Context, fn func(repo attendance.Repository) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := db.tables.clone()
	if err := fn(&repository{t: work}); err != nil {
		return err
	}
	db.tables = work
	return nil
}

// AddStudent seeds a student, as the enrollment subsystem would.
func (db *DB) AddStudent(st attendance.Student) {
	db.mu.Lock()
	defer db.mu.Unlock()
	st.Guardians = append([]attendance.Guardian(nil), st.Guardians...)
	db.tables.students[st.ID] = st
}

func (t *tables) clone() *tables {
	c := &tables{
		students:        make(map[string]attendance.Student, len(t.students)),
		gateEvents:      make(map[string]attendance.GateEvent, len(t.gateEvents)),
		records:         make(map[string]attendance.ClassroomRecord, len(t.records)),
		statusChanges:   append([]attendance.StatusChange(nil), t.statusChanges...),
		incidents:       append([]attendance.EvasionIncident(nil), t.incidents...),
		withdrawals:     make(map[string]attendance.WithdrawalRequest, len(t.withdrawals)),
		justifications:  make(map[string]attendance.JustificationRequest, len(t.justifications)),
		appliedJustifis: make(map[string]attendance.AppliedJustification, len(t.appliedJustifis)),
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.gateEvents {
		c.gateEvents[k] = v
	}
	for k, v := range t.records {
		c.records[k] = v
	}
	for k, v := range t.withdrawals {
		c.withdrawals[k] = v
	}
	for k, v := range t.justifications {
		c.justifications[k] = v
	}
	for k, v := range t.appliedJustifis {
		c.appliedJustifis[k] = v
	}
	return c
}
