package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

type repository struct {
	t *tables
}

var _ attendance.Repository = (*repository)(nil) // interface compliance check

func gateKey(studentID string, day attendance.Date) string {
	return studentID + "|" + day.String()
}

func recordKey(studentID string, day attendance.Date, session string) string {
	return studentID + "|" + day.String() + "|" + session
}

func appliedKey(recordID, justificationID string) string {
	return recordID + "|" + justificationID
}

func inRange(d, from, to attendance.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

// Students

func (repo *repository) GetStudent(_ context.Context, id string) (attendance.Student, error) {
	if st, ok := repo.t.students[id]; ok {
		return st, nil
	}
	return attendance.Student{}, attendance.ErrStudentNotFound
}

func (repo *repository) GetStudentByIdentifier(_ context.Context, institutionID int64, identifier string) (attendance.Student, error) {
	var byDNI *attendance.Student
	for _, st := range repo.t.students {
		if st.InstitutionID != institutionID || !st.IsActive {
			continue
		}
		// a QR match wins over a DNI match
		if st.QRCode == identifier {
			return st, nil
		}
		if st.DNI == identifier && byDNI == nil {
			st := st
			byDNI = &st
		}
	}
	if byDNI != nil {
		return *byDNI, nil
	}
	return attendance.Student{}, attendance.ErrStudentNotFound
}

func (repo *repository) QueryStudents(_ context.Context, institutionID int64, classroomID string) ([]attendance.Student, error) {
	var students []attendance.Student
	for _, st := range repo.t.students {
		if st.InstitutionID != institutionID || !st.IsActive {
			continue
		}
		if classroomID != "" && st.ClassroomID != classroomID {
			continue
		}
		students = append(students, st)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

// Gate ledger

func (repo *repository) GetGateEvent(_ context.Context, studentID string, day attendance.Date) (attendance.GateEvent, error) {
	if ev, ok := repo.t.gateEvents[gateKey(studentID, day)]; ok {
		return ev, nil
	}
	return attendance.GateEvent{}, attendance.ErrGateEventNotFound
}

func (repo *repository) CreateGateEvent(_ context.Context, ev attendance.GateEvent) (attendance.GateEvent, bool, error) {
	key := gateKey(ev.StudentID, ev.Date)
	if stored, ok := repo.t.gateEvents[key]; ok {
		return stored, false, nil
	}
	repo.t.gateEvents[key] = ev
	return ev, true, nil
}

func (repo *repository) UpdateGateEvent(_ context.Context, ev attendance.GateEvent) error {
	key := gateKey(ev.StudentID, ev.Date)
	if stored, ok := repo.t.gateEvents[key]; !ok || stored.ID != ev.ID {
		return attendance.ErrGateEventNotFound
	}
	repo.t.gateEvents[key] = ev
	return nil
}

func (repo *repository) QueryGateEvents(_ context.Context, filter attendance.GateFilter) ([]attendance.GateEvent, error) {
	states := make(map[attendance.GateState]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}

	var events []attendance.GateEvent
	for _, ev := range repo.t.gateEvents {
		if filter.InstitutionID != 0 && ev.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.StudentID != "" && ev.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassroomID != "" && repo.t.students[ev.StudentID].ClassroomID != filter.ClassroomID {
			continue
		}
		if !inRange(ev.Date, filter.From, filter.To) {
			continue
		}
		if len(states) > 0 && !states[ev.State] {
			continue
		}
		events = append(events, ev)
	}

	ordering := filter.Ordering
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "student_id", Ascending: true}}
	}
	sort.SliceStable(events, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareGateEvents(events[i], events[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func compareGateEvents(a, b attendance.GateEvent, field string) int {
	switch field {
	case "ingress_at":
		return compareTimes(a.IngressAt, b.IngressAt)
	case "egress_at":
		return compareTimes(a.EgressAt, b.EgressAt)
	case "gate_state":
		return compareStrings(string(a.State), string(b.State))
	case "student_id":
		return compareStrings(a.StudentID, b.StudentID)
	}
	return 0
}

// nil sorts last, as NULLs do in postgres ascending order
func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Classroom records

func (repo *repository) GetClassroomRecord(_ context.Context, studentID string, day attendance.Date, session string) (attendance.ClassroomRecord, error) {
	if rec, ok := repo.t.records[recordKey(studentID, day, session)]; ok {
		return rec, nil
	}
	return attendance.ClassroomRecord{}, attendance.ErrRecordNotFound
}

func (repo *repository) QueryClassroomRecords(_ context.Context, filter attendance.RecordFilter) ([]attendance.ClassroomRecord, error) {
	students := make(map[string]bool, len(filter.StudentIDs))
	for _, id := range filter.StudentIDs {
		students[id] = true
	}

	var records []attendance.ClassroomRecord
	for _, rec := range repo.t.records {
		if len(students) > 0 && !students[rec.StudentID] {
			continue
		}
		if filter.Session != nil && rec.Session != *filter.Session {
			continue
		}
		if !inRange(rec.Date, filter.From, filter.To) {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		if records[i].StudentID != records[j].StudentID {
			return records[i].StudentID < records[j].StudentID
		}
		return records[i].Session < records[j].Session
	})
	return records, nil
}

func (repo *repository) CreateClassroomRecord(_ context.Context, rec attendance.ClassroomRecord) (bool, error) {
	key := recordKey(rec.StudentID, rec.Date, rec.Session)
	if _, ok := repo.t.records[key]; ok {
		return false, nil
	}
	repo.t.records[key] = rec
	return true, nil
}

func (repo *repository) UpdateClassroomRecord(_ context.Context, rec attendance.ClassroomRecord) error {
	key := recordKey(rec.StudentID, rec.Date, rec.Session)
	if stored, ok := repo.t.records[key]; !ok || stored.ID != rec.ID {
		return attendance.ErrRecordNotFound
	}
	repo.t.records[key] = rec
	return nil
}

func (repo *repository) CreateStatusChange(_ context.Context, ch attendance.StatusChange) error {
	repo.t.statusChanges = append(repo.t.statusChanges, ch)
	return nil
}

func (repo *repository) QueryStatusChanges(_ context.Context, studentID string) ([]attendance.StatusChange, error) {
	var changes []attendance.StatusChange
	for _, ch := range repo.t.statusChanges {
		if ch.StudentID == studentID {
			changes = append(changes, ch)
		}
	}
	return changes, nil
}

func (repo *repository) CreateEvasionIncident(_ context.Context, inc attendance.EvasionIncident) error {
	repo.t.incidents = append(repo.t.incidents, inc)
	return nil
}

func (repo *repository) QueryEvasionIncidents(_ context.Context, studentID string, day attendance.Date) ([]attendance.EvasionIncident, error) {
	var incidents []attendance.EvasionIncident
	for _, inc := range repo.t.incidents {
		if (studentID == "" || inc.StudentID == studentID) && (day.IsZero() || inc.Date.Equal(day)) {
			incidents = append(incidents, inc)
		}
	}
	return incidents, nil
}

// Withdrawals

func (repo *repository) CreateWithdrawal(_ context.Context, req attendance.WithdrawalRequest) error {
	repo.t.withdrawals[req.ID] = req
	return nil
}

func (repo *repository) GetWithdrawal(_ context.Context, id string) (attendance.WithdrawalRequest, error) {
	if req, ok := repo.t.withdrawals[id]; ok {
		return req, nil
	}
	return attendance.WithdrawalRequest{}, attendance.ErrWithdrawalNotFound
}

func (repo *repository) UpdateWithdrawal(_ context.Context, req attendance.WithdrawalRequest) error {
	if _, ok := repo.t.withdrawals[req.ID]; !ok {
		return attendance.ErrWithdrawalNotFound
	}
	repo.t.withdrawals[req.ID] = req
	return nil
}

func (repo *repository) QueryWithdrawals(_ context.Context, filter attendance.WithdrawalFilter) ([]attendance.WithdrawalRequest, error) {
	states := make(map[attendance.WithdrawalState]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}

	var reqs []attendance.WithdrawalRequest
	for _, req := range repo.t.withdrawals {
		if filter.InstitutionID != 0 && req.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.StudentID != "" && req.StudentID != filter.StudentID {
			continue
		}
		if !filter.Date.IsZero() && !req.Date.Equal(filter.Date) {
			continue
		}
		if len(states) > 0 && !states[req.State] {
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].CreatedAt.Before(reqs[j].CreatedAt) })
	return reqs, nil
}

// Justifications

func (repo *repository) CreateJustification(_ context.Context, req attendance.JustificationRequest) error {
	repo.t.justifications[req.ID] = req
	return nil
}

func (repo *repository) GetJustification(_ context.Context, id string) (attendance.JustificationRequest, error) {
	if req, ok := repo.t.justifications[id]; ok {
		return req, nil
	}
	return attendance.JustificationRequest{}, attendance.ErrJustificationNotFound
}

func (repo *repository) UpdateJustification(_ context.Context, req attendance.JustificationRequest) error {
	if _, ok := repo.t.justifications[req.ID]; !ok {
		return attendance.ErrJustificationNotFound
	}
	repo.t.justifications[req.ID] = req
	return nil
}

func (repo *repository) QueryJustifications(_ context.Context, filter attendance.JustificationFilter) ([]attendance.JustificationRequest, error) {
	states := make(map[attendance.JustificationState]bool, len(filter.States))
	for _, s := range filter.States {
		states[s] = true
	}

	var reqs []attendance.JustificationRequest
	for _, req := range repo.t.justifications {
		if filter.InstitutionID != 0 && req.InstitutionID != filter.InstitutionID {
			continue
		}
		if filter.StudentID != "" && req.StudentID != filter.StudentID {
			continue
		}
		if !filter.Covering.IsZero() && !req.Covers(filter.Covering) {
			continue
		}
		if len(states) > 0 && !states[req.State] {
			continue
		}
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].SubmittedAt.Before(reqs[j].SubmittedAt) })
	return reqs, nil
}

func (repo *repository) CreateAppliedJustification(_ context.Context, aj attendance.AppliedJustification) (bool, error) {
	key := appliedKey(aj.RecordID, aj.JustificationID)
	if _, ok := repo.t.appliedJustifis[key]; ok {
		return false, nil
	}
	repo.t.appliedJustifis[key] = aj
	return true, nil
}

func (repo *repository) QueryAppliedJustifications(_ context.Context, justificationID string) ([]attendance.AppliedJustification, error) {
	var applied []attendance.AppliedJustification
	for _, aj := range repo.t.appliedJustifis {
		if aj.JustificationID == justificationID {
			applied = append(applied, aj)
		}
	}
	sort.Slice(applied, func(i, j int) bool { return applied[i].AppliedAt.Before(applied[j].AppliedAt) })
	return applied, nil
}
