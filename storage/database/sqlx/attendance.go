package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

const (
	studentColumns       = `id, institution_id, classroom_id, dni, qr_code, first_name, last_name, is_active`
	gateEventColumns     = `id, student_id, institution_id, day, ingress_at, egress_at, gate_state, ingress_by, egress_by, updated_at`
	recordColumns        = `id, student_id, day, session, status, note, entry_time, registered_by, registered_at, updated_by, updated_at`
	statusChangeColumns  = `id, record_id, student_id, day, previous_status, new_status, actor, reason, changed_at`
	evasionColumns       = `id, student_id, day, classroom_id, gate_event_id, ingress_at, reported_by, reported_at`
	withdrawalColumns    = `id, student_id, institution_id, day, pickup_time, reason, note, requested_by, pickup_guardian_id, state, resolved_by, resolved_at, observations, created_at`
	justificationColumns = `id, student_id, institution_id, date_from, date_to, document_ref, reason, state, submitted_by, submitted_at, reviewer_id, reviewed_at, observations`
	appliedColumns       = `id, record_id, justification_id, previous_status, applied_by, applied_at`
)

type repository struct {
	db core.DBExecutor
}

var _ attendance.Repository = (*repository)(nil) // interface compliance check

// NewRepository returns a repository running outside of any unit of work.
func NewRepository(db core.DBExecutor) attendance.Repository {
	return &repository{db: db}
}

func (repo *repository) get(ctx context.Context, dest interface{}, notFound error, query string, args ...interface{}) error {
	err := repo.db.GetContext(ctx, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// Students

func (repo *repository) GetStudent(ctx context.Context, id string) (attendance.Student, error) {
	var row studentRow
	if err := repo.get(ctx, &row, attendance.ErrStudentNotFound,
		`SELECT `+studentColumns+` FROM student WHERE id = $1`, id); err != nil {
		return attendance.Student{}, err
	}
	students, err := repo.withGuardians(ctx, []studentRow{row})
	if err != nil {
		return attendance.Student{}, err
	}
	return students[0], nil
}

func (repo *repository) GetStudentByIdentifier(ctx context.Context, institutionID int64, identifier string) (attendance.Student, error) {
	var row studentRow
	if err := repo.get(ctx, &row, attendance.ErrStudentNotFound,
		`SELECT `+studentColumns+` FROM student
		WHERE institution_id = $1 AND is_active AND (qr_code = $2 OR dni = $2)
		ORDER BY (qr_code = $2) DESC LIMIT 1`, institutionID, identifier); err != nil {
		return attendance.Student{}, err
	}
	students, err := repo.withGuardians(ctx, []studentRow{row})
	if err != nil {
		return attendance.Student{}, err
	}
	return students[0], nil
}

func (repo *repository) QueryStudents(ctx context.Context, institutionID int64, classroomID string) ([]attendance.Student, error) {
	cond := new(conditions)
	cond.add("institution_id = $%d", institutionID)
	cond.clauses = append(cond.clauses, "is_active")
	if classroomID != "" {
		cond.add("classroom_id = $%d", classroomID)
	}

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+studentColumns+` FROM student`+cond.where()+` ORDER BY last_name, id`, cond.args...); err != nil {
		return nil, err
	}
	return repo.withGuardians(ctx, rows)
}

func (repo *repository) withGuardians(ctx context.Context, rows []studentRow) ([]attendance.Student, error) {
	students := make([]attendance.Student, 0, len(rows))
	if len(rows) == 0 {
		return students, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	var guardians []guardianRow
	if err := repo.db.SelectContext(ctx, &guardians,
		`SELECT sg.student_id, g.id, g.name, g.email, sg.is_titular
		FROM student_guardian sg JOIN guardian g ON g.id = sg.guardian_id
		WHERE sg.student_id = ANY($1)
		ORDER BY sg.is_titular DESC, g.name`, pq.Array(ids)); err != nil {
		return nil, errors.Wrap(err, "querying guardians")
	}
	byStudent := make(map[string][]attendance.Guardian, len(rows))
	for _, g := range guardians {
		byStudent[g.StudentID] = append(byStudent[g.StudentID], g.model())
	}
	for _, r := range rows {
		st := r.model()
		st.Guardians = byStudent[r.ID]
		students = append(students, st)
	}
	return students, nil
}

// Gate ledger

func (repo *repository) GetGateEvent(ctx context.Context, studentID string, day attendance.Date) (attendance.GateEvent, error) {
	var row gateEventRow
	if err := repo.get(ctx, &row, attendance.ErrGateEventNotFound,
		`SELECT `+gateEventColumns+` FROM gate_event WHERE student_id = $1 AND day = $2 FOR UPDATE`,
		studentID, day); err != nil {
		return attendance.GateEvent{}, err
	}
	return row.model(), nil
}

func (repo *repository) CreateGateEvent(ctx context.Context, ev attendance.GateEvent) (attendance.GateEvent, bool, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`INSERT INTO gate_event (`+gateEventColumns+`)
		VALUES (:id, :student_id, :institution_id, :day, :ingress_at, :egress_at, :gate_state, :ingress_by, :egress_by, :updated_at)
		ON CONFLICT (student_id, day) DO NOTHING`, newGateEventRow(ev))
	if err != nil {
		return attendance.GateEvent{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.GateEvent{}, false, err
	}
	if n == 1 {
		return ev, true, nil
	}
	stored, err := repo.GetGateEvent(ctx, ev.StudentID, ev.Date)
	return stored, false, err
}

func (repo *repository) UpdateGateEvent(ctx context.Context, ev attendance.GateEvent) error {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`UPDATE gate_event SET ingress_at = :ingress_at, egress_at = :egress_at, gate_state = :gate_state,
		ingress_by = :ingress_by, egress_by = :egress_by, updated_at = :updated_at
		WHERE id = :id`, newGateEventRow(ev))
	return expectOne(res, err, attendance.ErrGateEventNotFound)
}

func (repo *repository) QueryGateEvents(ctx context.Context, filter attendance.GateFilter) ([]attendance.GateEvent, error) {
	cond := new(conditions)
	if filter.InstitutionID != 0 {
		cond.add("institution_id = $%d", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		cond.add("student_id = $%d", filter.StudentID)
	}
	if filter.ClassroomID != "" {
		cond.add("student_id IN (SELECT id FROM student WHERE classroom_id = $%d)", filter.ClassroomID)
	}
	if !filter.From.IsZero() {
		cond.add("day >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		cond.add("day <= $%d", filter.To)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		cond.add("gate_state = ANY($%d)", pq.Array(states))
	}

	var rows []gateEventRow
	q := `SELECT ` + gateEventColumns + ` FROM gate_event` + cond.where() +
		orderBy(filter.Ordering, attendance.GateOrderingAllowed, "student_id ASC, day ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, cond.args...); err != nil {
		return nil, err
	}
	events := make([]attendance.GateEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.model())
	}
	return events, nil
}

// Classroom records

func (repo *repository) GetClassroomRecord(ctx context.Context, studentID string, day attendance.Date, session string) (attendance.ClassroomRecord, error) {
	var row recordRow
	if err := repo.get(ctx, &row, attendance.ErrRecordNotFound,
		`SELECT `+recordColumns+` FROM classroom_record WHERE student_id = $1 AND day = $2 AND session = $3 FOR UPDATE`,
		studentID, day, session); err != nil {
		return attendance.ClassroomRecord{}, err
	}
	return row.model(), nil
}

func (repo *repository) QueryClassroomRecords(ctx context.Context, filter attendance.RecordFilter) ([]attendance.ClassroomRecord, error) {
	cond := new(conditions)
	if len(filter.StudentIDs) > 0 {
		cond.add("student_id = ANY($%d)", pq.Array(filter.StudentIDs))
	}
	if filter.Session != nil {
		cond.add("session = $%d", *filter.Session)
	}
	if !filter.From.IsZero() {
		cond.add("day >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		cond.add("day <= $%d", filter.To)
	}

	var rows []recordRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+recordColumns+` FROM classroom_record`+cond.where()+` ORDER BY day, student_id, session`,
		cond.args...); err != nil {
		return nil, err
	}
	records := make([]attendance.ClassroomRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.model())
	}
	return records, nil
}

func (repo *repository) CreateClassroomRecord(ctx context.Context, rec attendance.ClassroomRecord) (bool, error) {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`INSERT INTO classroom_record (`+recordColumns+`)
		VALUES (:id, :student_id, :day, :session, :status, :note, :entry_time, :registered_by, :registered_at, :updated_by, :updated_at)
		ON CONFLICT (student_id, day, session) DO NOTHING`,
		newRecordRow(rec))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *repository) UpdateClassroomRecord(ctx context.Context, rec attendance.ClassroomRecord) error {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`UPDATE classroom_record SET status = :status, note = :note, entry_time = :entry_time,
		updated_by = :updated_by, updated_at = :updated_at
		WHERE id = :id`, newRecordRow(rec))
	return expectOne(res, err, attendance.ErrRecordNotFound)
}

func (repo *repository) CreateStatusChange(ctx context.Context, ch attendance.StatusChange) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO status_change (`+statusChangeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ch.ID, ch.RecordID, ch.StudentID, ch.Date, nullString(string(ch.PreviousStatus)), string(ch.NewStatus),
		ch.Actor, ch.Reason, ch.ChangedAt)
	return err
}

func (repo *repository) QueryStatusChanges(ctx context.Context, studentID string) ([]attendance.StatusChange, error) {
	var rows []statusChangeRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+statusChangeColumns+` FROM status_change WHERE student_id = $1 ORDER BY changed_at, id`,
		studentID); err != nil {
		return nil, err
	}
	changes := make([]attendance.StatusChange, 0, len(rows))
	for _, r := range rows {
		changes = append(changes, r.model())
	}
	return changes, nil
}

func (repo *repository) CreateEvasionIncident(ctx context.Context, inc attendance.EvasionIncident) error {
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO evasion_incident (`+evasionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inc.ID, inc.StudentID, inc.Date, inc.ClassroomID, inc.GateEventID, inc.IngressAt, inc.ReportedBy, inc.ReportedAt)
	return err
}

func (repo *repository) QueryEvasionIncidents(ctx context.Context, studentID string, day attendance.Date) ([]attendance.EvasionIncident, error) {
	cond := new(conditions)
	if studentID != "" {
		cond.add("student_id = $%d", studentID)
	}
	if !day.IsZero() {
		cond.add("day = $%d", day)
	}
	var rows []evasionRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+evasionColumns+` FROM evasion_incident`+cond.where()+` ORDER BY reported_at`, cond.args...); err != nil {
		return nil, err
	}
	incidents := make([]attendance.EvasionIncident, 0, len(rows))
	for _, r := range rows {
		incidents = append(incidents, r.model())
	}
	return incidents, nil
}

// Withdrawals

func (repo *repository) CreateWithdrawal(ctx context.Context, req attendance.WithdrawalRequest) error {
	_, err := sqlx.NamedExecContext(ctx, repo.db,
		`INSERT INTO withdrawal_request (`+withdrawalColumns+`)
		VALUES (:id, :student_id, :institution_id, :day, :pickup_time, :reason, :note, :requested_by,
		:pickup_guardian_id, :state, :resolved_by, :resolved_at, :observations, :created_at)`,
		newWithdrawalRow(req))
	return err
}

func (repo *repository) GetWithdrawal(ctx context.Context, id string) (attendance.WithdrawalRequest, error) {
	var row withdrawalRow
	if err := repo.get(ctx, &row, attendance.ErrWithdrawalNotFound,
		`SELECT `+withdrawalColumns+` FROM withdrawal_request WHERE id = $1 FOR UPDATE`, id); err != nil {
		return attendance.WithdrawalRequest{}, err
	}
	return row.model(), nil
}

func (repo *repository) UpdateWithdrawal(ctx context.Context, req attendance.WithdrawalRequest) error {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`UPDATE withdrawal_request SET state = :state, resolved_by = :resolved_by, resolved_at = :resolved_at,
		observations = :observations
		WHERE id = :id`, newWithdrawalRow(req))
	return expectOne(res, err, attendance.ErrWithdrawalNotFound)
}

func (repo *repository) QueryWithdrawals(ctx context.Context, filter attendance.WithdrawalFilter) ([]attendance.WithdrawalRequest, error) {
	cond := new(conditions)
	if filter.InstitutionID != 0 {
		cond.add("institution_id = $%d", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		cond.add("student_id = $%d", filter.StudentID)
	}
	if !filter.Date.IsZero() {
		cond.add("day = $%d", filter.Date)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		cond.add("state = ANY($%d)", pq.Array(states))
	}

	var rows []withdrawalRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+withdrawalColumns+` FROM withdrawal_request`+cond.where()+` ORDER BY created_at`, cond.args...); err != nil {
		return nil, err
	}
	reqs := make([]attendance.WithdrawalRequest, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.model())
	}
	return reqs, nil
}

// Justifications

func (repo *repository) CreateJustification(ctx context.Context, req attendance.JustificationRequest) error {
	_, err := sqlx.NamedExecContext(ctx, repo.db,
		`INSERT INTO justification_request (`+justificationColumns+`)
		VALUES (:id, :student_id, :institution_id, :date_from, :date_to, :document_ref, :reason, :state,
		:submitted_by, :submitted_at, :reviewer_id, :reviewed_at, :observations)`,
		newJustificationRow(req))
	return err
}

func (repo *repository) GetJustification(ctx context.Context, id string) (attendance.JustificationRequest, error) {
	var row justificationRow
	if err := repo.get(ctx, &row, attendance.ErrJustificationNotFound,
		`SELECT `+justificationColumns+` FROM justification_request WHERE id = $1 FOR UPDATE`, id); err != nil {
		return attendance.JustificationRequest{}, err
	}
	return row.model(), nil
}

func (repo *repository) UpdateJustification(ctx context.Context, req attendance.JustificationRequest) error {
	res, err := sqlx.NamedExecContext(ctx, repo.db,
		`UPDATE justification_request SET state = :state, reviewer_id = :reviewer_id, reviewed_at = :reviewed_at,
		observations = :observations
		WHERE id = :id`, newJustificationRow(req))
	return expectOne(res, err, attendance.ErrJustificationNotFound)
}

func (repo *repository) QueryJustifications(ctx context.Context, filter attendance.JustificationFilter) ([]attendance.JustificationRequest, error) {
	cond := new(conditions)
	if filter.InstitutionID != 0 {
		cond.add("institution_id = $%d", filter.InstitutionID)
	}
	if filter.StudentID != "" {
		cond.add("student_id = $%d", filter.StudentID)
	}
	if !filter.Covering.IsZero() {
		cond.add("$%d BETWEEN date_from AND date_to", filter.Covering)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		cond.add("state = ANY($%d)", pq.Array(states))
	}

	var rows []justificationRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+justificationColumns+` FROM justification_request`+cond.where()+` ORDER BY submitted_at`, cond.args...); err != nil {
		return nil, err
	}
	reqs := make([]attendance.JustificationRequest, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.model())
	}
	return reqs, nil
}

func (repo *repository) CreateAppliedJustification(ctx context.Context, aj attendance.AppliedJustification) (bool, error) {
	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO applied_justification (`+appliedColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id, justification_id) DO NOTHING`,
		aj.ID, aj.RecordID, aj.JustificationID, string(aj.PreviousStatus), aj.AppliedBy, aj.AppliedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *repository) QueryAppliedJustifications(ctx context.Context, justificationID string) ([]attendance.AppliedJustification, error) {
	var rows []appliedRow
	if err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+appliedColumns+` FROM applied_justification WHERE justification_id = $1 ORDER BY applied_at`,
		justificationID); err != nil {
		return nil, err
	}
	applied := make([]attendance.AppliedJustification, 0, len(rows))
	for _, r := range rows {
		applied = append(applied, r.model())
	}
	return applied, nil
}

func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
