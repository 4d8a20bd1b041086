package attendance

import (
	"context"

	"github.com/trezcool/asistencia/core"
)

type (
	// Store runs each operation as one unit of work: fn's writes are committed together,
	// or discarded when fn returns an error.
	Store interface {
		RunInTx(ctx context.Context, fn func(repo Repository) error) error
	}

	Repository interface {
		// students (read-only)
		GetStudent(ctx context.Context, id string) (Student, error)
		// GetStudentByIdentifier finds an active student of the institution by QR code or DNI.
		GetStudentByIdentifier(ctx context.Context, institutionID int64, identifier string) (Student, error)
		// QueryStudents returns the active students of the institution, optionally of one classroom.
		QueryStudents(ctx context.Context, institutionID int64, classroomID string) ([]Student, error)

		// gate ledger
		// GetGateEvent locks the row until the unit of work ends.
		GetGateEvent(ctx context.Context, studentID string, day Date) (GateEvent, error)
		// CreateGateEvent returns false (and the stored row) when the student already has a row that day.
		CreateGateEvent(ctx context.Context, ev GateEvent) (GateEvent, bool, error)
		UpdateGateEvent(ctx context.Context, ev GateEvent) error
		QueryGateEvents(ctx context.Context, filter GateFilter) ([]GateEvent, error)

		// classroom records
		GetClassroomRecord(ctx context.Context, studentID string, day Date, session string) (ClassroomRecord, error)
		QueryClassroomRecords(ctx context.Context, filter RecordFilter) ([]ClassroomRecord, error)
		// CreateClassroomRecord returns false, writing nothing, when the student already has a record
		// for that day and session.
		CreateClassroomRecord(ctx context.Context, rec ClassroomRecord) (bool, error)
		UpdateClassroomRecord(ctx context.Context, rec ClassroomRecord) error
		CreateStatusChange(ctx context.Context, ch StatusChange) error
		QueryStatusChanges(ctx context.Context, studentID string) ([]StatusChange, error)
		CreateEvasionIncident(ctx context.Context, inc EvasionIncident) error
		QueryEvasionIncidents(ctx context.Context, studentID string, day Date) ([]EvasionIncident, error)

		// withdrawals
		CreateWithdrawal(ctx context.Context, req WithdrawalRequest) error
		// GetWithdrawal locks the row until the unit of work ends.
		GetWithdrawal(ctx context.Context, id string) (WithdrawalRequest, error)
		UpdateWithdrawal(ctx context.Context, req WithdrawalRequest) error
		QueryWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]WithdrawalRequest, error)

		// justifications
		CreateJustification(ctx context.Context, req JustificationRequest) error
		// GetJustification locks the row until the unit of work ends.
		GetJustification(ctx context.Context, id string) (JustificationRequest, error)
		UpdateJustification(ctx context.Context, req JustificationRequest) error
		QueryJustifications(ctx context.Context, filter JustificationFilter) ([]JustificationRequest, error)
		// CreateAppliedJustification returns false when (RecordID, JustificationID) already exists.
		CreateAppliedJustification(ctx context.Context, aj AppliedJustification) (bool, error)
		QueryAppliedJustifications(ctx context.Context, justificationID string) ([]AppliedJustification, error)
	}

	// GateFilter applies AND operation on its non-zero fields.
	GateFilter struct {
		InstitutionID int64
		StudentID     string
		ClassroomID   string
		From, To      Date // inclusive
		States        []GateState
		Ordering      []core.DBOrdering
	}

	RecordFilter struct {
		StudentIDs []string
		From, To   Date // inclusive
		Session    *string
	}

	WithdrawalFilter struct {
		InstitutionID int64
		StudentID     string
		Date          Date
		States        []WithdrawalState
	}

	JustificationFilter struct {
		InstitutionID int64
		StudentID     string
		Covering      Date
		States        []JustificationState
	}
)

// gate events may be ordered by these fields
var gateOrderingFields = map[string]bool{
	"ingress_at": true,
	"egress_at":  true,
	"student_id": true,
	"gate_state": true,
}

// GateOrderingAllowed reports whether the gate events may be ordered by `field`.
func GateOrderingAllowed(field string) bool {
	return gateOrderingFields[field]
}
