package sqlxrepos

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
)

// row structs mirror the tables; nullable columns use null types and are mapped to the models here.

type studentRow struct {
	ID            string      `db:"id"`
	InstitutionID int64       `db:"institution_id"`
	ClassroomID   string      `db:"classroom_id"`
	DNI           string      `db:"dni"`
	QRCode        null.String `db:"qr_code"`
	FirstName     string      `db:"first_name"`
	LastName      string      `db:"last_name"`
	IsActive      bool        `db:"is_active"`
}

func (r studentRow) model() attendance.Student {
	return attendance.Student{
		ID:            r.ID,
		InstitutionID: r.InstitutionID,
		ClassroomID:   r.ClassroomID,
		DNI:           r.DNI,
		QRCode:        r.QRCode.String,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		IsActive:      r.IsActive,
	}
}

type guardianRow struct {
	StudentID string      `db:"student_id"`
	ID        string      `db:"id"`
	Name      string      `db:"name"`
	Email     null.String `db:"email"`
	Titular   bool        `db:"is_titular"`
}

func (r guardianRow) model() attendance.Guardian {
	return attendance.Guardian{ID: r.ID, Name: r.Name, Email: r.Email.String, Titular: r.Titular}
}

type gateEventRow struct {
	ID            string          `db:"id"`
	StudentID     string          `db:"student_id"`
	InstitutionID int64           `db:"institution_id"`
	Day           attendance.Date `db:"day"`
	IngressAt     null.Time       `db:"ingress_at"`
	EgressAt      null.Time       `db:"egress_at"`
	State         string          `db:"gate_state"`
	IngressBy     null.String     `db:"ingress_by"`
	EgressBy      null.String     `db:"egress_by"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func newGateEventRow(ev attendance.GateEvent) gateEventRow {
	return gateEventRow{
		ID:            ev.ID,
		StudentID:     ev.StudentID,
		InstitutionID: ev.InstitutionID,
		Day:           ev.Date,
		IngressAt:     null.TimeFromPtr(ev.IngressAt),
		EgressAt:      null.TimeFromPtr(ev.EgressAt),
		State:         string(ev.State),
		IngressBy:     nullString(ev.IngressBy),
		EgressBy:      nullString(ev.EgressBy),
		UpdatedAt:     ev.UpdatedAt,
	}
}

func (r gateEventRow) model() attendance.GateEvent {
	return attendance.GateEvent{
		ID:            r.ID,
		StudentID:     r.StudentID,
		InstitutionID: r.InstitutionID,
		Date:          r.Day,
		IngressAt:     utcPtr(r.IngressAt),
		EgressAt:      utcPtr(r.EgressAt),
		State:         attendance.GateState(r.State),
		IngressBy:     r.IngressBy.String,
		EgressBy:      r.EgressBy.String,
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type recordRow struct {
	ID           string          `db:"id"`
	StudentID    string          `db:"student_id"`
	Day          attendance.Date `db:"day"`
	Session      string          `db:"session"`
	Status       string          `db:"status"`
	Note         string          `db:"note"`
	EntryTime    null.Time       `db:"entry_time"`
	RegisteredBy string          `db:"registered_by"`
	RegisteredAt time.Time       `db:"registered_at"`
	UpdatedBy    string          `db:"updated_by"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func newRecordRow(rec attendance.ClassroomRecord) recordRow {
	return recordRow{
		ID:           rec.ID,
		StudentID:    rec.StudentID,
		Day:          rec.Date,
		Session:      rec.Session,
		Status:       string(rec.Status),
		Note:         rec.Note,
		EntryTime:    null.TimeFromPtr(rec.EntryTime),
		RegisteredBy: rec.RegisteredBy,
		RegisteredAt: rec.RegisteredAt,
		UpdatedBy:    rec.UpdatedBy,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (r recordRow) model() attendance.ClassroomRecord {
	return attendance.ClassroomRecord{
		ID:           r.ID,
		StudentID:    r.StudentID,
		Date:         r.Day,
		Session:      r.Session,
		Status:       attendance.Status(r.Status),
		Note:         r.Note,
		EntryTime:    utcPtr(r.EntryTime),
		RegisteredBy: r.RegisteredBy,
		RegisteredAt: r.RegisteredAt.UTC(),
		UpdatedBy:    r.UpdatedBy,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type statusChangeRow struct {
	ID             string          `db:"id"`
	RecordID       string          `db:"record_id"`
	StudentID      string          `db:"student_id"`
	Day            attendance.Date `db:"day"`
	PreviousStatus null.String     `db:"previous_status"`
	NewStatus      string          `db:"new_status"`
	Actor          string          `db:"actor"`
	Reason         string          `db:"reason"`
	ChangedAt      time.Time       `db:"changed_at"`
}

func (r statusChangeRow) model() attendance.StatusChange {
	return attendance.StatusChange{
		ID:             r.ID,
		RecordID:       r.RecordID,
		StudentID:      r.StudentID,
		Date:           r.Day,
		PreviousStatus: attendance.Status(r.PreviousStatus.String),
		NewStatus:      attendance.Status(r.NewStatus),
		Actor:          r.Actor,
		Reason:         r.Reason,
		ChangedAt:      r.ChangedAt.UTC(),
	}
}

type evasionRow struct {
	ID          string          `db:"id"`
	StudentID   string          `db:"student_id"`
	Day         attendance.Date `db:"day"`
	ClassroomID string          `db:"classroom_id"`
	GateEventID string          `db:"gate_event_id"`
	IngressAt   time.Time       `db:"ingress_at"`
	ReportedBy  string          `db:"reported_by"`
	ReportedAt  time.Time       `db:"reported_at"`
}

func (r evasionRow) model() attendance.EvasionIncident {
	return attendance.EvasionIncident{
		ID:          r.ID,
		StudentID:   r.StudentID,
		Date:        r.Day,
		ClassroomID: r.ClassroomID,
		GateEventID: r.GateEventID,
		IngressAt:   r.IngressAt.UTC(),
		ReportedBy:  r.ReportedBy,
		ReportedAt:  r.ReportedAt.UTC(),
	}
}

type withdrawalRow struct {
	ID               string          `db:"id"`
	StudentID        string          `db:"student_id"`
	InstitutionID    int64           `db:"institution_id"`
	Day              attendance.Date `db:"day"`
	PickupTime       core.ClockTime  `db:"pickup_time"`
	Reason           string          `db:"reason"`
	Note             string          `db:"note"`
	RequestedBy      string          `db:"requested_by"`
	PickupGuardianID null.String     `db:"pickup_guardian_id"`
	State            string          `db:"state"`
	ResolvedBy       null.String     `db:"resolved_by"`
	ResolvedAt       null.Time       `db:"resolved_at"`
	Observations     string          `db:"observations"`
	CreatedAt        time.Time       `db:"created_at"`
}

func newWithdrawalRow(req attendance.WithdrawalRequest) withdrawalRow {
	return withdrawalRow{
		ID:               req.ID,
		StudentID:        req.StudentID,
		InstitutionID:    req.InstitutionID,
		Day:              req.Date,
		PickupTime:       req.Time,
		Reason:           string(req.Reason),
		Note:             req.Note,
		RequestedBy:      req.RequestedBy,
		PickupGuardianID: nullString(req.PickupGuardianID),
		State:            string(req.State),
		ResolvedBy:       nullString(req.ResolvedBy),
		ResolvedAt:       null.TimeFromPtr(req.ResolvedAt),
		Observations:     req.Observations,
		CreatedAt:        req.CreatedAt,
	}
}

func (r withdrawalRow) model() attendance.WithdrawalRequest {
	return attendance.WithdrawalRequest{
		ID:               r.ID,
		StudentID:        r.StudentID,
		InstitutionID:    r.InstitutionID,
		Date:             r.Day,
		Time:             r.PickupTime,
		Reason:           attendance.ReasonCategory(r.Reason),
		Note:             r.Note,
		RequestedBy:      r.RequestedBy,
		PickupGuardianID: r.PickupGuardianID.String,
		State:            attendance.WithdrawalState(r.State),
		ResolvedBy:       r.ResolvedBy.String,
		ResolvedAt:       utcPtr(r.ResolvedAt),
		Observations:     r.Observations,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

type justificationRow struct {
	ID            string          `db:"id"`
	StudentID     string          `db:"student_id"`
	InstitutionID int64           `db:"institution_id"`
	DateFrom      attendance.Date `db:"date_from"`
	DateTo        attendance.Date `db:"date_to"`
	DocumentRef   string          `db:"document_ref"`
	Reason        string          `db:"reason"`
	State         string          `db:"state"`
	SubmittedBy   string          `db:"submitted_by"`
	SubmittedAt   time.Time       `db:"submitted_at"`
	ReviewerID    null.String     `db:"reviewer_id"`
	ReviewedAt    null.Time       `db:"reviewed_at"`
	Observations  string          `db:"observations"`
}

func newJustificationRow(req attendance.JustificationRequest) justificationRow {
	return justificationRow{
		ID:            req.ID,
		StudentID:     req.StudentID,
		InstitutionID: req.InstitutionID,
		DateFrom:      req.From,
		DateTo:        req.To,
		DocumentRef:   req.DocumentRef,
		Reason:        req.Reason,
		State:         string(req.State),
		SubmittedBy:   req.SubmittedBy,
		SubmittedAt:   req.SubmittedAt,
		ReviewerID:    nullString(req.ReviewerID),
		ReviewedAt:    null.TimeFromPtr(req.ReviewedAt),
		Observations:  req.Observations,
	}
}

func (r justificationRow) model() attendance.JustificationRequest {
	return attendance.JustificationRequest{
		ID:            r.ID,
		StudentID:     r.StudentID,
		InstitutionID: r.InstitutionID,
		From:          r.DateFrom,
		To:            r.DateTo,
		DocumentRef:   r.DocumentRef,
		Reason:        r.Reason,
		State:         attendance.JustificationState(r.State),
		SubmittedBy:   r.SubmittedBy,
		SubmittedAt:   r.SubmittedAt.UTC(),
		ReviewerID:    r.ReviewerID.String,
		ReviewedAt:    utcPtr(r.ReviewedAt),
		Observations:  r.Observations,
	}
}

type appliedRow struct {
	ID              string    `db:"id"`
	RecordID        string    `db:"record_id"`
	JustificationID string    `db:"justification_id"`
	PreviousStatus  string    `db:"previous_status"`
	AppliedBy       string    `db:"applied_by"`
	AppliedAt       time.Time `db:"applied_at"`
}

func (r appliedRow) model() attendance.AppliedJustification {
	return attendance.AppliedJustification{
		ID:              r.ID,
		RecordID:        r.RecordID,
		JustificationID: r.JustificationID,
		PreviousStatus:  attendance.Status(r.PreviousStatus),
		AppliedBy:       r.AppliedBy,
		AppliedAt:       r.AppliedAt.UTC(),
	}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
