package attendance

import (
	"strings"
	"time"

	"github.com/trezcool/asistencia/core"
)

type (
	// Actor is the authenticated caller of an operation.
	Actor struct {
		UserID        string `json:"user_id"`
		Role          Role   `json:"role"`
		InstitutionID int64  `json:"institution_id"`
	}

	Guardian struct {
		ID      string `json:"id" db:"id"`
		Name    string `json:"name" db:"name"`
		Email   string `json:"email,omitempty" db:"email"`
		Titular bool   `json:"titular" db:"is_titular"`
	}

	// Student is owned by the enrollment subsystem and only read here.
	Student struct {
		ID            string     `json:"id"`
		InstitutionID int64      `json:"institution_id"`
		ClassroomID   string     `json:"classroom_id"`
		DNI           string     `json:"dni"`
		QRCode        string     `json:"-"`
		FirstName     string     `json:"first_name"`
		LastName      string     `json:"last_name"`
		IsActive      bool       `json:"is_active"`
		Guardians     []Guardian `json:"guardians,omitempty"`
	}

	// GateEvent is the single gate row of a student for a day.
	GateEvent struct {
		ID            string     `json:"id"`
		StudentID     string     `json:"student_id"`
		InstitutionID int64      `json:"-"`
		Date          Date       `json:"date"`
		IngressAt     *time.Time `json:"ingress_at"`
		EgressAt      *time.Time `json:"egress_at"`
		State         GateState  `json:"gate_state"`
		IngressBy     string     `json:"-"`
		EgressBy      string     `json:"-"`
		UpdatedAt     time.Time  `json:"updated_at"`
	}

	// ClassroomRecord is the validated status of a student for a day (and optional class session).
	ClassroomRecord struct {
		ID           string     `json:"id"`
		StudentID    string     `json:"student_id"`
		Date         Date       `json:"date"`
		Session      string     `json:"session,omitempty"`
		Status       Status     `json:"status"`
		Note         string     `json:"note,omitempty"`
		EntryTime    *time.Time `json:"entry_time,omitempty"`
		RegisteredBy string     `json:"registered_by"`
		RegisteredAt time.Time  `json:"registered_at"`
		UpdatedBy    string     `json:"updated_by"`
		UpdatedAt    time.Time  `json:"updated_at"`
	}

	// StatusChange is an append-only history row. PreviousStatus is empty when the record was created.
	StatusChange struct {
		ID             string    `json:"id"`
		RecordID       string    `json:"record_id"`
		StudentID      string    `json:"student_id"`
		Date           Date      `json:"date"`
		PreviousStatus Status    `json:"previous_status,omitempty"`
		NewStatus      Status    `json:"new_status"`
		Actor          string    `json:"actor"`
		Reason         string    `json:"reason,omitempty"`
		ChangedAt      time.Time `json:"changed_at"`
	}

	EvasionIncident struct {
		ID          string    `json:"id"`
		StudentID   string    `json:"student_id"`
		Date        Date      `json:"date"`
		ClassroomID string    `json:"classroom_id"`
		GateEventID string    `json:"gate_event_id"`
		IngressAt   time.Time `json:"ingress_at"`
		ReportedBy  string    `json:"reported_by"`
		ReportedAt  time.Time `json:"reported_at"`
	}

	WithdrawalRequest struct {
		ID               string          `json:"id"`
		StudentID        string          `json:"student_id"`
		InstitutionID    int64           `json:"-"`
		Date             Date            `json:"date"`
		Time             core.ClockTime  `json:"time"`
		Reason           ReasonCategory  `json:"reason"`
		Note             string          `json:"note,omitempty"`
		RequestedBy      string          `json:"requested_by"`
		PickupGuardianID string          `json:"pickup_guardian_id,omitempty"`
		State            WithdrawalState `json:"state"`
		ResolvedBy       string          `json:"resolved_by,omitempty"`
		ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
		Observations     string          `json:"observations,omitempty"`
		CreatedAt        time.Time       `json:"created_at"`
	}

	JustificationRequest struct {
		ID            string             `json:"id"`
		StudentID     string             `json:"student_id"`
		InstitutionID int64              `json:"-"`
		From          Date               `json:"from"`
		To            Date               `json:"to"`
		DocumentRef   string             `json:"document_ref"`
		Reason        string             `json:"reason,omitempty"`
		State         JustificationState `json:"state"`
		SubmittedBy   string             `json:"submitted_by"`
		SubmittedAt   time.Time          `json:"submitted_at"`
		ReviewerID    string             `json:"reviewer_id,omitempty"`
		ReviewedAt    *time.Time         `json:"reviewed_at,omitempty"`
		Observations  string             `json:"observations,omitempty"`
	}

	// AppliedJustification proves which record a justification rewrote, and who did it.
	AppliedJustification struct {
		ID              string    `json:"id"`
		RecordID        string    `json:"record_id"`
		JustificationID string    `json:"justification_id"`
		PreviousStatus  Status    `json:"previous_status"`
		AppliedBy       string    `json:"applied_by"`
		AppliedAt       time.Time `json:"applied_at"`
	}
)

func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (s Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s Student) TitularGuardian() (Guardian, bool) {
	for _, g := range s.Guardians {
		if g.Titular {
			return g, true
		}
	}
	return Guardian{}, false
}

func (s Student) HasGuardian(id string) bool {
	for _, g := range s.Guardians {
		if g.ID == id {
			return true
		}
	}
	return false
}

func (e GateEvent) HasEntry() bool { return e.IngressAt != nil }

func (w WithdrawalRequest) IsActive() bool { return w.State == WithdrawalAuthorized }

func (j JustificationRequest) IsActive() bool { return j.State == JustificationApproved }

// Covers reports whether `d` lies in the justification's inclusive date range.
func (j JustificationRequest) Covers(d Date) bool {
	return d.Between(j.From, j.To)
}
