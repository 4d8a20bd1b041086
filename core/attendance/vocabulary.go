package attendance

import "github.com/pkg/errors"

// Status is the validated attendance status held by a ClassroomRecord.
type Status string

const (
	StatusPresent   Status = "PRESENTE"
	StatusLate      Status = "TARDANZA"
	StatusAbsent    Status = "AUSENTE"
	StatusJustified Status = "JUSTIFICADA"
	StatusWithdrawn Status = "RETIRADO"
)

// Precedence ranks the source of an attendance signal: when two sources disagree about a
// student's day, the higher one wins.
type Precedence int

const (
	PrecedenceDefault Precedence = iota // nothing recorded
	PrecedenceGate
	PrecedenceClassroom
	PrecedenceJustification
	PrecedenceWithdrawal
)

var precedenceNames = map[Precedence]string{
	PrecedenceDefault:       "default",
	PrecedenceGate:          "gate",
	PrecedenceClassroom:     "classroom",
	PrecedenceJustification: "justification",
	PrecedenceWithdrawal:    "withdrawal",
}

func (p Precedence) String() string {
	if name, ok := precedenceNames[p]; ok {
		return name
	}
	return "unknown"
}

func (p Precedence) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

type statusTraits struct {
	precedence            Precedence
	requiresJustification bool
	teacher               bool // may be set through classroom confirmation
}

var statuses = map[Status]statusTraits{
	StatusPresent:   {precedence: PrecedenceClassroom, teacher: true},
	StatusLate:      {precedence: PrecedenceClassroom, teacher: true},
	StatusAbsent:    {precedence: PrecedenceClassroom, teacher: true, requiresJustification: true},
	StatusJustified: {precedence: PrecedenceJustification},
	StatusWithdrawn: {precedence: PrecedenceWithdrawal},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", errors.Errorf("unknown attendance status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

func (s Status) Precedence() Precedence {
	return statuses[s].precedence
}

// RequiresJustification reports whether the status is an absence that a justification converts.
func (s Status) RequiresJustification() bool {
	return statuses[s].requiresJustification
}

// IsTeacherStatus reports whether a teacher may set the status when confirming attendance.
func (s Status) IsTeacherStatus() bool {
	return statuses[s].teacher
}

// Outranks reports whether `s` must not be overwritten by `other`.
func (s Status) Outranks(other Status) bool {
	return s.Precedence() > other.Precedence()
}

// GateState is the state of a student's GateEvent for a day.
type GateState string

const (
	GateEntered   GateState = "INGRESADO"
	GateLate      GateState = "TARDANZA"
	GateInClass   GateState = "EN_CLASE"
	GateEvasion   GateState = "EVASION"
	GateWithdrawn GateState = "RETIRADO"
	// GateAbsent is never written here; rows carrying it come from upstream gate systems or legacy data.
	GateAbsent    GateState = "AUSENTE"
	GateNoShow    GateState = "INASISTENCIA"
	GateJustified GateState = "JUSTIFICADO"
)

type gateTraits struct {
	suggestion            Status
	requiresJustification bool
}

var gateStates = map[GateState]gateTraits{
	GateEntered:   {suggestion: StatusPresent},
	GateLate:      {suggestion: StatusLate},
	GateInClass:   {suggestion: StatusPresent},
	GateEvasion:   {suggestion: StatusAbsent},
	GateWithdrawn: {suggestion: StatusWithdrawn},
	GateAbsent:    {suggestion: StatusAbsent, requiresJustification: true},
	GateNoShow:    {suggestion: StatusAbsent, requiresJustification: true},
	GateJustified: {suggestion: StatusJustified},
}

func (g GateState) Valid() bool {
	_, ok := gateStates[g]
	return ok
}

// Suggestion is the classroom status the gate state points to when no teacher decided yet.
func (g GateState) Suggestion() Status {
	if t, ok := gateStates[g]; ok {
		return t.suggestion
	}
	return StatusAbsent
}

func (g GateState) RequiresJustification() bool {
	return gateStates[g].requiresJustification
}

// canEnterClass reports whether the gate state may advance to EN_CLASE once a teacher confirms presence.
func (g GateState) canEnterClass() bool {
	return g == GateEntered || g == GateLate || g == GateEvasion
}

type GateAction string

const (
	GateActionIngress GateAction = "entrada"
	GateActionEgress  GateAction = "salida"
)

func (a GateAction) Valid() bool {
	return a == GateActionIngress || a == GateActionEgress
}

// Workflow states

type WithdrawalState string

const (
	WithdrawalPending    WithdrawalState = "PENDIENTE"
	WithdrawalAuthorized WithdrawalState = "AUTORIZADO"
	WithdrawalRejected   WithdrawalState = "RECHAZADO"
)

func (s WithdrawalState) Valid() bool {
	return s == WithdrawalPending || s == WithdrawalAuthorized || s == WithdrawalRejected
}

func (s WithdrawalState) IsTerminal() bool {
	return s == WithdrawalAuthorized || s == WithdrawalRejected
}

type WithdrawalDecision string

const (
	DecisionAuthorize WithdrawalDecision = "AUTORIZAR"
	DecisionReject    WithdrawalDecision = "RECHAZAR"
)

func (d WithdrawalDecision) Valid() bool {
	return d == DecisionAuthorize || d == DecisionReject
}

type ReasonCategory string

const (
	ReasonMedicalAppointment ReasonCategory = "CITA_MEDICA"
	ReasonFamilyEmergency    ReasonCategory = "EMERGENCIA_FAMILIAR"
	ReasonIllness            ReasonCategory = "MALESTAR"
	ReasonPersonalErrand     ReasonCategory = "TRAMITE_PERSONAL"
	ReasonOther              ReasonCategory = "OTRO"
)

func (r ReasonCategory) Valid() bool {
	switch r {
	case ReasonMedicalAppointment, ReasonFamilyEmergency, ReasonIllness, ReasonPersonalErrand, ReasonOther:
		return true
	}
	return false
}

type JustificationState string

const (
	JustificationPending  JustificationState = "PENDIENTE"
	JustificationInReview JustificationState = "EN_REVISION"
	JustificationApproved JustificationState = "APROBADA"
	JustificationRejected JustificationState = "RECHAZADA"
)

func (s JustificationState) Valid() bool {
	switch s {
	case JustificationPending, JustificationInReview, JustificationApproved, JustificationRejected:
		return true
	}
	return false
}

func (s JustificationState) IsTerminal() bool {
	return s == JustificationApproved || s == JustificationRejected
}

// Role is the role an authenticated caller acts with.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeacher   Role = "teacher"
	RoleGateStaff Role = "gate"
	RoleGuardian  Role = "guardian"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleGateStaff, RoleGuardian:
		return true
	}
	return false
}
