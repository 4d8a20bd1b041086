package attendance

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
)

type (
	StudentSummary struct {
		ID       string `json:"id"`
		DNI      string `json:"dni"`
		FullName string `json:"full_name"`
	}

	RosterEntry struct {
		Student          StudentSummary   `json:"student"`
		GateState        GateState        `json:"gate_state,omitempty"`
		IngressAt        string           `json:"ingress_at,omitempty"`
		Record           *ClassroomRecord `json:"record,omitempty"`
		Suggested        Status           `json:"suggested_status"`
		SuggestionSource Precedence       `json:"suggestion_source"`
		HasGateEntry     bool             `json:"has_gate_entry"`
		AlreadyConfirmed bool             `json:"already_confirmed"`
		// PossibleEvasion: entered the building, no teacher decision yet, suggestion is PRESENTE.
		PossibleEvasion bool `json:"possible_evasion"`
		// NeedsAttention: neither a gate entry nor a teacher decision exists.
		NeedsAttention bool `json:"needs_attention"`
	}

	Roster struct {
		ClassroomID string        `json:"classroom_id"`
		Date        Date          `json:"date"`
		Session     string        `json:"session,omitempty"`
		Entries     []RosterEntry `json:"entries"`
	}

	ConfirmationEntry struct {
		StudentID string `json:"student_id" validate:"required"`
		Status    Status `json:"status" validate:"required,teacher_status"`
		Note      string `json:"note" validate:"max=500"`
	}

	Confirmation struct {
		ClassroomID string              `json:"-"`
		Date        Date                `json:"date" validate:"required"`
		Session     string              `json:"session" validate:"max=64"`
		Entries     []ConfirmationEntry `json:"entries" validate:"required,min=1,dive"`
	}

	ConfirmationResult struct {
		StudentID string    `json:"student_id"`
		Status    Status    `json:"status"`
		Previous  Status    `json:"previous_status,omitempty"`
		Changed   bool      `json:"changed"`
		Refused   bool      `json:"refused"`
		GateState GateState `json:"gate_state,omitempty"`
		Evasion   bool      `json:"evasion"`
	}

	ConfirmationCounts struct {
		Present   int `json:"present"`
		Late      int `json:"late"`
		Absent    int `json:"absent"`
		Justified int `json:"justified"`
		Withdrawn int `json:"withdrawn"`
		Evasions  int `json:"evasions"`
	}

	BatchResult struct {
		ClassroomID string               `json:"classroom_id"`
		Date        Date                 `json:"date"`
		Results     []ConfirmationResult `json:"results"`
		Incidents   []EvasionIncident    `json:"incidents"`
		Counts      ConfirmationCounts   `json:"counts"`
	}
)

func (c Confirmation) Validate(validate *validator.Validate) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Entries))
	for _, e := range c.Entries {
		if seen[e.StudentID] {
			return core.NewValidationError(nil, core.FieldError{
				Field: "entries",
				Error: fmt.Sprintf("student %s is listed more than once", e.StudentID),
			})
		}
		seen[e.StudentID] = true
	}
	return nil
}

// GetPreloadedRoster joins, for every student of the classroom, the day's gate state with any
// existing classroom record and suggests a status.
func (svc *Service) GetPreloadedRoster(ctx context.Context, actor Actor, classroomID string, day Date, session string) (Roster, error) {
	roster := Roster{ClassroomID: classroomID, Date: day, Session: session}
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		students, err := svc.classroomStudents(ctx, repo, actor, classroomID)
		if err != nil {
			return err
		}
		sig, err := svc.loadDaySignals(ctx, repo, actor, classroomID, students, day, session)
		if err != nil {
			return err
		}

		roster.Entries = make([]RosterEntry, 0, len(students))
		for _, st := range students {
			gate, record, withdrawal, justification := sig.of(st.ID)
			entry := RosterEntry{
				Student: StudentSummary{ID: st.ID, DNI: st.DNI, FullName: st.FullName()},
				Record:  record,
			}
			if gate != nil {
				entry.GateState = gate.State
				entry.HasGateEntry = gate.HasEntry()
				if gate.HasEntry() {
					entry.IngressAt = gate.IngressAt.In(svc.conf.Location).Format("15:04")
				}
			}
			entry.AlreadyConfirmed = record != nil

			res := Resolve(gate, record, withdrawal, justification)
			entry.Suggested = res.Status
			entry.SuggestionSource = res.Source
			entry.PossibleEvasion = entry.HasGateEntry && !entry.AlreadyConfirmed && res.Status == StatusPresent
			entry.NeedsAttention = !entry.HasGateEntry && !entry.AlreadyConfirmed
			roster.Entries = append(roster.Entries, entry)
		}
		return nil
	})
	return roster, err
}

// ConfirmBatch writes the teacher's decisions. A student confirmed AUSENTE after entering the
// building raises an evasion incident and moves the gate event to EVASION; a student confirmed
// in class moves it to EN_CLASE.
func (svc *Service) ConfirmBatch(ctx context.Context, actor Actor, conf Confirmation) (BatchResult, error) {
	var result BatchResult
	var incidents, raised []EvasionIncident
	err := svc.run(ctx, func(repo Repository, out *outbox) error {
		result = BatchResult{ClassroomID: conf.ClassroomID, Date: conf.Date}
		incidents, raised = nil, nil

		students, err := svc.classroomStudents(ctx, repo, actor, conf.ClassroomID)
		if err != nil {
			return err
		}
		byID := make(map[string]Student, len(students))
		for _, st := range students {
			byID[st.ID] = st
		}

		for _, entry := range conf.Entries {
			st, ok := byID[entry.StudentID]
			if !ok {
				return errors.Wrapf(ErrStudentNotFound, "student %s is not in classroom %s", entry.StudentID, conf.ClassroomID)
			}
			if !entry.Status.IsTeacherStatus() {
				return core.NewValidationError(nil, core.FieldError{Field: "status", Error: fmt.Sprintf("%s cannot be set by classroom confirmation", entry.Status)})
			}

			gate, isNew, err := svc.gateEventOf(ctx, repo, st, conf.Date)
			if err != nil {
				return err
			}
			hasGate := !isNew

			upd := StatusUpdate{
				StudentID: st.ID,
				Date:      conf.Date,
				Session:   conf.Session,
				Status:    entry.Status,
				Actor:     actor,
				Reason:    "classroom confirmation",
				Note:      entry.Note,
			}
			if hasGate && gate.HasEntry() {
				upd.EntryTime = gate.IngressAt
			}
			applied, err := svc.applyStatus(ctx, repo, out, st, upd)
			if err != nil {
				return err
			}

			res := ConfirmationResult{
				StudentID: st.ID,
				Status:    applied.Record.Status,
				Previous:  applied.Previous,
				Changed:   applied.Changed,
				Refused:   applied.Refused,
			}

			if hasGate && gate.HasEntry() {
				switch {
				case applied.Record.Status == StatusAbsent:
					res.Evasion = true
					if gate.State != GateEvasion {
						gate.State = GateEvasion
						gate.UpdatedAt = nowFunc().UTC()
						if err = repo.UpdateGateEvent(ctx, gate); err != nil {
							return errors.Wrap(err, "updating gate event")
						}
						inc := EvasionIncident{
							ID:          uuid.New().String(),
							StudentID:   st.ID,
							Date:        conf.Date,
							ClassroomID: conf.ClassroomID,
							GateEventID: gate.ID,
							IngressAt:   *gate.IngressAt,
							ReportedBy:  actor.UserID,
							ReportedAt:  gate.UpdatedAt,
						}
						if err = repo.CreateEvasionIncident(ctx, inc); err != nil {
							return errors.Wrap(err, "recording evasion incident")
						}
						incidents = append(incidents, inc)
						raised = append(raised, inc)
					} else {
						// already reported: the incident raised back then backs this evasion
						existing, err := repo.QueryEvasionIncidents(ctx, st.ID, conf.Date)
						if err != nil {
							return errors.Wrap(err, "querying evasion incidents")
						}
						incidents = append(incidents, existing...)
					}
				case (applied.Record.Status == StatusPresent || applied.Record.Status == StatusLate) && gate.State.canEnterClass():
					gate.State = GateInClass
					gate.UpdatedAt = nowFunc().UTC()
					if err = repo.UpdateGateEvent(ctx, gate); err != nil {
						return errors.Wrap(err, "updating gate event")
					}
				}
			}
			if hasGate {
				res.GateState = gate.State
			}

			result.Results = append(result.Results, res)
			result.Counts.add(res)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	result.Incidents = incidents
	if result.Incidents == nil {
		result.Incidents = make([]EvasionIncident, 0)
	}
	for _, inc := range raised {
		evasionIncidents.Inc()
		svc.logger.Warn(
			fmt.Sprintf("evasion: student %s entered at %s but was marked absent in classroom %s", inc.StudentID, inc.IngressAt.Format("15:04:05Z07:00"), inc.ClassroomID),
			map[string]interface{}{"incident": inc},
			actor,
		)
	}
	return result, nil
}

func (c *ConfirmationCounts) add(res ConfirmationResult) {
	switch res.Status {
	case StatusPresent:
		c.Present++
	case StatusLate:
		c.Late++
	case StatusAbsent:
		c.Absent++
	case StatusJustified:
		c.Justified++
	case StatusWithdrawn:
		c.Withdrawn++
	}
	if res.Evasion {
		c.Evasions++
	}
}

func (svc *Service) classroomStudents(ctx context.Context, repo Repository, actor Actor, classroomID string) ([]Student, error) {
	students, err := repo.QueryStudents(ctx, actor.InstitutionID, classroomID)
	if err != nil {
		return nil, errors.Wrap(err, "querying classroom students")
	}
	if len(students) == 0 {
		return nil, ErrClassroomNotFound
	}
	return students, nil
}

// daySignals indexes the signals of a classroom's students for one day.
type daySignals struct {
	gates          map[string]*GateEvent
	records        map[string]*ClassroomRecord
	withdrawals    map[string]*WithdrawalRequest
	justifications map[string]*JustificationRequest
}

func (s daySignals) of(studentID string) (*GateEvent, *ClassroomRecord, *WithdrawalRequest, *JustificationRequest) {
	return s.gates[studentID], s.records[studentID], s.withdrawals[studentID], s.justifications[studentID]
}

func (svc *Service) loadDaySignals(ctx context.Context, repo Repository, actor Actor, classroomID string, students []Student, day Date, session string) (daySignals, error) {
	sig := daySignals{
		gates:          make(map[string]*GateEvent),
		records:        make(map[string]*ClassroomRecord),
		withdrawals:    make(map[string]*WithdrawalRequest),
		justifications: make(map[string]*JustificationRequest),
	}
	ids := make([]string, 0, len(students))
	inClass := make(map[string]bool, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
		inClass[st.ID] = true
	}

	gates, err := repo.QueryGateEvents(ctx, GateFilter{InstitutionID: actor.InstitutionID, ClassroomID: classroomID, From: day, To: day})
	if err != nil {
		return sig, errors.Wrap(err, "querying gate events")
	}
	for i := range gates {
		sig.gates[gates[i].StudentID] = &gates[i]
	}

	records, err := repo.QueryClassroomRecords(ctx, RecordFilter{StudentIDs: ids, From: day, To: day, Session: &session})
	if err != nil {
		return sig, errors.Wrap(err, "querying classroom records")
	}
	for i := range records {
		sig.records[records[i].StudentID] = &records[i]
	}

	wds, err := repo.QueryWithdrawals(ctx, WithdrawalFilter{InstitutionID: actor.InstitutionID, Date: day, States: []WithdrawalState{WithdrawalAuthorized}})
	if err != nil {
		return sig, errors.Wrap(err, "querying withdrawals")
	}
	for i := range wds {
		if inClass[wds[i].StudentID] {
			sig.withdrawals[wds[i].StudentID] = &wds[i]
		}
	}

	jss, err := repo.QueryJustifications(ctx, JustificationFilter{InstitutionID: actor.InstitutionID, Covering: day, States: []JustificationState{JustificationApproved}})
	if err != nil {
		return sig, errors.Wrap(err, "querying justifications")
	}
	for i := range jss {
		if inClass[jss[i].StudentID] {
			sig.justifications[jss[i].StudentID] = &jss[i]
		}
	}
	return sig, nil
}
