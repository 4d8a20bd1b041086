package attendance

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
)

type (
	NewJustification struct {
		StudentID   string `json:"student_id" validate:"required"`
		From        Date   `json:"from" validate:"required"`
		To          Date   `json:"to" validate:"required"`
		DocumentRef string `json:"document_ref" validate:"required,max=255"`
		Reason      string `json:"reason" validate:"max=500"`
	}

	JustificationReview struct {
		Decision     JustificationState `json:"decision" validate:"required,justification_decision"`
		Observations string             `json:"observations" validate:"max=500"`
	}

	ReviewResult struct {
		Request JustificationRequest   `json:"request"`
		Applied []AppliedJustification `json:"applied"`
		// GateEventsUpdated counts the gate events moved to JUSTIFICADO.
		GateEventsUpdated int `json:"gate_events_updated"`
	}
)

func (nj NewJustification) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nj); err != nil {
		return err
	}
	if nj.From.After(nj.To) {
		return core.NewValidationError(nil, core.FieldError{Field: "to", Error: "the range ends before it starts"})
	}
	return nil
}

func (jr JustificationReview) Validate(validate *validator.Validate) error {
	return validate.Struct(jr)
}

// SubmitJustification files a PENDIENTE justification. Guardians may only file for their own students.
func (svc *Service) SubmitJustification(ctx context.Context, actor Actor, nj NewJustification) (JustificationRequest, error) {
	if nj.From.IsZero() || nj.To.IsZero() || nj.From.After(nj.To) {
		return JustificationRequest{}, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "invalid date range"})
	}
	var req JustificationRequest
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.getStudent(ctx, repo, actor, nj.StudentID)
		if err != nil {
			return err
		}
		if actor.Role == RoleGuardian && !st.HasGuardian(actor.UserID) {
			return ErrStudentNotFound
		}

		req = JustificationRequest{
			ID:            uuid.New().String(),
			StudentID:     st.ID,
			InstitutionID: st.InstitutionID,
			From:          nj.From,
			To:            nj.To,
			DocumentRef:   nj.DocumentRef,
			Reason:        nj.Reason,
			State:         JustificationPending,
			SubmittedBy:   actor.UserID,
			SubmittedAt:   nowFunc().UTC(),
		}
		return errors.Wrap(repo.CreateJustification(ctx, req), "creating justification")
	})
	return req, err
}

// StartReview moves a PENDIENTE justification to EN_REVISION.
func (svc *Service) StartReview(ctx context.Context, actor Actor, id string) (JustificationRequest, error) {
	var req JustificationRequest
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		var err error
		if req, err = svc.getJustification(ctx, repo, actor, id); err != nil {
			return err
		}
		if req.State != JustificationPending {
			return ErrInvalidStateTransition
		}
		req.State = JustificationInReview
		req.ReviewerID = actor.UserID
		return errors.Wrap(repo.UpdateJustification(ctx, req), "updating justification")
	})
	if err != nil {
		return JustificationRequest{}, err
	}
	return req, nil
}

// ReviewJustification approves or rejects an open justification. Approval rewrites every record
// of the range whose status requires a justification to JUSTIFICADA, and the matching gate events
// to JUSTIFICADO. Records holding a status that outranks JUSTIFICADA are left untouched.
func (svc *Service) ReviewJustification(ctx context.Context, actor Actor, id string, jr JustificationReview) (ReviewResult, error) {
	if jr.Decision != JustificationApproved && jr.Decision != JustificationRejected {
		return ReviewResult{}, core.NewValidationError(nil, core.FieldError{Field: "decision", Error: "unknown decision"})
	}
	var res ReviewResult
	err := svc.run(ctx, func(repo Repository, out *outbox) error {
		res = ReviewResult{Applied: make([]AppliedJustification, 0)}
		req, err := svc.getJustification(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if req.State.IsTerminal() {
			return ErrInvalidStateTransition
		}

		now := nowFunc().UTC()
		req.State = jr.Decision
		req.ReviewerID = actor.UserID
		req.ReviewedAt = &now
		req.Observations = jr.Observations
		if err = repo.UpdateJustification(ctx, req); err != nil {
			return errors.Wrap(err, "updating justification")
		}
		res.Request = req
		if req.State != JustificationApproved {
			return nil
		}

		st, err := svc.getStudent(ctx, repo, actor, req.StudentID)
		if err != nil {
			return err
		}
		if res.Applied, err = svc.justifyRecords(ctx, repo, out, actor, st, req); err != nil {
			return err
		}
		res.GateEventsUpdated, err = svc.justifyGateEvents(ctx, repo, req)
		return err
	})
	if err != nil {
		return ReviewResult{}, err
	}
	return res, nil
}

func (svc *Service) justifyRecords(ctx context.Context, repo Repository, out *outbox, actor Actor, st Student, req JustificationRequest) ([]AppliedJustification, error) {
	records, err := repo.QueryClassroomRecords(ctx, RecordFilter{StudentIDs: []string{st.ID}, From: req.From, To: req.To})
	if err != nil {
		return nil, errors.Wrap(err, "querying classroom records")
	}
	applied := make([]AppliedJustification, 0, len(records))
	for _, rec := range records {
		if !rec.Status.RequiresJustification() {
			continue
		}
		upd, err := svc.applyStatus(ctx, repo, out, st, StatusUpdate{
			StudentID:       st.ID,
			Date:            rec.Date,
			Session:         rec.Session,
			Status:          StatusJustified,
			Actor:           actor,
			Reason:          "justification " + req.ID,
			JustificationID: req.ID,
		})
		if err != nil {
			return nil, err
		}
		if upd.Applied != nil {
			applied = append(applied, *upd.Applied)
		}
	}
	return applied, nil
}

func (svc *Service) justifyGateEvents(ctx context.Context, repo Repository, req JustificationRequest) (int, error) {
	events, err := repo.QueryGateEvents(ctx, GateFilter{
		StudentID: req.StudentID,
		From:      req.From,
		To:        req.To,
		States:    []GateState{GateAbsent, GateNoShow},
	})
	if err != nil {
		return 0, errors.Wrap(err, "querying gate events")
	}
	now := nowFunc().UTC()
	for _, ev := range events {
		ev.State = GateJustified
		ev.UpdatedAt = now
		if err = repo.UpdateGateEvent(ctx, ev); err != nil {
			return 0, errors.Wrap(err, "updating gate event")
		}
	}
	return len(events), nil
}

// ListJustifications returns the institution's justifications, optionally in one state.
func (svc *Service) ListJustifications(ctx context.Context, actor Actor, state JustificationState) ([]JustificationRequest, error) {
	filter := JustificationFilter{InstitutionID: actor.InstitutionID}
	if state != "" {
		filter.States = []JustificationState{state}
	}
	var reqs []JustificationRequest
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		var err error
		reqs, err = repo.QueryJustifications(ctx, filter)
		return errors.Wrap(err, "querying justifications")
	})
	return reqs, err
}

func (svc *Service) getJustification(ctx context.Context, repo Repository, actor Actor, id string) (JustificationRequest, error) {
	req, err := repo.GetJustification(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrJustificationNotFound {
			return JustificationRequest{}, ErrJustificationNotFound
		}
		return JustificationRequest{}, errors.Wrap(err, "getting justification")
	}
	if req.InstitutionID != actor.InstitutionID {
		return JustificationRequest{}, ErrJustificationNotFound
	}
	return req, nil
}
