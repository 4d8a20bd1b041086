package attendance

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
)

var errActiveWithdrawal = errors.New("the student already has an open withdrawal request for this date")

type (
	NewWithdrawal struct {
		StudentID        string         `json:"student_id" validate:"required"`
		Date             Date           `json:"date" validate:"required"`
		Time             core.ClockTime `json:"time" validate:"required,clock"`
		Reason           ReasonCategory `json:"reason" validate:"required,reason_category"`
		PickupGuardianID string         `json:"pickup_guardian_id"`
		Note             string         `json:"note" validate:"max=500"`
	}

	WithdrawalResolution struct {
		Decision     WithdrawalDecision `json:"decision" validate:"required,withdrawal_decision"`
		Observations string             `json:"observations" validate:"max=500"`
	}
)

func (nw NewWithdrawal) Validate(validate *validator.Validate) error {
	return validate.Struct(nw)
}

func (wr WithdrawalResolution) Validate(validate *validator.Validate) error {
	return validate.Struct(wr)
}

// RequestWithdrawal opens a PENDIENTE withdrawal for a student of the requester's institution.
func (svc *Service) RequestWithdrawal(ctx context.Context, actor Actor, nw NewWithdrawal) (WithdrawalRequest, error) {
	if !nw.Reason.Valid() {
		return WithdrawalRequest{}, core.NewValidationError(nil, core.FieldError{Field: "reason", Error: "unknown reason category"})
	}
	var req WithdrawalRequest
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.getStudent(ctx, repo, actor, nw.StudentID)
		if err != nil {
			return err
		}
		if nw.PickupGuardianID != "" && !st.HasGuardian(nw.PickupGuardianID) {
			return core.NewValidationError(nil, core.FieldError{Field: "pickup_guardian_id", Error: "not a guardian of this student"})
		}

		open, err := repo.QueryWithdrawals(ctx, WithdrawalFilter{
			StudentID: st.ID,
			Date:      nw.Date,
			States:    []WithdrawalState{WithdrawalPending, WithdrawalAuthorized},
		})
		if err != nil {
			return errors.Wrap(err, "querying withdrawals")
		}
		if len(open) > 0 {
			return core.NewValidationError(errActiveWithdrawal)
		}

		req = WithdrawalRequest{
			ID:               uuid.New().String(),
			StudentID:        st.ID,
			InstitutionID:    st.InstitutionID,
			Date:             nw.Date,
			Time:             nw.Time,
			Reason:           nw.Reason,
			Note:             nw.Note,
			RequestedBy:      actor.UserID,
			PickupGuardianID: nw.PickupGuardianID,
			State:            WithdrawalPending,
			CreatedAt:        nowFunc().UTC(),
		}
		return errors.Wrap(repo.CreateWithdrawal(ctx, req), "creating withdrawal")
	})
	return req, err
}

// ResolveWithdrawal authorizes or rejects a PENDIENTE withdrawal. Only the student's titular
// guardian or an administrator may decide. Authorizing marks the day RETIRADO, creating the
// day's classroom record when none exists yet.
func (svc *Service) ResolveWithdrawal(ctx context.Context, actor Actor, id string, wr WithdrawalResolution) (WithdrawalRequest, error) {
	if !wr.Decision.Valid() {
		return WithdrawalRequest{}, core.NewValidationError(nil, core.FieldError{Field: "decision", Error: "unknown decision"})
	}
	var req WithdrawalRequest
	err := svc.run(ctx, func(repo Repository, out *outbox) error {
		var err error
		req, err = repo.GetWithdrawal(ctx, id)
		if err != nil {
			if errors.Cause(err) == ErrWithdrawalNotFound {
				return ErrWithdrawalNotFound
			}
			return errors.Wrap(err, "getting withdrawal")
		}
		if req.InstitutionID != actor.InstitutionID {
			return ErrWithdrawalNotFound
		}
		st, err := svc.getStudent(ctx, repo, actor, req.StudentID)
		if err != nil {
			return err
		}
		if !canResolveWithdrawal(actor, st) {
			return ErrForbidden
		}
		if req.State.IsTerminal() {
			return ErrInvalidStateTransition
		}

		now := nowFunc().UTC()
		req.ResolvedBy = actor.UserID
		req.ResolvedAt = &now
		req.Observations = wr.Observations
		if wr.Decision == DecisionReject {
			req.State = WithdrawalRejected
			return errors.Wrap(repo.UpdateWithdrawal(ctx, req), "updating withdrawal")
		}

		req.State = WithdrawalAuthorized
		if err = repo.UpdateWithdrawal(ctx, req); err != nil {
			return errors.Wrap(err, "updating withdrawal")
		}
		return svc.applyWithdrawal(ctx, repo, out, actor, st, req)
	})
	if err != nil {
		return WithdrawalRequest{}, err
	}
	return req, nil
}

func canResolveWithdrawal(actor Actor, st Student) bool {
	if actor.IsAdmin() {
		return true
	}
	if actor.Role != RoleGuardian {
		return false
	}
	titular, ok := st.TitularGuardian()
	return ok && titular.ID == actor.UserID
}

// applyWithdrawal marks every record of the day RETIRADO and the gate event as withdrawn.
func (svc *Service) applyWithdrawal(ctx context.Context, repo Repository, out *outbox, actor Actor, st Student, req WithdrawalRequest) error {
	gate, isNew, err := svc.gateEventOf(ctx, repo, st, req.Date)
	if err != nil {
		return err
	}

	// synthetic entry time: the gate ingress, or the start of the school day
	entry := req.Date.At(svc.conf.OnTimeCutoff, svc.conf.Location).UTC()
	if !isNew && gate.HasEntry() {
		entry = *gate.IngressAt
	}

	records, err := repo.QueryClassroomRecords(ctx, RecordFilter{StudentIDs: []string{st.ID}, From: req.Date, To: req.Date})
	if err != nil {
		return errors.Wrap(err, "querying classroom records")
	}
	sessions := []string{""}
	if len(records) > 0 {
		sessions = sessions[:0]
		for _, rec := range records {
			sessions = append(sessions, rec.Session)
		}
	}
	for _, session := range sessions {
		_, err = svc.applyStatus(ctx, repo, out, st, StatusUpdate{
			StudentID: st.ID,
			Date:      req.Date,
			Session:   session,
			Status:    StatusWithdrawn,
			Actor:     actor,
			Reason:    "withdrawal " + string(req.Reason),
			EntryTime: &entry,
		})
		if err != nil {
			return err
		}
	}

	if !isNew && gate.State != GateWithdrawn {
		gate.State = GateWithdrawn
		gate.UpdatedAt = nowFunc().UTC()
		if err = repo.UpdateGateEvent(ctx, gate); err != nil {
			return errors.Wrap(err, "updating gate event")
		}
	}
	return nil
}

// ListWithdrawals returns the institution's withdrawals for a day, optionally in one state.
func (svc *Service) ListWithdrawals(ctx context.Context, actor Actor, day Date, state WithdrawalState) ([]WithdrawalRequest, error) {
	filter := WithdrawalFilter{InstitutionID: actor.InstitutionID, Date: day}
	if state != "" {
		filter.States = []WithdrawalState{state}
	}
	var reqs []WithdrawalRequest
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		var err error
		reqs, err = repo.QueryWithdrawals(ctx, filter)
		return errors.Wrap(err, "querying withdrawals")
	})
	return reqs, err
}
