package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
)

const (
	ResultRegistered = "registered"
	ResultDuplicate  = "duplicate"
)

type (
	GateScan struct {
		Identifier string     `json:"identifier" validate:"required,identifier,max=64"`
		Action     GateAction `json:"action" validate:"required,gate_action"`
		// Timestamp lets devices upload buffered scans; the server time is used when empty.
		Timestamp *time.Time `json:"timestamp"`
	}

	// GateResult is returned for fresh and repeated scans alike; Status tells them apart.
	// On a duplicate, Timestamp is the originally recorded one.
	GateResult struct {
		Status          string    `json:"status"`
		StudentID       string    `json:"student_id"`
		GateState       GateState `json:"gate_state"`
		Timestamp       time.Time `json:"timestamp"`
		AfterLateCutoff bool      `json:"after_late_cutoff,omitempty"`
	}
)

func (r GateResult) IsDuplicate() bool { return r.Status == ResultDuplicate }

// RegisterGateEvent records a scan of `scan.Identifier` at the institution's gate.
func (svc *Service) RegisterGateEvent(ctx context.Context, actor Actor, scan GateScan) (GateResult, error) {
	ts := nowFunc()
	if scan.Timestamp != nil && !scan.Timestamp.IsZero() {
		ts = *scan.Timestamp
	}
	switch scan.Action {
	case GateActionIngress:
		return svc.RegisterIngress(ctx, actor, scan.Identifier, ts)
	case GateActionEgress:
		return svc.RegisterEgress(ctx, actor, scan.Identifier, ts)
	default:
		return GateResult{}, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "unknown gate action"})
	}
}

// RegisterIngress records the student's entry of the day. A repeated entry is not an error:
// the result is a duplicate carrying the original timestamp. Late entries are always admitted.
func (svc *Service) RegisterIngress(ctx context.Context, actor Actor, identifier string, ts time.Time) (GateResult, error) {
	ts = ts.UTC()
	var res GateResult
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.resolveIdentifier(ctx, repo, actor, identifier)
		if err != nil {
			return err
		}
		day := DateOf(ts, svc.conf.Location)
		res = GateResult{StudentID: st.ID}

		// a concurrent first scan may create the row between our read and insert: read it again once
		for attempt := 0; attempt < 2; attempt++ {
			ev, isNew, err := svc.gateEventOf(ctx, repo, st, day)
			if err != nil {
				return err
			}
			if ev.HasEntry() {
				res.Status = ResultDuplicate
				res.GateState = ev.State
				res.Timestamp = *ev.IngressAt
				return nil
			}

			state, afterLate := svc.classifyIngress(day, ts)
			ev.IngressAt = &ts
			ev.IngressBy = actor.UserID
			ev.UpdatedAt = nowFunc().UTC()
			if ev.State != GateWithdrawn {
				ev.State = state
			}
			res.Status = ResultRegistered
			res.GateState = ev.State
			res.Timestamp = ts
			res.AfterLateCutoff = afterLate

			if !isNew {
				return errors.Wrap(repo.UpdateGateEvent(ctx, ev), "updating gate event")
			}
			if _, created, err := repo.CreateGateEvent(ctx, ev); err != nil {
				return errors.Wrap(err, "creating gate event")
			} else if created {
				return nil
			}
		}
		return errors.New("gate event kept changing while registering ingress")
	})
	if err != nil {
		return GateResult{}, err
	}

	gateScans.WithLabelValues(string(GateActionIngress), res.Status).Inc()
	if res.AfterLateCutoff {
		svc.logger.Warn(fmt.Sprintf("student %s entered after the late cutoff (%s)", res.StudentID, svc.conf.LateCutoff), actor)
	}
	return res, nil
}

// RegisterEgress records the student's exit of the day. Egress without ingress is rejected
// with ErrNoIngressRecord; a repeated exit is a duplicate carrying the original timestamp.
func (svc *Service) RegisterEgress(ctx context.Context, actor Actor, identifier string, ts time.Time) (GateResult, error) {
	ts = ts.UTC()
	var res GateResult
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.resolveIdentifier(ctx, repo, actor, identifier)
		if err != nil {
			return err
		}
		day := DateOf(ts, svc.conf.Location)

		ev, err := repo.GetGateEvent(ctx, st.ID, day)
		if err != nil {
			if errors.Cause(err) == ErrGateEventNotFound {
				return ErrNoIngressRecord
			}
			return errors.Wrap(err, "getting gate event")
		}
		if !ev.HasEntry() {
			return ErrNoIngressRecord
		}

		res = GateResult{StudentID: st.ID, GateState: ev.State}
		if ev.EgressAt != nil {
			res.Status = ResultDuplicate
			res.Timestamp = *ev.EgressAt
			return nil
		}
		if ts.Before(*ev.IngressAt) {
			return core.NewValidationError(nil, core.FieldError{Field: "timestamp", Error: "egress cannot precede ingress"})
		}

		ev.EgressAt = &ts
		ev.EgressBy = actor.UserID
		ev.UpdatedAt = nowFunc().UTC()
		if err = repo.UpdateGateEvent(ctx, ev); err != nil {
			return errors.Wrap(err, "updating gate event")
		}
		res.Status = ResultRegistered
		res.Timestamp = ts
		return nil
	})
	if err != nil {
		return GateResult{}, err
	}
	gateScans.WithLabelValues(string(GateActionEgress), res.Status).Inc()
	return res, nil
}

// QueryDay returns the gate events of the actor's institution for a day, optionally of one classroom.
func (svc *Service) QueryDay(ctx context.Context, actor Actor, day Date, classroomID string, ordering ...core.DBOrdering) ([]GateEvent, error) {
	for _, ord := range ordering {
		if !GateOrderingAllowed(ord.Field) {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: fmt.Sprintf("cannot order by %q", ord.Field)})
		}
	}
	var events []GateEvent
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		var err error
		events, err = repo.QueryGateEvents(ctx, GateFilter{
			InstitutionID: actor.InstitutionID,
			ClassroomID:   classroomID,
			From:          day,
			To:            day,
			Ordering:      ordering,
		})
		return errors.Wrap(err, "querying gate events")
	})
	return events, err
}

// CloseGateDay records INASISTENCIA for every active student of the institution without a gate
// event that day, and returns how many were recorded. Running it again records nothing new.
func (svc *Service) CloseGateDay(ctx context.Context, actor Actor, day Date) (int, error) {
	var count int
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		count = 0
		students, err := repo.QueryStudents(ctx, actor.InstitutionID, "")
		if err != nil {
			return errors.Wrap(err, "querying students")
		}
		now := nowFunc().UTC()
		for _, st := range students {
			_, created, err := repo.CreateGateEvent(ctx, GateEvent{
				ID:            uuid.New().String(),
				StudentID:     st.ID,
				InstitutionID: st.InstitutionID,
				Date:          day,
				State:         GateNoShow,
				UpdatedAt:     now,
			})
			if err != nil {
				return errors.Wrap(err, "creating gate event")
			}
			if created {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (svc *Service) resolveIdentifier(ctx context.Context, repo Repository, actor Actor, identifier string) (Student, error) {
	st, err := repo.GetStudentByIdentifier(ctx, actor.InstitutionID, core.CleanString(identifier))
	if err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, errors.Wrap(err, "resolving identifier")
	}
	if !st.IsActive || st.InstitutionID != actor.InstitutionID {
		return Student{}, ErrStudentNotFound
	}
	return st, nil
}

// gateEventOf returns the student's gate event of the day, or a new unsaved one.
func (svc *Service) gateEventOf(ctx context.Context, repo Repository, st Student, day Date) (GateEvent, bool, error) {
	ev, err := repo.GetGateEvent(ctx, st.ID, day)
	switch errors.Cause(err) {
	case nil:
		return ev, false, nil
	case ErrGateEventNotFound:
		return GateEvent{
			ID:            uuid.New().String(),
			StudentID:     st.ID,
			InstitutionID: st.InstitutionID,
			Date:          day,
		}, true, nil
	default:
		return GateEvent{}, false, errors.Wrap(err, "getting gate event")
	}
}

// classifyIngress compares an entry against the day's cutoffs.
func (svc *Service) classifyIngress(day Date, ts time.Time) (GateState, bool) {
	onTime := day.At(svc.conf.OnTimeCutoff, svc.conf.Location)
	if !ts.After(onTime) {
		return GateEntered, false
	}
	late := day.At(svc.conf.LateCutoff, svc.conf.Location)
	return GateLate, ts.After(late)
}
