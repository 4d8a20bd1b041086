package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/asistencia/core"
)

var nowFunc = time.Now // mockable

type (
	Service struct {
		store    Store
		notifier Notifier
		logger   core.Logger
		conf     core.AttendanceConfig
	}

	// StatusUpdate asks for a classroom record status. Session is empty for the day-level record.
	StatusUpdate struct {
		StudentID string
		Date      Date
		Session   string
		Status    Status
		Actor     Actor
		Reason    string
		Note      string
		EntryTime *time.Time
		// JustificationID credits the change to a given justification when it ends up JUSTIFICADA.
		JustificationID string
	}

	StatusResult struct {
		Record   ClassroomRecord `json:"record"`
		Previous Status          `json:"previous_status,omitempty"`
		Changed  bool            `json:"changed"`
		// Refused is set when the existing status outranks the requested one.
		Refused bool `json:"refused"`
		// Applied is set when a justification was applied to the record.
		Applied *AppliedJustification `json:"applied_justification,omitempty"`
	}

	// StudentDay is the resolved status of a student on a day with the signals behind it.
	StudentDay struct {
		StudentID     string                `json:"student_id"`
		Date          Date                  `json:"date"`
		Resolution    Resolution            `json:"resolution"`
		Gate          *GateEvent            `json:"gate,omitempty"`
		Record        *ClassroomRecord      `json:"record,omitempty"`
		Withdrawal    *WithdrawalRequest    `json:"withdrawal,omitempty"`
		Justification *JustificationRequest `json:"justification,omitempty"`
	}
)

// NewService returns the attendance engine. A nil notifier disables notifications.
func NewService(store Store, notifier Notifier, logger core.Logger, conf *core.Config) (*Service, error) {
	if err := conf.Attendance.Validate(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		conf:     conf.Attendance,
	}, nil
}

// Today returns the current day in the institution's time zone.
func (svc *Service) Today() Date {
	return DateOf(nowFunc(), svc.conf.Location)
}

// run executes fn in one unit of work and dispatches its notices once committed.
func (svc *Service) run(ctx context.Context, fn func(repo Repository, out *outbox) error) error {
	out := new(outbox)
	if err := svc.store.RunInTx(ctx, func(repo Repository) error {
		return fn(repo, out)
	}); err != nil {
		return err
	}
	svc.dispatch(ctx, out.notices)
	return nil
}

// ApplyStatus is the only way a classroom record status is written.
func (svc *Service) ApplyStatus(ctx context.Context, upd StatusUpdate) (StatusResult, error) {
	var res StatusResult
	err := svc.run(ctx, func(repo Repository, out *outbox) error {
		st, err := svc.getStudent(ctx, repo, upd.Actor, upd.StudentID)
		if err != nil {
			return err
		}
		res, err = svc.applyStatus(ctx, repo, out, st, upd)
		return err
	})
	return res, err
}

// applyStatus refuses (without error) writes the existing status outranks, resolves the incoming
// status against the day's active withdrawal and justification, and records every actual change.
func (svc *Service) applyStatus(ctx context.Context, repo Repository, out *outbox, st Student, upd StatusUpdate) (StatusResult, error) {
	if !upd.Status.Valid() {
		return StatusResult{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown attendance status"})
	}

	rec, err := repo.GetClassroomRecord(ctx, st.ID, upd.Date, upd.Session)
	exists := err == nil
	if err != nil && errors.Cause(err) != ErrRecordNotFound {
		return StatusResult{}, errors.Wrap(err, "getting classroom record")
	}
	if exists && rec.Status.Outranks(upd.Status) {
		return StatusResult{Record: rec, Previous: rec.Status, Refused: true}, nil
	}

	withdrawal, justification, err := svc.activeOverrides(ctx, repo, st.ID, upd.Date)
	if err != nil {
		return StatusResult{}, err
	}
	if upd.JustificationID != "" {
		if justification == nil || justification.ID != upd.JustificationID {
			j, err := repo.GetJustification(ctx, upd.JustificationID)
			if err != nil {
				return StatusResult{}, errors.Wrap(err, "getting justification")
			}
			justification = &j
		}
	}

	candidate := rec
	candidate.Status = upd.Status
	target := Resolve(nil, &candidate, withdrawal, justification).Status

	now := nowFunc().UTC()
	previous := rec.Status
	if exists && target == rec.Status {
		if upd.Note != "" && upd.Note != rec.Note {
			rec.Note = upd.Note
			rec.UpdatedBy = upd.Actor.UserID
			rec.UpdatedAt = now
			if err = repo.UpdateClassroomRecord(ctx, rec); err != nil {
				return StatusResult{}, errors.Wrap(err, "updating classroom record")
			}
		}
		return StatusResult{Record: rec, Previous: previous}, nil
	}

	if exists {
		rec.Status = target
		rec.UpdatedBy = upd.Actor.UserID
		rec.UpdatedAt = now
		if upd.Note != "" {
			rec.Note = upd.Note
		}
		if rec.EntryTime == nil {
			rec.EntryTime = upd.EntryTime
		}
		if err = repo.UpdateClassroomRecord(ctx, rec); err != nil {
			return StatusResult{}, errors.Wrap(err, "updating classroom record")
		}
	} else {
		rec = ClassroomRecord{
			ID:           uuid.New().String(),
			StudentID:    st.ID,
			Date:         upd.Date,
			Session:      upd.Session,
			Status:       target,
			Note:         upd.Note,
			EntryTime:    upd.EntryTime,
			RegisteredBy: upd.Actor.UserID,
			RegisteredAt: now,
			UpdatedBy:    upd.Actor.UserID,
			UpdatedAt:    now,
		}
		created, err := repo.CreateClassroomRecord(ctx, rec)
		if err != nil {
			return StatusResult{}, errors.Wrap(err, "creating classroom record")
		}
		if !created {
			// a concurrent unit of work created the record first: start over against it
			return svc.applyStatus(ctx, repo, out, st, upd)
		}
	}

	change := StatusChange{
		ID:             uuid.New().String(),
		RecordID:       rec.ID,
		StudentID:      st.ID,
		Date:           upd.Date,
		PreviousStatus: previous,
		NewStatus:      target,
		Actor:          upd.Actor.UserID,
		Reason:         upd.Reason,
		ChangedAt:      now,
	}
	if err = repo.CreateStatusChange(ctx, change); err != nil {
		return StatusResult{}, errors.Wrap(err, "recording status change")
	}
	statusChanges.WithLabelValues(string(target)).Inc()

	res := StatusResult{Record: rec, Previous: previous, Changed: true}
	if target == StatusJustified && justification != nil {
		aj := AppliedJustification{
			ID:              uuid.New().String(),
			RecordID:        rec.ID,
			JustificationID: justification.ID,
			PreviousStatus:  upd.Status,
			AppliedBy:       upd.Actor.UserID,
			AppliedAt:       now,
		}
		if exists {
			aj.PreviousStatus = previous
		}
		created, err := repo.CreateAppliedJustification(ctx, aj)
		if err != nil {
			return StatusResult{}, errors.Wrap(err, "recording applied justification")
		}
		if created {
			res.Applied = &aj
		}
	}

	if exists {
		out.add(StatusChangeNotice{
			StudentID:      st.ID,
			StudentName:    st.FullName(),
			Guardians:      st.Guardians,
			Date:           upd.Date,
			PreviousStatus: previous,
			NewStatus:      target,
			Actor:          upd.Actor,
			Reason:         upd.Reason,
			ChangedAt:      now,
		})
	}
	return res, nil
}

// activeOverrides returns the authorized withdrawal and the approved justification of the day, if any.
func (svc *Service) activeOverrides(ctx context.Context, repo Repository, studentID string, day Date) (*WithdrawalRequest, *JustificationRequest, error) {
	var withdrawal *WithdrawalRequest
	wds, err := repo.QueryWithdrawals(ctx, WithdrawalFilter{
		StudentID: studentID,
		Date:      day,
		States:    []WithdrawalState{WithdrawalAuthorized},
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying withdrawals")
	}
	if len(wds) > 0 {
		withdrawal = &wds[0]
	}

	var justification *JustificationRequest
	jss, err := repo.QueryJustifications(ctx, JustificationFilter{
		StudentID: studentID,
		Covering:  day,
		States:    []JustificationState{JustificationApproved},
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying justifications")
	}
	if len(jss) > 0 {
		justification = &jss[0]
	}
	return withdrawal, justification, nil
}

// getStudent returns the student when visible to the actor's institution.
func (svc *Service) getStudent(ctx context.Context, repo Repository, actor Actor, id string) (Student, error) {
	st, err := repo.GetStudent(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return Student{}, ErrStudentNotFound
		}
		return Student{}, errors.Wrap(err, "getting student")
	}
	if st.InstitutionID != actor.InstitutionID {
		return Student{}, ErrStudentNotFound
	}
	return st, nil
}

// StudentStatus resolves the day-level status of a student.
func (svc *Service) StudentStatus(ctx context.Context, actor Actor, studentID string, day Date) (StudentDay, error) {
	sd := StudentDay{StudentID: studentID, Date: day}
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.getStudent(ctx, repo, actor, studentID)
		if err != nil {
			return err
		}
		if actor.Role == RoleGuardian && !st.HasGuardian(actor.UserID) {
			return ErrStudentNotFound
		}

		if ev, err := repo.GetGateEvent(ctx, st.ID, day); err == nil {
			sd.Gate = &ev
		} else if errors.Cause(err) != ErrGateEventNotFound {
			return errors.Wrap(err, "getting gate event")
		}
		if rec, err := repo.GetClassroomRecord(ctx, st.ID, day, ""); err == nil {
			sd.Record = &rec
		} else if errors.Cause(err) != ErrRecordNotFound {
			return errors.Wrap(err, "getting classroom record")
		}
		sd.Withdrawal, sd.Justification, err = svc.activeOverrides(ctx, repo, st.ID, day)
		if err != nil {
			return err
		}
		sd.Resolution = Resolve(sd.Gate, sd.Record, sd.Withdrawal, sd.Justification)
		return nil
	})
	return sd, err
}

// StudentHistory returns every status change of the student's records, oldest first.
func (svc *Service) StudentHistory(ctx context.Context, actor Actor, studentID string) ([]StatusChange, error) {
	var changes []StatusChange
	err := svc.run(ctx, func(repo Repository, _ *outbox) error {
		st, err := svc.getStudent(ctx, repo, actor, studentID)
		if err != nil {
			return err
		}
		changes, err = repo.QueryStatusChanges(ctx, st.ID)
		return errors.Wrap(err, "querying status changes")
	})
	return changes, err
}
