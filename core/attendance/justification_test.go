package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/core/attendance"
	"github.com/trezcool/asistencia/tests"
)

var (
	mar1 = attendance.NewDate(2024, 3, 1)
	mar2 = attendance.NewDate(2024, 3, 2)
	mar5 = attendance.NewDate(2024, 3, 5)
	mar6 = attendance.NewDate(2024, 3, 6)
	mar7 = attendance.NewDate(2024, 3, 7)
)

func (f *fixture) submitJustification(actor attendance.Actor, st attendance.Student, from, to attendance.Date) attendance.JustificationRequest {
	req, err := f.svc.SubmitJustification(f.ctx, actor, attendance.NewJustification{
		StudentID:   st.ID,
		From:        from,
		To:          to,
		DocumentRef: "https://docs.test.pe/certificado.pdf",
		Reason:      "gripe",
	})
	require.NoError(f.t, err)
	return req
}

func (f *fixture) record(st attendance.Student, day attendance.Date) (rec attendance.ClassroomRecord) {
	f.inTx(func(repo attendance.Repository) {
		var err error
		rec, err = repo.GetClassroomRecord(f.ctx, st.ID, day, "")
		require.NoError(f.t, err)
	})
	return rec
}

func TestService_ReviewJustification_approve(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001", testutil.Guardian("madre", true))

	_, err := f.svc.CloseGateDay(f.ctx, f.admin, mar1)
	require.NoError(t, err)
	f.confirm("1A", mar1, entry(st, attendance.StatusAbsent))
	f.confirm("1A", today, entry(st, attendance.StatusAbsent))
	f.confirm("1A", mar5, entry(st, attendance.StatusPresent))
	f.confirm("1A", mar6, entry(st, attendance.StatusLate))
	f.confirm("1A", mar7, entry(st, attendance.StatusAbsent))

	req := f.submitJustification(f.teacher, st, mar1, mar6)
	res, err := f.svc.ReviewJustification(f.ctx, f.admin, req.ID, attendance.JustificationReview{
		Decision:     attendance.JustificationApproved,
		Observations: "certificado valido",
	})
	require.NoError(t, err)

	assert.Equal(t, attendance.JustificationApproved, res.Request.State)
	assert.Equal(t, f.admin.UserID, res.Request.ReviewerID)
	require.NotNil(t, res.Request.ReviewedAt)
	require.Len(t, res.Applied, 2)
	for _, aj := range res.Applied {
		assert.Equal(t, req.ID, aj.JustificationID)
		assert.Equal(t, attendance.StatusAbsent, aj.PreviousStatus)
		assert.Equal(t, f.admin.UserID, aj.AppliedBy)
	}
	assert.Equal(t, 1, res.GateEventsUpdated)

	tests := []struct {
		name string
		day  attendance.Date
		want attendance.Status
	}{
		{name: "absent in range", day: mar1, want: attendance.StatusJustified},
		{name: "absent today", day: today, want: attendance.StatusJustified},
		{name: "present is kept", day: mar5, want: attendance.StatusPresent},
		{name: "late is kept", day: mar6, want: attendance.StatusLate},
		{name: "out of range", day: mar7, want: attendance.StatusAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.record(st, tt.day).Status)
		})
	}

	assert.Equal(t, attendance.GateJustified, f.gateEvent(st, mar1).State)
	assert.Equal(t, attendance.Resolution{Status: attendance.StatusJustified, Source: attendance.PrecedenceJustification}, f.status(st, mar1))
	assert.Equal(t, attendance.Resolution{Status: attendance.StatusJustified, Source: attendance.PrecedenceJustification}, f.status(st, mar2),
		"days without any record resolve through the approved justification")

	notices := f.notifier.all()
	require.Len(t, notices, 2)
	for _, n := range notices {
		assert.Equal(t, attendance.StatusAbsent, n.PreviousStatus)
		assert.Equal(t, attendance.StatusJustified, n.NewStatus)
	}

	t.Run("reviewed requests are immutable", func(t *testing.T) {
		for _, d := range []attendance.JustificationState{attendance.JustificationApproved, attendance.JustificationRejected} {
			_, err := f.svc.ReviewJustification(f.ctx, f.admin, req.ID, attendance.JustificationReview{Decision: d})
			assert.Equal(t, attendance.ErrInvalidStateTransition, err)
		}
		_, err := f.svc.StartReview(f.ctx, f.admin, req.ID)
		assert.Equal(t, attendance.ErrInvalidStateTransition, err)

		var applied []attendance.AppliedJustification
		f.inTx(func(repo attendance.Repository) {
			var err error
			applied, err = repo.QueryAppliedJustifications(f.ctx, req.ID)
			require.NoError(t, err)
		})
		assert.Len(t, applied, 2)
	})

	t.Run("teacher absences after approval are justified", func(t *testing.T) {
		res := f.confirm("1A", mar6, entry(st, attendance.StatusAbsent))
		require.Len(t, res.Results, 1)
		assert.True(t, res.Results[0].Changed)
		assert.Equal(t, attendance.StatusJustified, res.Results[0].Status)
		assert.Equal(t, attendance.StatusLate, res.Results[0].Previous)

		res = f.confirm("1A", mar2, entry(st, attendance.StatusAbsent))
		require.Len(t, res.Results, 1)
		assert.Equal(t, attendance.StatusJustified, res.Results[0].Status)

		var applied []attendance.AppliedJustification
		f.inTx(func(repo attendance.Repository) {
			var err error
			applied, err = repo.QueryAppliedJustifications(f.ctx, req.ID)
			require.NoError(t, err)
		})
		assert.Len(t, applied, 4)
	})

	t.Run("teacher presence is refused over a justification", func(t *testing.T) {
		res := f.confirm("1A", mar1, entry(st, attendance.StatusPresent))
		require.Len(t, res.Results, 1)
		assert.True(t, res.Results[0].Refused)
		assert.Equal(t, attendance.StatusJustified, f.record(st, mar1).Status)
	})
}

func TestService_ReviewJustification_withdrawalWins(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")
	f.confirm("1A", today, entry(st, attendance.StatusAbsent))
	f.authorizeWithdrawal(st, today)

	res := f.approveJustification(st, today, today)
	assert.Empty(t, res.Applied)
	assert.NotNil(t, res.Applied)
	assert.Equal(t, attendance.StatusWithdrawn, f.record(st, today).Status)
	assert.Equal(t, attendance.StatusWithdrawn, f.status(st, today).Status)
}

func TestService_ReviewJustification_importedGateAbsence(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")
	f.inTx(func(repo attendance.Repository) {
		_, created, err := repo.CreateGateEvent(f.ctx, attendance.GateEvent{
			ID:            "imported-1",
			StudentID:     st.ID,
			InstitutionID: st.InstitutionID,
			Date:          mar5,
			State:         attendance.GateAbsent,
		})
		require.NoError(t, err)
		require.True(t, created)
	})

	f.approveJustification(st, mar5, mar5)
	assert.Equal(t, attendance.GateJustified, f.gateEvent(st, mar5).State)
}

func TestService_ReviewJustification_reject(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")
	f.confirm("1A", today, entry(st, attendance.StatusAbsent))
	req := f.submitJustification(f.teacher, st, today, today)

	started, err := f.svc.StartReview(f.ctx, f.admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.JustificationInReview, started.State)
	assert.Equal(t, f.admin.UserID, started.ReviewerID)

	_, err = f.svc.StartReview(f.ctx, f.admin, req.ID)
	assert.Equal(t, attendance.ErrInvalidStateTransition, err)

	res, err := f.svc.ReviewJustification(f.ctx, f.admin, req.ID, attendance.JustificationReview{Decision: attendance.JustificationRejected, Observations: "documento ilegible"})
	require.NoError(t, err)
	assert.Equal(t, attendance.JustificationRejected, res.Request.State)
	assert.Empty(t, res.Applied)
	assert.Zero(t, res.GateEventsUpdated)
	assert.Equal(t, attendance.StatusAbsent, f.record(st, today).Status)
	assert.Empty(t, f.notifier.all())

	t.Run("decision must be terminal", func(t *testing.T) {
		other := f.submitJustification(f.teacher, st, mar5, mar5)
		_, err := f.svc.ReviewJustification(f.ctx, f.admin, other.ID, attendance.JustificationReview{Decision: attendance.JustificationInReview})
		assert.True(t, isValidationError(err))
	})
}

func TestService_SubmitJustification(t *testing.T) {
	f := newFixture(t)
	mother := testutil.Guardian("madre", true)
	st := f.student("1A", "50000001", mother)
	otherParent := testutil.Guardian("otro", true)
	f.student("1A", "50000002", otherParent)
	foreign := testutil.CreateStudent(f.db, testutil.OtherInstitutionID, "1A", "60000001", "Ajeno")

	req := f.submitJustification(f.guardianActor(mother), st, mar1, mar5)
	assert.Equal(t, attendance.JustificationPending, req.State)
	assert.Equal(t, mother.ID, req.SubmittedBy)

	tests := []struct {
		name    string
		actor   attendance.Actor
		nj      attendance.NewJustification
		wantErr func(error) bool
	}{
		{
			name:    "guardian of another student",
			actor:   f.guardianActor(otherParent),
			nj:      attendance.NewJustification{StudentID: st.ID, From: mar1, To: mar1, DocumentRef: "x"},
			wantErr: func(err error) bool { return err == attendance.ErrStudentNotFound },
		},
		{
			name:    "student of another institution",
			actor:   f.teacher,
			nj:      attendance.NewJustification{StudentID: foreign.ID, From: mar1, To: mar1, DocumentRef: "x"},
			wantErr: func(err error) bool { return err == attendance.ErrStudentNotFound },
		},
		{
			name:    "inverted range",
			actor:   f.teacher,
			nj:      attendance.NewJustification{StudentID: st.ID, From: mar5, To: mar1, DocumentRef: "x"},
			wantErr: isValidationError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitJustification(f.ctx, tt.actor, tt.nj)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
		})
	}

	t.Run("reviews are scoped to the institution", func(t *testing.T) {
		otherAdmin := attendance.Actor{UserID: "admin-2", Role: attendance.RoleAdmin, InstitutionID: testutil.OtherInstitutionID}
		_, err := f.svc.ReviewJustification(f.ctx, otherAdmin, req.ID, attendance.JustificationReview{Decision: attendance.JustificationApproved})
		assert.Equal(t, attendance.ErrJustificationNotFound, err)
	})

	t.Run("list", func(t *testing.T) {
		f.submitJustification(f.teacher, st, mar6, mar6)
		all, err := f.svc.ListJustifications(f.ctx, f.admin, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		approved, err := f.svc.ListJustifications(f.ctx, f.admin, attendance.JustificationApproved)
		require.NoError(t, err)
		assert.Empty(t, approved)
	})
}

func TestNewJustification_Validate(t *testing.T) {
	validate, _ := testutil.Validator()
	valid := attendance.NewJustification{StudentID: "s1", From: mar1, To: mar5, DocumentRef: "doc.pdf"}

	tests := []struct {
		name    string
		mutate  func(nj *attendance.NewJustification)
		wantErr bool
	}{
		{name: "valid", mutate: func(*attendance.NewJustification) {}},
		{name: "single day", mutate: func(nj *attendance.NewJustification) { nj.To = nj.From }},
		{name: "inverted", mutate: func(nj *attendance.NewJustification) { nj.From, nj.To = nj.To, nj.From }, wantErr: true},
		{name: "no document", mutate: func(nj *attendance.NewJustification) { nj.DocumentRef = "" }, wantErr: true},
		{name: "no start", mutate: func(nj *attendance.NewJustification) { nj.From = attendance.Date{} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nj := valid
			tt.mutate(&nj)
			err := nj.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	jr := attendance.JustificationReview{Decision: attendance.JustificationPending}
	assert.Error(t, jr.Validate(validate))
	jr.Decision = attendance.JustificationApproved
	assert.NoError(t, jr.Validate(validate))
}
