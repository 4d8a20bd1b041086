package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	dummydb "github.com/trezcool/asistencia/storage/database/dummy"
	"github.com/trezcool/asistencia/tests"
)

// the school day every test runs on, a Monday
var today = attendance.NewDate(2024, 3, 4)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []attendance.StatusChangeNotice
	err     error
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, notice attendance.StatusChangeNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) all() []attendance.StatusChangeNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]attendance.StatusChangeNotice(nil), n.notices...)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	conf     *core.Config
	db       *dummydb.DB
	svc      *attendance.Service
	logger   *testutil.Logger
	notifier *recordingNotifier

	admin, teacher, gate attendance.Actor
}

func newFixture(t *testing.T) *fixture {
	conf := testutil.Config(t)
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		conf:     conf,
		db:       dummydb.Open(),
		logger:   new(testutil.Logger),
		notifier: new(recordingNotifier),
		admin:    attendance.Actor{UserID: "admin-1", Role: attendance.RoleAdmin, InstitutionID: testutil.InstitutionID},
		teacher:  attendance.Actor{UserID: "teacher-1", Role: attendance.RoleTeacher, InstitutionID: testutil.InstitutionID},
		gate:     attendance.Actor{UserID: "gate-1", Role: attendance.RoleGateStaff, InstitutionID: testutil.InstitutionID},
	}
	var err error
	f.svc, err = attendance.NewService(f.db, f.notifier, f.logger, conf)
	require.NoError(t, err)

	t.Cleanup(attendance.SetNowFunc(func() time.Time { return f.at(today, 7, 0) }))
	return f
}

// at returns the instant the institution's clock shows hh:mm on `day`.
func (f *fixture) at(day attendance.Date, hh, mm int) time.Time {
	return day.At(core.ClockTime{Hour: hh, Minute: mm}, f.conf.Attendance.Location)
}

func (f *fixture) student(classroomID, dni string, guardians ...attendance.Guardian) attendance.Student {
	return testutil.CreateStudent(f.db, testutil.InstitutionID, classroomID, dni, "Apellido "+dni, guardians...)
}

func (f *fixture) guardianActor(g attendance.Guardian) attendance.Actor {
	return attendance.Actor{UserID: g.ID, Role: attendance.RoleGuardian, InstitutionID: testutil.InstitutionID}
}

func (f *fixture) ingress(st attendance.Student, day attendance.Date, hh, mm int) attendance.GateResult {
	res, err := f.svc.RegisterIngress(f.ctx, f.gate, st.DNI, f.at(day, hh, mm))
	require.NoError(f.t, err)
	return res
}

func (f *fixture) confirm(classroomID string, day attendance.Date, entries ...attendance.ConfirmationEntry) attendance.BatchResult {
	res, err := f.svc.ConfirmBatch(f.ctx, f.teacher, attendance.Confirmation{
		ClassroomID: classroomID,
		Date:        day,
		Entries:     entries,
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) authorizeWithdrawal(st attendance.Student, day attendance.Date) attendance.WithdrawalRequest {
	req, err := f.svc.RequestWithdrawal(f.ctx, f.teacher, attendance.NewWithdrawal{
		StudentID: st.ID,
		Date:      day,
		Time:      core.ClockTime{Hour: 10, Minute: 30},
		Reason:    attendance.ReasonMedicalAppointment,
	})
	require.NoError(f.t, err)
	req, err = f.svc.ResolveWithdrawal(f.ctx, f.admin, req.ID, attendance.WithdrawalResolution{Decision: attendance.DecisionAuthorize})
	require.NoError(f.t, err)
	return req
}

func (f *fixture) approveJustification(st attendance.Student, from, to attendance.Date) attendance.ReviewResult {
	req, err := f.svc.SubmitJustification(f.ctx, f.teacher, attendance.NewJustification{
		StudentID:   st.ID,
		From:        from,
		To:          to,
		DocumentRef: "certificado-medico.pdf",
	})
	require.NoError(f.t, err)
	res, err := f.svc.ReviewJustification(f.ctx, f.teacher, req.ID, attendance.JustificationReview{Decision: attendance.JustificationApproved})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) status(st attendance.Student, day attendance.Date) attendance.Resolution {
	sd, err := f.svc.StudentStatus(f.ctx, f.admin, st.ID, day)
	require.NoError(f.t, err)
	return sd.Resolution
}

// inTx runs fn against the store, for assertions on rows the service does not expose.
func (f *fixture) inTx(fn func(repo attendance.Repository)) {
	require.NoError(f.t, f.db.RunInTx(f.ctx, func(repo attendance.Repository) error {
		fn(repo)
		return nil
	}))
}

func (f *fixture) gateEvent(st attendance.Student, day attendance.Date) (ev attendance.GateEvent) {
	f.inTx(func(repo attendance.Repository) {
		var err error
		ev, err = repo.GetGateEvent(f.ctx, st.ID, day)
		require.NoError(f.t, err)
	})
	return ev
}

func entry(st attendance.Student, status attendance.Status) attendance.ConfirmationEntry {
	return attendance.ConfirmationEntry{StudentID: st.ID, Status: status}
}
