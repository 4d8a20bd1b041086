package attendance_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	"github.com/trezcool/asistencia/tests"
)

type signal struct {
	name  string
	apply func(f *fixture, st attendance.Student)
}

var (
	gateSignal = signal{name: "gate", apply: func(f *fixture, st attendance.Student) {
		f.ingress(st, today, 7, 50)
	}}
	teacherSignal = signal{name: "teacher", apply: func(f *fixture, st attendance.Student) {
		f.confirm("1A", today, entry(st, attendance.StatusAbsent))
	}}
	withdrawalSignal = signal{name: "withdrawal", apply: func(f *fixture, st attendance.Student) {
		f.authorizeWithdrawal(st, today)
	}}
	justificationSignal = signal{name: "justification", apply: func(f *fixture, st attendance.Student) {
		f.approveJustification(st, today, today)
	}}
)

func permutations(signals []signal) [][]signal {
	if len(signals) <= 1 {
		return [][]signal{signals}
	}
	var perms [][]signal
	for i, first := range signals {
		rest := make([]signal, 0, len(signals)-1)
		rest = append(rest, signals[:i]...)
		rest = append(rest, signals[i+1:]...)
		for _, p := range permutations(rest) {
			perms = append(perms, append([]signal{first}, p...))
		}
	}
	return perms
}

func permutationName(perm []signal) string {
	names := make([]string, len(perm))
	for i, s := range perm {
		names[i] = s.name
	}
	return strings.Join(names, ">")
}

// The resolved status of a day never depends on the order its signals arrive in.
func TestPrecedence_arrivalOrder(t *testing.T) {
	tests := []struct {
		name      string
		signals   []signal
		wantPerms int
		want      attendance.Resolution
	}{
		{
			name:      "withdrawal wins",
			signals:   []signal{gateSignal, teacherSignal, withdrawalSignal, justificationSignal},
			wantPerms: 24,
			want:      attendance.Resolution{Status: attendance.StatusWithdrawn, Source: attendance.PrecedenceWithdrawal},
		},
		{
			name:      "justification beats the teacher",
			signals:   []signal{gateSignal, teacherSignal, justificationSignal},
			wantPerms: 6,
			want:      attendance.Resolution{Status: attendance.StatusJustified, Source: attendance.PrecedenceJustification},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := permutations(tt.signals)
			require.Len(t, perms, tt.wantPerms)

			for _, perm := range perms {
				perm := perm
				t.Run(permutationName(perm), func(t *testing.T) {
					f := newFixture(t)
					st := f.student("1A", "50000001", testutil.Guardian("madre", true))
					for _, s := range perm {
						s.apply(f, st)
					}

					assert.Equal(t, tt.want, f.status(st, today))
					assert.Equal(t, tt.want.Status, f.record(st, today).Status)

					roster, err := f.svc.GetPreloadedRoster(f.ctx, f.teacher, "1A", today, "")
					require.NoError(t, err)
					require.Len(t, roster.Entries, 1)
					assert.Equal(t, tt.want.Status, roster.Entries[0].Suggested)
				})
			}
		})
	}
}

func TestScenario_schoolDay(t *testing.T) {
	f := newFixture(t)
	mother := testutil.Guardian("madre", true)
	st := f.student("1A", "50000001", mother)

	// 07:55 the student scans the DNI at the gate
	res, err := f.svc.RegisterGateEvent(f.ctx, f.gate, attendance.GateScan{Identifier: "50000001", Action: attendance.GateActionIngress, Timestamp: timePtr(f.at(today, 7, 55))})
	require.NoError(t, err)
	assert.Equal(t, attendance.GateEntered, res.GateState)

	// 08:15 the teacher opens the roster and confirms the suggestion
	roster, err := f.svc.GetPreloadedRoster(f.ctx, f.teacher, "1A", today, "")
	require.NoError(t, err)
	require.Len(t, roster.Entries, 1)
	assert.Equal(t, attendance.StatusPresent, roster.Entries[0].Suggested)
	assert.True(t, roster.Entries[0].PossibleEvasion)

	batch := f.confirm("1A", today, entry(st, roster.Entries[0].Suggested))
	assert.Equal(t, attendance.GateInClass, batch.Results[0].GateState)

	// 10:00 the mother asks to pick the student up for a medical appointment and authorizes it
	req, err := f.svc.RequestWithdrawal(f.ctx, f.guardianActor(mother), attendance.NewWithdrawal{
		StudentID:        st.ID,
		Date:             today,
		Time:             core.ClockTime{Hour: 10, Minute: 30},
		Reason:           attendance.ReasonMedicalAppointment,
		PickupGuardianID: mother.ID,
	})
	require.NoError(t, err)
	_, err = f.svc.ResolveWithdrawal(f.ctx, f.guardianActor(mother), req.ID, attendance.WithdrawalResolution{Decision: attendance.DecisionAuthorize})
	require.NoError(t, err)

	// 10:30 the student leaves
	res, err = f.svc.RegisterGateEvent(f.ctx, f.gate, attendance.GateScan{Identifier: "QR-50000001", Action: attendance.GateActionEgress, Timestamp: timePtr(f.at(today, 10, 30))})
	require.NoError(t, err)
	assert.Equal(t, attendance.ResultRegistered, res.Status)
	assert.Equal(t, attendance.GateWithdrawn, res.GateState)

	sd, err := f.svc.StudentStatus(f.ctx, f.guardianActor(mother), st.ID, today)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusWithdrawn, sd.Resolution.Status)
	require.NotNil(t, sd.Gate)
	require.NotNil(t, sd.Withdrawal)
	assert.Nil(t, sd.Justification)

	history, err := f.svc.StudentHistory(f.ctx, f.admin, st.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, attendance.StatusPresent, history[0].NewStatus)
	assert.Equal(t, f.teacher.UserID, history[0].Actor)
	assert.Equal(t, attendance.StatusPresent, history[1].PreviousStatus)
	assert.Equal(t, attendance.StatusWithdrawn, history[1].NewStatus)
	assert.Equal(t, mother.ID, history[1].Actor)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, attendance.StatusWithdrawn, notices[0].NewStatus)
	assert.Equal(t, mother.ID, notices[0].Guardians[0].ID)

	t.Run("other guardians cannot see the student", func(t *testing.T) {
		stranger := testutil.Guardian("extrano", true)
		_, err := f.svc.StudentStatus(f.ctx, f.guardianActor(stranger), st.ID, today)
		assert.Equal(t, attendance.ErrStudentNotFound, err)
	})
}

type panickingNotifier struct{}

func (panickingNotifier) NotifyStatusChange(context.Context, attendance.StatusChangeNotice) error {
	panic("mail server on fire")
}

func TestService_notifyFailures(t *testing.T) {
	tests := []struct {
		name     string
		notifier func(f *fixture) attendance.Notifier
	}{
		{
			name: "error",
			notifier: func(f *fixture) attendance.Notifier {
				f.notifier.err = errors.New("smtp timeout")
				return f.notifier
			},
		},
		{
			name:     "panic",
			notifier: func(*fixture) attendance.Notifier { return panickingNotifier{} },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc, err := attendance.NewService(f.db, tt.notifier(f), f.logger, f.conf)
			require.NoError(t, err)
			st := f.student("1A", "50000001")
			f.confirm("1A", today, entry(st, attendance.StatusAbsent))

			res, err := svc.ConfirmBatch(f.ctx, f.teacher, attendance.Confirmation{
				ClassroomID: "1A",
				Date:        today,
				Entries:     []attendance.ConfirmationEntry{entry(st, attendance.StatusPresent)},
			})
			require.NoError(t, err, "a failed notification never undoes the change")
			assert.True(t, res.Results[0].Changed)
			assert.Equal(t, attendance.StatusPresent, f.record(st, today).Status)
			assert.Equal(t, 1, f.logger.Count("error"))
		})
	}
}

func TestNewService_invalidConfig(t *testing.T) {
	conf := testutil.Config(t)
	conf.Attendance.LateCutoff = core.ClockTime{Hour: 7}
	_, err := attendance.NewService(nil, nil, new(testutil.Logger), conf)
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err), fmt.Sprintf("%T", err))
}

func timePtr(t time.Time) *time.Time { return &t }
