package attendance_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	"github.com/trezcool/asistencia/tests"
)

func TestService_RegisterIngress(t *testing.T) {
	tests := []struct {
		name          string
		hh, mm        int
		wantState     attendance.GateState
		wantAfterLate bool
	}{
		{name: "early", hh: 7, mm: 30, wantState: attendance.GateEntered},
		{name: "on the cutoff", hh: 8, mm: 0, wantState: attendance.GateEntered},
		{name: "late", hh: 8, mm: 10, wantState: attendance.GateLate},
		{name: "on the late cutoff", hh: 8, mm: 30, wantState: attendance.GateLate},
		{name: "after the late cutoff", hh: 9, mm: 15, wantState: attendance.GateLate, wantAfterLate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			st := f.student("1A", "50000001")

			res := f.ingress(st, today, tt.hh, tt.mm)
			assert.Equal(t, attendance.ResultRegistered, res.Status)
			assert.Equal(t, st.ID, res.StudentID)
			assert.Equal(t, tt.wantState, res.GateState)
			assert.True(t, res.Timestamp.Equal(f.at(today, tt.hh, tt.mm)))
			assert.Equal(t, tt.wantAfterLate, res.AfterLateCutoff)

			wantWarns := 0
			if tt.wantAfterLate {
				wantWarns = 1
			}
			assert.Equal(t, wantWarns, f.logger.Count("warn"))
		})
	}
}

func TestService_RegisterIngress_duplicate(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")

	first := f.ingress(st, today, 7, 55)
	second := f.ingress(st, today, 8, 40)

	assert.False(t, first.IsDuplicate())
	assert.True(t, second.IsDuplicate())
	assert.Equal(t, attendance.GateEntered, second.GateState)
	assert.True(t, second.Timestamp.Equal(f.at(today, 7, 55)), "the original timestamp is kept")
	assert.Equal(t, attendance.GateEntered, f.gateEvent(st, today).State)
}

func TestService_RegisterIngress_concurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")

	const scans = 10
	results := make([]attendance.GateResult, scans)
	errs := make([]error, scans)
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.RegisterIngress(f.ctx, f.gate, st.DNI, f.at(today, 7, 40+i))
		}(i)
	}
	wg.Wait()

	var registered int
	for i := range results {
		require.NoError(t, errs[i])
		if !results[i].IsDuplicate() {
			registered++
		}
	}
	assert.Equal(t, 1, registered)

	events, err := f.svc.QueryDay(f.ctx, f.admin, today, "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestService_RegisterIngress_identifiers(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")
	other := testutil.CreateStudent(f.db, testutil.OtherInstitutionID, "1A", "50000002", "Ajeno")

	tests := []struct {
		name       string
		identifier string
		wantErr    error
	}{
		{name: "by DNI", identifier: st.DNI},
		{name: "by QR code", identifier: st.QRCode},
		{name: "with spaces", identifier: "  " + st.DNI + " "},
		{name: "unknown", identifier: "99999999", wantErr: attendance.ErrStudentNotFound},
		{name: "another institution", identifier: other.DNI, wantErr: attendance.ErrStudentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.RegisterIngress(f.ctx, f.gate, tt.identifier, f.at(today, 7, 50))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, st.ID, res.StudentID)
		})
	}
}

func TestService_RegisterEgress(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")

	_, err := f.svc.RegisterEgress(f.ctx, f.gate, st.DNI, f.at(today, 13, 0))
	assert.Equal(t, attendance.ErrNoIngressRecord, err, "egress without ingress")

	f.ingress(st, today, 7, 55)

	_, err = f.svc.RegisterEgress(f.ctx, f.gate, st.DNI, f.at(today, 7, 0))
	assert.True(t, isValidationError(err), "egress before ingress")

	res, err := f.svc.RegisterEgress(f.ctx, f.gate, st.DNI, f.at(today, 13, 0))
	require.NoError(t, err)
	assert.Equal(t, attendance.ResultRegistered, res.Status)
	assert.Equal(t, attendance.GateEntered, res.GateState, "egress does not change the gate state")

	res, err = f.svc.RegisterEgress(f.ctx, f.gate, st.DNI, f.at(today, 13, 20))
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate())
	assert.True(t, res.Timestamp.Equal(f.at(today, 13, 0)))

	ev := f.gateEvent(st, today)
	require.NotNil(t, ev.EgressAt)
	assert.True(t, ev.EgressAt.Equal(f.at(today, 13, 0)))
}

func TestService_RegisterGateEvent(t *testing.T) {
	f := newFixture(t)
	st := f.student("1A", "50000001")
	ts := f.at(today, 7, 45)

	res, err := f.svc.RegisterGateEvent(f.ctx, f.gate, attendance.GateScan{Identifier: st.DNI, Action: attendance.GateActionIngress, Timestamp: &ts})
	require.NoError(t, err)
	assert.Equal(t, attendance.GateEntered, res.GateState)

	// no timestamp: the server clock (07:00) is used
	other := f.student("1A", "50000002")
	res, err = f.svc.RegisterGateEvent(f.ctx, f.gate, attendance.GateScan{Identifier: other.DNI, Action: attendance.GateActionIngress})
	require.NoError(t, err)
	assert.True(t, res.Timestamp.Equal(f.at(today, 7, 0)))

	_, err = f.svc.RegisterGateEvent(f.ctx, f.gate, attendance.GateScan{Identifier: st.DNI, Action: "volver"})
	assert.True(t, isValidationError(err))
}

func TestService_CloseGateDay(t *testing.T) {
	f := newFixture(t)
	present := f.student("1A", "50000001")
	absent1 := f.student("1A", "50000002")
	absent2 := f.student("1B", "50000003")
	testutil.CreateStudent(f.db, testutil.OtherInstitutionID, "1A", "60000001", "Ajeno")

	f.ingress(present, today, 7, 50)

	n, err := f.svc.CloseGateDay(f.ctx, f.admin, today)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, attendance.GateEntered, f.gateEvent(present, today).State)
	assert.Equal(t, attendance.GateNoShow, f.gateEvent(absent1, today).State)
	assert.Equal(t, attendance.GateNoShow, f.gateEvent(absent2, today).State)
	assert.Equal(t, attendance.Resolution{Status: attendance.StatusAbsent, Source: attendance.PrecedenceGate}, f.status(absent1, today))

	n, err = f.svc.CloseGateDay(f.ctx, f.admin, today)
	require.NoError(t, err)
	assert.Zero(t, n, "closing twice records nothing new")
}

func TestService_QueryDay(t *testing.T) {
	f := newFixture(t)
	s1 := f.student("1A", "50000001")
	s2 := f.student("1A", "50000002")
	s3 := f.student("1B", "50000003")
	f.ingress(s1, today, 7, 50)
	f.ingress(s2, today, 7, 40)
	f.ingress(s3, today, 7, 45)
	f.ingress(s1, today.AddDays(1), 7, 45)

	events, err := f.svc.QueryDay(f.ctx, f.admin, today, "", core.DBOrdering{Field: "ingress_at", Ascending: true})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{s2.ID, s3.ID, s1.ID}, []string{events[0].StudentID, events[1].StudentID, events[2].StudentID})

	events, err = f.svc.QueryDay(f.ctx, f.admin, today, "1A", core.DBOrdering{Field: "ingress_at"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, s1.ID, events[0].StudentID, "descending")

	_, err = f.svc.QueryDay(f.ctx, f.admin, today, "", core.DBOrdering{Field: "dni"})
	assert.True(t, isValidationError(err))
}

func isValidationError(err error) bool {
	_, ok := err.(*core.ValidationError)
	return ok
}
