package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/asistencia/apps/api/echo"
	"github.com/trezcool/asistencia/core"
	"github.com/trezcool/asistencia/core/attendance"
	dummydb "github.com/trezcool/asistencia/storage/database/dummy"
	"github.com/trezcool/asistencia/tests"
)

var (
	today = attendance.NewDate(2024, 3, 4)

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type testApp struct {
	t      *testing.T
	conf   *core.Config
	db     *dummydb.DB
	logger *testutil.Logger
	server *echoapi.Server
}

func setup(t *testing.T) *testApp {
	conf := testutil.Config(t)
	db := dummydb.Open()
	logger := new(testutil.Logger)
	validate, translator := testutil.Validator()

	svc, err := attendance.NewService(db, nil, logger, conf)
	require.NoError(t, err)

	return &testApp{
		t:      t,
		conf:   conf,
		db:     db,
		logger: logger,
		server: echoapi.NewServer(echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Service:    svc,
			Validate:   validate,
			Translator: translator,
		}),
	}
}

func (app *testApp) token(userID string, role attendance.Role, institutionID ...int64) string {
	inst := testutil.InstitutionID
	if len(institutionID) > 0 {
		inst = institutionID[0]
	}
	token, err := echoapi.GenerateToken(echoapi.NewClaims(app.conf, userID, role, inst), app.conf.SecretKey)
	if err != nil {
		app.t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (app *testApp) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.server.ServeHTTP(rec, req)
	return rec
}

// at returns the instant the institution's clock shows hh:mm on `day`.
func (app *testApp) at(day attendance.Date, hh, mm int) time.Time {
	return day.At(core.ClockTime{Hour: hh, Minute: mm}, app.conf.Attendance.Location)
}

// svc returns a service over the app's store, for arranging state without going through HTTP.
func (app *testApp) svc() *attendance.Service {
	svc, err := attendance.NewService(app.db, nil, app.logger, app.conf)
	require.NoError(app.t, err)
	return svc
}

func (app *testApp) ingress(st attendance.Student, hh, mm int) {
	gate := attendance.Actor{UserID: "gate-1", Role: attendance.RoleGateStaff, InstitutionID: st.InstitutionID}
	_, err := app.svc().RegisterIngress(context.Background(), gate, st.DNI, app.at(today, hh, mm))
	require.NoError(app.t, err)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
