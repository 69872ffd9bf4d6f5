package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/eagleeye/core"
	"github.com/trezcool/eagleeye/core/tracker"
	dummydb "github.com/trezcool/eagleeye/storage/database/dummy"
	memkv "github.com/trezcool/eagleeye/storage/local/memory"
	testutil "github.com/trezcool/eagleeye/tests"
)

const secretKey = "secret"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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

type testApp struct {
	*Server
	kv     *memkv.Store
	remote *dummydb.DB
	coord  *tracker.Coordinator
}

// newTestApp serves a fresh coordinator on local data with a dummy remote store.
// seed runs on the device storage before it is opened.
func newTestApp(t *testing.T, seed ...func(kv *memkv.Store)) *testApp {
	t.Helper()
	conf := &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "EagleEye",
		SecretKey: secretKey,
	}
	logger := testutil.NewLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	tracker.InitValidators(validate, translator)

	kv := memkv.Open()
	remote := dummydb.Open()
	for _, fn := range seed {
		fn(kv)
	}
	local, err := tracker.OpenLocalStore(context.Background(), kv, logger)
	require.NoError(t, err)

	coord := tracker.NewCoordinator(tracker.CoordinatorDeps{
		Local:         local,
		Remote:        remote,
		Logger:        logger,
		SweepInterval: time.Hour,
	})
	coord.Start(context.Background())
	t.Cleanup(coord.Close)

	server := NewServer(ServerDeps{
		Conf:        conf,
		Logger:      logger,
		Coordinator: coord,
		Migrator:    tracker.NewMigrator(kv, remote, logger),
		Validate:    validate,
		Translator:  translator,
	})
	return &testApp{Server: server, kv: kv, remote: remote, coord: coord}
}

func (app *testApp) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
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

func getToken(t *testing.T, sess tracker.Session) string {
	token, err := GenerateToken(NewClaims(sess, "EagleEye", time.Hour), secretKey)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchall(%s): %v", rec.Body.String(), err)
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

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		if rec.Body.Len() != 0 {
			t.Errorf("failed! data = %v; want no data", rec.Body.String())
		}
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
