package adminapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/resilienced/config"
	"github.com/talkincode/resilienced/internal/app"
	"github.com/talkincode/resilienced/internal/domain"
	"github.com/talkincode/resilienced/internal/resilience"
	"github.com/talkincode/resilienced/internal/testutil"
	"github.com/talkincode/resilienced/internal/webserver"
)

type testServer struct {
	t        *testing.T
	app      *app.Application
	e        *echo.Echo
	services map[string]*domain.Service

	mu     sync.Mutex
	events []resilience.Event
}

func newTestServer(t *testing.T) *testServer {
	Init()
	a := app.NewApplication(config.Default())
	db := testutil.NewDB(t)
	a.OverrideDB(db)

	s := &testServer{t: t, app: a, e: webserver.NewEcho(a)}
	s.services = testutil.SeedServices(t, db, "checkout", "payment")

	cancel, err := a.Bus().Subscribe(resilience.DefaultTopic, func(payload interface{}) {
		if ev, ok := payload.(resilience.Event); ok {
			s.mu.Lock()
			s.events = append(s.events, ev)
			s.mu.Unlock()
		}
	})
	require.NoError(t, err)
	t.Cleanup(cancel)
	return s
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, webserver.ApiPrefix+path, nil)
	} else {
		req = httptest.NewRequest(method, webserver.ApiPrefix+path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) operations() []resilience.Operation {
	s.app.Bus().Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]resilience.Operation, 0, len(s.events))
	for _, ev := range s.events {
		ops = append(ops, ev.Operation)
	}
	return ops
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func data(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	body := decode(t, rec)
	d, isMap := body["data"].(map[string]interface{})
	require.True(t, isMap, rec.Body.String())
	return d
}
