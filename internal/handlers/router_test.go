package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckwmsfield/internal/config"
	"github.com/xelth-com/eckwmsfield/internal/database"
	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/remote"
	"github.com/xelth-com/eckwmsfield/internal/sync"
	"github.com/xelth-com/eckwmsfield/internal/testserver"
	"github.com/xelth-com/eckwmsfield/internal/websocket"
)

type state struct {
	online atomic.Bool
	authed atomic.Bool
}

func (s *state) IsConnected() bool                    { return s.online.Load() }
func (s *state) Subscribe(func(bool)) func()          { return func() {} }
func (s *state) IsAuthenticated(context.Context) bool { return s.authed.Load() }
func (s *state) Email() string                        { return "clerk@example.com" }

type fixture struct {
	srv     *testserver.Server
	state   *state
	session *sync.Session
	router  *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testserver.New()
	ts := srv.Start()
	t.Cleanup(ts.Close)

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "api.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	token := srv.IssueToken()
	client := remote.New(ts.URL, 2*time.Second, remote.TokenFunc(func() (string, bool) { return token, true }), nil)

	st := &state{}
	st.online.Store(true)
	st.authed.Store(true)
	session := sync.NewSession()
	engine, err := sync.NewEngine(sync.Options{DB: db, Client: client, Conn: st, Auth: st, Session: session})
	require.NoError(t, err)

	return &fixture{
		srv:     srv,
		state:   st,
		session: session,
		router:  NewRouter(NewSyncHandler(engine, st, st, db), websocket.NewHub(nil), nil),
	}
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", &body))
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, body["version"])
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t)

	var st SyncStatus
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sync/status", &st))
	require.Nil(t, st.LastSync)
	require.Empty(t, st.Kinds)
	require.True(t, st.Online)
	require.Equal(t, "clerk@example.com", st.Email)

	f.srv.Seed(models.KindSuppliers, models.Supplier{Partner: models.Partner{Name: "Acme"}})
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sync", nil))

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/sync/status", &st))
	require.NotNil(t, st.LastSync)
	require.Len(t, st.Kinds, len(models.Kinds()))
	require.False(t, st.Syncing)
}

func TestTriggerFullSync(t *testing.T) {
	f := newFixture(t)
	f.srv.Seed(models.KindSuppliers, models.Supplier{Partner: models.Partner{Name: "Acme"}})

	var res sync.Result
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sync", &res))
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Kinds, len(models.Kinds()))
}

func TestTriggerFullSync_PartialFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.srv.FailNext(models.KindProducts, http.MethodGet, http.StatusInternalServerError)

	var res sync.Result
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sync", &res))
	require.False(t, res.Success)
	require.Contains(t, res.Message, "products")
}

func TestTriggerFullSync_Rejections(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.session.TryBegin())
	var res sync.Result
	require.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/sync", &res))
	require.False(t, res.Success)
	f.session.End()

	f.state.authed.Store(false)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/sync", nil))

	f.state.online.Store(false)
	require.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/sync", nil))
}

func TestSyncKind(t *testing.T) {
	f := newFixture(t)
	f.srv.Seed(models.KindVehicles, models.Vehicle{Plate: "B-XL 100"})

	var res sync.Result
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/sync/vehicles", &res))
	require.True(t, res.Success, res.Message)
	require.Len(t, res.Kinds, 1)
	require.Equal(t, 1, res.Kinds[0].Downloaded)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/API/Sync/Vehicles", &res))
	require.True(t, res.Success, res.Message)

	var body map[string]string
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/sync/pallets", &body))
	require.Contains(t, body["error"], "pallets")
}
