// Package testserver is an in-memory implementation of the central server's
// REST API. It backs the integration tests of the field client and can be
// run standalone for local development.
package testserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/utils"
)

// record is a stored entity in wire form.
type record map[string]any

type table struct {
	nextID int64
	rows   map[int64]record
}

type failure struct {
	kind   models.Kind
	method string
	status int
}

type user struct {
	id   string
	hash string
}

// references lists the JSON fields validated against other collections.
var references = map[models.Kind]map[string]models.Kind{
	models.KindProducts: {"supplierId": models.KindSuppliers},
	models.KindStock:    {"productId": models.KindProducts},
	models.KindShipments: {
		"customerId": models.KindCustomers,
		"supplierId": models.KindSuppliers,
		"vehicleId":  models.KindVehicles,
		"productId":  models.KindProducts,
	},
}

// Server is the in-memory authoritative server.
type Server struct {
	mu sync.Mutex

	router    *mux.Router
	secret    []byte
	accessTTL time.Duration
	hashCost  int
	online    bool

	users    map[string]user
	revoked  map[string]bool
	tables   map[models.Kind]*table
	failures []failure
	calls    map[string]int
	now      func() time.Time
}

// New returns an online server with no users and empty collections.
func New() *Server {
	s := &Server{
		router:    mux.NewRouter(),
		secret:    []byte("testserver-secret"),
		accessTTL: time.Hour,
		hashCost:  bcrypt.DefaultCost,
		online:    true,
		users:     make(map[string]user),
		revoked:   make(map[string]bool),
		tables:    make(map[models.Kind]*table),
		calls:     make(map[string]int),
		// microsecond precision, like a postgres timestamp column
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	for _, k := range models.Kinds() {
		s.tables[k] = &table{nextID: 1, rows: make(map[int64]record)}
	}

	s.router.Use(s.connectivity)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)

	auth := s.router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", s.logout).Methods(http.MethodPost)

	api := s.router.NewRoute().Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/{kind}", s.list).Methods(http.MethodGet)
	api.HandleFunc("/{kind}", s.create).Methods(http.MethodPost)
	api.HandleFunc("/{kind}/{id:[0-9]+}", s.get).Methods(http.MethodGet)
	api.HandleFunc("/{kind}/{id:[0-9]+}", s.update).Methods(http.MethodPut)
	api.HandleFunc("/{kind}/{id:[0-9]+}", s.remove).Methods(http.MethodDelete)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves s on a loopback port until the returned server is closed.
func (s *Server) Start() *httptest.Server {
	return httptest.NewServer(s)
}

// ---- knobs ----

// SetOnline toggles reachability. While offline every connection is
// dropped without a response.
func (s *Server) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// SetPasswordCost sets the bcrypt cost of accounts added from now on.
// Tests use bcrypt.MinCost to keep logins fast.
func (s *Server) SetPasswordCost(cost int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashCost = cost
}

// AddUser registers an account that can log in.
func (s *Server) AddUser(email, password string) error {
	s.mu.Lock()
	cost := s.hashCost
	s.mu.Unlock()
	hash, err := utils.HashPasswordCost(password, cost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(email)] = user{id: fmt.Sprintf("u%d", len(s.users)+1), hash: hash}
	return nil
}

// IssueToken returns a valid access token for tests that bypass login.
func (s *Server) IssueToken() string {
	s.mu.Lock()
	ttl := s.accessTTL
	s.mu.Unlock()
	access, _, err := utils.GenerateTokens("test", "test@local", s.secret, ttl)
	if err != nil {
		panic(err)
	}
	return access
}

// FailNext makes the next request matching kind and method answer with
// status.
func (s *Server) FailNext(kind models.Kind, method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{kind: kind, method: method, status: status})
}

// Calls returns how many requests for kind and method reached the
// collection handlers.
func (s *Server) Calls(kind models.Kind, method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[string(kind)+" "+method]
}

// Seed stores rec as if a client had created it and returns its id. rec is
// any value that marshals to a JSON object. Seed panics on invalid input.
func (s *Server) Seed(kind models.Kind, rec any) models.ID {
	obj := toRecord(rec)
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.RemoteID(uint64(s.insert(kind, obj)))
}

// Modify overwrites fields of a stored record, as a concurrent editor on
// the server would.
func (s *Server) Modify(kind models.Kind, id models.ID, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tables[kind].rows[int64(id.Number())]
	if !ok {
		panic(fmt.Sprintf("testserver: %s %s not found", kind, id))
	}
	for k, v := range fields {
		row[k] = v
	}
	row["updatedAt"] = s.now()
}

// MarkDeleted soft-deletes a stored record on the server side.
func (s *Server) MarkDeleted(kind models.Kind, id models.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.tables[kind].rows[int64(id.Number())]; ok {
		s.softDelete(row)
	}
}

// Remove drops a record from the server entirely.
func (s *Server) Remove(kind models.Kind, id models.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[kind].rows, int64(id.Number()))
}

// Records decodes every stored record of kind, deleted ones included, in id
// order.
func Records[T any](s *Server, kind models.Kind) []T {
	s.mu.Lock()
	rows := s.sorted(kind)
	s.mu.Unlock()

	data, err := json.Marshal(rows)
	if err != nil {
		panic(err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

// ---- middleware ----

func (s *Server) connectivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		online := s.online
		s.mu.Unlock()
		if online {
			next.ServeHTTP(w, r)
			return
		}
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				if tcp, ok := conn.(*net.TCPConn); ok {
					_ = tcp.SetLinger(0)
				}
				conn.Close()
				return
			}
		}
		respondError(w, http.StatusServiceUnavailable, "offline")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if _, err := utils.ValidateToken(token, s.secret, utils.TokenTypeAccess); err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---- helpers ----

func toRecord(v any) record {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testserver: marshal seed: %v", err))
	}
	var obj record
	if err := json.Unmarshal(data, &obj); err != nil {
		panic(fmt.Sprintf("testserver: seed is not an object: %v", err))
	}
	return obj
}

// insert assigns a fresh id. Callers hold s.mu.
func (s *Server) insert(kind models.Kind, obj record) int64 {
	t := s.tables[kind]
	id := t.nextID
	t.nextID++
	obj["id"] = id
	obj["deleted"] = false
	delete(obj, "deletedAt")
	obj["updatedAt"] = s.now()
	t.rows[id] = obj
	return id
}

func (s *Server) softDelete(row record) {
	if row["deleted"] == true {
		return
	}
	now := s.now()
	row["deleted"] = true
	row["deletedAt"] = now
	row["updatedAt"] = now
}

func (s *Server) sorted(kind models.Kind) []record {
	t := s.tables[kind]
	ids := make([]int64, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]record, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.rows[id])
	}
	return out
}

// validateReferences rejects references to unknown or deleted records.
// Callers hold s.mu.
func (s *Server) validateReferences(kind models.Kind, obj record) error {
	for field, target := range references[kind] {
		v, ok := obj[field]
		if !ok || v == nil {
			continue
		}
		n, ok := v.(float64)
		if !ok || n <= 0 {
			return fmt.Errorf("%s must be a positive id", field)
		}
		row, ok := s.tables[target].rows[int64(n)]
		if !ok || row["deleted"] == true {
			return fmt.Errorf("%s %d does not exist", field, int64(n))
		}
	}
	return nil
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func parseID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
