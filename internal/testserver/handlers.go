package testserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/utils"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) issue(w http.ResponseWriter, userID, email string) {
	s.mu.Lock()
	ttl := s.accessTTL
	s.mu.Unlock()

	access, refresh, err := utils.GenerateTokens(userID, email, s.secret, ttl)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tokens": map[string]string{
			"accessToken":  access,
			"refreshToken": refresh,
		},
		"user": map[string]string{"id": userID, "email": email},
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	email := strings.ToLower(req.Email)

	s.mu.Lock()
	u, ok := s.users[email]
	s.mu.Unlock()

	if !ok || !utils.CheckPasswordHash(req.Password, u.hash) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s.issue(w, u.id, email)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	claims, err := utils.ValidateToken(req.RefreshToken, s.secret, utils.TokenTypeRefresh)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.mu.Lock()
	revoked := s.revoked[req.RefreshToken]
	if !revoked {
		// refresh tokens are single use
		s.revoked[req.RefreshToken] = true
	}
	s.mu.Unlock()
	if revoked {
		respondError(w, http.StatusUnauthorized, "refresh token revoked")
		return
	}

	userID, _ := claims["id"].(string)
	email := ""
	s.mu.Lock()
	for e, u := range s.users {
		if u.id == userID {
			email = e
		}
	}
	s.mu.Unlock()
	s.issue(w, userID, email)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.RefreshToken != "" {
		s.mu.Lock()
		s.revoked[req.RefreshToken] = true
		s.mu.Unlock()
	}
	w.WriteHeader(http.StatusNoContent)
}

// begin resolves the kind, counts the call and applies an injected
// failure. It returns false when the response has been written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return "", false
	}

	s.mu.Lock()
	s.calls[string(kind)+" "+r.Method]++
	for i, f := range s.failures {
		if f.kind == kind && f.method == r.Method {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
			s.mu.Unlock()
			respondError(w, f.status, "injected failure")
			return "", false
		}
	}
	s.mu.Unlock()
	return kind, true
}

func decodeObject(r *http.Request) (record, error) {
	var obj record
	if err := json.NewDecoder(r.Body).Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = record{}
	}
	return obj, nil
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.begin(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	rows := s.sorted(kind)
	data, err := json.Marshal(rows)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.begin(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	row, found := s.tables[kind].rows[parseID(r)]
	var data []byte
	var err error
	if found {
		data, err = json.Marshal(row)
	}
	s.mu.Unlock()

	switch {
	case !found:
		respondError(w, http.StatusNotFound, "record not found")
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.begin(w, r)
	if !ok {
		return
	}
	if kind.ReadOnly() {
		respondError(w, http.StatusMethodNotAllowed, string(kind)+" is read-only")
		return
	}
	obj, err := decodeObject(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	s.mu.Lock()
	if err := s.validateReferences(kind, obj); err != nil {
		s.mu.Unlock()
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.insert(kind, obj)
	data, err := json.Marshal(obj)
	s.mu.Unlock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.begin(w, r)
	if !ok {
		return
	}
	if kind.ReadOnly() {
		respondError(w, http.StatusMethodNotAllowed, string(kind)+" is read-only")
		return
	}
	obj, err := decodeObject(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	id := parseID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	row, found := s.tables[kind].rows[id]
	if !found || row["deleted"] == true {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	if err := s.validateReferences(kind, obj); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	obj["id"] = id
	obj["deleted"] = false
	delete(obj, "deletedAt")
	obj["updatedAt"] = s.now()
	s.tables[kind].rows[id] = obj
	respondJSON(w, http.StatusOK, obj)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.begin(w, r)
	if !ok {
		return
	}
	if kind.ReadOnly() {
		respondError(w, http.StatusMethodNotAllowed, string(kind)+" is read-only")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	row, found := s.tables[kind].rows[parseID(r)]
	if !found {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}
	s.softDelete(row)
	w.WriteHeader(http.StatusNoContent)
}
