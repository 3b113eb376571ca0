// Package backendtest runs an in-memory stand-in for the redeem-code backend API.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

const (
	AuthKey = "test-auth-key"
	APIKey  = "test-api-key"
)

type Server struct {
	*httptest.Server

	mu        sync.Mutex
	uploaders map[string]*models.Uploader // by discord uid
	codes     []map[string]any
	keys      map[string]models.APIKey
	rewards   []models.Reward
	nextID    int

	// HealthStatus is what GET / answers; zero means 200.
	HealthStatus atomic.Int32
	// HealthDelay stalls GET / before answering.
	HealthDelay atomic.Int64

	CreateUploaderCalls atomic.Int32
	CreateKeyCalls      atomic.Int32
	DeleteKeyCalls      atomic.Int32
	CodeWriteCalls      atomic.Int32
	LookupCalls         atomic.Int32

	lastReq  *http.Request
	lastBody []byte
}

func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		uploaders: map[string]*models.Uploader{},
		keys:      map[string]models.APIKey{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns a backend client pointed at s with both secrets set.
func (s *Server) Client(opts backend.Options) *backend.Client {
	opts.BaseURL = s.URL
	if opts.AuthKey == "" {
		opts.AuthKey = AuthKey
	}
	if opts.APIKey == "" {
		opts.APIKey = APIKey
	}
	return backend.NewClient(opts)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.health)

	mux.HandleFunc("GET /api/v1/uploaders/discord/{id}", s.admin(s.uploaderByDiscord))
	mux.HandleFunc("GET /api/v1/uploaders/{id}", s.public(s.uploaderByID))
	mux.HandleFunc("GET /api/v1/uploaders", s.admin(s.listUploaders))
	mux.HandleFunc("POST /api/v1/uploaders", s.admin(s.createUploader))
	mux.HandleFunc("PATCH /api/v1/uploaders/{id}/status", s.admin(s.updateStatus))

	mux.HandleFunc("GET /api/v1/strinova/code", s.public(s.listCodes))
	mux.HandleFunc("POST /api/v1/strinova/code", s.public(s.createCode))
	mux.HandleFunc("PATCH /api/v1/strinova/code/{id}", s.public(s.updateCode))
	mux.HandleFunc("DELETE /api/v1/strinova/code/{id}", s.public(s.deleteCode))

	mux.HandleFunc("GET /api/v1/rewards", s.public(s.listRewards))
	mux.HandleFunc("POST /api/v1/rewards", s.admin(s.echoRequest(http.StatusCreated)))
	mux.HandleFunc("PATCH /api/v1/rewards/{id}", s.admin(s.echoRequest(http.StatusOK)))
	mux.HandleFunc("DELETE /api/v1/rewards/{id}", s.admin(s.echoRequest(http.StatusOK)))

	mux.HandleFunc("GET /api/v1/admin/keys/discord/{id}", s.admin(s.getKey))
	mux.HandleFunc("DELETE /api/v1/admin/keys/discord/{id}", s.admin(s.deleteKey))
	mux.HandleFunc("POST /api/v1/admin/keys", s.admin(s.createKey))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func ok(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func (s *Server) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	s.mu.Lock()
	s.lastReq = r.Clone(r.Context())
	s.lastBody = body
	s.mu.Unlock()
}

func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if r.Header.Get("Authorization") != AuthKey {
			fail(w, http.StatusUnauthorized, "invalid auth key")
			return
		}
		h(w, r)
	}
}

func (s *Server) public(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if r.Header.Get("x-api-key") != APIKey {
			fail(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		h(w, r)
	}
}

// LastRequest returns the method, path, headers and body of the latest API call.
func (s *Server) LastRequest() (method, path string, header http.Header, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReq == nil {
		return "", "", nil, nil
	}
	return s.lastReq.Method, s.lastReq.URL.RequestURI(), s.lastReq.Header, s.lastBody
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if d := time.Duration(s.HealthDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if st := int(s.HealthStatus.Load()); st != 0 && st != http.StatusOK {
		fail(w, st, "maintenance")
		return
	}
	ok(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) newID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// AddUploader stores u as if it had been created earlier and returns the stored copy.
func (s *Server) AddUploader(u models.Uploader) models.Uploader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.newID("up")
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	cp := u
	s.uploaders[u.DiscordUID] = &cp
	return cp
}

func (s *Server) Uploader(discordID string) (models.Uploader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.uploaders[discordID]
	if !found {
		return models.Uploader{}, false
	}
	return *u, true
}

func (s *Server) UploaderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploaders)
}

func (s *Server) SetRole(discordID string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, found := s.uploaders[discordID]; found {
		u.Type = role
	}
}

func (s *Server) SetStatus(discordID string, st models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, found := s.uploaders[discordID]; found {
		u.Status = st
	}
}

func (s *Server) AddKey(k models.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[k.DiscordUID] = k
}

func (s *Server) HasKey(discordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.keys[discordID]
	return found
}

func (s *Server) AddReward(r models.Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards = append(s.rewards, r)
}

func (s *Server) uploaderByDiscord(w http.ResponseWriter, r *http.Request) {
	s.LookupCalls.Add(1)
	u, found := s.Uploader(r.PathValue("id"))
	if !found {
		fail(w, http.StatusNotFound, "Uploader not found")
		return
	}
	ok(w, http.StatusOK, u)
}

func (s *Server) uploaderByID(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.uploaders {
		if u.ID == r.PathValue("id") {
			ok(w, http.StatusOK, u)
			return
		}
	}
	fail(w, http.StatusNotFound, "Uploader not found")
}

func (s *Server) listUploaders(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]models.Uploader, 0, len(s.uploaders))
	for _, u := range s.uploaders {
		out = append(out, *u)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	ok(w, http.StatusOK, out)
}

func (s *Server) createUploader(w http.ResponseWriter, r *http.Request) {
	s.CreateUploaderCalls.Add(1)
	var in backend.CreateUploaderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DiscordUID == "" {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.uploaders[in.DiscordUID]; exists {
		fail(w, http.StatusConflict, "discord_uid already exists")
		return
	}
	u := &models.Uploader{
		ID:         s.newID("up"),
		Name:       in.Name,
		DiscordUID: in.DiscordUID,
		Type:       models.RoleDefault,
		Status:     in.Status,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	s.uploaders[in.DiscordUID] = u
	ok(w, http.StatusCreated, u)
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || !in.Status.Valid() {
		fail(w, http.StatusBadRequest, "invalid status")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.uploaders {
		if u.ID == r.PathValue("id") {
			u.Status = in.Status
			ok(w, http.StatusOK, u)
			return
		}
	}
	fail(w, http.StatusNotFound, "Uploader not found")
}

func (s *Server) listCodes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.codes))
	for _, c := range s.codes {
		if v := r.URL.Query().Get("version"); v != "" && c["version"] != v {
			continue
		}
		out = append(out, c)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out, "count": len(out)})
}

func (s *Server) createCode(w http.ResponseWriter, r *http.Request) {
	s.CodeWriteCalls.Add(1)
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}
	discordID, _ := in["discord_uid"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.uploaders[discordID]
	if !found {
		fail(w, http.StatusForbidden, "unknown uploader")
		return
	}
	delete(in, "discord_uid")
	in["id"] = s.newID("code")
	in["uploader_id"] = u.ID
	in["created_at"] = time.Now().UTC().Format(time.RFC3339)
	if _, has := in["expired_at"]; !has {
		in["expired_at"] = nil
	}
	s.codes = append(s.codes, in)
	ok(w, http.StatusCreated, in)
}

func (s *Server) findCode(id string) int {
	for i, c := range s.codes {
		if c["id"] == id {
			return i
		}
	}
	return -1
}

func (s *Server) updateCode(w http.ResponseWriter, r *http.Request) {
	s.CodeWriteCalls.Add(1)
	var in map[string]any
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findCode(r.PathValue("id"))
	if i < 0 {
		fail(w, http.StatusNotFound, "code not found")
		return
	}
	for k, v := range in {
		s.codes[i][k] = v
	}
	ok(w, http.StatusOK, s.codes[i])
}

func (s *Server) deleteCode(w http.ResponseWriter, r *http.Request) {
	s.CodeWriteCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findCode(r.PathValue("id"))
	if i < 0 {
		fail(w, http.StatusNotFound, "code not found")
		return
	}
	s.codes = append(s.codes[:i], s.codes[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) listRewards(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]models.Reward{}, s.rewards...)
	s.mu.Unlock()
	ok(w, http.StatusOK, out)
}

// echoRequest answers with what the proxy delivered, so passthrough tests can inspect it.
func (s *Server) echoRequest(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ok(w, status, map[string]any{
			"method":       r.Method,
			"path":         r.URL.Path,
			"content_type": r.Header.Get("Content-Type"),
			"cookie":       r.Header.Get("Cookie"),
			"size":         len(body),
		})
	}
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	k, found := s.keys[r.PathValue("id")]
	s.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "API key not found")
		return
	}
	ok(w, http.StatusOK, k)
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	s.DeleteKeyCalls.Add(1)
	s.mu.Lock()
	_, found := s.keys[r.PathValue("id")]
	delete(s.keys, r.PathValue("id"))
	s.mu.Unlock()
	if !found {
		fail(w, http.StatusNotFound, "API key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) createKey(w http.ResponseWriter, r *http.Request) {
	s.CreateKeyCalls.Add(1)
	var in backend.CreateKeyInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DiscordUID == "" {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := models.APIKey{
		Key:         s.newID("key"),
		Name:        in.Name,
		Description: in.Description,
		DiscordUID:  in.DiscordUID,
	}
	s.keys[in.DiscordUID] = k
	ok(w, http.StatusCreated, k)
}
