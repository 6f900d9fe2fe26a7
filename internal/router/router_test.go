package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/repo"
)

type memStore struct {
	mu   sync.Mutex
	byID map[string]*entity.Employee
}

func (m *memStore) Create(_ context.Context, e *entity.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.byID {
		if x.EmailAddress == e.EmailAddress {
			return repo.ErrDuplicateEmail
		}
	}
	m.byID[e.ID] = e.Clone()
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*entity.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[id]; ok {
		return e.Clone(), nil
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*entity.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.byID {
		if e.EmailAddress == email {
			return e.Clone(), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) Update(_ context.Context, e *entity.Employee, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[e.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if cur.Version != expected {
		return repo.ErrVersionConflict
	}
	m.byID[e.ID] = e.Clone()
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repo.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type statusCounter struct {
	mu    sync.Mutex
	codes map[int]int
}

func (s *statusCounter) RecordHTTPStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code]++
}

func newTestServer(t *testing.T, deps Deps) (http.Handler, *auth.Guard) {
	t.Helper()
	guard, err := auth.NewGuard(auth.Config{
		AccessSecretKey:  "access",
		AccessExpiry:     time.Minute,
		RefreshSecretKey: "refresh",
		RefreshExpiry:    time.Hour,
		HashCost:         bcrypt.MinCost,
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewGuard returned error: %v", err)
	}
	logger := zap.NewNop().Sugar()
	svc := employee.NewService(&memStore{byID: map[string]*entity.Employee{}}, guard, logger)
	deps.Employees = employee.NewHandler(svc, logger)
	deps.Tokens = guard
	return RegisterRoutes(logger, deps), guard
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_EndToEnd(t *testing.T) {
	t.Parallel()

	status := &statusCounter{codes: map[int]int{}}
	h, _ := newTestServer(t, Deps{Status: status})

	rec := do(t, h, http.MethodPost, "/employees", "",
		`{"emailAddress":"a@x.com","fullName":"A","secret":"pw123","employment":{"organizationName":"Acme"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created entity.Employee
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = do(t, h, http.MethodGet, "/employees/"+created.ID, "", "")
	if rec.Code != http.StatusUnauthorized || rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("anonymous get: %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"emailAddress":"a@x.com","secret":"pw123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	var login employee.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	access := login.Tokens.AccessToken

	rec = do(t, h, http.MethodPatch, "/employees/"+created.ID, access, `{"avatarUrl":"https://cdn.example/a.png"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/employees/"+created.ID+"/relations/appliedJobs", access, `{"targetId":"job-3"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add relation: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodDelete, "/employees/"+created.ID+"/relations/appliedJobs/job-3", access, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("remove relation: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/employees/"+created.ID+"/conversations/conn-1/messages", access, `{"direction":"received","text":"hey"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("message: %d %s", rec.Code, rec.Body.String())
	}

	// refresh tokens are not access tokens
	rec = do(t, h, http.MethodGet, "/employees/"+created.ID, login.Tokens.RefreshToken, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token as bearer: %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/logout", access, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/employees/"+created.ID, access, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	status.mu.Lock()
	defer status.mu.Unlock()
	if status.codes[http.StatusUnauthorized] != 2 || status.codes[http.StatusCreated] != 2 {
		t.Fatalf("unexpected status counts %v", status.codes)
	}
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, Deps{})
	rec := do(t, h, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
	for _, k := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy", "Cache-Control"} {
		if rec.Header().Get(k) == "" {
			t.Fatalf("missing header %s", k)
		}
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must only be sent over TLS")
	}
}

func TestRoutes_HealthFailure(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, Deps{Health: func(context.Context) error { return errors.New("db down") }})
	if rec := do(t, h, http.MethodGet, "/health", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: %d", rec.Code)
	}
}

func TestRoutes_MetricsOptional(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, Deps{})
	if rec := do(t, h, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler: %d", rec.Code)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("m 1")) })
	h, _ = newTestServer(t, Deps{Metrics: metrics})
	if rec := do(t, h, http.MethodGet, "/metrics", "", ""); rec.Code != http.StatusOK || rec.Body.String() != "m 1" {
		t.Fatalf("metrics: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRoutes_LoginThrottled(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t, Deps{LoginLimiter: NewLoginLimiter(2)})
	body := `{"emailAddress":"nobody@x.com","secret":"x"}`
	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodPost, "/auth/login", "", body); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i, rec.Code)
		}
	}
	rec := do(t, h, http.MethodPost, "/auth/login", "", body)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
}
