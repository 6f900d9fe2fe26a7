package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Records(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.EmployeeCreated()
	c.EmployeeCreated()
	c.LoginAttempt("rejected")
	c.LoginAttempt("accepted")
	c.LoginAttempt("rejected")
	c.TokensIssued("login")
	c.ObserveHash(30 * time.Millisecond)
	c.RecordHTTPStatus(http.StatusCreated)

	if got := testutil.ToFloat64(c.employeesCreated); got != 2 {
		t.Fatalf("employees created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.loginAttempts.WithLabelValues("rejected")); got != 2 {
		t.Fatalf("rejected logins = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("201")); got != 1 {
		t.Fatalf("201 responses = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.hashLatency); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	NewCollector(reg).EmployeeCreated()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "employee_created_total 1") {
		t.Fatalf("metric missing from scrape output:\n%s", rec.Body.String())
	}
}
