package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/scheduler/internal/config"
	"github.com/clinic/scheduler/internal/platform/auth"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:             "8000",
		Env:              env,
		AuthSigningKey:   "0123456789abcdef0123456789abcdef",
		AuthIssuer:       "clinic-scheduler",
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPS:     100,
		RateLimitBurst:   200,
		BookingRateLimit: 1,
	}
}

func newTestServer(t *testing.T, cfg *config.Config, rdb *redis.Client) *echo.Echo {
	t.Helper()
	e, _ := newTestServerWithPool(t, cfg, rdb)
	return e
}

func newTestServerWithPool(t *testing.T, cfg *config.Config, rdb *redis.Client) (*echo.Echo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	e := newServer(cfg, serverDeps{
		pool:     mock,
		pinger:   mock,
		redis:    rdb,
		registry: prometheus.NewRegistry(),
		logger:   zerolog.Nop(),
	})
	return e, mock
}

func serve(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Health(t *testing.T) {
	e := newTestServer(t, testConfig("production"), nil)

	rec := serve(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("health body %q does not carry version %q", rec.Body.String(), version)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set without TLS: %q", got)
	}
}

func TestNewServer_HealthDB(t *testing.T) {
	e, mock := newTestServerWithPool(t, testConfig("production"), nil)
	mock.ExpectPing()

	rec := serve(e, http.MethodGet, "/health/db", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health/db = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"pool"`) {
		t.Errorf("pool stats reported without a stats source: %s", rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewServer_HealthDBUnreachable(t *testing.T) {
	e, mock := newTestServerWithPool(t, testConfig("production"), nil)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	rec := serve(e, http.MethodGet, "/health/db", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /health/db = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("expected ping error in body, got %s", rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNewServer_MetricsRecordRequests(t *testing.T) {
	e := newTestServer(t, testConfig("production"), nil)

	serve(e, http.MethodGet, "/health", "", nil)
	rec := serve(e, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `scheduler_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("metrics missing /health request counter:\n%s", rec.Body.String())
	}
}

func TestNewServer_PublicRoutesAreRegistered(t *testing.T) {
	e := newTestServer(t, testConfig("production"), nil)

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	public := []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/health/db"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/api/v1/auth/admin/login"},
		{http.MethodPost, "/api/v1/doctors/login"},
		{http.MethodPost, "/api/v1/patients/login"},
		{http.MethodPost, "/api/v1/patients"},
		{http.MethodGet, "/api/v1/doctors"},
		{http.MethodGet, "/api/v1/doctors/search"},
		{http.MethodGet, "/api/v1/doctors/:id"},
	}
	for _, r := range public {
		if !registered[r.method+" "+r.path] {
			t.Errorf("%s %s is not registered", r.method, r.path)
		}
		if !auth.IsPublicRoute(r.method, r.path) {
			t.Errorf("%s %s is not public", r.method, r.path)
		}
	}

	protected := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/doctors/:id/availability"},
		{http.MethodPost, "/api/v1/appointments"},
		{http.MethodPut, "/api/v1/appointments/:id"},
		{http.MethodDelete, "/api/v1/appointments/:id"},
		{http.MethodPatch, "/api/v1/appointments/:id/status"},
		{http.MethodGet, "/api/v1/appointments"},
		{http.MethodGet, "/api/v1/patients/me/appointments"},
		{http.MethodGet, "/api/v1/patients/me"},
		{http.MethodPost, "/api/v1/doctors"},
		{http.MethodPut, "/api/v1/doctors/:id"},
		{http.MethodDelete, "/api/v1/doctors/:id"},
		{http.MethodPost, "/api/v1/prescriptions"},
		{http.MethodGet, "/api/v1/prescriptions/:appointmentId"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPost, "/api/v1/auth/revoke"},
	}
	for _, r := range protected {
		if !registered[r.method+" "+r.path] {
			t.Errorf("%s %s is not registered", r.method, r.path)
		}
		if auth.IsPublicRoute(r.method, r.path) {
			t.Errorf("%s %s must require authentication", r.method, r.path)
		}
	}
}

func TestNewServer_ProductionRequiresToken(t *testing.T) {
	e := newTestServer(t, testConfig("production"), nil)

	rec := serve(e, http.MethodGet, "/api/v1/appointments", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("GET /api/v1/appointments without token = %d, want 401", rec.Code)
	}

	// the dev header means nothing outside development
	rec = serve(e, http.MethodGet, "/api/v1/appointments", "", map[string]string{"X-Dev-Principal": "doctor:1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("X-Dev-Principal in production = %d, want 401", rec.Code)
	}
}

func TestNewServer_DevPrincipalRoleIsEnforced(t *testing.T) {
	e := newTestServer(t, testConfig("development"), nil)

	rec := serve(e, http.MethodGet, "/api/v1/appointments", "", map[string]string{"X-Dev-Principal": "patient:1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient listing doctor appointments = %d, want 403", rec.Code)
	}
}

func TestNewServer_BookingRateLimitUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := newTestServer(t, testConfig("development"), rdb)
	patient := map[string]string{"X-Dev-Principal": "patient:7"}

	// an empty body is rejected by the handler but still spends the budget
	rec := serve(e, http.MethodPost, "/api/v1/appointments", "{}", patient)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("first booking = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	rec = serve(e, http.MethodPost, "/api/v1/appointments", "{}", patient)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second booking = %d, want 429", rec.Code)
	}

	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "rl:booking:") {
		t.Errorf("redis keys = %v, want one rl:booking: key", keys)
	}
}

func TestHashPasswordCmd(t *testing.T) {
	cmd := hashPasswordCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"s3cret-pass"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if !auth.IsBcryptHash(hash) {
		t.Fatalf("output %q is not a bcrypt hash", hash)
	}
	if err := auth.CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestHashPasswordCmd_RequiresArgument(t *testing.T) {
	cmd := hashPasswordCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error without a password argument")
	}
}

func TestNewMigrator_EmbeddedSet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	migs, err := newMigrator(mock, "").LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	want := []string{"001_doctors.sql", "002_patients.sql", "003_appointments.sql", "004_prescriptions.sql"}
	if len(migs) != len(want) {
		t.Fatalf("got %d migrations, want %d", len(migs), len(want))
	}
	for i, m := range migs {
		if m.Name != want[i] || m.Version != i+1 {
			t.Errorf("migration %d = %d %s, want %d %s", i, m.Version, m.Name, i+1, want[i])
		}
	}
}

func TestDirOrConfig(t *testing.T) {
	cfg := &config.Config{MigrationsDir: "/srv/migrations"}
	if got := dirOrConfig("", cfg); got != "/srv/migrations" {
		t.Errorf("dirOrConfig(\"\") = %q", got)
	}
	if got := dirOrConfig("./local", cfg); got != "./local" {
		t.Errorf("dirOrConfig(flag) = %q", got)
	}
}
