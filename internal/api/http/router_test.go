package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/campusflow/campus-queue/internal/api/http/handlers"
	"github.com/campusflow/campus-queue/internal/auth"
	"github.com/campusflow/campus-queue/internal/config"
	"github.com/campusflow/campus-queue/internal/events"
	"github.com/campusflow/campus-queue/internal/observability"
	"github.com/campusflow/campus-queue/internal/realtime"
	"github.com/campusflow/campus-queue/internal/service"
	"github.com/campusflow/campus-queue/internal/store/memory"
)

const (
	adminEmail    = "admin@campus.test"
	adminPassword = "admin-password"
)

type testServer struct {
	app     *fiber.App
	metrics *observability.Metrics
}

type apiResponse struct {
	status int
	header nethttp.Header
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	st := memory.New()
	metrics := observability.NewMetrics()
	hub := realtime.NewHub(8, logger, metrics)

	deps := service.Dependencies{
		Store:       st,
		Users:       st,
		Broadcaster: events.NewDispatcher(logger, hub),
		Logger:      logger,
		Metrics:     metrics,
		Queue:       config.QueueConfig{TicketPrefix: "A", StaleAfter: 12 * time.Hour, DefaultAverageServiceMinutes: 5},
		Crowd:       config.CrowdConfig{YellowAboveMinutes: 10, RedAboveMinutes: 25, AverageServiceMinutes: 3},
	}
	authCfg := config.AuthConfig{BcryptCost: 4}
	blacklist := auth.NewMemoryBlacklist()
	tokens := auth.NewTokenManager("test-secret", 60)
	authService := service.NewAuthService(authCfg, deps, tokens, blacklist)
	if err := authService.BootstrapAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	queueService := service.NewQueueService(deps)
	staffService := service.NewStaffService(authCfg, deps)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{Timeout: 5 * time.Second, CORSOrigins: "*"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("campus-queue", "test", nil, nil, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(queueService),
		Staff:          handlers.NewStaffHandler(queueService, staffService),
		Emergencies:    handlers.NewEmergencyHandler(service.NewEmergencyService(deps)),
		Admin:          handlers.NewAdminHandler(staffService),
		Events:         handlers.NewEventsHandler(hub, time.Second),
		AuthMiddleware: auth.NewMiddleware(tokens, st, blacklist, logger),
		JoinLimiter:    JoinRateLimiter(config.RateLimitConfig{Max: 100, Window: time.Minute}),
	})
	return &testServer{app: app, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := apiResponse{status: resp.StatusCode, header: resp.Header}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return out
}

func (r apiResponse) decode(t *testing.T, out any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

func expectStatus(t *testing.T, r apiResponse, status int, code string) {
	t.Helper()
	if r.status != status {
		t.Fatalf("status = %d, want %d (error %+v)", r.status, status, r.Error)
	}
	if code == "" {
		return
	}
	if r.Error == nil || r.Error.Code != code {
		t.Fatalf("error = %+v, want code %s", r.Error, code)
	}
}

func bearer(token string) map[string]string {
	return map[string]string{fiber.HeaderAuthorization: "Bearer " + token}
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	r := s.do(t, fiber.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var payload struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	r.decode(t, &payload)
	return payload.Auth.Token
}

type seeded struct {
	admin, staff, student string
	departmentID          string
}

func (s *testServer) seed(t *testing.T) seeded {
	t.Helper()
	out := seeded{admin: s.login(t, adminEmail, adminPassword)}

	r := s.do(t, fiber.MethodPost, "/api/admin/departments", map[string]string{"name": "Registrar"}, bearer(out.admin))
	expectStatus(t, r, fiber.StatusCreated, "")
	var dept struct {
		ID string `json:"id"`
	}
	r.decode(t, &dept)
	out.departmentID = dept.ID

	r = s.do(t, fiber.MethodPost, "/api/admin/staff", map[string]string{
		"name": "Desk", "email": "desk@campus.test", "password": "desk-password", "department_id": dept.ID,
	}, bearer(out.admin))
	expectStatus(t, r, fiber.StatusCreated, "")
	out.staff = s.login(t, "desk@campus.test", "desk-password")

	r = s.do(t, fiber.MethodPost, "/auth/register", map[string]string{
		"name": "Ada", "email": "ada@campus.test", "password": "student-password",
	}, nil)
	expectStatus(t, r, fiber.StatusCreated, "")
	out.student = s.login(t, "ada@campus.test", "student-password")
	return out
}

type ticketView struct {
	Ticket struct {
		Number string `json:"number"`
		State  string `json:"state"`
	} `json:"ticket"`
	Position   int    `json:"position"`
	GuestToken string `json:"guest_token"`
}

func TestQueueFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)
	join := map[string]string{"department_id": u.departmentID}

	r := s.do(t, fiber.MethodPost, "/api/student/join", join, bearer(u.student))
	expectStatus(t, r, fiber.StatusCreated, "")
	var studentTicket ticketView
	r.decode(t, &studentTicket)
	if studentTicket.Ticket.Number != "A001" || studentTicket.Position != 1 {
		t.Fatalf("student ticket = %+v", studentTicket)
	}

	r = s.do(t, fiber.MethodPost, "/api/student/join", join, bearer(u.student))
	expectStatus(t, r, fiber.StatusConflict, "ALREADY_IN_QUEUE")

	r = s.do(t, fiber.MethodPost, "/api/guest/join", join, nil)
	expectStatus(t, r, fiber.StatusCreated, "")
	guestToken := r.header.Get(auth.GuestTokenHeader)
	var guestTicket ticketView
	r.decode(t, &guestTicket)
	if guestToken == "" || guestTicket.GuestToken != guestToken {
		t.Fatalf("guest token header %q body %q", guestToken, guestTicket.GuestToken)
	}

	r = s.do(t, fiber.MethodGet, "/api/guest/restore", nil, map[string]string{auth.GuestTokenHeader: guestToken})
	expectStatus(t, r, fiber.StatusOK, "")
	var restored ticketView
	r.decode(t, &restored)
	if restored.Ticket.Number != "A002" || restored.Position != 2 {
		t.Fatalf("restored = %+v", restored)
	}

	r = s.do(t, fiber.MethodPost, "/api/staff/call-next", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")

	r = s.do(t, fiber.MethodGet, "/api/queue/"+u.departmentID+"/current", nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var current struct {
		Number string `json:"number"`
	}
	r.decode(t, &current)
	if current.Number != "A001" {
		t.Fatalf("current = %q", current.Number)
	}

	r = s.do(t, fiber.MethodGet, "/api/staff/queue-stats", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var stats struct {
		Total   int `json:"total"`
		Waiting int `json:"waiting"`
	}
	r.decode(t, &stats)
	if stats.Total != 2 || stats.Waiting != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	r = s.do(t, fiber.MethodGet, "/api/queue/"+u.departmentID+"/crowd", nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var crowd service.CrowdEstimate
	r.decode(t, &crowd)
	if crowd.QueueLength != 2 || crowd.EstimatedWaitMinutes != 10 || crowd.Level != service.CrowdGreen {
		t.Fatalf("crowd = %+v", crowd)
	}

	r = s.do(t, fiber.MethodPost, "/api/guest/cancel", nil, map[string]string{auth.GuestTokenHeader: guestToken})
	expectStatus(t, r, fiber.StatusOK, "")

	r = s.do(t, fiber.MethodPost, "/api/staff/call-next", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusConflict, "NO_TICKETS_WAITING")
}

func TestStaffControlsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodPost, "/api/staff/set-limit", map[string]any{"limit": 1}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")

	join := map[string]string{"department_id": u.departmentID}
	r = s.do(t, fiber.MethodPost, "/api/staff/walk-in", map[string]string{"guest_name": "Visitor"}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusCreated, "")

	r = s.do(t, fiber.MethodPost, "/api/student/join", join, bearer(u.student))
	expectStatus(t, r, fiber.StatusConflict, "QUEUE_FULL")

	r = s.do(t, fiber.MethodPost, "/api/staff/increase-limit", map[string]any{"amount": 0}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusBadRequest, "VALIDATION_FAILED")

	r = s.do(t, fiber.MethodPost, "/api/staff/increase-limit", map[string]any{"amount": 2}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var queue struct {
		IsOpen   bool `json:"is_open"`
		Capacity *int `json:"capacity"`
	}
	r.decode(t, &queue)
	if !queue.IsOpen || queue.Capacity == nil || *queue.Capacity != 3 {
		t.Fatalf("queue after increase = %+v", queue)
	}

	r = s.do(t, fiber.MethodPost, "/api/staff/toggle-queue", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	r = s.do(t, fiber.MethodPost, "/api/student/join", join, bearer(u.student))
	expectStatus(t, r, fiber.StatusConflict, "QUEUE_CLOSED")
}

func TestEmergencyFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodPost, "/api/student/emergency", map[string]string{
		"department_id": u.departmentID, "reason": "medical", "proof": "uploads/note.jpg",
	}, bearer(u.student))
	expectStatus(t, r, fiber.StatusCreated, "")
	var request struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	r.decode(t, &request)

	r = s.do(t, fiber.MethodGet, "/api/staff/emergencies/count", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var count struct {
		Count int `json:"count"`
	}
	r.decode(t, &count)
	if count.Count != 1 {
		t.Fatalf("pending = %d", count.Count)
	}

	r = s.do(t, fiber.MethodPost, "/api/staff/emergencies/"+request.ID+"/approve", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	r = s.do(t, fiber.MethodPost, "/api/staff/emergency/start", map[string]string{"request_id": request.ID}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")

	r = s.do(t, fiber.MethodGet, "/api/emergency/status?departmentId="+u.departmentID, nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var status struct {
		Active bool `json:"active"`
	}
	r.decode(t, &status)
	if !status.Active {
		t.Fatalf("emergency should be active")
	}

	r = s.do(t, fiber.MethodPost, "/api/staff/call-next", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusConflict, "EMERGENCY_ACTIVE")

	r = s.do(t, fiber.MethodPost, "/api/staff/emergency/end", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	r = s.do(t, fiber.MethodPost, "/api/staff/emergency/end", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusConflict, "NO_ACTIVE_EMERGENCY")
}

func TestAuthorizationAndErrors(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodPost, "/api/student/join", map[string]string{"department_id": u.departmentID}, nil)
	expectStatus(t, r, fiber.StatusUnauthorized, "UNAUTHORIZED")

	r = s.do(t, fiber.MethodPost, "/api/staff/call-next", nil, bearer(u.student))
	expectStatus(t, r, fiber.StatusForbidden, "FORBIDDEN")

	r = s.do(t, fiber.MethodPost, "/api/admin/departments", map[string]string{"name": "Library"}, bearer(u.staff))
	expectStatus(t, r, fiber.StatusForbidden, "FORBIDDEN")

	r = s.do(t, fiber.MethodGet, "/api/guest/restore", nil, nil)
	expectStatus(t, r, fiber.StatusUnauthorized, "UNAUTHORIZED")

	r = s.do(t, fiber.MethodGet, "/api/nowhere", nil, nil)
	expectStatus(t, r, fiber.StatusNotFound, "NOT_FOUND")

	r = s.do(t, fiber.MethodPost, "/auth/login", map[string]string{"email": "ada@campus.test", "password": "wrong-password"}, nil)
	expectStatus(t, r, fiber.StatusUnauthorized, "INVALID_CREDENTIALS")

	r = s.do(t, fiber.MethodPost, "/auth/logout", nil, bearer(u.student))
	expectStatus(t, r, fiber.StatusNoContent, "")
	r = s.do(t, fiber.MethodGet, "/api/student/ticket", nil, bearer(u.student))
	expectStatus(t, r, fiber.StatusUnauthorized, "UNAUTHORIZED")
}

func TestPublicReadsAndHealthChecks(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodGet, "/api/departments", nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var departments []struct {
		ID string `json:"id"`
	}
	r.decode(t, &departments)
	if len(departments) != 1 || departments[0].ID != u.departmentID {
		t.Fatalf("departments = %+v", departments)
	}

	r = s.do(t, fiber.MethodGet, "/health/ready", nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")

	r = s.do(t, fiber.MethodGet, "/metrics/snapshot", nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var snap observability.Snapshot
	r.decode(t, &snap)
	if snap.Operations["create_department|ok"] != 1 {
		t.Fatalf("operations = %+v", snap.Operations)
	}
}

func TestDepartmentEntryOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodGet, "/api/staff/department/qr", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var qr struct {
		QRID         string `json:"qr_id"`
		DepartmentID string `json:"department_id"`
		EntryPath    string `json:"entry_path"`
	}
	r.decode(t, &qr)
	if qr.QRID == "" || qr.DepartmentID != u.departmentID || qr.EntryPath != "/api/guest/entry/"+qr.QRID {
		t.Fatalf("qr = %+v", qr)
	}

	r = s.do(t, fiber.MethodGet, "/api/staff/department/qr", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var again struct {
		QRID string `json:"qr_id"`
	}
	r.decode(t, &again)
	if again.QRID != qr.QRID {
		t.Fatalf("second issue = %q, want %q", again.QRID, qr.QRID)
	}

	r = s.do(t, fiber.MethodGet, "/api/staff/department/qr", nil, bearer(u.student))
	expectStatus(t, r, fiber.StatusForbidden, "FORBIDDEN")

	r = s.do(t, fiber.MethodGet, qr.EntryPath, nil, nil)
	expectStatus(t, r, fiber.StatusOK, "")
	var entry struct {
		QRID       string `json:"qr_id"`
		Department struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"department"`
	}
	r.decode(t, &entry)
	if entry.Department.ID != u.departmentID || entry.Department.Name != "Registrar" {
		t.Fatalf("entry = %+v", entry)
	}

	r = s.do(t, fiber.MethodPost, "/api/guest/join", map[string]string{"qr_id": qr.QRID}, nil)
	expectStatus(t, r, fiber.StatusCreated, "")
	var joined ticketView
	r.decode(t, &joined)
	if joined.Ticket.Number != "A001" || joined.GuestToken == "" {
		t.Fatalf("joined = %+v", joined)
	}

	r = s.do(t, fiber.MethodGet, "/api/guest/entry/unknown", nil, nil)
	expectStatus(t, r, fiber.StatusNotFound, "ENTRY_NOT_FOUND")
	r = s.do(t, fiber.MethodPost, "/api/guest/join", map[string]string{"qr_id": "unknown"}, nil)
	expectStatus(t, r, fiber.StatusNotFound, "ENTRY_NOT_FOUND")
}

func TestProfilesAndFeedbackOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u := s.seed(t)

	r := s.do(t, fiber.MethodGet, "/auth/me", nil, bearer(u.student))
	expectStatus(t, r, fiber.StatusOK, "")
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	r.decode(t, &me)
	if me.Email != "ada@campus.test" || me.Role != "student" {
		t.Fatalf("me = %+v", me)
	}
	r = s.do(t, fiber.MethodGet, "/auth/me", nil, nil)
	expectStatus(t, r, fiber.StatusUnauthorized, "UNAUTHORIZED")

	r = s.do(t, fiber.MethodGet, "/api/staff/me", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	var profile struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
		Department *struct {
			ID string `json:"id"`
		} `json:"department"`
	}
	r.decode(t, &profile)
	if profile.User.Email != "desk@campus.test" || profile.Department == nil || profile.Department.ID != u.departmentID {
		t.Fatalf("profile = %+v", profile)
	}

	r = s.do(t, fiber.MethodGet, "/api/admin/staff", nil, bearer(u.admin))
	expectStatus(t, r, fiber.StatusOK, "")
	var staff []struct {
		Email string `json:"email"`
	}
	r.decode(t, &staff)
	if len(staff) != 1 || staff[0].Email != "desk@campus.test" {
		t.Fatalf("staff = %+v", staff)
	}
	r = s.do(t, fiber.MethodGet, "/api/admin/staff", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusForbidden, "FORBIDDEN")

	r = s.do(t, fiber.MethodPost, "/api/student/join", map[string]string{"department_id": u.departmentID}, bearer(u.student))
	expectStatus(t, r, fiber.StatusCreated, "")
	var joined struct {
		Ticket struct {
			ID string `json:"id"`
		} `json:"ticket"`
	}
	r.decode(t, &joined)
	feedback := map[string]any{"ticket_id": joined.Ticket.ID, "options": []string{"fast"}, "comment": "thanks"}

	r = s.do(t, fiber.MethodPost, "/api/student/feedback", feedback, bearer(u.student))
	expectStatus(t, r, fiber.StatusConflict, "FEEDBACK_NOT_ALLOWED")

	r = s.do(t, fiber.MethodPost, "/api/staff/call-next", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")
	r = s.do(t, fiber.MethodPost, "/api/staff/complete", nil, bearer(u.staff))
	expectStatus(t, r, fiber.StatusOK, "")

	r = s.do(t, fiber.MethodPost, "/api/student/feedback", feedback, bearer(u.student))
	expectStatus(t, r, fiber.StatusCreated, "")
	var stored struct {
		TicketID     string   `json:"ticket_id"`
		DepartmentID string   `json:"department_id"`
		Options      []string `json:"options"`
	}
	r.decode(t, &stored)
	if stored.TicketID != joined.Ticket.ID || stored.DepartmentID != u.departmentID || len(stored.Options) != 1 {
		t.Fatalf("feedback = %+v", stored)
	}

	r = s.do(t, fiber.MethodPost, "/api/student/feedback", feedback, bearer(u.student))
	expectStatus(t, r, fiber.StatusConflict, "FEEDBACK_EXISTS")
	r = s.do(t, fiber.MethodPost, "/api/student/feedback", feedback, bearer(u.staff))
	expectStatus(t, r, fiber.StatusForbidden, "FORBIDDEN")
}
