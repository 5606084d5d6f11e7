package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"socialcore/internal/adapters/exports"
	"socialcore/internal/core"
	blobmem "socialcore/internal/infra/blob/memory"
	"socialcore/internal/infra/events"
	"socialcore/internal/infra/journal"
	"socialcore/pkg/domain"
)

func newTestAPI(t *testing.T, opts ...core.Option) (*core.Service, *Handler) {
	t.Helper()
	svc := core.NewInMemoryService(opts...)
	return svc, NewHandler(svc)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func createUser(t *testing.T, h http.Handler, name string) domain.User {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/users", `{"name":"`+name+`","surname":"S","balance":1.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create user: %d %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.User](t, rec)
}

func TestHealthz(t *testing.T) {
	_, h := newTestAPI(t)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserLifecycleOverHTTP(t *testing.T) {
	_, h := newTestAPI(t)
	user := createUser(t, h, "Ada")
	if !domain.ValidID(user.ID) || len(user.SubscribedToUserIDs) != 0 {
		t.Fatalf("unexpected created user: %+v", user)
	}

	rec := do(t, h, http.MethodGet, "/users/"+user.ID, "")
	if rec.Code != http.StatusOK || decodeBody[domain.User](t, rec).Name != "Ada" {
		t.Fatalf("get user: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPatch, "/users/"+user.ID, `{"balance":42}`)
	if rec.Code != http.StatusOK || decodeBody[domain.User](t, rec).Balance != 42 {
		t.Fatalf("patch user: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/users", "")
	if users := decodeBody[[]domain.User](t, rec); len(users) != 1 {
		t.Fatalf("expected one user, got %+v", users)
	}

	rec = do(t, h, http.MethodDelete, "/users/"+user.ID, "")
	if rec.Code != http.StatusOK || decodeBody[domain.User](t, rec).ID != user.ID {
		t.Fatalf("delete user: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/users/"+user.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	_, h := newTestAPI(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed id", http.MethodGet, "/users/not-a-uuid", "", http.StatusBadRequest},
		{"unknown user", http.MethodGet, "/users/00000000-0000-4000-8000-000000000001", "", http.StatusNotFound},
		{"create missing field", http.MethodPost, "/users", `{"name":"A","surname":"B"}`, http.StatusBadRequest},
		{"create unknown field", http.MethodPost, "/users", `{"name":"A","surname":"B","balance":1,"age":3}`, http.StatusBadRequest},
		{"create malformed json", http.MethodPost, "/users", `{`, http.StatusBadRequest},
		{"post for missing user", http.MethodPost, "/posts", `{"title":"t","content":"c","userId":"00000000-0000-4000-8000-000000000001"}`, http.StatusBadRequest},
		{"empty patch", http.MethodPatch, "/users/00000000-0000-4000-8000-000000000001", `{}`, http.StatusBadRequest},
		{"patch id", http.MethodPatch, "/users/00000000-0000-4000-8000-000000000001", `{"id":"x"}`, http.StatusBadRequest},
		{"patch missing user", http.MethodPatch, "/users/00000000-0000-4000-8000-000000000001", `{"name":"x"}`, http.StatusNotFound},
		{"unknown plan", http.MethodGet, "/member-types/gold", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/users", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want != http.StatusMethodNotAllowed {
				if msg := decodeBody[map[string]string](t, rec)["error"]; msg == "" {
					t.Fatalf("expected error message, got %s", rec.Body.String())
				}
			}
		})
	}
}

func TestSubscriptionAndCascadeOverHTTP(t *testing.T) {
	_, h := newTestAPI(t)
	writer := createUser(t, h, "Writer")
	reader := createUser(t, h, "Reader")

	rec := do(t, h, http.MethodPost, "/users/"+writer.ID+"/subscribeTo", `{"userId":"`+reader.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe: %d %s", rec.Code, rec.Body.String())
	}
	if subs := decodeBody[domain.User](t, rec).SubscribedToUserIDs; len(subs) != 1 || subs[0] != writer.ID {
		t.Fatalf("unexpected subscriptions: %v", subs)
	}
	rec = do(t, h, http.MethodPost, "/users/"+writer.ID+"/subscribeTo", `{"userId":"`+reader.ID+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate subscribe should be 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/posts", `{"title":"Hello","content":"World","userId":"`+writer.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create post: %d %s", rec.Code, rec.Body.String())
	}
	post := decodeBody[domain.Post](t, rec)

	rec = do(t, h, http.MethodPost, "/profiles", `{"avatar":"a.png","sex":"f","birthday":1,"country":"UK","street":"s","city":"c","userId":"`+writer.ID+`","memberTypeId":"business"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create profile: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/profiles", `{"avatar":"a.png","sex":"f","birthday":1,"country":"UK","street":"s","city":"c","userId":"`+writer.ID+`","memberTypeId":"basic"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second profile should be 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/users/"+writer.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete writer: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/posts/"+post.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("post should be gone, got %d", rec.Code)
	}
	if profiles := decodeBody[[]domain.Profile](t, do(t, h, http.MethodGet, "/profiles", "")); len(profiles) != 0 {
		t.Fatalf("profiles should be gone: %+v", profiles)
	}
	rec = do(t, h, http.MethodGet, "/users/"+reader.ID, "")
	if subs := decodeBody[domain.User](t, rec).SubscribedToUserIDs; len(subs) != 0 {
		t.Fatalf("subscription should be scrubbed: %v", subs)
	}

	rec = do(t, h, http.MethodPost, "/users/"+reader.ID+"/unsubscribeFrom", `{"userId":"`+reader.ID+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsubscribe without edge should be 400, got %d", rec.Code)
	}
}

func TestMemberTypeRoutes(t *testing.T) {
	_, h := newTestAPI(t)
	types := decodeBody[[]domain.MemberType](t, do(t, h, http.MethodGet, "/member-types", ""))
	if len(types) != 2 || types[0].ID != domain.MemberTypeBasic {
		t.Fatalf("unexpected member types: %+v", types)
	}
	rec := do(t, h, http.MethodPatch, "/member-types/basic", `{"monthPostsLimit":25}`)
	if rec.Code != http.StatusOK || decodeBody[domain.MemberType](t, rec).MonthPostsLimit != 25 {
		t.Fatalf("patch member type: %d %s", rec.Code, rec.Body.String())
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	_, h := newTestAPI(t)
	for _, path := range []string{"/changes", "/events", "/exports"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Fatalf("%s without backing should be 404, got %d", path, rec.Code)
		}
	}
}

func TestChangesRoute(t *testing.T) {
	mem := journal.NewMemory(16)
	svc := core.NewInMemoryService(core.WithJournal(mem))
	h := NewHandler(svc, WithChanges(mem))
	createUser(t, h, "Ada")
	createUser(t, h, "Grace")

	rec := do(t, h, http.MethodGet, "/changes?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("changes: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string][]journal.Record](t, rec)
	if got := body["changes"]; len(got) != 1 || got[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected changes: %+v", got)
	}
	if rec := do(t, h, http.MethodGet, "/changes?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should be 400, got %d", rec.Code)
	}
}

func TestExportRoutes(t *testing.T) {
	svc := core.NewInMemoryService()
	worker := exports.NewWorker(svc, blobmem.New(), exports.FormatJSON)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()
	h := NewHandler(svc, WithExports(worker))

	rec := do(t, h, http.MethodPost, "/exports", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create export: %d %s", rec.Code, rec.Body.String())
	}
	queued := decodeBody[map[string]exports.Record](t, rec)["export"]

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := worker.Get(queued.ID); ok && r.Status == exports.StatusSucceeded {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec = do(t, h, http.MethodGet, "/exports/"+queued.ID, "")
	if got := decodeBody[map[string]exports.Record](t, rec)["export"]; got.Status != exports.StatusSucceeded {
		t.Fatalf("export did not succeed: %+v", got)
	}
	rec = do(t, h, http.MethodGet, "/exports", "")
	if !strings.Contains(rec.Body.String(), queued.ID) || !strings.Contains(rec.Body.String(), exports.KeyPrefix) {
		t.Fatalf("listing should mention export: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/exports/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown export should be 404, got %d", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	bus := events.NewBus()
	svc := core.NewInMemoryService(core.WithPublisher(bus))
	srv := httptest.NewServer(NewHandler(svc, WithEvents(bus)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || lines.Text() != ": connected" {
		t.Fatalf("expected connected comment, got %q", lines.Text())
	}
	if _, err := svc.CreateUser(ctx, domain.NewUser{Name: "Ada", Surname: "L", Balance: 1}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	var eventName, data string
	for lines.Scan() {
		line := lines.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}
	if eventName != "user.create" || !strings.Contains(data, `"name":"Ada"`) {
		t.Fatalf("unexpected event %q %q", eventName, data)
	}
}

func TestChainOrderAndAccessLog(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	logger := &captureLogger{}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), mark("outer"), nil, AccessLog(logger), mark("inner"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if strings.Join(order, ",") != "outer,inner" {
		t.Fatalf("unexpected order %v", order)
	}
	if len(logger.args) == 0 || logger.args[5] != http.StatusTeapot {
		t.Fatalf("access log should record status, got %v", logger.args)
	}
}

type captureLogger struct{ args []any }

func (c *captureLogger) Info(_ string, args ...any) { c.args = args }

func TestCloseEndsEventStreams(t *testing.T) {
	bus := events.NewBus()
	h := NewHandler(core.NewInMemoryService(core.WithPublisher(bus)), WithEvents(bus))
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	lines := bufio.NewScanner(resp.Body)
	if !lines.Scan() || lines.Text() != ": connected" {
		t.Fatalf("expected connected comment, got %q", lines.Text())
	}

	h.Close()
	h.Close()
	ended := make(chan struct{})
	go func() {
		for lines.Scan() {
		}
		close(ended)
	}()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream still open after Close")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("closed stream should unsubscribe, have %d", bus.Subscribers())
	}
}
