// Package httpapi exposes the socialcore service over HTTP/JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"socialcore/internal/adapters/exports"
	"socialcore/internal/blob"
	"socialcore/internal/infra/events"
	"socialcore/internal/infra/journal"
	"socialcore/pkg/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// DefaultChangesLimit is used by GET /changes when no limit is given.
const DefaultChangesLimit = 100

// Service is the subset of core.Service the handler drives.
type Service interface {
	ListUsers(ctx context.Context) []domain.User
	ListPosts(ctx context.Context) []domain.Post
	ListProfiles(ctx context.Context) []domain.Profile
	ListMemberTypes(ctx context.Context) []domain.MemberType

	GetUser(ctx context.Context, id string) (domain.User, error)
	GetPost(ctx context.Context, id string) (domain.Post, error)
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
	GetMemberType(ctx context.Context, id string) (domain.MemberType, error)

	CreateUser(ctx context.Context, in domain.NewUser) (domain.User, error)
	CreatePost(ctx context.Context, in domain.NewPost) (domain.Post, error)
	CreateProfile(ctx context.Context, in domain.NewProfile) (domain.Profile, error)

	PatchUser(ctx context.Context, id string, p domain.UserPatch) (domain.User, error)
	PatchPost(ctx context.Context, id string, p domain.PostPatch) (domain.Post, error)
	PatchProfile(ctx context.Context, id string, p domain.ProfilePatch) (domain.Profile, error)
	PatchMemberType(ctx context.Context, id string, p domain.MemberTypePatch) (domain.MemberType, error)

	DeleteUser(ctx context.Context, id string) (domain.User, error)
	DeletePost(ctx context.Context, id string) (domain.Post, error)
	DeleteProfile(ctx context.Context, id string) (domain.Profile, error)

	SubscribeTo(ctx context.Context, targetID, subscriberID string) (domain.User, error)
	UnsubscribeFrom(ctx context.Context, targetID, subscriberID string) (domain.User, error)
}

// ExportScheduler queues snapshot exports and reports on them.
type ExportScheduler interface {
	Enqueue(ctx context.Context, trigger exports.Trigger) (exports.Record, error)
	Get(id string) (exports.Record, bool)
	List() []exports.Record
	Artifacts(ctx context.Context) ([]blob.Info, error)
}

// Handler routes requests to the service. Exports, Changes and Events are
// optional; their routes answer 404 when unset.
type Handler struct {
	Service Service
	Exports ExportScheduler
	Changes journal.Reader
	Events  *events.Bus

	mux       *http.ServeMux
	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler constructs the API handler.
func NewHandler(svc Service, opts ...Option) *Handler {
	h := &Handler{Service: svc, done: make(chan struct{})}
	for _, opt := range opts {
		opt(h)
	}
	h.mux = h.routes()
	return h
}

// Option configures optional collaborators of the handler.
type Option func(*Handler)

// WithExports enables the /exports routes.
func WithExports(e ExportScheduler) Option { return func(h *Handler) { h.Exports = e } }

// WithChanges enables GET /changes.
func WithChanges(r journal.Reader) Option { return func(h *Handler) { h.Changes = r } }

// WithEvents enables the GET /events stream.
func WithEvents(b *events.Bus) Option { return func(h *Handler) { h.Events = b } }

// Close ends every open event stream. Register it with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP dispatches to the route table.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /users", list(h.Service.ListUsers))
	mux.HandleFunc("POST /users", create(domain.ParseNewUser, h.Service.CreateUser))
	mux.HandleFunc("GET /users/{id}", byID(h.Service.GetUser))
	mux.HandleFunc("PATCH /users/{id}", patch(domain.ParseUserPatch, h.Service.PatchUser))
	mux.HandleFunc("DELETE /users/{id}", byID(h.Service.DeleteUser))
	mux.HandleFunc("POST /users/{id}/subscribeTo", subscription(h.Service.SubscribeTo))
	mux.HandleFunc("POST /users/{id}/unsubscribeFrom", subscription(h.Service.UnsubscribeFrom))

	mux.HandleFunc("GET /posts", list(h.Service.ListPosts))
	mux.HandleFunc("POST /posts", create(domain.ParseNewPost, h.Service.CreatePost))
	mux.HandleFunc("GET /posts/{id}", byID(h.Service.GetPost))
	mux.HandleFunc("PATCH /posts/{id}", patch(domain.ParsePostPatch, h.Service.PatchPost))
	mux.HandleFunc("DELETE /posts/{id}", byID(h.Service.DeletePost))

	mux.HandleFunc("GET /profiles", list(h.Service.ListProfiles))
	mux.HandleFunc("POST /profiles", create(domain.ParseNewProfile, h.Service.CreateProfile))
	mux.HandleFunc("GET /profiles/{id}", byID(h.Service.GetProfile))
	mux.HandleFunc("PATCH /profiles/{id}", patch(domain.ParseProfilePatch, h.Service.PatchProfile))
	mux.HandleFunc("DELETE /profiles/{id}", byID(h.Service.DeleteProfile))

	mux.HandleFunc("GET /member-types", list(h.Service.ListMemberTypes))
	mux.HandleFunc("GET /member-types/{id}", byID(h.Service.GetMemberType))
	mux.HandleFunc("PATCH /member-types/{id}", patch(domain.ParseMemberTypePatch, h.Service.PatchMemberType))

	mux.HandleFunc("GET /changes", h.handleChanges)
	mux.HandleFunc("GET /events", h.handleEvents)
	mux.HandleFunc("POST /exports", h.handleExportCreate)
	mux.HandleFunc("GET /exports", h.handleExportList)
	mux.HandleFunc("GET /exports/{id}", h.handleExportGet)
	return mux
}

func list[T any](fn func(context.Context) []T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fn(r.Context()))
	}
}

func byID[T any](fn func(context.Context, string) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := fn(r.Context(), r.PathValue("id"))
		respond(w, out, err)
	}
}

func create[In, Out any](parse func([]byte) (In, error), fn func(context.Context, In) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := decode(w, r, parse)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out, err := fn(r.Context(), in)
		respond(w, out, err)
	}
}

func patch[P, Out any](parse func([]byte) (P, error), fn func(context.Context, string, P) (Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := decode(w, r, parse)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out, err := fn(r.Context(), r.PathValue("id"), p)
		respond(w, out, err)
	}
}

func subscription(fn func(context.Context, string, string) (domain.User, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(w, r, domain.ParseSubscriptionRequest)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		out, err := fn(r.Context(), r.PathValue("id"), req.UserID)
		respond(w, out, err)
	}
}

func decode[T any](w http.ResponseWriter, r *http.Request, parse func([]byte) (T, error)) (T, error) {
	var zero T
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return zero, domain.Invalidf("read body: %v", err)
	}
	return parse(data)
}

func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	if h.Changes == nil {
		http.NotFound(w, r)
		return
	}
	limit := DefaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := h.Changes.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": records})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	record, err := h.Exports.Enqueue(r.Context(), exports.TriggerManual)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, exports.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

func (h *Handler) handleExportList(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	artifacts, err := h.Exports.Artifacts(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if artifacts == nil {
		artifacts = []blob.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exports":   h.Exports.List(),
		"artifacts": artifacts,
	})
}

func (h *Handler) handleExportGet(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Exports.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
