package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"strata/internal/client"
	"strata/internal/domain"
	"strata/internal/paging"
	"strata/internal/service"
	"strata/internal/worker"
)

// Headers identifying the caller. Requests without them run anonymously.
const (
	HeaderProvider   = "X-Strata-Provider"
	HeaderIdentifier = "X-Strata-Identifier"
)

// maxBodySize bounds operation request bodies
const maxBodySize = 8 << 20

// SessionResolver opens sessions for callers
type SessionResolver interface {
	CreateSession(ctx context.Context, provider, identifier string, createIfMissing bool) (*domain.Session, bool, error)
}

// WorkerLister reports background worker state
type WorkerLister interface {
	List() []worker.Info
}

// Handler serves the repository over HTTP
type Handler struct {
	client   *client.Client
	sessions SessionResolver
	workers  WorkerLister
	events   http.Handler
	logger   zerolog.Logger
}

// New creates a new handler
func New(c *client.Client, sessions SessionResolver, logger zerolog.Logger) *Handler {
	return &Handler{
		client:   c,
		sessions: sessions,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// SetWorkers sets the worker registry reported by /api/workers
func (h *Handler) SetWorkers(w WorkerLister) {
	h.workers = w
}

// SetEventStream sets the SSE handler served at /events
func (h *Handler) SetEventStream(s http.Handler) {
	h.events = s
}

// Router returns the routes wrapped in the standard middleware. CORS wraps
// the router so preflight requests are answered before route matching.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(Recover(h.logger), Logger(h.logger))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, domain.NotFound("no route for %s", req.URL.Path))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, ErrorResponse{Error: domain.BadRequest("method %s not allowed on %s", req.Method, req.URL.Path)}, http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/operations", h.ListOperations).Methods(http.MethodGet)
	r.HandleFunc("/api/operations/{name}", h.ExecuteOperation).Methods(http.MethodPost)
	r.HandleFunc("/api/schema", h.GetSchema).Methods(http.MethodGet)
	r.HandleFunc("/api/entities/{id}", h.GetEntity).Methods(http.MethodGet)
	r.HandleFunc("/api/changelog", h.GetChangelog).Methods(http.MethodGet)
	r.HandleFunc("/api/workers", h.ListWorkers).Methods(http.MethodGet)

	if h.events != nil {
		r.Handle("/events", h.events).Methods(http.MethodGet)
	}
	return CORS(r)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error *domain.Error `json:"error"`
}

// ValueResponse is the body of every successful operation
type ValueResponse struct {
	Value any `json:"value"`
}

// Health reports that the server is up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// ListOperations returns the operation names of the client contract
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, client.Operations, http.StatusOK)
}

// ExecuteOperation runs one named operation with a JSON args body
func (h *Handler) ExecuteOperation(w http.ResponseWriter, r *http.Request) {
	name := client.OperationName(mux.Vars(r)["name"])

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, domain.BadRequest("failed to read request body: %v", err))
		return
	}
	args, err := client.DecodeArgs(name, body)
	if err != nil {
		writeError(w, err)
		return
	}
	h.execute(w, r, name, args)
}

// GetSchema returns the admin schema, or the published one with ?published=true
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, client.OpGetSchemaSpecification, &client.GetSchemaSpecificationArgs{
		Published: boolParam(r, "published"),
	})
}

// GetEntity returns one entity. Query parameters: version, published.
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	version, err := intParam(r, "version")
	if err != nil {
		writeError(w, err)
		return
	}
	h.execute(w, r, client.OpGetEntity, &client.GetEntityArgs{
		Lookup:    domain.EntityLookup{ID: mux.Vars(r)["id"], Version: version},
		Published: boolParam(r, "published"),
	})
}

// GetChangelog returns one page of changelog events. Query parameters:
// entity, first, after, reverse.
func (h *Handler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	first, err := intParam(r, "first")
	if err != nil {
		writeError(w, err)
		return
	}
	req := paging.Request{After: r.URL.Query().Get("after")}
	if first > 0 {
		req.First = &first
	}
	h.execute(w, r, client.OpGetChangelogEvents, &client.GetChangelogEventsArgs{
		Query: domain.ChangelogEventQuery{
			EntityID: r.URL.Query().Get("entity"),
			Reverse:  boolParam(r, "reverse"),
		},
		Paging: req,
	})
}

// ListWorkers returns the state of the background workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	if h.workers == nil {
		writeJSON(w, []worker.Info{}, http.StatusOK)
		return
	}
	writeJSON(w, h.workers.List(), http.StatusOK)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, name client.OperationName, args any) {
	session, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result := h.client.Execute(r.Context(), &client.Operation{Name: name, Session: session, Args: args})
	if !result.IsOk() {
		if result.Err.Kind == domain.ErrorGeneric {
			h.logger.Error().Err(result.Err).Str("operation", string(name)).Msg("operation failed")
		}
		writeError(w, result.Err)
		return
	}
	writeJSON(w, ValueResponse{Value: result.Value}, http.StatusOK)
}

// session resolves the caller from the identity headers
func (h *Handler) session(r *http.Request) (domain.Session, error) {
	provider, identifier := r.Header.Get(HeaderProvider), r.Header.Get(HeaderIdentifier)
	if provider == "" && identifier == "" {
		return domain.Session{DefaultAuthKeys: []string{domain.AuthKeyNone}}, nil
	}
	if h.sessions == nil {
		return domain.Session{}, domain.NotAuthorized("sessions are not supported")
	}
	session, _, err := h.sessions.CreateSession(r.Context(), provider, identifier, true)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// StatusCode maps an error kind to an HTTP status
func StatusCode(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorBadRequest:
		return http.StatusBadRequest
	case domain.ErrorNotAuthorized:
		return http.StatusUnauthorized
	case domain.ErrorNotFound:
		return http.StatusNotFound
	case domain.ErrorConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Helper methods

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Can't write an error response once headers are sent
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	e := domain.AsError(err)
	writeJSON(w, ErrorResponse{Error: e}, StatusCode(e.Kind))
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, domain.BadRequest("invalid %s parameter (%s)", name, s)
	}
	return n, nil
}

var _ SessionResolver = (*service.Engine)(nil)
