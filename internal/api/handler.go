package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/nidhogg/vouch/internal/loop"
	"github.com/nidhogg/vouch/internal/provenance"
	"github.com/nidhogg/vouch/internal/provider"
	"github.com/nidhogg/vouch/internal/ratelimit"
	"github.com/nidhogg/vouch/internal/store"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers. The Neo4j store and the
// Postgres store are optional; without Neo4j every scope gets an in-process
// ledger, without Postgres chat history is disabled.
type Handler struct {
	router        *provider.Router
	graphStore    *provenance.Store
	pg            *store.Store
	limiter       ratelimit.Limiter
	jwtSecret     string
	producerModel string
	reviewerModel string
	logger        *zap.Logger

	mu         sync.Mutex
	memLedgers map[string]*provenance.MemoryLedger
}

// NewHandler creates a new API handler.
func NewHandler(
	router *provider.Router,
	graphStore *provenance.Store,
	pg *store.Store,
	limiter ratelimit.Limiter,
	jwtSecret string,
	producerModel, reviewerModel string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		router:        router,
		graphStore:    graphStore,
		pg:            pg,
		limiter:       limiter,
		jwtSecret:     jwtSecret,
		producerModel: producerModel,
		reviewerModel: reviewerModel,
		logger:        logger,
		memLedgers:    make(map[string]*provenance.MemoryLedger),
	}
}

// ledgerFor returns the scope's ledger: durable when Neo4j is configured,
// otherwise a shared per-scope in-memory ledger.
func (h *Handler) ledgerFor(scope string) provenance.Ledger {
	if h.graphStore != nil {
		return h.graphStore.Ledger(scope)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.memLedgers[scope]
	if !ok {
		l = provenance.NewMemoryLedger(scope)
		h.memLedgers[scope] = l
	}
	return l
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Group(func(r chi.Router) {
			r.Use(h.scopeAuth)
			r.Use(h.rateLimit)

			r.Post("/tasks", h.runTask)
			r.Post("/review", h.reviewNode)

			r.Get("/graph", h.getGraph)
			r.Get("/graph/search", h.searchGraph)
			r.Put("/graph/nodes/{id}", h.editNode)
			r.Delete("/graph", h.clearGraph)

			r.Get("/chat/history", h.chatHistory)
			r.Get("/chat/sessions", h.chatSessions)
			r.Delete("/chat/history", h.clearChatHistory)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "vouch"})
}

type taskRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

type taskResponse struct {
	Result    *provenance.Node `json:"result"`
	Judgment  loop.Judgment    `json:"judgment"`
	SessionID string           `json:"session_id"`
	MessageID int64            `json:"message_id,omitempty"`
	Attempts  int              `json:"attempts"`
	Improved  bool             `json:"improved"`
}

// runTask drives the produce/review loop for one prompt and records the
// conversation around it.
func (h *Handler) runTask(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ledger := h.ledgerFor(scope)
	index := provenance.NewIndex(ledger)
	producer := loop.NewProducer(ledger, index, h.router, h.producerModel, h.logger)
	reviewer := loop.NewReviewer(ledger, h.router, h.reviewerModel, h.logger)
	controller := loop.NewController(producer, reviewer, h.logger)

	userNode, err := ledger.InsertNode(r.Context(), provenance.KindUserMessage, req.Prompt, nil)
	if err != nil {
		h.logger.Error("record user message failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	outcome, err := controller.Run(r.Context(), req.Prompt)
	if err != nil {
		h.logger.Error("task loop failed", zap.String("scope", scope), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	assistantNode, err := ledger.InsertNode(r.Context(), provenance.KindAssistantMessage, outcome.Response.Content, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if _, err := ledger.InsertEdge(r.Context(), userNode.ID, assistantNode.ID, provenance.LabelRespondedTo); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if _, err := ledger.InsertEdge(r.Context(), assistantNode.ID, outcome.Response.ID, provenance.LabelContainsResult); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := taskResponse{
		Result:    outcome.Response,
		Judgment:  outcome.Judgment,
		SessionID: sessionID,
		Attempts:  outcome.Attempts,
		Improved:  outcome.Improved,
	}

	if h.pg != nil {
		if _, histErr := h.pg.AppendMessage(r.Context(), scope, sessionID, "user", req.Prompt, ""); histErr != nil {
			h.logger.Warn("append user message failed", zap.Error(histErr))
		}
		meta, _ := json.Marshal(map[string]interface{}{
			"judgment":  outcome.Judgment,
			"result_id": outcome.Response.ID,
			"attempts":  outcome.Attempts,
			"improved":  outcome.Improved,
		})
		msg, histErr := h.pg.AppendMessage(r.Context(), scope, sessionID, "assistant", outcome.Response.Content, string(meta))
		if histErr != nil {
			h.logger.Warn("append assistant message failed", zap.Error(histErr))
		} else {
			resp.MessageID = msg.ID
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	NodeID string `json:"node_id"`
}

// reviewNode re-reviews an existing response node by ID.
func (h *Handler) reviewNode(w http.ResponseWriter, r *http.Request) {
	scope := scopeFrom(r.Context())

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.NodeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node_id is required"})
		return
	}

	ledger := h.ledgerFor(scope)
	snap, err := ledger.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var target *provenance.Node
	for i := range snap.Nodes {
		if snap.Nodes[i].ID == req.NodeID {
			target = &snap.Nodes[i]
			break
		}
	}
	if target == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
		return
	}

	reviewer := loop.NewReviewer(ledger, h.router, h.reviewerModel, h.logger)
	judgment, err := reviewer.Review(r.Context(), target)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"judgment": judgment})
}

func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	ledger := h.ledgerFor(scopeFrom(r.Context()))
	snap, err := ledger.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) searchGraph(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	index := provenance.NewIndex(h.ledgerFor(scopeFrom(r.Context())))
	nodes, err := index.Search(r.Context(), query, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if nodes == nil {
		nodes = []provenance.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

type editNodeRequest struct {
	Content string `json:"content"`
}

func (h *Handler) editNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req editNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ledger := h.ledgerFor(scopeFrom(r.Context()))
	node, err := ledger.EditNodeContent(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, provenance.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) clearGraph(w http.ResponseWriter, r *http.Request) {
	ledger := h.ledgerFor(scopeFrom(r.Context()))
	stats, err := ledger.Clear(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	if h.pg == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history store not configured"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := h.pg.History(r.Context(), scopeFrom(r.Context()), r.URL.Query().Get("session_id"), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *Handler) chatSessions(w http.ResponseWriter, r *http.Request) {
	if h.pg == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history store not configured"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	sessions, err := h.pg.Sessions(r.Context(), scopeFrom(r.Context()), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []store.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// clearChatHistory removes messages; with no session filter it also clears
// the scope's provenance graph.
func (h *Handler) clearChatHistory(w http.ResponseWriter, r *http.Request) {
	if h.pg == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "history store not configured"})
		return
	}
	scope := scopeFrom(r.Context())
	sessionID := r.URL.Query().Get("session_id")

	deleted, err := h.pg.ClearHistory(r.Context(), scope, sessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	result := map[string]interface{}{"deleted": deleted}
	if sessionID == "" {
		stats, clearErr := h.ledgerFor(scope).Clear(r.Context())
		if clearErr != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": clearErr.Error()})
			return
		}
		result["deleted_nodes"] = stats.Nodes
		result["deleted_edges"] = stats.Edges
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
