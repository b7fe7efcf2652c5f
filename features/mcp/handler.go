// Package mcp exposes the travel knowledge base and the entity collections as
// Model Context Protocol tools over JSON-RPC, either plain HTTP or SSE sessions.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voyagemate/apps/backend/internal/entity"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/retrieval"
	"voyagemate/apps/backend/internal/vector"
)

const (
	ToolSearchGuides   = "voyagemate_search_guides"
	ToolAsk            = "voyagemate_ask"
	ToolSearchEntities = "voyagemate_search_entities"
	ToolListEntities   = "voyagemate_list_entities"
)

type Retriever interface {
	Search(ctx context.Context, query string, k int) (*retrieval.SearchResult, error)
	Ask(ctx context.Context, question string, k int) *retrieval.Answer
}

type EntitySearcher interface {
	Search(ctx context.Context, entity, query string, size int) ([]vector.Hit, error)
}

type Handler struct {
	retriever    Retriever
	entities     EntitySearcher
	sessions     map[string]chan string // sessionId -> serialized JSON-RPC responses
	sessionsLock sync.RWMutex
}

func NewHandler(r Retriever, e EntitySearcher) *Handler {
	return &Handler{
		retriever: r,
		entities:  e,
		sessions:  make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type GuideArgs struct {
	Query    string `json:"query"`
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type EntityArgs struct {
	Entity string `json:"entity"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

var errArgs = errors.New("invalid arguments")

func topKSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": fmt.Sprintf("Number of passages to use (default %d).", retrieval.DefaultTopK),
		"minimum":     1,
		"maximum":     20,
	}
}

func tools() []Tool {
	return []Tool{
		{
			Name: ToolSearchGuides,
			Description: `Travel guide search. Returns the most relevant passages of the Chinese travel guide knowledge base, each prefixed with its source URL.

USAGE EXAMPLE:
voyagemate_search_guides(query="成都 必吃 美食", top_k=5)`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]string{"type": "string", "description": "The search query"},
					"top_k": topKSchema(),
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        ToolAsk,
			Description: `Question answering over the travel guides. The answer is generated only from retrieved passages; the passages are returned as well.`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]string{"type": "string", "description": "The question, ideally in Chinese"},
					"top_k":    topKSchema(),
				},
				"required": []string{"question"},
			},
		},
		{
			Name: ToolSearchEntities,
			Description: `Semantic search over indexed catalogue records (destinations, attractions, community itineraries, authors). Returns record ids ranked by similarity.

USAGE EXAMPLE:
voyagemate_search_entities(entity="attractions", query="适合带孩子的博物馆", limit=10)`,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"entity": map[string]interface{}{"type": "string", "enum": entity.Names()},
					"query":  map[string]string{"type": "string", "description": "The search query"},
					"limit":  map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100},
				},
				"required": []string{"entity", "query"},
			},
		},
		{
			Name:        ToolListEntities,
			Description: `Lists the entity types that can be searched and their vector collections.`,
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

// processRequest returns nil for notifications.
func (h *Handler) processRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "voyagemate-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools()}}
	case "tools/call":
		var params CallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			slog.WarnContext(ctx, "invalid params structure", "error", err)
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
			return &resp
		}
		text, err := h.callTool(ctx, params)
		if errors.Is(err, errArgs) {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, err.Error())
			return &resp
		}
		if err != nil {
			slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
			return &JSONRPCResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Result: ToolResult{
					Content: []ToolContent{{Type: "text", Text: "Error: " + err.Error()}},
					IsError: true,
				},
			}
		}
		slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  ToolResult{Content: []ToolContent{{Type: "text", Text: text}}},
		}
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, params CallParams) (string, error) {
	switch params.Name {
	case ToolSearchGuides:
		var args GuideArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || strings.TrimSpace(args.Query) == "" {
			return "", fmt.Errorf("%w: query is required", errArgs)
		}
		res, err := h.retriever.Search(ctx, strings.TrimSpace(args.Query), args.TopK)
		if err != nil {
			return "", err
		}
		if res.ChunksFound == 0 && res.Context == "" {
			return "No results found.", nil
		}
		return res.Context, nil

	case ToolAsk:
		var args GuideArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || strings.TrimSpace(args.Question) == "" {
			return "", fmt.Errorf("%w: question is required", errArgs)
		}
		ans := h.retriever.Ask(ctx, strings.TrimSpace(args.Question), args.TopK)
		if ans.Error != "" {
			return "", errors.New(ans.Answer)
		}
		return fmt.Sprintf("%s\n\n[参考资料]\n%s", ans.Answer, ans.Context), nil

	case ToolSearchEntities:
		var args EntityArgs
		if err := json.Unmarshal(params.Arguments, &args); err != nil || args.Entity == "" || strings.TrimSpace(args.Query) == "" {
			return "", fmt.Errorf("%w: entity and query are required", errArgs)
		}
		hits, err := h.entities.Search(ctx, args.Entity, args.Query, args.Limit)
		if err != nil {
			return "", err
		}
		if len(hits) == 0 {
			return "No results found.", nil
		}
		var b strings.Builder
		for i, hit := range hits {
			fmt.Fprintf(&b, "%d. %s id=%d (score %.3f)\n", i+1, args.Entity, hit.ID, hit.Score)
		}
		return b.String(), nil

	case ToolListEntities:
		cols := entity.Collections()
		names := make([]string, 0, len(cols))
		for n := range cols {
			names = append(names, n)
		}
		sort.Strings(names)
		var b strings.Builder
		for _, n := range names {
			fmt.Fprintf(&b, "%s -> %s\n", n, cols[n])
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("%w: unknown tool %q", errArgs, params.Name)
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.InfoContext(r.Context(), "mcp request received", "method", r.Method, "path", r.URL.Path)

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}

	resp := h.processRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// HandleSSE opens a session whose responses are streamed as SSE events.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeHttpError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming unsupported", middleware.GetCorrelationID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		h.sessionsLock.Unlock()
		close(msgChan)
		slog.Info("sse session ended", "session_id", sessionID)
	}()

	slog.Info("sse session started", "session_id", sessionID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC request for an open session and answers 202;
// the response is delivered on the session's SSE stream.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeHttpError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId", correlationID)
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		slog.Warn("session not found", "session_id", sessionID, "correlation_id", correlationID)
		h.writeHttpError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", correlationID)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeHttpError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON", correlationID)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	ctx := context.WithoutCancel(r.Context())
	go func() {
		resp := h.processRequest(ctx, req)
		if resp == nil {
			return
		}
		body, err := json.Marshal(resp)
		if err != nil {
			slog.Error("failed to marshal response", "error", err, "correlation_id", correlationID)
			return
		}
		h.deliver(sessionID, string(body))
	}()
}

// deliver drops the message when the session is gone or its buffer is full.
func (h *Handler) deliver(sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	ch, ok := h.sessions[sessionID]
	if !ok {
		slog.Warn("session closed before response", "session_id", sessionID)
		return
	}
	select {
	case ch <- msg:
	default:
		slog.Warn("session channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC over HTTP reports errors in the body with 200.
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(makeErrorResponse(id, code, message))
}

func (h *Handler) writeHttpError(w http.ResponseWriter, status int, code string, message string, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"status": "error",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"correlationId": correlationID,
	}
	_ = json.NewEncoder(w).Encode(resp)
}
