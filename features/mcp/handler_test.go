package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"voyagemate/apps/backend/internal/retrieval"
	"voyagemate/apps/backend/internal/vector"
)

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) Search(ctx context.Context, q string, k int) (*retrieval.SearchResult, error) {
	args := m.Called(ctx, q, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*retrieval.SearchResult), args.Error(1)
}

func (m *MockRetriever) Ask(ctx context.Context, q string, k int) *retrieval.Answer {
	return m.Called(ctx, q, k).Get(0).(*retrieval.Answer)
}

type MockEntitySearcher struct{ mock.Mock }

func (m *MockEntitySearcher) Search(ctx context.Context, entity, q string, size int) ([]vector.Hit, error) {
	args := m.Called(ctx, entity, q, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.Hit), args.Error(1)
}

func call(t *testing.T, h *Handler, name string, args any) *JSONRPCResponse {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	params, err := json.Marshal(CallParams{Name: name, Arguments: raw})
	require.NoError(t, err)
	resp := h.processRequest(context.Background(), JSONRPCRequest{JSONRPC: "2.0", Method: "tools/call", Params: params, ID: 1})
	require.NotNil(t, resp)
	return resp
}

func text(t *testing.T, resp *JSONRPCResponse) (string, bool) {
	t.Helper()
	res, ok := resp.Result.(ToolResult)
	require.True(t, ok, "expected tool result, got %#v", resp)
	require.Len(t, res.Content, 1)
	return res.Content[0].Text, res.IsError
}

func TestProcessRequest_ToolsList(t *testing.T) {
	h := NewHandler(nil, nil)
	resp := h.processRequest(context.Background(), JSONRPCRequest{Method: "tools/list", ID: 1})

	list := resp.Result.(ListToolsResult)
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchGuides, ToolAsk, ToolSearchEntities, ToolListEntities}, names)
}

func TestProcessRequest_Notification(t *testing.T) {
	h := NewHandler(nil, nil)
	assert.Nil(t, h.processRequest(context.Background(), JSONRPCRequest{Method: "notifications/initialized"}))
}

func TestProcessRequest_UnknownMethod(t *testing.T) {
	h := NewHandler(nil, nil)
	resp := h.processRequest(context.Background(), JSONRPCRequest{Method: "resources/list", ID: 2})
	assert.Equal(t, ErrMethodNotFound, resp.Error.(map[string]interface{})["code"])
}

func TestTool_SearchGuides(t *testing.T) {
	r := new(MockRetriever)
	h := NewHandler(r, nil)
	r.On("Search", mock.Anything, "成都美食", 3).Return(&retrieval.SearchResult{Context: "source: a\n\n火锅", ChunksFound: 1}, nil)

	out, isErr := text(t, call(t, h, ToolSearchGuides, GuideArgs{Query: " 成都美食 ", TopK: 3}))
	assert.False(t, isErr)
	assert.Equal(t, "source: a\n\n火锅", out)
}

func TestTool_SearchGuides_MissingQuery(t *testing.T) {
	h := NewHandler(new(MockRetriever), nil)
	resp := call(t, h, ToolSearchGuides, GuideArgs{})
	assert.Equal(t, ErrInvalidParams, resp.Error.(map[string]interface{})["code"])
}

func TestTool_Ask(t *testing.T) {
	r := new(MockRetriever)
	h := NewHandler(r, nil)

	r.On("Ask", mock.Anything, "去哪吃火锅", 0).Return(&retrieval.Answer{Answer: "春熙路附近。", Context: "source: a\n\n火锅"}).Once()
	out, isErr := text(t, call(t, h, ToolAsk, GuideArgs{Question: "去哪吃火锅"}))
	assert.False(t, isErr)
	assert.Contains(t, out, "春熙路附近。")
	assert.Contains(t, out, "[参考资料]")

	r.On("Ask", mock.Anything, "去哪吃火锅", 0).Return(&retrieval.Answer{Answer: "抱歉，无法生成回答: knowledge base unavailable", Error: "knowledge base unavailable"}).Once()
	out, isErr = text(t, call(t, h, ToolAsk, GuideArgs{Question: "去哪吃火锅"}))
	assert.True(t, isErr)
	assert.Contains(t, out, "knowledge base unavailable")
}

func TestTool_SearchEntities(t *testing.T) {
	e := new(MockEntitySearcher)
	h := NewHandler(nil, e)

	e.On("Search", mock.Anything, "attractions", "博物馆", 2).Return([]vector.Hit{{ID: 7, Score: 0.9}, {ID: 3, Score: 0.8}}, nil).Once()
	out, _ := text(t, call(t, h, ToolSearchEntities, EntityArgs{Entity: "attractions", Query: "博物馆", Limit: 2}))
	assert.Contains(t, out, "1. attractions id=7 (score 0.900)")

	e.On("Search", mock.Anything, "hotels", "博物馆", 0).Return(nil, errors.New("unknown entity")).Once()
	out, isErr := text(t, call(t, h, ToolSearchEntities, EntityArgs{Entity: "hotels", Query: "博物馆"}))
	assert.True(t, isErr)
	assert.Contains(t, out, "unknown entity")
}

func TestTool_ListEntities(t *testing.T) {
	h := NewHandler(nil, nil)
	out, _ := text(t, call(t, h, ToolListEntities, struct{}{}))
	assert.Contains(t, out, "destinations -> Destination")
}

func TestServeHTTP(t *testing.T) {
	h := NewHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "voyagemate-mcp")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString("{bad")))
	assert.Contains(t, rec.Body.String(), "-32700")
}

func TestHandler_HandleMessage_MissingSessionID(t *testing.T) {
	h := NewHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "VALIDATION_ERROR", resp["error"].(map[string]interface{})["code"])
}

func TestHandler_HandleMessage_SessionNotFound(t *testing.T) {
	h := NewHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=unknown", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HandleMessage_InvalidJSON(t *testing.T) {
	h := NewHandler(nil, nil)
	h.sessions["s1"] = make(chan string, 1)

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString("{invalid-json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_JSON")
}

func TestHandler_HandleMessage_DeliversToSession(t *testing.T) {
	h := NewHandler(nil, nil)
	ch := make(chan string, 1)
	h.sessions["s1"] = ch

	rec := httptest.NewRecorder()
	h.HandleMessage(rec, httptest.NewRequest(http.MethodPost, "/mcp/messages?sessionId=s1", bytes.NewBufferString(`{"jsonrpc":"2.0","method":"ping","id":1}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case msg := <-ch:
		assert.Contains(t, msg, `"id":1`)
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
}
