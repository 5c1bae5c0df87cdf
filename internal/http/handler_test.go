package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/domain"
	hearthhttp "github.com/hearthly/hearth/internal/http"
	"github.com/hearthly/hearth/internal/provider/echo"
	"github.com/hearthly/hearth/internal/provider/registry"
	"github.com/hearthly/hearth/internal/store/memstore"
)

// newTestServer wires the full request path over the in-memory store
// and the echo provider.
func newTestServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()

	store := memstore.NewStore()

	reg := registry.NewRegistry("echo", nil)
	require.NoError(t, reg.Register(echo.NewProvider()))

	assembler := domain.NewContextAssembler(domain.AssemblerConfig{
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   256,
	})
	orchestrator := domain.NewOrchestrator(
		reg, assembler, domain.NewExchangeRecorder(store), store, store, domain.OrchestratorConfig{},
	)

	handler := hearthhttp.NewHandler(orchestrator, reg, store, store)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/conversations", handler.HandleCreateConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", handler.HandleMessage)
	mux.HandleFunc("PUT /v1/companions/{id}", handler.HandlePutCompanion)
	mux.HandleFunc("GET /v1/providers", handler.HandleProviders)
	mux.HandleFunc("GET /health", handler.HandleHealth)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func putCompanion(t *testing.T, server *httptest.Server, id string) {
	t.Helper()

	body, err := json.Marshal(domain.Companion{Name: "Luna", Traits: []string{"curious"}})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut, server.URL+"/v1/companions/"+id, bytes.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func createConversation(t *testing.T, server *httptest.Server, userID, companionID string) string {
	t.Helper()

	req, err := http.NewRequest(
		http.MethodPost,
		server.URL+"/v1/conversations",
		strings.NewReader(fmt.Sprintf(`{"companion_id": %q}`, companionID)),
	)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", userID)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var conv domain.Conversation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conv))
	require.NotEmpty(t, conv.ID)
	return conv.ID
}

func postMessage(t *testing.T, server *httptest.Server, conversationID, userID, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(
		http.MethodPost,
		server.URL+"/v1/conversations/"+conversationID+"/messages",
		strings.NewReader(body),
	)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", userID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHandler_CreateConversation(t *testing.T) {
	t.Run("should create a conversation for an existing companion", func(t *testing.T) {
		server, _ := newTestServer(t)
		putCompanion(t, server, "comp-1")

		id := createConversation(t, server, "user-1", "comp-1")
		require.NotEmpty(t, id)
	})

	t.Run("should reject a request without user header", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, err := http.Post(server.URL+"/v1/conversations", "application/json", strings.NewReader(`{"companion_id": "comp-1"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should return 404 for unknown companion", func(t *testing.T) {
		server, _ := newTestServer(t)

		req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/conversations", strings.NewReader(`{"companion_id": "missing"}`))
		require.NoError(t, err)
		req.Header.Set("X-User-Id", "user-1")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHandler_Message(t *testing.T) {
	t.Run("should return the finalized turn", func(t *testing.T) {
		server, store := newTestServer(t)
		putCompanion(t, server, "comp-1")
		conversationID := createConversation(t, server, "user-1", "comp-1")

		resp := postMessage(t, server, conversationID, "user-1", `{"text": "Hello there"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var finalized domain.FinalizedTurn
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&finalized))
		require.Equal(t, "You said: Hello there", finalized.Result.Content)
		require.Equal(t, "echo", finalized.Result.Provider)
		require.NotNil(t, finalized.Turn)

		msgs, err := store.RecentMessages(context.Background(), conversationID, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
	})

	t.Run("should reject empty text", func(t *testing.T) {
		server, _ := newTestServer(t)
		putCompanion(t, server, "comp-1")
		conversationID := createConversation(t, server, "user-1", "comp-1")

		resp := postMessage(t, server, conversationID, "user-1", `{"text": "  "}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should reject another user's conversation", func(t *testing.T) {
		server, _ := newTestServer(t)
		putCompanion(t, server, "comp-1")
		conversationID := createConversation(t, server, "user-1", "comp-1")

		resp := postMessage(t, server, conversationID, "intruder", `{"text": "Hello"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should return 404 for unknown conversation", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp := postMessage(t, server, "missing", "user-1", `{"text": "Hello"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should stream chunks as server-sent events", func(t *testing.T) {
		server, store := newTestServer(t)
		putCompanion(t, server, "comp-1")
		conversationID := createConversation(t, server, "user-1", "comp-1")

		resp := postMessage(t, server, conversationID, "user-1", `{"text": "Hello", "stream": true}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		var chunks []domain.StreamChunk
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, found := strings.CutPrefix(scanner.Text(), "data: ")
			if !found {
				continue
			}
			var chunk domain.StreamChunk
			require.NoError(t, json.Unmarshal([]byte(data), &chunk))
			chunks = append(chunks, chunk)
		}
		require.NoError(t, scanner.Err())

		require.NotEmpty(t, chunks)
		last := chunks[len(chunks)-1]
		require.True(t, last.Done)

		var b strings.Builder
		for _, chunk := range chunks[:len(chunks)-1] {
			b.WriteString(chunk.Text)
		}
		require.Equal(t, "You said: Hello", b.String())

		// Recording detaches from the response lifecycle, so give the
		// commit a moment to land.
		require.Eventually(t, func() bool {
			msgs, err := store.RecentMessages(context.Background(), conversationID, 10)
			return err == nil && len(msgs) == 2 && msgs[1].Content == "You said: Hello"
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestHandler_Providers(t *testing.T) {
	t.Run("should list registered providers", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, err := http.Get(server.URL + "/v1/providers")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string][]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, []string{"echo"}, body["providers"])
	})
}

func TestHandler_Health(t *testing.T) {
	t.Run("should report healthy", func(t *testing.T) {
		server, _ := newTestServer(t)

		resp, err := http.Get(server.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "healthy")
	})
}
