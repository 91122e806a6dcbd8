package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"convoflow/internal/auth"
	"convoflow/internal/channels"
	"convoflow/internal/config"
	"convoflow/internal/conversation"
	"convoflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeps struct{}

func (stubDeps) Receive(ctx context.Context, userID string, in channels.Inbound) (*conversation.Result, error) {
	return &conversation.Result{}, nil
}

func (stubDeps) ThreadsForUser(ctx context.Context, userID string) ([]models.Thread, error) {
	return nil, nil
}

func (stubDeps) CheckAccess(ctx context.Context, userID, threadID string) error { return nil }

func (stubDeps) Messages(ctx context.Context, threadID string) ([]models.Message, error) {
	return nil, nil
}

func (stubDeps) AddParticipant(ctx context.Context, actingUserID, threadID, userID string) error {
	return nil
}

func (stubDeps) UnreadCountForThread(ctx context.Context, threadID string) (int, error) {
	return 0, nil
}

func (stubDeps) MarkRead(ctx context.Context, threadID string, ids []string) (int64, error) {
	return 0, nil
}

func (stubDeps) Send(ctx context.Context, userID string, req models.SendRequest) (*models.Message, error) {
	return &models.Message{}, nil
}

func newTestServer() *Server {
	stub := stubDeps{}
	deps := Deps{
		Receiver: stub,
		Threads:  stub,
		Reads:    stub,
		Sender:   stub,
		Auth:     auth.NewManager(map[string]string{"tok": "user-1"}),
	}
	srv := New(&config.Config{Version: "test", WhatsAppVerifyToken: "v"}, deps, zerolog.Nop())
	srv.Initialize()
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		name       string
		method     string
		target     string
		token      string
		wantStatus int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"db health without db", http.MethodGet, "/healthz/db", "", http.StatusServiceUnavailable},
		{"root", http.MethodGet, "/api/", "", http.StatusOK},
		{"whatsapp verify", http.MethodGet, "/webhooks/whatsapp/user-1?hub.mode=subscribe&hub.verify_token=v&hub.challenge=c", "", http.StatusOK},
		{"threads need auth", http.MethodGet, "/api/threads", "", http.StatusUnauthorized},
		{"threads", http.MethodGet, "/api/threads", "tok", http.StatusOK},
		{"messages", http.MethodGet, "/api/threads/t1/messages", "tok", http.StatusOK},
		{"unread", http.MethodGet, "/api/threads/t1/unread", "tok", http.StatusOK},
		{"search not routed without index", http.MethodGet, "/api/threads/t1/search?q=x", "tok", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRootListsRegisteredRoutes(t *testing.T) {
	srv := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.ServiceInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "test", info.Version)
	assert.Contains(t, info.Endpoints, "POST /webhooks/whatsapp/:userId")
	assert.Contains(t, info.Endpoints, "POST /webhooks/email/:userId")
	assert.Contains(t, info.Endpoints, "GET /api/threads")
	assert.Contains(t, info.Endpoints, "POST /api/messages/send")
	assert.NotContains(t, info.Endpoints, "GET /api/threads/:id/search")
}
