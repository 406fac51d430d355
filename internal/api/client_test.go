package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servifast/jobsync/internal/auth"
	"github.com/servifast/jobsync/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{
		BaseURL: srv.URL,
		Token:   auth.Static("test-token"),
	})
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&Config{Token: auth.Static("t")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")

	_, err = NewClient(&Config{BaseURL: "http://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token source is required")
}

func TestClient_GetJob(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/jobs/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"id":             42,
			"client_id":      7,
			"worker_id":      9,
			"status":         "IN_PROGRESS",
			"base_fee":       150.50,
			"extras":         25,
			"total_amount":   175.50,
			"created_at":     "2026-08-30T10:00:00",
			"updated_at":     "2026-08-30T11:00:00",
			"unknown_field":  "tolerated",
			"payment_method": "cash",
		})
	}))

	job, err := client.GetJob(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), job.ID)
	require.NotNil(t, job.WorkerID)
	assert.Equal(t, int64(9), *job.WorkerID)
	// Status strings are normalized regardless of backend casing.
	assert.Equal(t, domain.StatusInProgress, job.Status)
	assert.True(t, job.TotalAmount.Equal(decimal.RequireFromString("175.50")))
	assert.False(t, job.CreatedAt.IsZero())
}

func TestClient_GetJob_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Trabajo no encontrado"})
	}))

	_, err := client.GetJob(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestClient_AcceptWorker_Conflict(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{name: "worker busy on another job", code: domain.ConflictWorkerBusy},
		{name: "another application already accepted", code: domain.ConflictAlreadyAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/jobs/42/accept-worker/7", r.URL.Path)
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"code":   tt.code,
					"detail": "conflict",
				})
			}))

			_, err := client.AcceptWorker(context.Background(), 42, 7)
			require.Error(t, err)

			var conflict *domain.ApplicationConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, tt.code, conflict.Code)
			assert.Equal(t, int64(42), conflict.JobID)
			assert.Equal(t, int64(7), conflict.ApplicationID)
		})
	}
}

func TestClient_AcceptWorker_GenericError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "job is not pending"})
	}))

	_, err := client.AcceptWorker(context.Background(), 42, 7)
	require.Error(t, err)

	var conflict *domain.ApplicationConflictError
	assert.False(t, errors.As(err, &conflict), "non-conflict codes must stay generic")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "job is not pending")
}

func TestClient_Transitions(t *testing.T) {
	paths := map[string]func(c *Client, ctx context.Context) (domain.Job, error){
		"/api/jobs/42/start-route":     func(c *Client, ctx context.Context) (domain.Job, error) { return c.StartRoute(ctx, 42) },
		"/api/jobs/42/confirm-arrival": func(c *Client, ctx context.Context) (domain.Job, error) { return c.ConfirmArrival(ctx, 42) },
		"/api/jobs/42/start-service":   func(c *Client, ctx context.Context) (domain.Job, error) { return c.StartService(ctx, 42) },
		"/api/jobs/42/complete":        func(c *Client, ctx context.Context) (domain.Job, error) { return c.Complete(ctx, 42) },
		"/api/jobs/42/cancel":          func(c *Client, ctx context.Context) (domain.Job, error) { return c.Cancel(ctx, 42) },
	}

	for wantPath, call := range paths {
		t.Run(wantPath, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, wantPath, r.URL.Path)
				json.NewEncoder(w).Encode(map[string]any{"id": 42, "status": "accepted"})
			}))

			job, err := call(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(42), job.ID)
		})
	}
}

func TestClient_TransitionRejectedByBackend(t *testing.T) {
	// a stale cache can let an edge past local validation; the backend's
	// rejection must surface with the same taxonomy and its own message
	tests := []struct {
		name     string
		status   int
		wantKind domain.TransitionErrorKind
	}{
		{name: "conflict is an invalid-state rejection", status: http.StatusConflict, wantKind: domain.TransitionInvalidState},
		{name: "bad request is an invalid-state rejection", status: http.StatusBadRequest, wantKind: domain.TransitionInvalidState},
		{name: "forbidden stays forbidden", status: http.StatusForbidden, wantKind: domain.TransitionForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"detail": "job 42 is not in the required status"})
			}))

			_, err := client.StartRoute(context.Background(), 42)
			require.Error(t, err)

			var terr *domain.TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.wantKind, terr.Kind)
			assert.Equal(t, domain.ActionStartRoute, terr.Action)
			assert.Equal(t, "job 42 is not in the required status", terr.Error())
		})
	}
}

func TestClient_TransitionServerErrorStaysGeneric(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "database exploded"})
	}))

	_, err := client.Complete(context.Background(), 42)
	require.Error(t, err)

	var terr *domain.TransitionError
	assert.False(t, errors.As(err, &terr), "server failures are not lifecycle rejections")

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestClient_AddExtra_Body(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "50.25", decimal.NewFromFloat(body["amount"].(float64)).StringFixed(2))
		assert.Equal(t, "parts", body["description"])

		json.NewEncoder(w).Encode(map[string]any{"id": 42, "status": "in_progress"})
	}))

	_, err := client.AddExtra(context.Background(), 42, decimal.RequireFromString("50.25"), "parts")
	require.NoError(t, err)
}

func TestClient_Messages(t *testing.T) {
	appID := int64(7)

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/42/messages", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("application_id"))

		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 3, "job_id": 42, "sender_id": 1, "content": "hola", "created_at": "2026-08-30T10:00:05"},
			{"id": 5, "job_id": 42, "sender_id": 2, "content": "buenas", "created_at": "2026-08-30T10:00:10"},
		})
	}))

	messages, err := client.Messages(context.Background(), 42, &appID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(3), messages[0].ID)
	assert.Equal(t, "hola", messages[0].Content)
}

func TestClient_SendMessage(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat/42/send", r.URL.Path)

		var req SendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "on my way", req.Content)

		json.NewEncoder(w).Encode(map[string]any{
			"id": 11, "job_id": 42, "sender_id": 2,
			"content": req.Content, "created_at": "2026-08-30T10:01:00",
		})
	}))

	msg, err := client.SendMessage(context.Background(), 42, SendMessageRequest{Content: "on my way"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.ID)
}

func TestClient_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent without a token")
	}))
	defer srv.Close()

	client, err := NewClient(&Config{BaseURL: srv.URL, Token: auth.Static("")})
	require.NoError(t, err)

	_, err = client.MyJobs(context.Background())
	assert.ErrorIs(t, err, auth.ErrNoToken)
}

func TestError_IsAuth(t *testing.T) {
	assert.True(t, (&Error{StatusCode: 401}).IsAuth())
	assert.True(t, (&Error{StatusCode: 403}).IsAuth())
	assert.False(t, (&Error{StatusCode: 400}).IsAuth())
	assert.False(t, (&Error{StatusCode: 500}).IsAuth())
}
