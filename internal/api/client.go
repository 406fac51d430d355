// Package api implements the REST client for the marketplace backend. Every
// lifecycle transition returns the full authoritative Job record; the client
// never infers state locally.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/servifast/jobsync/internal/auth"
	"github.com/servifast/jobsync/internal/domain"
)

// Config holds REST client configuration
type Config struct {
	BaseURL string
	Token   auth.TokenSource
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default client; used by tests
	HTTPClient *http.Client
}

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	token   auth.TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new backend REST client
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("token source is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// do performs one authenticated request and decodes the response into out
// (when out is non-nil). Non-2xx responses become *Error.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain session token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Backend request completed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// GetJob fetches one authoritative job record.
func (c *Client) GetJob(ctx context.Context, jobID int64) (domain.Job, error) {
	var job domain.Job
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", jobID), nil, &job)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return domain.Job{}, domain.ErrJobNotFound
		}
		return domain.Job{}, err
	}
	return job, nil
}

// MyJobs fetches the caller's jobs (as client or assigned worker).
func (c *Client) MyJobs(ctx context.Context) ([]domain.Job, error) {
	var jobs []domain.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/my-jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// AvailableJobs fetches pending jobs a worker may apply to, with optional
// service-type and free-text filters.
func (c *Client) AvailableJobs(ctx context.Context, serviceType, search string) ([]domain.Job, error) {
	query := url.Values{}
	if serviceType != "" {
		query.Set("service_type", serviceType)
	}
	if search != "" {
		query.Set("search", search)
	}

	path := "/api/jobs/available"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var jobs []domain.Job
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// JobApplications fetches all applications for one job.
func (c *Client) JobApplications(ctx context.Context, jobID int64) ([]domain.JobApplication, error) {
	var apps []domain.JobApplication
	path := fmt.Sprintf("/api/jobs/%d/applications", jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// MyApplications fetches the calling worker's applications.
func (c *Client) MyApplications(ctx context.Context) ([]domain.JobApplication, error) {
	var apps []domain.JobApplication
	if err := c.do(ctx, http.MethodGet, "/api/jobs/my-applications", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// ApplyToJob submits a worker application for a pending job.
func (c *Client) ApplyToJob(ctx context.Context, jobID int64) (domain.Job, error) {
	var job domain.Job
	path := fmt.Sprintf("/api/jobs/%d/apply", jobID)
	if err := c.do(ctx, http.MethodPost, path, nil, &job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

// AcceptWorker accepts one application. Conflict rejections (the worker is
// busy elsewhere, or another application was already accepted) are surfaced
// as *domain.ApplicationConflictError based on the structured error code.
func (c *Client) AcceptWorker(ctx context.Context, jobID, applicationID int64) (domain.Job, error) {
	var job domain.Job
	path := fmt.Sprintf("/api/jobs/%d/accept-worker/%d", jobID, applicationID)
	err := c.do(ctx, http.MethodPost, path, nil, &job)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case domain.ConflictWorkerBusy, domain.ConflictAlreadyAccepted:
				return domain.Job{}, &domain.ApplicationConflictError{
					JobID:         jobID,
					ApplicationID: applicationID,
					Code:          apiErr.Code,
					Detail:        apiErr.Detail,
				}
			}
		}
		return domain.Job{}, err
	}
	return job, nil
}

// StartRoute marks the worker as traveling to the job site.
func (c *Client) StartRoute(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.transition(ctx, jobID, domain.ActionStartRoute, nil)
}

// ConfirmArrival marks the worker as arrived on site.
func (c *Client) ConfirmArrival(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.transition(ctx, jobID, domain.ActionConfirmArrival, nil)
}

// StartService marks the service as underway.
func (c *Client) StartService(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.transition(ctx, jobID, domain.ActionStartService, nil)
}

// AddExtra appends an extra charge to an in-progress job.
func (c *Client) AddExtra(ctx context.Context, jobID int64, amount decimal.Decimal, description string) (domain.Job, error) {
	body := struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty"`
	}{Amount: amount, Description: description}
	return c.transition(ctx, jobID, domain.ActionAddExtra, body)
}

// Complete marks the service as finished.
func (c *Client) Complete(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.transition(ctx, jobID, domain.ActionComplete, nil)
}

// Cancel cancels the job.
func (c *Client) Cancel(ctx context.Context, jobID int64) (domain.Job, error) {
	return c.transition(ctx, jobID, domain.ActionCancel, nil)
}

// Rate submits a review for a completed job.
func (c *Client) Rate(ctx context.Context, jobID int64, rating int, comment string) (domain.Rating, error) {
	body := struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment,omitempty"`
	}{Rating: rating, Comment: comment}

	var result domain.Rating
	path := fmt.Sprintf("/api/jobs/%d/rate", jobID)
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return domain.Rating{}, err
	}
	return result, nil
}

// JobRating fetches the review for a job, if any.
func (c *Client) JobRating(ctx context.Context, jobID int64) (domain.Rating, error) {
	var rating domain.Rating
	path := fmt.Sprintf("/api/jobs/%d/rating", jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &rating); err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}

func (c *Client) transition(ctx context.Context, jobID int64, action domain.Action, body any) (domain.Job, error) {
	var job domain.Job
	path := fmt.Sprintf("/api/jobs/%d/%s", jobID, strings.ReplaceAll(string(action), "_", "-"))
	if err := c.do(ctx, http.MethodPost, path, body, &job); err != nil {
		return domain.Job{}, transitionError(err, action)
	}
	return job, nil
}

// transitionError converts a backend rejection of a lifecycle edge into the
// same error type local validation produces, so callers see one taxonomy. A
// stale cache can let an illegal edge past local validation; the backend's
// 4xx rejection must still surface as a specific transition error, not a
// generic request failure.
func transitionError(err error, action domain.Action) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusForbidden:
		return &domain.TransitionError{Kind: domain.TransitionForbidden, Action: action, Detail: apiErr.Detail}
	case http.StatusBadRequest, http.StatusConflict:
		return &domain.TransitionError{Kind: domain.TransitionInvalidState, Action: action, Detail: apiErr.Detail}
	default:
		return err
	}
}

// Messages fetches the chat history for a job, optionally scoped to one
// application's conversation.
func (c *Client) Messages(ctx context.Context, jobID int64, applicationID *int64) ([]domain.Message, error) {
	path := fmt.Sprintf("/api/chat/%d/messages", jobID)
	if applicationID != nil {
		path += fmt.Sprintf("?application_id=%d", *applicationID)
	}

	var messages []domain.Message
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessageRequest is the payload for SendMessage.
type SendMessageRequest struct {
	Content       string  `json:"content"`
	HasImage      bool    `json:"has_image"`
	ImageURL      *string `json:"image_url,omitempty"`
	ApplicationID *int64  `json:"application_id,omitempty"`
}

// SendMessage posts a chat message and returns the created record, id
// assigned by the backend. The backend also pushes the same record to every
// connected chat socket; the reconciler dedups the second copy.
func (c *Client) SendMessage(ctx context.Context, jobID int64, req SendMessageRequest) (domain.Message, error) {
	var msg domain.Message
	path := fmt.Sprintf("/api/chat/%d/send", jobID)
	if err := c.do(ctx, http.MethodPost, path, req, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}
