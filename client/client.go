// Package client provides a Go client for the Concord coordination server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
	OrgID   string
}

type Option func(*Client)

// WithAPIKey sets the bearer credential, either a static API key or a
// signed token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

// WithOrg scopes requests to an organization. Only meaningful for
// localhost callers; credentialed callers are pinned server-side.
func WithOrg(orgID string) Option {
	return func(c *Client) {
		c.OrgID = strings.TrimSpace(orgID)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is the decoded error envelope from a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("request failed: http %d", e.StatusCode)
}

type Agent struct {
	ID           string            `json:"id,omitempty"`
	Name         string            `json:"name,omitempty"`
	OrgID        string            `json:"organization_id,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Status       string            `json:"status,omitempty"`
}

type Task struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	OrgID      string `json:"organization_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
	ClaimedBy  string `json:"claimed_by,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	AssignedBy string `json:"assigned_by,omitempty"`
}

type ClaimResult struct {
	Task struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		ClaimedAt string `json:"claimedAt"`
	} `json:"task"`
	Agent struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"agent"`
}

type AssignResult struct {
	Success    bool   `json:"success"`
	TaskID     string `json:"taskId"`
	AgentID    string `json:"agentId"`
	AssignedBy string `json:"assignedBy"`
	AssignedAt string `json:"assignedAt"`
	Status     string `json:"status"`
}

type Lock struct {
	NodeID    string    `json:"nodeId"`
	GraphID   string    `json:"graphId"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Since     time.Time `json:"since"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type LockResult struct {
	Success bool   `json:"success"`
	Lock    Lock   `json:"lock"`
	Message string `json:"message,omitempty"`
}

type LockStatus struct {
	Locked    bool  `json:"locked"`
	Lock      *Lock `json:"lock,omitempty"`
	IsOwnLock bool  `json:"isOwnLock,omitempty"`
}

type Event struct {
	ID          string            `json:"id,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	ProjectID   string            `json:"project_id,omitempty"`
	Category    string            `json:"category,omitempty"`
	Description string            `json:"description,omitempty"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Impact      string            `json:"impact,omitempty"`
	Files       []string          `json:"files,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Shared      bool              `json:"shared,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	PrevID      string            `json:"prev_id,omitempty"`
}

type AppendResult struct {
	Created  int `json:"created"`
	Rejected int `json:"rejected"`
	Events   []struct {
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
	} `json:"events"`
}

type StatusResult struct {
	Success        bool            `json:"success"`
	PreviousStatus string          `json:"previous_status"`
	Epic           *LifecycleState `json:"epic,omitempty"`
	Sprint         *LifecycleState `json:"sprint,omitempty"`
}

type LifecycleState struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	StatusUpdatedAt string `json:"status_updated_at"`
	StatusUpdatedBy string `json:"status_updated_by"`
}

func (c *Client) RegisterAgent(ctx context.Context, agent Agent) (Agent, error) {
	if agent.OrgID == "" {
		agent.OrgID = c.OrgID
	}
	var out Agent
	err := c.doJSON(ctx, http.MethodPost, "/api/agents", map[string]any{
		"name":         agent.Name,
		"orgId":        agent.OrgID,
		"capabilities": agent.Capabilities,
		"metadata":     agent.Metadata,
		"status":       agent.Status,
	}, &out)
	return out, err
}

func (c *Client) GetAgent(ctx context.Context, agentID string) (Agent, error) {
	var out Agent
	err := c.doJSON(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(agentID)+c.orgQuery(), nil, &out)
	return out, err
}

func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out struct {
		Agents []Agent `json:"agents"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/agents"+c.orgQuery(), nil, &out)
	return out.Agents, err
}

func (c *Client) Heartbeat(ctx context.Context, agentID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(agentID)+"/heartbeat", map[string]string{}, nil)
}

func (c *Client) CreateTask(ctx context.Context, task Task) (Task, error) {
	if task.OrgID == "" {
		task.OrgID = c.OrgID
	}
	var out Task
	err := c.doJSON(ctx, http.MethodPost, "/api/tasks", map[string]any{
		"title":     task.Title,
		"priority":  task.Priority,
		"orgId":     task.OrgID,
		"projectId": task.ProjectID,
		"status":    task.Status,
	}, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var out Task
	err := c.doJSON(ctx, http.MethodGet, "/api/task/"+url.PathEscape(taskID), nil, &out)
	return out, err
}

// ClaimTask attempts an atomic claim. A lost race surfaces as an *APIError
// with a conflict code such as TASK_ALREADY_CLAIMED.
func (c *Client) ClaimTask(ctx context.Context, taskID, agentID string) (ClaimResult, error) {
	var out ClaimResult
	err := c.doJSON(ctx, http.MethodPost, "/api/task/"+url.PathEscape(taskID)+"/claim", map[string]any{
		"agentId": agentID,
		"orgId":   c.OrgID,
	}, &out)
	return out, err
}

// AssignTask pushes a task to an agent on behalf of an orchestrator.
func (c *Client) AssignTask(ctx context.Context, taskID, agentID, orchestratorID, graphID string, priority *int) (AssignResult, error) {
	var out AssignResult
	err := c.doJSON(ctx, http.MethodPost, "/api/task/"+url.PathEscape(taskID)+"/assign", map[string]any{
		"graphId":        graphID,
		"agentId":        agentID,
		"orchestratorId": orchestratorID,
		"priority":       priority,
		"orgId":          c.OrgID,
	}, &out)
	return out, err
}

func (c *Client) AcquireLock(ctx context.Context, nodeID, graphID, userID, email string) (LockResult, error) {
	var out LockResult
	err := c.doJSON(ctx, http.MethodPost, "/api/graph/lock", map[string]any{
		"nodeId":  nodeID,
		"graphId": graphID,
		"userId":  userID,
		"email":   email,
	}, &out)
	return out, err
}

func (c *Client) CheckLock(ctx context.Context, nodeID, graphID, userID string) (LockStatus, error) {
	values := url.Values{}
	values.Set("nodeId", nodeID)
	values.Set("graphId", graphID)
	if userID != "" {
		values.Set("userId", userID)
	}
	var out LockStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/graph/lock?"+values.Encode(), nil, &out)
	return out, err
}

func (c *Client) ReleaseLock(ctx context.Context, nodeID, graphID, userID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/graph/lock", map[string]any{
		"nodeId":  nodeID,
		"graphId": graphID,
		"userId":  userID,
	}, nil)
}

// AppendEvents records a batch of activity events. Validation failures
// reject individual events without failing the batch.
func (c *Client) AppendEvents(ctx context.Context, graphID string, events []Event) (AppendResult, error) {
	var out AppendResult
	err := c.doJSON(ctx, http.MethodPost, "/api/graph/events", map[string]any{
		"graphId": graphID,
		"events":  events,
	}, &out)
	return out, err
}

// EventChain reads an actor's chain for a project, oldest first.
func (c *Client) EventChain(ctx context.Context, actorID, projectID string, limit int) ([]Event, error) {
	values := url.Values{}
	values.Set("actorId", actorID)
	values.Set("projectId", projectID)
	if limit > 0 {
		values.Set("limit", fmt.Sprintf("%d", limit))
	}
	var out struct {
		Events []Event `json:"events"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/graph/events?"+values.Encode(), nil, &out)
	return out.Events, err
}

func (c *Client) UpdateEpicStatus(ctx context.Context, epicID, graphID, status, changedBy string) (StatusResult, error) {
	var out StatusResult
	err := c.doJSON(ctx, http.MethodPatch, "/api/epic/"+url.PathEscape(epicID)+"/status", map[string]any{
		"graphId":   graphID,
		"status":    status,
		"changedBy": changedBy,
	}, &out)
	return out, err
}

func (c *Client) UpdateSprintStatus(ctx context.Context, sprintID, graphID, status, changedBy string) (StatusResult, error) {
	var out StatusResult
	err := c.doJSON(ctx, http.MethodPatch, "/api/sprint/"+url.PathEscape(sprintID)+"/status", map[string]any{
		"graphId":   graphID,
		"status":    status,
		"changedBy": changedBy,
	}, &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) orgQuery() string {
	if c.OrgID == "" {
		return ""
	}
	return "?org=" + url.QueryEscape(c.OrgID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
