package tokenid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"memecoin-radar/internal/backoff"
)

// DefaultAgentBaseURL is the Agent Cash task API endpoint.
const DefaultAgentBaseURL = "https://api.agent.cash/v1"

// AgentConfig configures the Agent Cash oracle client.
type AgentConfig struct {
	APIKey  string
	BaseURL string
	// PollInterval is the delay between task status checks.
	PollInterval time.Duration
	// TaskTimeout bounds one task from creation to completion.
	TaskTimeout time.Duration
	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration
}

// AgentOracle implements Oracle against the Agent Cash task API: create a
// task with the prompt, poll until it completes, read the answer.
type AgentOracle struct {
	cfg    AgentConfig
	client *http.Client
}

var _ Oracle = (*AgentOracle)(nil)

// NewAgentOracle creates the oracle client.
func NewAgentOracle(cfg AgentConfig) (*AgentOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAgentBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 90 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	return &AgentOracle{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

type agentTask struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result string `json:"result"`
	Error  string `json:"error"`
	Task   *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result string `json:"result"`
	} `json:"task"`
}

func (t *agentTask) normalize() {
	if t.Task != nil {
		if t.ID == "" {
			t.ID = t.Task.ID
		}
		if t.Status == "" {
			t.Status = t.Task.Status
		}
		if t.Result == "" {
			t.Result = t.Task.Result
		}
	}
}

// Identify submits the prompt as a task and polls until it finishes.
func (o *AgentOracle) Identify(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	task, err := o.createTask(ctx, prompt)
	if err != nil {
		return "", err
	}

	for {
		switch task.Status {
		case "completed", "done", "succeeded":
			return task.Result, nil
		case "failed", "error", "cancelled":
			return "", fmt.Errorf("agent task %s failed: %s", task.ID, task.Error)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("agent task %s: %w", task.ID, ctx.Err())
		case <-time.After(o.cfg.PollInterval):
		}

		task, err = o.getTask(ctx, task.ID)
		if err != nil {
			return "", err
		}
	}
}

func (o *AgentOracle) createTask(ctx context.Context, prompt string) (*agentTask, error) {
	payload, err := json.Marshal(map[string]any{"prompt": prompt})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/task", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	task, err := o.do(req)
	if err != nil {
		return nil, fmt.Errorf("create agent task: %w", err)
	}
	if task.ID == "" {
		return nil, fmt.Errorf("create agent task: no task id in response")
	}
	return task, nil
}

func (o *AgentOracle) getTask(ctx context.Context, id string) (*agentTask, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL+"/task/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	task, err := o.do(req)
	if err != nil {
		return nil, fmt.Errorf("poll agent task %s: %w", id, err)
	}
	return task, nil
}

func (o *AgentOracle) do(req *http.Request) (*agentTask, error) {
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent{Err: fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.Path)}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("http %d from %s", resp.StatusCode, req.URL.Path)
	}

	var task agentTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	task.normalize()
	return &task, nil
}
