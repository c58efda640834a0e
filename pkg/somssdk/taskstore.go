package somssdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Task mirrors internal/taskstore.Task's wire shape.
type Task struct {
	ID                   string     `json:"ID"`
	Title                string     `json:"Title"`
	Description          string     `json:"Description"`
	Location             string     `json:"Location"`
	Zone                 string     `json:"Zone"`
	TaskType             []string   `json:"TaskType"`
	BountyGold           int        `json:"BountyGold"`
	BountyXP             int        `json:"BountyXP"`
	Urgency              int        `json:"Urgency"`
	MinPeopleRequired    int        `json:"MinPeopleRequired"`
	EstimatedDurationMin int        `json:"EstimatedDurationMin"`
	IsCompleted          bool       `json:"IsCompleted"`
	IsQueued             bool       `json:"IsQueued"`
	DispatchedAt         *time.Time `json:"DispatchedAt"`
	CreatedAt            time.Time  `json:"CreatedAt"`
	CompletedAt          *time.Time `json:"CompletedAt"`
	ExpiresAt            *time.Time `json:"ExpiresAt"`
	LastRemindedAt       *time.Time `json:"LastRemindedAt"`
	AssignedTo           *string    `json:"AssignedTo"`
	AcceptedAt           *time.Time `json:"AcceptedAt"`
	ReportStatus         string     `json:"ReportStatus"`
	CompletionNote       string     `json:"CompletionNote"`
}

// CreateTaskRequest is the wire payload POST /tasks/ expects. TaskType
// is sent as the CSV string the HTTP boundary parses into an ordered set.
type CreateTaskRequest struct {
	Title                string
	Description          string
	Location             string
	Zone                 string
	TaskType             []string
	BountyGold           int
	BountyXP             int
	Urgency              int
	MinPeopleRequired    int
	EstimatedDurationMin int
}

type createTaskWireRequest struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	Location             string `json:"location"`
	Zone                 string `json:"zone"`
	TaskType             string `json:"task_type"`
	BountyGold           int    `json:"bounty_gold"`
	BountyXP             int    `json:"bounty_xp"`
	Urgency              int    `json:"urgency"`
	MinPeopleRequired    int    `json:"min_people_required"`
	EstimatedDurationMin int    `json:"estimated_duration_min"`
}

// SystemStats mirrors internal/taskstore.SystemStats.
type SystemStats struct {
	TotalXP           int `json:"TotalXP"`
	TasksCompleted    int `json:"TasksCompleted"`
	TasksCreated      int `json:"TasksCreated"`
	ActiveCount       int `json:"ActiveCount"`
	QueuedCount       int `json:"QueuedCount"`
	CompletedLastHour int `json:"CompletedLastHour"`
}

// TaskStoreClient talks to the taskstore service's HTTP API.
type TaskStoreClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewTaskStoreClient creates a client for the taskstore service at baseURL.
func NewTaskStoreClient(baseURL, apiKey string, opts ...ClientOption) *TaskStoreClient {
	return &TaskStoreClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: newHTTPClient(opts...)}
}

// CreateTask creates (or folds into an existing duplicate) a task.
func (c *TaskStoreClient) CreateTask(ctx context.Context, req CreateTaskRequest) (*Task, error) {
	var task Task
	wire := createTaskWireRequest{
		Title: req.Title, Description: req.Description, Location: req.Location, Zone: req.Zone,
		TaskType: strings.Join(req.TaskType, ","), BountyGold: req.BountyGold, BountyXP: req.BountyXP,
		Urgency: req.Urgency, MinPeopleRequired: req.MinPeopleRequired, EstimatedDurationMin: req.EstimatedDurationMin,
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/tasks/", wire, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns non-expired tasks, paginated.
func (c *TaskStoreClient) ListTasks(ctx context.Context, skip, limit int) ([]*Task, error) {
	u := fmt.Sprintf("%s/tasks/?skip=%d&limit=%d", c.baseURL, skip, limit)
	var tasks []*Task
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, u, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Queue returns the tasks currently queued awaiting dispatch.
func (c *TaskStoreClient) Queue(ctx context.Context) ([]*Task, error) {
	var tasks []*Task
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/tasks/queue", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Stats returns the task store's system-wide counters.
func (c *TaskStoreClient) Stats(ctx context.Context) (*SystemStats, error) {
	var stats SystemStats
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/tasks/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AcceptTask assigns a task, optionally to userID.
func (c *TaskStoreClient) AcceptTask(ctx context.Context, id string, userID *string) (*Task, error) {
	var task Task
	body := map[string]interface{}{"user_id": userID}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPut, c.baseURL+"/tasks/"+url.PathEscape(id)+"/accept", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CompleteTask marks a task completed with the given report.
func (c *TaskStoreClient) CompleteTask(ctx context.Context, id, reportStatus, completionNote string) (*Task, error) {
	var task Task
	body := map[string]string{"report_status": reportStatus, "completion_note": completionNote}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPut, c.baseURL+"/tasks/"+url.PathEscape(id)+"/complete", body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DispatchTask marks a task no longer queued, once the scheduler oracle
// decides it should leave the queue.
func (c *TaskStoreClient) DispatchTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPut, c.baseURL+"/tasks/"+url.PathEscape(id)+"/dispatch", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// RemindTask stamps last_reminded_at on a task.
func (c *TaskStoreClient) RemindTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPut, c.baseURL+"/tasks/"+url.PathEscape(id)+"/reminded", nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}
