package remworksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Remwork HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Recommendation represents the API recommendation model (partial).
type Recommendation struct {
	ID                string  `json:"id"`
	ModelID           string  `json:"model_id"`
	Title             string  `json:"title"`
	PriorityID        string  `json:"priority_id"`
	CurrentStatus     string  `json:"current_status"`
	AssignedToID      string  `json:"assigned_to_id"`
	CurrentTargetDate *string `json:"current_target_date,omitempty"`
	ClosedAt          *string `json:"closed_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// Task represents one action plan entry.
type Task struct {
	ID               string  `json:"id"`
	RecommendationID string  `json:"recommendation_id"`
	TaskOrder        int     `json:"task_order"`
	Description      string  `json:"description"`
	OwnerID          string  `json:"owner_id"`
	TargetDate       string  `json:"target_date"`
	CompletedDate    *string `json:"completed_date,omitempty"`
}

// Approval represents one slot in the approval set.
type Approval struct {
	ID                  string  `json:"id"`
	RecommendationID    string  `json:"recommendation_id"`
	ApprovalType        string  `json:"approval_type"`
	RegionID            *string `json:"region_id,omitempty"`
	RepresentedRegionID *string `json:"represented_region_id,omitempty"`
	ApproverID          *string `json:"approver_id,omitempty"`
	Status              string  `json:"status"`
	Comments            *string `json:"comments,omitempty"`
}

// HistoryEntry represents one audit trail row.
type HistoryEntry struct {
	ID               int64   `json:"id"`
	RecommendationID string  `json:"recommendation_id"`
	OldStatus        *string `json:"old_status,omitempty"`
	NewStatus        string  `json:"new_status"`
	ChangedByID      string  `json:"changed_by_id"`
	ChangedAt        string  `json:"changed_at"`
	Reason           *string `json:"reason,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRecommendations wraps list responses with cursors.
type PaginatedRecommendations struct {
	Items      []Recommendation `json:"items"`
	NextCursor string           `json:"next_cursor"`
}

// CreateRecommendation creates a draft. Exactly one of validationRequestID or
// monitoringCycleID must be set.
func (c *Client) CreateRecommendation(ctx context.Context, body map[string]any) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, "recommendations", body, &resp)
	return resp, err
}

// Recommendation fetches one recommendation by id.
func (c *Client) Recommendation(ctx context.Context, id string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodGet, "recommendations/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Recommendations returns one page of recommendations.
func (c *Client) Recommendations(ctx context.Context, status string, limit int, cursor string) (PaginatedRecommendations, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "recommendations"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedRecommendations
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Finalize moves a draft to PENDING_RESPONSE.
func (c *Client) Finalize(ctx context.Context, id string) (Recommendation, error) {
	return c.transition(ctx, id, "finalize")
}

// Acknowledge accepts the finding as the assigned owner.
func (c *Client) Acknowledge(ctx context.Context, id string) (Recommendation, error) {
	return c.transition(ctx, id, "acknowledge")
}

// Decline declines acknowledgement; the reason becomes the rebuttal rationale.
func (c *Client) Decline(ctx context.Context, id, reason string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "decline"), map[string]any{"reason": reason}, &resp)
	return resp, err
}

// SubmitRebuttal files a rebuttal against an unacknowledged finding.
func (c *Client) SubmitRebuttal(ctx context.Context, id, rationale, evidence string) (Recommendation, error) {
	body := map[string]any{"rationale": rationale}
	if evidence != "" {
		body["evidence"] = evidence
	}
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "rebuttal"), body, &resp)
	return resp, err
}

// ReviewRebuttal records the validator decision, "accept" or "override".
func (c *Client) ReviewRebuttal(ctx context.Context, id, decision, comments string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "rebuttal/review"),
		map[string]any{"decision": decision, "comments": comments}, &resp)
	return resp, err
}

// SubmitActionPlan replaces the task list and submits it for validator review.
func (c *Client) SubmitActionPlan(ctx context.Context, id string, tasks []map[string]any) (Recommendation, []Task, error) {
	var resp struct {
		Recommendation Recommendation `json:"recommendation"`
		Tasks          []Task         `json:"tasks"`
	}
	err := c.do(ctx, http.MethodPost, recPath(id, "action-plan"), map[string]any{"tasks": tasks}, &resp)
	return resp.Recommendation, resp.Tasks, err
}

// ApproveActionPlan moves the plan into IN_PROGRESS.
func (c *Client) ApproveActionPlan(ctx context.Context, id, comments string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "action-plan/approve"), map[string]any{"comments": comments}, &resp)
	return resp, err
}

// RejectActionPlan sends the plan back to the owner with feedback.
func (c *Client) RejectActionPlan(ctx context.Context, id, feedback string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "action-plan/reject"), map[string]any{"feedback": feedback}, &resp)
	return resp, err
}

// Tasks lists the action plan in order.
func (c *Client) Tasks(ctx context.Context, id string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, recPath(id, "tasks"), nil, &resp)
	return resp, err
}

// SubmitClosure submits for closure review with a summary.
func (c *Client) SubmitClosure(ctx context.Context, id, summary string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "closure/submit"), map[string]any{"summary": summary}, &resp)
	return resp, err
}

// ApproveClosure approves closure review; the recommendation either closes or
// enters the approval phase depending on its priority.
func (c *Client) ApproveClosure(ctx context.Context, id, comments string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "closure/approve"), map[string]any{"comments": comments}, &resp)
	return resp, err
}

// RejectClosure sends the recommendation back to IN_PROGRESS.
func (c *Client) RejectClosure(ctx context.Context, id, feedback string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, "closure/reject"), map[string]any{"feedback": feedback}, &resp)
	return resp, err
}

// Approvals lists the approval set for a recommendation.
func (c *Client) Approvals(ctx context.Context, id string) ([]Approval, error) {
	var resp []Approval
	err := c.do(ctx, http.MethodGet, recPath(id, "approvals"), nil, &resp)
	return resp, err
}

// DecideApproval records approve or reject on one approval slot.
func (c *Client) DecideApproval(ctx context.Context, approvalID, decision, comments string) (Approval, Recommendation, error) {
	var resp struct {
		Approval       Approval       `json:"approval"`
		Recommendation Recommendation `json:"recommendation"`
	}
	body := map[string]any{"decision": decision, "comments": comments}
	err := c.do(ctx, http.MethodPost, "approvals/"+url.PathEscape(approvalID)+"/decision", body, &resp)
	return resp.Approval, resp.Recommendation, err
}

// VoidApproval resets a decided slot back to pending. Admin only.
func (c *Client) VoidApproval(ctx context.Context, approvalID, reason string) (Approval, error) {
	var resp Approval
	err := c.do(ctx, http.MethodPost, "approvals/"+url.PathEscape(approvalID)+"/void", map[string]any{"reason": reason}, &resp)
	return resp, err
}

// History returns the audit trail, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	err := c.do(ctx, http.MethodGet, recPath(id, "history"), nil, &resp)
	return resp, err
}

func (c *Client) transition(ctx context.Context, id, action string) (Recommendation, error) {
	var resp Recommendation
	err := c.do(ctx, http.MethodPost, recPath(id, action), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func recPath(id, p string) string {
	return fmt.Sprintf("recommendations/%s/%s", url.PathEscape(id), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}
