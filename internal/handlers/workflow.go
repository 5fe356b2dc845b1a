package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/dedupe"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/router"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

// WorkflowRequest is one build submission to the external builder service.
type WorkflowRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Prompt         string `json:"prompt"`
	UserContextID  string `json:"user_context_id"`
	ConversationID string `json:"conversation_id"`
	Deploy         bool   `json:"deploy"`
}

// WorkflowResponse is the builder's answer. Status is "accepted" or
// "pending" - pending means the same request is already building.
type WorkflowResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowSubmitter is the external builder boundary.
type WorkflowSubmitter interface {
	Submit(ctx context.Context, req WorkflowRequest) (*WorkflowResponse, error)
}

// Workflow submits build requests with a deterministic idempotency key so
// retried deliveries dedupe upstream.
type Workflow struct {
	submitter WorkflowSubmitter
}

func NewWorkflow(submitter WorkflowSubmitter) *Workflow {
	return &Workflow{submitter: submitter}
}

func (h *Workflow) Handle(ctx context.Context, turn types.Turn) (*types.RunSummary, error) {
	summary := &types.RunSummary{Lane: string(router.LaneWorkflow)}

	// Scheduling questions without build intent get an answer, not a job.
	if router.IsConfirmOnly(turn.Text) {
		summary.OK = true
		summary.Reply = "I can check your existing workflows - nothing new will be built for that."
		return summary, nil
	}

	deploy := WantsDeploy(turn.Text)
	req := WorkflowRequest{
		IdempotencyKey: IdempotencyKey(turn.UserContextID, turn.ConversationID, deploy, turn.Text),
		Prompt:         turn.Text,
		UserContextID:  turn.UserContextID,
		ConversationID: turn.ConversationID,
		Deploy:         deploy,
	}

	resp, err := h.submitter.Submit(ctx, req)
	if err != nil {
		summary.Error = err.Error()
		summary.Reply = fmt.Sprintf("The workflow builder is unavailable right now: %v", err)
		return summary, nil
	}

	summary.OK = true
	switch resp.Status {
	case "pending":
		// Same key already in flight: success with a notice, not an error.
		summary.Reply = "That workflow is already being built - I'll let it finish rather than start a duplicate."
		logging.Workflow("duplicate submission suppressed upstream, key=%s", req.IdempotencyKey[:12])
	default:
		summary.Reply = "Workflow build submitted."
		if resp.JobID != "" {
			summary.Reply = fmt.Sprintf("Workflow build submitted (job %s).", resp.JobID)
		}
		logging.Workflow("submitted build job=%s key=%s", resp.JobID, req.IdempotencyKey[:12])
	}
	return summary, nil
}

// deployPhrasing matches requests that want the built workflow activated,
// not just drafted ("build it and deploy", "create and publish the flow").
var deployPhrasing = regexp.MustCompile(`(?i)\b(deploy|publish|activate|go live|turn (it )?on)\b`)

// WantsDeploy reports whether the utterance asks for the workflow to be
// deployed after building. The flag feeds both the submission and its
// idempotency key: a draft request and a deploy request are distinct jobs.
func WantsDeploy(text string) bool {
	return deployPhrasing.MatchString(text)
}

// IdempotencyKey derives the deterministic submission key. Prompt text is
// normalized first so whitespace-variant retries hash identically.
func IdempotencyKey(userContextID, conversationID string, deploy bool, prompt string) string {
	h := sha256.New()
	h.Write([]byte(userContextID))
	h.Write([]byte{0})
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	if deploy {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte(dedupe.Normalize(prompt)))
	return hex.EncodeToString(h.Sum(nil))
}
