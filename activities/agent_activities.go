package activities

import (
	"context"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/internal/apperr"
)

// UpdateAgentStatusInput is the argument to update_agent_status.
type UpdateAgentStatusInput struct {
	AgentID string            `json:"agent_id"`
	Status  domain.AgentStatus `json:"status"`
	Reason  string            `json:"reason,omitempty"`

	// DockerImage, BuildJobName, BuildJobNamespace are optional side-channel
	// fields the Build Workflow sets alongside a status transition (step 2
	// of spec.md §4.4 records these on the same write as marking Building).
	DockerImage       string `json:"docker_image,omitempty"`
	BuildJobName      string `json:"build_job_name,omitempty"`
	BuildJobNamespace string `json:"build_job_namespace,omitempty"`
}

// UpdateAgentStatus overwrites an Agent row's status fields. Idempotent: a
// retry re-applies the same overwrite, per spec.md §4.3.
func (d *Deps) UpdateAgentStatus(ctx context.Context, in UpdateAgentStatusInput) (any, error) {
	agent, err := d.Agents.Get(ctx, in.AgentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "update_agent_status: load agent %s", in.AgentID)
	}
	if agent == nil {
		return nil, apperr.New(apperr.NotFound, "update_agent_status: agent %s not found", in.AgentID)
	}

	agent.Status = in.Status
	agent.StatusReason = in.Reason
	if in.DockerImage != "" {
		agent.DockerImage = in.DockerImage
	}
	if in.BuildJobName != "" {
		agent.BuildJobName = in.BuildJobName
	}
	if in.BuildJobNamespace != "" {
		agent.BuildJobNamespace = in.BuildJobNamespace
	}

	if err := d.Agents.Update(ctx, *agent); err != nil {
		return nil, apperr.Wrap(apperr.ServiceError, err, "update_agent_status: persist agent %s", in.AgentID)
	}
	return map[string]any{"agent_id": in.AgentID, "status": string(in.Status)}, nil
}
