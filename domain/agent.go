// Package domain holds the value types the control plane persists and
// passes between workflows, activities, and the REST glue. Types carry
// foreign-key IDs only, never back-pointers, per the flat relational model
// spec'd for agents/tasks.
package domain

import "time"

// AgentStatus enumerates the lifecycle of an Agent row.
type AgentStatus string

const (
	AgentPending  AgentStatus = "Pending"
	AgentBuilding AgentStatus = "Building"
	AgentIdle     AgentStatus = "Idle"
	AgentActive   AgentStatus = "Active"
	AgentReady    AgentStatus = "Ready"
	AgentFailed   AgentStatus = "Failed"
	AgentUnknown  AgentStatus = "Unknown"
)

// ActionSchema describes one hosted action an agent exposes, in the shape
// the LLM tool-calling contract expects.
type ActionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Action pairs a hosted action's schema with an optional sample payload used
// for smoke-testing the agent's HTTP contract.
type Action struct {
	Schema      ActionSchema   `json:"schema"`
	TestPayload map[string]any `json:"test_payload,omitempty"`
}

// Agent is a user-registered container that exposes an HTTP action catalog.
// Status is mutated only by the Build Workflow's activities; everything else
// treats it as read-only.
type Agent struct {
	ID                string      `json:"id" db:"id"`
	Name              string      `json:"name" db:"name"`
	Description       string      `json:"description" db:"description"`
	Model             string      `json:"model" db:"model"`
	Instructions      string      `json:"instructions" db:"instructions"`
	Actions           []Action    `json:"actions" db:"-"`
	WorkflowName      string      `json:"workflow_name" db:"workflow_name"`
	WorkflowQueueName string      `json:"workflow_queue_name" db:"workflow_queue_name"`
	DockerImage       string      `json:"docker_image,omitempty" db:"docker_image"`
	Status            AgentStatus `json:"status" db:"status"`
	StatusReason      string      `json:"status_reason,omitempty" db:"status_reason"`
	BuildJobName      string      `json:"build_job_name,omitempty" db:"build_job_name"`
	BuildJobNamespace string      `json:"build_job_namespace,omitempty" db:"build_job_namespace"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

// ServiceName is the Deployment/Service/PodDisruptionBudget name derived
// from the agent's name. It must be a pure function of Name so the Build
// Workflow stays replay-safe: no random suffixes.
func (a Agent) ServiceName() string {
	return SanitizeServiceName(a.Name)
}

// SanitizeServiceName lowercases name and replaces characters that are
// valid in an agent name but not in a Kubernetes resource name.
func SanitizeServiceName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
		case r == '_' || r == '.':
			out = append(out, '-')
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
