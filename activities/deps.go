// Package activities implements the Activity Layer (C3): thin, idempotent,
// named bindings from workflow-callable activity names to Platform/State/LLM
// operations and persisted-row updates. Each activity is a bound method on
// Deps, following spec.md §9's "explicit Dependencies struct, not DI
// container" re-architecture note; activities.Register binds every method
// to the engine under its logical name, JSON-round-tripping generic
// payloads the way the teacher's handlers.go does.
package activities

import (
	"context"

	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/llm"
	"github.com/agentware/agentctl/platform"
	"github.com/agentware/agentctl/state"
	"github.com/agentware/agentctl/telemetry"
)

// AgentRepository is the subset of store/postgres's agent repository the
// activity layer needs.
type AgentRepository interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	Update(ctx context.Context, agent domain.Agent) error
}

// TaskRepository is the subset of store/postgres's task repository the
// activity layer needs.
type TaskRepository interface {
	Get(ctx context.Context, id string) (*domain.Task, error)
	UpdateStatus(ctx context.Context, id string, status domain.TaskStatus, reason string) error
}

// Deps bundles every external collaborator an activity may call. It is
// constructed once at worker boot and passed by reference; no activity
// method reaches for package-level or singleton state.
type Deps struct {
	Platform platform.Platform
	State    state.Service
	LLM      llm.Provider
	Agents   AgentRepository
	Tasks    TaskRepository
	Logger   telemetry.Logger

	// RegistryURL is prefixed onto the agent name to build the destination
	// image reference the build job pushes to.
	RegistryURL string
	// AgentsNamespace is the Kubernetes namespace Build Workflow resources
	// are created in.
	AgentsNamespace string

	BuildContextPVCName     string
	BuildContextsPath       string
	BuildRegistrySecretName string

	// ServicePort is the port agent Services expose their HTTP action
	// catalog on.
	ServicePort int32
}
