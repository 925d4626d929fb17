package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentware/agentctl/engine"
)

// sixtySeconds is the default per-attempt timeout for LLM calls, per
// spec.md §5's stated activity timeout default for LLM and build kick-off.
const sixtySeconds = 60 * time.Second

// Name constants for every activity this package registers. Workflow bodies
// reference these rather than string literals.
const (
	NameUpdateAgentStatus = "update_agent_status"

	NameBuildAndPush      = "build_and_push"
	NameGetBuildJob       = "get_build_job"
	NameDeleteBuildJob    = "delete_build_job"
	NameCreateDeployment  = "create_deployment"
	NameGetDeployment     = "get_deployment"
	NameDeleteDeployment  = "delete_deployment"
	NameCreateService     = "create_service"
	NameGetService        = "get_service"
	NameDeleteService     = "delete_service"
	NameCreatePDB         = "create_pod_disruption_budget"

	NameInitTaskState      = "init_task_state"
	NameDecideAction       = "decide_action"
	NameTakeAction         = "take_action"
	NameAppendUserMessage  = "append_user_message"
)

// decode JSON-round-trips input into a *T, tolerating the three shapes an
// engine adapter may hand an activity: the typed value, a pointer to it, or
// a map[string]any produced by a generic JSON decoder. Grounded in the
// teacher's handlers.go coercion pattern.
func decode[T any](input any) (*T, error) {
	switch v := input.(type) {
	case T:
		return &v, nil
	case *T:
		if v == nil {
			return nil, fmt.Errorf("activities: nil input")
		}
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("activities: marshal input (type %T): %w", v, err)
		}
		var out T
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("activities: unmarshal input (type %T, json: %s): %w", v, string(b), err)
		}
		return &out, nil
	}
}

func bind[T any](fn func(context.Context, T) (any, error)) engine.ActivityFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, err := decode[T](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, *in)
	}
}

// Register binds every activity in deps to eng under its logical name.
func Register(ctx context.Context, eng engine.Engine, deps *Deps) error {
	defs := []engine.ActivityDefinition{
		{Name: NameUpdateAgentStatus, Handler: bind(deps.UpdateAgentStatus)},

		{Name: NameBuildAndPush, Handler: bind(deps.BuildAndPush),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 0}}},
		{Name: NameGetBuildJob, Handler: bind(deps.GetBuildJob),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameDeleteBuildJob, Handler: bind(deps.DeleteBuildJob),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameCreateDeployment, Handler: bind(deps.CreateDeployment),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameGetDeployment, Handler: bind(deps.GetDeployment),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameDeleteDeployment, Handler: bind(deps.DeleteDeployment),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameCreateService, Handler: bind(deps.CreateService),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameGetService, Handler: bind(deps.GetService),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameDeleteService, Handler: bind(deps.DeleteService),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameCreatePDB, Handler: bind(deps.CreatePodDisruptionBudget),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},

		{Name: NameInitTaskState, Handler: bind(deps.InitTaskState)},
		{Name: NameAppendUserMessage, Handler: bind(deps.AppendUserMessage),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3}}},
		{Name: NameDecideAction, Handler: bind(deps.DecideAction),
			Options: engine.ActivityOptions{Timeout: sixtySeconds}},
		{Name: NameTakeAction, Handler: bind(deps.TakeAction),
			Options: engine.ActivityOptions{RetryPolicy: engine.RetryPolicy{MaximumAttempts: 5}}},
	}
	for _, def := range defs {
		if err := eng.RegisterActivity(ctx, def); err != nil {
			return fmt.Errorf("activities: register %s: %w", def.Name, err)
		}
	}
	return nil
}
