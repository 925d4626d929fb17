// Package build implements the Build Workflow (C4): build a user-uploaded
// context archive into an image, push it, then roll out the agent's
// Deployment/Service/PodDisruptionBudget, polling each to readiness with
// bounded retries and compensating deletes on partial failure. Grounded in
// the teacher's run/snapshot.go style of an incrementally-recorded,
// replay-safe workflow body, simplified to this domain's fixed 8-step
// sequence.
package build

import (
	"fmt"
	"time"

	"github.com/agentware/agentctl/activities"
	"github.com/agentware/agentctl/domain"
	"github.com/agentware/agentctl/engine"
	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/platform"
)

// Name is the logical workflow name the task router and C7 register this
// body under.
const Name = "build_agent"

const (
	pollInterval     = 5 * time.Second
	maxPollAttempts  = 360 // ~30 minutes at pollInterval
	failedBuildMsg   = "image build failed; build and push the image locally, then re-upload the agent with a pre-built image"
	readyReason      = "Agent built and ready to receive tasks."
)

// Input is the Build Workflow's argument, per spec.md §4.4. Namespace is
// operational configuration (the cluster namespace Build Workflow resources
// are created in) rather than part of the Agent row, since the agent has no
// namespace coordinates until this workflow assigns them.
type Input struct {
	Agent        domain.Agent `json:"agent"`
	AgentTarPath string       `json:"agent_tar_path"`
	Namespace    string       `json:"namespace"`
}

// Result is returned on successful completion.
type Result struct {
	DockerImage string `json:"docker_image"`
}

// Workflow implements engine.WorkflowFunc for the Build Workflow.
func Workflow(ctx engine.WorkflowContext, rawInput any) (any, error) {
	in, err := decodeInput(rawInput)
	if err != nil {
		return nil, err
	}

	agent := in.Agent
	namespace := in.Namespace
	serviceName := agent.ServiceName()

	// Step 1: mark Building.
	if err := updateStatus(ctx, agent.ID, domain.AgentBuilding, "", updateExtras{}); err != nil {
		return nil, err
	}

	// Step 2: build-and-push.
	var buildRes activities.BuildAndPushResult
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameBuildAndPush,
		Input: activities.BuildAndPushInput{
			AgentName:          agent.Name,
			ContextArchivePath: in.AgentTarPath,
			Namespace:          namespace,
		},
		RetryPolicy: engine.RetryPolicy{MaximumAttempts: 0},
	}, &buildRes); err != nil {
		return nil, failWorkflow(ctx, agent.ID, "build_and_push failed: %v", err)
	}
	if err := updateStatus(ctx, agent.ID, domain.AgentBuilding, "", updateExtras{
		DockerImage:       buildRes.DockerImage,
		BuildJobName:      buildRes.BuildJobName,
		BuildJobNamespace: buildRes.BuildJobNamespace,
	}); err != nil {
		return nil, err
	}

	// Step 3: poll the build job to a terminal phase.
	jobPhase, err := pollBuildJob(ctx, buildRes.BuildJobNamespace, buildRes.BuildJobName)
	if err != nil {
		ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{ //nolint:errcheck // best-effort cleanup
			Name:  activities.NameDeleteBuildJob,
			Input: activities.ResourceRef{Namespace: buildRes.BuildJobNamespace, Name: buildRes.BuildJobName},
		}, nil)
		return nil, failWorkflow(ctx, agent.ID, "%v", err)
	}
	if jobPhase != platform.JobSucceeded {
		return nil, failWorkflow(ctx, agent.ID, "build job %s/%s: %s", buildRes.BuildJobNamespace, buildRes.BuildJobName, failedBuildMsg)
	}

	// Steps 4-6: Deployment, Service, PodDisruptionBudget.
	if err := createAndAwaitDeployment(ctx, namespace, serviceName, buildRes.DockerImage); err != nil {
		compensate(ctx, namespace, serviceName)
		return nil, failWorkflow(ctx, agent.ID, "%v", err)
	}
	if err := createAndAwaitService(ctx, namespace, serviceName); err != nil {
		compensate(ctx, namespace, serviceName)
		return nil, failWorkflow(ctx, agent.ID, "%v", err)
	}
	// Step 6: PDB errors are non-fatal (spec.md §4.4 step 6).
	var pdb any
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameCreatePDB,
		Input: activities.CreatePodDisruptionBudgetInput{
			Namespace:    namespace,
			Name:         serviceName,
			Selector:     map[string]string{"agentctl/agent": serviceName},
			MinAvailable: 1,
		},
	}, &pdb); err != nil {
		ctx.Logger().Warn(ctx.Context(), "create_pod_disruption_budget failed, continuing", "agent_id", agent.ID, "error", err.Error())
	}

	// Step 8: mark Ready.
	if err := updateStatus(ctx, agent.ID, domain.AgentReady, readyReason, updateExtras{}); err != nil {
		return nil, err
	}

	return Result{DockerImage: buildRes.DockerImage}, nil
}

func decodeInput(raw any) (*Input, error) {
	switch v := raw.(type) {
	case Input:
		return &v, nil
	case *Input:
		return v, nil
	default:
		return nil, apperr.New(apperr.ClientError, "build workflow: unexpected input type %T", raw)
	}
}

type updateExtras struct {
	DockerImage       string
	BuildJobName      string
	BuildJobNamespace string
}

func updateStatus(ctx engine.WorkflowContext, agentID string, status domain.AgentStatus, reason string, extra updateExtras) error {
	var out any
	return ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameUpdateAgentStatus,
		Input: activities.UpdateAgentStatusInput{
			AgentID:           agentID,
			Status:            status,
			Reason:            reason,
			DockerImage:       extra.DockerImage,
			BuildJobName:      extra.BuildJobName,
			BuildJobNamespace: extra.BuildJobNamespace,
		},
		RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
	}, &out)
}

func failWorkflow(ctx engine.WorkflowContext, agentID, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	var out any
	_ = ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameUpdateAgentStatus,
		Input: activities.UpdateAgentStatusInput{
			AgentID: agentID,
			Status:  domain.AgentFailed,
			Reason:  msg,
		},
	}, &out)
	return apperr.New(apperr.WorkflowFailure, "%s", msg)
}

// pollBuildJob polls get_build_job every pollInterval until a terminal
// JobPhase or the attempt budget is exhausted, per spec.md §4.4 step 3.
func pollBuildJob(ctx engine.WorkflowContext, namespace, name string) (platform.JobPhase, error) {
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		var job *platform.Job
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name:        activities.NameGetBuildJob,
			Input:       activities.ResourceRef{Namespace: namespace, Name: name},
			RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
		}, &job); err != nil {
			return "", err
		}
		if job == nil {
			return "", apperr.New(apperr.ServiceError, "build job %s/%s disappeared while polling", namespace, name)
		}
		switch job.Phase {
		case platform.JobSucceeded, platform.JobFailed:
			return job.Phase, nil
		case platform.JobPending, platform.JobRunning:
			if err := ctx.Sleep(ctx.Context(), pollInterval); err != nil {
				return "", err
			}
		default:
			return "", apperr.New(apperr.WorkflowFailure, "build job %s/%s in unknown phase %q", namespace, name, job.Phase)
		}
	}
	return "", apperr.New(apperr.WorkflowFailure, "build job %s/%s did not finish within %d attempts", namespace, name, maxPollAttempts)
}

func createAndAwaitDeployment(ctx engine.WorkflowContext, namespace, name, image string) error {
	var dep *platform.Deployment
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameCreateDeployment,
		Input: activities.CreateDeploymentInput{
			Namespace: namespace,
			Name:      name,
			Image:     image,
			Replicas:  1,
		},
		RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
	}, &dep); err != nil {
		return err
	}
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name:        activities.NameGetDeployment,
			Input:       activities.ResourceRef{Namespace: namespace, Name: name},
			RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
		}, &dep); err != nil {
			return err
		}
		if dep != nil && dep.Phase == platform.DeploymentReady {
			return nil
		}
		if err := ctx.Sleep(ctx.Context(), pollInterval); err != nil {
			return err
		}
	}
	return apperr.New(apperr.WorkflowFailure, "deployment %s/%s did not become ready within %d attempts", namespace, name, maxPollAttempts)
}

func createAndAwaitService(ctx engine.WorkflowContext, namespace, name string) error {
	var svc *platform.Service
	if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name: activities.NameCreateService,
		Input: activities.CreateServiceInput{
			Namespace: namespace,
			Name:      name,
			Selector:  map[string]string{"agentctl/agent": name},
			TargetPort: 80,
		},
		RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
	}, &svc); err != nil {
		return err
	}
	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		if err := ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
			Name:        activities.NameGetService,
			Input:       activities.ResourceRef{Namespace: namespace, Name: name},
			RetryPolicy: engine.RetryPolicy{MaximumAttempts: 3},
		}, &svc); err != nil {
			return err
		}
		if svc != nil {
			return nil
		}
		if err := ctx.Sleep(ctx.Context(), pollInterval); err != nil {
			return err
		}
	}
	return apperr.New(apperr.WorkflowFailure, "service %s/%s not observable within %d attempts", namespace, name, maxPollAttempts)
}

// compensate runs step 7's best-effort teardown when steps 4-6 fail.
func compensate(ctx engine.WorkflowContext, namespace, name string) {
	var out any
	_ = ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activities.NameDeleteService,
		Input: activities.ResourceRef{Namespace: namespace, Name: name},
	}, &out)
	_ = ctx.ExecuteActivity(ctx.Context(), engine.ActivityRequest{
		Name:  activities.NameDeleteDeployment,
		Input: activities.ResourceRef{Namespace: namespace, Name: name},
	}, &out)
}
