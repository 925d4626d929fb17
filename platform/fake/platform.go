// Package fake is an in-memory platform.Platform used by Build Workflow
// tests. It is grounded in the teacher's engine/inmem style of a map-backed
// fake with deterministic status transitions driven directly by test code
// (via Advance*), rather than a real scheduler loop.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentware/agentctl/platform"
)

// Platform is a map-backed platform.Platform for tests. Status transitions
// (e.g. a Job going Pending->Running->Succeeded) are driven explicitly by
// test code via AdvanceJob/AdvanceDeployment, not by a background clock.
type Platform struct {
	mu sync.Mutex

	jobs        map[string]*platform.Job
	deployments map[string]*platform.Deployment
	services    map[string]*platform.Service
	pdbs        map[string]*platform.PodDisruptionBudget

	// ServiceResponses lets tests script CallService results keyed by
	// "namespace/name/path".
	ServiceResponses map[string]map[string]any
	ServiceErrors    map[string]error

	CreateJobErr        error
	CreateDeploymentErr error
	CreateServiceErr    error
	CreatePDBErr        error
}

// New constructs an empty fake Platform.
func New() *Platform {
	return &Platform{
		jobs:             make(map[string]*platform.Job),
		deployments:      make(map[string]*platform.Deployment),
		services:         make(map[string]*platform.Service),
		pdbs:             make(map[string]*platform.PodDisruptionBudget),
		ServiceResponses: make(map[string]map[string]any),
		ServiceErrors:    make(map[string]error),
	}
}

func key(namespace, name string) string { return namespace + "/" + name }

func (p *Platform) CreateJob(_ context.Context, spec platform.JobSpec, override bool) (*platform.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateJobErr != nil {
		return nil, p.CreateJobErr
	}
	k := key(spec.Namespace, spec.Name)
	if existing, ok := p.jobs[k]; ok && !override {
		return existing, nil
	}
	j := &platform.Job{Name: spec.Name, Namespace: spec.Namespace, Phase: platform.JobPending}
	p.jobs[k] = j
	return j, nil
}

func (p *Platform) GetJob(_ context.Context, namespace, name string) (*platform.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs[key(namespace, name)], nil
}

func (p *Platform) DeleteJob(_ context.Context, namespace, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, key(namespace, name))
	return nil
}

// AdvanceJob sets the phase of a previously-created job, for test-driven
// polling sequences.
func (p *Platform) AdvanceJob(namespace, name string, phase platform.JobPhase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.jobs[key(namespace, name)]; ok {
		j.Phase = phase
	}
}

func (p *Platform) CreateDeployment(_ context.Context, spec platform.DeploymentSpec, override bool) (*platform.Deployment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateDeploymentErr != nil {
		return nil, p.CreateDeploymentErr
	}
	k := key(spec.Namespace, spec.Name)
	if existing, ok := p.deployments[k]; ok && !override {
		return existing, nil
	}
	d := &platform.Deployment{Name: spec.Name, Namespace: spec.Namespace, Phase: platform.DeploymentUnknown}
	p.deployments[k] = d
	return d, nil
}

func (p *Platform) GetDeployment(_ context.Context, namespace, name string) (*platform.Deployment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deployments[key(namespace, name)], nil
}

func (p *Platform) DeleteDeployment(_ context.Context, namespace, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.deployments, key(namespace, name))
	return nil
}

// AdvanceDeployment sets the availability of a previously-created
// Deployment.
func (p *Platform) AdvanceDeployment(namespace, name string, availableReplicas int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.deployments[key(namespace, name)]; ok {
		d.AvailableReplicas = availableReplicas
		d.Phase = platform.DeploymentPhaseFromReplicas(availableReplicas, true)
	}
}

func (p *Platform) CreateService(_ context.Context, spec platform.ServiceSpec, override bool) (*platform.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateServiceErr != nil {
		return nil, p.CreateServiceErr
	}
	k := key(spec.Namespace, spec.Name)
	if existing, ok := p.services[k]; ok && !override {
		return existing, nil
	}
	s := &platform.Service{Name: spec.Name, Namespace: spec.Namespace, Port: spec.Port}
	p.services[k] = s
	return s, nil
}

func (p *Platform) GetService(_ context.Context, namespace, name string) (*platform.Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.services[key(namespace, name)], nil
}

func (p *Platform) DeleteService(_ context.Context, namespace, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.services, key(namespace, name))
	return nil
}

func (p *Platform) CreatePodDisruptionBudget(_ context.Context, spec platform.PodDisruptionBudgetSpec, override bool) (*platform.PodDisruptionBudget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreatePDBErr != nil {
		return nil, p.CreatePDBErr
	}
	k := key(spec.Namespace, spec.Name)
	if existing, ok := p.pdbs[k]; ok && !override {
		return existing, nil
	}
	pdb := &platform.PodDisruptionBudget{Name: spec.Name, Namespace: spec.Namespace}
	p.pdbs[k] = pdb
	return pdb, nil
}

func (p *Platform) GetPodDisruptionBudget(_ context.Context, namespace, name string) (*platform.PodDisruptionBudget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pdbs[key(namespace, name)], nil
}

func (p *Platform) DeletePodDisruptionBudget(_ context.Context, namespace, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pdbs, key(namespace, name))
	return nil
}

func (p *Platform) CallService(_ context.Context, req platform.CallServiceRequest) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(req.Namespace, req.Name) + "/" + req.Path
	if err, ok := p.ServiceErrors[k]; ok {
		return nil, err
	}
	if resp, ok := p.ServiceResponses[k]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("fake platform: no scripted response for %s", k)
}
