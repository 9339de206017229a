package backend

import (
	"context"
	"fmt"
)

// PlanImplement runs two claude passes: a planning pass whose output becomes
// part of the implementation prompt, then the implementation pass. Selected
// with {{workflow: plan}}.
type PlanImplement struct{}

// NewPlanImplement creates the two-phase backend.
func NewPlanImplement() *PlanImplement {
	return &PlanImplement{}
}

// Name implements Backend.
func (b *PlanImplement) Name() string { return "plan-implement" }

// Invoke implements Backend.
func (b *PlanImplement) Invoke(ctx context.Context, p Payload, progress ProgressFunc) (*Result, error) {
	planPrompt := fmt.Sprintf(
		"Draft a concise, step-by-step implementation plan for the following task. "+
			"Do not write code yet.\n\n%s", p.Prompt)

	if progress != nil {
		progress("[plan]\n")
	}
	plan, err := runClaudeStreaming(ctx, p.WorkspacePath, p.Model, planPrompt, progress)
	if err != nil {
		return nil, fmt.Errorf("planning pass: %w", err)
	}

	// The planning pass may itself decide the task needs a human.
	if planResult := interpretOutput(plan); planResult.Outcome == OutcomeNeedsHuman {
		return planResult, nil
	}

	implementPrompt := fmt.Sprintf(
		"Implement the following task according to the plan below.\n\nTask:\n%s\n\nPlan:\n%s",
		p.Prompt, plan)

	if progress != nil {
		progress("\n[implement]\n")
	}
	output, err := runClaudeStreaming(ctx, p.WorkspacePath, p.Model, implementPrompt, progress)
	if err != nil {
		return nil, fmt.Errorf("implementation pass: %w", err)
	}

	result := interpretOutput(output)
	result.Output = plan + "\n" + output
	return result, nil
}
