package main

import (
	"testing"

	"vidpress/internal/logging"
	"vidpress/internal/queue"
	"vidpress/internal/stage"
	"vidpress/internal/testsupport"
)

type recordingRegistrar struct {
	steps []queue.Step
}

func (r *recordingRegistrar) RegisterStage(step queue.Step, _ stage.Handler) {
	r.steps = append(r.steps, step)
}

func TestRegisterStagesCoversLadderInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	reg := &recordingRegistrar{}
	registerStages(reg, cfg, store, logging.NewNop())

	want := queue.Steps()
	if len(reg.steps) != len(want) {
		t.Fatalf("registered %d stages, want %d", len(reg.steps), len(want))
	}
	for i, step := range want {
		if reg.steps[i] != step {
			t.Fatalf("stage %d = %s, want %s", i, reg.steps[i], step)
		}
	}
}

func TestRegisterStagesToleratesNilInputs(t *testing.T) {
	registerStages(nil, nil, nil, nil)

	reg := &recordingRegistrar{}
	registerStages(reg, nil, nil, nil)
	if len(reg.steps) != 0 {
		t.Fatalf("expected no registrations without config, got %d", len(reg.steps))
	}
}
