package workflow

import (
	"reflect"
	"testing"
)

func TestStepsAreLabelled(t *testing.T) {
	if len(Steps) != 10 {
		t.Fatalf("expected 10 steps, got %d", len(Steps))
	}
	for _, s := range Steps {
		if Labels[s] == "" {
			t.Errorf("step %s has no label", s)
		}
		if !Valid(s) {
			t.Errorf("step %s should be valid", s)
		}
	}
	if Valid("shipping") {
		t.Error("unknown step should be invalid")
	}
}

func TestFirstStepHasNoPrerequisites(t *testing.T) {
	if len(Prerequisites[StepPlanningPreparedness]) != 0 {
		t.Fatalf("planning should not have prerequisites: %v", Prerequisites[StepPlanningPreparedness])
	}
}

func TestPrerequisitesPointBackward(t *testing.T) {
	index := map[Step]int{}
	for i, s := range Steps {
		index[s] = i
	}
	for step, prereqs := range Prerequisites {
		for _, p := range prereqs {
			if index[p.Step] >= index[step] {
				t.Errorf("%s depends on later step %s", step, p.Step)
			}
		}
	}
}

func TestBlockingPrereqs(t *testing.T) {
	if got := BlockingPrereqs(StepDataAssembly); !reflect.DeepEqual(got, []Step{StepPlanningPreparedness}) {
		t.Fatalf("data_assembly prereqs: %v", got)
	}
	// monitoring_evaluation only soft-depends on service_delivery
	if got := BlockingPrereqs(StepMonitoringEvaluation); got != nil {
		t.Fatalf("expected no blocking prereqs for m&e, got %v", got)
	}
}

func TestBlockingDependents(t *testing.T) {
	if got := BlockingDependents(StepPlanningPreparedness); !reflect.DeepEqual(got, []Step{StepDataAssembly}) {
		t.Fatalf("planning dependents: %v", got)
	}
	if got := BlockingDependents(StepServiceDelivery); got != nil {
		t.Fatalf("expected no blocking dependents for service_delivery, got %v", got)
	}
}

func TestAccessible(t *testing.T) {
	none := map[Step]bool{}
	if !Accessible(StepPlanningPreparedness, none) {
		t.Fatal("first step should always be accessible")
	}
	if Accessible(StepDataAssembly, none) {
		t.Fatal("data_assembly should be gated on planning")
	}
	if !Accessible(StepDataAssembly, map[Step]bool{StepPlanningPreparedness: true}) {
		t.Fatal("data_assembly should open once planning completes")
	}
	// the non-blocking edge never gates access
	if !Accessible(StepMonitoringEvaluation, none) {
		t.Fatal("m&e should be accessible from the start")
	}
}
