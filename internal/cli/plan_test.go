package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
)

const samplePlan = `
goal: release ${CONDUCTOR_TEST_RELEASE}
tasks:
  - id: build
    agent: builder
    type: build
    estimate: 30s
    command: echo built
  - id: deploy
    agent: deployer
    depends_on: [build]
    risky: true
    scope: prod
    command: echo deployed
`

func TestParsePlan(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_RELEASE", "1.2.0")

	plan, err := ParsePlan([]byte(samplePlan))
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	if plan.Goal != "release 1.2.0" {
		t.Errorf("expected expanded goal, got %q", plan.Goal)
	}
	if plan.Shell != "/bin/sh" {
		t.Errorf("expected default shell, got %q", plan.Shell)
	}

	subs := plan.Submissions()
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	build, deploy := subs[0], subs[1]
	if build.Task.EstimatedDuration != 30*time.Second {
		t.Errorf("expected 30s estimate, got %v", build.Task.EstimatedDuration)
	}
	if deploy.Task.TaskType != "deploy" {
		t.Errorf("expected task type to default to id, got %q", deploy.Task.TaskType)
	}
	if !deploy.Task.Risky || deploy.Scope != "prod" {
		t.Errorf("unexpected deploy submission %+v", deploy)
	}
	if len(deploy.Task.Dependencies) != 1 || deploy.Task.Dependencies[0] != "build" {
		t.Errorf("unexpected dependencies %v", deploy.Task.Dependencies)
	}
	if deploy.Task.Goal != plan.Goal {
		t.Errorf("expected goal on every task")
	}
}

func TestParsePlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "goal: x\n", "no tasks"},
		{"missing id", "tasks:\n  - command: echo\n", "id is required"},
		{"missing command", "tasks:\n  - id: a\n", "command is required"},
		{"bad yaml", "tasks: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestShellOperation(t *testing.T) {
	x := driver.Execution{}
	x.Task.ID = "t1"

	op := shellOperation("/bin/sh", `echo "$GREETING $CONDUCTOR_TASK_ID"`, map[string]string{"GREETING": "hello"})
	out, err := op(context.Background(), x)
	if err != nil {
		t.Fatalf("operation failed: %v", err)
	}
	if out != "hello t1" {
		t.Errorf("expected %q, got %v", "hello t1", out)
	}

	op = shellOperation("/bin/sh", "echo 'permission denied: /etc/app' >&2; exit 3", nil)
	_, err = op(context.Background(), x)
	if err == nil || !strings.Contains(err.Error(), "permission denied: /etc/app") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestShellOperation_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := shellOperation("/bin/sh", "sleep 5", nil)(ctx, driver.Execution{})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
