package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
)

// Plan is a workflow file: shell commands run as dependent tasks.
type Plan struct {
	Goal  string     `yaml:"goal"`
	Shell string     `yaml:"shell"`
	Tasks []PlanTask `yaml:"tasks"`
}

type PlanTask struct {
	ID        string            `yaml:"id"`
	Agent     string            `yaml:"agent"`
	Type      string            `yaml:"type"`
	Phase     string            `yaml:"phase"`
	DependsOn []string          `yaml:"depends_on"`
	Estimate  time.Duration     `yaml:"estimate"`
	Risky     bool              `yaml:"risky"`
	Priority  int               `yaml:"priority"`
	Scope     string            `yaml:"scope"`
	Command   string            `yaml:"command"`
	Env       map[string]string `yaml:"env"`
}

func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes a plan, expanding environment variables first.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if p.Shell == "" {
		p.Shell = "/bin/sh"
	}
	if len(p.Tasks) == 0 {
		return nil, errors.New("plan has no tasks")
	}
	for i, t := range p.Tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task %d: id is required", i)
		}
		if strings.TrimSpace(t.Command) == "" {
			return nil, fmt.Errorf("task %s: command is required", t.ID)
		}
	}
	return &p, nil
}

// Submissions converts the plan into driver submissions. The driver checks
// ids, dependencies and cycles.
func (p *Plan) Submissions() []driver.Submission {
	subs := make([]driver.Submission, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		agent := t.Agent
		if agent == "" {
			agent = "shell"
		}
		taskType := t.Type
		if taskType == "" {
			taskType = t.ID
		}
		subs = append(subs, driver.Submission{
			Task: domain.Task{
				ID:                t.ID,
				AgentType:         agent,
				TaskType:          taskType,
				Phase:             t.Phase,
				Goal:              p.Goal,
				Dependencies:      t.DependsOn,
				EstimatedDuration: t.Estimate,
				Risky:             t.Risky,
				Priority:          t.Priority,
			},
			Operation: shellOperation(p.Shell, t.Command, t.Env),
			Scope:     t.Scope,
		})
	}
	return subs
}

// shellOperation runs command and returns its trimmed stdout. A failing
// command returns its stderr as the error text so the classifier sees the
// real failure message.
func shellOperation(shell, command string, env map[string]string) driver.Operation {
	return func(ctx context.Context, x driver.Execution) (any, error) {
		cmd := exec.CommandContext(ctx, shell, "-c", command)
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		cmd.Env = append(cmd.Env,
			"CONDUCTOR_TASK_ID="+x.Task.ID,
			"CONDUCTOR_AGENT="+x.Task.AgentType,
		)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				return nil, fmt.Errorf("command failed: %w", err)
			}
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		return strings.TrimSpace(stdout.String()), nil
	}
}
