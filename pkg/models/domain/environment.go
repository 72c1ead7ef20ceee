package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidAction      = errors.New("invalid action")
)

type Environment string

const (
	EnvironmentDev     Environment = "dev"
	EnvironmentStaging Environment = "staging"
	EnvironmentProd    Environment = "prod"
)

var Environments = []Environment{EnvironmentDev, EnvironmentStaging, EnvironmentProd}

func ParseEnvironment(s string) (Environment, error) {
	for _, env := range Environments {
		if string(env) == s {
			return env, nil
		}
	}
	return "", fmt.Errorf("%w %q, must be one of: %s", ErrInvalidEnvironment, s, joinValues(Environments))
}

type Action string

const (
	ActionInit    Action = "init"
	ActionPlan    Action = "plan"
	ActionApply   Action = "apply"
	ActionDestroy Action = "destroy"
)

var Actions = []Action{ActionInit, ActionPlan, ActionApply, ActionDestroy}

func ParseAction(s string) (Action, error) {
	for _, action := range Actions {
		if string(action) == s {
			return action, nil
		}
	}
	return "", fmt.Errorf("%w %q, must be one of: %s", ErrInvalidAction, s, joinValues(Actions))
}

// RequiresProject reports whether the action needs a project name to build terraform variables.
func (a Action) RequiresProject() bool {
	return a != ActionInit
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
