package adapters

import (
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/de-tools/dino/pkg/models/api"
	"github.com/de-tools/dino/pkg/models/domain"
)

// stepOrder is the position of a step in the setup sequence.
func stepOrder(step string) int {
	switch {
	case step == domain.StepMetastore:
		return 0
	case step == domain.StepMetastoreAssignment:
		return 1
	case step == domain.StepPropagation:
		return 2
	case step == domain.StepCatalog:
		return 3
	case strings.HasPrefix(step, domain.StepSchemaPrefix):
		return 4
	case step == domain.StepServerless:
		return 5
	default:
		return 6
	}
}

func sortedCheckpoints(recorded map[string]domain.Checkpoint) []domain.Checkpoint {
	cps := lo.Values(recorded)
	slices.SortFunc(cps, func(a, b domain.Checkpoint) int {
		if d := stepOrder(a.Step) - stepOrder(b.Step); d != 0 {
			return d
		}
		return strings.Compare(a.Step, b.Step)
	})
	return cps
}

func MapCheckpointToApiStep(cp domain.Checkpoint) api.SetupStep {
	record := map[string]any(cp.Record)
	if record == nil {
		record = map[string]any{}
	}
	return api.SetupStep{
		Name:    cp.Step,
		RunID:   cp.RunID,
		SavedAt: cp.SavedAt,
		Record:  record,
	}
}

func MapCheckpointsToApiEnvironment(name string, recorded map[string]domain.Checkpoint) api.Environment {
	env := api.Environment{Name: name, Steps: len(recorded)}
	for _, cp := range recorded {
		if cp.SavedAt.After(env.LastSavedAt) {
			env.LastSavedAt = cp.SavedAt
			env.LastRunID = cp.RunID
		}
	}
	return env
}

// MapCheckpointsToApiDetail lists the steps in setup order.
func MapCheckpointsToApiDetail(name string, recorded map[string]domain.Checkpoint) api.EnvironmentDetail {
	return api.EnvironmentDetail{
		Name:  name,
		Steps: lo.Map(sortedCheckpoints(recorded), func(cp domain.Checkpoint, _ int) api.SetupStep { return MapCheckpointToApiStep(cp) }),
	}
}
