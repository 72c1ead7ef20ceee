package unitycatalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

var ErrNoCheckpoints = errors.New("no checkpoints recorded for environment")

// Teardown deletes the objects recorded by previous setup runs, newest first.
// Steps whose delete fails stay in the checkpoint store so teardown can be retried.
func (c *Configurator) Teardown(ctx context.Context, req domain.ProvisioningRequest) ([]domain.StepOutcome, error) {
	store := c.opts.Checkpoints
	if store == nil {
		return nil, fmt.Errorf("teardown requires a checkpoint store")
	}

	env := req.Key()
	logger := zerolog.Ctx(ctx).With().Str("environment", env).Logger()
	ctx = logger.WithContext(ctx)

	recorded, err := store.Load(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoints: %w", err)
	}
	if len(recorded) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, env)
	}

	var outcomes []domain.StepOutcome
	remaining := 0
	for _, step := range teardownOrder(recorded) {
		cp := recorded[step]
		if step == domain.StepPropagation || step == domain.StepServerless {
			// Nothing to undo; the workspace flag is left as is.
			if err := store.DeleteStep(ctx, env, step); err != nil {
				return outcomes, fmt.Errorf("failed to delete checkpoint %s: %w", step, err)
			}
			continue
		}

		err := c.compensate(ctx, step, cp.Record)
		if isNotFound(err) {
			err = nil
		}
		if err != nil {
			if !isAPIError(err) {
				return outcomes, fmt.Errorf("step %s: %w", step, err)
			}
			logger.Warn().Err(err).Str("step", step).Msg("failed to undo step")
			outcomes = append(outcomes, domain.StepOutcome{Name: step, Error: err.Error()})
			remaining++
			continue
		}

		if err := store.DeleteStep(ctx, env, step); err != nil {
			return outcomes, fmt.Errorf("failed to delete checkpoint %s: %w", step, err)
		}
		logger.Info().Str("step", step).Msg("step undone")
		outcomes = append(outcomes, domain.StepOutcome{Name: step, Succeeded: true})
	}

	if remaining == 0 {
		if err := store.Delete(ctx, env); err != nil {
			return outcomes, fmt.Errorf("failed to delete checkpoints: %w", err)
		}
	}
	return outcomes, nil
}

func (c *Configurator) compensate(ctx context.Context, step string, record domain.Record) error {
	switch {
	case step == domain.StepWarehouse:
		id := record.String("id")
		if id == "" {
			return nil
		}
		return c.DeleteWarehouse(ctx, id)
	case strings.HasPrefix(step, domain.StepSchemaPrefix):
		fullName := record.String("full_name")
		if fullName == "" {
			fullName = record.String("catalog_name") + "." + record.String("name")
		}
		return c.DeleteSchema(ctx, fullName)
	case step == domain.StepCatalog:
		return c.DeleteCatalog(ctx, record.String("name"))
	case step == domain.StepMetastoreAssignment:
		return c.UnassignMetastore(ctx, record.String("workspace_id"), record.String("metastore_id"))
	case step == domain.StepMetastore:
		return c.DeleteMetastore(ctx, record.String("metastore_id"))
	default:
		return nil
	}
}

var stepRank = map[string]int{
	domain.StepMetastore:           0,
	domain.StepMetastoreAssignment: 1,
	domain.StepPropagation:         2,
	domain.StepCatalog:             3,
	domain.StepServerless:          5,
	domain.StepWarehouse:           6,
}

func rank(step string) int {
	if strings.HasPrefix(step, domain.StepSchemaPrefix) {
		return 4
	}
	if r, ok := stepRank[step]; ok {
		return r
	}
	return -1
}

// teardownOrder returns the recorded steps in reverse setup order.
func teardownOrder(recorded map[string]domain.Checkpoint) []string {
	steps := make([]string, 0, len(recorded))
	for step := range recorded {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		ri, rj := rank(steps[i]), rank(steps[j])
		if ri != rj {
			return ri > rj
		}
		return steps[i] > steps[j]
	})
	return steps
}

func isAPIError(err error) bool {
	var apiErr *apierr.APIError
	return errors.As(err, &apiErr)
}

func isNotFound(err error) bool {
	var apiErr *apierr.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
