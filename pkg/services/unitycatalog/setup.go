package unitycatalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/databricks/databricks-sdk-go/apierr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

type SetupRequest struct {
	Request     domain.ProvisioningRequest
	StorageRoot string
	WorkspaceID string
	// Region defaults to the request location.
	Region string
	// Resume skips steps recorded by a previous run of the same environment.
	Resume bool
}

type setupRun struct {
	cfg      *Configurator
	req      SetupRequest
	result   *domain.SetupResult
	runID    string
	previous map[string]domain.Checkpoint
}

// SetupEnvironment creates the metastore, catalog, medallion schemas and SQL
// warehouse of one environment. A step rejected by the API leaves an empty
// record and the sequence carries on; any other failure stops the run and is
// reported through the error status.
func (c *Configurator) SetupEnvironment(ctx context.Context, req SetupRequest) *domain.SetupResult {
	logger := zerolog.Ctx(ctx).With().
		Str("project", req.Request.Project).
		Str("environment", string(req.Request.Environment)).
		Logger()
	ctx = logger.WithContext(ctx)

	if req.Region == "" {
		req.Region = req.Request.Location
	}

	run := &setupRun{
		cfg:    c,
		req:    req,
		result: domain.NewSetupResult(),
		runID:  uuid.NewString(),
	}

	if err := run.loadCheckpoints(ctx); err != nil {
		run.result.Status = domain.SetupStatusError
		run.result.Error = err.Error()
		return run.result
	}

	logger.Info().Str("run_id", run.runID).Msg("configuring environment")
	if err := run.execute(ctx); err != nil {
		logger.Warn().Err(err).Msg("environment setup aborted")
		run.result.Status = domain.SetupStatusError
		run.result.Error = err.Error()
		return run.result
	}

	logger.Info().Msg("environment setup finished")
	return run.result
}

func (r *setupRun) loadCheckpoints(ctx context.Context) error {
	r.previous = map[string]domain.Checkpoint{}
	if !r.req.Resume || r.cfg.opts.Checkpoints == nil {
		return nil
	}

	previous, err := r.cfg.opts.Checkpoints.Load(ctx, r.req.Request.Key())
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	r.previous = previous
	return nil
}

func (r *setupRun) execute(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	c := r.cfg

	metastore, err := r.step(ctx, domain.StepMetastore, func() (domain.Record, error) {
		return c.CreateMetastore(ctx, r.req.StorageRoot, r.req.Region)
	})
	if err != nil {
		return err
	}
	r.result.Metastore = metastore
	metastoreID := metastore.String("metastore_id")

	// Attempted even without a metastore id; the API rejects it and the run carries on.
	_, err = r.step(ctx, domain.StepMetastoreAssignment, func() (domain.Record, error) {
		if err := c.AssignMetastore(ctx, metastoreID, r.req.WorkspaceID); err != nil {
			return nil, err
		}
		return domain.Record{"metastore_id": metastoreID, "workspace_id": r.req.WorkspaceID}, nil
	})
	if err != nil {
		return err
	}

	if _, resumed := r.previous[domain.StepMetastoreAssignment]; !resumed {
		if err := c.WaitForMetastoreAssignment(ctx, metastoreID); err != nil {
			if !errors.Is(err, ErrNotReady) {
				return err
			}
			logger.Warn().Err(err).Msg("continuing without confirmed metastore propagation")
		}
	}

	catalogName := r.req.Request.CatalogName()
	catalog, err := r.step(ctx, domain.StepCatalog, func() (domain.Record, error) {
		comment := fmt.Sprintf("Main catalog for %s in %s", r.req.Request.Project, r.req.Request.Environment)
		return c.CreateCatalog(ctx, catalogName, comment)
	})
	if err != nil {
		return err
	}
	r.result.Catalog = catalog

	for _, name := range domain.MedallionSchemas {
		schema, err := r.step(ctx, domain.StepSchemaPrefix+name, func() (domain.Record, error) {
			return c.CreateSchema(ctx, catalogName, name, fmt.Sprintf("Schema %s for the medallion architecture", name))
		})
		if err != nil {
			return err
		}
		if !schema.Empty() {
			r.result.Schemas = append(r.result.Schemas, schema)
		}
	}

	_, err = r.step(ctx, domain.StepServerless, func() (domain.Record, error) {
		if err := c.EnableServerless(ctx); err != nil {
			return nil, err
		}
		return domain.Record{"enabled": true}, nil
	})
	if err != nil {
		return err
	}

	warehouse, err := r.step(ctx, domain.StepWarehouse, func() (domain.Record, error) {
		return c.CreateWarehouse(ctx, r.req.Request.WarehouseName(), "")
	})
	if err != nil {
		return err
	}
	r.result.Warehouse = warehouse

	return nil
}

// step runs fn unless a previous run recorded it. API rejections are logged and
// yield an empty record; other errors are returned.
func (r *setupRun) step(ctx context.Context, name string, fn func() (domain.Record, error)) (domain.Record, error) {
	logger := zerolog.Ctx(ctx)

	if cp, ok := r.previous[name]; ok {
		logger.Info().Str("step", name).Str("run_id", cp.RunID).Msg("step already completed, skipping")
		r.result.Steps = append(r.result.Steps, domain.StepOutcome{Name: name, Succeeded: true, Resumed: true})
		if cp.Record == nil {
			return domain.Record{}, nil
		}
		return cp.Record, nil
	}

	record, err := fn()
	if err != nil {
		r.result.Steps = append(r.result.Steps, domain.StepOutcome{Name: name, Error: err.Error()})

		var apiErr *apierr.APIError
		if errors.As(err, &apiErr) {
			logger.Warn().
				Str("step", name).
				Int("status_code", apiErr.StatusCode).
				Str("error_code", apiErr.ErrorCode).
				Msg("step failed, continuing")
			return domain.Record{}, nil
		}
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	if record == nil {
		record = domain.Record{}
	}

	r.result.Steps = append(r.result.Steps, domain.StepOutcome{Name: name, Succeeded: true})
	r.checkpoint(ctx, name, record)
	return record, nil
}

func (r *setupRun) checkpoint(ctx context.Context, step string, record domain.Record) {
	store := r.cfg.opts.Checkpoints
	if store == nil {
		return
	}

	cp := domain.Checkpoint{
		Environment: r.req.Request.Key(),
		Step:        step,
		RunID:       r.runID,
		Record:      record,
		SavedAt:     r.cfg.opts.Now(),
	}
	if err := store.Save(ctx, cp); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("step", step).Msg("failed to save checkpoint")
	}
}
