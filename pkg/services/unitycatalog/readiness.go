package unitycatalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

var ErrNotReady = errors.New("resource not ready before deadline")

// WaitForMetastoreAssignment polls the current assignment until the workspace
// reports a metastore (metastoreID when given) or the deadline expires.
func (c *Configurator) WaitForMetastoreAssignment(ctx context.Context, metastoreID string) error {
	probe := func(ctx context.Context) error {
		var assignment domain.Record
		if err := c.api.Do(ctx, http.MethodGet, currentAssignmentPath, nil, nil, &assignment); err != nil {
			return err
		}
		current := assignment.String("metastore_id")
		if current == "" {
			return errors.New("workspace has no metastore assigned yet")
		}
		if metastoreID != "" && current != metastoreID {
			return fmt.Errorf("workspace still assigned to metastore %s", current)
		}
		return nil
	}
	return c.poll(ctx, "metastore assignment", c.opts.MetastoreDeadline, probe)
}

// WaitForWorkspace polls workspace-conf until the workspace API answers.
func (c *Configurator) WaitForWorkspace(ctx context.Context) error {
	probe := func(ctx context.Context) error {
		query := map[string]any{"keys": serverlessConfKey}
		var conf map[string]any
		return c.api.Do(ctx, http.MethodGet, workspaceConfPath, query, nil, &conf)
	}
	return c.poll(ctx, "workspace", c.opts.WorkspaceDeadline, probe)
}

func (c *Configurator) poll(ctx context.Context, what string, deadline time.Duration, probe func(context.Context) error) error {
	logger := zerolog.Ctx(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.PollInterval
	b.MaxInterval = 10 * c.opts.PollInterval
	b.MaxElapsedTime = deadline

	attempts := 0
	operation := func() error {
		attempts++
		return probe(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Debug().Err(err).Str("waiting_for", what).Dur("retry_in", next).Msg("not ready yet")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		logger.Info().Str("resource", what).Int("attempts", attempts).Msg("ready")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s after %s: %v", ErrNotReady, what, deadline, err)
}
