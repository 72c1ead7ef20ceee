package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/databricks/databricks-sdk-go/service/jobs"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/services/ingestion"
)

const (
	DefaultWorkspaceDir           = "/Workspace/Shared/dino"
	DefaultMinTimeBetweenTriggers = 60
	DefaultWaitAfterLastChange    = 60
	ingestionTaskKey              = "dino_ingestion"
	statusNotDeployed             = "not_deployed"
)

type Options struct {
	OutputDir string
	// WorkspaceDir is where the generated ingestion files are expected to be imported.
	WorkspaceDir       string
	NotificationEmails []string
}

type Manager struct {
	schema string
	table  string
	opts   Options
}

func NewManager(schema, table string, opts Options) (*Manager, error) {
	if err := ingestion.ValidateIdentifier("schema", schema); err != nil {
		return nil, err
	}
	if err := ingestion.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = DefaultWorkspaceDir
	}
	return &Manager{schema: schema, table: table, opts: opts}, nil
}

func (m *Manager) Name() string {
	return fmt.Sprintf("dino_auto_ingestion_%s_%s", m.schema, m.table)
}

func (m *Manager) FileName() string {
	return fmt.Sprintf("workflow_%s.json", m.Name())
}

// BuildJob describes a job that runs the streaming ingestion file whenever new
// files land in the source path.
func (m *Manager) BuildJob(req domain.WorkflowRequest) jobs.CreateJob {
	ingestionFile := req.IngestionFile
	if ingestionFile == "" {
		ingestionFile = fmt.Sprintf("ingestion_streaming_%s_%s.py", m.schema, m.table)
	}
	maxFiles := req.MaxFilesPerTrigger
	if maxFiles <= 0 {
		maxFiles = ingestion.DefaultMaxFilesPerTrigger
	}
	delimiter := req.Delimiter
	if delimiter == "" {
		delimiter = ingestion.DefaultDelimiter
	}

	emails := req.NotificationEmails
	if len(emails) == 0 {
		emails = m.opts.NotificationEmails
	}

	return jobs.CreateJob{
		Name: m.Name(),
		Tasks: []jobs.Task{
			{
				TaskKey:     ingestionTaskKey,
				Description: fmt.Sprintf("Auto Loader ingestion into %s", req.TargetTable),
				SparkPythonTask: &jobs.SparkPythonTask{
					PythonFile: path.Join(m.opts.WorkspaceDir, filepath.Base(ingestionFile)),
					Source:     jobs.SourceWorkspace,
					Parameters: []string{
						"--source-path", req.SourcePath,
						"--target-table", req.TargetTable,
						"--checkpoint-location", req.CheckpointLocation,
						"--file-format", string(req.FileFormat),
						"--delimiter", delimiter,
						"--max-files-per-trigger", strconv.Itoa(maxFiles),
					},
				},
			},
		},
		Trigger: &jobs.TriggerSettings{
			FileArrival: &jobs.FileArrivalTriggerConfiguration{
				Url:                           req.SourcePath,
				MinTimeBetweenTriggersSeconds: DefaultMinTimeBetweenTriggers,
				WaitAfterLastChangeSeconds:    DefaultWaitAfterLastChange,
			},
			PauseStatus: jobs.PauseStatusUnpaused,
		},
		EmailNotifications: &jobs.JobEmailNotifications{
			OnFailure: emails,
			OnSuccess: emails,
		},
		MaxConcurrentRuns: 1,
		Tags: map[string]string{
			"dino_sdk_managed": "true",
			"ingestion_type":   "auto_loader",
			"schema":           m.schema,
			"table":            m.table,
		},
	}
}

// CreateAutoIngestionWorkflow writes the job definition as JSON for import into Databricks Jobs.
func (m *Manager) CreateAutoIngestionWorkflow(ctx context.Context, req domain.WorkflowRequest) domain.WorkflowResult {
	logger := zerolog.Ctx(ctx).With().Str("workflow", m.Name()).Logger()

	fail := func(err error) domain.WorkflowResult {
		logger.Warn().Err(err).Msg("failed to create workflow")
		return domain.WorkflowResult{Success: false, Error: err.Error()}
	}

	if req.SourcePath == "" {
		return fail(fmt.Errorf("source path is required"))
	}
	if req.FileFormat != "" {
		if _, err := domain.ParseFileFormat(string(req.FileFormat)); err != nil {
			return fail(err)
		}
	}

	data, err := json.MarshalIndent(m.BuildJob(req), "", "  ")
	if err != nil {
		return fail(fmt.Errorf("failed to encode workflow: %w", err))
	}

	if err := os.MkdirAll(m.opts.OutputDir, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}
	file := filepath.Join(m.opts.OutputDir, m.FileName())
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fail(fmt.Errorf("failed to write workflow: %w", err))
	}

	logger.Info().Str("file", file).Msg("workflow definition written")
	return domain.WorkflowResult{
		Success:            true,
		WorkflowName:       m.Name(),
		WorkflowFile:       file,
		TargetTable:        req.TargetTable,
		CheckpointLocation: req.CheckpointLocation,
	}
}

// Metrics reports run counters. Workflows are never deployed by this tool, so
// they are always zero.
func (m *Manager) Metrics() domain.WorkflowMetrics {
	return domain.WorkflowMetrics{Status: statusNotDeployed}
}
