package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/runtime/terminal/export"
	"github.com/de-tools/dino/pkg/services/config"
	"github.com/de-tools/dino/pkg/services/genie"
	"github.com/de-tools/dino/pkg/services/ingestion"
	"github.com/de-tools/dino/pkg/services/workflow"
	"github.com/de-tools/dino/pkg/store/databrickssql"
)

const defaultProfile = "DEFAULT"

type IngestDependencies struct {
	LoadSettings func(path string) (*config.Settings, error)
	// OpenWarehouse returns a SQL connection and the workspace host for a .databrickscfg profile.
	OpenWarehouse func(ctx context.Context, cfgPath, profile, httpPath string) (*sql.DB, string, error)
}

func DefaultIngestDependencies() IngestDependencies {
	return IngestDependencies{
		LoadSettings:  config.LoadSettings,
		OpenWarehouse: openWarehouse,
	}
}

func openWarehouse(ctx context.Context, cfgPath, profileName, httpPath string) (*sql.DB, string, error) {
	registry, err := config.NewRegistry(cfgPath)
	if err != nil {
		return nil, "", err
	}
	profile, err := registry.GetProfile(ctx, profileName)
	if err != nil {
		return nil, "", err
	}
	db, err := databrickssql.Open(profile.Config(), pick(httpPath, profile.HTTPPath))
	if err != nil {
		return nil, "", err
	}
	return db, profile.Host, nil
}

type IngestCmd struct {
	targetSchema     string
	tableName        string
	filePath         string
	delimiter        string
	automated        bool
	hasGenie         bool
	catalogName      string
	outputMode       string
	fileFormat       string
	partitionColumns []string
	mergeKeys        []string
	outputDir        string
	databricksCfg    string
	profile          string
	httpPath         string
	configFile       string
	debug            bool
	deps             IngestDependencies
	reporter         *export.Reporter
}

func NewIngestCmd(deps IngestDependencies, reporter *export.Reporter) *cobra.Command {
	ic := &IngestCmd{deps: deps, reporter: reporter}
	cmd := &cobra.Command{
		Use:   "dino-ingest",
		Short: "Generate Databricks ingestion code and workflow definitions",
		Long: `Generates batch or Auto Loader streaming ingestion code for a Unity Catalog table,
optionally with a file-arrival workflow definition and Genie room configuration.

The target schema must already exist and the caller needs Unity Catalog permissions on it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          ic.run,
	}

	f := cmd.Flags()
	f.StringVar(&ic.targetSchema, "target-schema", "", "Target schema of the ingestion")
	f.StringVar(&ic.tableName, "table-name", "", "Logical name of the entity being ingested")
	f.StringVar(&ic.filePath, "file-path", "", "Full path of the source file in the RAW storage")
	f.StringVar(&ic.delimiter, "delimiter", ingestion.DefaultDelimiter, "Delimiter of the source file")
	f.BoolVar(&ic.automated, "is-automated", false, "Ingest on file arrival with Auto Loader and write a workflow definition")
	f.BoolVar(&ic.hasGenie, "has-genie", false, "Catalog the table and prepare a Genie room")
	f.StringVar(&ic.catalogName, "catalog-name", "", "Unity Catalog catalog (default from settings)")
	f.StringVar(&ic.outputMode, "output-mode", string(domain.OutputModeAppend), "Write mode: append, overwrite or merge")
	f.StringVar(&ic.fileFormat, "file-format", "", "csv, json, parquet, delta or avro (detected from the path when empty)")
	f.StringSliceVar(&ic.partitionColumns, "partition-columns", nil, "Comma separated partition columns")
	f.StringSliceVar(&ic.mergeKeys, "merge-keys", nil, "Comma separated merge keys for --output-mode merge")
	f.StringVar(&ic.outputDir, "output-dir", "", "Directory for generated files (default from settings)")
	f.StringVar(&ic.databricksCfg, "databrickscfg", config.DefaultDatabricksCfgPath(), "Path to the .databrickscfg file")
	f.StringVar(&ic.profile, "profile", defaultProfile, "Profile used for table analysis")
	f.StringVar(&ic.httpPath, "warehouse-http-path", "", "SQL warehouse HTTP path (default from the profile's http_path)")
	f.StringVar(&ic.configFile, "config", "", "Path to a dino config file")
	f.BoolVar(&ic.debug, "debug", false, "Enable debug logging")

	_ = cmd.MarkFlagRequired("target-schema")
	_ = cmd.MarkFlagRequired("table-name")
	_ = cmd.MarkFlagRequired("file-path")

	cmd.AddCommand(newExamplesCmd(reporter))
	return cmd
}

func (ic *IngestCmd) request() (domain.IngestionRequest, error) {
	mode, err := domain.ParseOutputMode(ic.outputMode)
	if err != nil {
		return domain.IngestionRequest{}, err
	}
	var format domain.FileFormat
	if ic.fileFormat != "" {
		if format, err = domain.ParseFileFormat(ic.fileFormat); err != nil {
			return domain.IngestionRequest{}, err
		}
	}
	return domain.IngestionRequest{
		TargetSchema:     ic.targetSchema,
		TableName:        ic.tableName,
		FilePath:         ic.filePath,
		Delimiter:        ic.delimiter,
		CatalogName:      ic.catalogName,
		OutputMode:       mode,
		FileFormat:       format,
		PartitionColumns: ic.partitionColumns,
		MergeKeys:        ic.mergeKeys,
	}, nil
}

func (ic *IngestCmd) run(cmd *cobra.Command, _ []string) error {
	req, err := ic.request()
	if err != nil {
		return err
	}
	settings, err := ic.deps.LoadSettings(ic.configFile)
	if err != nil {
		return err
	}
	outputDir := pick(ic.outputDir, settings.OutputDir)

	logger := newLogger(cmd.ErrOrStderr(), ic.debug)
	ctx := logger.WithContext(cmd.Context())

	engine, err := ingestion.NewEngine(req, ingestion.Options{
		DefaultCatalog: settings.DefaultCatalog,
		OutputDir:      outputDir,
	})
	if err != nil {
		return err
	}

	result := engine.Execute(ctx, ic.automated)
	if !result.Success {
		return fmt.Errorf("ingestion failed: %s", result.Error)
	}
	summary := export.IngestionSummary{Ingestion: result}

	if ic.automated {
		wf := ic.createWorkflow(ctx, result, outputDir, settings.NotificationEmails)
		summary.Workflow = &wf
	}
	if ic.hasGenie {
		g := ic.setupGenie(ctx, result, outputDir)
		summary.Genie = &g
	}

	return ic.reporter.HandleIngestion(summary)
}

func (ic *IngestCmd) createWorkflow(ctx context.Context, result domain.IngestionResult, outputDir string, emails []string) domain.WorkflowResult {
	manager, err := workflow.NewManager(ic.targetSchema, ic.tableName, workflow.Options{
		OutputDir:          outputDir,
		NotificationEmails: emails,
	})
	if err != nil {
		return domain.WorkflowResult{Success: false, Error: err.Error()}
	}
	return manager.CreateAutoIngestionWorkflow(ctx, domain.WorkflowRequest{
		SourcePath:         ic.filePath,
		TargetTable:        result.TableFullName,
		CheckpointLocation: result.CheckpointLocation,
		FileFormat:         result.DetectedFormat,
		Delimiter:          ic.delimiter,
		IngestionFile:      result.IngestionFile,
	})
}

// setupGenie degrades to a failed result when no warehouse is reachable.
func (ic *IngestCmd) setupGenie(ctx context.Context, result domain.IngestionResult, outputDir string) domain.GenieResult {
	logger := zerolog.Ctx(ctx)

	db, host, err := ic.deps.OpenWarehouse(ctx, ic.databricksCfg, ic.profile, ic.httpPath)
	if err != nil {
		logger.Warn().Err(err).Str("profile", ic.profile).Msg("no SQL warehouse connection for table analysis")
		db = nil
	}
	if db != nil {
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close SQL warehouse connection")
			}
		}()
	}

	assistant, err := genie.NewAssistant(db, result.CatalogName, ic.targetSchema, ic.tableName, genie.Options{
		OutputDir:    outputDir,
		WorkspaceURL: host,
	})
	if err != nil {
		return domain.GenieResult{Success: false, Error: err.Error()}
	}
	return assistant.Setup(ctx)
}

// Examples shown by `dino-ingest examples`.
var Examples = []export.Example{
	{
		Title:   "Simple CSV ingestion",
		Command: "dino-ingest --target-schema bronze --table-name customers --file-path /Volumes/main/raw/customers.csv",
	},
	{
		Title:   "File-arrival ingestion with a workflow",
		Command: "dino-ingest --target-schema bronze --table-name orders --file-path /Volumes/main/raw/orders/ --file-format json --is-automated",
	},
	{
		Title:   "Ingestion with Genie",
		Command: "dino-ingest --target-schema bronze --table-name sales --file-path /Volumes/main/raw/sales.csv --has-genie --profile analytics",
	},
	{
		Title:   "Partitioned ingestion",
		Command: "dino-ingest --target-schema bronze --table-name events --file-path /Volumes/main/raw/events.parquet --partition-columns year,month",
	},
	{
		Title:   "Merge on a key",
		Command: "dino-ingest --target-schema silver --table-name products --file-path /Volumes/main/raw/products.csv --output-mode merge --merge-keys product_id",
	},
	{
		Title:   "Overwrite",
		Command: "dino-ingest --target-schema bronze --table-name products --file-path /Volumes/main/raw/products.csv --output-mode overwrite",
	},
}

func newExamplesCmd(reporter *export.Reporter) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show usage examples",
		RunE: func(_ *cobra.Command, _ []string) error {
			return reporter.HandleExamples(Examples)
		},
	}
}
