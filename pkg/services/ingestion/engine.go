package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/models/domain"
)

const (
	DefaultCatalog            = "main"
	DefaultDelimiter          = ","
	DefaultMaxFilesPerTrigger = 100

	statusReady = "ready_for_execution"
)

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrMissingFilePath   = errors.New("file path is required")

	identifierRegex = regexp.MustCompile(`^_*[A-Za-z0-9][A-Za-z0-9_]*$`)

	extensionFormats = map[string]domain.FileFormat{
		".csv":     domain.FileFormatCSV,
		".json":    domain.FileFormatJSON,
		".jsonl":   domain.FileFormatJSON,
		".parquet": domain.FileFormatParquet,
		".delta":   domain.FileFormatDelta,
		".avro":    domain.FileFormatAvro,
	}
)

type Options struct {
	// DefaultCatalog is used when the request names no catalog.
	DefaultCatalog     string
	OutputDir          string
	MaxFilesPerTrigger int
	Now                func() time.Time
}

type Engine struct {
	req  domain.IngestionRequest
	opts Options
}

// DetectFormat guesses the file format from the path extension. Directories and
// unknown extensions are treated as csv.
func DetectFormat(path string) domain.FileFormat {
	if strings.HasSuffix(path, "/") {
		return domain.FileFormatCSV
	}
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return domain.FileFormatCSV
}

func ValidateIdentifier(kind, name string) error {
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%w: %s %q must contain letters or digits and may only add underscores", ErrInvalidIdentifier, kind, name)
	}
	return nil
}

func NewEngine(req domain.IngestionRequest, opts Options) (*Engine, error) {
	if opts.DefaultCatalog == "" {
		opts.DefaultCatalog = DefaultCatalog
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.MaxFilesPerTrigger <= 0 {
		opts.MaxFilesPerTrigger = DefaultMaxFilesPerTrigger
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if req.CatalogName == "" {
		req.CatalogName = opts.DefaultCatalog
	}
	if req.Delimiter == "" {
		req.Delimiter = DefaultDelimiter
	}
	if req.OutputMode == "" {
		req.OutputMode = domain.OutputModeAppend
	}
	if req.FileFormat == "" {
		req.FileFormat = DetectFormat(req.FilePath)
	}
	if req.CheckpointLocation == "" {
		req.CheckpointLocation = fmt.Sprintf("/tmp/checkpoints/%s/%s", req.TargetSchema, req.TableName)
	}

	if err := validate(req); err != nil {
		return nil, err
	}

	return &Engine{req: req, opts: opts}, nil
}

func validate(req domain.IngestionRequest) error {
	checks := []struct{ kind, name string }{
		{"schema", req.TargetSchema},
		{"table", req.TableName},
		{"catalog", req.CatalogName},
	}
	for _, c := range req.PartitionColumns {
		checks = append(checks, struct{ kind, name string }{"partition column", c})
	}
	for _, k := range req.MergeKeys {
		checks = append(checks, struct{ kind, name string }{"merge key", k})
	}
	for _, c := range checks {
		if err := ValidateIdentifier(c.kind, c.name); err != nil {
			return err
		}
	}

	if strings.TrimSpace(req.FilePath) == "" {
		return ErrMissingFilePath
	}
	if _, err := domain.ParseFileFormat(string(req.FileFormat)); err != nil {
		return err
	}
	if _, err := domain.ParseOutputMode(string(req.OutputMode)); err != nil {
		return err
	}
	return nil
}

func (e *Engine) Request() domain.IngestionRequest {
	return e.req
}

func (e *Engine) TableFullName() string {
	return fmt.Sprintf("%s.%s.%s", e.req.CatalogName, e.req.TargetSchema, e.req.TableName)
}

// FileName is the name of the generated code file for the given mode.
func (e *Engine) FileName(automated bool) string {
	kind := "batch"
	if automated {
		kind = "streaming"
	}
	return fmt.Sprintf("ingestion_%s_%s_%s.py", kind, e.req.TargetSchema, e.req.TableName)
}

// GenerateCode renders batch code, or Auto Loader streaming code when automated is set.
func (e *Engine) GenerateCode(automated bool) (string, error) {
	data := codeData{
		GeneratedAt:        e.opts.Now().Format(time.RFC3339),
		SourcePath:         e.req.FilePath,
		TargetTable:        e.TableFullName(),
		CheckpointLocation: e.req.CheckpointLocation,
		FileFormat:         string(e.req.FileFormat),
		Delimiter:          e.req.Delimiter,
		OutputMode:         string(e.req.OutputMode),
		TableName:          e.req.TableName,
		SchemaName:         e.req.TargetSchema,
		MaxFilesPerTrigger: e.opts.MaxFilesPerTrigger,
		PartitionColumns:   e.req.PartitionColumns,
		MergeKeys:          e.req.MergeKeys,
	}

	name := batchTemplate
	if automated {
		name = streamingTemplate
	}
	return render(name, data)
}

// Execute writes the generated code into the output directory. Failures are
// reported in the result rather than returned.
func (e *Engine) Execute(ctx context.Context, automated bool) domain.IngestionResult {
	logger := zerolog.Ctx(ctx).With().Str("table", e.TableFullName()).Logger()
	now := e.opts.Now()

	fail := func(err error) domain.IngestionResult {
		logger.Warn().Err(err).Msg("ingestion code generation failed")
		return domain.IngestionResult{Success: false, Error: err.Error(), Timestamp: now}
	}

	if e.req.OutputMode == domain.OutputModeMerge && len(e.req.MergeKeys) == 0 {
		logger.Warn().Msg("merge requested without merge keys, generated code appends")
	}

	code, err := e.GenerateCode(automated)
	if err != nil {
		return fail(err)
	}

	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}
	path := filepath.Join(e.opts.OutputDir, e.FileName(automated))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return fail(fmt.Errorf("failed to write ingestion code: %w", err))
	}

	ingestionType := "batch"
	if automated {
		ingestionType = "streaming"
	}
	logger.Info().Str("file", path).Str("type", ingestionType).Msg("ingestion code generated")

	result := domain.IngestionResult{
		Success:        true,
		TableFullName:  e.TableFullName(),
		DetectedFormat: e.req.FileFormat,
		OutputMode:     e.req.OutputMode,
		CatalogName:    e.req.CatalogName,
		SchemaName:     e.req.TargetSchema,
		TableName:      e.req.TableName,
		SourcePath:     e.req.FilePath,
		IngestionFile:  path,
		IngestionType:  ingestionType,
		IsAutomated:    automated,
		Timestamp:      now,
	}
	if automated {
		result.CheckpointLocation = e.req.CheckpointLocation
	}
	return result
}

func (e *Engine) Status() domain.IngestionStatus {
	return domain.IngestionStatus{
		Status:    statusReady,
		TableName: e.TableFullName(),
		LastCheck: e.opts.Now(),
		Message:   "Ingestion code generated, run it on Databricks.",
	}
}
