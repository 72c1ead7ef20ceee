package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported file format")
	ErrUnsupportedOutputMode = errors.New("unsupported output mode")
)

type FileFormat string

const (
	FileFormatCSV     FileFormat = "csv"
	FileFormatJSON    FileFormat = "json"
	FileFormatParquet FileFormat = "parquet"
	FileFormatDelta   FileFormat = "delta"
	FileFormatAvro    FileFormat = "avro"
)

var FileFormats = []FileFormat{FileFormatCSV, FileFormatJSON, FileFormatParquet, FileFormatDelta, FileFormatAvro}

func ParseFileFormat(s string) (FileFormat, error) {
	for _, f := range FileFormats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q, use one of: %s", ErrUnsupportedFormat, s, joinValues(FileFormats))
}

type OutputMode string

const (
	OutputModeAppend    OutputMode = "append"
	OutputModeOverwrite OutputMode = "overwrite"
	OutputModeMerge     OutputMode = "merge"
)

var OutputModes = []OutputMode{OutputModeAppend, OutputModeOverwrite, OutputModeMerge}

func ParseOutputMode(s string) (OutputMode, error) {
	for _, m := range OutputModes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w %q, use one of: %s", ErrUnsupportedOutputMode, s, joinValues(OutputModes))
}

type IngestionRequest struct {
	TargetSchema       string
	TableName          string
	FilePath           string
	Delimiter          string
	CatalogName        string
	OutputMode         OutputMode
	FileFormat         FileFormat
	CheckpointLocation string
	PartitionColumns   []string
	MergeKeys          []string
}

type IngestionResult struct {
	Success            bool       `json:"success"`
	Error              string     `json:"error,omitempty"`
	TableFullName      string     `json:"table_full_name,omitempty"`
	DetectedFormat     FileFormat `json:"detected_format,omitempty"`
	OutputMode         OutputMode `json:"output_mode,omitempty"`
	CatalogName        string     `json:"catalog_name,omitempty"`
	SchemaName         string     `json:"schema_name,omitempty"`
	TableName          string     `json:"table_name,omitempty"`
	SourcePath         string     `json:"source_path,omitempty"`
	IngestionFile      string     `json:"ingestion_file,omitempty"`
	IngestionType      string     `json:"ingestion_type,omitempty"`
	IsAutomated        bool       `json:"is_automated"`
	CheckpointLocation string     `json:"checkpoint_location,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}

type IngestionStatus struct {
	Status    string    `json:"status"`
	TableName string    `json:"table_name"`
	LastCheck time.Time `json:"last_check"`
	Message   string    `json:"message"`
}

type WorkflowRequest struct {
	SourcePath         string
	TargetTable        string
	CheckpointLocation string
	FileFormat         FileFormat
	Delimiter          string
	MaxFilesPerTrigger int
	IngestionFile      string
	NotificationEmails []string
}

type WorkflowResult struct {
	Success            bool   `json:"success"`
	Error              string `json:"error,omitempty"`
	WorkflowName       string `json:"workflow_name,omitempty"`
	WorkflowFile       string `json:"workflow_file,omitempty"`
	TargetTable        string `json:"target_table,omitempty"`
	CheckpointLocation string `json:"checkpoint_location,omitempty"`
}

type WorkflowMetrics struct {
	Status         string `json:"status"`
	TotalRuns      int    `json:"total_runs"`
	SuccessfulRuns int    `json:"successful_runs"`
	FailedRuns     int    `json:"failed_runs"`
}
