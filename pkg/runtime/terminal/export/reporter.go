package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/de-tools/dino/pkg/models/domain"
)

type TableConfig struct {
	NameWidth   int
	StatusWidth int
	DetailWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		NameWidth:   28,
		StatusWidth: 10,
		DetailWidth: 60,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

func (c *Reporter) funcMap() template.FuncMap {
	return template.FuncMap{
		"formatRow": func(name string, status string, detail string) string {
			if len(detail) > c.config.DetailWidth {
				detail = detail[:c.config.DetailWidth-3] + "..."
			}
			return fmt.Sprintf("| %-*s | %-*s | %-*s |",
				c.config.NameWidth, name,
				c.config.StatusWidth, status,
				c.config.DetailWidth, detail)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+",
				strings.Repeat("-", c.config.NameWidth+2),
				strings.Repeat("-", c.config.StatusWidth+2),
				strings.Repeat("-", c.config.DetailWidth+2))
		},
		"outcome": func(s domain.StepOutcome) string {
			switch {
			case s.Resumed:
				return "resumed"
			case s.Succeeded:
				return "ok"
			default:
				return "failed"
			}
		},
		"field": func(r domain.Record, key string) string {
			if v := r.String(key); v != "" {
				return v
			}
			return "-"
		},
		"yesno": func(b bool) string {
			if b {
				return "yes"
			}
			return "no"
		},
	}
}

func (c *Reporter) render(name, tmpl string, data any) error {
	t, err := template.New(name).Funcs(c.funcMap()).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(c.writer, data)
}

const setupTemplate = `
Databricks environment setup: {{.Status}}
{{- if .Error}}
Error: {{.Error}}
{{- end}}

{{separator}}
{{formatRow "Step" "Result" "Detail"}}
{{separator}}
{{range .Steps}}{{formatRow .Name (outcome .) .Error}}
{{end}}{{separator}}

Metastore: {{field .Metastore "metastore_id"}}
Catalog:   {{field .Catalog "name"}}
Schemas:   {{range $i, $s := .Schemas}}{{if $i}}, {{end}}{{field $s "full_name"}}{{end}}
Warehouse: {{field .Warehouse "name"}} ({{field .Warehouse "id"}})
`

func (c *Reporter) HandleSetup(result *domain.SetupResult) error {
	if result == nil {
		_, err := fmt.Fprintln(c.writer, "Databricks environment was not configured.")
		return err
	}
	return c.render("setup", setupTemplate, result)
}

const teardownTemplate = `
Teardown of {{.Environment}}

{{separator}}
{{formatRow "Step" "Result" "Detail"}}
{{separator}}
{{range .Steps}}{{formatRow .Name (outcome .) .Error}}
{{end}}{{separator}}
`

func (c *Reporter) HandleTeardown(environment string, steps []domain.StepOutcome) error {
	return c.render("teardown", teardownTemplate, map[string]any{
		"Environment": environment,
		"Steps":       steps,
	})
}

// IngestionSummary groups everything one dino-ingest invocation produced.
type IngestionSummary struct {
	Ingestion domain.IngestionResult
	Workflow  *domain.WorkflowResult
	Genie     *domain.GenieResult
}

const ingestionTemplate = `
Ingestion configured
  Table:      {{.Ingestion.TableFullName}}
  Format:     {{.Ingestion.DetectedFormat}}
  Mode:       {{.Ingestion.OutputMode}}
  Automated:  {{yesno .Ingestion.IsAutomated}}
{{- if .Ingestion.IsAutomated}}
  Checkpoint: {{.Ingestion.CheckpointLocation}}
{{- end}}
  Code file:  {{.Ingestion.IngestionFile}}
{{- with .Workflow}}
{{if .Success}}
Workflow created: {{.WorkflowName}}
  File: {{.WorkflowFile}}
{{- else}}
Workflow failed: {{.Error}}
{{- end}}
{{- end}}
{{- with .Genie}}
{{if .Success}}
Genie configured
  Room:   {{.RoomName}}
  Status: {{.CatalogStatus}}
  Config: {{.ConfigFile}}
{{- if .RoomURL}}
  URL:    {{.RoomURL}}
{{- end}}
{{- else}}
Genie failed: {{.Error}}
{{- end}}
{{- end}}

Next steps:
  1. Run {{.Ingestion.IngestionFile}} in a Databricks notebook
{{- if .Workflow}}
  2. Import the workflow JSON into Databricks Jobs
{{- end}}
{{- if .Genie}}
  3. Open the Genie room for natural language queries
{{- end}}
  4. Monitor {{.Ingestion.TableFullName}} in Unity Catalog
`

func (c *Reporter) HandleIngestion(summary IngestionSummary) error {
	return c.render("ingestion", ingestionTemplate, summary)
}

const environmentsTemplate = `
{{separator}}
{{formatRow "Environment" "Steps" "Last run"}}
{{separator}}
{{range .}}{{formatRow .Name .Steps .RunID}}
{{end}}{{separator}}
`

type EnvironmentRow struct {
	Name  string
	Steps string
	RunID string
}

func (c *Reporter) HandleEnvironments(rows []EnvironmentRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(c.writer, "No environments recorded.")
		return err
	}
	return c.render("environments", environmentsTemplate, rows)
}

type Example struct {
	Title   string
	Command string
}

const examplesTemplate = `Dino SDK usage examples:
{{range $i, $e := .}}
{{add $i}}. {{$e.Title}}:
   {{$e.Command}}
{{end}}
Use --help to see every option.
`

func (c *Reporter) HandleExamples(examples []Example) error {
	t, err := template.New("examples").Funcs(template.FuncMap{
		"add": func(i int) int { return i + 1 },
	}).Parse(examplesTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(c.writer, examples)
}
