package ingestion

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/samber/lo"
)

//go:embed templates/*.py.tmpl
var templateFS embed.FS

const (
	batchTemplate     = "batch.py.tmpl"
	streamingTemplate = "streaming.py.tmpl"
)

var codeTemplates = template.Must(
	template.New("ingestion").
		Funcs(funcMap()).
		ParseFS(templateFS, "templates/*.py.tmpl"),
)

func funcMap() template.FuncMap {
	return lo.Assign(sprig.TxtFuncMap(), template.FuncMap{
		"pyString": pyString,
		"pyArgs":   pyArgs,
		"pyList": func(values []string) string {
			return "[" + pyArgs(values) + "]"
		},
	})
}

// pyString renders s as a double-quoted Python string literal.
func pyString(s string) string {
	return strconv.Quote(s)
}

func pyArgs(values []string) string {
	return strings.Join(lo.Map(values, func(v string, _ int) string { return pyString(v) }), ", ")
}

type codeData struct {
	GeneratedAt        string
	SourcePath         string
	TargetTable        string
	CheckpointLocation string
	FileFormat         string
	Delimiter          string
	OutputMode         string
	TableName          string
	SchemaName         string
	MaxFilesPerTrigger int
	PartitionColumns   []string
	MergeKeys          []string
}

func render(name string, data codeData) (string, error) {
	var buf bytes.Buffer
	if err := codeTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
