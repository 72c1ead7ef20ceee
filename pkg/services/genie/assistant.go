package genie

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/services/ingestion"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var textTemplates = template.Must(
	template.New("genie").
		Funcs(sprig.TxtFuncMap()).
		ParseFS(templateFS, "templates/*.tmpl"),
)

const (
	DataClassification = "bronze"
	CatalogStatusDone  = "completed"
)

var ErrNoConnection = errors.New("no SQL warehouse connection")

type Options struct {
	OutputDir    string
	WorkspaceURL string
	WarehouseID  string
	Now          func() time.Time
}

// Assistant catalogs a freshly ingested table and prepares a Genie room for it.
type Assistant struct {
	db      *sql.DB
	catalog string
	schema  string
	table   string
	opts    Options
}

// NewAssistant accepts a nil db. Setup then reports ErrNoConnection.
func NewAssistant(db *sql.DB, catalog, schema, table string, opts Options) (*Assistant, error) {
	for kind, name := range map[string]string{"catalog": catalog, "schema": schema, "table": table} {
		if err := ingestion.ValidateIdentifier(kind, name); err != nil {
			return nil, err
		}
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assistant{db: db, catalog: catalog, schema: schema, table: table, opts: opts}, nil
}

func (a *Assistant) TableFullName() string {
	return fmt.Sprintf("%s.%s.%s", a.catalog, a.schema, a.table)
}

func (a *Assistant) RoomName() string {
	return fmt.Sprintf("Sala_Genie_%s_%s", a.schema, a.table)
}

func (a *Assistant) ConfigFileName() string {
	return fmt.Sprintf("genie_config_%s_%s.json", a.schema, a.table)
}

func CategorizeColumn(name string) domain.ColumnCategory {
	n := strings.ToLower(name)
	switch {
	case n == "id" || strings.HasSuffix(n, "_id"):
		return domain.ColumnCategoryIdentifier
	case slices.Contains([]string{"created_at", "updated_at", "timestamp", "date"}, n):
		return domain.ColumnCategoryTemporal
	case slices.Contains([]string{"email", "phone", "cpf", "cnpj"}, n):
		return domain.ColumnCategoryPersonalData
	case strings.Contains(n, "amount"), strings.Contains(n, "price"), strings.Contains(n, "value"):
		return domain.ColumnCategoryFinancial
	default:
		return domain.ColumnCategoryGeneral
	}
}

func RowCountRange(rows int64) string {
	switch {
	case rows < 1_000:
		return "small"
	case rows < 100_000:
		return "medium"
	case rows < 10_000_000:
		return "large"
	default:
		return "very_large"
	}
}

// AnalyzeTable reads the column layout and row count of the table.
func (a *Assistant) AnalyzeTable(ctx context.Context) (*domain.TableAnalysis, error) {
	logger := zerolog.Ctx(ctx)

	rows, err := a.db.QueryContext(ctx, "DESCRIBE TABLE "+a.TableFullName())
	if err != nil {
		return nil, fmt.Errorf("describe table failed: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close describe rows")
		}
	}(rows)

	var columns []domain.ColumnInfo
	for rows.Next() {
		var (
			name, dataType string
			comment        sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &comment); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		// partition and detail sections follow a blank or '#' row
		if name == "" || strings.HasPrefix(name, "#") {
			break
		}
		columns = append(columns, domain.ColumnInfo{
			Name:     name,
			Type:     dataType,
			Comment:  comment.String,
			Category: CategorizeColumn(name),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var count int64
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+a.TableFullName()).Scan(&count); err != nil {
		return nil, fmt.Errorf("row count failed: %w", err)
	}

	return &domain.TableAnalysis{
		RowCount:    count,
		ColumnCount: len(columns),
		Columns:     columns,
	}, nil
}

type categoryCount struct {
	Name  string
	Count int
}

func columnsIn(analysis *domain.TableAnalysis, category domain.ColumnCategory) []string {
	return lo.FilterMap(analysis.Columns, func(c domain.ColumnInfo, _ int) (string, bool) {
		return c.Name, c.Category == category
	})
}

func (a *Assistant) Description(analysis *domain.TableAnalysis) (string, error) {
	var categories []categoryCount
	for _, c := range analysis.Columns {
		if c.Category == domain.ColumnCategoryGeneral {
			continue
		}
		i := slices.IndexFunc(categories, func(cc categoryCount) bool { return cc.Name == string(c.Category) })
		if i < 0 {
			categories = append(categories, categoryCount{Name: string(c.Category)})
			i = len(categories) - 1
		}
		categories[i].Count++
	}

	return execute("description", map[string]any{
		"Table":       a.TableFullName(),
		"Schema":      a.schema,
		"Catalog":     a.catalog,
		"RowCount":    humanize.Comma(analysis.RowCount),
		"ColumnCount": len(analysis.Columns),
		"Identifiers": columnsIn(analysis, domain.ColumnCategoryIdentifier),
		"Temporal":    columnsIn(analysis, domain.ColumnCategoryTemporal),
		"Financial":   columnsIn(analysis, domain.ColumnCategoryFinancial),
		"Personal":    columnsIn(analysis, domain.ColumnCategoryPersonalData),
		"Categories":  categories,
		"GeneratedAt": a.opts.Now().Format(time.DateTime),
	})
}

func (a *Assistant) RoomConfig(analysis *domain.TableAnalysis) (*domain.GenieRoomConfig, error) {
	description, err := a.Description(analysis)
	if err != nil {
		return nil, err
	}
	instructions, err := execute("instructions", map[string]any{
		"Table":     a.TableFullName(),
		"Schema":    a.schema,
		"TableName": a.table,
		"RowCount":  analysis.RowCount,
	})
	if err != nil {
		return nil, err
	}

	cfg := &domain.GenieRoomConfig{
		RoomName:     a.RoomName(),
		DisplayName:  "Analysis of " + titleCase(a.table),
		Description:  description,
		Instructions: instructions,
		TableIdentifiers: []domain.TableIdentifier{
			{CatalogName: a.catalog, SchemaName: a.schema, TableName: a.table},
		},
	}
	if a.opts.WarehouseID != "" {
		cfg.SQLWarehouseID = lo.ToPtr(a.opts.WarehouseID)
	}
	return cfg, nil
}

// Tags derives the Unity Catalog tags for the analysed table.
func (a *Assistant) Tags(analysis *domain.TableAnalysis) map[string]string {
	tags := map[string]string{
		"dino_sdk_managed":    "true",
		"ingestion_date":      a.opts.Now().Format(time.DateOnly),
		"data_classification": DataClassification,
		"row_count_range":     RowCountRange(analysis.RowCount),
	}
	if len(columnsIn(analysis, domain.ColumnCategoryPersonalData)) > 0 {
		tags["contains_pii"] = "true"
		tags["privacy_level"] = "sensitive"
	}
	if len(columnsIn(analysis, domain.ColumnCategoryFinancial)) > 0 {
		tags["contains_financial"] = "true"
		tags["compliance_required"] = "true"
	}
	return tags
}

// ApplyTags issues one statement per tag, in key order.
func (a *Assistant) ApplyTags(ctx context.Context, tags map[string]string) error {
	keys := lo.Keys(tags)
	slices.Sort(keys)
	for _, k := range keys {
		stmt := fmt.Sprintf("ALTER TABLE %s SET TAGS (%s = %s)", a.TableFullName(), sqlString(k), sqlString(tags[k]))
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply tag %s: %w", k, err)
		}
	}
	return nil
}

func columnComment(c domain.ColumnInfo) string {
	switch c.Category {
	case domain.ColumnCategoryIdentifier:
		return "Unique identifier - " + c.Name
	case domain.ColumnCategoryTemporal:
		return "Temporal field - " + c.Name
	case domain.ColumnCategoryPersonalData:
		return "Sensitive personal data - " + c.Name
	case domain.ColumnCategoryFinancial:
		return "Financial data - " + c.Name
	default:
		return "Data field - " + c.Name
	}
}

func (a *Assistant) ApplyComments(ctx context.Context, analysis *domain.TableAnalysis) error {
	description, err := a.Description(analysis)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("COMMENT ON TABLE %s IS %s", a.TableFullName(), sqlString(description))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to comment table: %w", err)
	}

	for _, c := range analysis.Columns {
		stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s COMMENT %s",
			a.TableFullName(), quoteIdent(c.Name), sqlString(columnComment(c)))
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to comment column %s: %w", c.Name, err)
		}
	}
	return nil
}

func (a *Assistant) Lineage() domain.DataLineage {
	return domain.DataLineage{
		SourceSystem:         "dino_sdk_ingestion",
		IngestionMethod:      "auto_loader",
		CreatedBy:            "dino_sdk",
		CreationTimestamp:    a.opts.Now().Format(time.RFC3339),
		UpstreamDependencies: []string{},
		DownstreamConsumers:  []string{},
		DataQualityRules:     []string{"auto_schema_evolution", "duplicate_detection", "null_value_monitoring"},
	}
}

func (a *Assistant) saveConfig(cfg *domain.GenieRoomConfig) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode genie config: %w", err)
	}
	if err := os.MkdirAll(a.opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	file := filepath.Join(a.opts.OutputDir, a.ConfigFileName())
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write genie config: %w", err)
	}
	return file, nil
}

// Setup analyses the table, tags and comments it, and writes the Genie room
// configuration for manual creation. Tag and comment failures are only logged.
func (a *Assistant) Setup(ctx context.Context) domain.GenieResult {
	logger := zerolog.Ctx(ctx).With().Str("table", a.TableFullName()).Logger()

	fail := func(err error) domain.GenieResult {
		logger.Warn().Err(err).Msg("genie setup failed")
		return domain.GenieResult{Success: false, Error: err.Error(), TableName: a.TableFullName()}
	}

	if a.db == nil {
		return fail(ErrNoConnection)
	}

	analysis, err := a.AnalyzeTable(ctx)
	if err != nil {
		return fail(fmt.Errorf("table analysis failed: %w", err))
	}
	logger.Info().Int("columns", analysis.ColumnCount).Int64("rows", analysis.RowCount).Msg("table analysed")

	cfg, err := a.RoomConfig(analysis)
	if err != nil {
		return fail(err)
	}

	tags := a.Tags(analysis)
	if err := a.ApplyTags(ctx, tags); err != nil {
		logger.Warn().Err(err).Msg("tags not applied")
		tags = nil
	}

	file, err := a.saveConfig(cfg)
	if err != nil {
		return fail(err)
	}

	if err := a.ApplyComments(ctx, analysis); err != nil {
		logger.Warn().Err(err).Msg("comments not applied")
	}

	result := domain.GenieResult{
		Success:           true,
		RoomName:          a.RoomName(),
		ConfigFile:        file,
		CatalogStatus:     CatalogStatusDone,
		TableName:         a.TableFullName(),
		TagsApplied:       tags,
		LineageConfigured: true,
		Lineage:           lo.ToPtr(a.Lineage()),
		Analysis:          analysis,
		Config:            cfg,
	}
	if a.opts.WorkspaceURL != "" {
		result.RoomURL = strings.TrimSuffix(a.opts.WorkspaceURL, "/") + "/genie/rooms"
	}
	return result
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func titleCase(s string) string {
	return strings.Join(lo.Map(strings.Split(s, "_"), func(w string, _ int) string {
		if w == "" {
			return w
		}
		return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}), "_")
}

// sqlString quotes s as a Spark SQL string literal.
func sqlString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
