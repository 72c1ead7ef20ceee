package domain

type ColumnCategory string

const (
	ColumnCategoryIdentifier   ColumnCategory = "identifier"
	ColumnCategoryTemporal     ColumnCategory = "temporal"
	ColumnCategoryPersonalData ColumnCategory = "personal_data"
	ColumnCategoryFinancial    ColumnCategory = "financial"
	ColumnCategoryGeneral      ColumnCategory = "general"
)

type ColumnInfo struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Comment  string         `json:"comment,omitempty"`
	Category ColumnCategory `json:"category"`
}

type TableAnalysis struct {
	RowCount    int64        `json:"row_count"`
	ColumnCount int          `json:"column_count"`
	Columns     []ColumnInfo `json:"columns"`
}

type TableIdentifier struct {
	CatalogName string `json:"catalog_name"`
	SchemaName  string `json:"schema_name"`
	TableName   string `json:"table_name"`
}

type GenieRoomConfig struct {
	RoomName         string            `json:"room_name"`
	DisplayName      string            `json:"display_name"`
	Description      string            `json:"description"`
	SQLWarehouseID   *string           `json:"sql_warehouse_id"`
	Instructions     string            `json:"instructions"`
	TableIdentifiers []TableIdentifier `json:"table_identifiers"`
}

type DataLineage struct {
	SourceSystem         string   `json:"source_system"`
	IngestionMethod      string   `json:"ingestion_method"`
	CreatedBy            string   `json:"created_by"`
	CreationTimestamp    string   `json:"creation_timestamp"`
	UpstreamDependencies []string `json:"upstream_dependencies"`
	DownstreamConsumers  []string `json:"downstream_consumers"`
	DataQualityRules     []string `json:"data_quality_rules"`
}

type GenieResult struct {
	Success           bool              `json:"success"`
	Error             string            `json:"error,omitempty"`
	RoomName          string            `json:"room_name,omitempty"`
	RoomURL           string            `json:"room_url,omitempty"`
	ConfigFile        string            `json:"config_file,omitempty"`
	CatalogStatus     string            `json:"catalog_status,omitempty"`
	TableName         string            `json:"table_name,omitempty"`
	TagsApplied       map[string]string `json:"tags_applied,omitempty"`
	LineageConfigured bool              `json:"lineage_configured"`
	Lineage           *DataLineage      `json:"lineage,omitempty"`
	Analysis          *TableAnalysis    `json:"table_analysis,omitempty"`
	Config            *GenieRoomConfig  `json:"genie_config,omitempty"`
}
