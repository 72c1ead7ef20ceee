package domain

import "time"

type SetupStatus string

const (
	SetupStatusSuccess SetupStatus = "success"
	SetupStatusError   SetupStatus = "error"
)

// Record is an opaque JSON object returned by the Databricks REST API.
type Record map[string]any

// String returns the string value stored under key, or "" when absent.
func (r Record) String(key string) string {
	if r == nil {
		return ""
	}
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

func (r Record) Empty() bool {
	return len(r) == 0
}

// Step names of the environment setup sequence, in execution order.
const (
	StepMetastore           = "metastore"
	StepMetastoreAssignment = "metastore_assignment"
	StepPropagation         = "propagation"
	StepCatalog             = "catalog"
	StepSchemaPrefix        = "schema:"
	StepServerless          = "serverless"
	StepWarehouse           = "warehouse"
)

// MedallionSchemas are created under every environment catalog.
var MedallionSchemas = []string{"bronze", "silver", "gold", "workspace"}

type StepOutcome struct {
	Name      string
	Succeeded bool
	Resumed   bool
	Error     string
}

type SetupResult struct {
	Metastore Record
	Catalog   Record
	Schemas   []Record
	Warehouse Record
	Status    SetupStatus
	Error     string
	Steps     []StepOutcome
}

func NewSetupResult() *SetupResult {
	return &SetupResult{
		Metastore: Record{},
		Catalog:   Record{},
		Schemas:   []Record{},
		Warehouse: Record{},
		Status:    SetupStatusSuccess,
	}
}

// Checkpoint is a persisted step record of a previous setup run.
type Checkpoint struct {
	Environment string
	Step        string
	RunID       string
	Record      Record
	SavedAt     time.Time
}
