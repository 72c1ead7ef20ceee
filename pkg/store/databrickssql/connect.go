package databrickssql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/databricks/databricks-sdk-go/config"
	_ "github.com/databricks/databricks-sql-go"
)

const (
	driverName       = "databricks"
	defaultPort      = 443
	warehousePathFmt = "/sql/1.0/warehouses/%s"
)

var ErrIncompleteConfig = errors.New("workspace host, token and warehouse http path are required")

// HTTPPath returns the HTTP path of a SQL warehouse.
func HTTPPath(warehouseID string) string {
	return fmt.Sprintf(warehousePathFmt, warehouseID)
}

// DSN builds a token-authenticated databricks-sql-go connection string.
func DSN(cfg *config.Config, httpPath string) (string, error) {
	if cfg == nil || cfg.Host == "" || cfg.Token == "" || httpPath == "" {
		return "", ErrIncompleteConfig
	}
	host := strings.TrimSuffix(cfg.Host, "/")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	if !strings.HasPrefix(httpPath, "/") {
		httpPath = "/" + httpPath
	}
	return fmt.Sprintf("token:%s@%s:%d%s", cfg.Token, host, defaultPort, httpPath), nil
}

// Open prepares a pool against the warehouse. No connection is made until first use.
func Open(cfg *config.Config, httpPath string) (*sql.DB, error) {
	dsn, err := DSN(cfg, httpPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open databricks sql connection: %w", err)
	}
	return db, nil
}
