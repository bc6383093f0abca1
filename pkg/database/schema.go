package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to the migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sites":             "Site record storage",
		"current_site":      "Current-site pointer",
		"settings":          "Named scalar settings",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	siteColumns := map[string]string{
		"id":      "TEXT",
		"siteurl": "TEXT",
		"token":   "TEXT",
		"info":    "TEXT",
	}
	if err := v.validateColumns("sites", siteColumns); err != nil {
		return fmt.Errorf("sites table structure invalid: %w", err)
	}

	currentColumns := map[string]string{
		"singleton": "INTEGER",
		"site_id":   "TEXT",
	}
	if err := v.validateColumns("current_site", currentColumns); err != nil {
		return fmt.Errorf("current_site table structure invalid: %w", err)
	}

	settingColumns := map[string]string{
		"key":   "TEXT",
		"value": "TEXT",
	}
	if err := v.validateColumns("settings", settingColumns); err != nil {
		return fmt.Errorf("settings table structure invalid: %w", err)
	}

	return nil
}

// tableExists checks if a table exists in the database
func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	err := v.db.QueryRow(query, tableName).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns verifies that a table contains the expected columns/types
func (v *SchemaValidator) validateColumns(tableName string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return fmt.Errorf("failed to query table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		actual[name] = colType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, expectedType := range expected {
		actualType, exists := actual[column]
		if !exists {
			return fmt.Errorf("column %s does not exist", column)
		}
		if actualType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", column, actualType, expectedType)
		}
	}

	return nil
}
