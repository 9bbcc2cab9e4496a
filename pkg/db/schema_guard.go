package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Column is one expected column of a guarded table.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// TableSchema is the expected shape of one table.
type TableSchema struct {
	Name    string
	Columns []Column
}

// SchemaGuard checks at startup that the live schema carries the columns the
// queries depend on. It validates presence and base type, not sizes.
type SchemaGuard struct {
	db *sql.DB
}

func NewSchemaGuard(db *sql.DB) *SchemaGuard {
	return &SchemaGuard{db: db}
}

// ValidateTables checks every expected table, failing on the first mismatch.
func (g *SchemaGuard) ValidateTables(schemas []TableSchema) error {
	for _, schema := range schemas {
		if err := g.validateTable(schema); err != nil {
			return err
		}
	}
	return nil
}

func (g *SchemaGuard) validateTable(schema TableSchema) error {
	query := `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := g.db.Query(query, schema.Name)
	if err != nil {
		return fmt.Errorf("failed to query schema for %s: %w", schema.Name, err)
	}
	defer rows.Close()

	actual := make(map[string]Column)
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		actual[name] = Column{Name: name, DataType: dataType, Nullable: nullable == "YES"}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read schema for %s: %w", schema.Name, err)
	}

	if len(actual) == 0 {
		return fmt.Errorf("table %s does not exist", schema.Name)
	}

	for _, expected := range schema.Columns {
		column, ok := actual[expected.Name]
		if !ok {
			return fmt.Errorf("table %s missing column %s", schema.Name, expected.Name)
		}
		if !strings.HasPrefix(strings.ToLower(column.DataType), strings.ToLower(expected.DataType)) {
			return fmt.Errorf("table %s column %s has type %s, expected %s",
				schema.Name, expected.Name, column.DataType, expected.DataType)
		}
	}

	return nil
}
