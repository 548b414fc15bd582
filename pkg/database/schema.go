package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a live database against the tables and indexes the
// store depends on.
type SchemaValidator struct {
	db      *sql.DB
	dialect Dialect
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, dialect Dialect) *SchemaValidator {
	return &SchemaValidator{db: db, dialect: dialect}
}

// RequiredTables maps each table to what it stores.
var RequiredTables = map[string]string{
	"sessions":          "Identity sessions for teachers and students",
	"rooms":             "Room directory",
	"room_members":      "Membership ledger",
	"room_feedback":     "Persisted reactions",
	"schema_migrations": "Migration tracking",
}

// RequiredIndexes maps each index to the query it serves.
var RequiredIndexes = map[string]string{
	"idx_rooms_active_code":         "Code uniqueness among active rooms",
	"idx_rooms_code":                "Room lookup by code",
	"idx_room_members_open":         "At most one open membership per session and room",
	"idx_room_members_room":         "Live participant counts",
	"idx_room_feedback_room_moment": "Report ordering",
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for table, description := range RequiredTables {
		exists, err := v.count(v.dialect.tableExistsQuery(), table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies that all required indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for index, purpose := range RequiredIndexes {
		exists, err := v.count(v.dialect.indexExistsQuery(), index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

func (v *SchemaValidator) count(query, name string) (bool, error) {
	var n int
	if err := v.db.QueryRow(query, name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
