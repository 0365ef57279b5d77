// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces (repositories) defined in the internal/store package.
// It handles the details of database connections, query execution, and data
// mapping between domain entities and database records. The digest job
// claim coordination lives here: single-statement conditional updates on
// the extraction_status column are the only mutual-exclusion mechanism.
package postgres
