// Package domain defines core types, interfaces, and errors for the
// spreadsheet store.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ConnectionError indicates the store could not be opened or reached.
// Fatal to any operation attempted on that connection; never retried.
type ConnectionError struct {
	Message string
	Err     error
}

func (e *ConnectionError) Error() string { return e.Message }
func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaEvolutionError indicates a DDL statement against the shared row
// table failed. Fatal for table creation, non-fatal for column adds.
type SchemaEvolutionError struct {
	Message string
	Err     error
}

func (e *SchemaEvolutionError) Error() string { return e.Message }
func (e *SchemaEvolutionError) Unwrap() error { return e.Err }

// BatchInsertError indicates a chunk transaction failed and was rolled
// back. Terminal for the whole import: chunk insertion is not idempotent.
type BatchInsertError struct {
	Message string
	Err     error
}

func (e *BatchInsertError) Error() string { return e.Message }
func (e *BatchInsertError) Unwrap() error { return e.Err }

// StrategyFailure indicates a single import strategy failed. Recovered
// locally by advancing to the next strategy in the chain.
type StrategyFailure struct {
	Strategy string
	Message  string
	Err      error
}

func (e *StrategyFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Strategy, e.Message)
}
func (e *StrategyFailure) Unwrap() error { return e.Err }

// MigrationError indicates the one-shot schema upgrade failed.
type MigrationError struct {
	Message string
	Err     error
}

func (e *MigrationError) Error() string { return e.Message }
func (e *MigrationError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrConnection wraps err as a ConnectionError.
func ErrConnection(err error, format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrSchemaEvolution wraps err as a SchemaEvolutionError.
func ErrSchemaEvolution(err error, format string, args ...interface{}) *SchemaEvolutionError {
	return &SchemaEvolutionError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrBatchInsert wraps err as a BatchInsertError.
func ErrBatchInsert(err error, format string, args ...interface{}) *BatchInsertError {
	return &BatchInsertError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrStrategy wraps err as a StrategyFailure for the named strategy.
func ErrStrategy(strategy string, err error, format string, args ...interface{}) *StrategyFailure {
	return &StrategyFailure{Strategy: strategy, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrMigration wraps err as a MigrationError.
func ErrMigration(err error, format string, args ...interface{}) *MigrationError {
	return &MigrationError{Message: fmt.Sprintf(format, args...), Err: err}
}
