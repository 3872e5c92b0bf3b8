// Package stores persists content types in SQLite. Schema changes ship as
// embedded migrations applied by Migrate.
package stores
