// Package postgres implements store.Store on PostgreSQL for durable,
// multi-node deployments. Jobs and DLQ entries live in plain tables with
// explicit columns; state transitions run as a row-locked read followed
// by a conditional UPDATE inside one transaction, so the compare-and-set
// contract holds across concurrent dispatchers.
//
// Schema management is embedded: call Migrate once at startup and the
// store applies any pending .sql files in order, tracking them in the
// videogen_migrations table.
package postgres
