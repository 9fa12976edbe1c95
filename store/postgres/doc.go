// Package postgres stores accounts, refresh tokens and secondary
// credentials in PostgreSQL through sqlx.
//
// Either the pgx stdlib driver ([DriverPgx], the default) or lib/pq
// ([DriverPQ]) can back the pool. [Store.Migrate] applies the embedded SQL
// migrations in order and records them in schema_migrations.
//
// Lockout updates and secondary credential consumption run in a
// transaction that locks the affected row with SELECT ... FOR UPDATE, so
// concurrent failures cannot lose a transition into the locked state and a
// code is consumed at most once.
package postgres
