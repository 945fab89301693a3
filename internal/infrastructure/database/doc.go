// Package database provides SQLite connectivity and schema migrations.
//
// The bridge stores only its sync cycle history here; unit state always
// comes from the unit itself.
//
// Open configures WAL mode and a busy timeout and pins the pool to one
// connection. Migrate applies embedded migration files in version order,
// one transaction per file, and records them in schema_migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
//
// Migration files are pairs named YYYYMMDD_HHMMSS_description.up.sql and
// .down.sql. Migrations are additive: new columns are nullable or have a
// default.
package database
