// Package database opens and migrates the Fleet Core SQLite store.
//
// The store holds the device registry, sealed credential blobs, sync ledger
// rows, webhook registrations and the event log, so the database file is
// created with 0600 permissions and opened with foreign keys enforced. WAL
// mode keeps reads flowing while the single writer commits.
//
// Migrations are plain SQL file pairs (<version>_<name>.up.sql plus an
// optional .down.sql) applied in version order from any fs.FS, normally the
// embedded set in the top-level migrations package:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Files()); err != nil {
//	    return err
//	}
//
// Each migration commits in its own transaction; re-running Migrate after a
// failure resumes from the migration that failed.
package database
