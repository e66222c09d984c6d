// Package database provides the SQLite store behind the event journal.
//
// The store is a single file opened in WAL mode with one writer
// connection. The schema is versioned by migrations read from an fs.FS;
// the binary embeds its own set through the migrations package.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
