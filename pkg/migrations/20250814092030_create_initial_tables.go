package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE manga (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				author TEXT,
				description TEXT,
				cover_url TEXT,
				status TEXT NOT NULL DEFAULT 'ongoing',
				volume_count INTEGER NOT NULL DEFAULT 0,
				unread_count INTEGER NOT NULL DEFAULT 0,
				processing_count INTEGER NOT NULL DEFAULT 0,
				last_read TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// Titles are unique per user, not globally.
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_manga_title_user_id ON manga (title, user_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_manga_user_id ON manga (user_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE volumes (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				manga_id TEXT REFERENCES manga (id) ON DELETE CASCADE NOT NULL,
				volume_number INTEGER NOT NULL,
				title TEXT NOT NULL,
				cover_url TEXT,
				status TEXT NOT NULL DEFAULT 'uploaded',
				is_read BOOLEAN NOT NULL DEFAULT FALSE,
				progress REAL NOT NULL DEFAULT 0,
				page_count INTEGER NOT NULL DEFAULT 0,
				storage_path TEXT,
				metadata TEXT,
				processing_message TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_volumes_manga_id_volume_number ON volumes (manga_id, volume_number)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_volumes_manga_id ON volumes (manga_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE pages (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				volume_id TEXT REFERENCES volumes (id) ON DELETE CASCADE NOT NULL,
				page_number INTEGER NOT NULL,
				image_path TEXT NOT NULL,
				image_url TEXT NOT NULL,
				text_blocks TEXT,
				is_read BOOLEAN NOT NULL DEFAULT FALSE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_pages_volume_id ON pages (volume_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"pages", "volumes", "manga"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
