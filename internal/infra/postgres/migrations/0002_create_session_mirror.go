package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_session_mirror.sql
var createSessionMirrorSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createSessionMirrorSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS session_answers; DROP TABLE IF EXISTS session_participants; DROP TABLE IF EXISTS sessions`)
			return err
		},
	)
}
