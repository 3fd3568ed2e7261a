// Package archive keeps timeline entries that fell out of the bounded
// in-memory timeline, in a SQLite file.
package archive

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"nestling/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Archive wraps the SQLite database holding evicted entries.
type Archive struct {
	db  *sqlx.DB
	now func() time.Time
}

func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, errors.New("empty archive path")
	}
	db, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db, now: time.Now}, nil
}

func (a *Archive) Close() error { return a.db.Close() }

func runMigrations(dbx *sqlx.DB) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error creating migrations source: %w", err)
	}
	i, err := sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("error creating sqlite instance for migration: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", d, "sqlite", i)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating: %w", err)
	}
	slog.Debug("archive migrated")
	return nil
}

type row struct {
	ID              string `db:"id"`
	CreatedAt       string `db:"created_at"`
	Text            string `db:"text"`
	ScreenName      string `db:"screen_name"`
	ProfileImageURL string `db:"profile_image_url"`
	Unread          bool   `db:"unread"`
	ArchivedAt      int64  `db:"archived_at"`
}

func idKey(id model.TweetID) string { return fmt.Sprintf("%020d", uint64(id)) }

func toRow(e model.Entry, at int64) row {
	return row{
		ID:              idKey(e.ID()),
		CreatedAt:       e.Tweet.CreatedAt,
		Text:            e.Tweet.Text,
		ScreenName:      e.Tweet.User.ScreenName,
		ProfileImageURL: e.Tweet.User.ProfileImageURL,
		Unread:          e.Unread,
		ArchivedAt:      at,
	}
}

func (r row) entry() (model.Entry, error) {
	id, err := model.ParseTweetID(r.ID)
	if err != nil {
		return model.Entry{}, fmt.Errorf("archived id %q: %w", r.ID, err)
	}
	return model.Entry{
		Tweet: model.Tweet{
			CreatedAt: r.CreatedAt,
			ID:        id,
			Text:      r.Text,
			User:      model.Author{ScreenName: r.ScreenName, ProfileImageURL: r.ProfileImageURL},
		},
		Unread: r.Unread,
	}, nil
}

// Put stores entries in one transaction. Ids already archived are left
// untouched.
func (a *Archive) Put(ctx context.Context, entries []model.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	const q = `INSERT OR IGNORE INTO entries (id, created_at, text, screen_name, profile_image_url, unread, archived_at)
	VALUES (:id, :created_at, :text, :screen_name, :profile_image_url, :unread, :archived_at);`

	at := a.now().Unix()
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range entries {
		if _, err := tx.NamedExecContext(ctx, q, toRow(e, at)); err != nil {
			return fmt.Errorf("archive entry %s: %w", e.ID(), err)
		}
	}
	return tx.Commit()
}

// ByAuthor returns up to limit archived entries by screenName, newest first.
// limit <= 0 returns all of them.
func (a *Archive) ByAuthor(ctx context.Context, screenName string, limit int) ([]model.Entry, error) {
	const q = `SELECT * FROM entries WHERE screen_name = ? ORDER BY id DESC LIMIT ?;`
	if limit <= 0 {
		limit = -1
	}
	var rows []row
	if err := a.db.SelectContext(ctx, &rows, q, screenName, limit); err != nil {
		return nil, err
	}
	out := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM entries;`); err != nil {
		return 0, err
	}
	return n, nil
}
