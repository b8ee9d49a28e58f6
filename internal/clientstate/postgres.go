package clientstate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"noorstitching.org/internal/backend"
)

// Migrations holds the schema of the Postgres store under "migrations/".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations to hand to the migrator.
const MigrationsDir = "migrations"

// Postgres stores client state in the client_state table.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPostgres opens a pgx-backed pool for dsn.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// DB exposes the pool for migrations.
func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Load(ctx context.Context, clientID string) (State, error) {
	if err := checkClient(clientID); err != nil {
		return State{}, err
	}
	st := State{ClientID: clientID}
	var access, refresh sql.NullString
	err := p.db.QueryRowContext(ctx, `
		select access_token, refresh_token, theme, updated_at
		from client_state where client_id = $1
	`, clientID).Scan(&access, &refresh, &st.Theme, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return emptyState(clientID), nil
	}
	if err != nil {
		return State{}, err
	}
	st.AccessToken = access.String
	st.RefreshToken = refresh.String
	return st, nil
}

func (p *Postgres) SaveTokens(ctx context.Context, clientID string, pair backend.TokenPair) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		insert into client_state(client_id, access_token, refresh_token, theme, updated_at)
		values ($1, $2, $3, 'system', $4)
		on conflict (client_id) do update
		set access_token = excluded.access_token,
		    refresh_token = excluded.refresh_token,
		    updated_at = excluded.updated_at
	`, clientID, nullable(pair.Access), nullable(pair.Refresh), p.now().UTC())
	return err
}

func (p *Postgres) ClearTokens(ctx context.Context, clientID string) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		update client_state
		set access_token = null, refresh_token = null, updated_at = $2
		where client_id = $1
	`, clientID, p.now().UTC())
	return err
}

func (p *Postgres) SaveTheme(ctx context.Context, clientID string, theme Theme) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		insert into client_state(client_id, theme, updated_at)
		values ($1, $2, $3)
		on conflict (client_id) do update
		set theme = excluded.theme, updated_at = excluded.updated_at
	`, clientID, string(theme), p.now().UTC())
	return err
}

// Sweep deletes clients idle since before cutoff and reports how many.
func (p *Postgres) Sweep(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `delete from client_state where updated_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
