package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres хранилище на основе PostgreSQL, одна таблица ключ-значение.
type Postgres struct {
	db *sql.DB
}

// NewPostgres подключается к PostgreSQL и создает таблицу хранилища,
// если её ещё нет.
func NewPostgres(ctx context.Context, connectionString string) (*Postgres, error) {
	const op = "kvstore.NewPostgres"

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS kv_entries (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Postgres{db: db}, nil
}

// Get возвращает значение по ключу и признак его наличия.
func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "kvstore.Postgres.Get"
	var value string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return value, true, nil
}

// Put сохраняет значение по ключу, перезаписывая существующее.
func (p *Postgres) Put(ctx context.Context, key, value string) error {
	const op = "kvstore.Postgres.Put"
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO kv_entries (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Remove удаляет ключ.
func (p *Postgres) Remove(ctx context.Context, key string) error {
	const op = "kvstore.Postgres.Remove"
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает пул соединений с базой.
func (p *Postgres) Close() error {
	return p.db.Close()
}
