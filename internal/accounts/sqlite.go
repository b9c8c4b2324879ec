package accounts

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var _ Database = (*SQLite)(nil)

// SQLite is a durable Database. A single connection serialises writers, so
// each Atomic unit runs as one SQL transaction with nothing interleaved.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Safe to call on an existing file.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, address solanago.PublicKey) (Account, error) {
	return sqlStore{s.db}.Get(ctx, address)
}

func (s *SQLite) Create(ctx context.Context, account Account) error {
	return s.Atomic(ctx, func(st Store) error { return st.Create(ctx, account) })
}

func (s *SQLite) Update(ctx context.Context, account Account) error {
	return s.Atomic(ctx, func(st Store) error { return st.Update(ctx, account) })
}

func (s *SQLite) Atomic(ctx context.Context, fn func(Store) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
			}
		}
	}()

	if err = fn(sqlStore{tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlStore struct {
	q querier
}

func (s sqlStore) Get(ctx context.Context, address solanago.PublicKey) (Account, error) {
	var owner, data []byte
	err := s.q.QueryRowContext(ctx,
		`SELECT owner, data FROM accounts WHERE address = ?`,
		address[:],
	).Scan(&owner, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, notFound(address)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", address, err)
	}
	return Account{
		Address: address,
		Owner:   solanago.PublicKeyFromBytes(owner),
		Data:    data,
	}, nil
}

func (s sqlStore) Create(ctx context.Context, account Account) error {
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts (address, owner, data) VALUES (?, ?, ?) ON CONFLICT(address) DO NOTHING`,
		account.Address[:],
		account.Owner[:],
		nonNil(account.Data),
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.Address, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.Address, err)
	}
	if n == 0 {
		return exists(account.Address)
	}
	return nil
}

func (s sqlStore) Update(ctx context.Context, account Account) error {
	current, err := s.Get(ctx, account.Address)
	if err != nil {
		return err
	}
	if !current.Owner.Equals(account.Owner) {
		return ownerChanged(account.Address, current.Owner, account.Owner)
	}
	if _, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET data = ? WHERE address = ?`,
		nonNil(account.Data),
		account.Address[:],
	); err != nil {
		return fmt.Errorf("update account %s: %w", account.Address, err)
	}
	return nil
}

// nonNil keeps empty data from binding as SQL NULL.
func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
