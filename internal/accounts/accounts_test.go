package accounts_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
)

func backends(t *testing.T) map[string]accounts.Database {
	t.Helper()

	sqlite, err := accounts.OpenSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sqlite.Close()) })

	return map[string]accounts.Database{
		"memory": accounts.NewMemory(),
		"sqlite": sqlite,
	}
}

func newAccount(data ...byte) accounts.Account {
	return accounts.Account{
		Address: solanago.NewWallet().PublicKey(),
		Owner:   solanago.NewWallet().PublicKey(),
		Data:    data,
	}
}

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			acct := newAccount(1, 2, 3)

			_, err := db.Get(ctx, acct.Address)
			require.ErrorIs(t, err, accounts.ErrAccountNotFound)

			require.NoError(t, db.Create(ctx, acct))
			require.ErrorIs(t, db.Create(ctx, acct), accounts.ErrAccountExists)

			got, err := db.Get(ctx, acct.Address)
			require.NoError(t, err)
			require.Equal(t, acct.Owner, got.Owner)
			require.Equal(t, []byte{1, 2, 3}, got.Data)

			acct.Data = []byte{9}
			require.NoError(t, db.Update(ctx, acct))
			got, err = db.Get(ctx, acct.Address)
			require.NoError(t, err)
			require.Equal(t, []byte{9}, got.Data)

			stolen := acct
			stolen.Owner = solanago.NewWallet().PublicKey()
			require.Error(t, db.Update(ctx, stolen))

			require.ErrorIs(t, db.Update(ctx, newAccount()), accounts.ErrAccountNotFound)
		})
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			existing := newAccount(1)
			require.NoError(t, db.Create(ctx, existing))

			fresh := newAccount(2)
			boom := errors.New("boom")
			err := db.Atomic(ctx, func(s accounts.Store) error {
				require.NoError(t, s.Create(ctx, fresh))
				updated := existing
				updated.Data = []byte{7}
				require.NoError(t, s.Update(ctx, updated))

				// writes are visible inside the unit
				got, err := s.Get(ctx, fresh.Address)
				require.NoError(t, err)
				require.Equal(t, fresh.Data, got.Data)
				return boom
			})
			require.ErrorIs(t, err, boom)

			_, err = db.Get(ctx, fresh.Address)
			require.ErrorIs(t, err, accounts.ErrAccountNotFound)
			got, err := db.Get(ctx, existing.Address)
			require.NoError(t, err)
			require.Equal(t, []byte{1}, got.Data)
		})
	}
}

func TestAtomicCommits(t *testing.T) {
	ctx := context.Background()
	for name, db := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, b := newAccount(1), newAccount(2)
			require.NoError(t, db.Atomic(ctx, func(s accounts.Store) error {
				if err := s.Create(ctx, a); err != nil {
					return err
				}
				return s.Create(ctx, b)
			}))

			for _, acct := range []accounts.Account{a, b} {
				got, err := db.Get(ctx, acct.Address)
				require.NoError(t, err)
				require.Equal(t, acct.Data, got.Data)
			}
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	db := accounts.NewMemory()
	acct := newAccount(1, 2)
	require.NoError(t, db.Create(ctx, acct))

	acct.Data[0] = 42
	got, err := db.Get(ctx, acct.Address)
	require.NoError(t, err)
	require.Equal(t, byte(1), got.Data[0])

	got.Data[1] = 42
	again, err := db.Get(ctx, acct.Address)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, again.Data)
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	db, err := accounts.OpenSQLite(path)
	require.NoError(t, err)
	acct := newAccount(5, 6)
	require.NoError(t, db.Create(ctx, acct))
	require.NoError(t, db.Close())

	db, err = accounts.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get(ctx, acct.Address)
	require.NoError(t, err)
	require.Equal(t, acct.Owner, got.Owner)
	require.Equal(t, []byte{5, 6}, got.Data)
}
