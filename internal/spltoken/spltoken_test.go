package spltoken_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/require"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/spltoken"
)

var programID = solanago.MustPublicKeyFromBase58("29iiLtNregFkwH4n4K95GrKYcGUGC3F6D5thPE2jWQQs")

func TestMintLayout(t *testing.T) {
	authority := solanago.NewWallet().PublicKey()
	mint := custody.Mint{
		MintAuthority: &authority,
		Supply:        42,
		Decimals:      6,
		IsInitialized: true,
	}

	data, err := spltoken.EncodeMint(mint)
	require.NoError(t, err)
	require.Len(t, data, spltoken.MintSize)

	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[0:4]))
	require.Equal(t, authority[:], data[4:36])
	require.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[36:44]))
	require.Equal(t, byte(6), data[44])
	require.Equal(t, byte(1), data[45])
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(data[46:50]))

	address := solanago.NewWallet().PublicKey()
	decoded, err := spltoken.DecodeMint(address, data)
	require.NoError(t, err)
	mint.Address = address
	require.Equal(t, mint, decoded)
}

func TestTokenAccountLayout(t *testing.T) {
	mint := solanago.NewWallet().PublicKey()
	owner := solanago.NewWallet().PublicKey()
	delegate := solanago.NewWallet().PublicKey()
	account := custody.TokenAccount{
		Mint:            mint,
		Owner:           owner,
		Amount:          10,
		Delegate:        &delegate,
		State:           custody.AccountInitialized,
		DelegatedAmount: 5,
	}

	data, err := spltoken.EncodeTokenAccount(account)
	require.NoError(t, err)
	require.Len(t, data, spltoken.TokenAccountSize)

	require.Equal(t, mint[:], data[0:32])
	require.Equal(t, owner[:], data[32:64])
	require.Equal(t, uint64(10), binary.LittleEndian.Uint64(data[64:72]))
	require.Equal(t, delegate[:], data[76:108])
	require.Equal(t, byte(custody.AccountInitialized), data[108])
	require.Equal(t, uint64(5), binary.LittleEndian.Uint64(data[121:129]))

	decoded, err := spltoken.DecodeTokenAccount(account.Address, data)
	require.NoError(t, err)
	require.Equal(t, account, decoded)
}

func TestDecodeRejectsMalformedData(t *testing.T) {
	addr := solanago.NewWallet().PublicKey()

	_, err := spltoken.DecodeMint(addr, make([]byte, spltoken.MintSize-1))
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountData)

	bad := make([]byte, spltoken.MintSize)
	bad[0] = 2
	_, err = spltoken.DecodeMint(addr, bad)
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountData)

	badState := make([]byte, spltoken.TokenAccountSize)
	badState[108] = 3
	_, err = spltoken.DecodeTokenAccount(addr, badState)
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountData)

	badClose := make([]byte, spltoken.TokenAccountSize)
	badClose[129] = 7
	_, err = spltoken.DecodeTokenAccount(addr, badClose)
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountData)
}

type fixture struct {
	ctx    context.Context
	store  *accounts.Memory
	ledger *spltoken.Ledger
	signer pda.Signer
	owner  solanago.PublicKey
	ata    solanago.PublicKey
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := accounts.NewMemory()
	ledger := spltoken.New(store, programID, nil)

	_, bump, err := pda.MintAddress(programID)
	require.NoError(t, err)
	signer, err := pda.NewSigner([][]byte{pda.SeedMint}, bump, programID)
	require.NoError(t, err)

	owner := solanago.NewWallet().PublicKey()
	require.NoError(t, ledger.InitializeMint(ctx, signer, 0, owner, &owner))
	ata, err := ledger.CreateAssociatedAccount(ctx, owner, signer.Key())
	require.NoError(t, err)

	return fixture{ctx: ctx, store: store, ledger: ledger, signer: signer, owner: owner, ata: ata}
}

func prove(t *testing.T, key solanago.PublicKey) custody.Authority {
	t.Helper()
	proof, err := custody.NewInvocation(key).Prove(key)
	require.NoError(t, err)
	return proof
}

func TestInitializeMintOnce(t *testing.T) {
	f := newFixture(t)

	acct, err := f.store.Get(f.ctx, f.signer.Key())
	require.NoError(t, err)
	require.Equal(t, token.ProgramID, acct.Owner)

	err = f.ledger.InitializeMint(f.ctx, f.signer, 0, f.owner, nil)
	require.ErrorIs(t, err, custody.ErrAlreadyInitialized)
}

func TestForeignProgramSignerRejected(t *testing.T) {
	ctx := context.Background()
	other := solanago.NewWallet().PublicKey()
	ledger := spltoken.New(accounts.NewMemory(), other, nil)

	_, bump, err := pda.MintAddress(programID)
	require.NoError(t, err)
	signer, err := pda.NewSigner([][]byte{pda.SeedMint}, bump, programID)
	require.NoError(t, err)

	err = ledger.InitializeMint(ctx, signer, 0, other, nil)
	require.ErrorIs(t, err, custody.ErrAuthorityMismatch)
}

func TestMintToChecksAuthority(t *testing.T) {
	f := newFixture(t)
	stranger := solanago.NewWallet().PublicKey()

	err := f.ledger.MintTo(f.ctx, f.signer.Key(), f.ata, prove(t, stranger), 1)
	require.ErrorIs(t, err, custody.ErrAuthorityMismatch)

	require.NoError(t, f.ledger.MintTo(f.ctx, f.signer.Key(), f.ata, prove(t, f.owner), 7))
	account, err := f.ledger.TokenAccount(f.ctx, f.ata)
	require.NoError(t, err)
	require.Equal(t, uint64(7), account.Amount)
}

func TestMintToOverflow(t *testing.T) {
	f := newFixture(t)
	proof := prove(t, f.owner)

	require.NoError(t, f.ledger.MintTo(f.ctx, f.signer.Key(), f.ata, proof, math.MaxUint64))
	err := f.ledger.MintTo(f.ctx, f.signer.Key(), f.ata, proof, 1)
	require.ErrorIs(t, err, spltoken.ErrOverflow)

	mint, err := f.ledger.Mint(f.ctx, f.signer.Key())
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), mint.Supply)
}

func TestSetAuthorityRules(t *testing.T) {
	f := newFixture(t)
	next := solanago.NewWallet().PublicKey()

	err := f.ledger.SetAuthority(f.ctx, f.ata, custody.AccountOwner, prove(t, f.owner), nil)
	require.ErrorIs(t, err, spltoken.ErrOwnerRequired)

	require.NoError(t, f.ledger.Approve(f.ctx, f.ata, next, prove(t, f.owner), 3))
	require.NoError(t, f.ledger.SetAuthority(f.ctx, f.ata, custody.AccountOwner, prove(t, f.owner), &next))
	account, err := f.ledger.TokenAccount(f.ctx, f.ata)
	require.NoError(t, err)
	require.Equal(t, next, account.Owner)
	require.Nil(t, account.Delegate)
	require.Zero(t, account.DelegatedAmount)

	require.NoError(t, f.ledger.SetAuthority(f.ctx, f.signer.Key(), custody.FreezeAccount, prove(t, f.owner), nil))
	err = f.ledger.SetAuthority(f.ctx, f.signer.Key(), custody.FreezeAccount, prove(t, f.owner), &f.owner)
	require.ErrorIs(t, err, custody.ErrAuthorityMismatch)
}

func TestCloseAuthorityStartsWithOwner(t *testing.T) {
	f := newFixture(t)
	next := solanago.NewWallet().PublicKey()

	account, err := f.ledger.TokenAccount(f.ctx, f.ata)
	require.NoError(t, err)
	require.Equal(t, f.owner, *account.CloseAuthority)

	require.NoError(t, f.ledger.SetAuthority(f.ctx, f.ata, custody.CloseAccount, prove(t, f.owner), nil))
	account, err = f.ledger.TokenAccount(f.ctx, f.ata)
	require.NoError(t, err)
	require.Nil(t, account.CloseAuthority)

	err = f.ledger.SetAuthority(f.ctx, f.ata, custody.CloseAccount, prove(t, f.owner), &next)
	require.ErrorIs(t, err, custody.ErrAuthorityMismatch)
}

func TestReadersCheckOwnerProgram(t *testing.T) {
	f := newFixture(t)
	addr := solanago.NewWallet().PublicKey()
	require.NoError(t, f.store.Create(f.ctx, accounts.Account{Address: addr, Owner: programID, Data: make([]byte, spltoken.MintSize)}))

	_, err := f.ledger.Mint(f.ctx, addr)
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountOwner)

	_, err = f.ledger.TokenAccount(f.ctx, solanago.NewWallet().PublicKey())
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)

	// a mint is not a token account
	_, err = f.ledger.TokenAccount(f.ctx, f.signer.Key())
	require.ErrorIs(t, err, spltoken.ErrInvalidAccountData)
}
