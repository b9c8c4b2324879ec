package custody_test

import (
	"context"
	"errors"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/metablockshq/spl-token-chapters/internal/accounts"
	"github.com/metablockshq/spl-token-chapters/internal/custody"
	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/spltoken"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

var programID = solanago.MustPublicKeyFromBase58("29iiLtNregFkwH4n4K95GrKYcGUGC3F6D5thPE2jWQQs")

type ControllerTestSuite struct {
	suite.Suite

	ctx        context.Context
	store      *accounts.Memory
	vaults     *state.Store
	ledger     *spltoken.Ledger
	controller *custody.Controller
	accts      custody.VaultAccounts

	alice solanago.PublicKey
	bob   solanago.PublicKey
}

func TestWithControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = accounts.NewMemory()
	s.vaults = state.NewStore(s.store, programID)
	s.ledger = spltoken.New(s.store, programID, zap.NewNop())
	s.controller = custody.NewController(programID, s.vaults, s.ledger, zap.NewNop())

	vault, _, err := pda.VaultAddress(programID)
	s.Require().NoError(err)
	mint, _, err := pda.MintAddress(programID)
	s.Require().NoError(err)
	s.accts = custody.VaultAccounts{Vault: vault, Mint: mint}

	s.alice = solanago.NewWallet().PublicKey()
	s.bob = solanago.NewWallet().PublicKey()
}

func (s *ControllerTestSuite) initialize() {
	_, err := s.controller.Initialize(s.ctx, custody.NewInvocation(s.alice), s.alice)
	s.Require().NoError(err)
}

func (s *ControllerTestSuite) tokenAccount(owner solanago.PublicKey) solanago.PublicKey {
	addr, err := s.controller.CreateTokenAccount(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, owner)
	s.Require().NoError(err)
	return addr
}

func (s *ControllerTestSuite) TestInitializeRecordsDerivedAddresses() {
	vault, err := s.controller.Initialize(s.ctx, custody.NewInvocation(s.alice), s.alice)
	s.Require().NoError(err)

	_, vaultBump, err := pda.VaultAddress(programID)
	s.Require().NoError(err)
	_, mintBump, err := pda.MintAddress(programID)
	s.Require().NoError(err)

	s.Require().Equal(vaultBump, vault.Bump)
	s.Require().Equal(mintBump, vault.MintBump)
	s.Require().Equal(s.alice, vault.Authority)
	s.Require().Equal(s.accts.Mint, vault.Mint)

	loaded, err := s.vaults.Load(s.ctx, s.accts.Vault)
	s.Require().NoError(err)
	s.Require().Equal(vault, loaded)

	mint, err := s.ledger.Mint(s.ctx, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().Equal(custody.MintDecimals, mint.Decimals)
	s.Require().Zero(mint.Supply)
	s.Require().Equal(s.alice, *mint.MintAuthority)
	s.Require().Equal(s.alice, *mint.FreezeAuthority)
}

func (s *ControllerTestSuite) TestInitializeTwiceFails() {
	s.initialize()
	before, err := s.vaults.Load(s.ctx, s.accts.Vault)
	s.Require().NoError(err)

	_, err = s.controller.Initialize(s.ctx, custody.NewInvocation(s.bob), s.bob)
	s.Require().ErrorIs(err, custody.ErrAlreadyInitialized)

	after, err := s.vaults.Load(s.ctx, s.accts.Vault)
	s.Require().NoError(err)
	s.Require().Equal(before, after)
}

func (s *ControllerTestSuite) TestInitializeRequiresSignature() {
	_, err := s.controller.Initialize(s.ctx, custody.NewInvocation(s.bob), s.alice)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	_, err = s.vaults.Load(s.ctx, s.accts.Vault)
	s.Require().ErrorIs(err, custody.ErrNotInitialized)
}

func (s *ControllerTestSuite) TestOperationsBeforeInitialize() {
	err := s.controller.Mint(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, s.alice)
	s.Require().ErrorIs(err, custody.ErrNotInitialized)

	err = s.controller.TransitionMintAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, &s.bob)
	s.Require().ErrorIs(err, custody.ErrNotInitialized)
}

func (s *ControllerTestSuite) TestMintCreditsExactAmount() {
	s.initialize()
	aliceATA := s.tokenAccount(s.alice)
	bobATA := s.tokenAccount(s.bob)

	s.Require().NoError(s.controller.Mint(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, aliceATA))

	alice, err := s.ledger.TokenAccount(s.ctx, aliceATA)
	s.Require().NoError(err)
	s.Require().Equal(custody.MintAmount, alice.Amount)
	s.Require().Nil(alice.Delegate)

	bob, err := s.ledger.TokenAccount(s.ctx, bobATA)
	s.Require().NoError(err)
	s.Require().Zero(bob.Amount)

	mint, err := s.ledger.Mint(s.ctx, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().Equal(custody.MintAmount, mint.Supply)
	s.Require().Equal(s.alice, *mint.MintAuthority)
}

func (s *ControllerTestSuite) TestCreateTokenAccountIsIdempotent() {
	s.initialize()
	first := s.tokenAccount(s.bob)
	second := s.tokenAccount(s.bob)
	s.Require().Equal(first, second)

	expected, _, err := pda.AssociatedTokenAddress(s.bob, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().Equal(expected, first)
}

func (s *ControllerTestSuite) TestMintAuthorityTransfer() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	s.Require().NoError(s.controller.TransitionMintAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, &s.bob))

	err := s.controller.Mint(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	s.Require().NoError(s.controller.Mint(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata))

	account, err := s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Equal(custody.MintAmount, account.Amount)
}

func (s *ControllerTestSuite) TestBurnedMintAuthorityIsTerminal() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	s.Require().NoError(s.controller.TransitionMintAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, nil))

	mint, err := s.ledger.Mint(s.ctx, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().Nil(mint.MintAuthority)

	for _, caller := range []solanago.PublicKey{s.alice, s.bob} {
		inv := custody.NewInvocation(caller)
		err := s.controller.TransitionMintAuthority(s.ctx, inv, s.accts, caller, &caller)
		s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
		err = s.controller.TransitionMintAuthority(s.ctx, inv, s.accts, caller, nil)
		s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
		err = s.controller.Mint(s.ctx, inv, s.accts, caller, ata)
		s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
	}
}

func (s *ControllerTestSuite) TestFreezeAuthorityTransition() {
	s.initialize()

	err := s.controller.TransitionFreezeAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	s.Require().NoError(s.controller.TransitionFreezeAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, &s.bob))
	s.Require().NoError(s.controller.TransitionFreezeAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, nil))

	mint, err := s.ledger.Mint(s.ctx, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().Nil(mint.FreezeAuthority)
	s.Require().Equal(s.alice, *mint.MintAuthority)

	err = s.controller.TransitionFreezeAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
}

func (s *ControllerTestSuite) TestApproveThenRevoke() {
	s.initialize()
	ata := s.tokenAccount(s.alice)
	delegate := solanago.NewWallet().PublicKey()
	inv := custody.NewInvocation(s.alice)

	s.Require().NoError(s.controller.Approve(s.ctx, inv, s.accts, s.alice, ata, delegate))
	account, err := s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Equal(delegate, *account.Delegate)
	s.Require().Equal(custody.ApproveAmount, account.DelegatedAmount)

	s.Require().NoError(s.controller.Revoke(s.ctx, inv, s.accts, s.alice, ata))
	account, err = s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Nil(account.Delegate)
	s.Require().Zero(account.DelegatedAmount)

	// nothing delegated
	s.Require().NoError(s.controller.Revoke(s.ctx, inv, s.accts, s.alice, ata))
}

func (s *ControllerTestSuite) TestApproveRequiresOwner() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	err := s.controller.Approve(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata, s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	err = s.controller.Revoke(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
}

func (s *ControllerTestSuite) TestOwnerTransition() {
	s.initialize()
	ata := s.tokenAccount(s.alice)
	delegate := solanago.NewWallet().PublicKey()
	s.Require().NoError(s.controller.Approve(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, delegate))

	s.Require().NoError(s.controller.TransitionOwnerAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, &s.bob))

	account, err := s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Equal(s.bob, account.Owner)
	s.Require().Nil(account.Delegate)
	s.Require().Zero(account.DelegatedAmount)

	err = s.controller.Approve(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, delegate)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
	s.Require().NoError(s.controller.Approve(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata, delegate))
}

func (s *ControllerTestSuite) TestOwnerCannotBeCleared() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	err := s.controller.TransitionOwnerAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, nil)
	s.Require().ErrorIs(err, custody.ErrExternalGateway)
	s.Require().ErrorIs(err, spltoken.ErrOwnerRequired)

	var gwErr *custody.GatewayError
	s.Require().True(errors.As(err, &gwErr))
	s.Require().Equal("set_authority", gwErr.Op)
}

func (s *ControllerTestSuite) TestCloseAuthorityClearedIsTerminal() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	err := s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	s.Require().NoError(s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, &s.bob))
	account, err := s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Equal(s.bob, *account.CloseAuthority)
	s.Require().Equal(s.alice, account.Owner)

	err = s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, &s.alice)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	s.Require().NoError(s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata, nil))
	account, err = s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Nil(account.CloseAuthority)

	// neither the owner nor the last holder can reassign it
	err = s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
	err = s.controller.TransitionCloseAuthority(s.ctx, custody.NewInvocation(s.bob), s.accts, s.bob, ata, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	account, err = s.ledger.TokenAccount(s.ctx, ata)
	s.Require().NoError(err)
	s.Require().Nil(account.CloseAuthority)
	s.Require().Equal(s.alice, account.Owner)
}

func (s *ControllerTestSuite) TestUnsignedCallerRejected() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	err := s.controller.Mint(s.ctx, custody.NewInvocation(s.bob), s.accts, s.alice, ata)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)

	err = s.controller.TransitionMintAuthority(s.ctx, custody.NewInvocation(), s.accts, s.alice, &s.bob)
	s.Require().ErrorIs(err, custody.ErrAuthorityMismatch)
}

func (s *ControllerTestSuite) TestSubstitutedAccountsRejected() {
	s.initialize()
	ata := s.tokenAccount(s.alice)
	inv := custody.NewInvocation(s.alice)

	wrongMint := s.accts
	wrongMint.Mint = solanago.NewWallet().PublicKey()
	err := s.controller.Mint(s.ctx, inv, wrongMint, s.alice, ata)
	s.Require().ErrorIs(err, custody.ErrSeedOrBumpMismatch)

	wrongVault := s.accts
	wrongVault.Vault = solanago.NewWallet().PublicKey()
	err = s.controller.Mint(s.ctx, inv, wrongVault, s.alice, ata)
	s.Require().ErrorIs(err, custody.ErrSeedOrBumpMismatch)

	err = s.controller.Process(s.ctx, inv, custody.SetAuthorityInstruction{
		Accounts:     s.accts,
		Kind:         custody.MintTokens,
		Caller:       s.alice,
		Account:      ata,
		NewAuthority: &s.bob,
	})
	s.Require().ErrorIs(err, custody.ErrInvalidAccount)
}

func (s *ControllerTestSuite) TestTokenAccountOfAnotherMintRejected() {
	s.initialize()

	seeds := [][]byte{[]byte("other-mint")}
	_, bump, err := pda.Derive(seeds, programID)
	s.Require().NoError(err)
	signer, err := pda.NewSigner(seeds, bump, programID)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.InitializeMint(s.ctx, signer, 0, s.alice, nil))
	foreign, err := s.ledger.CreateAssociatedAccount(s.ctx, s.alice, signer.Key())
	s.Require().NoError(err)

	inv := custody.NewInvocation(s.alice)
	err = s.controller.Mint(s.ctx, inv, s.accts, s.alice, foreign)
	s.Require().ErrorIs(err, custody.ErrInvalidAccount)
	err = s.controller.Approve(s.ctx, inv, s.accts, s.alice, foreign, s.bob)
	s.Require().ErrorIs(err, custody.ErrInvalidAccount)
	err = s.controller.TransitionOwnerAuthority(s.ctx, inv, s.accts, s.alice, foreign, &s.bob)
	s.Require().ErrorIs(err, custody.ErrInvalidAccount)
}

func (s *ControllerTestSuite) TestProcessDispatches() {
	inv := custody.NewInvocation(s.alice)
	s.Require().NoError(s.controller.Process(s.ctx, inv, custody.InitializeInstruction{Initializer: s.alice}))
	s.Require().NoError(s.controller.Process(s.ctx, inv, custody.CreateTokenAccountInstruction{Accounts: s.accts, Payer: s.alice, Owner: s.alice}))

	ata, _, err := pda.AssociatedTokenAddress(s.alice, s.accts.Mint)
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Process(s.ctx, inv, custody.MintInstruction{Accounts: s.accts, Caller: s.alice, Destination: ata}))
	s.Require().NoError(s.controller.Process(s.ctx, inv, custody.ApproveInstruction{Accounts: s.accts, Caller: s.alice, Account: ata, Delegate: s.bob}))
	s.Require().NoError(s.controller.Process(s.ctx, inv, custody.RevokeInstruction{Accounts: s.accts, Caller: s.alice, Account: ata}))

	err = s.controller.Process(s.ctx, inv, nil)
	s.Require().ErrorIs(err, custody.ErrUnknownInstruction)

	err = s.controller.Process(s.ctx, inv, custody.SetAuthorityInstruction{Accounts: s.accts, Kind: custody.AuthorityKind(9), Caller: s.alice})
	s.Require().ErrorIs(err, custody.ErrUnknownInstruction)
}

type failingGateway struct {
	*spltoken.Ledger
	err error
}

func (g failingGateway) MintTo(context.Context, solanago.PublicKey, solanago.PublicKey, custody.Authority, uint64) error {
	return g.err
}

func (s *ControllerTestSuite) TestGatewayFailureKeepsCause() {
	s.initialize()
	ata := s.tokenAccount(s.alice)

	cause := errors.New("ledger offline")
	controller := custody.NewController(programID, s.vaults, failingGateway{Ledger: s.ledger, err: cause}, nil)

	err := controller.Mint(s.ctx, custody.NewInvocation(s.alice), s.accts, s.alice, ata)
	s.Require().ErrorIs(err, custody.ErrExternalGateway)
	s.Require().ErrorIs(err, cause)

	var gwErr *custody.GatewayError
	s.Require().True(errors.As(err, &gwErr))
	s.Require().Equal("mint_to", gwErr.Op)
}
