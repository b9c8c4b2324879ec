package custody

import (
	"fmt"
	"slices"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
)

// AuthorityKind is the closed set of authorities a transition can move. The
// values match the token program's AuthorityType encoding.
type AuthorityKind uint8

const (
	MintTokens AuthorityKind = iota
	FreezeAccount
	AccountOwner
	CloseAccount
)

var authorityKindNames = [...]string{
	MintTokens:    "mint-tokens",
	FreezeAccount: "freeze-account",
	AccountOwner:  "account-owner",
	CloseAccount:  "close-account",
}

// AuthorityKinds lists every kind in encoding order.
var AuthorityKinds = []AuthorityKind{MintTokens, FreezeAccount, AccountOwner, CloseAccount}

func (k AuthorityKind) Valid() bool {
	return int(k) < len(authorityKindNames)
}

func (k AuthorityKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("AuthorityKind(%d)", uint8(k))
	}
	return authorityKindNames[k]
}

// MintScoped reports whether the authority lives on the mint rather than on a
// token account.
func (k AuthorityKind) MintScoped() bool {
	return k == MintTokens || k == FreezeAccount
}

// InstructionName is the program instruction that performs the transition.
func (k AuthorityKind) InstructionName() string {
	switch k {
	case MintTokens:
		return "set_mint_authority"
	case FreezeAccount:
		return "set_freeze_account_authority"
	case AccountOwner:
		return "set_account_owner_authority"
	case CloseAccount:
		return "set_close_account_authority"
	}
	return ""
}

// ParseAuthorityKind accepts the String form, case-insensitively.
func ParseAuthorityKind(s string) (AuthorityKind, error) {
	i := slices.Index(authorityKindNames[:], strings.ToLower(strings.TrimSpace(s)))
	if i < 0 {
		return 0, fmt.Errorf("unknown authority kind %q, want one of %s", s, strings.Join(authorityKindNames[:], ", "))
	}
	return AuthorityKind(i), nil
}

// Authority proves that Key currently holds some capability. The controller
// hands out signature proofs only for keys that signed the invocation; a
// pda.Signer is the proof for program-derived authorities.
type Authority interface {
	Key() solanago.PublicKey
}

type signature struct {
	key solanago.PublicKey
}

func (s signature) Key() solanago.PublicKey {
	return s.key
}

// Invocation is what the host established about the transaction carrying an
// instruction.
type Invocation struct {
	Signers []solanago.PublicKey
}

func NewInvocation(signers ...solanago.PublicKey) Invocation {
	return Invocation{Signers: signers}
}

func (inv Invocation) IsSigner(key solanago.PublicKey) bool {
	return slices.ContainsFunc(inv.Signers, key.Equals)
}

// Prove returns a signature proof for key, or ErrAuthorityMismatch if key did
// not sign.
func (inv Invocation) Prove(key solanago.PublicKey) (Authority, error) {
	if !inv.IsSigner(key) {
		return nil, fmt.Errorf("%w: %s did not sign", ErrAuthorityMismatch, key)
	}
	return signature{key: key}, nil
}
