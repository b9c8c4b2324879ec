package spltoken

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/metablockshq/spl-token-chapters/internal/custody"
)

const (
	// MintSize is the packed length of a mint account.
	MintSize = token.MINT_SIZE
	// TokenAccountSize is the packed length of a token account.
	TokenAccountSize = 165
)

// Offsets of the COption tags in each layout. The token package decoders
// treat any tag other than 1 as None, so tags are checked before decoding.
var (
	mintOptionTags    = []int{0, 46}
	accountOptionTags = []int{72, 109, 129}
)

const accountStateOffset = 108

func checkOptionTags(data []byte, offsets []int) error {
	for _, off := range offsets {
		if tag := binary.LittleEndian.Uint32(data[off : off+4]); tag > 1 {
			return fmt.Errorf("%w: option tag %d at offset %d", ErrInvalidAccountData, tag, off)
		}
	}
	return nil
}

func encode(v bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := v.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeMint packs m in the token program's mint layout.
func EncodeMint(m custody.Mint) ([]byte, error) {
	data, err := encode(&token.Mint{
		MintAuthority:   m.MintAuthority,
		Supply:          m.Supply,
		Decimals:        m.Decimals,
		IsInitialized:   m.IsInitialized,
		FreezeAuthority: m.FreezeAuthority,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode mint: %w", err)
	}
	return data, nil
}

// DecodeMint unpacks mint account data read from address.
func DecodeMint(address solanago.PublicKey, data []byte) (custody.Mint, error) {
	if len(data) != MintSize {
		return custody.Mint{}, fmt.Errorf("%w: mint %s is %d bytes, want %d", ErrInvalidAccountData, address, len(data), MintSize)
	}
	if err := checkOptionTags(data, mintOptionTags); err != nil {
		return custody.Mint{}, fmt.Errorf("mint %s: %w", address, err)
	}
	var m token.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return custody.Mint{}, fmt.Errorf("%w: mint %s: %v", ErrInvalidAccountData, address, err)
	}
	return custody.Mint{
		Address:         address,
		MintAuthority:   m.MintAuthority,
		Supply:          m.Supply,
		Decimals:        m.Decimals,
		IsInitialized:   m.IsInitialized,
		FreezeAuthority: m.FreezeAuthority,
	}, nil
}

// EncodeTokenAccount packs a in the token program's account layout.
func EncodeTokenAccount(a custody.TokenAccount) ([]byte, error) {
	data, err := encode(&token.Account{
		Mint:            a.Mint,
		Owner:           a.Owner,
		Amount:          a.Amount,
		Delegate:        a.Delegate,
		State:           token.AccountState(a.State),
		IsNative:        a.IsNative,
		DelegatedAmount: a.DelegatedAmount,
		CloseAuthority:  a.CloseAuthority,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token account: %w", err)
	}
	return data, nil
}

// DecodeTokenAccount unpacks token account data read from address.
func DecodeTokenAccount(address solanago.PublicKey, data []byte) (custody.TokenAccount, error) {
	if len(data) != TokenAccountSize {
		return custody.TokenAccount{}, fmt.Errorf("%w: token account %s is %d bytes, want %d", ErrInvalidAccountData, address, len(data), TokenAccountSize)
	}
	if err := checkOptionTags(data, accountOptionTags); err != nil {
		return custody.TokenAccount{}, fmt.Errorf("token account %s: %w", address, err)
	}
	if st := data[accountStateOffset]; token.AccountState(st) > token.Frozen {
		return custody.TokenAccount{}, fmt.Errorf("%w: account state %d", ErrInvalidAccountData, st)
	}
	var a token.Account
	if err := a.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return custody.TokenAccount{}, fmt.Errorf("%w: token account %s: %v", ErrInvalidAccountData, address, err)
	}
	return custody.TokenAccount{
		Address:         address,
		Mint:            a.Mint,
		Owner:           a.Owner,
		Amount:          a.Amount,
		Delegate:        a.Delegate,
		State:           custody.AccountState(a.State),
		IsNative:        a.IsNative,
		DelegatedAmount: a.DelegatedAmount,
		CloseAuthority:  a.CloseAuthority,
	}, nil
}
