package core

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// CrossChainMessage is the envelope a relay delivers.
type CrossChainMessage struct {
	MessageID           Bytes32
	SourceChainSelector uint64
	Sender              Bytes32
	Data                []byte
	TokenAmounts        []TokenAmount
}

type TokenAmount struct {
	Token  solana.PublicKey
	Amount uint64
}

// SettlementPayload is the business content of CrossChainMessage.Data:
// abi.encode(bytes32 paymentId, uint256 amount, bytes32 receiver).
type SettlementPayload struct {
	PaymentID Bytes32
	Amount    uint64
	Receiver  Bytes32
	// Truncated is set when the amount word had non-zero high bytes that
	// were discarded.
	Truncated bool
}

var settlementArguments = mustSettlementArguments()

func mustSettlementArguments() abi.Arguments {
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(fmt.Sprintf("core: build bytes32 abi type: %v", err))
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(fmt.Sprintf("core: build uint256 abi type: %v", err))
	}
	return abi.Arguments{
		{Name: "paymentId", Type: bytes32Type},
		{Name: "amount", Type: uint256Type},
		{Name: "receiver", Type: bytes32Type},
	}
}

// EncodeSettlementPayload produces the 96-byte layout relays carry.
func EncodeSettlementPayload(payload SettlementPayload) ([]byte, error) {
	packed, err := settlementArguments.Pack(
		[32]byte(payload.PaymentID),
		new(big.Int).SetUint64(payload.Amount),
		[32]byte(payload.Receiver),
	)
	if err != nil {
		return nil, fmt.Errorf("core: encode settlement payload: %w", err)
	}
	return packed, nil
}

// DecodeSettlementPayload reads the fixed-offset layout. Bytes past 96 are
// ignored. The amount is the low 8 bytes of the second word; with strict set,
// non-zero high bytes are rejected instead of truncated.
func DecodeSettlementPayload(data []byte, strict bool) (SettlementPayload, error) {
	if len(data) < settlementPayloadMinSize {
		return SettlementPayload{}, fmt.Errorf(
			"%w: payload is %d bytes, need at least %d",
			ErrInvalidMessageData,
			len(data),
			settlementPayloadMinSize,
		)
	}
	var out SettlementPayload
	copy(out.PaymentID[:], data[0:32])
	word := new(uint256.Int).SetBytes32(data[32:64])
	if !word.IsUint64() {
		if strict {
			return SettlementPayload{}, fmt.Errorf("%w: amount exceeds 64 bits", ErrInvalidMessageData)
		}
		out.Truncated = true
	}
	out.Amount = binary.BigEndian.Uint64(data[56:64])
	copy(out.Receiver[:], data[64:96])
	return out, nil
}
