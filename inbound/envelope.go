package inbound

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-paychain/core"
)

var validate = newEnvelopeValidator()

func newEnvelopeValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RelayEnvelope is the wire form of one relay delivery. Byte fields are 0x
// hex, keys and signatures are base58, and the chain selector is a decimal
// string so it survives JSON number precision limits.
type RelayEnvelope struct {
	MessageID           string             `json:"message_id" validate:"required,startswith=0x,len=66"`
	SourceChainSelector string             `json:"source_chain_selector" validate:"required,number"`
	Sender              string             `json:"sender" validate:"required,startswith=0x"`
	Data                string             `json:"data" validate:"required,startswith=0x"`
	TokenAmounts        []EnvelopeAmount   `json:"dest_token_amounts,omitempty" validate:"omitempty,dive"`
	Relay               string             `json:"relay" validate:"required"`
	Attestation         EnvelopeCapability `json:"attestation"`
	DeliverySignature   string             `json:"delivery_signature" validate:"required"`
}

type EnvelopeAmount struct {
	Token  string `json:"token" validate:"required"`
	Amount string `json:"amount" validate:"required,number"`
}

type EnvelopeCapability struct {
	Tag       string `json:"tag" validate:"required"`
	Scope     string `json:"scope" validate:"required,startswith=0x"`
	Issuer    string `json:"issuer" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// ParseEnvelope decodes and validates a JSON relay envelope. Unknown fields
// are rejected.
func ParseEnvelope(body []byte) (RelayEnvelope, error) {
	var envelope RelayEnvelope
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&envelope); err != nil {
		return RelayEnvelope{}, inboundInvalidEnvelope(
			fmt.Errorf("%w: %v", core.ErrInvalidMessageData, err),
			"inbound: relay envelope is not valid json",
			nil,
		)
	}
	if err := envelope.Validate(); err != nil {
		return RelayEnvelope{}, err
	}
	return envelope, nil
}

// Validate checks envelope shape only; authorization happens in the service.
func (e RelayEnvelope) Validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return inboundBadInput("inbound: relay envelope validation failed: "+err.Error(), nil)
	}
	fields := make([]goerrors.FieldError, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, goerrors.FieldError{
			Field:   envelopeFieldPath(fieldErr.Namespace()),
			Message: fmt.Sprintf("failed %q validation", fieldErr.Tag()),
		})
	}
	return goerrors.NewValidation("inbound: relay envelope validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput)
}

func envelopeFieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// Request converts a validated envelope into the service request.
func (e RelayEnvelope) Request() (core.ReceiveCrossChainRequest, error) {
	messageID, err := core.ParseBytes32(e.MessageID)
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("message_id", err)
	}
	selector, err := strconv.ParseUint(strings.TrimSpace(e.SourceChainSelector), 10, 64)
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("source_chain_selector", err)
	}
	sender, err := decodeSender(e.Sender)
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("sender", err)
	}
	data, err := hexutil.Decode(strings.TrimSpace(e.Data))
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("data", err)
	}
	relay, err := solana.PublicKeyFromBase58(strings.TrimSpace(e.Relay))
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("relay", err)
	}
	amounts := make([]core.TokenAmount, 0, len(e.TokenAmounts))
	for i, item := range e.TokenAmounts {
		token, err := solana.PublicKeyFromBase58(strings.TrimSpace(item.Token))
		if err != nil {
			return core.ReceiveCrossChainRequest{}, envelopeFieldError(fmt.Sprintf("dest_token_amounts[%d].token", i), err)
		}
		amount, err := strconv.ParseUint(strings.TrimSpace(item.Amount), 10, 64)
		if err != nil {
			return core.ReceiveCrossChainRequest{}, envelopeFieldError(fmt.Sprintf("dest_token_amounts[%d].amount", i), err)
		}
		amounts = append(amounts, core.TokenAmount{Token: token, Amount: amount})
	}
	attestation, err := e.Attestation.capability()
	if err != nil {
		return core.ReceiveCrossChainRequest{}, err
	}
	deliverySignature, err := solana.SignatureFromBase58(strings.TrimSpace(e.DeliverySignature))
	if err != nil {
		return core.ReceiveCrossChainRequest{}, envelopeFieldError("delivery_signature", err)
	}
	return core.ReceiveCrossChainRequest{
		Relay:             relay,
		Attestation:       attestation,
		DeliverySignature: deliverySignature,
		Message: core.CrossChainMessage{
			MessageID:           messageID,
			SourceChainSelector: selector,
			Sender:              sender,
			Data:                data,
			TokenAmounts:        amounts,
		},
	}, nil
}

func (c EnvelopeCapability) capability() (core.Capability, error) {
	scope, err := hexutil.Decode(strings.TrimSpace(c.Scope))
	if err != nil {
		return core.Capability{}, envelopeFieldError("attestation.scope", err)
	}
	issuer, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.Issuer))
	if err != nil {
		return core.Capability{}, envelopeFieldError("attestation.issuer", err)
	}
	signature, err := solana.SignatureFromBase58(strings.TrimSpace(c.Signature))
	if err != nil {
		return core.Capability{}, envelopeFieldError("attestation.signature", err)
	}
	return core.Capability{
		Tag:       strings.TrimSpace(c.Tag),
		Scope:     scope,
		Issuer:    issuer,
		Signature: signature,
	}, nil
}

// decodeSender left-pads shorter foreign addresses (20-byte EVM senders) into
// the 32-byte sender word.
func decodeSender(value string) (core.Bytes32, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(value))
	if err != nil {
		return core.Bytes32{}, err
	}
	if len(raw) > len(core.Bytes32{}) {
		return core.Bytes32{}, fmt.Errorf("sender is %d bytes, max 32", len(raw))
	}
	var out core.Bytes32
	copy(out[len(out)-len(raw):], raw)
	return out, nil
}

func envelopeFieldError(field string, err error) error {
	return inboundInvalidEnvelope(
		fmt.Errorf("%w: %s: %v", core.ErrInvalidMessageData, field, err),
		"inbound: relay envelope field "+field+" is invalid",
		map[string]any{"field": field},
	)
}

// NewEnvelope renders a service request in wire form. The relay CLI uses it
// to build deliveries for testing.
func NewEnvelope(req core.ReceiveCrossChainRequest) RelayEnvelope {
	amounts := make([]EnvelopeAmount, 0, len(req.Message.TokenAmounts))
	for _, item := range req.Message.TokenAmounts {
		amounts = append(amounts, EnvelopeAmount{
			Token:  item.Token.String(),
			Amount: strconv.FormatUint(item.Amount, 10),
		})
	}
	return RelayEnvelope{
		MessageID:           req.Message.MessageID.String(),
		SourceChainSelector: strconv.FormatUint(req.Message.SourceChainSelector, 10),
		Sender:              req.Message.Sender.String(),
		Data:                hexutil.Encode(req.Message.Data),
		TokenAmounts:        amounts,
		Relay:               req.Relay.String(),
		Attestation: EnvelopeCapability{
			Tag:       req.Attestation.Tag,
			Scope:     hexutil.Encode(req.Attestation.Scope),
			Issuer:    req.Attestation.Issuer.String(),
			Signature: req.Attestation.Signature.String(),
		},
		DeliverySignature: req.DeliverySignature.String(),
	}
}
