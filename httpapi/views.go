package httpapi

import (
	"strconv"
	"time"

	"github.com/goliatone/go-paychain/core"
)

// Amounts are rendered as decimal strings to survive JSON number precision,
// alongside a display value at the configured precision.

type DeploymentView struct {
	Authority      string    `json:"authority" yaml:"authority"`
	FeeRecipient   string    `json:"fee_recipient" yaml:"fee_recipient"`
	Router         string    `json:"router" yaml:"router"`
	ProgramID      string    `json:"program_id" yaml:"program_id"`
	VaultAuthority string    `json:"vault_authority" yaml:"vault_authority"`
	ChainID        string    `json:"chain_id" yaml:"chain_id"`
	FixedBaseFee   string    `json:"fixed_base_fee" yaml:"fixed_base_fee"`
	FeeRateBps     uint16    `json:"fee_rate_bps" yaml:"fee_rate_bps"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

func NewDeploymentView(d core.Deployment, _ int32) DeploymentView {
	return DeploymentView{
		Authority:      d.Authority.String(),
		FeeRecipient:   d.FeeRecipient.String(),
		Router:         d.Router.String(),
		ProgramID:      d.ProgramID.String(),
		VaultAuthority: d.VaultAuthority.String(),
		ChainID:        d.ChainID,
		FixedBaseFee:   strconv.FormatUint(d.FixedBaseFee, 10),
		FeeRateBps:     d.FeeRateBps,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type VaultView struct {
	Authority      string    `json:"authority" yaml:"authority"`
	Balance        string    `json:"balance" yaml:"balance"`
	BalanceDisplay string    `json:"balance_display" yaml:"balance_display"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

func NewVaultView(v core.Vault, decimals int32) VaultView {
	return VaultView{
		Authority:      v.Authority.String(),
		Balance:        strconv.FormatUint(v.Balance, 10),
		BalanceDisplay: core.FormatAmount(v.Balance, decimals),
		UpdatedAt:      v.UpdatedAt,
	}
}

type PaymentView struct {
	ID            string    `json:"id" yaml:"id"`
	Sender        string    `json:"sender" yaml:"sender"`
	Token         string    `json:"token" yaml:"token"`
	Receiver      string    `json:"receiver" yaml:"receiver"`
	SourceChainID string    `json:"source_chain_id" yaml:"source_chain_id"`
	DestChainID   string    `json:"dest_chain_id" yaml:"dest_chain_id"`
	DestToken     string    `json:"dest_token" yaml:"dest_token"`
	Amount        string    `json:"amount" yaml:"amount"`
	AmountDisplay string    `json:"amount_display" yaml:"amount_display"`
	Fee           string    `json:"fee" yaml:"fee"`
	Status        string    `json:"status" yaml:"status"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
}

func NewPaymentView(p core.Payment, decimals int32) PaymentView {
	return PaymentView{
		ID:            p.ID.String(),
		Sender:        p.Sender.String(),
		Token:         p.Token.String(),
		Receiver:      p.Receiver.String(),
		SourceChainID: p.SourceChainID,
		DestChainID:   p.DestChainID,
		DestToken:     p.DestToken.String(),
		Amount:        strconv.FormatUint(p.Amount, 10),
		AmountDisplay: core.FormatAmount(p.Amount, decimals),
		Fee:           strconv.FormatUint(p.Fee, 10),
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

type PaymentRequestView struct {
	ID            string     `json:"id" yaml:"id"`
	Merchant      string     `json:"merchant" yaml:"merchant"`
	Receiver      string     `json:"receiver" yaml:"receiver"`
	Token         string     `json:"token" yaml:"token"`
	Amount        string     `json:"amount" yaml:"amount"`
	AmountDisplay string     `json:"amount_display" yaml:"amount_display"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	IsPaid        bool       `json:"is_paid" yaml:"is_paid"`
	Payer         string     `json:"payer,omitempty" yaml:"payer,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty" yaml:"paid_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at" yaml:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" yaml:"created_at"`
}

func NewPaymentRequestView(r core.PaymentRequest, decimals int32) PaymentRequestView {
	view := PaymentRequestView{
		ID:            r.ID,
		Merchant:      r.Merchant.String(),
		Receiver:      r.Receiver.String(),
		Token:         r.Token.String(),
		Amount:        strconv.FormatUint(r.Amount, 10),
		AmountDisplay: core.FormatAmount(r.Amount, decimals),
		Description:   r.Description,
		IsPaid:        r.IsPaid,
		PaidAt:        r.PaidAt,
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     r.CreatedAt,
	}
	if r.Payer != nil {
		view.Payer = r.Payer.String()
	}
	return view
}

type SettlementView struct {
	MessageID           string    `json:"message_id" yaml:"message_id"`
	PaymentID           string    `json:"payment_id" yaml:"payment_id"`
	SourceChainSelector string    `json:"source_chain_selector" yaml:"source_chain_selector"`
	Relay               string    `json:"relay" yaml:"relay"`
	Sender              string    `json:"sender" yaml:"sender"`
	Receiver            string    `json:"receiver" yaml:"receiver"`
	Amount              string    `json:"amount" yaml:"amount"`
	AmountDisplay       string    `json:"amount_display" yaml:"amount_display"`
	TxHash              string    `json:"tx_hash,omitempty" yaml:"tx_hash,omitempty"`
	SettledAt           time.Time `json:"settled_at" yaml:"settled_at"`
}

func NewSettlementView(s core.InboundSettlement, decimals int32) SettlementView {
	return SettlementView{
		MessageID:           s.MessageID.String(),
		PaymentID:           s.PaymentID.String(),
		SourceChainSelector: strconv.FormatUint(s.SourceChainSelector, 10),
		Relay:               s.Relay.String(),
		Sender:              s.Sender.String(),
		Receiver:            s.Receiver.String(),
		Amount:              strconv.FormatUint(s.Amount, 10),
		AmountDisplay:       core.FormatAmount(s.Amount, decimals),
		TxHash:              s.TxHash,
		SettledAt:           s.SettledAt,
	}
}

type OfframpView struct {
	ID                  string    `json:"id" yaml:"id"`
	Router              string    `json:"router" yaml:"router"`
	SourceChainSelector string    `json:"source_chain_selector" yaml:"source_chain_selector"`
	Relay               string    `json:"relay" yaml:"relay"`
	CreatedAt           time.Time `json:"created_at" yaml:"created_at"`
}

func NewOfframpView(e core.OfframpEntry) OfframpView {
	return OfframpView{
		ID:                  e.ID.String(),
		Router:              e.Router.String(),
		SourceChainSelector: strconv.FormatUint(e.SourceChainSelector, 10),
		Relay:               e.Relay.String(),
		CreatedAt:           e.CreatedAt,
	}
}
