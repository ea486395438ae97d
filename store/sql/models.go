package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type deploymentRecord struct {
	bun.BaseModel `bun:"table:paychain_deployments,alias:pd"`

	ID             string    `bun:"id,pk"`
	Authority      string    `bun:"authority,notnull"`
	FeeRecipient   string    `bun:"fee_recipient,notnull"`
	Router         string    `bun:"router,notnull"`
	ProgramID      string    `bun:"program_id,notnull"`
	VaultAuthority string    `bun:"vault_authority,notnull"`
	ChainID        string    `bun:"chain_id,notnull"`
	FixedBaseFee   int64     `bun:"fixed_base_fee,notnull"`
	FeeRateBps     int       `bun:"fee_rate_bps,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type vaultRecord struct {
	bun.BaseModel `bun:"table:paychain_vaults,alias:pv"`

	ID        string    `bun:"id,pk"`
	Authority string    `bun:"authority,notnull"`
	Balance   int64     `bun:"balance,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentRecord struct {
	bun.BaseModel `bun:"table:paychain_payments,alias:pp"`

	ID            string    `bun:"id,pk"`
	Sender        string    `bun:"sender,notnull"`
	Token         string    `bun:"token,notnull"`
	Receiver      string    `bun:"receiver,notnull"`
	SourceChainID string    `bun:"source_chain_id,notnull"`
	DestChainID   string    `bun:"dest_chain_id,notnull"`
	DestToken     string    `bun:"dest_token,notnull"`
	Amount        int64     `bun:"amount,notnull"`
	Fee           int64     `bun:"fee,notnull"`
	Status        string    `bun:"status,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentRequestRecord struct {
	bun.BaseModel `bun:"table:paychain_payment_requests,alias:ppr"`

	ID          string     `bun:"id,pk"`
	Merchant    string     `bun:"merchant,notnull"`
	Receiver    string     `bun:"receiver,notnull"`
	Token       string     `bun:"token,notnull"`
	Amount      int64      `bun:"amount,notnull"`
	Description string     `bun:"description,notnull"`
	IsPaid      bool       `bun:"is_paid,notnull"`
	Payer       *string    `bun:"payer"`
	PaidAt      *time.Time `bun:"paid_at,nullzero"`
	ExpiresAt   time.Time  `bun:"expires_at,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type consumedMessageRecord struct {
	bun.BaseModel `bun:"table:paychain_consumed_messages,alias:pcm"`

	MessageID  string    `bun:"message_id,pk"`
	ConsumedAt time.Time `bun:"consumed_at,notnull"`
}

type settlementRecord struct {
	bun.BaseModel `bun:"table:paychain_settlements,alias:ps"`

	ID                  string    `bun:"id,pk"`
	MessageID           string    `bun:"message_id,notnull"`
	PaymentID           string    `bun:"payment_id,notnull"`
	SourceChainSelector string    `bun:"source_chain_selector,notnull"`
	Relay               string    `bun:"relay,notnull"`
	Sender              string    `bun:"sender,notnull"`
	Receiver            string    `bun:"receiver,notnull"`
	Amount              int64     `bun:"amount,notnull"`
	TxHash              string    `bun:"tx_hash,notnull"`
	SettledAt           time.Time `bun:"settled_at,notnull"`
}

type offrampRecord struct {
	bun.BaseModel `bun:"table:paychain_offramps,alias:po"`

	ID                  string    `bun:"id,pk"`
	Router              string    `bun:"router,notnull"`
	SourceChainSelector string    `bun:"source_chain_selector,notnull"`
	Relay               string    `bun:"relay,notnull"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type lifecycleOutboxRecord struct {
	bun.BaseModel `bun:"table:paychain_lifecycle_outbox,alias:plo"`

	ID          string         `bun:"id,pk"`
	EventID     string         `bun:"event_id,notnull"`
	EventName   string         `bun:"event_name,notnull"`
	AggregateID string         `bun:"aggregate_id,notnull"`
	Payload     map[string]any `bun:"payload,type:jsonb,notnull"`
	Metadata    map[string]any `bun:"metadata,type:jsonb,notnull"`
	Status      string         `bun:"status,notnull"`
	Attempts    int            `bun:"attempts,notnull"`
	NextAttempt *time.Time     `bun:"next_attempt_at,nullzero"`
	LastError   string         `bun:"last_error,notnull"`
	OccurredAt  time.Time      `bun:"occurred_at,notnull"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ledgerBalanceRecord struct {
	bun.BaseModel `bun:"table:paychain_ledger_balances,alias:plb"`

	Owner     string    `bun:"owner,pk"`
	Token     string    `bun:"token,pk"`
	Balance   int64     `bun:"balance,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ledgerTransferRecord struct {
	bun.BaseModel `bun:"table:paychain_ledger_transfers,alias:plt"`

	ID        string    `bun:"id,pk"`
	Kind      string    `bun:"kind,notnull"`
	FromOwner string    `bun:"from_owner,notnull"`
	ToOwner   string    `bun:"to_owner,notnull"`
	Token     string    `bun:"token,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	Reference string    `bun:"reference,notnull"`
	Receipt   string    `bun:"receipt,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
