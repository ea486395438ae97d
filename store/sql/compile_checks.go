package sqlstore

import "github.com/goliatone/go-paychain/core"

var (
	_ core.SettlementStore        = (*SettlementStore)(nil)
	_ core.SettlementStore        = (*CachedSettlementStore)(nil)
	_ core.OutboxStore            = (*OutboxStore)(nil)
	_ core.TokenLedger            = (*LedgerStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
