package topics

const (
	// Ledger externo de tokens -> vault (push de depósito)
	TokenDeposits = "token_deposits"

	// Vault -> ledger externo de tokens (instruções de transferência)
	TokenTransfers = "token_transfers"

	// Eventos de ciclo de vida das apostas
	VaultEvents = "vault_events"

	// DLQs
	TokenDepositsDLQ  = "token_deposits_dlq"
	TokenTransfersDLQ = "token_transfers_dlq"
)
