package ledger

import "time"

// SystemWalletID is the currency-issuer wallet, permitted to go negative.
const SystemWalletID = 0

// EntryType is which side of a double-entry transaction an entry is.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType classifies why a transfer or burn happened.
type TransactionType string

const (
	TxTaskReward           TransactionType = "TASK_REWARD"
	TxP2PTransfer          TransactionType = "P2P_TRANSFER"
	TxInfrastructureReward TransactionType = "INFRASTRUCTURE_REWARD"
	TxDemurrage            TransactionType = "DEMURRAGE"
	TxFeeBurn              TransactionType = "FEE_BURN"
)

// Wallet is one account's current balance in integer milli-units.
type Wallet struct {
	UserID    int64
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is one immutable side of a double-entry transaction.
type LedgerEntry struct {
	ID                   int64
	TransactionID        string
	WalletID             int64
	Amount               int64
	BalanceAfter         int64
	EntryType            EntryType
	TransactionType      TransactionType
	Description          string
	ReferenceID          *string
	CounterpartyWalletID *int64
	CreatedAt            time.Time
}

// SupplyStats is the singleton issuance/burn counter row.
type SupplyStats struct {
	TotalIssued int64
	TotalBurned int64
	Circulating int64
}

// DeviceType classifies a registered piece of hardware.
type DeviceType string

const (
	DeviceLLMNode    DeviceType = "llm_node"
	DeviceSensorNode DeviceType = "sensor_node"
	DeviceHub        DeviceType = "hub"
)

// Device is a registered piece of hardware earning XP and, for
// infrastructure device types, heartbeat rewards.
type Device struct {
	DeviceID        string
	OwnerID         int64
	DeviceType      DeviceType
	DisplayName     string
	TopicPrefix     string
	XP              int64
	IsActive        bool
	LastHeartbeatAt *time.Time
}

// RewardRate configures the infrastructure heartbeat reward for one device type.
type RewardRate struct {
	DeviceType            DeviceType
	RatePerHour           int64
	MinUptimeForRewardSec int64
}
