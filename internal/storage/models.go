package storage

import "time"

type BrokerType string

const (
	BrokerTastytrade BrokerType = "tastytrade"
	BrokerSchwab     BrokerType = "schwab"
)

type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusError        ConnectionStatus = "error"
)

// BrokerCredential holds one broker login. Token acquisition and refresh are
// handled outside this service; the copy pipeline only reads SessionToken.
type BrokerCredential struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string     `gorm:"not null" json:"name"`
	BrokerType BrokerType `gorm:"not null" json:"broker_type"`
	IsActive   bool       `gorm:"not null" json:"is_active"`

	SessionToken string     `json:"-"`
	Expiry       *time.Time `json:"expiry"`

	ConnectionStatus    ConnectionStatus `json:"connection_status"`
	LastConnectionCheck *time.Time       `json:"last_connection_check"`
	ConnectionError     string           `json:"connection_error"`
}

// BrokerAccount is one brokerage account under a credential. Balances are
// refreshed from the broker on demand and treated as read-only by the copy
// pipeline itself.
type BrokerAccount struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CredentialID uint    `gorm:"index;not null" json:"credential_id"`
	AccountRef   string  `gorm:"not null" json:"account_ref"` // broker-side account number
	AccountName  string  `gorm:"not null" json:"account_name"`
	AccountType  string  `json:"account_type"`
	Balance      float64 `gorm:"not null;default:0" json:"balance"`
	BuyingPower  float64 `gorm:"not null;default:0" json:"buying_power"`
	IsActive     bool    `gorm:"not null" json:"is_active"`

	Credential *BrokerCredential `gorm:"foreignKey:CredentialID" json:"credential,omitempty"`
}

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// Trade is an executed or submitted order, both source (master) trades and
// the copies placed on follower accounts.
type Trade struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	BrokerAccountID uint      `gorm:"index;not null" json:"broker_account_id"`
	Symbol          string    `gorm:"index;not null" json:"symbol"`
	Quantity        int64     `gorm:"not null" json:"quantity"`
	Price           float64   `gorm:"not null" json:"price"`
	Side            TradeSide `gorm:"not null" json:"side"`
	OrderType       OrderType `gorm:"not null" json:"order_type"`
	LimitPrice      float64   `json:"limit_price"`
	Status          string    `gorm:"index;not null" json:"status"` // pending, filled, canceled, rejected
	Type            string    `gorm:"index;not null" json:"type"`   // manual, copy

	IsOption         bool       `gorm:"not null" json:"is_option"`
	OptionExpiration string     `json:"option_expiration,omitempty"` // YYYY-MM-DD
	OptionStrike     float64    `json:"option_strike,omitempty"`
	OptionType       OptionType `json:"option_type,omitempty"`

	ExecutionDetails string `gorm:"type:text" json:"execution_details,omitempty"` // raw broker response
}

// AllocationMode decides how a copied order is sized.
type AllocationMode string

const (
	AllocFixed      AllocationMode = "fixed"
	AllocPercentage AllocationMode = "percentage"
	AllocMirror     AllocationMode = "mirror"
)

// AllocationPolicy is a singleton settings row. Fields for modes other than
// the active one are ignored, not validated away.
type AllocationPolicy struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`

	IsActive    bool           `gorm:"not null" json:"is_active"`
	Mode        AllocationMode `gorm:"not null;default:'percentage'" json:"mode"`
	FixedAmount float64        `json:"fixed_amount"`
	Percentage  float64        `json:"percentage"`
}

// RiskLimits is a singleton settings row. Limits clamp quantity downward and
// never reject outright; a zero result is the only rejection path.
type RiskLimits struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UpdatedAt time.Time `json:"updated_at"`

	Enabled               bool    `gorm:"not null" json:"enabled"`
	MaxTradeSize          float64 `gorm:"not null;default:0" json:"max_trade_size"`
	MaxPercentagePerTrade float64 `gorm:"not null;default:0" json:"max_percentage_per_trade"`
}

// SymbolPolicy is the copy-trade allow-list.
type SymbolPolicy struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Symbol   string `gorm:"uniqueIndex;not null" json:"symbol"`
	IsActive bool   `gorm:"not null" json:"is_active"`
}

type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// CopyAttempt is the audit record of one (source trade, follower) outcome.
// Rows are created pending and updated exactly once to a terminal status;
// they are never deleted by this service.
type CopyAttempt struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SourceTradeID   uint  `gorm:"index;not null" json:"source_trade_id"`
	TargetTradeID   *uint `gorm:"index" json:"target_trade_id"`
	SourceAccountID uint  `gorm:"index;not null" json:"source_account_id"`
	TargetAccountID uint  `gorm:"index;not null" json:"target_account_id"`

	Symbol       string        `gorm:"not null" json:"symbol"`
	Quantity     int64         `gorm:"not null" json:"quantity"`
	Price        float64       `gorm:"not null" json:"price"`
	Side         TradeSide     `gorm:"not null" json:"side"`
	Status       AttemptStatus `gorm:"index;not null" json:"status"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
}

// Notification rows back the store notification sink.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Type    string `gorm:"not null" json:"type"` // info, success, warning, error
	Title   string `gorm:"not null" json:"title"`
	Message string `gorm:"type:text;not null" json:"message"`
	Read    bool   `gorm:"not null" json:"read"`
}

// SystemLog carries advisory entries: gate rejections, risk clamps,
// event-level failures.
type SystemLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Level   string `gorm:"not null" json:"level"` // info, warning, error
	Message string `gorm:"not null" json:"message"`
	Source  string `gorm:"index" json:"source"`
	Details string `gorm:"type:text" json:"details,omitempty"`
}
