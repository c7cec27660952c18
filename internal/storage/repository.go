package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CopySnapshot is the consistent view of configuration taken once at the
// start of a copy event. Policy changes after the snapshot do not affect
// followers already being processed for that event.
type CopySnapshot struct {
	Policy  AllocationPolicy
	Limits  RiskLimits
	Allowed map[string]bool
}

// LoadCopySnapshot reads policy, limits and the symbol allow-list inside one
// transaction so an event sees a single point-in-time configuration.
func (r *Repository) LoadCopySnapshot() (*CopySnapshot, error) {
	snap := &CopySnapshot{Allowed: make(map[string]bool)}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&snap.Policy).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				snap.Policy = AllocationPolicy{IsActive: false}
				return nil // no settings row means copying is off, not an error
			}
			return err
		}

		if err := tx.First(&snap.Limits).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			snap.Limits = RiskLimits{Enabled: false}
		}

		var symbols []SymbolPolicy
		if err := tx.Where("is_active = ?", true).Find(&symbols).Error; err != nil {
			return err
		}
		for _, s := range symbols {
			snap.Allowed[s.Symbol] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Accounts

func (r *Repository) GetAccount(id uint) (*BrokerAccount, error) {
	var acct BrokerAccount
	err := r.db.Preload("Credential").First(&acct, id).Error
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// ListActiveFollowers returns every active account except the source account,
// restricted to accounts whose credential is itself active.
func (r *Repository) ListActiveFollowers(sourceAccountID uint) ([]BrokerAccount, error) {
	var accounts []BrokerAccount
	err := r.db.
		Joins("JOIN broker_credentials ON broker_credentials.id = broker_accounts.credential_id AND broker_credentials.is_active = ?", true).
		Where("broker_accounts.id <> ? AND broker_accounts.is_active = ?", sourceAccountID, true).
		Preload("Credential").
		Find(&accounts).Error
	return accounts, err
}

func (r *Repository) ListAccounts() ([]BrokerAccount, error) {
	var accounts []BrokerAccount
	err := r.db.Preload("Credential").Order("id").Find(&accounts).Error
	return accounts, err
}

func (r *Repository) UpdateAccountBalance(id uint, balance, buyingPower float64) error {
	return r.db.Model(&BrokerAccount{}).Where("id = ?", id).Updates(map[string]any{
		"balance":      balance,
		"buying_power": buyingPower,
	}).Error
}

// Credentials

func (r *Repository) ListActiveCredentials() ([]BrokerCredential, error) {
	var creds []BrokerCredential
	err := r.db.Where("is_active = ?", true).Find(&creds).Error
	return creds, err
}

func (r *Repository) UpdateCredentialHealth(id uint, status ConnectionStatus, connErr string) error {
	now := time.Now()
	return r.db.Model(&BrokerCredential{}).Where("id = ?", id).Updates(map[string]any{
		"connection_status":     status,
		"last_connection_check": now,
		"connection_error":      connErr,
	}).Error
}

// Trades

func (r *Repository) SaveTrade(trade *Trade) error {
	return r.db.Create(trade).Error
}

func (r *Repository) GetTrade(id uint) (*Trade, error) {
	var trade Trade
	err := r.db.First(&trade, id).Error
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *Repository) GetRecentTrades(limit int) ([]Trade, error) {
	var trades []Trade
	err := r.db.Order("created_at DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// Copy attempts

func (r *Repository) CreateCopyAttempt(attempt *CopyAttempt) error {
	return r.db.Create(attempt).Error
}

func (r *Repository) MarkAttemptSuccess(id uint, targetTradeID uint) error {
	return r.db.Model(&CopyAttempt{}).Where("id = ?", id).Updates(map[string]any{
		"status":          AttemptSuccess,
		"target_trade_id": targetTradeID,
	}).Error
}

func (r *Repository) MarkAttemptFailed(id uint, errorMessage string) error {
	return r.db.Model(&CopyAttempt{}).Where("id = ?", id).Updates(map[string]any{
		"status":        AttemptFailed,
		"error_message": errorMessage,
	}).Error
}

func (r *Repository) ListAttemptsBySourceTrade(sourceTradeID uint) ([]CopyAttempt, error) {
	var attempts []CopyAttempt
	err := r.db.Where("source_trade_id = ?", sourceTradeID).Order("id").Find(&attempts).Error
	return attempts, err
}

func (r *Repository) GetRecentAttempts(limit int) ([]CopyAttempt, error) {
	var attempts []CopyAttempt
	err := r.db.Order("created_at DESC").Limit(limit).Find(&attempts).Error
	return attempts, err
}

// Notifications

func (r *Repository) SaveNotification(n *Notification) error {
	return r.db.Create(n).Error
}

func (r *Repository) GetRecentNotifications(limit int) ([]Notification, error) {
	var items []Notification
	err := r.db.Order("created_at DESC").Limit(limit).Find(&items).Error
	return items, err
}

// System logs

func (r *Repository) SaveSystemLog(entry *SystemLog) error {
	return r.db.Create(entry).Error
}

func (r *Repository) GetRecentSystemLogs(limit int) ([]SystemLog, error) {
	var items []SystemLog
	err := r.db.Order("created_at DESC").Limit(limit).Find(&items).Error
	return items, err
}
