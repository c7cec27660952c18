package web

import (
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/vdcapital/copytrader/internal/broker"
	"github.com/vdcapital/copytrader/internal/storage"
)

type copyTradeRequest struct {
	// Either replay an existing trade by id, or submit an inline manual
	// trade to copy.
	SourceTradeID uint `json:"source_trade_id"`

	BrokerAccountID  uint               `json:"broker_account_id"`
	Symbol           string             `json:"symbol"`
	Quantity         int64              `json:"quantity"`
	Price            float64            `json:"price"`
	Side             storage.TradeSide  `json:"side"`
	OrderType        storage.OrderType  `json:"order_type"`
	LimitPrice       float64            `json:"limit_price"`
	IsOption         bool               `json:"is_option"`
	OptionExpiration string             `json:"option_expiration"`
	OptionStrike     float64            `json:"option_strike"`
	OptionType       storage.OptionType `json:"option_type"`
}

// handleCopyTrade is the trigger surface: the trade-execution subsystem (or
// an operator replaying manually) posts a filled source trade here.
func (s *Server) handleCopyTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req copyTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var sourceTrade *storage.Trade
	if req.SourceTradeID != 0 {
		trade, err := s.repo.GetTrade(req.SourceTradeID)
		if err != nil {
			http.Error(w, "source trade not found", http.StatusNotFound)
			return
		}
		sourceTrade = trade
	} else {
		if req.BrokerAccountID == 0 || req.Symbol == "" || req.Quantity <= 0 || req.Price <= 0 {
			http.Error(w, "broker_account_id, symbol, quantity and price are required", http.StatusBadRequest)
			return
		}
		if req.Side == "" {
			req.Side = storage.SideBuy
		}
		if req.OrderType == "" {
			req.OrderType = storage.OrderMarket
		}
		sourceTrade = &storage.Trade{
			BrokerAccountID:  req.BrokerAccountID,
			Symbol:           req.Symbol,
			Quantity:         req.Quantity,
			Price:            req.Price,
			Side:             req.Side,
			OrderType:        req.OrderType,
			LimitPrice:       req.LimitPrice,
			Status:           "filled",
			Type:             "manual",
			IsOption:         req.IsOption,
			OptionExpiration: req.OptionExpiration,
			OptionStrike:     req.OptionStrike,
			OptionType:       req.OptionType,
		}
		if err := s.repo.SaveTrade(sourceTrade); err != nil {
			s.logger.Error("save manual source trade", "error", err)
			http.Error(w, "failed to save source trade", http.StatusInternalServerError)
			return
		}
	}

	result, err := s.orchestrator.ProcessSourceTrade(r.Context(), sourceTrade)
	if err != nil {
		s.logger.Error("process copy trade", "source_trade", sourceTrade.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type credentialHealth struct {
	CredentialID uint                     `json:"credential_id"`
	Name         string                   `json:"name"`
	BrokerType   storage.BrokerType       `json:"broker_type"`
	Status       storage.ConnectionStatus `json:"status"`
	Message      string                   `json:"message,omitempty"`
}

// handleHealth runs CheckHealth across active credentials and persists the
// result. It is dashboard-facing; the copy pipeline never consults it before
// submitting.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	creds, err := s.repo.ListActiveCredentials()
	if err != nil {
		http.Error(w, "failed to list credentials", http.StatusInternalServerError)
		return
	}

	out := make([]credentialHealth, 0, len(creds))
	for i := range creds {
		cred := &creds[i]
		entry := credentialHealth{CredentialID: cred.ID, Name: cred.Name, BrokerType: cred.BrokerType}

		adapter, err := s.brokers.Lookup(cred.BrokerType)
		if err != nil {
			entry.Status = storage.StatusError
			entry.Message = err.Error()
		} else {
			health := adapter.CheckHealth(r.Context(), cred)
			entry.Status = health.State
			entry.Message = health.Message
		}

		if err := s.repo.UpdateCredentialHealth(cred.ID, entry.Status, entry.Message); err != nil {
			s.logger.Error("update credential health", "credential_id", cred.ID, "error", err)
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, out)
}

type balanceRefresh struct {
	AccountID   uint    `json:"account_id"`
	AccountRef  string  `json:"account_ref"`
	Balance     float64 `json:"balance,omitempty"`
	BuyingPower float64 `json:"buying_power,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// handleRefreshBalances pulls fresh balances from each broker and persists
// them. Percentage allocation and the max-percentage limit size against the
// stored balance, so this keeps those inputs from going stale.
func (s *Server) handleRefreshBalances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	accounts, err := s.repo.ListAccounts()
	if err != nil {
		http.Error(w, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	out := make([]balanceRefresh, 0, len(accounts))
	for i := range accounts {
		acct := &accounts[i]
		if !acct.IsActive || acct.Credential == nil {
			continue
		}
		entry := balanceRefresh{AccountID: acct.ID, AccountRef: acct.AccountRef}

		adapter, err := s.brokers.Lookup(acct.Credential.BrokerType)
		if err != nil {
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}
		fetcher, ok := adapter.(broker.BalanceFetcher)
		if !ok {
			entry.Error = "balance refresh not supported for this broker"
			out = append(out, entry)
			continue
		}

		balance, err := fetcher.FetchBalance(r.Context(), acct.Credential, acct.AccountRef)
		if err != nil {
			s.logger.Error("refresh balance", "account_id", acct.ID, "error", err)
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}

		if err := s.repo.UpdateAccountBalance(acct.ID, balance.Balance, balance.BuyingPower); err != nil {
			entry.Error = err.Error()
		} else {
			entry.Balance = balance.Balance
			entry.BuyingPower = balance.BuyingPower
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.repo.GetRecentAttempts(100)
	if err != nil {
		http.Error(w, "failed to list attempts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

type dashboardData struct {
	Accounts      []storage.BrokerAccount
	Attempts      []storage.CopyAttempt
	Notifications []storage.Notification
	Logs          []storage.SystemLog
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := dashboardData{}

	if accounts, err := s.repo.ListAccounts(); err == nil {
		data.Accounts = accounts
	}
	if attempts, err := s.repo.GetRecentAttempts(20); err == nil {
		data.Attempts = attempts
	}
	if notifications, err := s.repo.GetRecentNotifications(20); err == nil {
		data.Notifications = notifications
	}
	if logs, err := s.repo.GetRecentSystemLogs(20); err == nil {
		data.Logs = logs
	}

	tmpl, err := template.ParseFiles("templates/dashboard.html")
	if err != nil {
		s.logger.Error("parse template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("render dashboard", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
