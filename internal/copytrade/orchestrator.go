package copytrade

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vdcapital/copytrader/internal/broker"
	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/notify"
	"github.com/vdcapital/copytrader/internal/storage"
)

const msgZeroQuantity = "Calculated quantity is zero or negative"

// FollowerResult is the per-follower outcome collected into the event
// summary. One of TradeID or Error is set.
type FollowerResult struct {
	AccountID   uint   `json:"account_id"`
	AccountName string `json:"account_name"`
	Success     bool   `json:"success"`
	TradeID     uint   `json:"trade_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// EventResult is returned to whatever observed the source trade. Success
// reports whether the event itself ran, not whether every follower's order
// went through; per-follower outcomes live in Results.
type EventResult struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Results []FollowerResult `json:"results,omitempty"`
}

// Orchestrator runs one copy event per observed source trade: gate the
// symbol, snapshot configuration, then process every eligible follower in
// isolation and emit a single summary.
type Orchestrator struct {
	repo     *storage.Repository
	brokers  *broker.Registry
	notifier notify.Sink
	config   *config.Config
	logger   *logger.Logger
}

func NewOrchestrator(
	repo *storage.Repository,
	brokers *broker.Registry,
	notifier notify.Sink,
	cfg *config.Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		brokers:  brokers,
		notifier: notifier,
		config:   cfg,
		logger:   log,
	}
}

// ProcessSourceTrade mirrors one filled source trade onto all eligible
// follower accounts. A non-nil error means the event itself could not run
// (configuration unreadable); everything follower-local is reported through
// the EventResult and the CopyAttempt audit trail instead.
func (o *Orchestrator) ProcessSourceTrade(ctx context.Context, sourceTrade *storage.Trade) (*EventResult, error) {
	snapshot, err := o.repo.LoadCopySnapshot()
	if err != nil {
		o.saveLog("error", "Copy trading error", "copy-trading", err.Error())
		return nil, fmt.Errorf("load copy configuration: %w", err)
	}

	// Gating: one rejected symbol blocks the whole event before any
	// follower is touched.
	gate := SymbolGate(snapshot.Allowed)
	if !gate.Allowed(sourceTrade.Symbol) {
		details, _ := json.Marshal(sourceTrade)
		o.saveLog("warning",
			fmt.Sprintf("Copy trade rejected: Symbol %s is not in the allowed list", sourceTrade.Symbol),
			"copy-trading", string(details))
		o.notifier.Emit(notify.KindError, "Copy Trade Rejected",
			fmt.Sprintf("Symbol %s is not in the allowed list", sourceTrade.Symbol))
		return &EventResult{
			Success: false,
			Message: fmt.Sprintf("Symbol %s is not in the allowed list", sourceTrade.Symbol),
		}, nil
	}

	if !snapshot.Policy.IsActive {
		return &EventResult{Success: false, Message: "Copy trading is not active"}, nil
	}

	sourceAccount, err := o.repo.GetAccount(sourceTrade.BrokerAccountID)
	if err != nil {
		return &EventResult{Success: false, Message: "Source account not found"}, nil
	}

	followers, err := o.repo.ListActiveFollowers(sourceAccount.ID)
	if err != nil {
		o.saveLog("error", "Copy trading error", "copy-trading", err.Error())
		return nil, fmt.Errorf("list follower accounts: %w", err)
	}

	if len(followers) == 0 {
		return &EventResult{Success: false, Message: "No target accounts found"}, nil
	}

	// Followers are independent past this point; fan out with a bounded
	// group and join before summarizing.
	results := make([]FollowerResult, len(followers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Copy.MaxParallelFollowers)

	for i := range followers {
		i := i
		follower := followers[i]
		if follower.ID == sourceAccount.ID {
			// The query already excludes the source account; an account can
			// never be source and follower of the same event.
			o.logger.Error("source account listed as its own follower", "account_id", follower.ID)
			results[i] = FollowerResult{
				AccountID:   follower.ID,
				AccountName: follower.AccountName,
				Success:     false,
				Error:       "source account cannot follow itself",
			}
			continue
		}
		g.Go(func() error {
			results[i] = o.processFollower(gctx, snapshot, sourceTrade, sourceAccount, &follower)
			return nil
		})
	}
	g.Wait() // workers never return errors; the join barrier is the point

	successCount := 0
	failCount := 0
	for _, r := range results {
		if r.Success {
			successCount++
		} else {
			failCount++
		}
	}

	summaryKind := notify.KindError
	if successCount > 0 {
		summaryKind = notify.KindSuccess
		if failCount > 0 {
			summaryKind = notify.KindWarning
		}
	}
	o.notifier.Emit(summaryKind, "Copy Trading Summary",
		fmt.Sprintf("Copied trade for %s: %d successful, %d failed", sourceTrade.Symbol, successCount, failCount))

	o.logger.Info("copy event completed",
		"source_trade", sourceTrade.ID, "symbol", sourceTrade.Symbol,
		"followers", len(followers), "success", successCount, "failed", failCount)

	return &EventResult{
		Success: true,
		Message: fmt.Sprintf("Processed copy trade for %d accounts", len(followers)),
		Results: results,
	}, nil
}

// processFollower runs Allocation -> Risk -> Submit -> Record for one
// follower. It is the isolation boundary: any panic or unexpected error is
// converted into a failed CopyAttempt here and never reaches the siblings.
func (o *Orchestrator) processFollower(
	ctx context.Context,
	snapshot *storage.CopySnapshot,
	sourceTrade *storage.Trade,
	sourceAccount *storage.BrokerAccount,
	follower *storage.BrokerAccount,
) (result FollowerResult) {
	result = FollowerResult{AccountID: follower.ID, AccountName: follower.AccountName}

	// Set once the pending attempt row exists, so a panic past that point
	// resolves the row instead of inserting a second one.
	var pendingAttemptID uint

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("unexpected error: %v", r)
			o.logger.Error("panic processing follower", "account_id", follower.ID, "panic", fmt.Sprint(r))
			if pendingAttemptID != 0 {
				o.failAttempt(pendingAttemptID, sourceTrade, follower, msg)
			} else {
				o.recordFailedAttempt(sourceTrade, sourceAccount, follower, 0, msg)
				o.notifyFollowerFailure(sourceTrade, follower, msg)
			}
			result = FollowerResult{
				AccountID:   follower.ID,
				AccountName: follower.AccountName,
				Success:     false,
				Error:       msg,
			}
		}
	}()

	// Allocating
	quantity, err := ComputeQuantity(snapshot.Policy, sourceTrade, follower)
	if err != nil {
		o.recordFailedAttempt(sourceTrade, sourceAccount, follower, 0, err.Error())
		result.Error = err.Error()
		return result
	}
	if quantity <= 0 {
		o.recordFailedAttempt(sourceTrade, sourceAccount, follower, 0, msgZeroQuantity)
		result.Error = msgZeroQuantity
		return result
	}

	// RiskAdjusting
	quantity, adjustments := ApplyRiskLimits(snapshot.Limits, quantity, sourceTrade.Price, follower.Balance)
	for _, adj := range adjustments {
		o.saveLog("warning",
			fmt.Sprintf("Trade size reduced due to %s limit", adj.Reason),
			"risk-management",
			fmt.Sprintf("Original: %d, Adjusted: %d", adj.From, adj.To))
	}
	if quantity <= 0 {
		o.recordFailedAttempt(sourceTrade, sourceAccount, follower, 0, msgZeroQuantity)
		result.Error = msgZeroQuantity
		return result
	}

	if follower.Credential == nil {
		msg := "broker credential not found for target account"
		o.recordFailedAttempt(sourceTrade, sourceAccount, follower, 0, msg)
		result.Error = msg
		return result
	}

	// The pending row goes in before the broker call so a crash mid-submit
	// leaves an auditable record instead of silent loss.
	attempt := &storage.CopyAttempt{
		SourceTradeID:   sourceTrade.ID,
		SourceAccountID: sourceAccount.ID,
		TargetAccountID: follower.ID,
		Symbol:          sourceTrade.Symbol,
		Quantity:        quantity,
		Price:           sourceTrade.Price,
		Side:            sourceTrade.Side,
		Status:          storage.AttemptPending,
	}
	if err := o.repo.CreateCopyAttempt(attempt); err != nil {
		o.logger.Error("create copy attempt", "account_id", follower.ID, "error", err)
		result.Error = fmt.Sprintf("create copy attempt: %v", err)
		return result
	}
	pendingAttemptID = attempt.ID

	// Submitting
	adapter, err := o.brokers.Lookup(follower.Credential.BrokerType)
	if err != nil {
		o.failAttempt(attempt.ID, sourceTrade, follower, err.Error())
		result.Error = err.Error()
		return result
	}

	spec := broker.OrderSpec{
		Symbol:     sourceTrade.Symbol,
		Quantity:   quantity,
		Side:       sourceTrade.Side,
		OrderType:  sourceTrade.OrderType,
		LimitPrice: sourceTrade.LimitPrice,
		IsOption:   sourceTrade.IsOption,
	}
	if sourceTrade.IsOption {
		spec.Option = &broker.OptionLeg{
			Expiration: sourceTrade.OptionExpiration,
			Strike:     sourceTrade.OptionStrike,
			Type:       sourceTrade.OptionType,
		}
	}

	submitCtx, cancel := context.WithTimeout(ctx, o.config.SubmitTimeout())
	defer cancel()
	submitResult := adapter.SubmitOrder(submitCtx, follower.Credential, follower.AccountRef, spec)

	// Recording
	if !submitResult.OK {
		o.failAttempt(attempt.ID, sourceTrade, follower, submitResult.Message)
		result.Error = submitResult.Message
		return result
	}

	copyTrade := &storage.Trade{
		BrokerAccountID:  follower.ID,
		Symbol:           sourceTrade.Symbol,
		Quantity:         quantity,
		Price:            sourceTrade.Price,
		Side:             sourceTrade.Side,
		OrderType:        sourceTrade.OrderType,
		LimitPrice:       sourceTrade.LimitPrice,
		Status:           "pending",
		Type:             "copy",
		IsOption:         sourceTrade.IsOption,
		OptionExpiration: sourceTrade.OptionExpiration,
		OptionStrike:     sourceTrade.OptionStrike,
		OptionType:       sourceTrade.OptionType,
		ExecutionDetails: string(submitResult.Raw),
	}
	if err := o.repo.SaveTrade(copyTrade); err != nil {
		// Order is live on the broker side; the failed attempt keeps the
		// mismatch visible for reconciliation.
		msg := fmt.Sprintf("order %s submitted but recording failed: %v", submitResult.BrokerOrderID, err)
		o.failAttempt(attempt.ID, sourceTrade, follower, msg)
		result.Error = msg
		return result
	}

	if err := o.repo.MarkAttemptSuccess(attempt.ID, copyTrade.ID); err != nil {
		o.logger.Error("mark attempt success", "attempt_id", attempt.ID, "error", err)
	}

	o.logger.Info("copy order submitted",
		"account_id", follower.ID, "symbol", sourceTrade.Symbol,
		"quantity", quantity, "broker_order_id", submitResult.BrokerOrderID)

	result.Success = true
	result.TradeID = copyTrade.ID
	return result
}

// recordFailedAttempt writes a terminal failed attempt in one shot, used on
// paths where no pending row exists yet (zero quantity, allocation errors,
// panics). The broker is never called on these paths.
func (o *Orchestrator) recordFailedAttempt(
	sourceTrade *storage.Trade,
	sourceAccount *storage.BrokerAccount,
	follower *storage.BrokerAccount,
	quantity int64,
	message string,
) {
	attempt := &storage.CopyAttempt{
		SourceTradeID:   sourceTrade.ID,
		SourceAccountID: sourceAccount.ID,
		TargetAccountID: follower.ID,
		Symbol:          sourceTrade.Symbol,
		Quantity:        quantity,
		Price:           sourceTrade.Price,
		Side:            sourceTrade.Side,
		Status:          storage.AttemptFailed,
		ErrorMessage:    message,
	}
	if err := o.repo.CreateCopyAttempt(attempt); err != nil {
		o.logger.Error("record failed attempt", "account_id", follower.ID, "error", err)
	}
}

// failAttempt marks an existing pending attempt failed and fires the
// per-follower notification. Each submit failure is independently actionable
// so these are not batched into the summary.
func (o *Orchestrator) failAttempt(attemptID uint, sourceTrade *storage.Trade, follower *storage.BrokerAccount, message string) {
	if err := o.repo.MarkAttemptFailed(attemptID, message); err != nil {
		o.logger.Error("mark attempt failed", "attempt_id", attemptID, "error", err)
	}
	o.notifyFollowerFailure(sourceTrade, follower, message)
}

func (o *Orchestrator) notifyFollowerFailure(sourceTrade *storage.Trade, follower *storage.BrokerAccount, message string) {
	o.notifier.Emit(notify.KindError, "Copy Trade Failed",
		fmt.Sprintf("Failed to copy trade for %s to account %s: %s",
			sourceTrade.Symbol, follower.AccountName, message))
}

func (o *Orchestrator) saveLog(level, message, source, details string) {
	entry := &storage.SystemLog{
		Level:   level,
		Message: message,
		Source:  source,
		Details: details,
	}
	if err := o.repo.SaveSystemLog(entry); err != nil {
		o.logger.Error("save system log", "error", err)
	}
}
