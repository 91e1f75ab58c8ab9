package exchange

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mn-exchange/engine/internal/journal"
)

// Deposit credits owner's free balance and journals the event, so a deposit
// is replayable exactly like a trade. Deposits are account-level, not
// symbol-scoped, so they bypass the matching engine's per-symbol region
// locks entirely and only share its journal-push serialization.
func (e *Exchange) Deposit(owner common.Address, amount int64) error {
	if err := e.Ledger.Deposit(owner, amount); err != nil {
		return errors.Wrap(err, "exchange: deposit")
	}
	acc := e.Ledger.GetAccountReadOnly(owner)
	rec := journal.NewDepositRecord(e.Engine.NextSeq(), time.Now().UnixNano(), owner, amount, acc.Free)
	if !e.Engine.PushJournal(rec) {
		e.log.Warn("exchange: journal ring full, deposit record dropped", zap.Uint64("seq", rec.Seq))
	}
	return nil
}

// Withdraw debits owner's free balance and journals the event.
func (e *Exchange) Withdraw(owner common.Address, amount int64) error {
	if err := e.Ledger.Withdraw(owner, amount); err != nil {
		return errors.Wrap(err, "exchange: withdraw")
	}
	acc := e.Ledger.GetAccountReadOnly(owner)
	rec := journal.NewWithdrawRecord(e.Engine.NextSeq(), time.Now().UnixNano(), owner, amount, acc.Free)
	if !e.Engine.PushJournal(rec) {
		e.log.Warn("exchange: journal ring full, withdraw record dropped", zap.Uint64("seq", rec.Seq))
	}
	return nil
}
