// internal/bank/engine.go

package bank

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Commit 驗證並原子執行一筆轉帳，成功時回傳已寫入帳本的 Transfer。
//
// 驗證順序（任一步失敗即回傳對應錯誤，且不變更任何狀態）：
//  1. 金額為正且幣別合法 → ErrMalformedInput
//  2. 來源與目標相同且政策拒絕 → ErrSameAccount
//  3. 來源帳戶存在 → ErrSourceAccountNotFound
//  4. 目標帳戶存在 → ErrDestinationAccountNotFound
//  5. 幣別與兩個帳戶一致 → ErrCurrencyMismatch
//  6. 餘額足夠（預設嚴格大於）→ ErrInsufficientFunds
//
// 兩個帳戶的條目鎖依 ID 順序取得，並持有到扣款、入帳與帳本寫入全部完成，
// 其他呼叫端因此看不到只扣款未入帳的中間狀態。
// 同一對帳戶上的等待者由 sync.Mutex 排程：一般情況下不保證先到先得，
// 但等待超過 1ms 的 goroutine 會讓鎖進入飢餓模式改為 FIFO 交接，不會無限期等待。
func (b *Bank) Commit(fromID, toID uuid.UUID, amount Money) (*Transfer, error) {
	amount, err := validateTransferAmount(amount)
	if err != nil {
		return nil, b.reject(fromID, toID, amount, err)
	}
	if fromID == toID && b.policy.RejectSelfTransfer {
		return nil, b.reject(fromID, toID, amount, ErrSameAccount)
	}

	locked := b.accounts.Lock(fromID, toID)
	defer locked.Unlock()

	from, ok := locked.Get(fromID)
	if !ok {
		return nil, b.reject(fromID, toID, amount, &Error{
			Code:    CodeSourceAccountNotFound,
			Field:   "from_account",
			Message: fmt.Sprintf("account %s does not exist", fromID),
		})
	}
	to, ok := locked.Get(toID)
	if !ok {
		return nil, b.reject(fromID, toID, amount, &Error{
			Code:    CodeDestinationAccountNotFound,
			Field:   "to_account",
			Message: fmt.Sprintf("account %s does not exist", toID),
		})
	}
	// 幣別必須先於餘額比較，避免比較不同單位的金額
	if !from.Balance.SameCurrency(amount) || !to.Balance.SameCurrency(amount) {
		return nil, b.reject(fromID, toID, amount, &Error{
			Code:  CodeCurrencyMismatch,
			Field: "amount.currency",
			Message: fmt.Sprintf("transfer currency %s does not match accounts (%s -> %s)",
				amount.Currency, from.Balance.Currency, to.Balance.Currency),
		})
	}
	if !b.policy.covers(from.Balance, amount) {
		return nil, b.reject(fromID, toID, amount, &Error{
			Code:    CodeInsufficientFunds,
			Field:   "amount",
			Message: fmt.Sprintf("balance %s does not cover %s", from.Balance, amount),
		})
	}

	// 從這裡開始不再有任何驗證失敗；Add/Sub 的錯誤只可能來自不變量被破壞。
	from.Balance = mustApply(from.Balance.Sub(amount))
	locked.Put(fromID, from)

	// 自我轉帳時 to 與 from 為同一條目，必須重新讀取扣款後的值
	to, _ = locked.Get(toID)
	to.Balance = mustApply(to.Balance.Add(amount))
	locked.Put(toID, to)

	t := Transfer{FromAccount: fromID, ToAccount: toID, Amount: amount, CreatedAt: b.now().UTC()}
	t.ID = b.transfers.Create(func(id uuid.UUID) Transfer {
		rec := t
		rec.ID = id
		return rec
	})

	b.logger.Info("transfer committed",
		zap.Stringer("transfer_id", t.ID),
		zap.Stringer("from", fromID),
		zap.Stringer("to", toID),
		zap.Stringer("amount", amount),
	)
	return &t, nil
}

// covers 依政策判斷餘額是否足以支付金額（呼叫前幣別已確認一致）。
func (p Policy) covers(balance, amount Money) bool {
	if p.AllowExactDrain {
		return balance.Amount.GreaterThanOrEqual(amount.Amount)
	}
	return balance.Amount.GreaterThan(amount.Amount)
}

func (b *Bank) reject(fromID, toID uuid.UUID, amount Money, err error) error {
	code := CodeOf(err)
	amountField := zap.Stringer("amount", amount)
	if code == CodeMalformedInput {
		// 未通過範圍檢查的金額不轉成字串
		amountField = zap.String("currency", amount.Currency)
	}
	b.logger.Debug("transfer rejected",
		zap.String("code", string(code)),
		zap.Stringer("from", fromID),
		zap.Stringer("to", toID),
		amountField,
		zap.Error(err),
	)
	return err
}

func validateTransferAmount(amount Money) (Money, error) {
	norm, err := amount.normalize("amount")
	if err != nil {
		return amount, err
	}
	if !norm.Amount.IsPositive() {
		return amount, malformed("amount.amount", "transfer amount must be greater than zero")
	}
	return norm, nil
}

func mustApply(m Money, err error) Money {
	if err != nil {
		panic(fmt.Sprintf("bank: balance invariant violated: %v", err))
	}
	return m
}
