// internal/bank/bank.go

// Package bank 定義核心商業邏輯：帳戶建立、查詢、更新、刪除與原子轉帳。
// 帳戶與轉帳紀錄各存於一個 store.Store；每個帳戶有獨立的條目鎖，
// 不相交的帳戶可並行處理，同一帳戶上的變更則被序列化。
// 金額以 decimal.Decimal 儲存，避免浮點誤差。
package bank

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"moneytransfer/internal/store"
)

// Policy 描述轉帳驗證中可調整的規則；零值即參考行為。
//   - AllowExactDrain：false 時要求餘額「嚴格大於」轉帳金額，
//     true 時允許轉帳後餘額剛好為 0。
//   - RejectSelfTransfer：false 時允許來源與目標相同（淨額不變但仍留下紀錄），
//     true 時回傳 ErrSameAccount。
type Policy struct {
	AllowExactDrain    bool
	RejectSelfTransfer bool
}

// Option 設定 Bank 的可選參數。
type Option func(*Bank)

// WithLogger 注入結構化 logger；未指定時不輸出任何日誌。
func WithLogger(l *zap.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPolicy 設定轉帳驗證政策。
func WithPolicy(p Policy) Option {
	return func(b *Bank) { b.policy = p }
}

// WithClock 替換轉帳紀錄使用的時間來源。
func WithClock(now func() time.Time) Option {
	return func(b *Bank) {
		if now != nil {
			b.now = now
		}
	}
}

// Bank 為聚合根 (Aggregate Root)：
// - accounts：帳戶的唯一真實來源，餘額只透過 Commit 或 UpdateAccount 改變。
// - transfers：只增不改的轉帳帳本，寫入路徑僅有 Commit。
type Bank struct {
	accounts  *store.Store[Account]
	transfers *store.Store[Transfer]
	policy    Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewBank 建立空白銀行實例（僅就緒的 in-memory 狀態，無外部依賴）。
func NewBank(opts ...Option) *Bank {
	b := &Bank{
		accounts:  store.New[Account](),
		transfers: store.New[Transfer](),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Policy 回傳目前生效的轉帳政策。
func (b *Bank) Policy() Policy {
	return b.policy
}

// CreateAccount 以名稱與初始餘額建立帳戶；餘額可為 0 但不得為負。
// 回傳值拷貝，避免呼叫端越權修改內部狀態。
func (b *Bank) CreateAccount(name string, balance Money) (*Account, error) {
	name, balance, err := validateAccount(name, balance)
	if err != nil {
		return nil, err
	}
	id := b.accounts.Create(func(id uuid.UUID) Account {
		return Account{ID: id, Name: name, Balance: balance}
	})
	b.logger.Info("account created", zap.Stringer("account_id", id), zap.Stringer("balance", balance))
	return &Account{ID: id, Name: name, Balance: balance}, nil
}

// GetAccount 依 ID 取得帳戶目前快照；若不存在回傳 ErrNotFound。
func (b *Bank) GetAccount(id uuid.UUID) (*Account, error) {
	a, ok := b.accounts.Read(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

// ListAccounts 回傳所有帳戶的時間點快照（建立順序）。
func (b *Bank) ListAccounts() []*Account {
	all := b.accounts.ReadAll()
	out := make([]*Account, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out
}

// UpdateAccount 以完整紀錄取代 id 對應的帳戶，不存在時建立（upsert）。
// 不支援部分欄位更新；ID 一律以參數為準。
func (b *Bank) UpdateAccount(id uuid.UUID, a Account) (*Account, error) {
	if id == uuid.Nil {
		return nil, malformed("id", "account id is required")
	}
	name, balance, err := validateAccount(a.Name, a.Balance)
	if err != nil {
		return nil, err
	}
	a = Account{ID: id, Name: name, Balance: balance}
	b.accounts.Update(id, a)
	b.logger.Info("account updated", zap.Stringer("account_id", id), zap.Stringer("balance", balance))
	return &a, nil
}

// DeleteAccount 刪除帳戶；重複刪除或刪除不存在的 ID 皆視為成功。
// 已提交的轉帳紀錄不受影響。
func (b *Bank) DeleteAccount(id uuid.UUID) {
	b.accounts.Delete(id)
	b.logger.Info("account deleted", zap.Stringer("account_id", id))
}

// GetTransfer 依 ID 取得轉帳紀錄；若不存在回傳 ErrNotFound。
func (b *Bank) GetTransfer(id uuid.UUID) (*Transfer, error) {
	t, ok := b.transfers.Read(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// ListTransfers 回傳帳本中所有轉帳紀錄（提交順序）。
func (b *Bank) ListTransfers() []*Transfer {
	all := b.transfers.ReadAll()
	out := make([]*Transfer, len(all))
	for i := range all {
		out[i] = &all[i]
	}
	return out
}

// AccountTransfers 回傳涉及指定帳戶的轉帳紀錄（舊到新）；帳戶不存在回傳 ErrNotFound。
func (b *Bank) AccountTransfers(id uuid.UUID) ([]*Transfer, error) {
	if _, ok := b.accounts.Read(id); !ok {
		return nil, ErrNotFound
	}
	out := []*Transfer{}
	for _, t := range b.ListTransfers() {
		if t.FromAccount == id || t.ToAccount == id {
			out = append(out, t)
		}
	}
	return out, nil
}

// validateAccount 檢查名稱非空、幣別合法、餘額非負，並回傳正規化後的值。
func validateAccount(name string, balance Money) (string, Money, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Money{}, malformed("name", "name is required")
	}
	balance, err := balance.normalize("balance")
	if err != nil {
		return "", Money{}, err
	}
	if balance.Amount.IsNegative() {
		return "", Money{}, malformed("balance.amount", "balance cannot be negative")
	}
	return name, balance, nil
}
