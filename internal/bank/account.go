// Package bank 定義核心領域模型與業務規則。
// 本檔定義 Account 與 Transfer 結構，不含任何 HTTP 細節。

package bank

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a bank account.
type Account struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Balance Money     `json:"balance"`
}

// Transfer 為一筆已提交、不可變的轉帳紀錄。
type Transfer struct {
	ID          uuid.UUID `json:"id"`
	FromAccount uuid.UUID `json:"from_account"`
	ToAccount   uuid.UUID `json:"to_account"`
	Amount      Money     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}
