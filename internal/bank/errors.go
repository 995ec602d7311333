// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 這些錯誤屬於商業邏輯層級（非系統錯誤），以明確的回傳值交給呼叫端，
// 由上層 HTTP handler 依 Code 轉換成適當的 HTTP 狀態碼，不需解析訊息文字。

package bank

import (
	"errors"
	"fmt"
)

// Code 為機器可判讀的錯誤種類。
type Code string

const (
	CodeNotFound                   Code = "NOT_FOUND"
	CodeMalformedInput             Code = "MALFORMED_INPUT"
	CodeSourceAccountNotFound      Code = "SOURCE_ACCOUNT_NOT_FOUND"
	CodeDestinationAccountNotFound Code = "DESTINATION_ACCOUNT_NOT_FOUND"
	CodeCurrencyMismatch           Code = "CURRENCY_MISMATCH"
	CodeInsufficientFunds          Code = "INSUFFICIENT_FUNDS"
	CodeSameAccount                Code = "SAME_ACCOUNT"
)

// Error 為領域錯誤；Field 標示出錯的輸入欄位（可為空）。
type Error struct {
	Code    Code
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// Is 讓 errors.Is 以 Code 比對，訊息與欄位不同仍視為同類。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrNotFound 代表帳戶或轉帳紀錄不存在。
	// 對應 HTTP 狀態碼 404 Not Found。
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}

	// ErrMalformedInput 代表 ID、名稱或金額結構上不合法。
	// 對應 HTTP 狀態碼 400 Bad Request。
	ErrMalformedInput = &Error{Code: CodeMalformedInput, Message: "malformed input"}

	// ErrSourceAccountNotFound 代表轉出帳戶不存在。
	ErrSourceAccountNotFound = &Error{Code: CodeSourceAccountNotFound, Field: "from_account", Message: "source account does not exist"}

	// ErrDestinationAccountNotFound 代表轉入帳戶不存在。
	ErrDestinationAccountNotFound = &Error{Code: CodeDestinationAccountNotFound, Field: "to_account", Message: "destination account does not exist"}

	// ErrCurrencyMismatch 代表轉帳幣別與任一帳戶幣別不同。
	// 對應 HTTP 狀態碼 422 Unprocessable Entity。
	ErrCurrencyMismatch = &Error{Code: CodeCurrencyMismatch, Field: "amount.currency", Message: "currency mismatch"}

	// ErrInsufficientFunds 代表餘額不足以支付轉帳。
	// 對應 HTTP 狀態碼 409 Conflict。
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Field: "amount", Message: "insufficient funds"}

	// ErrSameAccount 代表轉帳來源與目標帳戶相同（僅在 RejectSelfTransfer 政策下回傳）。
	// 對應 HTTP 狀態碼 400 Bad Request。
	ErrSameAccount = &Error{Code: CodeSameAccount, Message: "from and to are same"}
)

// CodeOf 取出錯誤鏈中的領域錯誤代碼；非領域錯誤回傳空字串。
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func malformed(field, msg string) error {
	return &Error{Code: CodeMalformedInput, Field: field, Message: msg}
}
