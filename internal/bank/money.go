// internal/bank/money.go

package bank

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money 為（幣別, 金額）組合。
// 金額以 decimal.Decimal 表示，避免二進位浮點誤差；幣別為 ISO 4217 代碼。
// JSON 形式：{"currency":"USD","amount":"1000.50"}，amount 亦接受數字。
type Money struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// NewMoney 以字串金額建立 Money，金額格式錯誤時回傳 MalformedInput。
func NewMoney(cur, amount string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, malformed("amount", fmt.Sprintf("invalid amount %q", amount))
	}
	return Money{Currency: cur, Amount: d}, nil
}

// MustMoney 與 NewMoney 相同，但格式錯誤時 panic；僅供常數與測試使用。
func MustMoney(cur, amount string) Money {
	m, err := NewMoney(cur, amount)
	if err != nil {
		panic(err)
	}
	return m
}

// 金額的表示範圍。decimal 運算會把兩個運算元調整到相同指數，
// 指數或位數沒有上限時，一次比較就可能配置極大的 big.Int。
const (
	maxAmountScale    = 18 // 小數位數上限
	maxAmountExponent = 18
	maxAmountDigits   = 36 // 係數位數上限
)

// normalize 驗證幣別並轉為標準大寫代碼，同時檢查金額的精度範圍。
func (m Money) normalize(field string) (Money, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(m.Currency))
	if err != nil {
		return Money{}, malformed(field+".currency", fmt.Sprintf("unknown currency %q", m.Currency))
	}
	m.Currency = unit.String()

	exp := m.Amount.Exponent()
	if exp < -maxAmountScale || exp > maxAmountExponent || m.Amount.NumDigits() > maxAmountDigits {
		return Money{}, malformed(field+".amount",
			fmt.Sprintf("amount out of range: at most %d digits and %d decimal places", maxAmountDigits, maxAmountScale))
	}
	return m, nil
}

// SameCurrency 回報兩者幣別是否相同。
func (m Money) SameCurrency(o Money) bool {
	return m.Currency == o.Currency
}

// Add 相加；幣別不同時回傳 CurrencyMismatch。
func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, mismatch(m, o)
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Add(o.Amount)}, nil
}

// Sub 相減；幣別不同時回傳 CurrencyMismatch。
// 是否足額由呼叫端的政策判斷，這裡不檢查。
func (m Money) Sub(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, mismatch(m, o)
	}
	return Money{Currency: m.Currency, Amount: m.Amount.Sub(o.Amount)}, nil
}

// Equal 以數值比較金額（1000 與 1000.00 視為相等）。
func (m Money) Equal(o Money) bool {
	return m.SameCurrency(o) && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

func mismatch(a, b Money) error {
	return &Error{
		Code:    CodeCurrencyMismatch,
		Field:   "amount.currency",
		Message: fmt.Sprintf("currency mismatch: %s vs %s", a.Currency, b.Currency),
	}
}
