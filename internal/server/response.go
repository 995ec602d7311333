// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式。
//   - 成功回應使用標準 JSON 編碼（Content-Type: application/json）。
//   - 錯誤回應一律為 {"code","message","field"}，呼叫端依 code 判斷，不需解析文字。
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"moneytransfer/internal/bank"
)

// errorResponse 為所有錯誤回應的 JSON 結構。
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON 統一輸出成功回應。
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr 依領域錯誤代碼決定狀態碼並輸出 JSON 錯誤。
// 非領域錯誤一律視為 500，且不外洩內部訊息。
func writeErr(w http.ResponseWriter, err error) {
	var e *bank.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"})
		return
	}
	writeJSON(w, statusFor(e.Code), errorResponse{Code: string(e.Code), Message: e.Message, Field: e.Field})
}

// statusFor 將領域錯誤代碼對應到 HTTP 狀態碼。
func statusFor(code bank.Code) int {
	switch code {
	case bank.CodeMalformedInput, bank.CodeSameAccount:
		return http.StatusBadRequest
	case bank.CodeNotFound, bank.CodeSourceAccountNotFound, bank.CodeDestinationAccountNotFound:
		return http.StatusNotFound
	case bank.CodeInsufficientFunds:
		return http.StatusConflict
	case bank.CodeCurrencyMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
