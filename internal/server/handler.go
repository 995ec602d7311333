// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP RESTful 介面，作為 bank 模組的應用層 (Application Layer)。
// 每個 handler 僅負責：
//  1. 接收與驗證 HTTP 請求（JSON 解碼、UUID 解析）
//  2. 呼叫 bank 層執行商業邏輯
//  3. 回傳標準化 JSON 回應；領域錯誤依 Code 對應 HTTP 狀態碼
//
// bank 不依賴 HTTP，server 依賴 bank。
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"moneytransfer/internal/bank"
)

// Server 為 HTTP 層核心結構：
// - Bank：注入商業邏輯層（銀行核心）。
// - rdb：冪等快取使用的 Redis；nil 時停用冪等機制。
type Server struct {
	Bank   *bank.Bank
	logger *zap.Logger
	rdb    *redis.Client
	ttl    time.Duration
}

// Option 設定 Server 的可選參數。
type Option func(*Server)

// WithLogger 注入請求日誌使用的 logger。
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIdempotency 以 Redis 啟用 Idempotency-Key 機制，成功回應快取 ttl。
func WithIdempotency(rdb *redis.Client, ttl time.Duration) Option {
	return func(s *Server) {
		s.rdb = rdb
		s.ttl = ttl
	}
}

// NewServer 建立新的 HTTP 伺服器。
func NewServer(b *bank.Bank, opts ...Option) *Server {
	s := &Server{Bank: b, logger: zap.NewNop(), ttl: defaultIdempotencyTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type accountRequest struct {
	ID      *uuid.UUID `json:"id,omitempty"`
	Name    string     `json:"name"`
	Balance bank.Money `json:"balance"`
}

type transferRequest struct {
	FromAccount uuid.UUID  `json:"from_account"`
	ToAccount   uuid.UUID  `json:"to_account"`
	Amount      bank.Money `json:"amount"`
}

// createAccount 處理 POST /account/ → 201 與新帳戶內容（含 id）。
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := s.Bank.CreateAccount(req.Name, req.Balance)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// listAccounts 處理 GET /account/。
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Bank.ListAccounts())
}

// getAccount 處理 GET /account/{id}。
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.Bank.GetAccount(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// updateAccount 處理 PUT /account/（id 在 body）與 PUT /account/{id}。
// 兩處都有 id 時必須一致。
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decode(w, r, &req) {
		return
	}

	var id uuid.UUID
	switch {
	case chi.URLParam(r, "id") != "":
		var ok bool
		if id, ok = pathID(w, r); !ok {
			return
		}
		if req.ID != nil && *req.ID != id {
			writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "id", Message: "body id does not match path id"})
			return
		}
	case req.ID != nil:
		id = *req.ID
	default:
		writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "id", Message: "account id is required"})
		return
	}

	a, err := s.Bank.UpdateAccount(id, bank.Account{Name: req.Name, Balance: req.Balance})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// deleteAccount 處理 DELETE /account/{id} → 204；重複刪除同樣回 204。
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.Bank.DeleteAccount(id)
	w.WriteHeader(http.StatusNoContent)
}

// accountTransfers 處理 GET /account/{id}/transfers。
func (s *Server) accountTransfers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ts, err := s.Bank.AccountTransfers(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

// commit 處理轉帳：
//
//	POST /transfer/commit  → JSON {from_account, to_account, amount:{currency, amount}}
//
// 成功回傳已提交的轉帳紀錄，其 id 即為提交收據。
func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}
	if req.FromAccount == uuid.Nil {
		writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "from_account", Message: "from_account is required"})
		return
	}
	if req.ToAccount == uuid.Nil {
		writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "to_account", Message: "to_account is required"})
		return
	}

	t, err := s.Bank.Commit(req.FromAccount, req.ToAccount, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// listTransfers 處理 GET /transfer/。
func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Bank.ListTransfers())
}

// getTransfer 處理 GET /transfer/{id}。
func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := s.Bank.GetTransfer(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// health 提供健康檢查端點：GET /health。
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// maxRequestBody 為單一請求 body 的大小上限。
const maxRequestBody = 1 << 20

// decode 解析 JSON body；失敗時已寫出 400 並回傳 false。
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "body", Message: err.Error()})
		return false
	}
	return true
}

// pathID 解析路徑中的 {id}；格式錯誤時已寫出 400 並回傳 false。
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeErr(w, &bank.Error{Code: bank.CodeMalformedInput, Field: "id", Message: "invalid id " + raw})
		return uuid.Nil, false
	}
	return id, true
}
