// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊，與 handler.go 分離：
//   - handler.go 定義「如何處理請求」
//   - router.go 定義「請求如何被導向」與中介層順序
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router 建立並回傳整個 HTTP 處理鏈。
// 所有端點同時掛在 /api/v1/ 與根路徑下。
func (s *Server) Router() http.Handler {
	v1 := chi.NewRouter()

	// 健康檢查：可供監控或 Docker liveness probe 使用。
	v1.Get("/health", s.health)

	v1.Route("/account", func(r chi.Router) {
		r.Post("/", s.createAccount)
		r.Get("/", s.listAccounts)
		r.Put("/", s.updateAccount)
		r.Get("/{id}", s.getAccount)
		r.Put("/{id}", s.updateAccount)
		r.Delete("/{id}", s.deleteAccount)
		r.Get("/{id}/transfers", s.accountTransfers)
	})

	v1.Route("/transfer", func(r chi.Router) {
		r.Get("/", s.listTransfers)
		r.Get("/{id}", s.getTransfer)
		r.With(s.idempotency).Post("/commit", s.commit)
	})

	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.RealIP)
	root.Use(s.requestLogger)
	root.Use(middleware.Recoverer)

	root.Mount("/api/v1", v1)
	root.Mount("/", v1)

	return root
}
