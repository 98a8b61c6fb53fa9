package api

import (
	"log"
	"net/http"

	"github.com/example/receiptflow/internal/api/middleware"
	"github.com/example/receiptflow/internal/auth"
)

func NewRouter(handlers *Handlers, tokens *auth.TokenService) http.Handler {
	mux := http.NewServeMux()
	protect := middleware.Auth(tokens)

	// Auth
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.Login(w, r)
	})

	// Status
	mux.Handle("/status", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.GetStatus(w, r)
	})))

	// Runs
	mux.Handle("/runs", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.StartRun(w, r)
	})))

	mux.Handle("/runs/current", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.StopRun(w, r)
	})))

	// Export
	mux.Handle("/export/orders.tsv", protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.ExportOrdersTSV(w, r)
	})))

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[api] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
