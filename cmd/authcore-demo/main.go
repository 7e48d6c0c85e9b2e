// Command authcore-demo wires the engine against PostgreSQL (and
// optionally Redis) and serves a minimal JSON API exercising the full
// authentication surface. It exists for local exploration, not production.
//
// Configuration comes from the environment, optionally seeded from a .env
// file: DATABASE_DSN, REDIS_ADDR, LISTEN_ADDR, plus the AUTHCORE_*
// variables read by ConfigFromEnv.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	authcore "github.com/NLyne/authcore"
	"github.com/NLyne/authcore/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return errors.New("DATABASE_DSN is required")
	}

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return err
	}

	builder := authcore.New().
		WithConfig(authcore.ConfigFromEnv()).
		WithUserStore(postgres.NewUserStore(db)).
		WithRefreshTokenStore(postgres.NewRefreshTokenStore(db)).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		WithMetricsEnabled(true)

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		builder = builder.WithRedis(redis.NewClient(&redis.Options{Addr: addr}))
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           newHandler(engine),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("authcore demo listening on %s", listenAddr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newHandler(engine *authcore.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var input authcore.RegisterInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := engine.Register(withIP(r), input)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var input authcore.LoginInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := engine.Login(withIP(r), input)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("POST /refresh", func(w http.ResponseWriter, r *http.Request) {
		var input struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		pair, err := engine.Refresh(withIP(r), input.RefreshToken)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pair)
	})

	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		var input struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&input)
		_ = engine.Logout(withIP(r), input.RefreshToken)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		result, err := engine.ValidateAccess(withIP(r), token)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /metrics-snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.MetricsSnapshot())
	})

	return mux
}

func withIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.Context()
	}
	return authcore.WithClientIP(r.Context(), host)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, authcore.ErrInvalidCredentials),
		errors.Is(err, authcore.ErrAccountLocked),
		errors.Is(err, authcore.ErrMFARequired),
		errors.Is(err, authcore.ErrTOTPInvalid),
		errors.Is(err, authcore.ErrBackupCodeInvalid),
		errors.Is(err, authcore.ErrRefreshInvalid),
		errors.Is(err, authcore.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, authcore.ErrEmailExists):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, authcore.ErrPasswordPolicy), errors.Is(err, authcore.ErrEmailInvalid):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
