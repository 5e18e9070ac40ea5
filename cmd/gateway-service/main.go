// cmd/gateway-service/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gatehouse/internal/federation"
	"gatehouse/internal/gate"
	"gatehouse/internal/login"
	"gatehouse/internal/upstream"
	"gatehouse/pkg/config"
	"gatehouse/pkg/db"
	"gatehouse/pkg/logger"
	"gatehouse/pkg/middleware"
	"gatehouse/pkg/ratelimit"
	"gatehouse/pkg/tenants"
	"gatehouse/pkg/tokens"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate limiter store: shared redis when configured, per-process
	// sharded map otherwise.
	var limiter ratelimit.Store
	if rdb != nil {
		limiter = ratelimit.NewRedisStore(rdb)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.Sweep(ctx, time.Minute)
		limiter = mem
	}

	reg := tenants.NewRegistry(limiter)
	for _, t := range loadTenants(cfg, pool, log) {
		if err := reg.Register(t); err != nil {
			// Duplicate ids mean the configuration is inconsistent; do not
			// serve traffic on top of it.
			log.Fatalw("tenant register", "tenant", t.ID, "err", err)
		}
	}

	var states federation.StateStore
	if rdb != nil {
		states = federation.NewRedisStateStore(rdb)
	} else {
		mem := federation.NewMemoryStateStore()
		go mem.Sweep(ctx, time.Minute)
		states = mem
	}

	api := upstream.NewClient(cfg.UpstreamAPIURL, cfg.UpstreamTimeout)
	intro := tokens.NewIntrospector(cfg.Issuer, cfg.JWKSURL)
	g := gate.New(reg, intro, cfg, log)

	provider := federation.NewGoogleProvider(cfg.GoogleClientID, cfg.BasePublicURL)
	fedH := federation.NewHandler(reg, states, federation.NewUpstreamExchanger(api), provider,
		cfg.FederationStateTTL, cfg.UpstreamTimeout, log)

	audit := login.NewRecorder(pool, log)
	if err := audit.EnsureSchema(ctx); err != nil {
		log.Fatalw("audit schema", "err", err)
	}
	loginH := login.NewHandler(reg, login.NewService(api), audit, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing())
	r.Use(middleware.CORS(reg, cfg.DefaultTenantID))
	r.Use(g.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/auth/login", loginH.GetLogin)
	r.Post("/auth/login", loginH.PostLogin)
	r.Get("/auth/register", loginH.GetLogin)
	r.Post("/auth/register", loginH.PostRegister)
	r.Get("/auth/google", fedH.Start)
	r.Get("/auth/callback/google", fedH.Callback)
	r.Post("/auth/refresh", loginH.PostRefresh)
	r.Post("/auth/logout", loginH.PostLogout)
	r.Get("/auth/error", errorPage)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		t := gate.TenantFrom(r.Context())
		writeJSON(w, map[string]any{"service": "gatehouse", "tenant": t.Name})
	})
	r.Get("/dashboard", protectedPage)
	r.Get("/profile", protectedPage)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("listen", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown", "err", err)
	}
	log.Infow("gateway stopped")
}

// loadTenants resolves the tenant source precedence: Postgres, YAML
// file, env seed, then a dev default.
func loadTenants(cfg config.Config, pool *pgxpool.Pool, log *zap.SugaredLogger) []tenants.TenantConfig {
	if pool != nil {
		ctx := context.Background()
		if err := tenants.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("tenant schema", "err", err)
		}
		if err := tenants.SeedFromEnv(ctx, pool, cfg.TenantSeedJSON); err != nil {
			log.Fatalw("tenant seed", "err", err)
		}
		loaded, err := tenants.LoadAll(ctx, pool, log)
		if err != nil {
			log.Fatalw("tenant load", "err", err)
		}
		if len(loaded) > 0 {
			return loaded
		}
	}
	if cfg.TenantsFile != "" {
		loaded, err := tenants.LoadFile(cfg.TenantsFile)
		if err != nil {
			log.Fatalw("tenants file", "err", err)
		}
		return loaded
	}
	if cfg.TenantSeedJSON != "" {
		loaded, err := tenants.ParseSeedJSON(cfg.TenantSeedJSON)
		if err != nil {
			log.Fatalw("tenant seed json", "err", err)
		}
		return loaded
	}
	log.Infow("no tenant source configured, registering dev default", "tenant", cfg.DefaultTenantID)
	return []tenants.TenantConfig{tenants.DefaultTenant(cfg.DefaultTenantID, cfg.BasePublicURL)}
}

func errorPage(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	q := r.URL.Query()
	writeJSON(w, map[string]any{
		"error":             q.Get("error"),
		"error_description": q.Get("error_description"),
		"tenant":            t.Name,
		"theme":             t.Theme,
	})
}

func protectedPage(w http.ResponseWriter, r *http.Request) {
	t := gate.TenantFrom(r.Context())
	writeJSON(w, map[string]any{"subject": gate.SubjectFrom(r.Context()), "tenant": t.Name})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
