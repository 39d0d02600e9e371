package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-crm/internal/borrower"
	"github.com/sells-group/lead-crm/internal/eligibility"
	"github.com/sells-group/lead-crm/internal/lead"
	"github.com/sells-group/lead-crm/internal/resilience"
	"github.com/sells-group/lead-crm/internal/store"
	"github.com/sells-group/lead-crm/pkg/fourlists"
	"github.com/sells-group/lead-crm/pkg/webhook"
)

// appEnv bundles the components a command runs against.
type appEnv struct {
	Store    store.Store
	Resolver *eligibility.Resolver
	Intake   *lead.Intake
	Syncer   *borrower.Syncer
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// initEnv validates the config for mode, opens and migrates the store, and
// wires the resolver, intake and syncer.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	events := initPublisher()
	resolver := eligibility.NewResolver(initListClient(), st)

	return &appEnv{
		Store:    st,
		Resolver: resolver,
		Intake:   lead.NewIntake(resolver, st, events),
		Syncer:   borrower.NewSyncer(st, events),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initListClient() fourlists.Client {
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             "fourlists",
		FailureThreshold: cfg.FourLists.FailureThreshold,
		ResetTimeout:     cfg.FourLists.ResetTimeout(),
	})
	return fourlists.NewClient(cfg.FourLists.APIKey,
		fourlists.WithBaseURL(cfg.FourLists.URL),
		fourlists.WithTimeout(cfg.FourLists.Timeout()),
		fourlists.WithRateLimit(cfg.FourLists.RateLimit),
		fourlists.WithCircuitBreaker(breaker),
	)
}

func initPublisher() webhook.Publisher {
	w := cfg.Webhook
	retry := resilience.DefaultRetryConfig()
	if w.MaxAttempts > 0 {
		retry.MaxAttempts = w.MaxAttempts
	}
	if w.InitialBackoffMS > 0 {
		retry.InitialBackoff = time.Duration(w.InitialBackoffMS) * time.Millisecond
	}
	timeout := 10 * time.Second
	if w.TimeoutSecs > 0 {
		timeout = time.Duration(w.TimeoutSecs) * time.Second
	}
	return webhook.NewClient(w.URL, w.Secret,
		webhook.WithHTTPClient(&http.Client{Timeout: timeout}),
		webhook.WithRetry(retry),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
