// Package bootstrap assembles a running votesync session from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"votesync/chain"
	"votesync/cmd/internal/passphrase"
	"votesync/config"
	"votesync/events"
	"votesync/observability"
	"votesync/session"
	"votesync/storage"
	"votesync/store"
	"votesync/voting"
	"votesync/wallet"
)

// Options overrides the pieces Open would otherwise derive from Config.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.SessionMetrics
	Dial    wallet.Dialer
	Bind    session.Binder
	Ledger  storage.Ledger
}

// App is a wired session: ledger, bridge, manager and store.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Ledger  storage.Ledger
	Bridge  *events.Bridge
	Manager *session.Manager
	Store   *store.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// Open wires an App from cfg using the keystore wallet and the configured
// ledger backend.
func Open(cfg *config.Config, logger *slog.Logger, metrics *observability.SessionMetrics) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	ledger, err := storage.Open(cfg.Ledger.Backend, cfg.Ledger.Path, cfg.Ledger.DSN)
	if err != nil {
		return nil, err
	}
	app, err := Build(Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Dial: wallet.NewKeystoreDialer(wallet.Config{
			RPCURL:       cfg.RPCURL,
			KeystoreDir:  cfg.KeystoreDir,
			Account:      cfg.Account,
			PollInterval: cfg.PollInterval.Duration,
			Passphrase:   passphrase.NewSource(cfg.PassphraseEnv).Func(),
			Logger:       logger,
		}),
		Bind:   session.BindVotingWith(voting.WithLogPollInterval(cfg.PollInterval.Duration)),
		Ledger: ledger,
	})
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}
	return app, nil
}

// Build wires an App from explicit parts. Ledger defaults to an in-memory
// ledger; Bind defaults to the generated contract binding.
func Build(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config required")
	}
	if opts.Dial == nil {
		return nil, errors.New("wallet dialer required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	contract, err := opts.Config.Contract()
	if err != nil {
		return nil, err
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = storage.NewMemLedger()
	}

	bridge := events.NewBridge(events.Config{Logger: logger, Metrics: opts.Metrics})
	mgr, err := session.New(session.Config{
		Guard:           chain.NewGuard(opts.Config.ExpectedNetworkID),
		Dial:            opts.Dial,
		ContractAddress: contract,
		Bind:            opts.Bind,
		Bridge:          bridge,
		Logger:          logger,
		Metrics:         opts.Metrics,
	})
	if err != nil {
		bridge.Close()
		return nil, fmt.Errorf("session manager: %w", err)
	}
	st, err := store.New(store.Config{
		Manager: mgr,
		Bridge:  bridge,
		Ledger:  ledger,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		mgr.Close()
		bridge.Close()
		return nil, fmt.Errorf("session store: %w", err)
	}
	return &App{
		Config:  opts.Config,
		Logger:  logger,
		Ledger:  ledger,
		Bridge:  bridge,
		Manager: mgr,
		Store:   st,
	}, nil
}

// Start runs the store's event loop in the background and boots the
// session. A boot error is returned but the loop keeps running, so a later
// wallet connection can still recover the session.
func (a *App) Start(ctx context.Context) error {
	if a.done == nil {
		runCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		a.done = make(chan struct{})
		go func() {
			defer close(a.done)
			if err := a.Store.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Warn("store loop stopped", slog.Any("error", err))
			}
		}()
	}
	return a.Store.Boot(ctx)
}

// Close stops the loop and releases the wallet, bridge and ledger.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.Store.Close()
	a.Manager.Close()
	a.Bridge.Close()
	return a.Ledger.Close()
}
