// Package fabric wires the integration pieces (bus, registry, tracker,
// dashboard, adapter, health monitor, transaction logger, contracts) into
// one unit, and hosts the process-wide instance.
package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/adapter"
	"github.com/edufabric/integration-fabric/internal/config"
	"github.com/edufabric/integration-fabric/internal/contracts"
	"github.com/edufabric/integration-fabric/internal/dashboard"
	"github.com/edufabric/integration-fabric/internal/events"
	"github.com/edufabric/integration-fabric/internal/integration"
	"github.com/edufabric/integration-fabric/internal/registry"
	"github.com/edufabric/integration-fabric/internal/status"
	"github.com/edufabric/integration-fabric/internal/storage"
	"github.com/edufabric/integration-fabric/internal/txlog"
)

// Options carries the externalized settings of the fabric.
type Options struct {
	// PersistencePath enables durable critical-event persistence when set.
	PersistencePath string

	// MailboxSize is the per-subscriber event mailbox capacity.
	MailboxSize int

	// HistoryLimit bounds per-component status history.
	HistoryLimit int

	// PollingInterval is the health metric collection period.
	PollingInterval time.Duration

	// MaxTransactions bounds in-memory transaction retention.
	MaxTransactions int

	// ArchivePath enables the SQLite terminal-transaction archive when set.
	ArchivePath string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// OptionsFromConfig maps the loaded configuration onto fabric options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PersistencePath: config.ExpandHome(cfg.Events.PersistencePath),
		MailboxSize:     cfg.Events.MailboxSize,
		HistoryLimit:    cfg.Status.HistoryLimit,
		PollingInterval: time.Duration(cfg.Health.PollingInterval) * time.Second,
		MaxTransactions: cfg.Transactions.Max,
		ArchivePath:     config.ExpandHome(cfg.Transactions.ArchivePath),
	}
}

// Fabric bundles the integration pieces constructed as a unit.
type Fabric struct {
	Bus          *events.Bus
	Registry     *registry.Registry
	Tracker      *status.Tracker
	Dashboard    *dashboard.Dashboard
	Adapter      *adapter.Adapter
	Contracts    *contracts.Registry
	Monitor      *integration.Monitor
	Transactions *txlog.Logger

	archive *storage.TransactionArchive
	logger  *slog.Logger
}

// New constructs a fabric from options. The bus is created stopped; call
// Start to enable dispatch and health polling.
func New(opts Options) (*Fabric, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus := events.NewBus(
		events.WithLogger(logger),
		events.WithMailboxSize(opts.MailboxSize),
		events.WithPersistencePath(opts.PersistencePath),
	)

	reg := registry.New(registry.WithLogger(logger))

	tracker := status.NewTracker(
		status.WithLogger(logger),
		status.WithHistoryLimit(opts.HistoryLimit),
	)

	dash := dashboard.New(tracker, reg.Graph(), dashboard.WithLogger(logger))

	txOpts := []txlog.Option{txlog.WithLogger(logger)}
	if opts.MaxTransactions > 0 {
		txOpts = append(txOpts, txlog.WithMaxTransactions(opts.MaxTransactions))
	}

	var archive *storage.TransactionArchive
	if opts.ArchivePath != "" {
		var err error
		archive, err = storage.NewTransactionArchive(opts.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("open transaction archive; %w", err)
		}
		txOpts = append(txOpts, txlog.WithArchive(archive))
	}

	monitorOpts := []integration.Option{integration.WithLogger(logger)}
	if opts.PollingInterval > 0 {
		monitorOpts = append(monitorOpts, integration.WithPollingInterval(opts.PollingInterval))
	}

	return &Fabric{
		Bus:          bus,
		Registry:     reg,
		Tracker:      tracker,
		Dashboard:    dash,
		Adapter:      adapter.New(reg, tracker, dash, bus, adapter.WithLogger(logger)),
		Contracts:    contracts.NewRegistry(bus, contracts.WithLogger(logger)),
		Monitor:      integration.NewMonitor(monitorOpts...),
		Transactions: txlog.New(txOpts...),
		archive:      archive,
		logger:       logger,
	}, nil
}

// Start enables event dispatch and health polling.
func (f *Fabric) Start(ctx context.Context) {
	f.Bus.Start()
	f.Monitor.StartPolling(ctx)
	f.logger.Info("fabric started")
}

// Stop halts polling and drains the bus, then closes the archive.
func (f *Fabric) Stop() {
	f.Monitor.StopPolling()
	f.Bus.Stop()

	if f.archive != nil {
		if err := f.archive.Close(); err != nil {
			f.logger.Warn("close transaction archive", "error", err)
		}
	}
	f.logger.Info("fabric stopped")
}

// Archive exposes the terminal-transaction archive, or nil when disabled.
func (f *Fabric) Archive() *storage.TransactionArchive {
	return f.archive
}

var (
	defaultMu     sync.Mutex
	defaultFabric *Fabric
)

// Default returns the process-wide fabric, constructing it from the current
// configuration on first use.
func Default() (*Fabric, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultFabric == nil {
		f, err := New(OptionsFromConfig(config.Current()))
		if err != nil {
			return nil, err
		}
		defaultFabric = f
	}
	return defaultFabric, nil
}

// ResetForTest stops and discards the process-wide fabric. Test-only.
func ResetForTest() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultFabric != nil {
		defaultFabric.Stop()
		defaultFabric = nil
	}
}
