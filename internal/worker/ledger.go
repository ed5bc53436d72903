// Package worker mirrors users' ledgers into spreadsheet tabs when their
// transactions change.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tueje/internal/amqp"
	"tueje/internal/core"
	"tueje/internal/events"
	applog "tueje/internal/log"
	"tueje/internal/sheets"
)

// LedgerSource reads one user's transactions outside any session.
type LedgerSource interface {
	LedgerOf(ctx context.Context, userID string) ([]core.Transaction, error)
}

type Config struct {
	// TabPrefix is prepended to the user id to name the tab.
	TabPrefix string

	// Debounce delays a user's export so bursts of changes cause one write (default: 2s)
	Debounce time.Duration

	// PollInterval is how often due exports are checked (default: 500ms)
	PollInterval time.Duration

	// MaxRetries is how many times a failed export is rescheduled (default: 3)
	MaxRetries int
}

func DefaultConfig() Config {
	return Config{
		TabPrefix:    "ledger-",
		Debounce:     2 * time.Second,
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   3,
	}
}

type pending struct {
	due     time.Time
	retries int
}

// LedgerMirror debounces change notifications per user and rewrites the
// user's tab with the full ledger.
type LedgerMirror struct {
	source LedgerSource
	writer sheets.LedgerWriter
	config Config
	now    func() time.Time

	queueMu sync.Mutex
	queue   map[string]pending

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLedgerMirror(source LedgerSource, writer sheets.LedgerWriter, config Config) *LedgerMirror {
	def := DefaultConfig()
	if config.Debounce <= 0 {
		config.Debounce = def.Debounce
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = def.MaxRetries
	}
	return &LedgerMirror{
		source: source,
		writer: writer,
		config: config,
		now:    time.Now,
		queue:  make(map[string]pending),
	}
}

// HandleMessage is the AMQP handler. It only schedules work, so the message
// is acknowledged right away.
func (m *LedgerMirror) HandleMessage(ctx context.Context, msg *amqp.EventMessage) error {
	if msg.UserID == "" {
		return nil
	}
	switch msg.Reason {
	case events.ReasonTransactions, "":
	default:
		return nil
	}
	m.Schedule(msg.UserID)
	slog.DebugContext(ctx, "Ledger export scheduled",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldUserID, msg.UserID,
		"origin", msg.Origin)
	return nil
}

// Schedule (re)starts the debounce window for userID.
func (m *LedgerMirror) Schedule(userID string) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	p := m.queue[userID]
	p.due = m.now().Add(m.config.Debounce)
	m.queue[userID] = p
}

// Pending reports how many users wait for an export.
func (m *LedgerMirror) Pending() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// Sync rewrites the tab of userID now.
func (m *LedgerMirror) Sync(ctx context.Context, userID string) error {
	txs, err := m.source.LedgerOf(ctx, userID)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	tab := m.config.TabPrefix + userID
	if err := m.writer.ReplaceTab(ctx, tab, sheets.LedgerRows(txs)); err != nil {
		return fmt.Errorf("write tab %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Ledger exported",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpSync,
		applog.FieldUserID, userID,
		"tab", tab,
		"transactions", len(txs))
	return nil
}

// Start begins the export loop. Returns an error if already running.
func (m *LedgerMirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("ledger mirror is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.runLoop(ctx)

	slog.InfoContext(ctx, "Ledger mirror started",
		applog.FieldComponent, applog.ComponentWorker,
		"debounce", m.config.Debounce,
		"poll_interval", m.config.PollInterval)
	return nil
}

// Stop gracefully stops the loop and waits for the in-flight export.
func (m *LedgerMirror) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	close(m.stopCh)

	select {
	case <-m.doneCh:
		slog.InfoContext(ctx, "Ledger mirror stopped gracefully", applog.FieldComponent, applog.ComponentWorker)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Ledger mirror stop timed out", applog.FieldComponent, applog.ComponentWorker)
		return ctx.Err()
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

func (m *LedgerMirror) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *LedgerMirror) runLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flushDue(ctx)
		}
	}
}

// flushDue exports every user whose debounce window has passed. Failures
// are rescheduled until MaxRetries, then dropped with an error log.
func (m *LedgerMirror) flushDue(ctx context.Context) int {
	now := m.now()
	due := make(map[string]pending)

	m.queueMu.Lock()
	for userID, p := range m.queue {
		if !p.due.After(now) {
			due[userID] = p
			delete(m.queue, userID)
		}
	}
	m.queueMu.Unlock()

	exported := 0
	for userID, p := range due {
		if ctx.Err() != nil {
			m.requeue(userID, p)
			continue
		}
		if err := m.Sync(ctx, userID); err != nil {
			m.handleFailure(ctx, userID, p, err)
			continue
		}
		exported++
	}
	return exported
}

func (m *LedgerMirror) handleFailure(ctx context.Context, userID string, p pending, err error) {
	p.retries++
	if p.retries > m.config.MaxRetries {
		slog.ErrorContext(ctx, "Ledger export failed permanently",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldUserID, userID,
			"retries", p.retries-1,
			applog.FieldError, err)
		return
	}
	backoff := m.config.Debounce * time.Duration(1<<p.retries)
	p.due = m.now().Add(backoff)
	slog.WarnContext(ctx, "Ledger export failed, will retry",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldUserID, userID,
		"retry", p.retries,
		"backoff", backoff,
		applog.FieldError, err)
	m.requeue(userID, p)
}

// requeue puts p back unless a newer change already scheduled the user.
func (m *LedgerMirror) requeue(userID string, p pending) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	if cur, ok := m.queue[userID]; ok {
		cur.retries = p.retries
		m.queue[userID] = cur
		return
	}
	m.queue[userID] = p
}
