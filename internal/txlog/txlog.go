// Package txlog tracks nested transactions through a stage machine with
// indexed queries, scoped handles, and bounded retention.
package txlog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edufabric/integration-fabric/internal/metrics"
)

// DefaultMaxTransactions bounds in-memory retention before pruning.
const DefaultMaxTransactions = 1000

var (
	// ErrUnknownTransaction is returned when an id is not tracked.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrTerminalStage is returned for stage changes out of a terminal stage.
	ErrTerminalStage = errors.New("transaction is in a terminal stage")
)

// Stage is a transaction lifecycle stage.
type Stage string

const (
	StageCreated    Stage = "CREATED"
	StageStarted    Stage = "STARTED"
	StageProcessing Stage = "PROCESSING"
	StageCompleted  Stage = "COMPLETED"
	StageFailed     Stage = "FAILED"
	StageCanceled   Stage = "CANCELED"
)

// Terminal reports whether the stage is absorbing.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCanceled
}

// StageEntry records one stage transition.
type StageEntry struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// ErrorEntry records one error attributed to a component.
type ErrorEntry struct {
	ComponentID string    `json:"component_id"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// Transaction is one tracked unit of work. Copies are handed out by the
// logger; mutate through the logger API, not on the copy.
type Transaction struct {
	ID         string         `json:"id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Stage      Stage          `json:"stage"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Components []string       `json:"components,omitempty"`
	Stages     []StageEntry   `json:"stages"`
	Errors     []ErrorEntry   `json:"errors,omitempty"`
	StartTime  time.Time      `json:"start_time,omitzero"`
	EndTime    time.Time      `json:"end_time,omitzero"`
}

// Duration is the elapsed time between start and end, or zero while either
// endpoint is unset.
func (t Transaction) Duration() time.Duration {
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

func (t Transaction) clone() Transaction {
	out := t
	out.Metadata = cloneMap(t.Metadata)
	out.Tags = append([]string(nil), t.Tags...)
	out.Components = append([]string(nil), t.Components...)
	out.Stages = append([]StageEntry(nil), t.Stages...)
	out.Errors = append([]ErrorEntry(nil), t.Errors...)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Archiver persists terminal transactions pruned or completed by the logger.
type Archiver interface {
	Append(id, stage string, payload any, endedAt time.Time) error
}

// Logger tracks transactions with indices by parent, component, tag, and
// stage. It is safe for concurrent use.
type Logger struct {
	mu           sync.Mutex
	transactions map[string]*Transaction
	byParent     map[string][]string
	byComponent  map[string][]string
	byTag        map[string][]string
	byStage      map[Stage][]string

	counter uint64
	max     int
	archive Archiver
	logger  *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxTransactions sets the retention bound before pruning.
func WithMaxTransactions(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.max = n
		}
	}
}

// WithArchive attaches a terminal-transaction archive.
func WithArchive(a Archiver) Option {
	return func(l *Logger) { l.archive = a }
}

// WithLogger sets the slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

// New creates an empty transaction logger.
func New(opts ...Option) *Logger {
	l := &Logger{
		transactions: make(map[string]*Transaction),
		byParent:     make(map[string][]string),
		byComponent:  make(map[string][]string),
		byTag:        make(map[string][]string),
		byStage:      make(map[Stage][]string),
		max:          DefaultMaxTransactions,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// CreateOption configures a new transaction.
type CreateOption func(*Transaction)

// WithParent links the transaction to a parent id.
func WithParent(parentID string) CreateOption {
	return func(t *Transaction) { t.ParentID = parentID }
}

// WithMetadata seeds the transaction metadata.
func WithMetadata(metadata map[string]any) CreateOption {
	return func(t *Transaction) { t.Metadata = cloneMap(metadata) }
}

// WithTags attaches tags to the transaction.
func WithTags(tags ...string) CreateOption {
	return func(t *Transaction) { t.Tags = append(t.Tags, tags...) }
}

// Create starts tracking a new transaction in the CREATED stage. Ids encode
// the creation second plus a process-wide monotonic counter.
func (l *Logger) Create(name string, opts ...CreateOption) Transaction {
	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	tx := &Transaction{
		ID:    fmt.Sprintf("tx-%d-%d", now.Unix(), l.counter),
		Name:  name,
		Stage: StageCreated,
		Stages: []StageEntry{
			{Stage: StageCreated, Timestamp: now},
		},
	}

	for _, opt := range opts {
		opt(tx)
	}

	l.transactions[tx.ID] = tx
	l.indexLocked(tx)
	metrics.TransactionsTotal.WithLabelValues(string(StageCreated)).Inc()
	metrics.TransactionsActive.Inc()
	l.pruneLocked()

	return tx.clone()
}

// SetStage transitions a transaction to a new stage. Terminal stages are
// absorbing; the first transition into one stamps the end time and archives
// the transaction. Setting the current stage again is a no-op.
func (l *Logger) SetStage(id string, stage Stage, detail string) error {
	l.mu.Lock()
	tx, ok := l.transactions[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if tx.Stage == stage {
		l.mu.Unlock()
		return nil
	}
	if tx.Stage.Terminal() {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalStage, id, tx.Stage)
	}

	l.advanceLocked(tx, stage, detail)
	snapshot := tx.clone()
	l.mu.Unlock()

	l.archiveTerminal(snapshot)
	return nil
}

// advanceLocked applies a stage transition to a tracked transaction.
func (l *Logger) advanceLocked(tx *Transaction, stage Stage, detail string) {
	now := time.Now().UTC()

	l.unindexStageLocked(tx)
	tx.Stage = stage
	tx.Stages = append(tx.Stages, StageEntry{Stage: stage, Timestamp: now, Detail: detail})
	l.byStage[stage] = append(l.byStage[stage], tx.ID)

	if stage == StageStarted && tx.StartTime.IsZero() {
		tx.StartTime = now
	}
	if stage.Terminal() {
		tx.EndTime = now
		metrics.TransactionsActive.Dec()
		if !tx.StartTime.IsZero() {
			metrics.TransactionDuration.Observe(tx.EndTime.Sub(tx.StartTime).Seconds())
		}
	}

	metrics.TransactionsTotal.WithLabelValues(string(stage)).Inc()
}

// archiveTerminal sends a terminal transaction snapshot to the archive, if
// configured. Runs outside the logger lock so slow archive I/O cannot stall
// creates or queries; failures are logged, never propagated.
func (l *Logger) archiveTerminal(tx Transaction) {
	if l.archive == nil || !tx.Stage.Terminal() {
		return
	}
	if err := l.archive.Append(tx.ID, string(tx.Stage), tx, tx.EndTime); err != nil {
		l.logger.Warn("transaction archive failed", "transaction", tx.ID, "error", err)
	}
}

// Update replaces a tracked transaction's mutable fields wholesale and
// re-indexes it. Stage changes go through the same machine as SetStage.
func (l *Logger) Update(updated Transaction) error {
	l.mu.Lock()
	tx, ok := l.transactions[updated.ID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, updated.ID)
	}
	if tx.Stage.Terminal() && updated.Stage != tx.Stage {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalStage, updated.ID, tx.Stage)
	}

	l.unindexLocked(tx)
	tx.Name = updated.Name
	tx.ParentID = updated.ParentID
	tx.Metadata = cloneMap(updated.Metadata)
	tx.Tags = append([]string(nil), updated.Tags...)
	tx.Components = append([]string(nil), updated.Components...)
	tx.Errors = append([]ErrorEntry(nil), updated.Errors...)
	l.indexLocked(tx)

	if updated.Stage != tx.Stage {
		// indexLocked restored the old stage index; advance replaces it.
		l.advanceLocked(tx, updated.Stage, "")
	}
	snapshot := tx.clone()
	l.mu.Unlock()

	l.archiveTerminal(snapshot)
	return nil
}

// AddComponent appends a component to the transaction's ordered participant
// list; duplicates are ignored.
func (l *Logger) AddComponent(id, componentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	for _, c := range tx.Components {
		if c == componentID {
			return nil
		}
	}
	tx.Components = append(tx.Components, componentID)
	l.byComponent[componentID] = append(l.byComponent[componentID], id)
	return nil
}

// AddError records an error on the transaction without changing its stage.
func (l *Logger) AddError(id string, entry ErrorEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	tx.Errors = append(tx.Errors, entry)
	return nil
}

// SetMetadata sets one metadata key on the transaction.
func (l *Logger) SetMetadata(id, key string, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if tx.Metadata == nil {
		tx.Metadata = make(map[string]any)
	}
	tx.Metadata[key] = value
	return nil
}

// Get returns a copy of a tracked transaction.
func (l *Logger) Get(id string) (Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[id]
	if !ok {
		return Transaction{}, false
	}
	return tx.clone(), true
}

// ByParent returns child transactions of a parent id, creation order.
func (l *Logger) ByParent(parentID string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectLocked(l.byParent[parentID])
}

// ByComponent returns transactions a component participated in.
func (l *Logger) ByComponent(componentID string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectLocked(l.byComponent[componentID])
}

// ByTag returns transactions carrying a tag.
func (l *Logger) ByTag(tag string) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectLocked(l.byTag[tag])
}

// ByStage returns transactions currently in a stage.
func (l *Logger) ByStage(stage Stage) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collectLocked(l.byStage[stage])
}

// Active returns all non-terminal transactions.
func (l *Logger) Active() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Transaction
	for _, tx := range l.transactions {
		if !tx.Stage.Terminal() {
			out = append(out, tx.clone())
		}
	}
	return out
}

// Summary aggregates transaction counts, average terminal duration, and the
// failure rate among terminal transactions.
type Summary struct {
	Total       int           `json:"total"`
	Active      int           `json:"active"`
	ByStage     map[Stage]int `json:"by_stage"`
	AvgDuration time.Duration `json:"avg_duration"`
	ErrorRate   float64       `json:"error_rate"`
}

// Summary computes the current aggregate view.
func (l *Logger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		Total:   len(l.transactions),
		ByStage: make(map[Stage]int),
	}

	var terminal, failed int
	var totalDuration time.Duration
	for _, tx := range l.transactions {
		s.ByStage[tx.Stage]++
		if tx.Stage.Terminal() {
			terminal++
			totalDuration += tx.Duration()
			if tx.Stage == StageFailed {
				failed++
			}
		} else {
			s.Active++
		}
	}

	if terminal > 0 {
		s.AvgDuration = totalDuration / time.Duration(terminal)
		s.ErrorRate = float64(failed) / float64(terminal)
	}
	return s
}

// Reset wipes all transaction state. Test-only.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, tx := range l.transactions {
		if !tx.Stage.Terminal() {
			metrics.TransactionsActive.Dec()
		}
	}
	l.transactions = make(map[string]*Transaction)
	l.byParent = make(map[string][]string)
	l.byComponent = make(map[string][]string)
	l.byTag = make(map[string][]string)
	l.byStage = make(map[Stage][]string)
}

// removeID deletes the first occurrence of id from an index list,
// preserving order.
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

func (l *Logger) collectLocked(ids []string) []Transaction {
	out := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := l.transactions[id]; ok {
			out = append(out, tx.clone())
		}
	}
	return out
}

func (l *Logger) indexLocked(tx *Transaction) {
	if tx.ParentID != "" {
		l.byParent[tx.ParentID] = append(l.byParent[tx.ParentID], tx.ID)
	}
	for _, c := range tx.Components {
		l.byComponent[c] = append(l.byComponent[c], tx.ID)
	}
	for _, tag := range tx.Tags {
		l.byTag[tag] = append(l.byTag[tag], tx.ID)
	}
	l.byStage[tx.Stage] = append(l.byStage[tx.Stage], tx.ID)
}

func (l *Logger) unindexLocked(tx *Transaction) {
	if tx.ParentID != "" {
		l.byParent[tx.ParentID] = removeID(l.byParent[tx.ParentID], tx.ID)
		if len(l.byParent[tx.ParentID]) == 0 {
			delete(l.byParent, tx.ParentID)
		}
	}
	for _, c := range tx.Components {
		l.byComponent[c] = removeID(l.byComponent[c], tx.ID)
		if len(l.byComponent[c]) == 0 {
			delete(l.byComponent, c)
		}
	}
	for _, tag := range tx.Tags {
		l.byTag[tag] = removeID(l.byTag[tag], tx.ID)
		if len(l.byTag[tag]) == 0 {
			delete(l.byTag, tag)
		}
	}
	l.unindexStageLocked(tx)
}

func (l *Logger) unindexStageLocked(tx *Transaction) {
	l.byStage[tx.Stage] = removeID(l.byStage[tx.Stage], tx.ID)
	if len(l.byStage[tx.Stage]) == 0 {
		delete(l.byStage, tx.Stage)
	}
}

// pruneLocked enforces the retention bound: terminal transactions go first,
// oldest end time leading; if still over, active ones go oldest start first.
func (l *Logger) pruneLocked() {
	for len(l.transactions) > l.max {
		victim := l.oldestLocked(true)
		if victim == nil {
			victim = l.oldestLocked(false)
		}
		if victim == nil {
			return
		}
		if !victim.Stage.Terminal() {
			metrics.TransactionsActive.Dec()
		}
		l.unindexLocked(victim)
		delete(l.transactions, victim.ID)
	}
}

// oldestLocked finds the oldest terminal (by end time) or active (by start
// time, falling back to creation time) transaction.
func (l *Logger) oldestLocked(terminal bool) *Transaction {
	var oldest *Transaction
	var oldestAt time.Time

	for _, tx := range l.transactions {
		if tx.Stage.Terminal() != terminal {
			continue
		}
		at := tx.EndTime
		if !terminal {
			at = tx.StartTime
			if at.IsZero() && len(tx.Stages) > 0 {
				at = tx.Stages[0].Timestamp
			}
		}
		if oldest == nil || at.Before(oldestAt) {
			oldest = tx
			oldestAt = at
		}
	}
	return oldest
}
