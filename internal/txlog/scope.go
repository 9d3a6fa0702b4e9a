package txlog

import (
	"fmt"
	"time"
)

// Scope is a transaction handle bound to one component. It starts the
// transaction on creation; End releases it on every exit path, completing on
// success and failing with the recorded error otherwise.
type Scope struct {
	logger      *Logger
	id          string
	componentID string
}

// Begin creates, starts, and begins processing a transaction attributed to
// componentID, returning the scoped handle. Pair with a deferred End.
func (l *Logger) Begin(componentID, name string, opts ...CreateOption) *Scope {
	tx := l.Create(name, opts...)
	l.AddComponent(tx.ID, componentID)
	l.SetStage(tx.ID, StageStarted, "")
	l.SetStage(tx.ID, StageProcessing, "")

	return &Scope{logger: l, id: tx.ID, componentID: componentID}
}

// ID returns the transaction id the scope controls.
func (s *Scope) ID() string {
	return s.id
}

// SetMetadata sets one metadata key on the scoped transaction.
func (s *Scope) SetMetadata(key string, value any) error {
	return s.logger.SetMetadata(s.id, key, value)
}

// Process records a processing step attributed to a component, adding it to
// the participant list.
func (s *Scope) Process(componentID, action string) error {
	if err := s.logger.AddComponent(s.id, componentID); err != nil {
		return err
	}
	return s.logger.SetStage(s.id, StageProcessing, action)
}

// End releases the scope. With a nil (or nil-pointed) error the transaction
// completes; otherwise it fails and the error is recorded against the
// scope's component with its dynamic type name. A panic unwinding through a
// deferred End fails the transaction and is re-raised.
//
//	scope := logger.Begin("worker", "import")
//	defer scope.End(&err)
func (s *Scope) End(errp *error) {
	if r := recover(); r != nil {
		s.logger.AddError(s.id, ErrorEntry{
			ComponentID: s.componentID,
			Type:        "panic",
			Message:     fmt.Sprint(r),
			Timestamp:   time.Now().UTC(),
		})
		s.logger.SetStage(s.id, StageFailed, fmt.Sprint(r))
		panic(r)
	}

	if errp == nil || *errp == nil {
		s.logger.SetStage(s.id, StageCompleted, "")
		return
	}

	err := *errp
	s.logger.AddError(s.id, ErrorEntry{
		ComponentID: s.componentID,
		Type:        fmt.Sprintf("%T", err),
		Message:     err.Error(),
		Timestamp:   time.Now().UTC(),
	})
	s.logger.SetStage(s.id, StageFailed, err.Error())
}

// Cancel transitions the scoped transaction to CANCELED.
func (s *Scope) Cancel(detail string) error {
	return s.logger.SetStage(s.id, StageCanceled, detail)
}

// Run executes fn inside a scoped transaction. The transaction completes on
// a nil return and fails on a non-nil one; either way the scope is released,
// and fn's error is returned to the caller unchanged. A panic in fn fails
// the transaction before propagating.
func (l *Logger) Run(componentID, name string, fn func(*Scope) error) (err error) {
	scope := l.Begin(componentID, name)
	defer scope.End(&err)
	return fn(scope)
}
