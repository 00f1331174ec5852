package tool

import (
	"sync"
	"time"
)

// InvokeObservation captures one tool invocation outcome.
type InvokeObservation struct {
	Tool        string
	DurationMS  int64
	Success     bool
	FailureKind string
}

// RetryObservation captures one scheduled retry for an invocation.
type RetryObservation struct {
	Tool    string
	Attempt int
	Cause   string
	Wait    time.Duration
}

// HealthObservation captures one health-probe outcome.
type HealthObservation struct {
	Tool         string
	State        HealthState
	DurationMS   int64
	FailureCount int
	Cause        string
}

// Observer receives tool-level observability events.
type Observer interface {
	ObserveInvoke(observation InvokeObservation)
	ObserveRetry(observation RetryObservation)
	ObserveHealth(observation HealthObservation)
}

type noopObserver struct{}

func (noopObserver) ObserveInvoke(InvokeObservation) {}
func (noopObserver) ObserveRetry(RetryObservation)   {}
func (noopObserver) ObserveHealth(HealthObservation) {}

var (
	observerMu     sync.RWMutex
	activeObserver Observer = noopObserver{}
)

// SetObserver sets the process-wide tool observability observer.
func SetObserver(observer Observer) {
	observerMu.Lock()
	defer observerMu.Unlock()
	if observer == nil {
		activeObserver = noopObserver{}
		return
	}
	activeObserver = observer
}

func emitInvokeObservation(observation InvokeObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveInvoke(observation)
}

func emitRetryObservation(observation RetryObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveRetry(observation)
}

func emitHealthObservation(observation HealthObservation) {
	observerMu.RLock()
	observer := activeObserver
	observerMu.RUnlock()
	observer.ObserveHealth(observation)
}
