// internal/jobcard/dispatcher.go
package jobcard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrShuttingDown = errors.New("service is shutting down")

// keyLock is a one-slot semaphore shared by all operations on one job card
type keyLock struct {
	sem  chan struct{}
	refs int
}

// Dispatcher serializes operations per job card while letting different job
// cards proceed in parallel
type Dispatcher struct {
	mu    sync.Mutex
	locks map[string]*keyLock

	inflight     sync.WaitGroup
	isShutdown   bool
	shutdownLock sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		locks: make(map[string]*keyLock),
	}
}

// Do runs fn while holding the lock for key. It gives up with ctx.Err() if the
// lock cannot be taken before ctx is done.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func() error) error {
	d.shutdownLock.RLock()
	if d.isShutdown {
		d.shutdownLock.RUnlock()
		return ErrShuttingDown
	}
	d.inflight.Add(1)
	d.shutdownLock.RUnlock()
	defer d.inflight.Done()

	l := d.acquire(key)
	defer d.release(key, l)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	return fn()
}

func (d *Dispatcher) acquire(key string) *keyLock {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		d.locks[key] = l
	}
	l.refs++
	return l
}

func (d *Dispatcher) release(key string, l *keyLock) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(d.locks, key)
	}
}

// Keys returns the number of job cards with operations waiting or running
func (d *Dispatcher) Keys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}

// Shutdown rejects new operations and waits for running ones to finish
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.shutdownLock.Lock()
	d.isShutdown = true
	d.shutdownLock.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}

// IsShutdown returns the current shutdown status
func (d *Dispatcher) IsShutdown() bool {
	d.shutdownLock.RLock()
	defer d.shutdownLock.RUnlock()
	return d.isShutdown
}
