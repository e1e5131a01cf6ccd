// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/wabisabi/coins"
)

// DefaultRetryDelay is how long a wallet waits before trying again after
// a coinjoin attempt could not start.
const DefaultRetryDelay = 30 * time.Second

var (
	// ErrAlreadyMixing is returned when a wallet that is already mixing
	// is started again.
	ErrAlreadyMixing = errors.New("wallet is already mixing")

	// ErrNotMixing is returned when a wallet that is not mixing is
	// stopped.
	ErrNotMixing = errors.New("wallet is not mixing")

	// ErrManagerStopped is returned once the manager was stopped.
	ErrManagerStopped = errors.New("coinjoin manager stopped")
)

// StatusKind identifies a StatusChangedEvent.
type StatusKind int

// These constants describe the events a CoinJoinManager reports.
const (
	// StatusStarted is reported when a wallet starts mixing.
	StatusStarted StatusKind = iota

	// StatusStopped is reported when a wallet stops mixing.
	StatusStopped

	// StatusCoinJoinStatus carries the progress of a coinjoin attempt.
	StatusCoinJoinStatus

	// StatusStartError is reported when a coinjoin attempt could not
	// start or failed.
	StatusStartError

	// StatusCompleted carries the result of a coinjoin attempt.
	StatusCompleted
)

var statusKindStrings = map[StatusKind]string{
	StatusStarted:        "Started",
	StatusStopped:        "Stopped",
	StatusCoinJoinStatus: "CoinJoinStatus",
	StatusStartError:     "StartError",
	StatusCompleted:      "Completed",
}

// String returns the event name.
func (k StatusKind) String() string {
	if s, ok := statusKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown StatusKind (%d)", int(k))
}

// StatusChangedEvent reports a change of the mixing status of a wallet.
type StatusChangedEvent struct {
	Wallet string
	Kind   StatusKind

	// Progress is set for StatusCoinJoinStatus.
	Progress ProgressEvent

	// Result is set for StatusCompleted.
	Result CoinJoinResult

	// Err is set for StatusStartError.
	Err error
}

// ManagedWallet is a wallet a CoinJoinManager mixes.
type ManagedWallet struct {
	Name string

	// Config configures the wallet's coinjoin client. Its Progress
	// channel is owned by the manager.
	Config *Config

	// Candidates returns the coins that may be mixed.
	Candidates func() coins.CoinSet

	// Synchronized reports whether the wallet knows its coins. It may
	// be nil.
	Synchronized func() bool

	StopWhenAllMixed bool
}

type walletRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// CoinJoinManager mixes wallets one coinjoin after the other and reports
// their progress on a single channel, in order per wallet.
type CoinJoinManager struct {
	retryDelay time.Duration
	events     chan StatusChangedEvent

	mu      sync.Mutex
	running map[string]*walletRun

	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewCoinJoinManager returns a manager retrying failed attempts after
// retryDelay.
func NewCoinJoinManager(retryDelay time.Duration) *CoinJoinManager {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &CoinJoinManager{
		retryDelay: retryDelay,
		events:     make(chan StatusChangedEvent, 64),
		running:    make(map[string]*walletRun),
		quit:       make(chan struct{}),
	}
}

// StatusChanged returns the channel events are reported on. It must be
// drained.
func (m *CoinJoinManager) StatusChanged() <-chan StatusChangedEvent {
	return m.events
}

// StartCoinJoin starts mixing w until StopCoinJoin is called.
func (m *CoinJoinManager) StartCoinJoin(w *ManagedWallet) error {
	select {
	case <-m.quit:
		return ErrManagerStopped
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[w.Name]; ok {
		return ErrAlreadyMixing
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &walletRun{cancel: cancel, done: make(chan struct{})}
	m.running[w.Name] = run

	m.wg.Add(1)
	go m.runWallet(ctx, w, run)

	return nil
}

// StopCoinJoin stops mixing wallet name and waits for its attempt to
// return.
func (m *CoinJoinManager) StopCoinJoin(name string) error {
	m.mu.Lock()
	run, ok := m.running[name]
	m.mu.Unlock()

	if !ok {
		return ErrNotMixing
	}

	run.cancel()
	<-run.done

	return nil
}

// IsMixing reports whether wallet name is being mixed.
func (m *CoinJoinManager) IsMixing(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.running[name]
	return ok
}

// Stop stops mixing every wallet.
func (m *CoinJoinManager) Stop() {
	m.stopped.Do(func() {
		log.Infof("Coinjoin manager shutting down")

		m.mu.Lock()
		for _, run := range m.running {
			run.cancel()
		}
		m.mu.Unlock()

		close(m.quit)
		m.wg.Wait()
	})
}

func (m *CoinJoinManager) emit(e StatusChangedEvent) {
	select {
	case m.events <- e:
	case <-m.quit:
	}
}

// retry waits for the retry delay and reports whether the wallet still
// mixes.
func (m *CoinJoinManager) retry(ctx context.Context) bool {
	return sleep(ctx, m.retryDelay) == nil
}

// runWallet runs coinjoin attempts for w until ctx is done.
//
// NOTE: This must be run as a goroutine.
func (m *CoinJoinManager) runWallet(ctx context.Context, w *ManagedWallet,
	run *walletRun) {

	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.running, w.Name)
		m.mu.Unlock()

		run.cancel()
		close(run.done)
	}()

	progress := make(chan ProgressEvent)
	cfg := *w.Config
	cfg.Progress = progress

	client, err := NewCoinJoinClient(&cfg)
	if err != nil {
		m.emit(StatusChangedEvent{
			Wallet: w.Name, Kind: StatusStartError, Err: err,
		})
		return
	}

	log.Infof("Wallet %v started mixing", w.Name)
	m.emit(StatusChangedEvent{Wallet: w.Name, Kind: StatusStarted})
	defer func() {
		log.Infof("Wallet %v stopped mixing", w.Name)
		m.emit(StatusChangedEvent{Wallet: w.Name, Kind: StatusStopped})
	}()

	type outcome struct {
		result CoinJoinResult
		err    error
	}

	for {
		if w.Synchronized != nil && !w.Synchronized() {
			m.emit(StatusChangedEvent{
				Wallet: w.Name,
				Kind:   StatusStartError,
				Err: clientError(ErrBackendNotSynchronized,
					"wallet %v is not synchronized", w.Name),
			})
			if !m.retry(ctx) {
				return
			}
			continue
		}

		done := make(chan outcome, 1)
		go func() {
			result, err := client.StartCoinJoin(ctx, w.Candidates,
				w.StopWhenAllMixed)
			done <- outcome{result: result, err: err}
		}()

		var out outcome
	attempt:
		for {
			select {
			case e := <-progress:
				m.emit(StatusChangedEvent{
					Wallet:   w.Name,
					Kind:     StatusCoinJoinStatus,
					Progress: e,
				})

			case out = <-done:
				break attempt
			}
		}

		switch {
		case ctx.Err() != nil:
			return

		case out.err != nil:
			log.Infof("Wallet %v: coinjoin attempt failed: %v",
				w.Name, out.err)
			m.emit(StatusChangedEvent{
				Wallet: w.Name, Kind: StatusStartError, Err: out.err,
			})

			if w.StopWhenAllMixed &&
				IsCoinjoinError(out.err, ErrAllCoinsPrivate) {

				return
			}
			if !m.retry(ctx) {
				return
			}

		default:
			m.emit(StatusChangedEvent{
				Wallet: w.Name, Kind: StatusCompleted,
				Result: out.result,
			})
		}
	}
}
