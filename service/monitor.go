package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/arbo/memdb"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/types"
)

// ElectionMonitor is a background service that periodically scans the
// election store for operator-attention conditions: elections past their
// registration window that were never finalized, and unresolved finalize
// incidents. Findings go to the log; the monitor never mutates state.
type ElectionMonitor struct {
	storage  *storage.Storage
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewElectionMonitor creates a new ElectionMonitor service. If storage is
// nil, it uses a memory storage.
func NewElectionMonitor(stg *storage.Storage, interval time.Duration) *ElectionMonitor {
	if stg == nil {
		kv := memdb.New()
		stg = storage.New(kv)
	}
	return &ElectionMonitor{
		storage:  stg,
		interval: interval,
	}
}

// Start begins the periodic scan. It returns an error if the service is
// already running.
func (em *ElectionMonitor) Start(ctx context.Context) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	em.cancel = cancel

	go em.run(ctx)
	return nil
}

// Stop halts the monitoring service.
func (em *ElectionMonitor) Stop() {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.cancel != nil {
		em.cancel()
		em.cancel = nil
	}
}

func (em *ElectionMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(em.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			em.scan()
		}
	}
}

// scan performs one pass over the store and returns the number of stale
// elections and unresolved incidents found.
func (em *ElectionMonitor) scan() (stale, incidents int) {
	ids, err := em.storage.ListElections()
	if err != nil {
		log.Warnw("failed to list elections", "error", err.Error())
		return 0, 0
	}
	now := time.Now()
	for _, id := range ids {
		election, err := em.storage.Election(id)
		if err != nil {
			log.Warnw("failed to load election", "election", id.String(), "error", err.Error())
			continue
		}
		if election.Phase == types.PhaseRegistrationOpen &&
			!election.RegistrationEnd.IsZero() && now.After(election.RegistrationEnd) {
			stale++
			log.Warnw("election past registration window and not finalized",
				"election", id.String(), "registrationEnd", election.RegistrationEnd.String())
		}
	}
	incs, err := em.storage.ListIncidents()
	if err != nil {
		log.Warnw("failed to list incidents", "error", err.Error())
		return stale, 0
	}
	for _, inc := range incs {
		log.Errorf("unresolved finalize incident: election %s at %s: %s",
			inc.ElectionID.String(), inc.At.Format(time.RFC3339), inc.Detail)
	}
	return stale, len(incs)
}
