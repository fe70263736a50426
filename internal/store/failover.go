package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Failover routes every operation to a primary store and falls back to a
// secondary when the primary errors. After a failure the primary is marked
// down and skipped until checkInterval has passed, then one recovery attempt
// is made. Typical pairing is a remote primary (sheets, postgres) with a
// local sqlite fallback.
type Failover struct {
	primary  TableStore
	fallback TableStore
	logger   zerolog.Logger

	isDown        atomic.Bool
	mu            sync.Mutex
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewFailover wraps primary and fallback stores.
func NewFailover(primary, fallback TableStore, logger *zerolog.Logger) *Failover {
	return &Failover{
		primary:       primary,
		fallback:      fallback,
		logger:        logger.With().Str("component", "failover_store").Logger(),
		checkInterval: time.Minute,
	}
}

// usePrimary reports whether this call should go to the primary. While the
// primary is down, at most one call per checkInterval probes it.
func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) < f.checkInterval {
		return false
	}
	f.lastCheck = time.Now()
	return true
}

func (f *Failover) markDown(op string, err error) {
	f.isDown.Store(true)
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	f.logger.Warn().Err(err).Str("op", op).Msg("primary store failed, using fallback")
}

func (f *Failover) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary store recovered")
	}
}

func (f *Failover) Read(ctx context.Context, table string) ([][]string, error) {
	if f.usePrimary() {
		rows, err := f.primary.Read(ctx, table)
		if err == nil {
			f.markUp()
			return rows, nil
		}
		f.markDown("read "+table, err)
	}
	return f.fallback.Read(ctx, table)
}

func (f *Failover) Write(ctx context.Context, table string, rows [][]string) error {
	if f.usePrimary() {
		err := f.primary.Write(ctx, table, rows)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown("write "+table, err)
	}
	return f.fallback.Write(ctx, table, rows)
}

func (f *Failover) Append(ctx context.Context, table string, rows ...[]string) error {
	if f.usePrimary() {
		err := f.primary.Append(ctx, table, rows...)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown("append "+table, err)
	}
	return f.fallback.Append(ctx, table, rows...)
}

func (f *Failover) Close() error {
	err := f.primary.Close()
	if cerr := f.fallback.Close(); err == nil {
		err = cerr
	}
	return err
}
