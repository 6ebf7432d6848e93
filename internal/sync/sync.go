package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/viewshare/internal/store"
)

// finalExportTimeout bounds the export Stop runs on the way out.
const finalExportTimeout = 10 * time.Second

// Destination is the interface for an export target (S3, local file).
type Destination interface {
	// Write replaces the destination's copy with the JSONL payload.
	Write(ctx context.Context, data []byte) error
}

// Scheduler snapshots the session registry to its destinations on an
// interval. A destination is only rewritten when the set of session
// records changed since its last successful write, so an idle registry
// costs one list query per tick and no uploads. Failed destinations are
// retried on the next tick.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	// written[i] is the record digest last stored at destinations[i].
	written [][sha256.Size]byte
	ok      []bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations every interval.
func NewScheduler(s store.Store, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		written:      make([][sha256.Size]byte, len(destinations)),
		ok:           make([]bool, len(destinations)),
	}
}

// Start runs an export immediately and then on every tick until Stop.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop halts the ticker, waits for an in-flight export, then runs one last
// export so changes made since the previous tick are not lost. Stop
// without Start is a no-op.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	ctx, cancel := context.WithTimeout(context.Background(), finalExportTimeout)
	defer cancel()
	s.syncOnce(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	s.syncOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

// recordDigest hashes everything after the header line, which carries a
// timestamp and so differs on every export.
func recordDigest(data []byte) [sha256.Size]byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[i+1:]
	}
	return sha256.Sum256(data)
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	var buf bytes.Buffer
	if err := ExportJSONL(ctx, s.store, &buf); err != nil {
		s.logger.Error("sync: export failed", "err", err)
		return
	}
	data := buf.Bytes()
	digest := recordDigest(data)

	var wrote, failed int
	for i, dest := range s.destinations {
		if s.ok[i] && s.written[i] == digest {
			continue
		}
		if err := dest.Write(ctx, data); err != nil {
			s.ok[i] = false
			failed++
			s.logger.Error("sync: destination write failed", "destination", i, "err", err)
			continue
		}
		s.written[i] = digest
		s.ok[i] = true
		wrote++
	}

	if wrote == 0 && failed == 0 {
		s.logger.Debug("sync: registry unchanged, skipping export")
		return
	}
	s.logger.Info("sync: export completed", "written", wrote, "failed", failed, "bytes", len(data))
}
