package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"futures-core/internal/strategy"
	"futures-core/pkg/db"
	"futures-core/pkg/exchanges/common"
)

var (
	// ErrNotFound reports a client id the store has never seen (or has
	// already hard-deleted).
	ErrNotFound = errors.New("order: record not found")
	// ErrDuplicateID reports an attempt to create a second record under an
	// already tracked client id.
	ErrDuplicateID = errors.New("order: duplicate client id")
)

// Store holds every tracked order keyed by client id, with SQLite
// write-through so a restart resumes with the same view. All methods are
// safe for concurrent use; the account-stream goroutine and the control
// loop both touch it.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
	db      *db.Database // nil in tests that only need the in-memory map
}

func NewStore(database *db.Database) *Store {
	return &Store{records: make(map[string]Record), db: database}
}

// Load hydrates the in-memory map from the database at startup.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.records[row.ClientID] = fromModel(row)
	}
	return nil
}

// Create registers a freshly submitted order in state NEW.
func (s *Store) Create(ctx context.Context, r Record) error {
	s.mu.Lock()
	if _, ok := s.records[r.ClientID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ClientID)
	}
	s.records[r.ClientID] = r
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.CreateOrder(ctx, r.toModel()); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the record for clientID.
func (s *Store) Get(clientID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[clientID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, clientID)
	}
	return r, nil
}

// List returns a snapshot of every tracked record.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// OpenRecords returns the records still eligible for fills.
func (s *Store) OpenRecords() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.Open() {
			out = append(out, r)
		}
	}
	return out
}

// MarkFailed flags a record whose dispatch errored; the record stays for
// post-mortem but never transitions again.
func (s *Store) MarkFailed(ctx context.Context, clientID string) error {
	s.mu.Lock()
	r, ok := s.records[clientID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, clientID)
	}
	r.Failed = true
	s.records[clientID] = r
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.MarkOrderFailed(ctx, clientID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Delete removes a record entirely.
func (s *Store) Delete(ctx context.Context, clientID string) error {
	s.mu.Lock()
	_, ok := s.records[clientID]
	delete(s.records, clientID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, clientID)
	}
	if s.db != nil {
		if err := s.db.DeleteOrder(ctx, clientID); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
	}
	return nil
}

// ApplyExecution reconciles one execution report into the store:
//
//	NEW                 already tracked locally, nothing to change
//	PARTIALLY_FILLED    update fill price and executed quantity in place
//	FILLED              same update, record becomes terminal
//	REJECTED            status updated in place, record retained
//	CANCELED, EXPIRED   record hard-deleted
//
// Reports for unknown client ids (manual orders, other sessions) return
// ErrNotFound and leave the store untouched. Reports against failed or
// already terminal records are dropped: the stream can replay out of
// order on reconnect, and a late CANCELED must not erase a filled row.
func (s *Store) ApplyExecution(ctx context.Context, rep common.ExecutionReport) (Record, error) {
	s.mu.Lock()
	r, ok := s.records[rep.ClientID]
	if !ok {
		s.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, rep.ClientID)
	}
	if r.Failed {
		s.mu.Unlock()
		log.Printf("order: dropping %s update for failed order %s", rep.Status, rep.ClientID)
		return r, nil
	}
	if r.Status.Terminal() {
		s.mu.Unlock()
		return r, nil
	}

	switch rep.Status {
	case common.StatusNew:
		s.mu.Unlock()
		return r, nil

	case common.StatusPartiallyFilled, common.StatusFilled:
		r.Status = rep.Status
		if p := rep.FillPrice(); p > 0 {
			r.AvgFillPrice = p
		}
		if rep.AvgPrice > 0 {
			r.AvgFillPrice = rep.AvgPrice
		}
		r.ExecutedQty = rep.ExecutedQty
		s.records[rep.ClientID] = r
		s.mu.Unlock()
		return r, s.persistExecution(ctx, r)

	case common.StatusRejected:
		r.Status = common.StatusRejected
		s.records[rep.ClientID] = r
		s.mu.Unlock()
		return r, s.persistExecution(ctx, r)

	case common.StatusCanceled, common.StatusExpired:
		delete(s.records, rep.ClientID)
		s.mu.Unlock()
		r.Status = rep.Status
		if s.db != nil {
			if err := s.db.DeleteOrder(ctx, rep.ClientID); err != nil && !errors.Is(err, db.ErrNotFound) {
				return r, err
			}
		}
		return r, nil

	default:
		s.mu.Unlock()
		log.Printf("order: ignoring unknown status %q for %s", rep.Status, rep.ClientID)
		return r, nil
	}
}

func (s *Store) persistExecution(ctx context.Context, r Record) error {
	if s.db == nil {
		return nil
	}
	err := s.db.UpdateOrderExecution(ctx, r.ClientID, string(r.Status), r.AvgFillPrice, r.ExecutedQty)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	return err
}

// NetExposure inspects live and filled records and reports the most
// recently submitted non-neutral direction. Used to rebuild the engine's
// exposure flags after a restart.
func (s *Store) NetExposure() (long, short bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest Record
	found := false
	for _, r := range s.records {
		if r.Failed || r.Effect == strategy.Neutral {
			continue
		}
		if !r.Filled() && r.Status != common.StatusNew {
			continue
		}
		if !found || r.SubmittedAt.After(latest.SubmittedAt) {
			latest, found = r, true
		}
	}
	if !found {
		return false, false
	}
	return latest.Effect == strategy.OpensLong, latest.Effect == strategy.OpensShort
}
