package services

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// ErrStateClosed is returned by Refresh once the state has been torn down.
var ErrStateClosed = errors.New("cart state closed")

// CartFetcher lists the remote cart joined with products.
type CartFetcher interface {
	FetchCart(ctx context.Context) ([]models.CartLineWithProduct, error)
}

// CartSnapshot, an immutable view of the cart at one generation.
type CartSnapshot struct {
	Lines       []models.CartLineWithProduct `json:"lines"`
	Generation  uint64                       `json:"generation"`
	Fingerprint string                       `json:"fingerprint"`
}

// Total returns the sum of line subtotals.
func (s CartSnapshot) Total() decimal.Decimal {
	return models.CartTotal(s.Lines)
}

// ItemCount returns the sum of line quantities.
func (s CartSnapshot) ItemCount() int {
	return models.CartItemCount(s.Lines)
}

// IsEmpty reports whether the cart has no lines.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Find returns the line with the given id.
func (s CartSnapshot) Find(id string) (models.CartLineWithProduct, bool) {
	for _, l := range s.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return models.CartLineWithProduct{}, false
}

// IDs returns the line ids.
func (s CartSnapshot) IDs() []string {
	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.ID)
	}
	return ids
}

// CartState holds one session's cart snapshot. The snapshot only changes through
// Refresh, which replaces it wholesale.
//
// Each Refresh takes a ticket when it is issued. A completed fetch is applied only if
// no later-issued refresh has been applied already, so the latest request wins no
// matter in which order responses arrive. After Close every result is discarded.
type CartState struct {
	fetcher CartFetcher

	life   context.Context
	cancel context.CancelFunc

	issued atomic.Uint64

	mu          sync.RWMutex
	snapshot    CartSnapshot
	applied     uint64
	lastErr     error
	closed      bool
	subscribers map[int]func(CartSnapshot)
	nextSub     int
}

// NewCartState returns an empty state that refreshes through fetcher.
func NewCartState(fetcher CartFetcher) *CartState {
	life, cancel := context.WithCancel(context.Background())
	empty := []models.CartLineWithProduct{}
	return &CartState{
		fetcher:     fetcher,
		life:        life,
		cancel:      cancel,
		snapshot:    CartSnapshot{Lines: empty, Fingerprint: fingerprint(empty)},
		subscribers: map[int]func(CartSnapshot){},
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *CartState) Snapshot() CartSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.clone()
}

// Err returns the error of the last completed refresh, nil if it succeeded.
func (s *CartState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Subscribe registers fn to receive every applied snapshot. The returned func unsubscribes.
func (s *CartState) Subscribe(fn func(CartSnapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Refresh fetches the cart and replaces the snapshot. On failure the previous snapshot
// is kept and the error is returned. A result superseded by a newer refresh is dropped
// without error.
func (s *CartState) Refresh(ctx context.Context) error {
	if s.life.Err() != nil {
		return ErrStateClosed
	}
	ticket := s.issued.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	lines, err := s.fetcher.FetchCart(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStateClosed
	}
	if ticket <= s.applied {
		s.mu.Unlock()
		log.WithFields(log.Fields{"ticket": ticket, "applied": s.applied}).
			Debug("CartState.Refresh - superseded result dropped")
		return nil
	}
	s.applied = ticket
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return errors.Wrap(err, "refresh cart")
	}

	lines = cloneLines(lines)
	s.snapshot = CartSnapshot{Lines: lines, Generation: ticket, Fingerprint: fingerprint(lines)}
	s.lastErr = nil
	snap := s.snapshot.clone()
	subs := make([]func(CartSnapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap.clone())
	}
	return nil
}

// Close cancels in-flight refreshes and discards any result that arrives later.
func (s *CartState) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.subscribers = map[int]func(CartSnapshot){}
	s.cancel()
}

// Done is closed when the state is closed.
func (s *CartState) Done() <-chan struct{} {
	return s.life.Done()
}

// Closed reports whether Close has been called.
func (s *CartState) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s CartSnapshot) clone() CartSnapshot {
	s.Lines = cloneLines(s.Lines)
	return s
}

func cloneLines(src []models.CartLineWithProduct) []models.CartLineWithProduct {
	out := make([]models.CartLineWithProduct, len(src))
	for i, l := range src {
		if l.Product != nil {
			p := *l.Product
			l.Product = &p
		}
		out[i] = l
	}
	return out
}

// fingerprint digests the lines in id order; insertion order does not matter.
func fingerprint(lines []models.CartLineWithProduct) string {
	canon := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		canon = append(canon, l.CartLine)
	}
	sort.Slice(canon, func(i, j int) bool { return canon[i].ID < canon[j].ID })

	raw, _ := json.Marshal(canon)
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
