package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeclient"
)

// memoryStore is an in-process stand-in for the remote cart store.
type memoryStore struct {
	mu       sync.Mutex
	products map[int]models.Product
	lines    []models.CartLine
	calls    []string

	fetchErr   error
	reloadErr  error // returned by fetches once a write has landed
	writes     int
	addErr     error
	updateErr  error
	failRemove map[string]bool
}

func newMemoryStore(products ...models.Product) *memoryStore {
	m := &memoryStore{products: map[int]models.Product{}, failRemove: map[string]bool{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func product(id int, name, price string) models.Product {
	return models.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)}
}

func (m *memoryStore) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memoryStore) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memoryStore) put(line models.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

func (m *memoryStore) FetchCart(ctx context.Context) ([]models.CartLineWithProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("fetch")
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.reloadErr != nil && m.writes > 0 {
		return nil, m.reloadErr
	}
	out := make([]models.CartLineWithProduct, 0, len(m.lines))
	for _, l := range m.lines {
		lp := models.CartLineWithProduct{CartLine: l}
		if p, ok := m.products[l.ProductID]; ok {
			lp.Product = &p
		}
		out = append(out, lp)
	}
	return out, nil
}

func (m *memoryStore) AddLine(ctx context.Context, line models.CartLine) (models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("add")
	if m.addErr != nil {
		return models.CartLine{}, m.addErr
	}
	m.lines = append(m.lines, line)
	m.writes++
	return line, nil
}

func (m *memoryStore) UpdateLine(ctx context.Context, line models.CartLine) (models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("update")
	if m.updateErr != nil {
		return models.CartLine{}, m.updateErr
	}
	for i := range m.lines {
		if m.lines[i].ID == line.ID {
			m.lines[i] = line
			m.writes++
			return line, nil
		}
	}
	return models.CartLine{}, &storeclient.StatusError{Method: http.MethodPut, Path: "/cart/" + line.ID, StatusCode: http.StatusNotFound}
}

func (m *memoryStore) RemoveLine(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("remove")
	if m.failRemove[id] {
		return &storeclient.StatusError{Method: http.MethodDelete, Path: "/cart/" + id, StatusCode: http.StatusInternalServerError}
	}
	for i := range m.lines {
		if m.lines[i].ID == id {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			m.writes++
			return nil
		}
	}
	return &storeclient.StatusError{Method: http.MethodDelete, Path: "/cart/" + id, StatusCode: http.StatusNotFound}
}

func (m *memoryStore) ClearCart(ctx context.Context, ids []string) (storeclient.ClearResult, error) {
	res := storeclient.ClearResult{Removed: []string{}, Failed: map[string]error{}}
	for _, id := range ids {
		if err := m.RemoveLine(ctx, id); err != nil {
			res.Failed[id] = err
			continue
		}
		res.Removed = append(res.Removed, id)
	}
	if !res.OK() {
		return res, fmt.Errorf("clear cart: %d deletions failed", len(res.Failed))
	}
	return res, nil
}

// noticeLog records notices for assertions.
type noticeLog struct {
	mu      sync.Mutex
	notices []models.Notice
}

func (n *noticeLog) Notify(level models.NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, models.Notice{Level: level, Message: message})
}

func (n *noticeLog) Levels() []models.NoticeLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NoticeLevel, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, x.Level)
	}
	return out
}

// gatedFetcher hands each FetchCart call to the test, which answers it explicitly.
type gatedFetcher struct {
	calls chan chan fetchResult
}

type fetchResult struct {
	lines []models.CartLineWithProduct
	err   error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan chan fetchResult)}
}

func (g *gatedFetcher) FetchCart(ctx context.Context) ([]models.CartLineWithProduct, error) {
	reply := make(chan fetchResult, 1)
	select {
	case g.calls <- reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.lines, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func line(id string, productID int, price string, q int) models.CartLine {
	return models.CartLine{ID: id, ProductID: productID, Price: decimal.RequireFromString(price), Quantity: q}
}
