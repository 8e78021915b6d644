package database

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// dbData mirrors the db.json layout used by json-server.
type dbData struct {
	Products   []models.Product  `json:"products"`
	Categories []models.Category `json:"categories"`
	Cart       []models.CartLine `json:"cart"`
}

func (d *dbData) ensure() {
	if d.Products == nil {
		d.Products = []models.Product{}
	}
	if d.Categories == nil {
		d.Categories = []models.Category{}
	}
	if d.Cart == nil {
		d.Cart = []models.CartLine{}
	}
}

// JSONDatabase keeps the whole store in memory and rewrites the JSON file on every change.
type JSONDatabase struct {
	mu       sync.RWMutex
	data     dbData
	filePath string
}

// NewDatabase opens the JSON file at filePath, creating an empty one if it is missing.
func NewDatabase(filePath string) (*JSONDatabase, error) {
	db := &JSONDatabase{filePath: filePath}
	if err := db.loadData(); err != nil {
		return nil, errors.Wrapf(err, "load %s", filePath)
	}
	log.WithFields(log.Fields{
		"file":       filePath,
		"products":   len(db.data.Products),
		"categories": len(db.data.Categories),
		"cart":       len(db.data.Cart),
	}).Info("JSONDatabase - loaded")
	return db, nil
}

// LoadSeed reads a db.json file without keeping it open for writes.
func LoadSeed(filePath string) ([]models.Product, []models.Category, []models.CartLine, error) {
	var d dbData
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, nil, nil, errors.Wrapf(err, "parse %s", filePath)
		}
	}
	d.ensure()
	return d.Products, d.Categories, d.Cart, nil
}

func (db *JSONDatabase) loadData() error {
	if _, err := os.Stat(db.filePath); os.IsNotExist(err) {
		db.data.ensure()
		return db.saveData()
	}

	fileData, err := os.ReadFile(db.filePath)
	if err != nil {
		return err
	}
	if len(fileData) == 0 {
		db.data.ensure()
		return nil
	}
	if err := json.Unmarshal(fileData, &db.data); err != nil {
		return err
	}
	db.data.ensure()
	return nil
}

func (db *JSONDatabase) saveData() error {
	data, err := json.MarshalIndent(db.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(db.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	// readers of the file never observe a partially written db.json
	tmp := db.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, db.filePath)
}

// saveCart swaps in next and persists it, keeping the previous cart in
// memory when the write fails.
func (db *JSONDatabase) saveCart(next []models.CartLine) error {
	prev := db.data.Cart
	db.data.Cart = next
	if err := db.saveData(); err != nil {
		db.data.Cart = prev
		return err
	}
	return nil
}

// ListProducts returns the products matching filter.
func (db *JSONDatabase) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return filterProducts(db.data.Products, filter), nil
}

// GetProductByID returns the product with the given id.
func (db *JSONDatabase) GetProductByID(_ context.Context, id int) (*models.Product, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, p := range db.data.Products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, os.ErrNotExist
}

// ListCategories returns every category ordered by id.
func (db *JSONDatabase) ListCategories(_ context.Context) ([]models.Category, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	categories := make([]models.Category, len(db.data.Categories))
	copy(categories, db.data.Categories)
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

// ListCartLines returns every cart line in insertion order.
func (db *JSONDatabase) ListCartLines(_ context.Context) ([]models.CartLine, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	lines := make([]models.CartLine, len(db.data.Cart))
	copy(lines, db.data.Cart)
	return lines, nil
}

// GetCartLine returns the cart line with the given id.
func (db *JSONDatabase) GetCartLine(_ context.Context, id string) (*models.CartLine, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, l := range db.data.Cart {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, os.ErrNotExist
}

// CreateCartLine appends a new cart line, assigning an id when the client sent none.
func (db *JSONDatabase) CreateCartLine(_ context.Context, line *models.CartLine) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	for _, l := range db.data.Cart {
		if l.ID == line.ID {
			return ErrDuplicateID
		}
	}
	return db.saveCart(append(slices.Clone(db.data.Cart), *line))
}

// ReplaceCartLine overwrites the full record of an existing cart line.
func (db *JSONDatabase) ReplaceCartLine(_ context.Context, line *models.CartLine) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, l := range db.data.Cart {
		if l.ID == line.ID {
			next := slices.Clone(db.data.Cart)
			next[i] = *line
			return db.saveCart(next)
		}
	}
	return os.ErrNotExist
}

// DeleteCartLine removes one cart line.
func (db *JSONDatabase) DeleteCartLine(_ context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, l := range db.data.Cart {
		if l.ID == id {
			return db.saveCart(slices.Delete(slices.Clone(db.data.Cart), i, i+1))
		}
	}
	return os.ErrNotExist
}

// Ping always succeeds; the file is only touched on writes.
func (db *JSONDatabase) Ping(context.Context) error {
	return nil
}

// Close flushes the current state to disk.
func (db *JSONDatabase) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.saveData()
}
