package database

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// ErrDuplicateID is returned when a cart line is created with an id already in use.
var ErrDuplicateID = errors.New("database: duplicate id")

// Store, the persistence behind the remote cart store.
// Not-found lookups return os.ErrNotExist.
type Store interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)

	ListCartLines(ctx context.Context) ([]models.CartLine, error)
	GetCartLine(ctx context.Context, id string) (*models.CartLine, error)
	CreateCartLine(ctx context.Context, line *models.CartLine) error
	ReplaceCartLine(ctx context.Context, line *models.CartLine) error
	DeleteCartLine(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// productMatcher applies json-server's name_like and category semantics.
type productMatcher struct {
	name     *regexp.Regexp
	search   string
	category string
}

func newProductMatcher(filter models.ProductFilter) productMatcher {
	f := filter.Normalize()
	m := productMatcher{search: strings.ToLower(f.Search), category: f.Category}
	if f.Search != "" {
		// name_like is a case-insensitive regular expression; fall back to substring
		// matching when the shopper typed something that does not compile.
		if re, err := regexp.Compile("(?i)" + f.Search); err == nil {
			m.name = re
		}
	}
	return m
}

func (m productMatcher) match(p models.Product) bool {
	if m.category != "" && p.Category != m.category {
		return false
	}
	if m.search == "" {
		return true
	}
	if m.name != nil {
		return m.name.MatchString(p.Name)
	}
	return strings.Contains(strings.ToLower(p.Name), m.search)
}

func filterProducts(all []models.Product, filter models.ProductFilter) []models.Product {
	m := newProductMatcher(filter)
	out := make([]models.Product, 0, len(all))
	for _, p := range all {
		if m.match(p) {
			out = append(out, p)
		}
	}
	return out
}
