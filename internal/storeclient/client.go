package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

const (
	defaultTimeout = 5 * time.Second
	// maxParallelDeletes bounds the fan-out of ClearCart.
	maxParallelDeletes = 8
)

// StatusError is returned when the store answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the store.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to the remote cart store. Every failure is logged here and returned
// to the caller, which decides how to surface it.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client, including its traced transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// New returns a Client for the store at baseURL, e.g. http://localhost:3000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithSpanNameFormatter(spanName)),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func spanName(_ string, r *http.Request) string {
	return "store " + r.Method + " " + r.URL.Path
}

// BaseURL returns the normalized store URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchCart lists the cart with each line joined to its product.
func (c *Client) FetchCart(ctx context.Context) ([]models.CartLineWithProduct, error) {
	var lines []models.CartLineWithProduct
	if err := c.do(ctx, "FetchCart", http.MethodGet, "/cart?_expand=product", nil, &lines); err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []models.CartLineWithProduct{}
	}
	return lines, nil
}

// AddLine creates a new cart line and returns the stored record.
func (c *Client) AddLine(ctx context.Context, line models.CartLine) (models.CartLine, error) {
	var out models.CartLine
	err := c.do(ctx, "AddLine", http.MethodPost, "/cart", line, &out)
	return out, err
}

// UpdateLine replaces the full record of an existing cart line.
func (c *Client) UpdateLine(ctx context.Context, line models.CartLine) (models.CartLine, error) {
	var out models.CartLine
	err := c.do(ctx, "UpdateLine", http.MethodPut, "/cart/"+url.PathEscape(line.ID), line, &out)
	return out, err
}

// RemoveLine deletes one cart line.
func (c *Client) RemoveLine(ctx context.Context, id string) error {
	return c.do(ctx, "RemoveLine", http.MethodDelete, "/cart/"+url.PathEscape(id), nil, nil)
}

// ClearResult reports the outcome of every deletion attempted by ClearCart.
type ClearResult struct {
	Removed []string
	Failed  map[string]error
}

// OK reports whether every deletion succeeded.
func (r ClearResult) OK() bool {
	return len(r.Failed) == 0
}

// ClearCart deletes every id in parallel. All deletions are attempted even when some
// fail; the returned error is non-nil iff at least one failed. Nothing is rolled back.
func (c *Client) ClearCart(ctx context.Context, ids []string) (ClearResult, error) {
	res := ClearResult{Removed: []string{}, Failed: map[string]error{}}
	if len(ids) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallelDeletes)
	for _, id := range ids {
		g.Go(func() error {
			err := c.RemoveLine(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed[id] = err
				return nil
			}
			res.Removed = append(res.Removed, id)
			return nil
		})
	}
	_ = g.Wait()

	if !res.OK() {
		log.WithFields(log.Fields{"removed": len(res.Removed), "failed": len(res.Failed)}).
			Warn("StoreClient.ClearCart - partial failure")
		return res, errors.Errorf("clear cart: %d of %d deletions failed", len(res.Failed), len(ids))
	}
	return res, nil
}

// ListProducts lists the catalog, filtered by partial name and exact category.
func (c *Client) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	f := filter.Normalize()
	q := url.Values{}
	if f.Search != "" {
		q.Set("name_like", f.Search)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var products []models.Product
	if err := c.do(ctx, "ListProducts", http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	if products == nil {
		products = []models.Product{}
	}
	return products, nil
}

// GetProduct returns one catalog product.
func (c *Client) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	var p models.Product
	if err := c.do(ctx, "GetProduct", http.MethodGet, "/products/"+strconv.Itoa(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCategories lists the catalog categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := c.do(ctx, "ListCategories", http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	defer func() {
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"method": method, "path": path}).
				Errorf("StoreClient.%s - failed", op)
		}
	}()

	if c.baseURL == "" {
		return errors.New("store base URL is empty")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "encode %s body", op)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: res.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", op)
	}
	return nil
}
