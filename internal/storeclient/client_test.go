package storeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/database"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeapi"
)

const seedJSON = `{
  "products": [
    {"id": 7, "name": "Desk Lamp", "price": 10, "category": "home", "stars": 4},
    {"id": 3, "name": "Coffee Mug", "price": 5, "category": "kitchen", "stars": 5}
  ],
  "categories": [{"id": 1, "name": "home"}, {"id": 2, "name": "kitchen"}],
  "cart": []
}`

func newStore(t *testing.T) (*Client, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o644))
	db, err := database.NewDatabase(path)
	require.NoError(t, err)

	srv := httptest.NewServer(storeapi.NewRouter(db))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), srv
}

func line(id string, productID int, price string, q int) models.CartLine {
	return models.CartLine{ID: id, ProductID: productID, Price: decimal.RequireFromString(price), Quantity: q}
}

func TestCartActionsAgainstStore(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	lines, err := c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.NotNil(t, lines)

	created, err := c.AddLine(ctx, line("a", 7, "10.00", 2))
	require.NoError(t, err)
	assert.Equal(t, "a", created.ID)

	updated, err := c.UpdateLine(ctx, line("a", 7, "10.00", 3))
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)

	lines, err = c.FetchCart(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].Product)
	assert.Equal(t, "Desk Lamp", lines[0].Product.Name)
	assert.Equal(t, "30", lines[0].Subtotal().String())

	require.NoError(t, c.RemoveLine(ctx, "a"))
	err = c.RemoveLine(ctx, "a")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, err = c.UpdateLine(ctx, line("ghost", 7, "10.00", 1))
	assert.True(t, IsNotFound(err))
}

func TestClearCart(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	res, err := c.ClearCart(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Empty(t, res.Removed)

	for i, id := range []string{"a", "b", "c"} {
		_, err := c.AddLine(ctx, line(id, 7, "1", i+1))
		require.NoError(t, err)
	}

	res, err = c.ClearCart(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, res.Removed)

	lines, err := c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestClearCartPartialFailure(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	_, err := c.AddLine(ctx, line("a", 7, "1", 1))
	require.NoError(t, err)

	res, err := c.ClearCart(ctx, []string{"a", "missing"})
	require.Error(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, []string{"a"}, res.Removed)
	require.Contains(t, res.Failed, "missing")
	assert.True(t, IsNotFound(res.Failed["missing"]))
}

func TestCatalog(t *testing.T) {
	c, _ := newStore(t)
	ctx := context.Background()

	products, err := c.ListProducts(ctx, models.ProductFilter{Search: " lamp "})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 7, products[0].ID)

	products, err = c.ListProducts(ctx, models.ProductFilter{Category: "kitchen"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 3, products[0].ID)

	p, err := c.GetProduct(ctx, 3)
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(5)))

	_, err = c.GetProduct(ctx, 100)
	assert.True(t, IsNotFound(err))

	categories, err := c.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 2)
}

func TestNonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	lines, err := c.FetchCart(context.Background())
	require.Error(t, err)
	assert.Nil(t, lines)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Body)
	assert.False(t, IsNotFound(err))
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).FetchCart(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "GET /cart"))

	_, err = New("").ListCategories(context.Background())
	assert.Error(t, err)
}

func TestTimeoutAndTracePropagation(t *testing.T) {
	var sawTraceparent atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("traceparent") != "" {
			sawTraceparent.Store(true)
		}
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithTimeout(20*time.Millisecond)).FetchCart(context.Background())
	assert.Error(t, err)

	lines, err := New(srv.URL, WithHTTPClient(&http.Client{})).FetchCart(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lines)
	// a plain http.Client carries no tracing transport
	assert.False(t, sawTraceparent.Load())
}

func TestRequestsCarryTraceContext(t *testing.T) {
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	provider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	traceparent := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent <- r.Header.Get("traceparent")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	ctx, span := provider.Tracer("storeclient-test").Start(context.Background(), "checkout")
	defer span.End()

	client := New(srv.URL + "/")
	assert.Equal(t, srv.URL, client.BaseURL())
	_, err := client.ListCategories(ctx)
	require.NoError(t, err)
	assert.Contains(t, <-traceparent, span.SpanContext().TraceID().String())
}
