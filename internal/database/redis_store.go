package database

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

const (
	productsKey   = "products"
	categoriesKey = "categories"
	cartKey       = "cart"
	cartOrderKey  = "cart:order"
)

// RedisStore keeps each collection in a hash keyed by record id.
// Cart insertion order is tracked in a sorted set scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisAddr, which may be "host:port" or a redis:// URL.
func NewRedisStore(redisAddr, prefix string) *RedisStore {
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		}
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: prefix}
}

func (r *RedisStore) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + ":" + name
}

// Initialize waits for Redis and seeds the catalog from seedFile when the store is empty.
func (r *RedisStore) Initialize(ctx context.Context, seedFile string) error {
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		if err = r.Ping(ctx); err == nil {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("RedisStore.Initialize - ping failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	if err != nil {
		return errors.Wrap(err, "redis unreachable")
	}
	if seedFile == "" {
		return nil
	}

	n, err := r.client.HLen(ctx, r.key(productsKey)).Result()
	if err != nil {
		return errors.Wrap(err, "count products")
	}
	if n > 0 {
		return nil
	}

	products, categories, lines, err := LoadSeed(seedFile)
	if os.IsNotExist(errors.Cause(err)) {
		log.WithField("file", seedFile).Warn("RedisStore.Initialize - seed file missing, starting empty")
		return nil
	}
	if err != nil {
		return err
	}
	return r.Seed(ctx, products, categories, lines)
}

// Seed writes the given records, overwriting records with the same id.
func (r *RedisStore) Seed(ctx context.Context, products []models.Product, categories []models.Category, lines []models.CartLine) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range products {
			raw, err := json.Marshal(p)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, r.key(productsKey), strconv.Itoa(p.ID), raw)
		}
		for _, c := range categories {
			raw, err := json.Marshal(c)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, r.key(categoriesKey), strconv.Itoa(c.ID), raw)
		}
		now := time.Now()
		for i, l := range lines {
			raw, err := json.Marshal(l)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, r.key(cartKey), l.ID, raw)
			pipe.ZAdd(ctx, r.key(cartOrderKey), &redis.Z{Score: float64(now.UnixNano() + int64(i)), Member: l.ID})
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "seed redis")
	}
	log.WithFields(log.Fields{
		"products":   len(products),
		"categories": len(categories),
		"cart":       len(lines),
	}).Info("RedisStore.Seed - done")
	return nil
}

// ListProducts returns the products matching filter, ordered by id.
func (r *RedisStore) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	vals, err := r.client.HVals(ctx, r.key(productsKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	all := make([]models.Product, 0, len(vals))
	for _, v := range vals {
		var p models.Product
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, errors.Wrap(err, "decode product")
		}
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return filterProducts(all, filter), nil
}

// GetProductByID returns the product with the given id.
func (r *RedisStore) GetProductByID(ctx context.Context, id int) (*models.Product, error) {
	raw, err := r.client.HGet(ctx, r.key(productsKey), strconv.Itoa(id)).Bytes()
	if err == redis.Nil {
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	var p models.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decode product")
	}
	return &p, nil
}

// ListCategories returns every category ordered by id.
func (r *RedisStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	vals, err := r.client.HVals(ctx, r.key(categoriesKey)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	out := make([]models.Category, 0, len(vals))
	for _, v := range vals {
		var c models.Category
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, errors.Wrap(err, "decode category")
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCartLines returns every cart line in insertion order.
func (r *RedisStore) ListCartLines(ctx context.Context) ([]models.CartLine, error) {
	ids, err := r.client.ZRange(ctx, r.key(cartOrderKey), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list cart order")
	}
	if len(ids) == 0 {
		return []models.CartLine{}, nil
	}
	vals, err := r.client.HMGet(ctx, r.key(cartKey), ids...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	out := make([]models.CartLine, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// deleted between ZRANGE and HMGET
			continue
		}
		var l models.CartLine
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return nil, errors.Wrap(err, "decode cart line")
		}
		out = append(out, l)
	}
	return out, nil
}

// GetCartLine returns the cart line with the given id.
func (r *RedisStore) GetCartLine(ctx context.Context, id string) (*models.CartLine, error) {
	raw, err := r.client.HGet(ctx, r.key(cartKey), id).Bytes()
	if err == redis.Nil {
		return nil, os.ErrNotExist
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart line %s", id)
	}
	var l models.CartLine
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, errors.Wrap(err, "decode cart line")
	}
	return &l, nil
}

// Each cart write touches both the hash and the order set; the scripts keep
// the two keys consistent under concurrent writers.
var (
	createLineScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)
	replaceLineScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)
	deleteLineScript = redis.NewScript(`
local n = redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return n
`)
)

func (r *RedisStore) cartKeys() []string {
	return []string{r.key(cartKey), r.key(cartOrderKey)}
}

// CreateCartLine stores a new cart line, assigning an id when the client sent none.
func (r *RedisStore) CreateCartLine(ctx context.Context, line *models.CartLine) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	raw, err := json.Marshal(line)
	if err != nil {
		return err
	}
	score := strconv.FormatInt(time.Now().UnixNano(), 10)
	created, err := createLineScript.Run(ctx, r.client, r.cartKeys(), line.ID, raw, score).Int()
	if err != nil {
		return errors.Wrapf(err, "create cart line %s", line.ID)
	}
	if created == 0 {
		return ErrDuplicateID
	}
	return nil
}

// ReplaceCartLine overwrites the full record of an existing cart line.
func (r *RedisStore) ReplaceCartLine(ctx context.Context, line *models.CartLine) error {
	raw, err := json.Marshal(line)
	if err != nil {
		return err
	}
	replaced, err := replaceLineScript.Run(ctx, r.client, r.cartKeys(), line.ID, raw).Int()
	if err != nil {
		return errors.Wrapf(err, "replace cart line %s", line.ID)
	}
	if replaced == 0 {
		return os.ErrNotExist
	}
	return nil
}

// DeleteCartLine removes one cart line.
func (r *RedisStore) DeleteCartLine(ctx context.Context, id string) error {
	n, err := deleteLineScript.Run(ctx, r.client, r.cartKeys(), id).Int()
	if err != nil {
		return errors.Wrapf(err, "delete cart line %s", id)
	}
	if n == 0 {
		return os.ErrNotExist
	}
	return nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
