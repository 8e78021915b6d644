package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeclient"
)

var (
	// ErrQuantityTooHigh is returned when a line would exceed models.MaxQuantity.
	ErrQuantityTooHigh = errors.New("maximum quantity is 99")
	// ErrInvalidQuantity is returned for an add-to-cart counter outside [1, 99].
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	// ErrEmptyCart is returned by Checkout when there is nothing to buy.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrLineNotFound is returned when the line id is not in the current snapshot.
	ErrLineNotFound = errors.New("cart line not found")
)

// PartialClearError reports a checkout whose cart could only be partly cleared.
// Leftover holds the lines still present in the store after reconciliation.
type PartialClearError struct {
	Leftover []models.CartLineWithProduct
	Failed   map[string]error
}

func (e *PartialClearError) Error() string {
	ids := make([]string, 0, len(e.Leftover))
	for _, l := range e.Leftover {
		ids = append(ids, l.ID)
	}
	sort.Strings(ids)
	return fmt.Sprintf("checkout: %d line(s) could not be removed: %s", len(ids), strings.Join(ids, ", "))
}

// CartActions is the remote cart API used by CartService.
type CartActions interface {
	CartFetcher
	AddLine(ctx context.Context, line models.CartLine) (models.CartLine, error)
	UpdateLine(ctx context.Context, line models.CartLine) (models.CartLine, error)
	RemoveLine(ctx context.Context, id string) error
	ClearCart(ctx context.Context, ids []string) (storeclient.ClearResult, error)
}

// Notifier shows a message to the shopper.
type Notifier interface {
	Notify(level models.NoticeLevel, message string)
}

// ReceiptSender delivers a purchase receipt.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, receipt models.Receipt) error
}

// CartService runs the cart protocols of one shopping session on top of its CartState.
// Mutations are serialized so each one reads the snapshot left by the previous one.
type CartService struct {
	actions  CartActions
	state    *CartState
	notifier Notifier
	receipts ReceiptSender
	newID    func() string
	now      func() time.Time

	mu sync.Mutex
}

// CartOption configures a CartService.
type CartOption func(*CartService)

// WithReceiptSender mails receipts after a successful checkout.
func WithReceiptSender(rs ReceiptSender) CartOption {
	return func(cs *CartService) { cs.receipts = rs }
}

// WithIDGenerator overrides the cart line id generator.
func WithIDGenerator(fn func() string) CartOption {
	return func(cs *CartService) { cs.newID = fn }
}

// WithClock overrides the receipt timestamp source.
func WithClock(now func() time.Time) CartOption {
	return func(cs *CartService) { cs.now = now }
}

// NewCartService returns a service with a fresh, empty CartState.
func NewCartService(actions CartActions, notifier Notifier, opts ...CartOption) *CartService {
	cs := &CartService{
		actions:  actions,
		state:    NewCartState(actions),
		notifier: notifier,
		newID:    newLineID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// newLineID returns a time-ordered UUID, falling back to a random one.
func newLineID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// State returns the session's cart state.
func (cs *CartService) State() *CartState {
	return cs.state
}

// Snapshot returns the current cart snapshot.
func (cs *CartService) Snapshot() CartSnapshot {
	return cs.state.Snapshot()
}

// Refresh reloads the cart from the store.
func (cs *CartService) Refresh(ctx context.Context) error {
	return cs.state.Refresh(ctx)
}

// Close tears the session's cart state down.
func (cs *CartService) Close() {
	cs.state.Close()
}

// SetQuantity sets the quantity of line id. A quantity below 1 removes the line and a
// quantity above 99 is refused without touching the store.
func (cs *CartService) SetQuantity(ctx context.Context, id string, quantity int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.setQuantity(ctx, id, quantity)
}

// Increment adds one unit to line id.
func (cs *CartService) Increment(ctx context.Context, id string) error {
	return cs.step(ctx, id, 1)
}

// Decrement removes one unit from line id; the line goes away at zero.
func (cs *CartService) Decrement(ctx context.Context, id string) error {
	return cs.step(ctx, id, -1)
}

// Remove deletes line id.
func (cs *CartService) Remove(ctx context.Context, id string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.remove(ctx, id)
}

func (cs *CartService) step(ctx context.Context, id string, delta int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	line, ok := cs.state.Snapshot().Find(id)
	if !ok {
		cs.notify(models.NoticeWarning, "That item is no longer in your cart.")
		return errors.Wrapf(ErrLineNotFound, "line %q", id)
	}
	return cs.setQuantity(ctx, id, line.Quantity+delta)
}

func (cs *CartService) setQuantity(ctx context.Context, id string, quantity int) error {
	log.WithFields(log.Fields{"line": id, "quantity": quantity}).Debug("CartService.SetQuantity")

	if quantity < models.MinQuantity {
		return cs.remove(ctx, id)
	}
	if quantity > models.MaxQuantity {
		cs.notify(models.NoticeWarning, "The maximum quantity is 99.")
		return ErrQuantityTooHigh
	}

	line, ok := cs.state.Snapshot().Find(id)
	if !ok {
		cs.notify(models.NoticeWarning, "That item is no longer in your cart.")
		return errors.Wrapf(ErrLineNotFound, "line %q", id)
	}

	if _, err := cs.actions.UpdateLine(ctx, line.CartLine.WithQuantity(quantity)); err != nil {
		cs.notify(models.NoticeError, "Could not update the cart. Please try again.")
		return errors.Wrap(err, "set quantity")
	}
	return cs.refreshAfterMutation(ctx)
}

func (cs *CartService) remove(ctx context.Context, id string) error {
	if err := cs.actions.RemoveLine(ctx, id); err != nil {
		cs.notify(models.NoticeError, "Could not remove the item. Please try again.")
		return errors.Wrap(err, "remove line")
	}
	return cs.refreshAfterMutation(ctx)
}

// AddToCart adds counter units of product. An existing line for the product keeps its
// unit price and only grows in quantity; otherwise a new line is created at the
// product's current price.
func (cs *CartService) AddToCart(ctx context.Context, product models.Product, counter int) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	logger := log.WithFields(log.Fields{"product": product.ID, "counter": counter})
	logger.Debug("CartService.AddToCart")

	if !models.QuantityInRange(counter) {
		cs.notify(models.NoticeWarning, "Choose a quantity between 1 and 99.")
		return ErrInvalidQuantity
	}

	lines, err := cs.actions.FetchCart(ctx)
	if err != nil {
		cs.notify(models.NoticeError, "Could not add the product to the cart. Please try again.")
		return errors.Wrap(err, "add to cart")
	}

	if existing, ok := findByProduct(lines, product.ID); ok {
		sum := existing.Quantity + counter
		if sum > models.MaxQuantity {
			cs.notify(models.NoticeWarning, fmt.Sprintf("You already have %d of %s in your cart. The maximum quantity is 99.", existing.Quantity, product.Name))
			return ErrQuantityTooHigh
		}
		if _, err := cs.actions.UpdateLine(ctx, existing.CartLine.WithQuantity(sum)); err != nil {
			cs.notify(models.NoticeError, "Could not add the product to the cart. Please try again.")
			return errors.Wrap(err, "add to cart")
		}
		logger.WithField("quantity", sum).Info("CartService.AddToCart - existing line updated")
	} else {
		line := models.CartLine{
			ID:        cs.newID(),
			ProductID: product.ID,
			Price:     product.Price,
			Quantity:  counter,
		}
		if _, err := cs.actions.AddLine(ctx, line); err != nil {
			cs.notify(models.NoticeError, "Could not add the product to the cart. Please try again.")
			return errors.Wrap(err, "add to cart")
		}
		logger.WithField("line", line.ID).Info("CartService.AddToCart - new line created")
	}

	if err := cs.refreshAfterMutation(ctx); err != nil {
		return err
	}
	cs.notify(models.NoticeSuccess, fmt.Sprintf("%s added to your cart.", product.Name))
	return nil
}

// Checkout clears the cart. On success it returns the receipt built from the purchased
// lines and mails it when an address is given. When some deletions fail the cart is
// reloaded and a *PartialClearError lists what is still there; nothing is retried.
func (cs *CartService) Checkout(ctx context.Context, email string) (*models.Receipt, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	snap := cs.state.Snapshot()
	if snap.IsEmpty() {
		cs.notify(models.NoticeWarning, "Your cart is empty.")
		return nil, ErrEmptyCart
	}

	res, clearErr := cs.actions.ClearCart(ctx, snap.IDs())
	refreshErr := cs.state.Refresh(ctx)
	if refreshErr != nil {
		log.WithError(refreshErr).Warn("CartService.Checkout - refresh after clear failed")
	}

	if clearErr != nil {
		partial := &PartialClearError{Failed: res.Failed}
		if refreshErr == nil {
			partial.Leftover = cs.state.Snapshot().Lines
		} else {
			for _, l := range snap.Lines {
				if _, failed := res.Failed[l.ID]; failed {
					partial.Leftover = append(partial.Leftover, l)
				}
			}
		}
		log.WithField("leftover", len(partial.Leftover)).Error("CartService.Checkout - cart only partly cleared")
		cs.notify(models.NoticeError, "Some items could not be removed from your cart. Please review it and try again.")
		return nil, partial
	}

	receipt := models.NewReceipt("ORD-"+cs.newID(), email, snap.Lines, cs.now())
	log.WithFields(log.Fields{"receipt": receipt.Number, "total": receipt.TotalPrice.StringFixed(2)}).
		Info("CartService.Checkout - purchase completed")
	cs.notify(models.NoticeSuccess, "Thank you for your purchase!")

	if email != "" && cs.receipts != nil {
		if err := cs.receipts.SendReceipt(ctx, receipt); err != nil {
			log.WithError(err).Warn("CartService.Checkout - receipt mail failed")
			cs.notify(models.NoticeWarning, "We could not email your receipt.")
		}
	}
	return &receipt, nil
}

// refreshAfterMutation reloads the cart once a write has landed. A failed reload keeps
// the previous snapshot visible and is reported as a notice only, so that a retry
// does not apply the write twice.
func (cs *CartService) refreshAfterMutation(ctx context.Context) error {
	err := cs.state.Refresh(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStateClosed):
		return err
	default:
		log.WithError(err).Warn("CartService.refreshAfterMutation - reload failed")
		cs.notify(models.NoticeWarning, "Your cart was updated but could not be reloaded.")
		return nil
	}
}

func (cs *CartService) notify(level models.NoticeLevel, message string) {
	if cs.notifier != nil {
		cs.notifier.Notify(level, message)
	}
}

func findByProduct(lines []models.CartLineWithProduct, productID int) (models.CartLineWithProduct, bool) {
	for _, l := range lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return models.CartLineWithProduct{}, false
}
