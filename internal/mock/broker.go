// Package mock provides scripted collaborators for tests
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/pkg/apperrors"
)

// Broker implements core.Broker and core.AssetLister with scriptable behavior.
// Client order ids are deduplicated the way a real broker does: a second
// create with the same id returns the first order.
type Broker struct {
	mu sync.Mutex

	orders         map[string]*core.Order
	clientOrderMap map[string]string // client order id -> broker order id
	orderCounter   int
	createRequests []core.OrderRequest

	createErrs       []error // consumed in order before creates succeed
	createErrSubmits []error // like createErrs, but the order is still created
	holdFills        bool
	fillPrices       map[string]decimal.Decimal
	positions        []*core.Position
	closeErrs        map[string]error
	cancelErrs       map[string]error
	assets           []*core.Asset
	marketStatus     core.MarketStatus
	assetsErr        error

	canceled []string
}

// NewBroker creates a mock broker with the market open and no scripts
func NewBroker() *Broker {
	return &Broker{
		orders:         make(map[string]*core.Order),
		clientOrderMap: make(map[string]string),
		orderCounter:   1000,
		fillPrices:     make(map[string]decimal.Decimal),
		closeErrs:      make(map[string]error),
		cancelErrs:     make(map[string]error),
		marketStatus:   core.MarketStatus{IsOpen: true, Session: "regular"},
	}
}

// ScriptCreateErrors queues errors returned by CreateOrder before it succeeds
func (b *Broker) ScriptCreateErrors(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createErrs = append(b.createErrs, errs...)
}

// ScriptCreateErrorButSubmit queues an error for CreateOrder where the order
// is nevertheless created broker-side. Models a response lost on the wire.
func (b *Broker) ScriptCreateErrorButSubmit(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createErrSubmits = append(b.createErrSubmits, err)
}

// SetFillPrice sets the price at which symbol's orders fill
func (b *Broker) SetFillPrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillPrices[symbol] = price
}

// HoldFills keeps orders in accepted until released
func (b *Broker) HoldFills(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdFills = hold
}

// SetOrderStatus force-sets a broker order's status
func (b *Broker) SetOrderStatus(brokerOrderID string, status core.OrderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if order, ok := b.orders[brokerOrderID]; ok {
		order.Status = status
		order.UpdatedAt = time.Now()
	}
}

// SetPositions scripts the open positions
func (b *Broker) SetPositions(positions ...*core.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions = positions
}

// ScriptCancelError makes CancelOrder fail for brokerOrderID
func (b *Broker) ScriptCancelError(brokerOrderID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelErrs[brokerOrderID] = err
}

// ScriptCloseError makes ClosePosition fail for symbol
func (b *Broker) ScriptCloseError(symbol string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErrs[symbol] = err
}

// SetAssets scripts the tradable asset list
func (b *Broker) SetAssets(assets ...*core.Asset) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assets = assets
	b.assetsErr = nil
}

// SetAssetsError makes GetAssets fail
func (b *Broker) SetAssetsError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assetsErr = err
}

// SetMarketStatus scripts the session state
func (b *Broker) SetMarketStatus(status core.MarketStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marketStatus = status
}

// InjectOrder places an order directly into the broker's book, bypassing
// CreateOrder. For reconciler tests.
func (b *Broker) InjectOrder(order *core.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := *order
	b.orders[order.BrokerOrderID] = &copied
	if order.ClientOrderID != "" {
		b.clientOrderMap[order.ClientOrderID] = order.BrokerOrderID
	}
}

// CreateRequests returns every request CreateOrder has seen
func (b *Broker) CreateRequests() []core.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]core.OrderRequest, len(b.createRequests))
	copy(out, b.createRequests)
	return out
}

// CanceledOrderIDs returns the ids passed to CancelOrder
func (b *Broker) CanceledOrderIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.canceled))
	copy(out, b.canceled)
	return out
}

func (b *Broker) CreateOrder(ctx context.Context, req *core.OrderRequest) (*core.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.createRequests = append(b.createRequests, *req)

	if len(b.createErrs) > 0 {
		err := b.createErrs[0]
		b.createErrs = b.createErrs[1:]
		return nil, err
	}
	if len(b.createErrSubmits) > 0 {
		err := b.createErrSubmits[0]
		b.createErrSubmits = b.createErrSubmits[1:]
		b.createLocked(req)
		return nil, err
	}

	if req.ClientOrderID != "" {
		if existingID, ok := b.clientOrderMap[req.ClientOrderID]; ok {
			copied := *b.orders[existingID]
			return &copied, nil
		}
	}

	order := b.createLocked(req)
	copied := *order
	return &copied, nil
}

func (b *Broker) createLocked(req *core.OrderRequest) *core.Order {
	b.orderCounter++
	order := &core.Order{
		BrokerOrderID: fmt.Sprintf("bk_%d", b.orderCounter),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		Status:        core.OrderNew,
		SubmittedAt:   time.Now(),
		UpdatedAt:     time.Now(),
	}
	if req.Qty != nil {
		order.Qty = *req.Qty
	}
	if req.Notional != nil {
		order.Notional = *req.Notional
	}
	order.LimitPrice = req.LimitPrice
	order.StopPrice = req.StopPrice

	b.orders[order.BrokerOrderID] = order
	if req.ClientOrderID != "" {
		b.clientOrderMap[req.ClientOrderID] = order.BrokerOrderID
	}
	return order
}

func (b *Broker) GetOrder(ctx context.Context, brokerOrderID string) (*core.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.orders[brokerOrderID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}

	// Orders fill on the first poll unless held
	if !b.holdFills && !order.Status.IsTerminal() {
		b.fillLocked(order)
	}

	copied := *order
	return &copied, nil
}

func (b *Broker) fillLocked(order *core.Order) {
	price, ok := b.fillPrices[order.Symbol]
	if !ok {
		if order.LimitPrice != nil {
			price = *order.LimitPrice
		} else {
			price = decimal.NewFromInt(100)
		}
	}

	qty := order.Qty
	if !qty.IsPositive() && order.Notional.IsPositive() && price.IsPositive() {
		qty = order.Notional.Div(price)
	}

	now := time.Now()
	order.Status = core.OrderFilled
	order.FilledQty = qty
	order.FilledAvgPrice = &price
	order.FilledAt = &now
	order.UpdatedAt = now
}

func (b *Broker) GetOrders(ctx context.Context, filter core.OrderStatusFilter, limit int) ([]*core.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*core.Order
	for _, order := range b.orders {
		terminal := order.Status.IsTerminal()
		if filter == core.FilterOpen && terminal {
			continue
		}
		if filter == core.FilterClosed && !terminal {
			continue
		}
		copied := *order
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (b *Broker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.cancelErrs[brokerOrderID]; ok {
		return err
	}
	order, ok := b.orders[brokerOrderID]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	if order.Status.IsTerminal() {
		return apperrors.NewBrokerError(422, "order cannot be canceled in its current state", nil)
	}
	order.Status = core.OrderCanceled
	order.UpdatedAt = time.Now()
	b.canceled = append(b.canceled, brokerOrderID)
	return nil
}

func (b *Broker) CancelAllOrders(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, order := range b.orders {
		if !order.Status.IsTerminal() {
			order.Status = core.OrderCanceled
			order.UpdatedAt = time.Now()
			b.canceled = append(b.canceled, id)
		}
	}
	return nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]*core.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*core.Position, 0, len(b.positions))
	for _, p := range b.positions {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (b *Broker) ClosePosition(ctx context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.closeErrs[symbol]; ok {
		return err
	}
	for i, p := range b.positions {
		if p.Symbol == symbol {
			b.positions = append(b.positions[:i], b.positions[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrPositionNotFound
}

func (b *Broker) GetSnapshots(ctx context.Context, symbols []string) (map[string]*core.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]*core.Snapshot, len(symbols))
	for _, symbol := range symbols {
		price, ok := b.fillPrices[symbol]
		if !ok {
			continue
		}
		spread := price.Mul(decimal.RequireFromString("0.001"))
		out[symbol] = &core.Snapshot{
			Symbol:           symbol,
			LatestTradePrice: price,
			BidPrice:         price.Sub(spread),
			AskPrice:         price.Add(spread),
		}
	}
	return out, nil
}

func (b *Broker) GetMarketStatus(ctx context.Context) (*core.MarketStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := b.marketStatus
	return &status, nil
}

func (b *Broker) GetAssets(ctx context.Context, assetClass string) ([]*core.Asset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.assetsErr != nil {
		return nil, b.assetsErr
	}
	out := make([]*core.Asset, 0, len(b.assets))
	for _, asset := range b.assets {
		if assetClass != "" && asset.Class != assetClass {
			continue
		}
		copied := *asset
		out = append(out, &copied)
	}
	return out, nil
}
