// Package store provides the transactional work item, order and fill store
// backing the work queue. Two implementations: an in-memory store for tests
// and a SQLite store for durable single-node deployments.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"autotrader/internal/core"
)

// ErrNotFound is returned for lookups of rows that do not exist
var ErrNotFound = errors.New("not found")

// MemoryStore implements core.Store in memory. Claim exclusivity is provided
// by a single mutex over the whole store.
type MemoryStore struct {
	mu sync.Mutex

	workItems  map[string]*core.WorkItem
	byIdemKey  map[string]string // idempotency key -> work item id
	runs       map[string][]*core.WorkItemRun
	orders     map[string]*core.Order // keyed by local id
	byBrokerID map[string]string      // broker order id -> local id
	fills      []*core.Fill

	clock core.Clock
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(clock core.Clock) *MemoryStore {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &MemoryStore{
		workItems:  make(map[string]*core.WorkItem),
		byIdemKey:  make(map[string]string),
		runs:       make(map[string][]*core.WorkItemRun),
		orders:     make(map[string]*core.Order),
		byBrokerID: make(map[string]string),
		clock:      clock,
	}
}

func (s *MemoryStore) CreateWorkItem(ctx context.Context, item *core.WorkItem) (*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.IdempotencyKey != "" {
		if existingID, ok := s.byIdemKey[item.IdempotencyKey]; ok {
			return copyWorkItem(s.workItems[existingID]), nil
		}
	}

	stored := copyWorkItem(item)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := s.clock.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	s.workItems[stored.ID] = stored
	if stored.IdempotencyKey != "" {
		s.byIdemKey[stored.IdempotencyKey] = stored.ID
	}
	return copyWorkItem(stored), nil
}

func (s *MemoryStore) GetWorkItem(ctx context.Context, id string) (*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.workItems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkItem(item), nil
}

func (s *MemoryStore) GetWorkItemByIdempotencyKey(ctx context.Context, key string) (*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	return copyWorkItem(s.workItems[id]), nil
}

func (s *MemoryStore) ClaimNextWorkItem(ctx context.Context, types []core.WorkItemType) (*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var due []*core.WorkItem
	for _, item := range s.workItems {
		if item.Status != core.WorkItemPending {
			continue
		}
		if item.NextRunAt.After(now) {
			continue
		}
		if len(types) > 0 && !containsType(types, item.Type) {
			continue
		}
		due = append(due, item)
	}
	if len(due) == 0 {
		return nil, nil
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })

	claimed := due[0]
	claimed.Status = core.WorkItemClaimed
	claimed.UpdatedAt = now
	return copyWorkItem(claimed), nil
}

func (s *MemoryStore) UpdateWorkItem(ctx context.Context, id string, patch core.WorkItemPatch) (*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.workItems[id]
	if !ok {
		return nil, ErrNotFound
	}

	applyPatch(item, patch)
	item.UpdatedAt = s.clock.Now()
	return copyWorkItem(item), nil
}

func (s *MemoryStore) GetWorkItemCount(ctx context.Context, status core.WorkItemStatus, typ core.WorkItemType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.workItems {
		if status != "" && item.Status != status {
			continue
		}
		if typ != "" && item.Type != typ {
			continue
		}
		count++
	}
	return count, nil
}

func (s *MemoryStore) GetWorkItems(ctx context.Context, limit int, status core.WorkItemStatus) ([]*core.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []*core.WorkItem
	for _, item := range s.workItems {
		if status != "" && item.Status != status {
			continue
		}
		items = append(items, copyWorkItem(item))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) CreateWorkItemRun(ctx context.Context, run *core.WorkItemRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *run
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.StartedAt.IsZero() {
		stored.StartedAt = s.clock.Now()
	}
	s.runs[stored.WorkItemID] = append(s.runs[stored.WorkItemID], &stored)
	return nil
}

func (s *MemoryStore) GetWorkItemRuns(ctx context.Context, workItemID string) ([]*core.WorkItemRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*core.WorkItemRun, 0, len(s.runs[workItemID]))
	for _, run := range s.runs[workItemID] {
		copied := *run
		runs = append(runs, &copied)
	}
	return runs, nil
}

func (s *MemoryStore) UpsertOrderByBrokerOrderID(ctx context.Context, brokerOrderID string, order *core.Order) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if localID, ok := s.byBrokerID[brokerOrderID]; ok {
		existing := s.orders[localID]
		updated := copyOrder(order)
		updated.ID = existing.ID
		updated.BrokerOrderID = brokerOrderID
		if updated.WorkItemID == "" {
			updated.WorkItemID = existing.WorkItemID
		}
		if updated.TraceID == "" {
			updated.TraceID = existing.TraceID
		}
		updated.UpdatedAt = now
		s.orders[localID] = updated
		return copyOrder(updated), nil
	}

	stored := copyOrder(order)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.BrokerOrderID = brokerOrderID
	stored.UpdatedAt = now
	s.orders[stored.ID] = stored
	s.byBrokerID[brokerOrderID] = stored.ID
	return copyOrder(stored), nil
}

func (s *MemoryStore) GetOrderByBrokerOrderID(ctx context.Context, brokerOrderID string) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	localID, ok := s.byBrokerID[brokerOrderID]
	if !ok {
		return nil, nil
	}
	return copyOrder(s.orders[localID]), nil
}

func (s *MemoryStore) GetOrderByID(ctx context.Context, id string) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) GetOrdersByStatus(ctx context.Context, status core.OrderStatus) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []*core.Order
	for _, order := range s.orders {
		if order.Status == status {
			orders = append(orders, copyOrder(order))
		}
	}
	return orders, nil
}

func (s *MemoryStore) GetRecentOrders(ctx context.Context, limit int) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]*core.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, copyOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].SubmittedAt.After(orders[j].SubmittedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func (s *MemoryStore) CreateFill(ctx context.Context, fill *core.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *fill
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.fills = append(s.fills, &stored)
	return nil
}

func (s *MemoryStore) GetFillsByOrderID(ctx context.Context, orderID string) ([]*core.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fills []*core.Fill
	for _, fill := range s.fills {
		if fill.OrderID == orderID {
			copied := *fill
			fills = append(fills, &copied)
		}
	}
	return fills, nil
}

func (s *MemoryStore) GetFillsByBrokerOrderID(ctx context.Context, brokerOrderID string) ([]*core.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fills []*core.Fill
	for _, fill := range s.fills {
		if fill.BrokerOrderID == brokerOrderID {
			copied := *fill
			fills = append(fills, &copied)
		}
	}
	return fills, nil
}

func (s *MemoryStore) GetFillsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]*core.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}

	result := make(map[string][]*core.Fill)
	for _, fill := range s.fills {
		if wanted[fill.OrderID] {
			copied := *fill
			result[fill.OrderID] = append(result[fill.OrderID], &copied)
		}
	}
	return result, nil
}

func copyWorkItem(item *core.WorkItem) *core.WorkItem {
	copied := *item
	return &copied
}

func copyOrder(order *core.Order) *core.Order {
	copied := *order
	return &copied
}

func applyPatch(item *core.WorkItem, patch core.WorkItemPatch) {
	if patch.Status != nil {
		item.Status = *patch.Status
	}
	if patch.Attempts != nil {
		item.Attempts = *patch.Attempts
	}
	if patch.NextRunAt != nil {
		item.NextRunAt = *patch.NextRunAt
	}
	if patch.LastError != nil {
		item.LastError = *patch.LastError
	}
	if patch.Result != nil {
		item.Result = *patch.Result
	}
	if patch.BrokerOrderID != nil {
		item.BrokerOrderID = *patch.BrokerOrderID
	}
}

func containsType(types []core.WorkItemType, typ core.WorkItemType) bool {
	for _, t := range types {
		if t == typ {
			return true
		}
	}
	return false
}
