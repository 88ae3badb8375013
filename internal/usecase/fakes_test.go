package usecase_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs-labo46/ec-settlement/internal/domain/model"
	repo "github.com/rs-labo46/ec-settlement/internal/repository"
	"github.com/rs-labo46/ec-settlement/internal/usecase"

	"github.com/stretchr/testify/mock"
)

// =====================
// インメモリDB（WithinTxは直列化、エラー時は破棄）
// =====================

type memData struct {
	nextID      int64
	orders      map[int64]model.Order
	items       map[int64][]model.OrderItem
	products    map[int64]model.Product
	zones       map[string]model.ShippingZone
	audits      []model.AuditLog
	adjustments []model.InventoryAdjustment
}

func (d *memData) clone() *memData {
	c := &memData{
		nextID:      d.nextID,
		orders:      make(map[int64]model.Order, len(d.orders)),
		items:       make(map[int64][]model.OrderItem, len(d.items)),
		products:    make(map[int64]model.Product, len(d.products)),
		zones:       make(map[string]model.ShippingZone, len(d.zones)),
		audits:      append([]model.AuditLog(nil), d.audits...),
		adjustments: append([]model.InventoryAdjustment(nil), d.adjustments...),
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = append([]model.OrderItem(nil), v...)
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.zones {
		c.zones[k] = v
	}
	return c
}

type memStore struct {
	mu      sync.Mutex
	data    *memData
	commits int
	// 次のWithinTxでfnの後に返すエラー（commit失敗の再現）
	failCommit error
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		orders:   map[int64]model.Order{},
		items:    map[int64][]model.OrderItem{},
		products: map[int64]model.Product{},
		zones:    map[string]model.ShippingZone{},
	}}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memRepos{d: work}); err != nil {
		return err
	}
	if s.failCommit != nil {
		err := s.failCommit
		s.failCommit = nil
		return err
	}
	s.data = work
	s.commits++
	return nil
}

func (s *memStore) addProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = model.ProductStatusActive
	}
	s.data.products[p.ID] = p
}

func (s *memStore) addZone(city string, charge int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.zones[city] = model.ShippingZone{City: city, Charge: charge, IsActive: active}
}

func (s *memStore) product(id int64) model.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.products[id]
}

func (s *memStore) order(id int64) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.orders[id]
}

func (s *memStore) setOrder(o model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[o.ID] = o
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

func (s *memStore) auditKinds() []model.AuditKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditKind, 0, len(s.data.audits))
	for _, a := range s.data.audits {
		out = append(out, a.Kind)
	}
	return out
}

func (s *memStore) auditsOf(kind model.AuditKind) []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditLog
	for _, a := range s.data.audits {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) adjustments() []model.InventoryAdjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InventoryAdjustment(nil), s.data.adjustments...)
}

type memRepos struct{ d *memData }

func (r *memRepos) Orders() repo.OrderRepository               { return &memOrders{d: r.d} }
func (r *memRepos) OrderItems() repo.OrderItemRepository       { return &memItems{d: r.d} }
func (r *memRepos) Products() repo.ProductRepository           { return &memProducts{d: r.d} }
func (r *memRepos) Inventory() repo.InventoryRepository        { return &memInventory{d: r.d} }
func (r *memRepos) ShippingZones() repo.ShippingZoneRepository { return &memZones{d: r.d} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository         { return &memAudits{d: r.d} }

type memOrders struct{ d *memData }

func (m *memOrders) Create(ctx context.Context, o model.Order) (model.Order, error) {
	for _, ex := range m.d.orders {
		if ex.TransactionRef == o.TransactionRef {
			return model.Order{}, repo.ErrConflict
		}
	}
	m.d.nextID++
	o.ID = m.d.nextID
	m.d.orders[o.ID] = o
	return o, nil
}

func (m *memOrders) FindByID(ctx context.Context, id int64) (model.Order, error) {
	o, ok := m.d.orders[id]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (m *memOrders) FindByTransactionRef(ctx context.Context, ref string) (model.Order, bool, error) {
	for _, o := range m.d.orders {
		if o.TransactionRef == ref {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (m *memOrders) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	var all []model.Order
	for _, o := range m.d.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []model.Order{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, id int64, from, to model.OrderStatus, f repo.OrderStatusFields) (bool, error) {
	o, ok := m.d.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = f.UpdatedAt
	if f.GatewayRef != nil {
		o.GatewayRef = *f.GatewayRef
	}
	m.d.orders[id] = o
	return true, nil
}

func (m *memOrders) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	var out []model.Order
	for _, o := range m.d.orders {
		if o.Status == model.OrderStatusPending && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memItems struct{ d *memData }

func (m *memItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		m.d.nextID++
		it.ID = m.d.nextID
		it.OrderID = orderID
		m.d.items[orderID] = append(m.d.items[orderID], it)
	}
	return nil
}

func (m *memItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return append([]model.OrderItem{}, m.d.items[orderID]...), nil
}

type memProducts struct{ d *memData }

func (m *memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := m.d.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) FindByIDForUpdate(ctx context.Context, id int64) (model.Product, error) {
	return m.FindByID(ctx, id)
}

type memInventory struct{ d *memData }

func (m *memInventory) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := m.d.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	if p.StockQuantity == 0 {
		p.Status = model.ProductStatusOutOfStock
	}
	m.d.products[productID] = p
	return true, nil
}

func (m *memInventory) CreateAdjustment(ctx context.Context, a model.InventoryAdjustment) error {
	m.d.adjustments = append(m.d.adjustments, a)
	return nil
}

type memZones struct{ d *memData }

func (m *memZones) FindActiveByCity(ctx context.Context, city string) (model.ShippingZone, bool, error) {
	z, ok := m.d.zones[city]
	if !ok || !z.IsActive {
		return model.ShippingZone{}, false, nil
	}
	return z, true, nil
}

type memAudits struct{ d *memData }

func (m *memAudits) Create(ctx context.Context, log model.AuditLog) error {
	m.d.audits = append(m.d.audits, log)
	return nil
}

func (m *memAudits) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	return append([]model.AuditLog(nil), m.d.audits...), nil
}

// =====================
// 時刻・ID
// =====================

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewTransactionRef() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tx-%04d", g.n)
}

type constIDs string

func (c constIDs) NewTransactionRef() string { return string(c) }

// =====================
// testify mocks
// =====================

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) SendOrderConfirmation(ctx context.Context, c usecase.OrderConfirmation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// WithinTxを呼ばれた事実だけ記録して、決まったエラーを返す
type TxManagerMock struct{ mock.Mock }

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	args := m.Called(ctx)
	return args.Error(0)
}
