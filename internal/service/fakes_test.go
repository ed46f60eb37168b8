package service_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/linemk/shop-orders/internal/domain/models"
	"github.com/linemk/shop-orders/internal/events"
	"github.com/linemk/shop-orders/internal/service"
	"github.com/linemk/shop-orders/internal/storage"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

type fakeUserRepo struct {
	users map[string]*models.User // ключ - email
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == 0 {
		user.ID = int64(len(f.users) + 1)
	}
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]*models.User, error) {
	var res []*models.User
	for _, id := range ids {
		if u, err := f.GetUserByID(ctx, id); err == nil {
			res = append(res, u)
		}
	}
	return res, nil
}

func (f *fakeUserRepo) SearchUserIDs(ctx context.Context, term string) ([]int64, error) {
	term = strings.ToLower(term)
	var ids []int64
	for _, u := range f.users {
		if strings.Contains(strings.ToLower(u.Name), term) ||
			strings.Contains(strings.ToLower(u.Email), term) ||
			strings.Contains(strings.ToLower(u.Phone), term) {
			ids = append(ids, u.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// fakeOrderRepo повторяет семантику SQL-репозитория в памяти
type fakeOrderRepo struct {
	orders     map[string]*models.Order
	lastFilter storage.OrderFilter
	updates    int
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo(orders ...*models.Order) *fakeOrderRepo {
	f := &fakeOrderRepo{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.LineItem(nil), o.Items...)
	return &c
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	f.orders[order.ID] = cloneOrder(order)
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (f *fakeOrderRepo) UpdateOrderFields(ctx context.Context, tx *sql.Tx, id string, expected *models.OrderStatus, patch models.OrderPatch, now time.Time) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok || (expected != nil && o.Status != *expected) {
		if expected != nil {
			return nil, storage.ErrOrderStatusConflict
		}
		return nil, storage.ErrOrderNotFound
	}
	f.updates++
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.AdminNotes != nil {
		o.AdminNotes = *patch.AdminNotes
	}
	if patch.PaymentStatus != nil {
		o.Payment.PaymentStatus = *patch.PaymentStatus
	}
	if patch.CancellationReason != nil {
		o.CancellationReason = patch.CancellationReason
	}
	if patch.CancellationRequestedAt != nil {
		o.CancellationRequestedAt = patch.CancellationRequestedAt
	}
	if patch.CancellationResponded != nil {
		o.CancellationResponded = patch.CancellationResponded
	}
	if patch.CancellationApproved != nil {
		o.CancellationApproved = patch.CancellationApproved
	}
	if patch.CancellationRespondedAt != nil {
		o.CancellationRespondedAt = patch.CancellationRespondedAt
	}
	o.UpdatedAt = now
	return cloneOrder(o), nil
}

func (f *fakeOrderRepo) FindOrders(ctx context.Context, filter storage.OrderFilter) ([]*models.Order, int, error) {
	f.lastFilter = filter
	var res []*models.Order
	for _, o := range f.orders {
		if filter.Status != "" && filter.Status != "all" && string(o.Status) != filter.Status {
			continue
		}
		if filter.UserID != "" && (o.UserID == nil || *o.UserID != filter.UserID) {
			continue
		}
		if filter.Search != "" && !matchesSearch(o, filter) {
			continue
		}
		res = append(res, cloneOrder(o))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, len(res), nil
}

func matchesSearch(o *models.Order, filter storage.OrderFilter) bool {
	term := strings.ToLower(filter.Search)
	if o.UserID != nil {
		for _, id := range filter.SearchUserIDs {
			if id == *o.UserID {
				return true
			}
		}
	}
	return strings.HasSuffix(strings.ToLower(o.ID), term) ||
		strings.Contains(strings.ToLower(o.OrderNumber), term) ||
		strings.Contains(string(o.Status), term)
}

func (f *fakeOrderRepo) DeleteOrder(ctx context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return storage.ErrOrderNotFound
	}
	delete(f.orders, id)
	return nil
}

type fakeProductRepo struct {
	products map[string]*models.Product
	writes   int
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	f := &fakeProductRepo{products: make(map[string]*models.Product)}
	for _, p := range products {
		f.products[p.Code] = p
	}
	return f
}

func cloneProduct(p *models.Product) *models.Product {
	c := *p
	c.Sizes = append([]models.ProductSize(nil), p.Sizes...)
	return &c
}

func (f *fakeProductRepo) LockProductByCodeTx(ctx context.Context, tx *sql.Tx, code string) (*models.Product, error) {
	p, ok := f.products[code]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (f *fakeProductRepo) UpdateProductStockTx(ctx context.Context, tx *sql.Tx, product *models.Product) error {
	f.writes++
	f.products[product.Code] = cloneProduct(product)
	return nil
}

type fakeMovementRepo struct {
	movements []models.StockMovement
}

var _ storage.StockMovementStorage = (*fakeMovementRepo)(nil)

func (f *fakeMovementRepo) RecordMovementTx(ctx context.Context, tx *sql.Tx, m models.StockMovement) error {
	m.ID = int64(len(f.movements) + 1)
	f.movements = append(f.movements, m)
	return nil
}

func (f *fakeMovementRepo) GetMovementsByOrderID(ctx context.Context, orderID string) ([]*models.StockMovement, error) {
	var res []*models.StockMovement
	for i := range f.movements {
		if f.movements[i].OrderID == orderID {
			m := f.movements[i]
			res = append(res, &m)
		}
	}
	return res, nil
}

type ledgerCall struct {
	orderID string
	dir     models.StockDirection
	items   []models.LineItem
}

// recordingLedger запоминает вызовы и возвращает заданный результат
type recordingLedger struct {
	calls  []ledgerCall
	checks int
	result service.LedgerResult
}

func newRecordingLedger() *recordingLedger {
	return &recordingLedger{result: service.LedgerResult{Success: true}}
}

func (l *recordingLedger) Check(ctx context.Context, tx *sql.Tx, items []models.LineItem) (service.LedgerResult, error) {
	l.checks++
	return l.result, nil
}

func (l *recordingLedger) Apply(ctx context.Context, tx *sql.Tx, orderID string, items []models.LineItem, dir models.StockDirection) (service.LedgerResult, error) {
	l.calls = append(l.calls, ledgerCall{orderID: orderID, dir: dir, items: items})
	return l.result, nil
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	var res []string
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

func strPtr(s string) *string { return &s }

func userIDString(id int64) *string { return strPtr(strconv.FormatInt(id, 10)) }
