package billing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared"
)

// In-memory stores backing the service tests

type memMeters struct {
	mu     sync.Mutex
	meters map[uuid.UUID]billing.Meter
}

func newMemMeters() *memMeters {
	return &memMeters{meters: make(map[uuid.UUID]billing.Meter)}
}

func (s *memMeters) IsAssigned(_ context.Context, meterID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meters[meterID]
	return ok && m.IsAssigned(), nil
}

func (s *memMeters) CustomerIDFor(_ context.Context, meterID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meters[meterID]
	if !ok || !m.IsAssigned() {
		return uuid.Nil, billing.NewMeterNotAssignedError(meterID)
	}
	return *m.CustomerID, nil
}

func (s *memMeters) FindByID(_ context.Context, id uuid.UUID) (*billing.Meter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meters[id]
	if !ok {
		return nil, billing.NewMeterNotFoundError(id)
	}
	return &m, nil
}

func (s *memMeters) FindByNumber(_ context.Context, meterNumber string) (*billing.Meter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meters {
		if m.MeterNumber == meterNumber {
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memMeters) Save(_ context.Context, meter billing.Meter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meters[meter.ID] = meter
	return nil
}

func (s *memMeters) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]billing.Meter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Meter
	for _, m := range s.meters {
		if m.CustomerID != nil && *m.CustomerID == customerID {
			out = append(out, m)
		}
	}
	return out, nil
}

type memReadings struct {
	mu       sync.Mutex
	readings []billing.MeterReading
	saveErr  error
}

func (s *memReadings) FindByID(_ context.Context, id uuid.UUID) (*billing.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.readings {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, billing.NewReadingNotFoundError(id)
}

func (s *memReadings) FindLatestByMeter(_ context.Context, meterID uuid.UUID) (*billing.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.readings) - 1; i >= 0; i-- {
		if s.readings[i].MeterID == meterID {
			r := s.readings[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memReadings) Save(_ context.Context, reading billing.MeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.readings = append(s.readings, reading)
	return nil
}

func (s *memReadings) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.readings {
		if r.ID == id {
			s.readings = append(s.readings[:i], s.readings[i+1:]...)
			return
		}
	}
}

func (s *memReadings) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.readings)
}

func (s *memReadings) ListByMeter(_ context.Context, meterID uuid.UUID, _ shared.Filter) ([]billing.MeterReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.MeterReading
	for i := len(s.readings) - 1; i >= 0; i-- {
		if s.readings[i].MeterID == meterID {
			out = append(out, s.readings[i])
		}
	}
	return out, nil
}

type memBills struct {
	mu    sync.Mutex
	bills map[uuid.UUID]billing.Bill
	// beforeUpdate runs ahead of every UpdateStatus, outside the lock
	beforeUpdate func(billID uuid.UUID)
	saveErr      error
	updateErr    error
}

func newMemBills() *memBills {
	return &memBills{bills: make(map[uuid.UUID]billing.Bill)}
}

func (s *memBills) FindByID(_ context.Context, id uuid.UUID) (*billing.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok {
		return nil, billing.NewBillNotFoundError(id)
	}
	return &b, nil
}

func (s *memBills) FindByReadingID(_ context.Context, readingID uuid.UUID) (*billing.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bills {
		if b.MeterReadingID != nil && *b.MeterReadingID == readingID {
			return &b, nil
		}
	}
	return nil, nil
}

func (s *memBills) Save(_ context.Context, bill billing.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, b := range s.bills {
		if b.MeterReadingID != nil && bill.MeterReadingID != nil && *b.MeterReadingID == *bill.MeterReadingID {
			return billing.NewReadingAlreadyBilledError(*bill.MeterReadingID, b.ID)
		}
	}
	s.bills[bill.ID] = bill
	return nil
}

func (s *memBills) UpdateStatus(_ context.Context, updated billing.Bill, expectedVersion int) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate(updated.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	current, ok := s.bills[updated.ID]
	if !ok {
		return billing.NewBillNotFoundError(updated.ID)
	}
	if current.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	s.bills[updated.ID] = updated
	return nil
}

func (s *memBills) put(bill billing.Bill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bills[bill.ID] = bill
}

func (s *memBills) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bills, id)
}

func (s *memBills) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bills)
}

// touch bumps a stored bill's version as a concurrent writer would
func (s *memBills) touch(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bills[id]
	b.Version++
	s.bills[id] = b
}

func (s *memBills) ListByStatus(_ context.Context, status billing.BillStatus) ([]billing.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Bill
	for _, b := range s.bills {
		if b.Status == status {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *memBills) List(_ context.Context, filter billing.BillFilter) ([]billing.Bill, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Bill
	for _, b := range s.bills {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != nil && b.CustomerID != *filter.CustomerID {
			continue
		}
		out = append(out, b)
	}
	return out, int64(len(out)), nil
}

func (s *memBills) Totals(_ context.Context) ([]billing.StatusTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[billing.BillStatus]*billing.StatusTotals)
	for _, b := range s.bills {
		t, ok := byStatus[b.Status]
		if !ok {
			t = &billing.StatusTotals{Status: b.Status, Amount: decimal.Zero}
			byStatus[b.Status] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(b.TotalAmount)
	}
	out := make([]billing.StatusTotals, 0, len(byStatus))
	for _, t := range byStatus {
		out = append(out, *t)
	}
	return out, nil
}

type memPayments struct {
	mu       sync.Mutex
	payments []billing.Payment
	saveErr  error
}

func (s *memPayments) FindByID(_ context.Context, id uuid.UUID) (*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, billing.NewPaymentNotFoundError(id)
}

func (s *memPayments) FindByBillID(_ context.Context, billID uuid.UUID) ([]billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []billing.Payment
	for _, p := range s.payments {
		if p.BillID == billID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPayments) Save(_ context.Context, payment billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.payments = append(s.payments, payment)
	return nil
}

func (s *memPayments) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.payments {
		if p.ID == id {
			s.payments = append(s.payments[:i], s.payments[i+1:]...)
			return
		}
	}
}

func (s *memPayments) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

// memTx applies writes straight to the in-memory stores and undoes them,
// newest first, when the unit of work fails.
type memTx struct {
	mu       sync.Mutex
	readings *memReadings
	bills    *memBills
	payments *memPayments
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, stores billing.TxStores) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var undo []func()
	stores := billing.TxStores{
		Readings: &txReadings{memReadings: t.readings, undo: &undo},
		Bills:    &txBills{memBills: t.bills, undo: &undo},
		Payments: &txPayments{memPayments: t.payments, undo: &undo},
	}
	if err := fn(ctx, stores); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

type txReadings struct {
	*memReadings
	undo *[]func()
}

func (s *txReadings) Save(ctx context.Context, reading billing.MeterReading) error {
	if err := s.memReadings.Save(ctx, reading); err != nil {
		return err
	}
	*s.undo = append(*s.undo, func() { s.memReadings.remove(reading.ID) })
	return nil
}

type txBills struct {
	*memBills
	undo *[]func()
}

func (s *txBills) Save(ctx context.Context, bill billing.Bill) error {
	if err := s.memBills.Save(ctx, bill); err != nil {
		return err
	}
	*s.undo = append(*s.undo, func() { s.memBills.remove(bill.ID) })
	return nil
}

func (s *txBills) UpdateStatus(ctx context.Context, updated billing.Bill, expectedVersion int) error {
	before, err := s.memBills.FindByID(ctx, updated.ID)
	if err != nil {
		return err
	}
	if err := s.memBills.UpdateStatus(ctx, updated, expectedVersion); err != nil {
		return err
	}
	previous := *before
	*s.undo = append(*s.undo, func() { s.memBills.put(previous) })
	return nil
}

type txPayments struct {
	*memPayments
	undo *[]func()
}

func (s *txPayments) Save(ctx context.Context, payment billing.Payment) error {
	if err := s.memPayments.Save(ctx, payment); err != nil {
		return err
	}
	*s.undo = append(*s.undo, func() { s.memPayments.remove(payment.ID) })
	return nil
}

type memCustomers struct {
	mu        sync.Mutex
	customers map[uuid.UUID]billing.Customer
}

func newMemCustomers() *memCustomers {
	return &memCustomers{customers: make(map[uuid.UUID]billing.Customer)}
}

func (s *memCustomers) FindByID(_ context.Context, id uuid.UUID) (*billing.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, billing.NewCustomerNotFoundError(id.String())
	}
	return &c, nil
}

func (s *memCustomers) FindByAccountNumber(_ context.Context, accountNumber string) (*billing.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.AccountNumber == accountNumber {
			return &c, nil
		}
	}
	return nil, billing.NewCustomerNotFoundError(accountNumber)
}

func (s *memCustomers) FindByEmail(_ context.Context, email string) (*billing.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memCustomers) Save(_ context.Context, customer billing.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
	return nil
}

func (s *memCustomers) List(_ context.Context, filter billing.CustomerFilter) ([]billing.Customer, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query := strings.ToLower(filter.Query)
	var out []billing.Customer
	for _, c := range s.customers {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(c.Name), query) &&
			!strings.HasPrefix(strings.ToLower(c.AccountNumber), query) &&
			!strings.Contains(c.Phone, query) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, int64(len(out)), nil
}

// recordingPublisher keeps every published event type in order
type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		p.types = append(p.types, e.EventType())
	}
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
