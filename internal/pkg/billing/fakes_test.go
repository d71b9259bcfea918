package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/PawDesk/app/models"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memEventStore struct {
	mu     sync.Mutex
	events map[string]*models.ProviderEvent
	nextID uint
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[string]*models.ProviderEvent)}
}

func (s *memEventStore) ExistsAndProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	return ok && ev.Processed, nil
}

func (s *memEventStore) InsertIfAbsent(_ context.Context, event *models.ProviderEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[event.EventID]; ok {
		return false, nil
	}
	s.nextID++
	cp := *event
	cp.ID = s.nextID
	s.events[event.EventID] = &cp
	return true, nil
}

func (s *memEventStore) Claim(_ context.Context, eventID string, now, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok || ev.Processed || ev.IsClaimed(staleBefore) {
		return false, nil
	}
	t := now
	ev.ClaimedAt = &t
	ev.Attempts++
	return true, nil
}

func (s *memEventStore) MarkProcessed(_ context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	t := at
	ev.Processed = true
	ev.ProcessedAt = &t
	ev.ClaimedAt = nil
	ev.ProcessingError = ""
	return nil
}

func (s *memEventStore) Release(_ context.Context, eventID string, processingErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	ev.ClaimedAt = nil
	if processingErr != nil {
		ev.ProcessingError = processingErr.Error()
	}
	return nil
}

func (s *memEventStore) Get(_ context.Context, eventID string) (*models.ProviderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (s *memEventStore) ListUnprocessed(_ context.Context, createdBefore time.Time, limit int) ([]models.ProviderEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProviderEvent
	for _, ev := range s.events {
		if !ev.Processed && !ev.CreatedAt.After(createdBefore) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memEventStore) processedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Processed {
			n++
		}
	}
	return n
}

type memSubscriptionStore struct {
	mu     sync.Mutex
	subs   map[string]models.Subscription
	nextID uint
	saves  int
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{subs: make(map[string]models.Subscription)}
}

func (s *memSubscriptionStore) GetByUpstreamID(_ context.Context, id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *memSubscriptionStore) Save(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		s.nextID++
		sub.ID = s.nextID
	}
	s.subs[sub.UpstreamSubscriptionID] = *sub
	s.saves++
	return nil
}

func (s *memSubscriptionStore) seed(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub.ID = s.nextID
	s.subs[sub.UpstreamSubscriptionID] = sub
}

type memHistoryStore struct {
	mu      sync.Mutex
	entries []models.SubscriptionHistory
}

func (s *memHistoryStore) Append(_ context.Context, entry *models.SubscriptionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uint(len(s.entries) + 1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memHistoryStore) ListBySubscription(_ context.Context, subscriptionID uint) ([]models.SubscriptionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SubscriptionHistory
	for _, e := range s.entries {
		if e.SubscriptionID == subscriptionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memHistoryStore) all() []models.SubscriptionHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SubscriptionHistory(nil), s.entries...)
}

type memCustomerStore struct {
	mu        sync.Mutex
	customers []models.Customer
	deleted   map[uint]bool
}

func newMemCustomerStore() *memCustomerStore {
	return &memCustomerStore{deleted: make(map[uint]bool)}
}

func (s *memCustomerStore) find(match func(c models.Customer) bool) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if !s.deleted[c.ID] && match(c) {
			cp := c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memCustomerStore) GetByTenant(_ context.Context, tenantID uint) (*models.Customer, error) {
	return s.find(func(c models.Customer) bool { return c.TenantID == tenantID })
}

func (s *memCustomerStore) GetByID(_ context.Context, id uint) (*models.Customer, error) {
	return s.find(func(c models.Customer) bool { return c.ID == id })
}

func (s *memCustomerStore) GetByUpstreamID(_ context.Context, upstreamID string) (*models.Customer, error) {
	return s.find(func(c models.Customer) bool { return c.UpstreamID() == upstreamID })
}

func (s *memCustomerStore) Create(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uint(len(s.customers) + 1)
	s.customers = append(s.customers, *c)
	return nil
}

func (s *memCustomerStore) SoftDelete(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted[id] = true
	return nil
}

func (s *memCustomerStore) seed(tenantID uint, upstreamID, email string) models.Customer {
	c := models.Customer{TenantID: tenantID, Email: email}
	if upstreamID != "" {
		id := upstreamID
		c.UpstreamCustomerID = &id
	}
	_ = s.Create(context.Background(), &c)
	return c
}

func (s *memCustomerStore) live() []models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Customer
	for _, c := range s.customers {
		if !s.deleted[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// fakeProvider scripts provider responses. Charge outcomes are keyed by
// method type; methods without an entry succeed.
type fakeProvider struct {
	mu sync.Mutex

	customers     map[string]*UpstreamCustomer
	customerErr   error
	subscriptions map[string]*SubscriptionSnapshot
	invoices      map[string]*Invoice
	methods       map[string][]PaymentMethod
	chargeErrs    map[string]error

	created     []CreateCustomerParams
	charges     []ChargeRequest
	attached    []string
	getCustomer int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:     make(map[string]*UpstreamCustomer),
		subscriptions: make(map[string]*SubscriptionSnapshot),
		invoices:      make(map[string]*Invoice),
		methods:       make(map[string][]PaymentMethod),
		chargeErrs:    make(map[string]error),
	}
}

func (p *fakeProvider) GetCustomer(_ context.Context, id string) (*UpstreamCustomer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCustomer++
	if p.customerErr != nil {
		return nil, p.customerErr
	}
	c, ok := p.customers[id]
	if !ok {
		return nil, &ProviderError{Kind: ErrorKindNotFound, Code: "resource_missing", Message: "no such customer"}
	}
	cp := *c
	return &cp, nil
}

func (p *fakeProvider) CreateCustomer(_ context.Context, params CreateCustomerParams) (*UpstreamCustomer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, params)
	c := &UpstreamCustomer{ID: fmt.Sprintf("cus_new_%d", len(p.created)), Email: params.Email, Name: params.Name}
	p.customers[c.ID] = c
	return c, nil
}

func (p *fakeProvider) GetSubscription(_ context.Context, id string) (*SubscriptionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.subscriptions[id]
	if !ok {
		return nil, &ProviderError{Kind: ErrorKindNotFound, Code: "resource_missing", Message: "no such subscription"}
	}
	cp := *s
	return &cp, nil
}

func (p *fakeProvider) CreateCharge(_ context.Context, req ChargeRequest) (*Charge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, req)
	if err := p.chargeErrs[req.MethodType]; err != nil {
		return nil, err
	}
	return &Charge{ID: fmt.Sprintf("pi_%d", len(p.charges)), Status: "succeeded", MethodType: req.MethodType}, nil
}

func (p *fakeProvider) ListPaymentMethods(_ context.Context, customerID string) ([]PaymentMethod, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.methods[customerID], nil
}

func (p *fakeProvider) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	inv, ok := p.invoices[id]
	if !ok {
		return nil, &ProviderError{Kind: ErrorKindNotFound, Code: "resource_missing", Message: "no such invoice"}
	}
	cp := *inv
	return &cp, nil
}

func (p *fakeProvider) AttachPaymentMethod(_ context.Context, pmID, customerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attached = append(p.attached, pmID+"->"+customerID)
	return nil
}

func (p *fakeProvider) chargedMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.charges))
	for _, c := range p.charges {
		out = append(out, c.MethodType)
	}
	return out
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []CancellationNotice
	err     error
}

func (n *fakeNotifier) SendCancellationNotice(_ context.Context, notice CancellationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

type fakeRetryScheduler struct {
	mu        sync.Mutex
	scheduled map[string]int
}

func (s *fakeRetryScheduler) ScheduleInvoiceRetry(_ context.Context, invoiceID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled == nil {
		s.scheduled = make(map[string]int)
	}
	s.scheduled[invoiceID]++
	return s.scheduled[invoiceID] == 1, nil
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ Fields) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ Fields)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ Fields)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ Fields) { l.log("error", msg) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if line == level+": "+msg {
			return true
		}
	}
	return false
}

// harness wires the engine against in-memory fakes.
type harness struct {
	events    *memEventStore
	subs      *memSubscriptionStore
	history   *memHistoryStore
	customers *memCustomerStore
	provider  *fakeProvider
	notifier  *fakeNotifier
	logger    *recordingLogger
	clock     *fixedClock
	engine    *Engine
}

func newHarness(mutate ...func(*Deps)) *harness {
	h := &harness{
		events:    newMemEventStore(),
		subs:      newMemSubscriptionStore(),
		history:   &memHistoryStore{},
		customers: newMemCustomerStore(),
		provider:  newFakeProvider(),
		notifier:  &fakeNotifier{},
		logger:    &recordingLogger{},
		clock:     newFixedClock(),
	}
	d := Deps{
		Events:        h.events,
		Subscriptions: h.subs,
		History:       h.history,
		Customers:     h.customers,
		Provider:      h.provider,
		Notifier:      h.notifier,
		Logger:        h.logger,
		Clock:         h.clock,
		Config:        DefaultConfig(),
	}
	for _, m := range mutate {
		m(&d)
	}
	h.engine = NewEngine(d)
	return h
}

var errBoom = errors.New("boom")
