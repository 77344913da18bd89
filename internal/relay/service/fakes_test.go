package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"curbside_relay/internal/followup"
	"curbside_relay/internal/relay/classifier"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/repository"
	"curbside_relay/internal/vapi"
	"curbside_relay/platform/logger"
)

const testPhone = "+16502530000"

// testClock is a manually advanced clock shared by the fakes.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

type memoryStore struct {
	mu          sync.Mutex
	clock       *testClock
	customers   map[string]*domain.Customer
	orders      []*domain.Order
	turns       []domain.Turn
	escalations []*domain.VoiceEscalation
	spotErr     error
}

var _ repository.Store = (*memoryStore)(nil)

func newMemoryStore(clock *testClock) *memoryStore {
	return &memoryStore{clock: clock, customers: map[string]*domain.Customer{}}
}

func (s *memoryStore) GetCustomerByPhone(_ context.Context, phone string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return domain.Customer{}, repository.ErrNotFound
	}
	return *c, nil
}

func (s *memoryStore) UpsertCustomer(_ context.Context, phone, name string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[phone]; ok {
		c.Name = name
		return *c, nil
	}
	c := &domain.Customer{ID: uuid.New(), Phone: phone, Name: name, CreatedAt: s.clock.Now()}
	s.customers[phone] = c
	return *c, nil
}

func (s *memoryStore) MarkOptedIn(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.customers {
		if c.ID == id {
			c.OptedIn = true
			c.OptedInAt = &at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memoryStore) ResetOptIn(_ context.Context, phone string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return domain.Customer{}, repository.ErrNotFound
	}
	c.OptedIn = false
	c.OptedInAt = nil
	return *c, nil
}

func (s *memoryStore) CreateOrder(_ context.Context, p repository.CreateOrderParams) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.CustomerPhone == p.CustomerPhone && o.OrderNumber == p.OrderNumber && o.Status != domain.OrderCompleted {
			return domain.Order{}, repository.ErrDuplicateOrder
		}
	}
	o := &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   p.OrderNumber,
		CustomerID:    p.CustomerID,
		CustomerPhone: p.CustomerPhone,
		CustomerName:  p.CustomerName,
		StoreName:     p.StoreName,
		StoreAddress:  p.StoreAddress,
		Status:        domain.OrderNew,
		CreatedAt:     s.clock.Now(),
	}
	s.orders = append(s.orders, o)
	return *o, nil
}

func (s *memoryStore) GetOrder(_ context.Context, id uuid.UUID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return *o, nil
		}
	}
	return domain.Order{}, repository.ErrNotFound
}

func (s *memoryStore) latest(match func(*domain.Order) bool) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.orders) - 1; i >= 0; i-- {
		if match(s.orders[i]) {
			return *s.orders[i], nil
		}
	}
	return domain.Order{}, repository.ErrNotFound
}

func (s *memoryStore) ActiveOrder(_ context.Context, phone string) (domain.Order, error) {
	return s.latest(func(o *domain.Order) bool { return o.CustomerPhone == phone && !o.Status.IsTerminal() })
}

func (s *memoryStore) LatestOrder(_ context.Context, phone string) (domain.Order, error) {
	return s.latest(func(o *domain.Order) bool { return o.CustomerPhone == phone })
}

func (s *memoryStore) OrderByNumber(_ context.Context, phone, number string) (domain.Order, error) {
	return s.latest(func(o *domain.Order) bool { return o.CustomerPhone == phone && o.OrderNumber == number })
}

func (s *memoryStore) UpdateOrderStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			o.Status = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memoryStore) AppendTurn(_ context.Context, t domain.Turn) (domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = s.clock.Now()
	s.turns = append(s.turns, t)
	return t, nil
}

func (s *memoryStore) RecentTurns(_ context.Context, phone string, limit int) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Turn
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.turns[i].Phone == phone {
			out = append([]domain.Turn{s.turns[i]}, out...)
		}
	}
	return out, nil
}

func (s *memoryStore) LatestParkingSpot(_ context.Context, phone string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spotErr != nil {
		return "", false, s.spotErr
	}
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Phone == phone && s.turns[i].ParkingSpot != "" {
			return s.turns[i].ParkingSpot, true, nil
		}
	}
	return "", false, nil
}

func (s *memoryStore) HasOptInRequestSince(_ context.Context, phone string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker := strings.ToLower(repository.OptInRequestMarker)
	for _, t := range s.turns {
		if t.Phone == phone && !t.CreatedAt.Before(since) && strings.Contains(strings.ToLower(t.ResponseText), marker) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) CreateVoiceEscalation(_ context.Context, e domain.VoiceEscalation) (domain.VoiceEscalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = s.clock.Now()
	s.escalations = append(s.escalations, &e)
	return e, nil
}

func (s *memoryStore) CompleteVoiceEscalation(_ context.Context, c domain.CallCompletion, endedAt time.Time) (domain.VoiceEscalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escalations {
		if e.CallID == c.CallID && e.Status == domain.EscalationInitiated {
			e.Status = domain.EscalationCompleted
			e.Transcript = c.Transcript
			e.Summary = c.Summary
			e.EndedReason = c.EndedReason
			e.DurationSeconds = c.DurationSeconds
			e.EndedAt = &endedAt
			return *e, nil
		}
	}
	return domain.VoiceEscalation{}, repository.ErrNotFound
}

func (s *memoryStore) customer(phone string) domain.Customer {
	c, _ := s.GetCustomerByPhone(context.Background(), phone)
	return c
}

func (s *memoryStore) order(number string) domain.Order {
	o, _ := s.latest(func(o *domain.Order) bool { return o.OrderNumber == number })
	return o
}

func (s *memoryStore) turnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

func (s *memoryStore) lastTurn() domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) == 0 {
		return domain.Turn{}
	}
	return s.turns[len(s.turns)-1]
}

// seedOptedIn creates an opted-in customer with an active order.
func (s *memoryStore) seedOptedIn(phone, name, orderNumber string, status domain.OrderStatus) (domain.Customer, domain.Order) {
	ctx := context.Background()
	c, _ := s.UpsertCustomer(ctx, phone, name)
	_ = s.MarkOptedIn(ctx, c.ID, s.clock.Now())
	id := c.ID
	o, _ := s.CreateOrder(ctx, repository.CreateOrderParams{OrderNumber: orderNumber, CustomerID: &id, CustomerPhone: phone, CustomerName: name, StoreName: "Store 12"})
	_ = s.UpdateOrderStatus(ctx, o.ID, status)
	o.Status = status
	return s.customer(phone), o
}

type stubClassifier struct {
	mu        sync.Mutex
	actions   []domain.Action
	err       error
	generated string
	genErr    error
	requests  []classifier.Request
	prompts   []string
}

func (c *stubClassifier) Classify(_ context.Context, req classifier.Request) (domain.Action, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return domain.Action{}, c.err
	}
	if len(c.actions) == 0 {
		return domain.Action{}, errors.New("no scripted action")
	}
	a := c.actions[0]
	c.actions = c.actions[1:]
	return a, nil
}

func (c *stubClassifier) Generate(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.generated, c.genErr
}

func (c *stubClassifier) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func scripted(kind domain.ActionKind, response, spot string) domain.Action {
	a, err := domain.NewAction(kind, response)
	if err != nil {
		panic(err)
	}
	a.ParkingSpot = spot
	return a
}

type sentMessage struct {
	To   string
	Body string
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *recordingMessenger) Send(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return "SM" + uuid.NewString()[:8], nil
}

func (m *recordingMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

type recordingVoice struct {
	mu     sync.Mutex
	calls  []vapi.EscalationContext
	callID string
	err    error
}

func (v *recordingVoice) CreateEscalationCall(_ context.Context, esc vapi.EscalationContext) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, esc)
	if v.err != nil {
		return "", v.err
	}
	return v.callID, nil
}

type staffAlert struct {
	Subject string
	Body    string
}

type recordingStaff struct {
	mu     sync.Mutex
	alerts []staffAlert
}

func (s *recordingStaff) Alert(_ context.Context, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, staffAlert{Subject: subject, Body: body})
	return nil
}

func (s *recordingStaff) all() []staffAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]staffAlert(nil), s.alerts...)
}

type recordingFanout struct {
	mu     sync.Mutex
	events []string
}

func (f *recordingFanout) Broadcast(eventType, _, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func (f *recordingFanout) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type scheduledJob struct {
	Job   followup.Job
	Delay time.Duration
}

// manualScheduler records jobs; tests fire them explicitly.
type manualScheduler struct {
	mu        sync.Mutex
	jobs      []scheduledJob
	cancelled []string
}

func (s *manualScheduler) Schedule(_ context.Context, job followup.Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{Job: job, Delay: delay})
	return nil
}

func (s *manualScheduler) Cancel(_ context.Context, orderKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, orderKey)
	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if j.Job.OrderID != orderKey {
			kept = append(kept, j)
		}
	}
	s.jobs = kept
	return nil
}

func (s *manualScheduler) pending() []scheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduledJob(nil), s.jobs...)
}

type harness struct {
	clock      *testClock
	store      *memoryStore
	classifier *stubClassifier
	messenger  *recordingMessenger
	voice      *recordingVoice
	staff      *recordingStaff
	fanout     *recordingFanout
	scheduler  *manualScheduler
	deps       Deps

	orchestrator *Orchestrator
	bridge       *VoiceBridge
	lifecycle    *Lifecycle
}

func newHarness() *harness {
	clock := newTestClock()
	h := &harness{
		clock:      clock,
		store:      newMemoryStore(clock),
		classifier: &stubClassifier{},
		messenger:  &recordingMessenger{},
		voice:      &recordingVoice{callID: "call-123"},
		staff:      &recordingStaff{},
		fanout:     &recordingFanout{},
		scheduler:  &manualScheduler{},
	}
	h.deps = Deps{
		Store:      h.store,
		Classifier: h.classifier,
		Messenger:  h.messenger,
		Voice:      h.voice,
		Staff:      h.staff,
		Fanout:     h.fanout,
		Scheduler:  h.scheduler,
		Messages:   Messages{Brand: "Rural King", ReviewURL: "http://bit.ly/3VE1Nx0"},
		Log:        logger.New("test"),
		Now:        clock.Now,
	}
	h.bridge = NewVoiceBridge(h.deps)
	h.orchestrator = NewOrchestrator(h.deps, h.bridge)
	h.lifecycle = NewLifecycle(h.deps)
	return h
}

func containsEvent(events []string, want string) bool {
	for _, e := range events {
		if e == want {
			return true
		}
	}
	return false
}
