package service

import (
	"context"
	"errors"
	"mime/multipart"
	"sort"
	"sync"
	"time"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/repository"
)

type memoryAccounts struct {
	mu     sync.Mutex
	rows   map[int64]*domain.Account
	nextID int64
}

func newMemoryAccounts(accounts ...*domain.Account) *memoryAccounts {
	m := &memoryAccounts{rows: make(map[int64]*domain.Account)}
	for _, a := range accounts {
		m.Create(context.Background(), a)
	}
	return m
}

func (m *memoryAccounts) List(ctx context.Context) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Account, 0, len(m.rows))
	for _, a := range m.rows {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryAccounts) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (m *memoryAccounts) Create(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	c := *a
	m.rows[a.ID] = &c
	return nil
}

func (m *memoryAccounts) Update(ctx context.Context, id int64, descricao string, linkPlanilha *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	a.Descricao, a.LinkPlanilha = descricao, linkPlanilha
	return true, nil
}

func (m *memoryAccounts) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

// fakeGateway answers from fixed tables and records calls. It is shared by concurrent status lookups.
type fakeGateway struct {
	mu        sync.Mutex
	statuses  map[string]domain.InstanceStatus
	qr        map[string]string
	contacts  []domain.Contact
	messages  []domain.Message
	chatErr   error
	actionErr error
	calls     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]domain.InstanceStatus{}, qr: map[string]string{}}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) Status(ctx context.Context, name string) domain.InstanceStatus {
	g.record("status " + name)
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.statuses[name]; ok {
		return st
	}
	return domain.InstanceStatus{Status: domain.StatusDisconnected}
}

func (g *fakeGateway) InstanceStatus(ctx context.Context, name string) domain.InstanceStatus {
	st := g.Status(ctx, name)
	if !st.Connected {
		st.QRCode = g.qr[name]
	}
	return st
}

func (g *fakeGateway) ConnectionState(ctx context.Context, name string) string {
	g.record("state " + name)
	if g.Status(ctx, name).Connected {
		return "open"
	}
	return "close"
}

func (g *fakeGateway) QRCode(ctx context.Context, name string) (string, bool) {
	g.record("qr " + name)
	qr, ok := g.qr[name]
	return qr, ok
}

func (g *fakeGateway) CreateInstance(ctx context.Context, name, number string) error {
	g.record("create " + name)
	return g.actionErr
}

func (g *fakeGateway) RestartInstance(ctx context.Context, name string) error {
	g.record("restart " + name)
	return g.actionErr
}

func (g *fakeGateway) LogoutInstance(ctx context.Context, name string) error {
	g.record("logout " + name)
	return g.actionErr
}

func (g *fakeGateway) DeleteInstance(ctx context.Context, name string) error {
	g.record("delete " + name)
	return g.actionErr
}

func (g *fakeGateway) RawInstances(ctx context.Context) (interface{}, error) {
	g.record("raw")
	if g.actionErr != nil {
		return nil, g.actionErr
	}
	return []interface{}{map[string]interface{}{"name": "loja1"}}, nil
}

func (g *fakeGateway) FindContacts(ctx context.Context, instance string) ([]domain.Contact, error) {
	g.record("contacts " + instance)
	return g.contacts, g.chatErr
}

func (g *fakeGateway) FindMessages(ctx context.Context, instance, remoteJID string, limit int) ([]domain.Message, error) {
	g.record("messages " + instance)
	return g.messages, g.chatErr
}

type fakeChatStore struct {
	contacts  []repository.GatewayContactRow
	messages  []repository.GatewayMessage
	err       error
	lastLimit int
}

func (s *fakeChatStore) Contacts(ctx context.Context, instance string, limit int) ([]repository.GatewayContactRow, error) {
	return s.contacts, s.err
}

func (s *fakeChatStore) Messages(ctx context.Context, instance, remoteJID string, limit int) ([]repository.GatewayMessage, error) {
	s.lastLimit = limit
	return s.messages, s.err
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key], c.ttl = value, ttl
	return nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

type event struct {
	name string
	data interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []event
}

func (h *recordingHub) Broadcast(name string, data interface{}) {
	h.mu.Lock()
	h.events = append(h.events, event{name, data})
	h.mu.Unlock()
}

func (h *recordingHub) named(name string) []event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event
	for _, e := range h.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeWebhook struct {
	payload *domain.DispatchPayload
	status  int
	err     error
}

func (w *fakeWebhook) Submit(ctx context.Context, payload *domain.DispatchPayload) (int, error) {
	w.payload = payload
	if w.err != nil {
		return 0, w.err
	}
	if w.status == 0 {
		return 200, nil
	}
	return w.status, nil
}

type fakeAttacher struct {
	image    string
	videoURL string
	videoErr error
}

func (a *fakeAttacher) EncodeImage(fh *multipart.FileHeader) (string, error) {
	if a.image == "" {
		return "", errors.New("unreadable image")
	}
	return a.image, nil
}

func (a *fakeAttacher) AttachVideo(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	return a.videoURL, a.videoErr
}
