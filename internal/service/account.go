package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/evolution"
	"github.com/viniciusxv27/enviomkt/internal/ws"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	MsgAllFieldsRequired   = "Todos os campos são obrigatórios"
	MsgDescriptionRequired = "Descrição é obrigatória"
	MsgAccountNotFound     = "Número não encontrado"
	MsgQRUnavailable       = "QR Code não disponível"

	statusConcurrency = 4
	statusCachePrefix = "instance_status:"
)

var (
	ErrNotFound      = errors.New(MsgAccountNotFound)
	ErrQRUnavailable = errors.New(MsgQRUnavailable)
	// ErrGateway wraps failures of explicit gateway operations such as restart.
	ErrGateway = errors.New("gateway request failed")
)

// AccountInput is the create/edit form of a sending account.
type AccountInput struct {
	Numero         string  `json:"numero" form:"numero"`
	RemoteJID      string  `json:"remotejid" form:"remotejid"`
	Descricao      string  `json:"descricao" form:"descricao"`
	Instancia      string  `json:"instancia" form:"instancia"`
	LinkPlanilha   *string `json:"link_planilha" form:"link_planilha"`
	CreateInstance bool    `json:"create_instance" form:"create_instance"`
}

// AccountService manages the numeros registry and its live gateway state
type AccountService struct {
	store    AccountStore
	gateway  Gateway
	cache    StatusCache
	cacheTTL time.Duration
	hub      Broadcaster
}

// List returns every account with its current status. Gateway lookups run with bounded concurrency.
func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for _, a := range accounts {
		a := a
		g.Go(func() error {
			applyStatus(a, s.cachedStatus(gctx, a.Instancia))
			return nil
		})
	}
	_ = g.Wait()
	return accounts, nil
}

func (s *AccountService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// Create inserts the account and, when asked, registers the instance on the gateway.
// A gateway failure is logged and does not undo the insert.
func (s *AccountService) Create(ctx context.Context, in AccountInput) (*domain.Account, error) {
	a := &domain.Account{
		Numero:       strings.TrimSpace(in.Numero),
		RemoteJID:    strings.TrimSpace(in.RemoteJID),
		Descricao:    strings.TrimSpace(in.Descricao),
		Instancia:    strings.TrimSpace(in.Instancia),
		LinkPlanilha: optional(in.LinkPlanilha),
	}
	if a.Numero == "" || a.RemoteJID == "" || a.Descricao == "" || a.Instancia == "" {
		return nil, domain.NewValidationError(MsgAllFieldsRequired)
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	log.Component("accounts").WithField("id", a.ID).Infof("account %s registered for instance %s", a.Numero, a.Instancia)

	if in.CreateInstance {
		if err := s.gateway.CreateInstance(ctx, a.Instancia, a.Numero); err != nil {
			log.Component("accounts").WithField("instance", a.Instancia).Warnf("gateway create failed: %v", err)
		}
	}
	a.Status = domain.StatusDisconnected
	return a, nil
}

// Update edits descricao and link_planilha.
func (s *AccountService) Update(ctx context.Context, id int64, in AccountInput) (*domain.Account, error) {
	descricao := strings.TrimSpace(in.Descricao)
	if descricao == "" {
		return nil, domain.NewValidationError(MsgDescriptionRequired)
	}
	ok, err := s.store.Update(ctx, id, descricao, optional(in.LinkPlanilha))
	if err != nil {
		return nil, fmt.Errorf("update account %d: %w", id, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the row, and the gateway instance when deleteInstance is set.
func (s *AccountService) Delete(ctx context.Context, id int64, deleteInstance bool) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	if !removed {
		return ErrNotFound
	}
	if deleteInstance {
		if err := s.gateway.DeleteInstance(ctx, a.Instancia); err != nil {
			log.Component("accounts").WithField("instance", a.Instancia).Warnf("gateway delete failed: %v", err)
		}
	}
	s.dropStatus(ctx, a.Instancia)
	return nil
}

// Status returns the live status of one account with a QR code while it is not connected.
func (s *AccountService) Status(ctx context.Context, id int64) (*domain.Account, domain.InstanceStatus, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, domain.InstanceStatus{}, err
	}
	st := s.gateway.InstanceStatus(ctx, a.Instancia)
	s.storeStatus(ctx, a.Instancia, st)
	applyStatus(a, st)
	if st.QRCode != "" {
		s.hub.Broadcast(ws.EventQRCode, map[string]interface{}{"id": a.ID, "instancia": a.Instancia, "qr_code": st.QRCode})
	}
	return a, st, nil
}

func (s *AccountService) Restart(ctx context.Context, id int64) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gateway.RestartInstance(ctx, a.Instancia); err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.dropStatus(ctx, a.Instancia)
	return nil
}

// Logout unpairs the phone from the instance.
func (s *AccountService) Logout(ctx context.Context, id int64) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.gateway.LogoutInstance(ctx, a.Instancia); err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	s.dropStatus(ctx, a.Instancia)
	return nil
}

// RefreshStatuses reads every account's status from the gateway, refreshes the cache and broadcasts it.
func (s *AccountService) RefreshStatuses(ctx context.Context) error {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for _, a := range accounts {
		a := a
		g.Go(func() error {
			st := s.gateway.Status(gctx, a.Instancia)
			s.storeStatus(gctx, a.Instancia, st)
			s.hub.Broadcast(ws.EventInstanceStatus, map[string]interface{}{
				"id":        a.ID,
				"instancia": a.Instancia,
				"status":    st.Status,
				"connected": st.Connected,
			})
			return nil
		})
	}
	return g.Wait()
}

// DebugStatus exposes the raw and normalized state of an instance.
func (s *AccountService) DebugStatus(ctx context.Context, instance string) (map[string]interface{}, error) {
	raw, err := s.gateway.RawInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	state := s.gateway.ConnectionState(ctx, instance)
	bucket := evolution.DisplayStatus(state)
	return map[string]interface{}{
		"instance":      instance,
		"raw_state":     state,
		"status":        bucket,
		"connected":     bucket == domain.StatusConnected,
		"raw_instances": raw,
	}, nil
}

// DebugQR returns the normalized QR code of an instance.
func (s *AccountService) DebugQR(ctx context.Context, instance string) (string, error) {
	qr, ok := s.gateway.QRCode(ctx, instance)
	if !ok {
		return "", ErrQRUnavailable
	}
	return qr, nil
}

func (s *AccountService) cachedStatus(ctx context.Context, instance string) domain.InstanceStatus {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, statusCachePrefix+instance)
		if err != nil {
			log.Component("accounts").Debugf("status cache read failed: %v", err)
		} else if data != nil {
			var st domain.InstanceStatus
			if err := json.Unmarshal(data, &st); err == nil {
				return st
			}
		}
	}
	st := s.gateway.Status(ctx, instance)
	s.storeStatus(ctx, instance, st)
	return st
}

func (s *AccountService) storeStatus(ctx context.Context, instance string, st domain.InstanceStatus) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	st.QRCode = ""
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCachePrefix+instance, data, s.cacheTTL); err != nil {
		log.Component("accounts").Debugf("status cache write failed: %v", err)
	}
}

// dropStatus forgets the cached snapshot after an action that changes the connection state.
func (s *AccountService) dropStatus(ctx context.Context, instance string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCachePrefix+instance); err != nil {
		log.Component("accounts").Debugf("status cache delete failed: %v", err)
	}
}

func applyStatus(a *domain.Account, st domain.InstanceStatus) {
	a.Status = st.Status
	a.Connected = st.Connected
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
