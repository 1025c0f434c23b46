package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/ws"
)

const testSecret = "test-secret"

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	auth, err := NewAuthService(Credentials{Username: "operador", Password: "s3nha"}, testSecret)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return auth
}

func TestLogin(t *testing.T) {
	auth := newAuth(t)

	token, err := auth.Login("operador", "s3nha")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "operador" || claims.Issuer != "enviomkt" {
		t.Errorf("claims = %+v", claims)
	}
	if ttl := time.Until(claims.ExpiresAt.Time); ttl < 6*24*time.Hour {
		t.Errorf("token expires in %v, want about 7 days", ttl)
	}
}

func TestLoginRejectsWrongCredentials(t *testing.T) {
	auth := newAuth(t)
	for _, c := range [][2]string{{"operador", "errada"}, {"outro", "s3nha"}, {"", ""}} {
		if _, err := auth.Login(c[0], c[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) = %v", c[0], c[1], err)
		}
	}
}

func TestLoginDisabledWithoutCredentials(t *testing.T) {
	auth, err := NewAuthService(Credentials{}, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.Login("", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsForgeries(t *testing.T) {
	auth := newAuth(t)
	token, _ := auth.Login("operador", "s3nha")

	other, _ := NewAuthService(Credentials{Username: "operador", Password: "s3nha"}, "another-secret")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret accepted")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Username: "operador"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := auth.ValidateToken(unsigned); err == nil {
		t.Error("unsigned token accepted")
	}

	if _, err := auth.ValidateToken(token[:len(token)-2] + "xx"); err == nil {
		t.Error("tampered token accepted")
	}
}

type accountFixture struct {
	store   *memoryAccounts
	gateway *fakeGateway
	cache   *memoryCache
	hub     *recordingHub
	svc     *AccountService
}

func newAccountFixture(t *testing.T, accounts ...*domain.Account) *accountFixture {
	t.Helper()
	f := &accountFixture{
		store:   newMemoryAccounts(accounts...),
		gateway: newFakeGateway(),
		cache:   newMemoryCache(),
		hub:     &recordingHub{},
	}
	services, err := NewServices(Deps{
		Accounts: f.store,
		Gateway:  f.gateway,
		Cache:    f.cache,
		CacheTTL: time.Minute,
		Hub:      f.hub,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.svc = services.Account
	return f
}

func loja(n int) *domain.Account {
	suffix := string(rune('0' + n))
	return &domain.Account{
		Numero:    "551190000000" + suffix,
		RemoteJID: "551190000000" + suffix + "@s.whatsapp.net",
		Descricao: "Loja " + suffix,
		Instancia: "loja" + suffix,
	}
}

func TestListEnrichesWithStatus(t *testing.T) {
	f := newAccountFixture(t, loja(1), loja(2), loja(3), loja(4), loja(5))
	f.gateway.statuses["loja2"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}
	f.gateway.statuses["loja3"] = domain.InstanceStatus{Status: domain.StatusConnecting}

	accounts, err := f.svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 5 {
		t.Fatalf("got %d accounts", len(accounts))
	}
	want := []string{domain.StatusDisconnected, domain.StatusConnected, domain.StatusConnecting, domain.StatusDisconnected, domain.StatusDisconnected}
	for i, a := range accounts {
		if a.Status != want[i] {
			t.Errorf("%s status = %q, want %q", a.Instancia, a.Status, want[i])
		}
	}
	if !accounts[1].Connected {
		t.Error("connected account not flagged")
	}
}

func TestListUsesStatusCache(t *testing.T) {
	f := newAccountFixture(t, loja(1))
	f.gateway.statuses["loja1"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}

	for i := 0; i < 3; i++ {
		if _, err := f.svc.List(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.gateway.count("status loja1"); n != 1 {
		t.Errorf("gateway queried %d times, want 1", n)
	}
	if f.cache.ttl != time.Minute {
		t.Errorf("cache ttl = %v", f.cache.ttl)
	}
}

func TestActionsDropCachedStatus(t *testing.T) {
	ctx := context.Background()
	actions := map[string]func(svc *AccountService, id int64) error{
		"restart": func(svc *AccountService, id int64) error { return svc.Restart(ctx, id) },
		"logout":  func(svc *AccountService, id int64) error { return svc.Logout(ctx, id) },
		"delete":  func(svc *AccountService, id int64) error { return svc.Delete(ctx, id, false) },
	}
	for name, action := range actions {
		t.Run(name, func(t *testing.T) {
			f := newAccountFixture(t, loja(1))
			f.gateway.statuses["loja1"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}
			if _, err := f.svc.List(ctx); err != nil {
				t.Fatal(err)
			}
			if data, _ := f.cache.Get(ctx, "instance_status:loja1"); data == nil {
				t.Fatal("status was not cached")
			}

			accounts, _ := f.store.List(ctx)
			if err := action(f.svc, accounts[0].ID); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if data, _ := f.cache.Get(ctx, "instance_status:loja1"); data != nil {
				t.Errorf("cached status survived %s: %s", name, data)
			}
		})
	}
}

func TestCreateValidates(t *testing.T) {
	f := newAccountFixture(t)
	_, err := f.svc.Create(context.Background(), AccountInput{Numero: "5511", RemoteJID: "x", Descricao: "  ", Instancia: "i"})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Message != MsgAllFieldsRequired {
		t.Fatalf("error = %v", err)
	}
	if rows, _ := f.store.List(context.Background()); len(rows) != 0 {
		t.Error("invalid account was stored")
	}
}

func TestCreate(t *testing.T) {
	f := newAccountFixture(t)
	f.gateway.actionErr = errors.New("instance already exists")
	blank := "  "

	a, err := f.svc.Create(context.Background(), AccountInput{
		Numero:         " 5511900000001 ",
		RemoteJID:      "5511900000001@s.whatsapp.net",
		Descricao:      "Loja Centro",
		Instancia:      "centro",
		LinkPlanilha:   &blank,
		CreateInstance: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == 0 || a.Numero != "5511900000001" || a.LinkPlanilha != nil {
		t.Errorf("account = %+v", a)
	}
	if a.Status != domain.StatusDisconnected {
		t.Errorf("status = %q", a.Status)
	}
	if f.gateway.count("create centro") != 1 {
		t.Error("gateway instance was not requested")
	}
}

func TestUpdate(t *testing.T) {
	f := newAccountFixture(t, loja(1))
	link := "https://docs.example.com/planilha"

	a, err := f.svc.Update(context.Background(), 1, AccountInput{Descricao: "Nova", LinkPlanilha: &link})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.Descricao != "Nova" || a.LinkPlanilha == nil || *a.LinkPlanilha != link {
		t.Errorf("account = %+v", a)
	}

	var verr *domain.ValidationError
	if _, err := f.svc.Update(context.Background(), 1, AccountInput{}); !errors.As(err, &verr) || verr.Message != MsgDescriptionRequired {
		t.Errorf("empty descricao error = %v", err)
	}
	if _, err := f.svc.Update(context.Background(), 99, AccountInput{Descricao: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing account error = %v", err)
	}
}

func TestDelete(t *testing.T) {
	f := newAccountFixture(t, loja(1), loja(2))
	ctx := context.Background()

	if err := f.svc.Delete(ctx, 1, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.gateway.count("delete loja1") != 0 {
		t.Error("instance deleted without being asked")
	}
	if err := f.svc.Delete(ctx, 2, true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.gateway.count("delete loja2") != 1 {
		t.Error("instance not deleted")
	}
	if err := f.svc.Delete(ctx, 1, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestStatusBroadcastsQRCode(t *testing.T) {
	f := newAccountFixture(t, loja(1))
	f.gateway.qr["loja1"] = "QUFB"

	a, st, err := f.svc.Status(context.Background(), 1)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.QRCode != "QUFB" || a.Status != domain.StatusDisconnected {
		t.Errorf("status = %+v, account = %+v", st, a)
	}
	if events := f.hub.named(ws.EventQRCode); len(events) != 1 {
		t.Fatalf("got %d qr events", len(events))
	}
	if cached := string(f.cache.data[statusCachePrefix+"loja1"]); strings.Contains(cached, "QUFB") {
		t.Errorf("QR code leaked into the status cache: %s", cached)
	}

	if _, _, err := f.svc.Status(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing account error = %v", err)
	}
}

func TestStatusConnectedHasNoQRCode(t *testing.T) {
	f := newAccountFixture(t, loja(1))
	f.gateway.statuses["loja1"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}
	f.gateway.qr["loja1"] = "QUFB"

	_, st, err := f.svc.Status(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if st.QRCode != "" || len(f.hub.named(ws.EventQRCode)) != 0 {
		t.Errorf("connected instance produced a QR code: %+v", st)
	}
}

func TestRestartAndLogoutWrapGatewayErrors(t *testing.T) {
	f := newAccountFixture(t, loja(1))
	ctx := context.Background()

	if err := f.svc.Restart(ctx, 1); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if err := f.svc.Logout(ctx, 1); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	f.gateway.actionErr = errors.New("503 Service Unavailable")
	if err := f.svc.Restart(ctx, 1); !errors.Is(err, ErrGateway) {
		t.Errorf("Restart error = %v", err)
	}
	if err := f.svc.Logout(ctx, 1); !errors.Is(err, ErrGateway) {
		t.Errorf("Logout error = %v", err)
	}
}

func TestRefreshStatusesBroadcastsEveryAccount(t *testing.T) {
	f := newAccountFixture(t, loja(1), loja(2))
	f.gateway.statuses["loja2"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}

	if err := f.svc.RefreshStatuses(context.Background()); err != nil {
		t.Fatalf("RefreshStatuses: %v", err)
	}
	if events := f.hub.named(ws.EventInstanceStatus); len(events) != 2 {
		t.Fatalf("got %d status events, want 2", len(events))
	}
	if _, ok := f.cache.data[statusCachePrefix+"loja2"]; !ok {
		t.Error("refresh did not populate the cache")
	}
}

func TestDebugEndpoints(t *testing.T) {
	f := newAccountFixture(t)
	f.gateway.statuses["loja1"] = domain.InstanceStatus{Status: domain.StatusConnected, Connected: true}

	debug, err := f.svc.DebugStatus(context.Background(), "loja1")
	if err != nil {
		t.Fatalf("DebugStatus: %v", err)
	}
	if debug["raw_state"] != "open" || debug["connected"] != true {
		t.Errorf("debug = %v", debug)
	}

	if _, err := f.svc.DebugQR(context.Background(), "loja1"); !errors.Is(err, ErrQRUnavailable) {
		t.Errorf("DebugQR error = %v", err)
	}
	f.gateway.qr["loja1"] = "QUFB"
	if qr, err := f.svc.DebugQR(context.Background(), "loja1"); err != nil || qr != "QUFB" {
		t.Errorf("DebugQR = %q, %v", qr, err)
	}
}
