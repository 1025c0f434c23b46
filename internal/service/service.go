package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/repository"
)

// AccountStore persists sending accounts.
type AccountStore interface {
	List(ctx context.Context) ([]*domain.Account, error)
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, id int64, descricao string, linkPlanilha *string) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Gateway is the Evolution API surface used by the services.
type Gateway interface {
	Status(ctx context.Context, name string) domain.InstanceStatus
	InstanceStatus(ctx context.Context, name string) domain.InstanceStatus
	ConnectionState(ctx context.Context, name string) string
	QRCode(ctx context.Context, name string) (string, bool)
	CreateInstance(ctx context.Context, name, number string) error
	RestartInstance(ctx context.Context, name string) error
	LogoutInstance(ctx context.Context, name string) error
	DeleteInstance(ctx context.Context, name string) error
	RawInstances(ctx context.Context) (interface{}, error)
	FindContacts(ctx context.Context, instance string) ([]domain.Contact, error)
	FindMessages(ctx context.Context, instance, remoteJID string, limit int) ([]domain.Message, error)
}

// ChatStore reads chats straight from the gateway database.
type ChatStore interface {
	Contacts(ctx context.Context, instance string, limit int) ([]repository.GatewayContactRow, error)
	Messages(ctx context.Context, instance, remoteJID string, limit int) ([]repository.GatewayMessage, error)
}

// StatusCache holds short-lived instance status snapshots.
type StatusCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// WebhookSender delivers a dispatch payload.
type WebhookSender interface {
	Submit(ctx context.Context, payload *domain.DispatchPayload) (int, error)
}

// Broadcaster pushes realtime events to connected operators.
type Broadcaster interface {
	Broadcast(event string, data interface{})
}

// Deps wires the services. ChatStore, Cache and Hub are optional.
type Deps struct {
	Accounts    AccountStore
	Gateway     Gateway
	ChatStore   ChatStore
	Cache       StatusCache
	Hub         Broadcaster
	Webhook     WebhookSender
	Attacher    MediaAttacher
	CacheTTL    time.Duration
	DemoMode    bool
	Credentials Credentials
	JWTSecret   string
}

type Services struct {
	Auth     *AuthService
	Account  *AccountService
	Chat     *ChatService
	Dispatch *DispatchService
}

func NewServices(deps Deps) (*Services, error) {
	auth, err := NewAuthService(deps.Credentials, deps.JWTSecret)
	if err != nil {
		return nil, err
	}
	hub := deps.Hub
	if hub == nil {
		hub = noopBroadcaster{}
	}
	accounts := &AccountService{
		store:    deps.Accounts,
		gateway:  deps.Gateway,
		cache:    deps.Cache,
		cacheTTL: deps.CacheTTL,
		hub:      hub,
	}
	return &Services{
		Auth:    auth,
		Account: accounts,
		Chat: &ChatService{
			accounts: deps.Accounts,
			gateway:  deps.Gateway,
			store:    deps.ChatStore,
			demo:     deps.DemoMode,
		},
		Dispatch: &DispatchService{
			accounts: deps.Accounts,
			attacher: deps.Attacher,
			webhook:  deps.Webhook,
			hub:      hub,
		},
	}, nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, interface{}) {}

// --- Auth ---

var ErrInvalidCredentials = errors.New("Credenciais inválidas")

// Credentials is the single operator login.
type Credentials struct {
	Username string
	Password string
}

// AuthService checks the operator login and issues session tokens
type AuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
}

type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// NewAuthService hashes the configured password once. Empty credentials disable login entirely.
func NewAuthService(creds Credentials, jwtSecret string) (*AuthService, error) {
	s := &AuthService{username: creds.Username, jwtSecret: []byte(jwtSecret)}
	if creds.Username == "" || creds.Password == "" {
		return s, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash login password: %w", err)
	}
	s.passwordHash = hash
	return s, nil
}

func (s *AuthService) Login(username, password string) (string, error) {
	if s.passwordHash == nil {
		return "", ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", ErrInvalidCredentials
	}

	claims := &JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * 7 * time.Hour)), // 7 days
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "enviomkt",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (s *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
