package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/evolution"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 500
	maxContacts         = 1000
)

// Where a chat listing came from
const (
	SourceAPI  = "api"
	SourceDB   = "db"
	SourceDemo = "demo"
)

type ContactList struct {
	Account  *domain.Account  `json:"account"`
	Contacts []domain.Contact `json:"contacts"`
	Source   string           `json:"source"`
}

type MessageList struct {
	Account   *domain.Account  `json:"account"`
	RemoteJID string           `json:"remote_jid"`
	Messages  []domain.Message `json:"messages"`
	Source    string           `json:"source"`
}

// ChatService proxies read-only chat views of an account's instance
type ChatService struct {
	accounts AccountStore
	gateway  Gateway
	store    ChatStore
	demo     bool
}

// Contacts lists direct chats of the account's instance. Upstream failures degrade to an empty list.
func (s *ChatService) Contacts(ctx context.Context, accountID int64) (*ContactList, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := &ContactList{Account: a, Contacts: []domain.Contact{}, Source: s.source()}
	if s.store != nil {
		out.Contacts = s.contactsFromDB(ctx, a.Instancia)
	} else {
		contacts, err := s.gateway.FindContacts(ctx, a.Instancia)
		if err != nil {
			log.Component("chats").WithField("instance", a.Instancia).Warnf("contacts unavailable: %v", err)
		} else {
			out.Contacts = contacts
		}
	}

	if len(out.Contacts) == 0 && s.demo {
		out.Contacts = demoContacts(time.Now())
		out.Source = SourceDemo
	}
	return out, nil
}

// Messages returns up to limit messages of one chat, newest first.
func (s *ChatService) Messages(ctx context.Context, accountID int64, remoteJID string, limit int) (*MessageList, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	out := &MessageList{Account: a, RemoteJID: remoteJID, Messages: []domain.Message{}, Source: s.source()}
	if s.store != nil {
		out.Messages = s.messagesFromDB(ctx, a.Instancia, remoteJID, limit)
	} else {
		messages, err := s.gateway.FindMessages(ctx, a.Instancia, remoteJID, limit)
		if err != nil {
			log.Component("chats").WithField("instance", a.Instancia).Warnf("messages unavailable: %v", err)
		} else {
			out.Messages = messages
		}
	}

	if len(out.Messages) == 0 && s.demo {
		out.Messages = demoMessages(remoteJID, time.Now())
		out.Source = SourceDemo
	}
	return out, nil
}

func (s *ChatService) account(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *ChatService) source() string {
	if s.store != nil {
		return SourceDB
	}
	return SourceAPI
}

func (s *ChatService) contactsFromDB(ctx context.Context, instance string) []domain.Contact {
	rows, err := s.store.Contacts(ctx, instance, maxContacts)
	if err != nil {
		log.Component("chats").WithField("instance", instance).Warnf("gateway db contacts failed: %v", err)
		return []domain.Contact{}
	}

	contacts := make([]domain.Contact, 0, len(rows))
	for _, row := range rows {
		if !evolution.IsDirectChat(row.RemoteJID) {
			continue
		}
		name := ""
		if row.PushName != nil {
			name = *row.PushName
		}
		if name == "" && row.Name != nil {
			name = *row.Name
		}
		contacts = append(contacts, evolution.NewContact(row.RemoteJID, name, evolution.ParseTimestamp(row.LastMessageAt)))
	}
	evolution.SortContacts(contacts)
	return contacts
}

func (s *ChatService) messagesFromDB(ctx context.Context, instance, remoteJID string, limit int) []domain.Message {
	rows, err := s.store.Messages(ctx, instance, remoteJID, limit)
	if err != nil {
		log.Component("chats").WithField("instance", instance).Warnf("gateway db messages failed: %v", err)
		return []domain.Message{}
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		var content map[string]interface{}
		if len(row.Message) > 0 {
			if err := json.Unmarshal(row.Message, &content); err != nil {
				log.Component("chats").Debugf("message %s has invalid payload: %v", row.ID, err)
			}
		}
		messages = append(messages, evolution.NewMessage(row.ID, row.RemoteJID, row.FromMe, content, evolution.ParseTimestamp(row.MessageTimestamp)))
	}
	evolution.SortMessages(messages)
	return messages
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}

func demoContacts(now time.Time) []domain.Contact {
	return []domain.Contact{
		evolution.NewContact("5511999990001@s.whatsapp.net", "Cliente Exemplo 1", now.Add(-5*time.Minute).Unix()),
		evolution.NewContact("5511999990002@s.whatsapp.net", "Cliente Exemplo 2", now.Add(-2*time.Hour).Unix()),
		evolution.NewContact("5511999990003@s.whatsapp.net", "", now.Add(-26*time.Hour).Unix()),
	}
}

func demoMessages(remoteJID string, now time.Time) []domain.Message {
	return []domain.Message{
		evolution.NewMessage("demo-3", remoteJID, true, map[string]interface{}{"conversation": "Perfeito, obrigado!"}, now.Add(-1*time.Minute).Unix()),
		evolution.NewMessage("demo-2", remoteJID, false, map[string]interface{}{"imageMessage": map[string]interface{}{"caption": "Comprovante"}}, now.Add(-3*time.Minute).Unix()),
		evolution.NewMessage("demo-1", remoteJID, false, map[string]interface{}{"conversation": "Olá, gostaria de saber mais sobre o plano."}, now.Add(-10*time.Minute).Unix()),
	}
}
