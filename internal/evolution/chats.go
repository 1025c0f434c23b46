package evolution

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"go.mau.fi/whatsmeow/types"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	// DisplayTimeLayout is how timestamps are shown to the operator.
	DisplayTimeLayout = "02/01/2006 15:04"
	// MaxSummaryLength is counted in grapheme clusters.
	MaxSummaryLength = 500
)

var (
	contactListKeys = []string{"contacts", "chats", "data", "response"}
	contactJIDKeys  = []string{"remoteJid", "id", "jid"}
	contactNameKeys = []string{"pushName", "name", "verifiedName"}
	contactTSKeys   = []string{"updatedAt", "lastMsgTimestamp", "messageTimestamp"}
)

type contactSource struct {
	method  string
	path    string
	payload interface{}
}

// FindContacts lists the direct chats of an instance, most recent first.
// The first endpoint yielding a non-empty list wins.
func (c *Client) FindContacts(ctx context.Context, instance string) ([]domain.Contact, error) {
	name := url.PathEscape(instance)
	sources := []contactSource{
		{http.MethodPost, "/chat/findContacts/" + name, map[string]interface{}{"where": map[string]interface{}{}}},
		{http.MethodPost, "/chat/findChats/" + name, map[string]interface{}{}},
		{http.MethodGet, "/chat/findContacts/" + name, nil},
	}

	var lastErr error
	for _, src := range sources {
		body, err := c.requestJSON(ctx, src.method, src.path, src.payload)
		if err != nil {
			log.Component("evolution").WithField("instance", instance).Debugf("%s %s failed: %v", src.method, src.path, err)
			lastErr = err
			continue
		}
		contacts := contactsFromBody(body)
		if len(contacts) > 0 {
			return contacts, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("find contacts for %s: %w", instance, lastErr)
	}
	return []domain.Contact{}, nil
}

func contactsFromBody(body interface{}) []domain.Contact {
	var list []interface{}
	switch t := body.(type) {
	case []interface{}:
		list = t
	case map[string]interface{}:
		for _, key := range contactListKeys {
			if l, ok := t[key].([]interface{}); ok {
				list = l
				break
			}
		}
	}

	seen := make(map[string]int, len(list))
	contacts := make([]domain.Contact, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		jid := pickString(m, contactJIDKeys...)
		if !IsDirectChat(jid) {
			continue
		}
		ts := ParseTimestamp(pickRaw(m, contactTSKeys...))
		if idx, dup := seen[jid]; dup {
			if ts > contacts[idx].Timestamp {
				contacts[idx].Timestamp = ts
				contacts[idx].LastActivity = FormatTimestamp(ts)
			}
			continue
		}
		seen[jid] = len(contacts)
		contacts = append(contacts, NewContact(jid, pickString(m, contactNameKeys...), ts))
	}
	SortContacts(contacts)
	return contacts
}

// NewContact builds a display contact, naming it after the JID user part when no name is known.
func NewContact(jid, name string, ts int64) domain.Contact {
	if name == "" {
		name = jidUser(jid)
	}
	return domain.Contact{
		RemoteJID:    jid,
		Name:         name,
		LastActivity: FormatTimestamp(ts),
		Timestamp:    ts,
	}
}

// SortContacts orders by most recent activity, ties by JID.
func SortContacts(contacts []domain.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].Timestamp != contacts[j].Timestamp {
			return contacts[i].Timestamp > contacts[j].Timestamp
		}
		return contacts[i].RemoteJID < contacts[j].RemoteJID
	})
}

// FindMessages returns up to limit messages of one chat, newest first.
func (c *Client) FindMessages(ctx context.Context, instance, remoteJID string, limit int) ([]domain.Message, error) {
	payload := map[string]interface{}{
		"where": map[string]interface{}{
			"key": map[string]interface{}{"remoteJid": remoteJID},
		},
	}
	body, err := c.requestJSON(ctx, http.MethodPost, "/chat/findMessages/"+url.PathEscape(instance), payload)
	if err != nil {
		return nil, fmt.Errorf("find messages for %s: %w", instance, err)
	}

	records := messageRecords(body)
	messages := make([]domain.Message, 0, len(records))
	for _, item := range records {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		key, _ := m["key"].(map[string]interface{})
		id := pickString(m, "id")
		jid := remoteJID
		fromMe := false
		if key != nil {
			if v := pickString(key, "id"); v != "" {
				id = v
			}
			if v := pickString(key, "remoteJid"); v != "" {
				jid = v
			}
			fromMe, _ = key["fromMe"].(bool)
		}
		content, _ := m["message"].(map[string]interface{})
		messages = append(messages, NewMessage(id, jid, fromMe, content, ParseTimestamp(m["messageTimestamp"])))
	}

	SortMessages(messages)
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// messageRecords accepts a bare list, {"messages": [...]} or {"messages": {"records": [...]}}.
func messageRecords(body interface{}) []interface{} {
	switch t := body.(type) {
	case []interface{}:
		return t
	case map[string]interface{}:
		switch msgs := t["messages"].(type) {
		case []interface{}:
			return msgs
		case map[string]interface{}:
			if records, ok := msgs["records"].([]interface{}); ok {
				return records
			}
		}
	}
	return nil
}

// NewMessage builds a display message from the raw WhatsApp message object.
func NewMessage(id, jid string, fromMe bool, content map[string]interface{}, ts int64) domain.Message {
	return domain.Message{
		ID:        id,
		RemoteJID: jid,
		FromMe:    fromMe,
		Content:   SummarizeMessage(content),
		Timestamp: FormatTimestamp(ts),
		Unix:      ts,
	}
}

// SortMessages orders newest first.
func SortMessages(messages []domain.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Unix > messages[j].Unix
	})
}

// SummarizeMessage renders the message union as one display line.
func SummarizeMessage(content map[string]interface{}) string {
	var summary string
	switch {
	case content == nil:
		summary = "[Mensagem não suportada]"
	case pickString(content, "conversation") != "":
		summary = pickString(content, "conversation")
	case sub(content, "extendedTextMessage") != nil && pickString(sub(content, "extendedTextMessage"), "text") != "":
		summary = pickString(sub(content, "extendedTextMessage"), "text")
	case sub(content, "imageMessage") != nil:
		summary = withDetail("📷 Imagem", pickString(sub(content, "imageMessage"), "caption"))
	case sub(content, "videoMessage") != nil:
		summary = withDetail("🎥 Vídeo", pickString(sub(content, "videoMessage"), "caption"))
	case sub(content, "documentMessage") != nil:
		summary = withDetail("📄 Documento", pickString(sub(content, "documentMessage"), "fileName"))
	case sub(content, "audioMessage") != nil:
		summary = "🎵 Áudio"
	case sub(content, "stickerMessage") != nil:
		summary = "🖼️ Figurinha"
	default:
		summary = "[Mensagem não suportada]"
	}
	return truncate(summary, MaxSummaryLength)
}

func sub(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

func withDetail(label, detail string) string {
	if detail == "" {
		return label
	}
	return label + ": " + detail
}

// IsDirectChat reports whether jid addresses a person, excluding groups and broadcast lists.
func IsDirectChat(jid string) bool {
	if jid == "" {
		return false
	}
	parsed, err := types.ParseJID(jid)
	if err != nil || parsed.User == "" {
		return false
	}
	switch parsed.Server {
	case types.GroupServer, types.BroadcastServer, types.NewsletterServer:
		return false
	}
	return true
}

func jidUser(jid string) string {
	if parsed, err := types.ParseJID(jid); err == nil && parsed.User != "" {
		return parsed.User
	}
	return jid
}

// ParseTimestamp reads unix seconds, unix milliseconds, numeric strings or RFC3339.
// Unknown values yield 0.
func ParseTimestamp(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return normalizeUnix(int64(t))
	case int64:
		return normalizeUnix(t)
	case int:
		return normalizeUnix(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return normalizeUnix(n)
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed.Unix()
		}
	case map[string]interface{}:
		// protobuf Long encoding: {"low": n, "high": 0, "unsigned": false}
		return ParseTimestamp(t["low"])
	}
	return 0
}

// values past year 2286 in seconds are taken as milliseconds
func normalizeUnix(n int64) int64 {
	if n > 9_999_999_999 {
		return n / 1000
	}
	return n
}

// FormatTimestamp renders unix seconds in local time, "" for zero.
func FormatTimestamp(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).Local().Format(DisplayTimeLayout)
}

// pickRaw returns the first present, non-nil value.
func pickRaw(m map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// truncate cuts s to n grapheme clusters, appending an ellipsis when shortened.
func truncate(s string, n int) string {
	if uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}
