package evolution

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

// SentinelState is reported when no strategy could read the instance state.
const SentinelState = "close"

// Response shapes seen from the instance endpoints across Evolution versions.
type shapeKind int

const (
	shapeUnknown shapeKind = iota
	shapeList              // [ {...}, {...} ] or {"instances": [ ... ]}
	shapeMap               // {"<instance name>": {...}}
	shapeSingle            // {"instance": {...}} or a bare instance object
)

var (
	nameKeys  = []string{"instanceName", "name"}
	stateKeys = []string{"state", "connectionStatus", "status"}
	listKeys  = []string{"instances", "data", "response"}

	// keys that mark a bare object as one instance rather than a map of instances
	instanceKeys = []string{"instanceName", "name", "state", "connectionStatus"}
)

type instanceEntry struct {
	key    string
	fields map[string]interface{}
}

type instancesResponse struct {
	kind    shapeKind
	entries []instanceEntry
}

func classify(body interface{}) instancesResponse {
	switch t := body.(type) {
	case []interface{}:
		return instancesResponse{kind: shapeList, entries: entriesFromList(t)}
	case map[string]interface{}:
		for _, key := range listKeys {
			if list, ok := t[key].([]interface{}); ok {
				return instancesResponse{kind: shapeList, entries: entriesFromList(list)}
			}
		}
		if looksLikeInstance(t) {
			return instancesResponse{kind: shapeSingle, entries: []instanceEntry{{fields: t}}}
		}
		entries := make([]instanceEntry, 0, len(t))
		for key, v := range t {
			if m, ok := v.(map[string]interface{}); ok {
				entries = append(entries, instanceEntry{key: key, fields: m})
			}
		}
		if len(entries) > 0 {
			return instancesResponse{kind: shapeMap, entries: entries}
		}
	}
	return instancesResponse{kind: shapeUnknown}
}

func entriesFromList(list []interface{}) []instanceEntry {
	entries := make([]instanceEntry, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			entries = append(entries, instanceEntry{fields: m})
		}
	}
	return entries
}

func looksLikeInstance(m map[string]interface{}) bool {
	if _, ok := m["instance"].(map[string]interface{}); ok {
		return true
	}
	for _, key := range instanceKeys {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

// pick reads the first non-empty key, looking at the entry itself and then at its "instance" sub-object.
func (e instanceEntry) pick(keys []string) string {
	if v := pickString(e.fields, keys...); v != "" {
		return v
	}
	if inner, ok := e.fields["instance"].(map[string]interface{}); ok {
		return pickString(inner, keys...)
	}
	return ""
}

func (e instanceEntry) name() string {
	if n := e.pick(nameKeys); n != "" {
		return n
	}
	return e.key
}

func (e instanceEntry) state() string {
	return e.pick(stateKeys)
}

// stateResolver is one step of the ordered status lookup.
type stateResolver func(ctx context.Context, name string) (string, bool)

// ConnectionState returns the raw upstream state for an instance, SentinelState when unresolved.
func (c *Client) ConnectionState(ctx context.Context, name string) string {
	for _, resolve := range []stateResolver{c.stateFromInstanceList, c.stateFromSingleInstance} {
		if state, ok := resolve(ctx, name); ok {
			return state
		}
	}
	return SentinelState
}

func (c *Client) stateFromInstanceList(ctx context.Context, name string) (string, bool) {
	body, err := c.requestJSON(ctx, http.MethodGet, "/instance/fetchInstances", nil)
	if err != nil {
		log.Component("evolution").WithField("instance", name).Warnf("fetchInstances failed: %v", err)
		return "", false
	}
	return matchState(classify(body), name, false)
}

func (c *Client) stateFromSingleInstance(ctx context.Context, name string) (string, bool) {
	body, err := c.requestJSON(ctx, http.MethodGet, "/instance/connectionState/"+url.PathEscape(name), nil)
	if err != nil {
		log.Component("evolution").WithField("instance", name).Warnf("connectionState failed: %v", err)
		return "", false
	}
	return matchState(classify(body), name, true)
}

// matchState finds the entry for name. A single-instance response may omit the name.
func matchState(resp instancesResponse, name string, allowUnnamed bool) (string, bool) {
	for _, entry := range resp.entries {
		entryName := entry.name()
		if entryName != name && !(allowUnnamed && resp.kind == shapeSingle && entryName == "") {
			continue
		}
		if state := entry.state(); state != "" {
			return state, true
		}
	}
	return "", false
}

// DisplayStatus collapses an upstream state into connected, connecting or disconnected.
func DisplayStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "connected":
		return domain.StatusConnected
	case "connecting":
		return domain.StatusConnecting
	default:
		return domain.StatusDisconnected
	}
}

func pickString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := anyToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func anyToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", t))
	case map[string]interface{}, []interface{}:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
