package evolution

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/viniciusxv27/enviomkt/pkg/log"
)

// Candidate keys holding a QR value, in priority order.
var qrKeys = []string{"qrcode", "base64", "qr"}

// Baileys pairing references look like "2@AbC...,key,key".
var pairingCodePattern = regexp.MustCompile(`^\d@`)

// QRCode returns the base64 PNG of the pairing QR. ok is false when none is available yet,
// which is a normal state while an instance is pairing.
func (c *Client) QRCode(ctx context.Context, name string) (string, bool) {
	sources := []string{
		"/instance/connect/" + url.PathEscape(name),
		"/instance/fetchInstances?instanceName=" + url.QueryEscape(name),
	}
	for _, path := range sources {
		body, err := c.requestJSON(ctx, http.MethodGet, path, nil)
		if err != nil {
			log.Component("evolution").WithField("instance", name).Debugf("qr lookup %s failed: %v", path, err)
			continue
		}
		if qr, ok := findQR(body); ok {
			return qr, true
		}
	}
	return "", false
}

// findQR scans a decoded body for the first QR candidate key.
func findQR(node interface{}) (string, bool) {
	switch t := node.(type) {
	case map[string]interface{}:
		for _, key := range qrKeys {
			v, ok := t[key]
			if !ok {
				continue
			}
			if qr := normalizeQR(qrValue(v)); qr != "" {
				return qr, true
			}
		}
		if inner, ok := t["instance"].(map[string]interface{}); ok {
			return findQR(inner)
		}
	case []interface{}:
		for _, item := range t {
			if qr, ok := findQR(item); ok {
				return qr, true
			}
		}
	}
	return "", false
}

// qrValue accepts a plain string or an object such as {"base64": "...", "code": "..."}.
func qrValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		return pickString(t, "base64", "code")
	}
	return ""
}

// normalizeQR strips a data URL prefix and renders raw pairing references to a PNG.
func normalizeQR(v string) string {
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "data:image/") {
		if idx := strings.Index(v, ";base64,"); idx >= 0 {
			return v[idx+len(";base64,"):]
		}
	}
	if pairingCodePattern.MatchString(v) {
		png, err := qrcode.Encode(v, qrcode.Medium, 256)
		if err != nil {
			log.Component("evolution").Warnf("failed to render pairing code: %v", err)
			return v
		}
		return base64.StdEncoding.EncodeToString(png)
	}
	return v
}
