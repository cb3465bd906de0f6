package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/linechat/internal/logging"
)

// originPolicy decides which browser origins may open a WebSocket.
type originPolicy struct {
	allowed  map[string]struct{}
	allowAll bool
	log      logging.Logger
}

func newOriginPolicy(origins []string, log logging.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}

		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn(context.Background(), "ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}

	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}

	_, exists := p.allowed[normalized]
	return exists
}

// check is used as the upgrader's CheckOrigin.
func (p *originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if p.allows(origin) {
		return true
	}

	p.log.Warn(r.Context(), "blocked websocket connection from disallowed origin", "origin", origin)
	return false
}
