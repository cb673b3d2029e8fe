package schema

import (
	"net/url"
	"sort"
	"strings"

	"frameforge/internal/domain"
	"frameforge/internal/events"
)

// DefaultWebhookPrefix is the URL prefix every Discord webhook shares.
const DefaultWebhookPrefix = "https://discord.com/api/webhooks/"

// WebhookConfig checks a session webhook configuration. An empty prefixes
// list accepts any http(s) URL.
func WebhookConfig(cfg domain.WebhookConfig, prefixes []string) error {
	c := &collector{kind: KindWebhookConfig}
	raw := strings.TrimSpace(cfg.URL)
	switch {
	case raw == "" && cfg.Enabled:
		c.add("url", "is required when enabled")
	case raw != "":
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.add("url", "must be an absolute http(s) URL")
		} else if len(prefixes) > 0 && !hasAnyPrefix(raw, prefixes) {
			c.add("url", "must start with one of %s", strings.Join(prefixes, ", "))
		}
	}
	keys := make([]string, 0, len(cfg.Events))
	for k := range cfg.Events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !events.Type(k).Valid() {
			c.add(join("events", k), "unknown event type")
		}
	}
	return c.err()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
