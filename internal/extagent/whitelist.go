package extagent

import (
	"context"
	"net/url"
	"strings"

	"github.com/cdprelay/relay/internal/logging"
)

// matchesWhitelist reports whether host matches a configured entry either
// exactly or as a dotted suffix, per §4.7's whitelist auto-attach rule.
func (a *Agent) matchesWhitelist(host string) bool {
	for _, entry := range a.whitelist {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// maybeAutoAttach is invoked for every observed Target.targetCreated /
// Target.targetInfoChanged event; it attaches pages whose URL host
// matches the whitelist and that are neither already attached nor
// pending an explicit openAndAttach. Purely a convenience policy — core
// semantics never depend on it.
func (a *Agent) maybeAutoAttach(targetID, rawURL, targetType string) {
	if len(a.whitelist) == 0 || targetType != "page" {
		return
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return
	}
	if _, ok := a.sessions.ByTargetID(targetID); ok {
		return
	}

	a.mu.Lock()
	pending := a.pendingOpen[targetID]
	a.mu.Unlock()
	if pending {
		return
	}

	u, err := url.Parse(rawURL)
	if err != nil || !a.matchesWhitelist(u.Hostname()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ForwardTimeout)
	defer cancel()
	if _, err := a.attachTarget(ctx, targetID, false); err != nil {
		logging.Debugf("extagent: whitelist auto-attach of %s failed: %v", targetID, err)
	}
}
