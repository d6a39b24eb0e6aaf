package hub

import (
	"github.com/cnquant/stockpulse/internal/common"
	"github.com/cnquant/stockpulse/internal/models"
)

// validKind reports whether a subscription kind is part of the protocol.
// Targets are deliberately not validated: a client may subscribe to a
// strategy or code before the server has data for it.
func validKind(kind string) bool {
	switch kind {
	case models.SubKindStrategy, models.SubKindStock, models.SubKindMarket:
		return true
	}
	return false
}

// subscribe adds (kind, target) for a client.
func (h *Hub) subscribe(c *client, kind, target string) error {
	if !validKind(kind) {
		return common.NewError(common.KindBadInput, "unknown subscription type %q", kind)
	}
	key := subKey{kind: kind, target: target}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.id] != c {
		return common.NewError(common.KindBadInput, "client %s not connected", c.id)
	}
	if h.subsByKey[key] == nil {
		h.subsByKey[key] = map[string]*client{}
	}
	h.subsByKey[key][c.id] = c
	if h.subsByClient[c.id] == nil {
		h.subsByClient[c.id] = map[subKey]struct{}{}
	}
	h.subsByClient[c.id][key] = struct{}{}
	return nil
}

// unsubscribe removes (kind, target) for a client. Unsubscribing from a
// target that was never subscribed is a no-op.
func (h *Hub) unsubscribe(c *client, kind, target string) error {
	if !validKind(kind) {
		return common.NewError(common.KindBadInput, "unknown subscription type %q", kind)
	}
	key := subKey{kind: kind, target: target}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.subsByKey[key]; set != nil {
		delete(set, c.id)
		if len(set) == 0 {
			delete(h.subsByKey, key)
		}
	}
	delete(h.subsByClient[c.id], key)
	return nil
}

// subscribers returns the clients subscribed to (kind, target).
func (h *Hub) subscribers(kind, target string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subsByKey[subKey{kind: kind, target: target}]
	out := make([]*client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// activeTargets returns every target of the given kind with at least one
// subscriber.
func (h *Hub) activeTargets(kind string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for key, set := range h.subsByKey {
		if key.kind == kind && len(set) > 0 {
			out = append(out, key.target)
		}
	}
	return out
}

// subscriptionList returns a client's subscriptions as kind:target pairs,
// for the status surface.
func (h *Hub) subscriptionList(id string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for key := range h.subsByClient[id] {
		out = append(out, key.kind+":"+key.target)
	}
	return out
}
