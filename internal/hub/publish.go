package hub

import (
	"context"

	"github.com/cnquant/stockpulse/internal/models"
)

// PublishStrategyPrices pushes the current signal set for one strategy
// to its subscribers as a batched price_update.
func (h *Hub) PublishStrategyPrices(ctx context.Context, strategy string) error {
	targets := h.subscribers(models.SubKindStrategy, strategy)
	watchers := h.marketSubscribers()
	if len(targets) == 0 && len(watchers) == 0 {
		return nil
	}

	signals, err := h.strategy.SignalsFor(ctx, strategy)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		return nil
	}

	ts := h.timestamp()
	points := make([]models.PricePoint, 0, len(signals))
	for _, sig := range signals {
		points = append(points, models.PricePoint{
			Code:          sig.Code,
			Name:          sig.Name,
			Price:         h.jitter(sig.Price),
			Change:        sig.Price * sig.ChangePercent / 100,
			ChangePercent: sig.ChangePercent,
			Volume:        sig.Volume,
			Timestamp:     ts,
		})
	}
	msg := models.WSPriceUpdate{
		Type:      models.WSTypePriceUpdate,
		Data:      points,
		Count:     len(points),
		Timestamp: ts,
	}
	for _, c := range dedupe(targets, watchers) {
		h.send(c, msg)
	}
	return nil
}

// PublishStockPrices pushes quotes for the given codes. Each client gets
// one merged message covering every code it subscribes to.
func (h *Hub) PublishStockPrices(ctx context.Context, codes []string) error {
	watchers := h.marketSubscribers()
	perClient := map[string][]models.PricePoint{}
	byID := map[string]*client{}
	ts := h.timestamp()

	for _, code := range codes {
		subs := h.subscribers(models.SubKindStock, code)
		if len(subs) == 0 && len(watchers) == 0 {
			continue
		}
		quote, err := h.realtime.SnapshotOne(ctx, code)
		if err != nil {
			h.logger.Debug().Err(err).Str("code", code).Msg("No quote for subscribed code")
			continue
		}
		point := models.PricePoint{
			Code:          quote.Code,
			Name:          quote.Name,
			Price:         h.jitter(quote.Price),
			Change:        quote.Change,
			ChangePercent: quote.ChangePercent,
			Volume:        quote.Volume,
			Timestamp:     ts,
		}
		for _, c := range dedupe(subs, watchers) {
			perClient[c.id] = append(perClient[c.id], point)
			byID[c.id] = c
		}
	}

	for id, points := range perClient {
		h.send(byID[id], models.WSPriceUpdate{
			Type:      models.WSTypePriceUpdate,
			Data:      points,
			Count:     len(points),
			Timestamp: ts,
		})
	}
	return nil
}

// BroadcastAllActive publishes every strategy and stock target that has
// at least one subscriber.
func (h *Hub) BroadcastAllActive(ctx context.Context) {
	for _, strategy := range h.activeTargets(models.SubKindStrategy) {
		if err := h.PublishStrategyPrices(ctx, strategy); err != nil {
			h.logger.Debug().Err(err).Str("strategy", strategy).Msg("Strategy publish failed")
		}
	}
	if codes := h.activeTargets(models.SubKindStock); len(codes) > 0 {
		if err := h.PublishStockPrices(ctx, codes); err != nil {
			h.logger.Debug().Err(err).Msg("Stock publish failed")
		}
	}
}

// PublishSignalUpdate pushes a signal set delta to every strategy and
// market subscriber.
func (h *Hub) PublishSignalUpdate(action string, signals []models.Signal) {
	if len(signals) == 0 {
		return
	}
	byStrategy := map[string][]models.Signal{}
	for _, sig := range signals {
		byStrategy[sig.Strategy] = append(byStrategy[sig.Strategy], sig)
	}
	watchers := h.marketSubscribers()

	for strategy, group := range byStrategy {
		msg := models.WSSignalUpdate{
			Type:      models.WSTypeSignalUpdate,
			Action:    action,
			Data:      group,
			Count:     len(group),
			Timestamp: h.timestamp(),
		}
		for _, c := range dedupe(h.subscribers(models.SubKindStrategy, strategy), watchers) {
			h.send(c, msg)
		}
	}
}

// marketSubscribers returns every client holding a market-kind
// subscription, regardless of target.
func (h *Hub) marketSubscribers() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[string]*client{}
	for key, set := range h.subsByKey {
		if key.kind != models.SubKindMarket {
			continue
		}
		for id, c := range set {
			seen[id] = c
		}
	}
	out := make([]*client, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}

// jitter applies the test-mode random walk to a published price. The
// stored quote is never modified.
func (h *Hub) jitter(price float64) float64 {
	if !h.testMode {
		return price
	}
	h.randMu.Lock()
	defer h.randMu.Unlock()
	delta := 0.20 + h.rand.Float64()*0.49
	if h.rand.Intn(2) == 0 {
		delta = -delta
	}
	return price + delta
}

func dedupe(groups ...[]*client) []*client {
	seen := map[string]*client{}
	for _, group := range groups {
		for _, c := range group {
			seen[c.id] = c
		}
	}
	out := make([]*client, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	return out
}
