package hub

import (
	"encoding/json"

	"github.com/cnquant/stockpulse/internal/models"
)

// handleMessage processes one inbound frame and enqueues the reply.
func (h *Hub) handleMessage(c *client, raw []byte) {
	var in models.WSInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(c, "invalid message", err.Error())
		return
	}

	switch in.Type {
	case models.WSTypePing:
		c.touch(h.now())
		h.send(c, models.WSPong{Type: models.WSTypePong, Timestamp: h.timestamp()})

	case models.WSTypeSubscribe:
		if err := h.subscribe(c, in.SubscriptionType, in.Target); err != nil {
			h.sendError(c, "subscribe failed", err.Error())
			return
		}
		h.send(c, models.WSAck{
			Type:             models.WSTypeSubscribed,
			ClientID:         c.id,
			SubscriptionType: in.SubscriptionType,
			Target:           in.Target,
			Message:          "subscribed to " + in.SubscriptionType + ":" + in.Target,
			Timestamp:        h.timestamp(),
		})

	case models.WSTypeUnsubscribe:
		if err := h.unsubscribe(c, in.SubscriptionType, in.Target); err != nil {
			h.sendError(c, "unsubscribe failed", err.Error())
			return
		}
		h.send(c, models.WSAck{
			Type:             models.WSTypeUnsubscribed,
			ClientID:         c.id,
			SubscriptionType: in.SubscriptionType,
			Target:           in.Target,
			Message:          "unsubscribed from " + in.SubscriptionType + ":" + in.Target,
			Timestamp:        h.timestamp(),
		})

	default:
		h.sendError(c, "unknown message type", in.Type)
	}
}

// send marshals v and enqueues it on the client. A client whose buffer
// is full is closed.
func (h *Hub) send(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket message marshal failed")
		return
	}
	if !c.enqueue(data) {
		h.logger.Debug().Str("client_id", c.id).Msg("WebSocket send buffer full, closing client")
		h.disconnect(c)
	}
}

func (h *Hub) sendError(c *client, msg, details string) {
	h.send(c, models.WSError{
		Type:      models.WSTypeError,
		Error:     msg,
		Details:   details,
		Timestamp: h.timestamp(),
	})
}
