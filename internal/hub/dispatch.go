package hub

import (
	"fmt"
	"strings"

	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/internal/wire"
)

// dispatch selects exactly one branch per §4.3's dispatch rules, in order.
// The hub never inspects or rewrites args/result/status/errorMessage when
// forwarding — it only builds transport keys.
func (h *Hub) dispatch(c *wire.Conn, key string, pkt *packet.Packet) {
	prefix := h.name + "."
	suffix, isHubAddressed := strings.CutPrefix(key, prefix)

	switch {
	case isHubAddressed && suffix == packet.APINodeInit:
		h.handleNodeInit(c, pkt)

	case isHubAddressed && suffix == packet.APIGreenLight:
		pkt.Result = h.GreenLight()
		h.reply(c, pkt)

	case isHubAddressed && isBuiltinAPI(suffix):
		h.invokeBuiltin(c, suffix, pkt)

	case isHubAddressed && suffix == "send":
		h.routeSend(pkt)

	case isHubAddressed && suffix == "return":
		h.routeReturn(pkt)

	default:
		h.log.Warn("unrecognized routing key", "key", key)
	}
}

// reply answers directly on c under the hub's own built-in reply
// convention: built-in calls are synchronous request/reply pairs on the
// same connection, addressed back as a return under the hub name so the
// requester's callApi correlator (which always listens for
// "<receiver>.<apiCall>.return.<sender>.<returnCode>") resolves uniformly
// whether receiver is the hub or another node.
func (h *Hub) reply(c *wire.Conn, pkt *packet.Packet) {
	if pkt.ReturnCode == nil {
		return
	}
	key := packet.ReturnTo(pkt.Receiver, pkt.APICall, pkt.Sender, *pkt.ReturnCode)
	if err := c.WriteMessage(key, pkt); err != nil {
		h.log.Warn("reply write failed", "key", key, "error", err)
	}
}

// routeSend implements dispatch rule 4: forward to packet.Receiver under
// "<receiver>.<apiCall>", or reply to the sender with a routing error.
func (h *Hub) routeSend(pkt *packet.Packet) {
	sender, ok := h.reg.lookup(pkt.Sender)
	if !ok {
		h.metrics.dispatchErrors.WithLabelValues(errKindProtocol).Inc()
		return // sender vanished between send and now; nothing to reply to
	}

	target, ok := h.reg.lookup(pkt.Receiver)
	if !ok {
		pkt.Status = false
		pkt.ErrorMessage = fmt.Sprintf("Node %q does not exist!", pkt.Receiver)
		h.metrics.dispatchErrors.WithLabelValues(errKindProtocol).Inc()
		h.reply(sender.conn, pkt)
		return
	}

	key := packet.ReceiverAPI(pkt.Receiver, pkt.APICall)
	if err := target.conn.WriteMessage(key, pkt); err != nil {
		h.reg.removeIfStale(pkt.Receiver, target.conn)
		h.metrics.dispatchErrors.WithLabelValues(errKindTransport).Inc()
		return
	}
	h.metrics.packetsRouted.Inc()
}

// routeReturn implements dispatch rule 5: forward the reply to
// packet.Sender under "<receiver>.<apiCall>.return.<sender>.<returnCode>".
func (h *Hub) routeReturn(pkt *packet.Packet) {
	if pkt.ReturnCode == nil {
		return
	}
	target, ok := h.reg.lookup(pkt.Sender)
	if !ok {
		return // original caller vanished; nothing to deliver to
	}
	key := packet.ReturnTo(pkt.Receiver, pkt.APICall, pkt.Sender, *pkt.ReturnCode)
	if err := target.conn.WriteMessage(key, pkt); err != nil {
		h.reg.removeIfStale(pkt.Sender, target.conn)
		h.metrics.dispatchErrors.WithLabelValues(errKindTransport).Inc()
		return
	}
	h.metrics.packetsRouted.Inc()
}
