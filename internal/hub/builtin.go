package hub

import (
	"fmt"

	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/internal/wire"
)

// builtinAPIs is the set of custom (non-nodeInit/greenLight) built-in
// calls dispatched by rule 3. nodeInit and greenLight are handled ahead of
// this table by dedicated rules (1 and 2) per §4.3.
var builtinAPIs = map[string]bool{
	packet.APIHelloWorld:  true,
	packet.APIDoesExist:   true,
	packet.APIGetUsername: true,
	packet.APISetUsername: true,
	packet.APIGetSettings: true,
	packet.APISetSettings: true,
	packet.APIMessage:     true,
}

func isBuiltinAPI(apiCall string) bool {
	return builtinAPIs[apiCall]
}

// handleNodeInit implements dispatch rule 1: register the connection under
// packet.Args["name"], replacing any prior connection with that name.
func (h *Hub) handleNodeInit(c *wire.Conn, pkt *packet.Packet) {
	if !packet.CheckArgs(pkt, "name") {
		pkt.Status = false
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		h.reply(c, pkt)
		return
	}
	name, _ := pkt.Args["name"].(string)
	if name == "" {
		pkt.Status = false
		pkt.ErrorMessage = "name argument not included!"
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		h.reply(c, pkt)
		return
	}

	h.reg.register(name, c)
	h.metrics.registeredNodes.Set(float64(h.reg.count()))
	if err := h.store.EnsurePackageRecord(name); err != nil {
		h.log.Warn("failed to seed package record", "name", name, "error", err)
	}
	h.log.Info("node registered", "name", name)

	pkt.Result = true
	h.reply(c, pkt)
}

// invokeBuiltin implements dispatch rule 3: the fixed built-in API table
// (§4.3), excluding nodeInit/greenLight which dispatch earlier.
func (h *Hub) invokeBuiltin(c *wire.Conn, apiCall string, pkt *packet.Packet) {
	switch apiCall {
	case packet.APIHelloWorld:
		h.builtinHelloWorld(pkt)
	case packet.APIDoesExist:
		h.builtinDoesNodeExist(pkt)
	case packet.APIGetUsername:
		h.builtinGetUsername(pkt)
	case packet.APISetUsername:
		h.builtinSetUsername(pkt)
	case packet.APIGetSettings:
		h.builtinGetSettings(pkt)
	case packet.APISetSettings:
		h.builtinSetSettings(pkt)
	case packet.APIMessage:
		h.builtinMessage(pkt)
	}
	h.reply(c, pkt)
}

func (h *Hub) builtinHelloWorld(pkt *packet.Packet) {
	if !packet.CheckArgs(pkt, "text") {
		pkt.Status = false
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		return
	}
	text, _ := pkt.Args["text"].(string)
	pkt.Result = "helloWorld! " + text
}

func (h *Hub) builtinDoesNodeExist(pkt *packet.Packet) {
	if !packet.CheckArgs(pkt, "name") {
		pkt.Status = false
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		return
	}
	name, _ := pkt.Args["name"].(string)
	pkt.Result = h.reg.exists(name)
}

func (h *Hub) builtinGetUsername(pkt *packet.Packet) {
	v, ok := h.store.Get("username")
	if !ok {
		pkt.Status = false
		pkt.ErrorMessage = "username not set!"
		return
	}
	pkt.Result = v
}

func (h *Hub) builtinSetUsername(pkt *packet.Packet) {
	if !packet.CheckArgs(pkt, "name") {
		pkt.Status = false
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		return
	}
	name, _ := pkt.Args["name"].(string)
	if err := h.store.Set("username", name); err != nil {
		pkt.Status = false
		pkt.ErrorMessage = err.Error()
		h.metrics.dispatchErrors.WithLabelValues(errKindStorage).Inc()
		return
	}
	pkt.Result = true
}

// builtinGetSettings and builtinSetSettings use pkt.Sender as the
// authorization key: a node can only ever read or write its own settings
// sub-tree (§4.3's getSettings/setSettings row; §8's invariant "Every
// write to packages.<X>.settings through setSettings from sender S
// satisfies S==X").
func (h *Hub) builtinGetSettings(pkt *packet.Packet) {
	path := fmt.Sprintf("packages.%s.settings", pkt.Sender)
	v, ok := h.store.Get(path)
	if !ok {
		pkt.Status = false
		pkt.ErrorMessage = fmt.Sprintf("no package entry for %q", pkt.Sender)
		h.metrics.dispatchErrors.WithLabelValues(errKindAuth).Inc()
		return
	}
	pkt.Result = v
}

func (h *Hub) builtinSetSettings(pkt *packet.Packet) {
	if !packet.CheckArgs(pkt, "settings") {
		pkt.Status = false
		h.metrics.dispatchErrors.WithLabelValues(errKindArgument).Inc()
		return
	}
	path := fmt.Sprintf("packages.%s", pkt.Sender)
	if _, ok := h.store.Get(path); !ok {
		pkt.Status = false
		pkt.ErrorMessage = fmt.Sprintf("no package entry for %q", pkt.Sender)
		h.metrics.dispatchErrors.WithLabelValues(errKindAuth).Inc()
		return
	}
	if err := h.store.Set(path+".settings", pkt.Args["settings"]); err != nil {
		pkt.Status = false
		pkt.ErrorMessage = err.Error()
		h.metrics.dispatchErrors.WithLabelValues(errKindStorage).Inc()
		return
	}
	pkt.Result = true
}

func (h *Hub) builtinMessage(pkt *packet.Packet) {
	msg, _ := pkt.Args["message"].(string)
	h.log.Info(fmt.Sprintf("Message from %s: %s", pkt.Sender, msg))
}
