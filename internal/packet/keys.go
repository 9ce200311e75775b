package packet

import "fmt"

// Routing keys are a wire contract (§4.1): any reimplementation must produce
// these exact strings so heterogeneous nodes can interoperate. Every key is
// built in exactly one place here rather than inline at each call site.

// HubAPI builds "<hubName>.<apiCall>" — a node requesting a hub built-in.
func HubAPI(hubName, apiCall string) string {
	return hubName + "." + apiCall
}

// HubSend builds "<hubName>.send" — a node asking the hub to forward a
// packet to another node.
func HubSend(hubName string) string {
	return hubName + ".send"
}

// HubReturn builds "<hubName>.return" — a node delivering a reply to a
// request it previously received.
func HubReturn(hubName string) string {
	return hubName + ".return"
}

// ReceiverAPI builds "<receiverName>.<apiCall>" — what the hub emits on the
// receiver's connection to invoke its custom API.
func ReceiverAPI(receiverName, apiCall string) string {
	return receiverName + "." + apiCall
}

// ReturnTo builds "<receiverName>.<apiCall>.return.<senderName>.<returnCode>"
// — what the hub emits on the sender's connection to deliver a reply. The
// code suffix isolates concurrent in-flight calls from the same sender.
func ReturnTo(receiverName, apiCall, senderName string, returnCode int64) string {
	return fmt.Sprintf("%s.%s.return.%s.%d", receiverName, apiCall, senderName, returnCode)
}

// NodeMessage builds "<nodeName>.message" — the debug logging channel.
func NodeMessage(nodeName string) string {
	return nodeName + ".message"
}

// Well-known built-in api call names (§4.1, §4.3).
const (
	APINodeInit    = "nodeInit"
	APIGreenLight  = "greenLight"
	APIHelloWorld  = "helloWorld"
	APIDoesExist   = "doesNodeExist"
	APIGetUsername = "getUsername"
	APISetUsername = "setUsername"
	APIGetSettings = "getSettings"
	APISetSettings = "setSettings"
	APIMessage     = "message"
	// wellnessCheck is emitted by the hub's disconnect sweep (§4.3); it is
	// never a real request and carries no reply expectation.
	APIWellnessCheck = "wellnessCheck"
)
