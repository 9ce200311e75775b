// Package packet defines the envelope carried over every SamCore connection
// and the routing-key convention (§4.1) used to address it.
package packet

import (
	"encoding/json"
	"fmt"
)

// Packet is the single envelope used for every request and every reply.
// Field meanings follow §3 of the specification exactly.
type Packet struct {
	Sender       string         `json:"sender"`
	Receiver     string         `json:"receiver"`
	APICall      string         `json:"apiCall"`
	ReturnCode   *int64         `json:"returnCode"`
	Args         map[string]any `json:"args"`
	Result       any            `json:"result,omitempty"`
	Status       bool           `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	BData        any            `json:"bdata,omitempty"`
}

// NewParams groups the fields a caller supplies when building a fresh packet;
// the rest are defaulted per §3.
type NewParams struct {
	Sender     string
	Receiver   string
	APICall    string
	Args       map[string]any
	ReturnCode *int64 // nil for fire-and-forget
}

// New returns a fresh packet with defaults applied: Status true, Args
// non-nil, BData a debug copy of Args.
func New(p NewParams) *Packet {
	args := p.Args
	if args == nil {
		args = map[string]any{}
	}
	return &Packet{
		Sender:     p.Sender,
		Receiver:   p.Receiver,
		APICall:    p.APICall,
		ReturnCode: p.ReturnCode,
		Args:       args,
		Status:     true,
		BData:      copyArgs(args),
	}
}

func copyArgs(args map[string]any) map[string]any {
	cp := make(map[string]any, len(args))
	for k, v := range args {
		cp[k] = v
	}
	return cp
}

// CheckArgs returns true iff every name in names is present in pkt.Args.
// On the first missing field it records a human-readable error message on
// the packet (mirroring §4.5) and returns false; it does not mutate Status
// so callers remain free to call ReturnError with their own wording.
func CheckArgs(pkt *Packet, names ...string) bool {
	for _, name := range names {
		if _, ok := pkt.Args[name]; !ok {
			pkt.ErrorMessage = fmt.Sprintf("%s argument not included!", name)
			return false
		}
	}
	return true
}

// Unmarshal decodes raw into pkt and fills Args with an empty map when the
// wire form omitted it, so callers never see a nil map.
func Unmarshal(raw []byte, pkt *Packet) error {
	if err := json.Unmarshal(raw, pkt); err != nil {
		return err
	}
	if pkt.Args == nil {
		pkt.Args = map[string]any{}
	}
	return nil
}

// IsReply reports whether pkt carries a correlation code, i.e. it is not a
// fire-and-forget message.
func (p *Packet) IsReply() bool {
	return p.ReturnCode != nil
}
