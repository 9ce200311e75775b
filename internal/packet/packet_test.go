package packet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDefaults(t *testing.T) {
	code := int64(1)
	pkt := New(NewParams{
		Sender:     "alice",
		Receiver:   "samcore",
		APICall:    "helloWorld",
		Args:       map[string]any{"text": "there"},
		ReturnCode: &code,
	})

	if !pkt.Status {
		t.Fatalf("expected Status=true by default")
	}
	if pkt.Args["text"] != "there" {
		t.Fatalf("expected args preserved, got %v", pkt.Args)
	}
	if diff := cmp.Diff(pkt.Args, pkt.BData); diff != "" {
		t.Fatalf("expected bdata to mirror args (-args +bdata):\n%s", diff)
	}
}

func TestNewWithNilArgs(t *testing.T) {
	pkt := New(NewParams{Sender: "alice", Receiver: "samcore", APICall: "greenLight"})
	if pkt.Args == nil {
		t.Fatalf("expected non-nil Args default")
	}
	if len(pkt.Args) != 0 {
		t.Fatalf("expected empty Args default, got %v", pkt.Args)
	}
}

func TestCheckArgsMissing(t *testing.T) {
	pkt := New(NewParams{Args: map[string]any{}})
	if CheckArgs(pkt, "text") {
		t.Fatalf("expected CheckArgs to fail on missing field")
	}
	if pkt.ErrorMessage != "text argument not included!" {
		t.Fatalf("unexpected error message: %q", pkt.ErrorMessage)
	}
}

func TestCheckArgsPresent(t *testing.T) {
	pkt := New(NewParams{Args: map[string]any{"name": "bob"}})
	if !CheckArgs(pkt, "name") {
		t.Fatalf("expected CheckArgs to pass")
	}
	if pkt.ErrorMessage != "" {
		t.Fatalf("expected no error message, got %q", pkt.ErrorMessage)
	}
}

func TestCheckArgsReportsFirstMissing(t *testing.T) {
	pkt := New(NewParams{Args: map[string]any{"a": 1}})
	if CheckArgs(pkt, "a", "b", "c") {
		t.Fatalf("expected failure")
	}
	if pkt.ErrorMessage != "b argument not included!" {
		t.Fatalf("expected first missing field named, got %q", pkt.ErrorMessage)
	}
}

func TestIsReply(t *testing.T) {
	code := int64(7)
	withCode := New(NewParams{ReturnCode: &code})
	if !withCode.IsReply() {
		t.Fatalf("expected IsReply true when ReturnCode set")
	}
	fireAndForget := New(NewParams{})
	if fireAndForget.IsReply() {
		t.Fatalf("expected IsReply false for fire-and-forget")
	}
}

func TestRoutingKeyShapes(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"hub api", HubAPI("samcore", "helloWorld"), "samcore.helloWorld"},
		{"hub send", HubSend("samcore"), "samcore.send"},
		{"hub return", HubReturn("samcore"), "samcore.return"},
		{"receiver api", ReceiverAPI("bob", "slow"), "bob.slow"},
		{"return to", ReturnTo("bob", "slow", "alice", 42), "bob.slow.return.alice.42"},
		{"node message", NodeMessage("alice"), "alice.message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestUnmarshalDefaultsArgs(t *testing.T) {
	var pkt Packet
	if err := Unmarshal([]byte(`{"sender":"a","receiver":"b","apiCall":"c"}`), &pkt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkt.Args == nil {
		t.Fatalf("expected Args defaulted to empty map")
	}
}
