package hub_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/samcore-io/samcore/internal/hub"
	"github.com/samcore-io/samcore/internal/packet"
	"github.com/samcore-io/samcore/public/client"
)

// startTestHub boots a Hub on a temp Unix socket and returns it plus its
// socket path. The caller's test cleanup cancels the context, which drains
// and stops the hub.
func startTestHub(t *testing.T) (*hub.Hub, string) {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "samcore.sock")
	settingsPath := filepath.Join(dir, "SamCoreSettings.json")

	h, err := hub.New(hub.Config{
		Name:         "samcore",
		SocketPath:   socketPath,
		SettingsPath: settingsPath,
		Registerer:   prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		close(started)
		_ = h.Start(ctx)
	}()
	<-started
	t.Cleanup(cancel)

	deadline := time.Now().Add(2 * time.Second)
	for h.State() != hub.Open {
		if time.Now().After(deadline) {
			t.Fatalf("hub did not reach Open state in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h, socketPath
}

// startTestNode runs a client to green light and returns it; the caller's
// test cleanup closes it.
func startTestNode(t *testing.T, name, socketPath string) *client.Client {
	t.Helper()
	c := client.New(client.Config{NodeName: name, HubName: "samcore", SocketPath: socketPath, Silent: true})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(cancel)

	deadline := time.Now().Add(2 * time.Second)
	for !c.GreenLight() {
		if time.Now().After(deadline) {
			t.Fatalf("node %s never saw greenLight", name)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c
}

// Scenario 1: fresh settings document is seeded with the hub's own
// package record per §4.2's defaults.
func TestScenario1_SeedsHubPackageRecord(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "SamCoreSettings.json")
	socketPath := filepath.Join(dir, "samcore.sock")

	h, err := hub.New(hub.Config{Name: "samcore", SocketPath: socketPath, SettingsPath: settingsPath, Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.State() != hub.Open {
		if time.Now().After(deadline) {
			t.Fatalf("hub did not open in time")
		}
		time.Sleep(5 * time.Millisecond)
	}

	data, err := os.ReadFile(settingsPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	packages, _ := doc["packages"].(map[string]any)
	record, ok := packages["samcore"].(map[string]any)
	require.True(t, ok, "expected packages.samcore in %s", data)
	require.Equal(t, "1.0.0", record["version"])
	for _, field := range []string{"installed", "persistent", "mandatory", "enabled"} {
		require.Equal(t, true, record[field], "field %s", field)
	}
}

// Scenario 2: helloWorld with valid args.
func TestScenario2_HelloWorld(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)

	reply, err := alice.CallApi(context.Background(), "samcore", "helloWorld", map[string]any{"text": "there"}, 2*time.Second)
	require.NoError(t, err)
	require.True(t, reply.Status)
	require.Equal(t, "helloWorld! there", reply.Result)
}

// Scenario 3: helloWorld with a missing required argument.
func TestScenario3_HelloWorldMissingArg(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)

	reply, err := alice.CallApi(context.Background(), "samcore", "helloWorld", map[string]any{}, 2*time.Second)
	if err != nil {
		t.Fatalf("callApi: %v", err)
	}
	if reply.Status {
		t.Fatalf("expected status=false, got %+v", reply)
	}
	if reply.ErrorMessage != "text argument not included!" {
		t.Fatalf("unexpected error message: %q", reply.ErrorMessage)
	}
}

// Scenario 4: doesNodeExist against a registered and an unregistered name.
func TestScenario4_DoesNodeExist(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)
	_ = startTestNode(t, "bob", socketPath)

	reply, err := alice.CallApi(context.Background(), "samcore", "doesNodeExist", map[string]any{"name": "bob"}, 2*time.Second)
	if err != nil {
		t.Fatalf("callApi: %v", err)
	}
	if reply.Result != true {
		t.Fatalf("expected true, got %+v", reply)
	}

	reply, err = alice.CallApi(context.Background(), "samcore", "doesNodeExist", map[string]any{"name": "carol"}, 2*time.Second)
	if err != nil {
		t.Fatalf("callApi: %v", err)
	}
	if reply.Result != false {
		t.Fatalf("expected false, got %+v", reply)
	}
}

// Scenario 5: concurrent calls to another node resolve to their own
// correct replies regardless of the order the receiver answers in.
func TestScenario5_ConcurrentCallsCorrelateCorrectly(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)
	bob := startTestNode(t, "bob", socketPath)

	delays := map[string]time.Duration{
		"first":  30 * time.Millisecond,
		"second": 5 * time.Millisecond,
		"third":  15 * time.Millisecond,
	}
	// Each reply is sent from its own goroutine after a per-label delay, so
	// bob answers in delay order rather than in the order it received.
	bob.AddApiCall("slow", func(c *client.Client, pkt *packet.Packet) {
		label, _ := pkt.Args["label"].(string)
		go func() {
			time.Sleep(delays[label])
			pkt.Result = label
			_ = c.Return(pkt)
		}()
	})

	results := make(chan string, 3)
	for _, label := range []string{"first", "second", "third"} {
		label := label
		go func() {
			reply, err := alice.CallApi(context.Background(), "bob", "slow", map[string]any{"label": label}, 2*time.Second)
			if err != nil {
				t.Errorf("callApi(%s): %v", label, err)
				return
			}
			if reply.Result != label {
				t.Errorf("call for %q resolved with mismatched result %+v", label, reply)
				return
			}
			results <- label
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-results:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for concurrent calls to resolve")
		}
	}
}

// Scenario 6: settings are isolated per node.
func TestScenario6_SettingsIsolatedPerNode(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)
	bob := startTestNode(t, "bob", socketPath)

	reply, err := alice.CallApi(context.Background(), "samcore", "setSettings", map[string]any{
		"settings": map[string]any{"theme": "dark"},
	}, 2*time.Second)
	if err != nil || !reply.Status {
		t.Fatalf("alice setSettings failed: %v %+v", err, reply)
	}

	reply, err = alice.CallApi(context.Background(), "samcore", "getSettings", map[string]any{}, 2*time.Second)
	if err != nil {
		t.Fatalf("alice getSettings: %v", err)
	}
	got, ok := reply.Result.(map[string]any)
	if !ok || got["theme"] != "dark" {
		t.Fatalf("expected alice's settings to include theme=dark, got %+v", reply.Result)
	}

	reply, err = bob.CallApi(context.Background(), "samcore", "getSettings", map[string]any{}, 2*time.Second)
	if err != nil {
		t.Fatalf("bob getSettings: %v", err)
	}
	bobSettings, _ := reply.Result.(map[string]any)
	if _, has := bobSettings["theme"]; has {
		t.Fatalf("expected bob's settings not to see alice's theme, got %+v", reply.Result)
	}
}

// Idempotence: repeated nodeInit calls reach one registry entry.
func TestRepeatedNodeInitIsIdempotent(t *testing.T) {
	h, socketPath := startTestHub(t)
	_ = startTestNode(t, "alice", socketPath)
	_ = startTestNode(t, "alice", socketPath) // re-registers under the same name

	alice2 := startTestNode(t, "alice", socketPath)
	reply, err := alice2.CallApi(context.Background(), "samcore", "doesNodeExist", map[string]any{"name": "alice"}, 2*time.Second)
	if err != nil {
		t.Fatalf("callApi: %v", err)
	}
	if reply.Result != true {
		t.Fatalf("expected alice to still be registered")
	}
	_ = h // hub referenced to keep startTestHub's return value meaningful
}

// Boundary: calling an unregistered receiver resolves status=false within
// the configured timeout rather than hanging.
func TestCallUnregisteredReceiverFails(t *testing.T) {
	_, socketPath := startTestHub(t)
	alice := startTestNode(t, "alice", socketPath)

	reply, err := alice.CallApi(context.Background(), "ghost", "anything", map[string]any{}, 2*time.Second)
	if err != nil {
		t.Fatalf("callApi: %v", err)
	}
	if reply.Status {
		t.Fatalf("expected status=false for unregistered receiver, got %+v", reply)
	}
}
