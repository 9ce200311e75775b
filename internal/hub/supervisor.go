package hub

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// nodeEntryPoint is the executable name the hub looks for inside a
// persistent node's sibling directory (§6's process spawn convention).
// Nodes are ordinary Go binaries; the hub does not compile anything, it
// only launches what it finds.
const nodeEntryPoint = "./node"

// supervisor spawns and tracks the persistent child processes declared in
// settings, grounded in amurg-ai-amurg's runtime adapter
// exec.CommandContext + stdout/stderr streaming pattern (adapter.jobSession).
type supervisor struct {
	h *Hub

	mu       sync.Mutex
	children map[string]*exec.Cmd
}

func newSupervisor(h *Hub) *supervisor {
	return &supervisor{h: h, children: map[string]*exec.Cmd{}}
}

// spawnPersistentNodes iterates packages.* at the Accepting→Open
// transition and launches one child process per entry with
// enabled=true, persistent=true, excluding the hub's own name (§4.3).
func (s *supervisor) spawnPersistentNodes(ctx context.Context) {
	packages, ok := s.h.store.Get("packages")
	if !ok {
		return
	}
	m, ok := packages.(map[string]any)
	if !ok {
		return
	}

	for name, raw := range m {
		if name == s.h.name {
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if !boolField(entry, "enabled") || !boolField(entry, "persistent") {
			continue
		}
		s.spawn(ctx, name)
	}
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// spawn launches name's entry point inside a sibling directory named after
// it (§6: "running the node entry point inside the sibling directory
// ./X/."), streaming its stdout/stderr to the hub's logger and logging its
// exit code. It does not restart the child on exit (§9 Open Question:
// resolved no).
func (s *supervisor) spawn(ctx context.Context, name string) {
	cmd := exec.CommandContext(ctx, nodeEntryPoint)
	cmd.Dir = "./" + name

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.h.log.Error("persistent node stdout pipe failed", "name", name, "error", err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.h.log.Error("persistent node stderr pipe failed", "name", name, "error", err)
		return
	}

	if err := cmd.Start(); err != nil {
		s.h.log.Error("persistent node failed to start", "name", name, "error", err)
		return
	}

	s.mu.Lock()
	s.children[name] = cmd
	s.mu.Unlock()

	go s.streamLines(name, "stdout", stdout)
	go s.streamLines(name, "stderr", stderr)

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		delete(s.children, name)
		s.mu.Unlock()
		if err != nil {
			s.h.log.Warn("persistent node exited", "name", name, "error", err)
			return
		}
		s.h.log.Info("persistent node exited", "name", name, "code", fmt.Sprint(cmd.ProcessState.ExitCode()))
	}()
}

func (s *supervisor) streamLines(name, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.h.log.Info("persistent node output", "name", name, "stream", stream, "line", scanner.Text())
	}
}
