package meshkeep

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/quietmesh/meshkeep/pkg/connection"
)

// DebugState captures the complete state of a Manager for troubleshooting
// connection issues and is not intended for programmatic polling (use
// ReadinessChecks or the event channels for that).
type DebugState struct {
	LocalIdentity string `json:"local_identity"`
	LocalVersion  string `json:"local_version"`
	ListenPort    uint16 `json:"listen_port"`
	IsWorker      bool   `json:"is_worker"`

	Config DebugConfig `json:"config"`

	AddressBook *DebugAddressBook `json:"address_book,omitempty"`

	Peers []DebugPeer `json:"peers"`

	CapturedAt time.Time `json:"captured_at"`
}

// DebugConfig summarizes the manager's running configuration.
type DebugConfig struct {
	MaxPeers            int `json:"max_peers"`
	TargetPeers         int `json:"target_peers"`
	BroadcastIntervalMs int `json:"broadcast_interval_ms"`
	DisposeIntervalMs   int `json:"dispose_interval_ms"`
	NameMaxLen          int `json:"name_max_len"`
}

// DebugAddressBook summarizes the optional on-disk address book.
type DebugAddressBook struct {
	KnownPeers int `json:"known_peers"`
}

// DebugPeer summarizes a single peer record: its identity (if assigned),
// connection state, transport occupancy, and retry posture.
type DebugPeer struct {
	Identity   string `json:"identity,omitempty"`
	Name       string `json:"name,omitempty"`
	Address    string `json:"address,omitempty"`
	Port       uint16 `json:"port,omitempty"`
	State      string `json:"state"`
	Direct     bool   `json:"direct"`
	Assisted   bool   `json:"assisted"`
	KnownPeers int    `json:"known_peers"`

	RetryDirectFailures   int       `json:"retry_direct_failures"`
	RetryDirectCooldown   time.Time `json:"retry_direct_cooldown,omitempty"`
	RetryAssistedFailures int       `json:"retry_assisted_failures"`
	RetryAssistedCooldown time.Time `json:"retry_assisted_cooldown,omitempty"`
}

// DumpState snapshots the manager's peer registry and configuration. The
// snapshot runs on the manager's event loop, so it reflects a single
// consistent instant rather than a torn read across peers.
func (m *Manager) DumpState() *DebugState {
	state := &DebugState{
		LocalIdentity: m.local.Identity.String(),
		LocalVersion:  m.local.Version.ProtocolVersion,
		ListenPort:    m.local.ListenPort,
		IsWorker:      m.local.IsWorker,
		Config: DebugConfig{
			MaxPeers:            m.cfg.MaxPeers,
			TargetPeers:         m.cfg.TargetPeers,
			BroadcastIntervalMs: m.cfg.BroadcastIntervalMs,
			DisposeIntervalMs:   m.cfg.DisposeIntervalMs,
			NameMaxLen:          m.cfg.NameMaxLen,
		},
		CapturedAt: time.Now(),
	}

	if m.book != nil {
		state.AddressBook = &DebugAddressBook{KnownPeers: len(m.book.ListPeers())}
	}

	m.submitWait(func() {
		state.Peers = make([]DebugPeer, 0, len(m.peers))
		for _, p := range m.peers {
			dp := DebugPeer{
				Name:       p.Name(),
				Address:    p.Address(),
				Port:       p.Port(),
				State:      p.State().Tag.String(),
				Direct:     p.Connection(connection.Direct) != nil,
				Assisted:   p.Connection(connection.Assisted) != nil,
				KnownPeers: len(p.KnownPeers()),
			}
			if id, ok := p.Identity(); ok {
				dp.Identity = id.String()
			}
			if rd := p.RetryState(connection.Direct); rd != nil {
				dp.RetryDirectFailures = rd.ConsecutiveFailures()
				dp.RetryDirectCooldown = rd.CooldownUntil()
			}
			if ra := p.RetryState(connection.Assisted); ra != nil {
				dp.RetryAssistedFailures = ra.ConsecutiveFailures()
				dp.RetryAssistedCooldown = ra.CooldownUntil()
			}
			state.Peers = append(state.Peers, dp)
		}
	})

	return state
}

// DumpStateJSON returns the manager state as formatted JSON.
func (m *Manager) DumpStateJSON() (string, error) {
	state := m.DumpState()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("meshkeep: marshal debug state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable rendering of the manager state,
// useful for dropping into an operator shell or a support bundle.
func (m *Manager) DumpStateString() string {
	state := m.DumpState()
	var sb strings.Builder

	sb.WriteString("=== Peer Manager Debug State ===\n\n")

	sb.WriteString("IDENTITY:\n")
	sb.WriteString(fmt.Sprintf("  Identity: %s\n", state.LocalIdentity))
	sb.WriteString(fmt.Sprintf("  Version:  %s\n", state.LocalVersion))
	sb.WriteString(fmt.Sprintf("  Port:     %d\n", state.ListenPort))
	sb.WriteString(fmt.Sprintf("  Worker:   %t\n", state.IsWorker))
	sb.WriteString("\n")

	sb.WriteString("CONFIGURATION:\n")
	sb.WriteString(fmt.Sprintf("  Max peers:     %d\n", state.Config.MaxPeers))
	sb.WriteString(fmt.Sprintf("  Target peers:  %d\n", state.Config.TargetPeers))
	sb.WriteString(fmt.Sprintf("  Broadcast:     %dms\n", state.Config.BroadcastIntervalMs))
	sb.WriteString(fmt.Sprintf("  Dispose sweep: %dms\n", state.Config.DisposeIntervalMs))
	sb.WriteString("\n")

	if state.AddressBook != nil {
		sb.WriteString("ADDRESS BOOK:\n")
		sb.WriteString(fmt.Sprintf("  Known: %d peers\n", state.AddressBook.KnownPeers))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("PEERS (%d):\n", len(state.Peers)))
	for _, p := range state.Peers {
		name := p.Identity
		if p.Name != "" {
			name = fmt.Sprintf("%s (%s)", p.Name, p.Identity)
		}
		if name == "" {
			name = fmt.Sprintf("%s:%d", p.Address, p.Port)
		}
		sb.WriteString(fmt.Sprintf("  - %s: %s direct=%t assisted=%t known=%d\n",
			name, p.State, p.Direct, p.Assisted, p.KnownPeers))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Captured at: %s\n", state.CapturedAt.Format(time.RFC3339)))
	sb.WriteString("=================================\n")

	return sb.String()
}
