package connection

import (
	"crypto/ed25519"
	"testing"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

func testIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("ed25519.GenerateKey() error = %v", err)
	}
	id, err := identity.FromPublicKey(pub)
	if err != nil {
		t.Fatalf("identity.FromPublicKey() error = %v", err)
	}
	return id
}

func TestState_String(t *testing.T) {
	id := testIdentity(t)
	tests := []struct {
		state State
		want  string
	}{
		{State{Tag: Connecting}, "CONNECTING"},
		{State{Tag: WaitingForIdentity}, "WAITING_FOR_IDENTITY"},
		{State{Tag: RequestSignaling}, "REQUEST_SIGNALING"},
		{State{Tag: Signaling}, "SIGNALING"},
		{State{Tag: Disconnected}, "DISCONNECTED"},
		{State{Tag: Connected, Identity: id}, "CONNECTED{" + id.String() + "}"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	if !(State{Tag: Disconnected}).IsTerminal() {
		t.Error("DISCONNECTED should be terminal")
	}
	if (State{Tag: Connecting}).IsTerminal() {
		t.Error("CONNECTING should not be terminal")
	}
}

func TestState_CanTransitionTo(t *testing.T) {
	id := testIdentity(t)
	connected := State{Tag: Connected, Identity: id}

	tests := []struct {
		name string
		from StateTag
		to   StateTag
		want bool
	}{
		{"connecting -> waiting_for_identity", Connecting, WaitingForIdentity, true},
		{"connecting -> request_signaling", Connecting, RequestSignaling, true},
		{"connecting -> signaling", Connecting, Signaling, true},
		{"connecting -> disconnected", Connecting, Disconnected, true},
		{"connecting -> connected", Connecting, Connected, false},
		{"request_signaling -> signaling", RequestSignaling, Signaling, true},
		{"request_signaling -> waiting_for_identity", RequestSignaling, WaitingForIdentity, false},
		{"signaling -> waiting_for_identity", Signaling, WaitingForIdentity, true},
		{"signaling -> connected", Signaling, Connected, false},
		{"waiting_for_identity -> connected", WaitingForIdentity, Connected, true},
		{"waiting_for_identity -> disconnected", WaitingForIdentity, Disconnected, true},
		{"connected -> disconnected", Connected, Disconnected, true},
		{"connected -> connecting", Connected, Connecting, false},
		{"disconnected -> anything", Disconnected, Connecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := State{Tag: tt.from}
			to := State{Tag: tt.to}
			if tt.to == Connected {
				to = connected
			}
			if got := from.CanTransitionTo(to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_ValidateTransition(t *testing.T) {
	id := testIdentity(t)

	if err := (State{Tag: Connecting}).ValidateTransition(State{Tag: WaitingForIdentity}); err != nil {
		t.Errorf("expected a valid transition to succeed, got %v", err)
	}
	if err := (State{Tag: WaitingForIdentity}).ValidateTransition(State{Tag: Connected, Identity: id}); err != nil {
		t.Errorf("expected a valid transition to succeed, got %v", err)
	}
	if err := (State{Tag: Connected, Identity: id}).ValidateTransition(State{Tag: Connecting}); err == nil {
		t.Error("expected an illegal transition to fail")
	}
	if err := (State{Tag: Disconnected}).ValidateTransition(State{Tag: Connecting}); err == nil {
		t.Error("DISCONNECTED is terminal; no transition should be legal")
	}
}
