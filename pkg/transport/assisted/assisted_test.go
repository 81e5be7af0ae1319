package assisted

import (
	"bytes"
	"testing"
	"time"
)

func TestFactory_CreatePairsViaBroker(t *testing.T) {
	broker := NewBroker()
	initiatorFactory := New(broker)
	responderFactory := New(broker)

	initiator := initiatorFactory.Create(true)
	responder := responderFactory.Create(false)
	defer initiator.Close()
	defer responder.Close()

	var offer []byte
	select {
	case offer = <-initiator.LocalSignal():
	case <-time.After(time.Second):
		t.Fatal("initiator never produced an offer signal")
	}

	if err := responder.Signal(offer); err != nil {
		t.Fatalf("responder.Signal(offer) error = %v", err)
	}

	var ack []byte
	select {
	case ack = <-responder.LocalSignal():
	case <-time.After(time.Second):
		t.Fatal("responder never produced an ack signal")
	}

	if err := initiator.Signal(ack); err != nil {
		t.Fatalf("initiator.Signal(ack) error = %v", err)
	}

	// Both sides should now be paired; give the background join
	// goroutines a moment to finish.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if initiator.Recv() != nil && responder.Recv() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := []byte("ping over assisted transport")
	if err := initiator.Send(want); err != nil {
		t.Fatalf("initiator.Send() error = %v", err)
	}

	select {
	case got := <-responder.Recv():
		if !bytes.Equal(got, want) {
			t.Errorf("Recv() = %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame over the paired assisted transport")
	}
}

func TestHandle_SendBeforePairingErrors(t *testing.T) {
	broker := NewBroker()
	f := New(broker)
	h := f.Create(false)
	defer h.Close()

	if err := h.Send([]byte("too early")); err == nil {
		t.Error("Send() before signalling completes should error")
	}
}
