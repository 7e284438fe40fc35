package events

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameDroppedEvent, 1)

	unsub := bus.Subscribe(func(e FrameDroppedEvent) {
		received <- e
	})
	defer unsub()

	ev := FrameDroppedEvent{Timestamp: time.Now(), Reason: "spi chunk error"}
	bus.Publish(ev)

	got := <-received
	if got.Reason != ev.Reason {
		t.Errorf("expected reason %q, got %q", ev.Reason, got.Reason)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan DMATimeoutEvent, 1)
	received2 := make(chan DMATimeoutEvent, 1)

	unsub1 := bus.Subscribe(func(e DMATimeoutEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e DMATimeoutEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(DMATimeoutEvent{Timestamp: time.Now(), Rotation: 90})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan RotateFallbackEvent, 1)

	unsub := bus.Subscribe(func(e RotateFallbackEvent) { received <- e })
	unsub()

	bus.Publish(RotateFallbackEvent{Timestamp: time.Now(), Rotation: 270, Reason: "no bus address"})

	select {
	case <-received:
		t.Fatal("expected no event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnrecognizedHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(int) {})
	unsub()
}

func TestBus_ProducerLifecycleEvents(t *testing.T) {
	bus := New()
	connected := make(chan ProducerConnectedEvent, 1)
	disconnected := make(chan ProducerDisconnectedEvent, 1)

	defer bus.Subscribe(func(e ProducerConnectedEvent) { connected <- e })()
	defer bus.Subscribe(func(e ProducerDisconnectedEvent) { disconnected <- e })()

	bus.Publish(ProducerConnectedEvent{Timestamp: time.Now()})
	<-connected

	bus.Publish(ProducerDisconnectedEvent{Timestamp: time.Now(), LastFrameSeq: 42})
	got := <-disconnected
	if got.LastFrameSeq != 42 {
		t.Fatalf("expected LastFrameSeq 42, got %d", got.LastFrameSeq)
	}
}
