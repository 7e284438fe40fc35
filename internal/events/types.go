package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeProducerConnected uint32 = iota + 1
	TypeProducerDisconnected
	TypeFrameDropped
	TypeDMATimeout
	TypeRotateFallback
)

// Event is the interface kelindar/event requires of published values.
type Event interface {
	Type() uint32
}

// ProducerConnectedEvent fires when header.app_connected transitions to set.
type ProducerConnectedEvent struct {
	Timestamp time.Time
}

// Type returns the event type identifier for ProducerConnectedEvent.
func (e ProducerConnectedEvent) Type() uint32 { return TypeProducerConnected }

// ProducerDisconnectedEvent fires when header.app_connected transitions to
// clear. LastFrameSeq is the last frame_counter value the daemon consumed.
type ProducerDisconnectedEvent struct {
	Timestamp    time.Time
	LastFrameSeq uint32
}

// Type returns the event type identifier for ProducerDisconnectedEvent.
func (e ProducerDisconnectedEvent) Type() uint32 { return TypeProducerDisconnected }

// FrameDroppedEvent fires whenever FrameLoop skips transmission for an
// iteration after a transient error.
type FrameDroppedEvent struct {
	Timestamp time.Time
	Reason    string
}

// Type returns the event type identifier for FrameDroppedEvent.
func (e FrameDroppedEvent) Type() uint32 { return TypeFrameDropped }

// DMATimeoutEvent fires when RotateEngine's hardware path misses its 1s
// deadline and self-resets the DMA channel.
type DMATimeoutEvent struct {
	Timestamp time.Time
	Rotation  int
}

// Type returns the event type identifier for DMATimeoutEvent.
func (e DMATimeoutEvent) Type() uint32 { return TypeDMATimeout }

// RotateFallbackEvent fires when the CPU rotate path runs instead of the
// DMA 2D path, whether because hardware was never available or because the
// DMA path just timed out.
type RotateFallbackEvent struct {
	Timestamp time.Time
	Rotation  int
	Reason    string
}

// Type returns the event type identifier for RotateFallbackEvent.
func (e RotateFallbackEvent) Type() uint32 { return TypeRotateFallback }
