package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameTransmittedIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(framesTransmitted)
	FrameTransmitted()
	after := testutil.ToFloat64(framesTransmitted)
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestDegreesLabelRejectsInvalidRotation(t *testing.T) {
	if got := degreesLabel(45); got != "invalid" {
		t.Fatalf("expected invalid label for non-cardinal rotation, got %q", got)
	}
	if got := degreesLabel(270); got != "270" {
		t.Fatalf("expected \"270\", got %q", got)
	}
}

func TestSetProducerConnectedToggles(t *testing.T) {
	SetProducerConnected(true)
	if v := testutil.ToFloat64(producerConnected); v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
	SetProducerConnected(false)
	if v := testutil.ToFloat64(producerConnected); v != 0 {
		t.Fatalf("expected 0, got %v", v)
	}
}
