package dmapool

import "testing"

func TestAllocateCPUFallbackProducesThreeUsableBuffers(t *testing.T) {
	pool, err := allocateCPU(1024)
	if err != nil {
		t.Fatalf("allocateCPU: %v", err)
	}
	if pool.Strategy() != StrategyCPU {
		t.Errorf("Strategy() = %q, want %q", pool.Strategy(), StrategyCPU)
	}
	for i := 0; i < 3; i++ {
		b := pool.Buffer(i)
		if len(b.CPU()) != 1024 {
			t.Errorf("buffer %d CPU() len = %d, want 1024", i, len(b.CPU()))
		}
		if b.BusAddr() != 0 {
			t.Errorf("buffer %d BusAddr() = %#x, want 0 (no DMA master on cpu fallback)", i, b.BusAddr())
		}
		if b.Size() != 1024 {
			t.Errorf("buffer %d Size() = %d, want 1024", i, b.Size())
		}
	}
}

func TestPoolCanDMARotateFalseWithoutBusAddresses(t *testing.T) {
	pool, err := allocateCPU(256)
	if err != nil {
		t.Fatalf("allocateCPU: %v", err)
	}
	if pool.CanDMARotate() {
		t.Error("CanDMARotate() = true for cpu-only buffers with zero bus addresses")
	}
}

func TestPoolReleaseIsNoopForCPUStrategy(t *testing.T) {
	pool, err := allocateCPU(256)
	if err != nil {
		t.Fatalf("allocateCPU: %v", err)
	}
	if err := pool.Release(); err != nil {
		t.Errorf("Release() = %v, want nil", err)
	}
}
