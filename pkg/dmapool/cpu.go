package dmapool

// cpuBuffer is a plain Go-allocated byte slice with no bus address and no
// page-alignment guarantee. Hardware rotation and bus-address SPI
// transfers are unavailable for buffers of this kind; the frame path
// still works over spidev.
type cpuBuffer struct {
	data []byte
}

func (b *cpuBuffer) CPU() []byte    { return b.data }
func (b *cpuBuffer) BusAddr() uint32 { return 0 }
func (b *cpuBuffer) Size() int64     { return int64(len(b.data)) }

// allocateCPU always succeeds; it is the pool's last-resort strategy.
func allocateCPU(size int64) (*Pool, error) {
	pool := &Pool{strategy: StrategyCPU}
	for i := range pool.buffers {
		pool.buffers[i] = &cpuBuffer{data: make([]byte, size)}
	}
	pool.release = func() error { return nil }
	return pool, nil
}
