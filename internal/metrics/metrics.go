// Package metrics provides Prometheus instrumentation for the frame path.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTransmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "frameloop",
		Name:      "frames_transmitted_total",
		Help:      "Frames successfully streamed to the panel over SPI.",
	})

	framesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "frameloop",
		Name:      "frames_consumed_total",
		Help:      "Producer frames copied out of the pending buffer.",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "frameloop",
		Name:      "frames_dropped_total",
		Help:      "Iterations where a transient error caused a frame to be skipped.",
	})

	currentFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ili9488fbd",
		Subsystem: "frameloop",
		Name:      "fps",
		Help:      "Measured frames transmitted per second, updated once per second.",
	})

	dmaTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "rotate",
		Name:      "dma_timeout_total",
		Help:      "Times the hardware DMA 2D rotate path missed its 1s deadline and was reset.",
	})

	rotateFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "rotate",
		Name:      "cpu_fallback_total",
		Help:      "Times the CPU rotate path ran instead of the DMA 2D path, by rotation.",
	}, []string{"degrees"})

	spiBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "spi",
		Name:      "bytes_sent_total",
		Help:      "Pixel bytes streamed to the panel over spidev.",
	})

	spiChunkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ili9488fbd",
		Subsystem: "spi",
		Name:      "chunk_errors_total",
		Help:      "SPI_IOC_MESSAGE ioctl failures for a transmit chunk; the frame is dropped, not retried.",
	})

	producerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ili9488fbd",
		Subsystem: "arena",
		Name:      "producer_connected",
		Help:      "1 if header.app_connected is set, 0 otherwise.",
	})
)

// FrameTransmitted records one frame successfully streamed to the panel.
func FrameTransmitted() { framesTransmitted.Inc() }

// FrameConsumed records one pending frame copied into the DMA buffer.
func FrameConsumed() { framesConsumed.Inc() }

// FrameDropped records one iteration that skipped transmission after a
// transient error.
func FrameDropped() { framesDropped.Inc() }

// SetFPS updates the measured transmit rate.
func SetFPS(fps float64) { currentFPS.Set(fps) }

// DMATimeout records a hardware rotate deadline miss.
func DMATimeout() { dmaTimeouts.Inc() }

// RotateFallback records a CPU rotate for the given rotation in degrees.
func RotateFallback(degrees int) {
	rotateFallbacks.WithLabelValues(degreesLabel(degrees)).Inc()
}

// SPIBytesSent records bytes written to the panel.
func SPIBytesSent(n int) { spiBytesSent.Add(float64(n)) }

// SPIChunkError records an ioctl failure for one SPI chunk.
func SPIChunkError() { spiChunkErrors.Inc() }

// SetProducerConnected reflects header.app_connected.
func SetProducerConnected(connected bool) {
	if connected {
		producerConnected.Set(1)
	} else {
		producerConnected.Set(0)
	}
}

func degreesLabel(degrees int) string {
	switch degrees {
	case 0, 90, 180, 270:
		return strconv.Itoa(degrees)
	default:
		return "invalid"
	}
}
