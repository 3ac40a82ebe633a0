package cw

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// captureQueueDepth bounds buffered audio between the device callback
// and the consumer. At ~10 ms per callback this is about half a second
// of slack before buffers drop.
const captureQueueDepth = 64

// MicSource captures mono float32 audio from a capture device and
// implements AudioSource. Samples handed to the device callback are
// copied before queueing; malgo reuses its buffer.
type MicSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleRate int
	buffers    chan AudioBuffer

	mu        sync.Mutex
	delivered uint64
	closed    bool
}

// NewMicSource opens the capture device whose name contains deviceName
// (case-insensitive), or the system default when deviceName is empty.
func NewMicSource(sampleRate int, deviceName string) (*MicSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	ms := &MicSource{
		ctx:        ctx,
		sampleRate: sampleRate,
		buffers:    make(chan AudioBuffer, captureQueueDepth),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(deviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					log.Printf("capture: selected device %q", info.Name())
					break
				}
			}
		}
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if len(pInputSamples) == 0 || framecount == 0 {
			return
		}
		raw := unsafe.Slice((*float32)(unsafe.Pointer(&pInputSamples[0])), int(framecount))
		ms.deliver(raw)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	ms.device = device

	return ms, nil
}

// deliver copies callback samples into an owned slice and queues them
// with a stream timestamp derived from total frames delivered. Buffers
// drop rather than block when the consumer falls behind; the device
// callback must never stall.
func (ms *MicSource) deliver(raw []float32) {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return
	}
	timestamp := float64(ms.delivered) / float64(ms.sampleRate)
	ms.delivered += uint64(len(raw))
	ms.mu.Unlock()

	samples := make([]float32, len(raw))
	copy(samples, raw)

	select {
	case ms.buffers <- AudioBuffer{Samples: samples, Timestamp: timestamp, SampleRate: float64(ms.sampleRate)}:
	default:
		log.Printf("capture: consumer behind, dropped %d samples", len(raw))
	}
}

// Start begins device capture.
func (ms *MicSource) Start() error {
	if ms.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	if err := ms.device.Start(); err != nil {
		return fmt.Errorf("start capture device: %w", err)
	}
	return nil
}

// Stop halts capture, releases the device and closes the buffer
// channel. Safe to call more than once.
func (ms *MicSource) Stop() error {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return nil
	}
	ms.closed = true
	ms.mu.Unlock()

	if ms.device != nil {
		ms.device.Uninit()
		ms.device = nil
	}
	if ms.ctx != nil {
		_ = ms.ctx.Uninit()
		ms.ctx.Free()
		ms.ctx = nil
	}
	close(ms.buffers)
	return nil
}

// Buffers returns the capture stream.
func (ms *MicSource) Buffers() <-chan AudioBuffer { return ms.buffers }
