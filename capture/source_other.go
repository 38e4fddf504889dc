//go:build !linux

package capture

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) NewCapture(streamID string, cfg Config) (Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate

	if name := monitorSourceName(streamID); name != "" {
		if id, err := m.findPlayback(name); err == nil {
			deviceConfig.Capture.DeviceID = id.Pointer()
		}
	}

	mc := &malgoCapture{}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb := mc.callback.Load()
			if cb != nil {
				(*cb)(data, frameCount)
			}
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}
	mc.device = dev
	return mc, nil
}

// findPlayback resolves a stream id against playback devices: loopback
// capture records what a playback device is emitting.
func (m *malgoContext) findPlayback(name string) (malgo.DeviceID, error) {
	devices, err := m.ctx.Devices(malgo.Playback)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("malgo devices: %w", err)
	}
	for _, d := range devices {
		id := hex.EncodeToString(d.ID.Pointer()[:])
		if id == name || strings.Contains(strings.ToLower(d.Name()), strings.ToLower(name)) {
			return d.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("no playback device matches %q", name)
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoCapture struct {
	device   *malgo.Device
	callback atomic.Pointer[DataCallback]
}

func (c *malgoCapture) Start() error {
	return c.device.Start()
}

func (c *malgoCapture) Stop() {
	c.device.Stop()
}

func (c *malgoCapture) Close() {
	c.device.Uninit()
}

func (c *malgoCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *malgoCapture) ClearCallback() {
	c.callback.Store(nil)
}
