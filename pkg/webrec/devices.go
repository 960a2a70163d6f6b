package webrec

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice represents an audio device
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefault         bool
	IsInput           bool
	IsOutput          bool
	HostAPI           string
}

// AudioDeviceManager lists and tests PortAudio devices.
type AudioDeviceManager struct {
	mu      sync.RWMutex
	devices []AudioDevice
	logger  *RecorderLogger
}

func NewAudioDeviceManager() *AudioDeviceManager {
	return &AudioDeviceManager{
		devices: make([]AudioDevice, 0),
		logger:  GetGlobalLogger().WithComponent("AudioDeviceManager"),
	}
}

// Initialize initializes PortAudio and reads the device list. Pair with Cleanup.
func (adm *AudioDeviceManager) Initialize() error {
	adm.mu.Lock()
	defer adm.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		adm.logger.WithError(err).Error("Failed to initialize PortAudio")
		return err
	}

	if err := adm.refreshDevices(); err != nil {
		adm.logger.WithError(err).Error("Failed to refresh device list")
		return err
	}

	adm.logger.WithField("device_count", len(adm.devices)).Debug("Audio device manager initialized")
	return nil
}

func (adm *AudioDeviceManager) Cleanup() {
	adm.mu.Lock()
	defer adm.mu.Unlock()

	if err := portaudio.Terminate(); err != nil {
		adm.logger.WithError(err).Error("Failed to terminate PortAudio")
	}
}

func (adm *AudioDeviceManager) refreshDevices() error {
	adm.devices = make([]AudioDevice, 0)

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		adm.logger.WithError(err).Warn("No default input device")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	for i, dev := range devices {
		hostAPIName := "Unknown"
		if dev.HostApi != nil {
			hostAPIName = dev.HostApi.Name
		}

		adm.devices = append(adm.devices, AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         defaultInput != nil && dev == defaultInput,
			IsInput:           dev.MaxInputChannels > 0,
			IsOutput:          dev.MaxOutputChannels > 0,
			HostAPI:           hostAPIName,
		})
	}

	return nil
}

// GetDevices returns all available audio devices
func (adm *AudioDeviceManager) GetDevices() []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	devices := make([]AudioDevice, len(adm.devices))
	copy(devices, adm.devices)
	return devices
}

// GetInputDevices returns all input devices
func (adm *AudioDeviceManager) GetInputDevices() []AudioDevice {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	inputDevices := make([]AudioDevice, 0)
	for _, device := range adm.devices {
		if device.IsInput {
			inputDevices = append(inputDevices, device)
		}
	}
	return inputDevices
}

func (adm *AudioDeviceManager) GetDeviceByID(id int) (*AudioDevice, error) {
	adm.mu.RLock()
	defer adm.mu.RUnlock()

	for _, device := range adm.devices {
		if device.ID == id {
			return &device, nil
		}
	}
	return nil, fmt.Errorf("device with ID %d not found", id)
}

// ValidateDevice checks that a device can serve as a microphone with the
// given layout.
func (adm *AudioDeviceManager) ValidateDevice(deviceID, channels int, sampleRate float64) error {
	device, err := adm.GetDeviceByID(deviceID)
	if err != nil {
		return err
	}

	if !device.IsInput {
		return fmt.Errorf("device '%s' is not an input device", device.Name)
	}
	if device.MaxInputChannels < channels {
		return fmt.Errorf("device '%s' supports max %d input channels, requested %d",
			device.Name, device.MaxInputChannels, channels)
	}

	if sampleRate > 0 && device.DefaultSampleRate > 0 {
		ratio := sampleRate / device.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			adm.logger.WithFields(map[string]interface{}{
				"device_name":           device.Name,
				"device_sample_rate":    device.DefaultSampleRate,
				"requested_sample_rate": sampleRate,
			}).Warn("Sample rate significantly different from device default")
		}
	}

	return nil
}

// GetDeviceInfo returns formatted device information
func (adm *AudioDeviceManager) GetDeviceInfo(deviceID int) (string, error) {
	device, err := adm.GetDeviceByID(deviceID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n", device.Name)
	fmt.Fprintf(&sb, "  ID: %d\n", device.ID)
	fmt.Fprintf(&sb, "  Host API: %s\n", device.HostAPI)
	fmt.Fprintf(&sb, "  Input Channels: %d\n", device.MaxInputChannels)
	fmt.Fprintf(&sb, "  Output Channels: %d\n", device.MaxOutputChannels)
	fmt.Fprintf(&sb, "  Default Sample Rate: %.1f Hz\n", device.DefaultSampleRate)
	fmt.Fprintf(&sb, "  Is Default Input: %v\n", device.IsDefault)
	return sb.String(), nil
}

// TestDevice records from a device for the given duration and reports the
// peak level seen. Initialize must have been called.
func (adm *AudioDeviceManager) TestDevice(deviceID int, sampleRate float64, duration time.Duration) (float32, error) {
	if err := adm.ValidateDevice(deviceID, 1, sampleRate); err != nil {
		return 0, err
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return 0, err
	}
	if deviceID >= len(devices) {
		return 0, fmt.Errorf("device with ID %d not found", deviceID)
	}

	params := portaudio.LowLatencyParameters(devices[deviceID], nil)
	params.Input.Channels = 1
	params.SampleRate = sampleRate

	var mu sync.Mutex
	var peak float32
	monitor := CreateAudioLevelMonitor(func(_, maxLevel float32) {
		mu.Lock()
		if maxLevel > peak {
			peak = maxLevel
		}
		mu.Unlock()
	})

	stream, err := portaudio.OpenStream(params, func(in []int16) { monitor(in) })
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return 0, err
	}
	time.Sleep(duration)
	if err := stream.Stop(); err != nil {
		adm.logger.WithError(err).Warn("Failed to stop test stream")
	}

	mu.Lock()
	defer mu.Unlock()
	adm.logger.WithFields(map[string]interface{}{
		"device_id": deviceID,
		"peak":      peak,
	}).Info("Device test completed")
	return peak, nil
}

// ListInputDevices is a one-shot helper that initializes PortAudio, lists
// the input devices and terminates again.
func ListInputDevices() ([]AudioDevice, error) {
	dm := NewAudioDeviceManager()
	if err := dm.Initialize(); err != nil {
		return nil, err
	}
	defer dm.Cleanup()
	return dm.GetInputDevices(), nil
}
