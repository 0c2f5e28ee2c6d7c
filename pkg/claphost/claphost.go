// Package claphost drives a single plugin instance through the CLAP
// activation ladder (init -> activate -> start_processing -> ... ->
// stop_processing -> deactivate -> destroy). It is pure Go: every call
// against a live plugin goes through the PluginHandle interface, so the
// ladder and its unwind-on-failure behavior are unit testable without cgo.
package claphost

import (
	"fmt"

	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
)

const (
	// SampleRate is the fixed sample rate every instance activates at.
	SampleRate = 44100
	// MinFrames is the minimum block size passed to activate.
	MinFrames = 1
	// MaxFrames is the maximum block size passed to activate.
	MaxFrames = 4096
)

// ParamInfo mirrors the subset of clap_param_info_t this host exposes.
type ParamInfo struct {
	ID           uint32
	Name         string
	MinValue     float64
	MaxValue     float64
	DefaultValue float64
}

// PluginHandle is everything claphost needs from a live clap_plugin_t. The
// production implementation is *clapabi.Plugin; tests substitute a fake.
type PluginHandle interface {
	Init() error
	Destroy()
	Activate(sampleRate float64, minFrames, maxFrames uint32) error
	Deactivate()
	StartProcessing() error
	StopProcessing()
	Reset()
	Process(inputs, outputs [][]float32, frameCount uint32, events []clapevent.Event) (int, error)
	HasAudioPort(isInput bool) bool
	HasNotePort(isInput bool) bool
	ParamCount() uint32
	ParamInfo(index uint32) (ParamInfo, bool)
	ParamGetValue(id uint32) (float64, bool)
	ParamValueToText(id uint32, value float64) (string, bool)
	ParamTextToValue(id uint32, text string) (float64, bool)
}

// PluginOpener performs the first six steps of the load ladder (dlopen,
// resolve clap_entry, entry.init, obtain factory, obtain descriptor at
// pluginIndex, create_plugin) and returns a not-yet-initialized
// PluginHandle plus a release func that undoes the library-level steps
// (entry.deinit, then dlclose). The created plugin itself is released by
// handle.Destroy, which the caller runs before release. release must be
// safe to call even if the caller never calls handle.Init.
type PluginOpener interface {
	Open(path string, pluginIndex int) (PluginHandle, func(), error)
}

// LoadError wraps the ladder step that failed along with the underlying
// error, so callers can distinguish "which step" without string matching.
type LoadError struct {
	Step string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("claphost: %s: %v", e.Step, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Instance is a loaded, driven plugin: activated and processing, ready for
// Process/Param calls, with its own parameter write queue.
type Instance struct {
	handle      PluginHandle
	release     func()
	activated   bool
	processing  bool
	params      *clapevent.ParamQueue
}

// Load runs the full nine-step ladder against opener and returns a ready
// Instance. On any failure every successful prior step is unwound (in
// reverse order) before returning a *LoadError.
func Load(opener PluginOpener, path string, pluginIndex int) (*Instance, error) {
	handle, release, err := opener.Open(path, pluginIndex)
	if err != nil {
		return nil, &LoadError{Step: "open", Err: err}
	}

	unwind := []func(){release, handle.Destroy}
	fail := func(step string, err error) (*Instance, error) {
		for i := len(unwind) - 1; i >= 0; i-- {
			unwind[i]()
		}
		return nil, &LoadError{Step: step, Err: err}
	}

	if err := handle.Init(); err != nil {
		return fail("plugin.init", err)
	}

	if err := handle.Activate(SampleRate, MinFrames, MaxFrames); err != nil {
		return fail("plugin.activate", err)
	}
	unwind = append(unwind, handle.Deactivate)

	if err := handle.StartProcessing(); err != nil {
		return fail("plugin.start_processing", err)
	}

	return &Instance{
		handle:     handle,
		release:    release,
		activated:  true,
		processing: true,
		params:     clapevent.NewParamQueue(),
	}, nil
}

// Unload stops, deactivates, destroys, and releases the instance, zeroing
// its fields so a second call is a safe no-op.
func (inst *Instance) Unload() {
	if inst == nil || inst.handle == nil {
		return
	}
	if inst.processing {
		inst.handle.StopProcessing()
		inst.processing = false
	}
	if inst.activated {
		inst.handle.Deactivate()
		inst.activated = false
	}
	inst.handle.Destroy()
	if inst.release != nil {
		inst.release()
	}
	inst.handle = nil
	inst.release = nil
	inst.params = nil
}

// Loaded reports whether this instance currently wraps a live plugin.
func (inst *Instance) Loaded() bool {
	return inst != nil && inst.handle != nil
}

// HasAudioPort delegates to the underlying handle.
func (inst *Instance) HasAudioPort(isInput bool) bool {
	if !inst.Loaded() {
		return false
	}
	return inst.handle.HasAudioPort(isInput)
}

// HasNotePort delegates to the underlying handle.
func (inst *Instance) HasNotePort(isInput bool) bool {
	if !inst.Loaded() {
		return false
	}
	return inst.handle.HasNotePort(isInput)
}

// ParamQueue exposes the instance's pending parameter-write queue so
// callers (clapparam.Proxy) can enqueue writes.
func (inst *Instance) ParamQueue() *clapevent.ParamQueue {
	return inst.params
}

// Handle exposes the raw PluginHandle for direct param/process calls.
func (inst *Instance) Handle() PluginHandle {
	return inst.handle
}

// Process runs one audio block through the plugin, draining this
// instance's pending parameter writes (concatenated after notes, per the
// event marshaller's ordering contract) into the event list.
func (inst *Instance) Process(inputs, outputs [][]float32, frameCount uint32, notes []clapevent.Event) (int, error) {
	if !inst.Loaded() {
		return 0, fmt.Errorf("claphost: process called on unloaded instance")
	}
	paramWrites := inst.params.Drain()
	events := make([]clapevent.Event, 0, len(notes)+len(paramWrites))
	events = append(events, notes...)
	events = append(events, paramWrites...)
	return inst.handle.Process(inputs, outputs, frameCount, events)
}
