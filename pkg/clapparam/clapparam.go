// Package clapparam is a thin read/write proxy over a claphost.Instance's
// parameter extension, translating index-based UI access into the
// id-based calls the plugin's params extension actually exposes.
package clapparam

import "github.com/charlesvestal/move-anything-clap/pkg/claphost"

// Proxy wraps a *claphost.Instance with the operations spec.md's parameter
// proxy component names.
type Proxy struct {
	inst *claphost.Instance
}

// New returns a Proxy over inst. inst may be nil or unloaded; every
// operation degrades to the "extension absent" behavior in that case.
func New(inst *claphost.Instance) *Proxy {
	return &Proxy{inst: inst}
}

// Count returns the plugin's parameter count, or 0 if no plugin is loaded
// or it doesn't serve the params extension.
func (p *Proxy) Count() uint32 {
	if !p.inst.Loaded() {
		return 0
	}
	return p.inst.Handle().ParamCount()
}

// Info returns the index'th parameter's display name, min, max, and
// default value.
func (p *Proxy) Info(index uint32) (claphost.ParamInfo, bool) {
	if !p.inst.Loaded() {
		return claphost.ParamInfo{}, false
	}
	return p.inst.Handle().ParamInfo(index)
}

// Get returns the index'th parameter's live value: get_info to resolve
// the id, then get_value. Falls back to the parameter's default value if
// get_value reports absent, and to 0.0 if the extension itself is absent.
func (p *Proxy) Get(index uint32) float64 {
	if !p.inst.Loaded() {
		return 0.0
	}
	info, ok := p.inst.Handle().ParamInfo(index)
	if !ok {
		return 0.0
	}
	if value, ok := p.inst.Handle().ParamGetValue(info.ID); ok {
		return value
	}
	return info.DefaultValue
}

// Set resolves the index'th parameter's id and enqueues a write to the
// instance's parameter queue. It has no failure result: when the queue is
// full the write is dropped silently — writes are lossy by policy, never
// blocking the audio thread.
func (p *Proxy) Set(index uint32, value float64) {
	if !p.inst.Loaded() {
		return
	}
	info, ok := p.inst.Handle().ParamInfo(index)
	if !ok {
		return
	}
	p.inst.ParamQueue().EnqueueParam(info.ID, value)
}
