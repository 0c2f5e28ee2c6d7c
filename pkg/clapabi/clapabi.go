// Package clapabi is the only package in this module allowed to touch CLAP's
// C ABI directly. cgo mints a distinct Go type for every C struct per
// compilation unit, so any code that needs to share those types lives here;
// everything outside this package talks to a *Plugin through plain Go types
// and the claphost.PluginHandle interface it satisfies structurally.
package clapabi

/*
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>
#include <string.h>
#include "include/clap_mini.h"
#include "include/host_glue.h"

const clap_host_t *clapmini_get_host(void);
const clap_input_events_t *clapmini_empty_input_events(void);
const clap_output_events_t *clapmini_sink_output_events(void);
void clapmini_init_event_list(clap_input_events_t *list, clapmini_event_list_ctx_t *ctx);

static const clap_plugin_entry_t *clapmini_cast_entry(void *sym) {
    return (const clap_plugin_entry_t *)sym;
}

static const clap_plugin_factory_t *clapmini_cast_factory(const void *p) {
    return (const clap_plugin_factory_t *)p;
}

static uint32_t clapmini_factory_count(const clap_plugin_factory_t *f) {
    return f->get_plugin_count(f);
}

static const clap_plugin_descriptor_t *clapmini_factory_descriptor(const clap_plugin_factory_t *f, uint32_t idx) {
    return f->get_plugin_descriptor(f, idx);
}

static const clap_plugin_t *clapmini_factory_create(const clap_plugin_factory_t *f, const clap_host_t *host, const char *id) {
    return f->create_plugin(f, host, id);
}

static bool clapmini_plugin_init(const clap_plugin_t *p) { return p->init(p); }
static void clapmini_plugin_destroy(const clap_plugin_t *p) { p->destroy(p); }
static bool clapmini_plugin_activate(const clap_plugin_t *p, double sr, uint32_t minf, uint32_t maxf) {
    return p->activate(p, sr, minf, maxf);
}
static void clapmini_plugin_deactivate(const clap_plugin_t *p) { p->deactivate(p); }
static bool clapmini_plugin_start_processing(const clap_plugin_t *p) { return p->start_processing(p); }
static void clapmini_plugin_stop_processing(const clap_plugin_t *p) { p->stop_processing(p); }
static void clapmini_plugin_reset(const clap_plugin_t *p) { p->reset(p); }

static clap_process_status clapmini_plugin_process(const clap_plugin_t *p, const clap_process_t *proc) {
    return p->process(p, proc);
}

static const void *clapmini_plugin_get_extension(const clap_plugin_t *p, const char *id) {
    return p->get_extension(p, id);
}

static uint32_t clapmini_params_count(const clap_plugin_params_t *params, const clap_plugin_t *p) {
    return params->count(p);
}

static bool clapmini_params_get_info(const clap_plugin_params_t *params, const clap_plugin_t *p, uint32_t index, clap_param_info_t *out) {
    return params->get_info(p, index, out);
}

static bool clapmini_params_get_value(const clap_plugin_params_t *params, const clap_plugin_t *p, uint32_t id, double *out) {
    return params->get_value(p, id, out);
}

static bool clapmini_params_value_to_text(const clap_plugin_params_t *params, const clap_plugin_t *p, uint32_t id, double value, char *buf, uint32_t size) {
    return params->value_to_text(p, id, value, buf, size);
}

static bool clapmini_params_text_to_value(const clap_plugin_params_t *params, const clap_plugin_t *p, uint32_t id, const char *text, double *out) {
    return params->text_to_value(p, id, text, out);
}

static void clapmini_build_audio_buffer(clap_audio_buffer_t *buf, float **data32, uint32_t channels) {
    buf->data32 = data32;
    buf->data64 = NULL;
    buf->channel_count = channels;
    buf->latency = 0;
    buf->constant_mask = 0;
}

static uint32_t clapmini_audio_ports_count(const clap_plugin_audio_ports_t *ext, const clap_plugin_t *p, bool is_input) {
    return ext->count(p, is_input);
}

static uint32_t clapmini_note_ports_count(const clap_plugin_note_ports_t *ext, const clap_plugin_t *p, bool is_input) {
    return ext->count(p, is_input);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/charlesvestal/move-anything-clap/pkg/claphost"
	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/charlesvestal/move-anything-clap/pkg/clapscan"
	"golang.org/x/sys/unix"
)

// mainThread records the OS thread id observed on the first scan/load call,
// the same heuristic the original used (there is no portable "is this the
// thread that called init" check without pinning goroutines).
var (
	mainThreadOnce sync.Once
	mainThreadID   int
)

func recordMainThread() {
	mainThreadOnce.Do(func() {
		mainThreadID = unix.Gettid()
	})
}

func isMainThreadNow() bool {
	return unix.Gettid() == mainThreadID
}

var hostLogSink func(string)

// SetHostLogSink installs the function the exported clap.log trampoline
// forwards plugin log messages to. Passing nil discards them.
func SetHostLogSink(fn func(string)) {
	hostLogSink = fn
}

//export clapabiGoHostLog
func clapabiGoHostLog(msg *C.char) {
	if hostLogSink != nil {
		hostLogSink(C.GoString(msg))
	}
}

//export clapabiGoHostIsMainThread
func clapabiGoHostIsMainThread() C.bool {
	return C.bool(isMainThreadNow())
}

// Library is a loaded shared object holding a plugin bundle. Scanning opens
// every .clap file with dlopen and releases it again once its descriptors
// have been copied out; loading keeps the handle open for the instance's
// lifetime.
type Library struct {
	handle unsafe.Pointer
	path   string
}

// OpenLibrary dlopens path. now=false selects RTLD_LAZY (cheap, used for
// scanning); now=true selects RTLD_NOW (used right before an instance is
// actually created).
func OpenLibrary(path string, now bool) (*Library, error) {
	recordMainThread()
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	flags := C.int(C.RTLD_LOCAL | C.RTLD_LAZY)
	if now {
		flags = C.int(C.RTLD_LOCAL | C.RTLD_NOW)
	}
	h := C.dlopen(cpath, flags)
	if h == nil {
		return nil, fmt.Errorf("clapabi: dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	return &Library{handle: h, path: path}, nil
}

// Close releases the shared object. Safe to call once.
func (l *Library) Close() error {
	if l == nil || l.handle == nil {
		return nil
	}
	if rc := C.dlclose(l.handle); rc != 0 {
		return fmt.Errorf("clapabi: dlclose %s: %s", l.path, C.GoString(C.dlerror()))
	}
	l.handle = nil
	return nil
}

func (l *Library) symbol(name string) (unsafe.Pointer, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.dlsym(l.handle, cname)
	if sym == nil {
		return nil, fmt.Errorf("clapabi: %s: symbol %s not found", l.path, name)
	}
	return sym, nil
}

// Entry is the dlsym'd clap_entry of a bundle, after init() has succeeded.
type Entry struct {
	lib *Library
	ptr *C.clap_plugin_entry_t
}

// OpenEntry resolves and initializes the bundle's clap_entry symbol.
func OpenEntry(lib *Library) (*Entry, error) {
	sym, err := lib.symbol("clap_entry")
	if err != nil {
		return nil, err
	}
	ptr := C.clapmini_cast_entry(sym)
	cpath := C.CString(lib.path)
	defer C.free(unsafe.Pointer(cpath))
	if ptr.init == nil || !bool(ptr.init(cpath)) {
		return nil, fmt.Errorf("clapabi: %s: clap_entry.init failed", lib.path)
	}
	return &Entry{lib: lib, ptr: ptr}, nil
}

// Deinit calls clap_entry.deinit. Must be the last call made against this
// bundle's entry.
func (e *Entry) Deinit() {
	if e.ptr != nil && e.ptr.deinit != nil {
		e.ptr.deinit()
	}
}

// Factory resolves the plugin factory from an initialized entry.
func (e *Entry) Factory() (*Factory, error) {
	cid := C.CString(C.CLAP_PLUGIN_FACTORY_ID)
	defer C.free(unsafe.Pointer(cid))
	raw := e.ptr.get_factory(cid)
	if raw == nil {
		return nil, fmt.Errorf("clapabi: %s: no plugin factory", e.lib.path)
	}
	return &Factory{ptr: C.clapmini_cast_factory(raw)}, nil
}

// Factory wraps clap_plugin_factory_t.
type Factory struct {
	ptr *C.clap_plugin_factory_t
}

// Count returns the number of plugins this factory publishes.
func (f *Factory) Count() int {
	return int(C.clapmini_factory_count(f.ptr))
}

// Descriptor is a Go copy of clap_plugin_descriptor_t's string fields; it
// outlives the C struct it was read from.
type Descriptor struct {
	ID          string
	Name        string
	Vendor      string
	Version     string
	Description string
	Features    []string
}

// Descriptor copies out the index'th plugin descriptor.
func (f *Factory) Descriptor(index int) (Descriptor, error) {
	d := C.clapmini_factory_descriptor(f.ptr, C.uint32_t(index))
	if d == nil {
		return Descriptor{}, fmt.Errorf("clapabi: no descriptor at index %d", index)
	}
	desc := Descriptor{
		ID:          C.GoString(d.id),
		Name:        C.GoString(d.name),
		Vendor:      C.GoString(d.vendor),
		Version:     C.GoString(d.version),
		Description: C.GoString(d.description),
	}
	if d.features != nil {
		for i := 0; ; i++ {
			fp := (*C.char)((*[1 << 20]*C.char)(unsafe.Pointer(d.features))[i])
			if fp == nil {
				break
			}
			desc.Features = append(desc.Features, C.GoString(fp))
		}
	}
	return desc, nil
}

// Create instantiates the plugin with descriptor id against the singleton
// host vtable.
func (f *Factory) Create(id string) (*Plugin, error) {
	cid := C.CString(id)
	defer C.free(unsafe.Pointer(cid))
	raw := C.clapmini_factory_create(f.ptr, C.clapmini_get_host(), cid)
	if raw == nil {
		return nil, fmt.Errorf("clapabi: create_plugin(%s) returned NULL", id)
	}
	return &Plugin{ptr: raw}, nil
}

// Plugin wraps a live clap_plugin_t. It implements claphost.PluginHandle
// and clapscan.TransientPlugin; claphost and clapscan never import this
// package, only the other way around, via the Loader/InstanceOpener
// adapters below.
type Plugin struct {
	ptr    *C.clap_plugin_t
	params *C.clap_plugin_params_t
}

// Init calls clap_plugin_t.init.
func (p *Plugin) Init() error {
	if !bool(C.clapmini_plugin_init(p.ptr)) {
		return fmt.Errorf("clapabi: plugin init failed")
	}
	p.params = (*C.clap_plugin_params_t)(p.getExtension(C.CLAP_EXT_PARAMS))
	return nil
}

// Destroy calls clap_plugin_t.destroy. The handle must not be used again.
func (p *Plugin) Destroy() {
	C.clapmini_plugin_destroy(p.ptr)
	p.ptr = nil
}

func (p *Plugin) getExtension(id string) unsafe.Pointer {
	cid := C.CString(id)
	defer C.free(unsafe.Pointer(cid))
	return unsafe.Pointer(C.clapmini_plugin_get_extension(p.ptr, cid))
}

// Activate calls clap_plugin_t.activate.
func (p *Plugin) Activate(sampleRate float64, minFrames, maxFrames uint32) error {
	if !bool(C.clapmini_plugin_activate(p.ptr, C.double(sampleRate), C.uint32_t(minFrames), C.uint32_t(maxFrames))) {
		return fmt.Errorf("clapabi: plugin activate failed")
	}
	return nil
}

// Deactivate calls clap_plugin_t.deactivate.
func (p *Plugin) Deactivate() {
	C.clapmini_plugin_deactivate(p.ptr)
}

// StartProcessing calls clap_plugin_t.start_processing.
func (p *Plugin) StartProcessing() error {
	if !bool(C.clapmini_plugin_start_processing(p.ptr)) {
		return fmt.Errorf("clapabi: start_processing failed")
	}
	return nil
}

// StopProcessing calls clap_plugin_t.stop_processing.
func (p *Plugin) StopProcessing() {
	C.clapmini_plugin_stop_processing(p.ptr)
}

// Reset calls clap_plugin_t.reset.
func (p *Plugin) Reset() {
	C.clapmini_plugin_reset(p.ptr)
}

// HasAudioPort reports whether the plugin declares at least one audio port
// in the given direction. Returns false if the plugin doesn't serve the
// audio-ports extension.
func (p *Plugin) HasAudioPort(isInput bool) bool {
	ext := p.getExtension(C.CLAP_EXT_AUDIO_PORTS)
	if ext == nil {
		return false
	}
	count := C.clapmini_audio_ports_count((*C.clap_plugin_audio_ports_t)(ext), p.ptr, C.bool(isInput))
	return count > 0
}

// HasNotePort reports whether the plugin declares at least one note (MIDI)
// port in the given direction. Returns false if the plugin doesn't serve
// the note-ports extension.
func (p *Plugin) HasNotePort(isInput bool) bool {
	ext := p.getExtension(C.CLAP_EXT_NOTE_PORTS)
	if ext == nil {
		return false
	}
	count := C.clapmini_note_ports_count((*C.clap_plugin_note_ports_t)(ext), p.ptr, C.bool(isInput))
	return count > 0
}

// ParamCount calls clap.params.count, or 0 if the plugin doesn't serve the
// extension.
func (p *Plugin) ParamCount() uint32 {
	if p.params == nil {
		return 0
	}
	return uint32(C.clapmini_params_count(p.params, p.ptr))
}

// ParamInfo calls clap.params.get_info for the index'th parameter.
func (p *Plugin) ParamInfo(index uint32) (claphost.ParamInfo, bool) {
	if p.params == nil {
		return claphost.ParamInfo{}, false
	}
	var raw C.clap_param_info_t
	if !bool(C.clapmini_params_get_info(p.params, p.ptr, C.uint32_t(index), &raw)) {
		return claphost.ParamInfo{}, false
	}
	return claphost.ParamInfo{
		ID:           uint32(raw.id),
		Name:         C.GoString((*C.char)(unsafe.Pointer(&raw.name[0]))),
		MinValue:     float64(raw.min_value),
		MaxValue:     float64(raw.max_value),
		DefaultValue: float64(raw.default_value),
	}, true
}

// ParamGetValue calls clap.params.get_value.
func (p *Plugin) ParamGetValue(id uint32) (float64, bool) {
	if p.params == nil {
		return 0, false
	}
	var v C.double
	if !bool(C.clapmini_params_get_value(p.params, p.ptr, C.uint32_t(id), &v)) {
		return 0, false
	}
	return float64(v), true
}

// ParamValueToText calls clap.params.value_to_text.
func (p *Plugin) ParamValueToText(id uint32, value float64) (string, bool) {
	if p.params == nil {
		return "", false
	}
	buf := make([]C.char, 256)
	if !bool(C.clapmini_params_value_to_text(p.params, p.ptr, C.uint32_t(id), C.double(value), &buf[0], C.uint32_t(len(buf)))) {
		return "", false
	}
	return C.GoString(&buf[0]), true
}

// ParamTextToValue calls clap.params.text_to_value.
func (p *Plugin) ParamTextToValue(id uint32, text string) (float64, bool) {
	if p.params == nil {
		return 0, false
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	var v C.double
	if !bool(C.clapmini_params_text_to_value(p.params, p.ptr, C.uint32_t(id), ctext, &v)) {
		return 0, false
	}
	return float64(v), true
}

// RawEvent is the minimal shape clapevent.Event marshals to before crossing
// into C: a pre-sized byte buffer holding one of the clap_event_* structs,
// whose first bytes are always a clap_event_header_t.
type RawEvent struct {
	Bytes []byte
}

const (
	// EventTypeNoteOn and friends mirror the CLAP_EVENT_* constants so
	// callers outside this package never need to import the C header.
	EventTypeNoteOn     = uint16(C.CLAP_EVENT_NOTE_ON)
	EventTypeNoteOff    = uint16(C.CLAP_EVENT_NOTE_OFF)
	EventTypeParamValue = uint16(C.CLAP_EVENT_PARAM_VALUE)
)

// bytesFromCStruct copies the raw memory of a C struct pointer into a Go
// byte slice. The struct's first member must be a clap_event_header_t for
// the result to be usable as a RawEvent.
func bytesFromCStruct(ptr unsafe.Pointer, size uintptr) []byte {
	buf := make([]byte, size)
	copy(buf, unsafe.Slice((*byte)(ptr), size))
	return buf
}

// EncodeNoteEvent builds a clap_event_note_t for a note-on/off at the given
// sample-relative time and returns its raw bytes.
func EncodeNoteEvent(eventType uint16, timeOffset uint32, key, channel int16, velocity float64) RawEvent {
	ev := C.clap_event_note_t{
		header: C.clap_event_header_t{
			size:     C.uint32_t(unsafe.Sizeof(C.clap_event_note_t{})),
			time:     C.uint32_t(timeOffset),
			space_id: C.CLAP_CORE_EVENT_SPACE_ID,
			type_:    C.uint16_t(eventType),
			flags:    0,
		},
		note_id:     -1,
		port_index:  0,
		channel:     C.int16_t(channel),
		key:         C.int16_t(key),
		velocity:    C.double(velocity),
	}
	return RawEvent{Bytes: bytesFromCStruct(unsafe.Pointer(&ev), unsafe.Sizeof(ev))}
}

// EncodeParamValueEvent builds a clap_event_param_value_t targeting paramID
// and returns its raw bytes.
func EncodeParamValueEvent(paramID uint32, value float64, timeOffset uint32) RawEvent {
	ev := C.clap_event_param_value_t{
		header: C.clap_event_header_t{
			size:     C.uint32_t(unsafe.Sizeof(C.clap_event_param_value_t{})),
			time:     C.uint32_t(timeOffset),
			space_id: C.CLAP_CORE_EVENT_SPACE_ID,
			type_:    C.uint16_t(C.CLAP_EVENT_PARAM_VALUE),
			flags:    0,
		},
		param_id:   C.uint32_t(paramID),
		cookie:     nil,
		note_id:    -1,
		port_index: -1,
		channel:    -1,
		key:        -1,
		value:      C.double(value),
	}
	return RawEvent{Bytes: bytesFromCStruct(unsafe.Pointer(&ev), unsafe.Sizeof(ev))}
}

// Process calls clap_plugin_t.process for one audio block. events is
// translated to raw CLAP event structs and handed to the plugin via the
// C-side clapmini_event_list adapter so heterogeneous event structs
// (different sizes, shared header) can be walked without per-event cgo
// exports. inputs/outputs may each be nil or empty to mean "no audio ports
// this direction".
func (p *Plugin) Process(inputs, outputs [][]float32, frameCount uint32, events []clapevent.Event) (int, error) {
	inPtrs, inCount, inCleanup := channelPointers(inputs)
	defer inCleanup()
	outPtrs, outCount, outCleanup := channelPointers(outputs)
	defer outCleanup()

	var inBuf, outBuf C.clap_audio_buffer_t
	if inCount > 0 {
		C.clapmini_build_audio_buffer(&inBuf, inPtrs, C.uint32_t(inCount))
	}
	if outCount > 0 {
		C.clapmini_build_audio_buffer(&outBuf, outPtrs, C.uint32_t(outCount))
	}

	raw := make([]RawEvent, 0, len(events))
	for _, ev := range events {
		encoded := encodeEvent(ev)
		if len(encoded.Bytes) > 0 {
			raw = append(raw, encoded)
		}
	}
	inEvents, eventsCleanup := buildInputEvents(raw)
	defer eventsCleanup()

	proc := C.clap_process_t{
		steady_time:  -1,
		frames_count: C.uint32_t(frameCount),
		in_events:    inEvents,
		out_events:   C.clapmini_sink_output_events(),
	}
	if inCount > 0 {
		proc.audio_inputs = &inBuf
		proc.audio_inputs_count = 1
	}
	if outCount > 0 {
		proc.audio_outputs = &outBuf
		proc.audio_outputs_count = 1
	}

	status := C.clapmini_plugin_process(p.ptr, &proc)
	return int(status), nil
}

// encodeEvent translates one clapevent.Event into its raw CLAP struct
// bytes. All events carry time = 0 (start of block); sample-accurate
// timing within a block is explicitly not a goal.
func encodeEvent(ev clapevent.Event) RawEvent {
	switch ev.Kind {
	case clapevent.KindNoteOn:
		return EncodeNoteEvent(EventTypeNoteOn, 0, ev.Key, ev.Channel, ev.Velocity)
	case clapevent.KindNoteOff:
		return EncodeNoteEvent(EventTypeNoteOff, 0, ev.Key, ev.Channel, ev.Velocity)
	case clapevent.KindParamValue:
		return EncodeParamValueEvent(ev.ParamID, ev.Value, 0)
	default:
		return RawEvent{}
	}
}

// channelPointers pins each channel's backing array and returns a
// C-owned array of raw float32 pointers cgo can hand to
// clap_audio_buffer_t.data32, plus the channel count and a cleanup
// func that unpins and frees it.
//
// The array of pointers must itself live in C memory: a Go slice of
// *C.float values pointing into the Go heap is a Go pointer to Go
// memory that contains Go pointers, which cgo's pointer checks
// (cgocheck=1, the default) reject at the call boundary.
func channelPointers(channels [][]float32) (**C.float, int, func()) {
	if len(channels) == 0 {
		return nil, 0, func() {}
	}
	arr := (**C.float)(C.malloc(C.size_t(len(channels)) * C.size_t(unsafe.Sizeof((*C.float)(nil)))))
	slice := unsafe.Slice(arr, len(channels))

	var pinner runtime.Pinner
	for i, ch := range channels {
		if len(ch) == 0 {
			slice[i] = nil
			continue
		}
		pinner.Pin(&ch[0])
		slice[i] = (*C.float)(unsafe.Pointer(&ch[0]))
	}

	cleanup := func() {
		pinner.Unpin()
		C.free(unsafe.Pointer(arr))
	}
	return arr, len(channels), cleanup
}

// buildInputEvents marshals a []RawEvent into a live clap_input_events_t
// backed by a C-owned array of header pointers, reinterpreting each
// event's byte buffer as its header (always the struct's first member).
//
// As with channelPointers, the pointer array has to be C memory: ctx's
// headers field is only safe to populate with Go pointers (each one
// bare, pointing at memory with no further pointers inside it) once the
// array holding them is no longer itself Go memory. ctx and list are
// C-malloc'd too, not Go-allocated: list ends up reachable from
// clap_process_t.in_events at the Process call site, and a Go-allocated
// list holding a Go-allocated ctx would reintroduce the same nested
// Go-pointer-to-Go-pointer shape one level further out.
func buildInputEvents(events []RawEvent) (*C.clap_input_events_t, func()) {
	if len(events) == 0 {
		return C.clapmini_empty_input_events(), func() {}
	}

	headers := (**C.clap_event_header_t)(C.malloc(C.size_t(len(events)) * C.size_t(unsafe.Sizeof((*C.clap_event_header_t)(nil)))))
	headerSlice := unsafe.Slice(headers, len(events))

	var pinner runtime.Pinner
	for i, ev := range events {
		pinner.Pin(&ev.Bytes[0])
		headerSlice[i] = (*C.clap_event_header_t)(unsafe.Pointer(&ev.Bytes[0]))
	}

	ctx := (*C.clapmini_event_list_ctx_t)(C.malloc(C.size_t(unsafe.Sizeof(C.clapmini_event_list_ctx_t{}))))
	ctx.headers = headers
	ctx.count = C.uint32_t(len(events))

	list := (*C.clap_input_events_t)(C.malloc(C.size_t(unsafe.Sizeof(C.clap_input_events_t{}))))
	C.clapmini_init_event_list(list, ctx)

	cleanup := func() {
		pinner.Unpin()
		C.free(unsafe.Pointer(headers))
		C.free(unsafe.Pointer(ctx))
		C.free(unsafe.Pointer(list))
	}
	return list, cleanup
}

// Loader is the production clapscan.BundleOpener: dlopen with lazy binding
// (cheap, appropriate for scanning many bundles), resolve clap_entry,
// init it, and obtain the plugin factory.
type Loader struct{}

// NewLoader returns a Loader ready to use.
func NewLoader() *Loader { return &Loader{} }

type scanBundle struct {
	lib     *Library
	entry   *Entry
	factory *Factory
}

// Open implements clapscan.BundleOpener.
func (l *Loader) Open(path string) (clapscan.Bundle, error) {
	lib, err := OpenLibrary(path, false)
	if err != nil {
		return nil, err
	}
	entry, err := OpenEntry(lib)
	if err != nil {
		lib.Close()
		return nil, err
	}
	factory, err := entry.Factory()
	if err != nil {
		entry.Deinit()
		lib.Close()
		return nil, err
	}
	return &scanBundle{lib: lib, entry: entry, factory: factory}, nil
}

func (b *scanBundle) PluginCount() int {
	return b.factory.Count()
}

func (b *scanBundle) Descriptor(index int) (clapscan.Descriptor, error) {
	d, err := b.factory.Descriptor(index)
	if err != nil {
		return clapscan.Descriptor{}, err
	}
	return clapscan.Descriptor{ID: d.ID, Name: d.Name, Vendor: d.Vendor}, nil
}

func (b *scanBundle) CreateTransient(index int) (clapscan.TransientPlugin, error) {
	d, err := b.factory.Descriptor(index)
	if err != nil {
		return nil, err
	}
	return b.factory.Create(d.ID)
}

func (b *scanBundle) Close() {
	b.entry.Deinit()
	b.lib.Close()
}

// InstanceOpener is the production claphost.PluginOpener: dlopen with
// eager binding (a real instance is about to be driven, unlike a scan),
// resolve clap_entry, init it, obtain the factory, the descriptor at
// pluginIndex, and create_plugin.
type InstanceOpener struct{}

// NewInstanceOpener returns an InstanceOpener ready to use.
func NewInstanceOpener() *InstanceOpener { return &InstanceOpener{} }

// Open implements claphost.PluginOpener.
func (o *InstanceOpener) Open(path string, pluginIndex int) (claphost.PluginHandle, func(), error) {
	lib, err := OpenLibrary(path, true)
	if err != nil {
		return nil, nil, err
	}
	entry, err := OpenEntry(lib)
	if err != nil {
		lib.Close()
		return nil, nil, err
	}
	factory, err := entry.Factory()
	if err != nil {
		entry.Deinit()
		lib.Close()
		return nil, nil, err
	}
	desc, err := factory.Descriptor(pluginIndex)
	if err != nil {
		entry.Deinit()
		lib.Close()
		return nil, nil, err
	}
	plugin, err := factory.Create(desc.ID)
	if err != nil {
		entry.Deinit()
		lib.Close()
		return nil, nil, err
	}

	release := func() {
		entry.Deinit()
		lib.Close()
	}
	return plugin, release, nil
}
