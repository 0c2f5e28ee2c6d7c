// Package generator implements the sound-generator facade: a single
// process-wide instance that scans a module's plugins directory, drives
// whichever synth plugin is selected, and renders audio-out-only blocks
// from queued MIDI.
package generator

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/charlesvestal/move-anything-clap/pkg/clapaudio"
	"github.com/charlesvestal/move-anything-clap/pkg/clapdebug"
	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/charlesvestal/move-anything-clap/pkg/claphost"
	"github.com/charlesvestal/move-anything-clap/pkg/clapparam"
	"github.com/charlesvestal/move-anything-clap/pkg/clapscan"
	"go.uber.org/zap"
)

// errOutOfRange reports a select-by-index call outside [0, count).
var errOutOfRange = errors.New("generator: index out of range")

const (
	minOctaveTranspose = -2
	maxOctaveTranspose = 2
)

// State is the generator facade's process-wide state, named after
// spec.md §3's "Generator State".
type State struct {
	ModuleDir        string
	Plugins          *clapscan.PluginList
	Instance         *claphost.Instance
	SelectedIndex    int
	OctaveTranspose  int
	ParamBank        int
	scratch          clapaudio.Scratch
}

// Facade drives one process-wide generator State against a BundleOpener
// and PluginOpener pair (production: clapabi.Loader / clapabi.InstanceOpener).
type Facade struct {
	bundleOpener clapscan.BundleOpener
	instOpener   claphost.PluginOpener
	midi         *clapevent.Queue
	logger       *zap.Logger

	state       State
	debugDumped bool
}

// New returns a Facade with an empty State. bundleOpener and instOpener are
// injected so the scan/load logic can be exercised against fakes in tests.
func New(bundleOpener clapscan.BundleOpener, instOpener claphost.PluginOpener, midi *clapevent.Queue, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		bundleOpener: bundleOpener,
		instOpener:   instOpener,
		midi:         midi,
		logger:       logger,
		state:        State{SelectedIndex: -1},
	}
}

// OnLoad scans {moduleDir}/plugins and auto-selects + loads plugin index 0
// if any were found. jsonDefaults is accepted for ABI symmetry with the FX
// facade's create_instance but carries no recognized keys for the
// generator today.
func (f *Facade) OnLoad(moduleDir string, jsonDefaults string) error {
	if f.state.Instance != nil {
		f.state.Instance.Unload()
	}
	f.state = State{ModuleDir: moduleDir, SelectedIndex: -1}

	list, err := clapscan.Scan(moduleDir+"/plugins", f.bundleOpener, f.logger)
	if err != nil {
		f.logger.Warn("generator: scan failed", zap.String("dir", moduleDir), zap.Error(err))
		list = clapscan.NewPluginList()
	}
	f.state.Plugins = list

	if list.Len() > 0 {
		if err := f.selectIndex(0); err != nil {
			f.logger.Warn("generator: auto-select failed", zap.Error(err))
		}
	}
	return nil
}

// OnUnload tears down the currently loaded plugin, if any.
func (f *Facade) OnUnload() {
	if f.state.Instance != nil {
		f.state.Instance.Unload()
	}
	f.state = State{SelectedIndex: -1}
}

func (f *Facade) selectIndex(index int) error {
	if index < 0 || index >= f.state.Plugins.Len() {
		return errOutOfRange
	}
	if f.state.Instance != nil {
		f.state.Instance.Unload()
		f.state.Instance = nil
	}
	info := f.state.Plugins.At(index)
	inst, err := claphost.Load(f.instOpener, info.Path, info.PluginIndex)
	if err != nil {
		f.logger.Warn("generator: load failed", zap.String("path", info.Path), zap.Error(err))
		f.state.SelectedIndex = -1
		return err
	}
	f.state.Instance = inst
	f.state.SelectedIndex = index
	return nil
}

// OnMIDI enqueues one 1-3 byte raw MIDI message onto the process-wide MIDI
// queue, applying the generator's octave transpose to note-on/off
// messages before they're queued.
func (f *Facade) OnMIDI(msg []byte) {
	if len(msg) < 1 {
		return
	}
	transposed := applyTranspose(msg, f.state.OctaveTranspose)
	f.midi.EnqueueMIDI(transposed, len(transposed))
}

func applyTranspose(msg []byte, octaves int) []byte {
	if len(msg) < 2 {
		return msg
	}
	status := msg[0] & 0xF0
	if status != 0x90 && status != 0x80 {
		return msg
	}
	key := int(msg[1]) + 12*octaves
	if key < 0 {
		key = 0
	} else if key > 127 {
		key = 127
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	out[1] = byte(key)
	return out
}

// RenderBlock deinterleaves nothing (the generator has no audio input),
// runs one process() call against the selected plugin, and interleaves
// the result back to int16. If no plugin is loaded, out is filled with
// silence.
func (f *Facade) RenderBlock(out []int16, frames int) int {
	f.state.scratch.Ensure(frames)
	clapaudio.ZeroInt16(out)

	if f.state.Instance == nil || !f.state.Instance.Loaded() || !f.state.Instance.HasAudioPort(false) {
		return 0
	}

	clapaudio.ZeroFloat32(f.state.scratch.OutLeft, frames)
	clapaudio.ZeroFloat32(f.state.scratch.OutRight, frames)

	notes := f.midi.DrainMIDI()
	outputs := [][]float32{f.state.scratch.OutLeft[:frames], f.state.scratch.OutRight[:frames]}
	status, err := f.state.Instance.Process(nil, outputs, uint32(frames), notes)
	if err != nil || status == 0 /* CLAP_PROCESS_ERROR */ {
		clapaudio.ZeroInt16(out)
		return -1
	}

	clapaudio.Interleave(f.state.scratch.OutLeft[:frames], f.state.scratch.OutRight[:frames], frames, out)
	f.maybeDumpDebugBlock(out)
	return 0
}

// maybeDumpDebugBlock writes the first rendered block to a fixed path for
// manual listening, gated by clapdebug.EnvVar and fired at most once per
// process. Diagnostic only, not part of any documented contract.
func (f *Facade) maybeDumpDebugBlock(block []int16) {
	if f.debugDumped || os.Getenv(clapdebug.EnvVar) == "" {
		return
	}
	f.debugDumped = true
	if err := clapdebug.DumpWAV("/tmp/clap_generator_debug.wav", block, 2, claphost.SampleRate); err != nil {
		f.logger.Warn("generator: debug wav dump failed", zap.Error(err))
	}
}

// Get implements the facade's read-only control-surface keys.
func (f *Facade) Get(key string) string {
	switch {
	case key == "plugin_count":
		return strconv.Itoa(f.state.Plugins.Len())
	case key == "selected_plugin":
		return strconv.Itoa(f.state.SelectedIndex)
	case key == "current_plugin_name":
		if f.state.Instance != nil && f.state.Instance.Loaded() && f.state.SelectedIndex >= 0 {
			return f.state.Plugins.At(f.state.SelectedIndex).Name
		}
		return "None"
	case key == "octave_transpose":
		return strconv.Itoa(f.state.OctaveTranspose)
	case key == "param_bank":
		return strconv.Itoa(f.state.ParamBank)
	case key == "param_count":
		return strconv.Itoa(int(clapparam.New(f.state.Instance).Count()))
	case strings.HasPrefix(key, "plugin_name_"):
		return f.indexedPluginField(key, "plugin_name_", func(info clapscan.PluginInfo) string { return info.Name })
	case strings.HasPrefix(key, "plugin_id_"):
		return f.indexedPluginField(key, "plugin_id_", func(info clapscan.PluginInfo) string { return info.ID })
	case strings.HasPrefix(key, "param_name_"):
		return f.paramName(key, "param_name_")
	case strings.HasPrefix(key, "param_value_"):
		return f.paramValue(key, "param_value_")
	}
	return ""
}

func (f *Facade) indexedPluginField(key, prefix string, field func(clapscan.PluginInfo) string) string {
	index, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil || index < 0 || index >= f.state.Plugins.Len() {
		return ""
	}
	return field(f.state.Plugins.At(index))
}

func (f *Facade) paramName(key, prefix string) string {
	index, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil {
		return ""
	}
	info, ok := clapparam.New(f.state.Instance).Info(uint32(index))
	if !ok {
		return ""
	}
	return info.Name
}

func (f *Facade) paramValue(key, prefix string) string {
	index, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(clapparam.New(f.state.Instance).Get(uint32(index)), 'g', -1, 64)
}

// Set implements the facade's writable control-surface keys.
func (f *Facade) Set(key, value string) {
	switch {
	case key == "selected_plugin":
		index, err := strconv.Atoi(value)
		if err != nil || index < 0 || index >= f.state.Plugins.Len() || index == f.state.SelectedIndex {
			return
		}
		_ = f.selectIndex(index)
	case key == "refresh":
		_ = f.OnLoad(f.state.ModuleDir, "")
	case key == "octave_transpose":
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if n < minOctaveTranspose {
			n = minOctaveTranspose
		} else if n > maxOctaveTranspose {
			n = maxOctaveTranspose
		}
		f.state.OctaveTranspose = n
	case key == "param_bank":
		n, err := strconv.Atoi(value)
		if err == nil {
			f.state.ParamBank = n
		}
	case strings.HasPrefix(key, "param_"):
		index, err := strconv.Atoi(strings.TrimPrefix(key, "param_"))
		if err != nil {
			return
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		clapparam.New(f.state.Instance).Set(uint32(index), v)
	}
}
