// Package fx implements the multi-instance audio-FX facade: each instance
// scans its own plugin directory, selects an audio-input-capable plugin,
// and processes a stereo interleaved block in place.
package fx

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charlesvestal/move-anything-clap/pkg/clapaudio"
	"github.com/charlesvestal/move-anything-clap/pkg/clapconfig"
	"github.com/charlesvestal/move-anything-clap/pkg/clapdebug"
	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/charlesvestal/move-anything-clap/pkg/claphost"
	"github.com/charlesvestal/move-anything-clap/pkg/clapparam"
	"github.com/charlesvestal/move-anything-clap/pkg/clapscan"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// MaxCachedParams bounds the per-instance cached parameter table.
const MaxCachedParams = 32

// MaxChainParams bounds how many entries chain_params ever reports.
const MaxChainParams = 8

// chainParamsTruncateThreshold is the "remaining buffer" cutoff below
// which chain_params stops adding entries, even under MaxChainParams.
// The precise number is not a contract, only the truncate-before-overflow
// behavior is (spec.md's note on this).
const chainParamsTruncateThreshold = 100

// cachedParam is one entry of an instance's parameter metadata cache.
type cachedParam struct {
	Name string
	Key  string
	Min  float64
	Max  float64
}

// InstanceState is one FX instance's full state: which module directory it
// scans, which plugin (if any) is selected, and its parameter cache.
type InstanceState struct {
	id             string
	moduleDir      string
	pluginsScanned bool
	plugins        *clapscan.PluginList
	inst           *claphost.Instance
	selectedIndex  int
	selectedID     string
	paramCache     []cachedParam
	scratch        clapaudio.Scratch
	debugDumped    bool
}

// Facade owns the registry of live FX instances, keyed by an opaque
// handle. The handle itself is the instance pointer (the C ABI requires
// an opaque per-instance handle); xid is only used to mint an id for debug
// log lines identifying which instance a call belongs to.
type Facade struct {
	bundleOpener clapscan.BundleOpener
	instOpener   claphost.PluginOpener
	logger       *zap.Logger

	mu        sync.Mutex
	instances map[*InstanceState]struct{}
}

// New returns an empty Facade.
func New(bundleOpener clapscan.BundleOpener, instOpener claphost.PluginOpener, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		bundleOpener: bundleOpener,
		instOpener:   instOpener,
		logger:       logger,
		instances:    make(map[*InstanceState]struct{}),
	}
}

// CreateInstance allocates a new FX instance rooted at moduleDir, parses
// jsonConfig for a recognized "plugin_id" key, and loads it if present.
func (f *Facade) CreateInstance(moduleDir string, jsonConfig string) *InstanceState {
	st := &InstanceState{
		id:            xid.New().String(),
		moduleDir:     moduleDir,
		selectedIndex: -1,
	}

	f.mu.Lock()
	f.instances[st] = struct{}{}
	f.mu.Unlock()

	cfg := clapconfig.Parse(jsonConfig)
	if cfg.PluginID != "" {
		if err := f.loadByID(st, cfg.PluginID); err != nil {
			f.logger.Warn("fx: create_instance config load failed",
				zap.String("instance", st.id), zap.String("plugin_id", cfg.PluginID), zap.Error(err))
		}
	}
	return st
}

// DestroyInstance unloads st's plugin (if any) and removes it from the
// registry. Safe to call at most once per instance.
func (f *Facade) DestroyInstance(st *InstanceState) {
	if st == nil {
		return
	}
	if st.inst != nil {
		st.inst.Unload()
		st.inst = nil
	}
	f.mu.Lock()
	delete(f.instances, st)
	f.mu.Unlock()
}

func (f *Facade) pluginsDir(moduleDir string) string {
	return moduleDir + "/../../sound_generators/clap/plugins"
}

func (f *Facade) ensureScanned(st *InstanceState) {
	if st.pluginsScanned {
		return
	}
	list, err := clapscan.Scan(f.pluginsDir(st.moduleDir), f.bundleOpener, f.logger)
	if err != nil {
		f.logger.Warn("fx: scan failed", zap.String("instance", st.id), zap.Error(err))
		list = clapscan.NewPluginList()
	}
	st.plugins = list
	st.pluginsScanned = true
}

// loadByID resolves id against the scanned plugin list and loads it.
func (f *Facade) loadByID(st *InstanceState, id string) error {
	f.ensureScanned(st)
	for i := 0; i < st.plugins.Len(); i++ {
		if st.plugins.At(i).ID == id {
			return f.loadByIndex(st, i)
		}
	}
	return fmt.Errorf("fx: plugin id %q not found", id)
}

// loadByIndex loads the index'th scanned plugin, rejecting anything
// without an audio input, and caches its parameter metadata on success.
func (f *Facade) loadByIndex(st *InstanceState, index int) error {
	f.ensureScanned(st)
	if index < 0 || index >= st.plugins.Len() {
		return fmt.Errorf("fx: index %d out of range", index)
	}
	info := st.plugins.At(index)

	inst, err := claphost.Load(f.instOpener, info.Path, info.PluginIndex)
	if err != nil {
		return fmt.Errorf("fx: load failed: %w", err)
	}
	if !inst.HasAudioPort(true) {
		inst.Unload()
		return fmt.Errorf("fx: plugin %q has no audio input", info.ID)
	}

	if st.inst != nil {
		st.inst.Unload()
	}
	st.inst = inst
	st.selectedIndex = index
	st.selectedID = info.ID
	st.paramCache = cacheParams(inst)
	return nil
}

// cacheParams pulls up to MaxCachedParams parameters' name/min/max and
// derives each one's sanitized key.
func cacheParams(inst *claphost.Instance) []cachedParam {
	proxy := clapparam.New(inst)
	count := proxy.Count()
	if count > MaxCachedParams {
		count = MaxCachedParams
	}
	cache := make([]cachedParam, 0, count)
	for i := uint32(0); i < count; i++ {
		info, ok := proxy.Info(i)
		if !ok {
			continue
		}
		cache = append(cache, cachedParam{
			Name: info.Name,
			Key:  Sanitize(info.Name),
			Min:  info.MinValue,
			Max:  info.MaxValue,
		})
	}
	return cache
}

// Sanitize derives a stable, typable parameter key from a display name:
// ASCII letters are lowercased, digits pass, any run of other characters
// (space, underscore, hyphen, punctuation) between kept characters
// collapses to a single underscore (a leading or trailing run emits
// nothing), and an empty result becomes "param".
func Sanitize(name string) string {
	var b strings.Builder
	sepPending := false
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if sepPending && b.Len() > 0 {
				b.WriteByte('_')
			}
			sepPending = false
			b.WriteRune(r - 'A' + 'a')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if sepPending && b.Len() > 0 {
				b.WriteByte('_')
			}
			sepPending = false
			b.WriteRune(r)
		default:
			sepPending = true
		}
	}
	if b.Len() == 0 {
		return "param"
	}
	return b.String()
}

// ProcessBlock runs the plugin's process() on a stereo interleaved int16
// block in place. With no plugin loaded, or on a plugin process error,
// the block passes through unchanged.
func (f *Facade) ProcessBlock(st *InstanceState, block []int16, frames int) int {
	if st.inst == nil || !st.inst.Loaded() {
		return 0
	}

	st.scratch.Ensure(frames)
	clapaudio.Deinterleave(block, frames, st.scratch.InLeft, st.scratch.InRight)
	clapaudio.ZeroFloat32(st.scratch.OutLeft, frames)
	clapaudio.ZeroFloat32(st.scratch.OutRight, frames)

	inputs := [][]float32{st.scratch.InLeft[:frames], st.scratch.InRight[:frames]}
	outputs := [][]float32{st.scratch.OutLeft[:frames], st.scratch.OutRight[:frames]}

	status, err := st.inst.Process(inputs, outputs, uint32(frames), nil)
	if err != nil || status == 0 /* CLAP_PROCESS_ERROR */ {
		return -1
	}

	clapaudio.Interleave(st.scratch.OutLeft[:frames], st.scratch.OutRight[:frames], frames, block)
	f.maybeDumpDebugBlock(st, block)
	return 0
}

// maybeDumpDebugBlock writes the first processed block of an instance to a
// per-instance path for manual listening, gated by clapdebug.EnvVar and
// fired at most once per instance. Diagnostic only, not part of any
// documented contract.
func (f *Facade) maybeDumpDebugBlock(st *InstanceState, block []int16) {
	if st.debugDumped || os.Getenv(clapdebug.EnvVar) == "" {
		return
	}
	st.debugDumped = true
	path := "/tmp/clap_fx_debug_" + st.id + ".wav"
	if err := clapdebug.DumpWAV(path, block, 2, claphost.SampleRate); err != nil {
		f.logger.Warn("fx: debug wav dump failed", zap.String("instance", st.id), zap.Error(err))
	}
}

// Get implements the facade's read side control surface.
func (f *Facade) Get(st *InstanceState, key string) string {
	f.ensureScanned(st)
	switch {
	case key == "plugin_id":
		return st.selectedID
	case key == "plugin_index":
		return strconv.Itoa(st.selectedIndex)
	case key == "plugin_count":
		return strconv.Itoa(st.plugins.Len())
	case key == "plugin_name", key == "preset_name", key == "name":
		if st.inst != nil && st.inst.Loaded() && st.selectedIndex >= 0 {
			return st.plugins.At(st.selectedIndex).Name
		}
		if st.inst != nil && st.inst.Loaded() {
			return "CLAP FX"
		}
		return "None"
	case key == "chain_params":
		return f.chainParamsJSON(st)
	case key == "ui_hierarchy":
		return uiHierarchyJSON()
	case strings.HasSuffix(key, "_name") && strings.HasPrefix(key, "plugin_"):
		return f.pluginIndexedName(st, key)
	case strings.HasSuffix(key, "_label") && strings.HasPrefix(key, "param_"):
		return f.paramLabel(st, key)
	case strings.HasPrefix(key, "param_"):
		return f.paramValue(st, key)
	}
	if value, ok := f.sanitizedLookup(st, key); ok {
		return value
	}
	return ""
}

func (f *Facade) pluginIndexedName(st *InstanceState, key string) string {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(key, "_name"), "plugin_")
	index, err := strconv.Atoi(trimmed)
	if err != nil || index < 0 || index >= st.plugins.Len() {
		return ""
	}
	return st.plugins.At(index).Name
}

func (f *Facade) paramLabel(st *InstanceState, key string) string {
	index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, "param_"), "_label"))
	if err != nil {
		return ""
	}
	if index >= 0 && index < len(st.paramCache) {
		return st.paramCache[index].Name
	}
	if info, ok := clapparam.New(st.inst).Info(uint32(index)); ok {
		return info.Name
	}
	return fmt.Sprintf("Param %d", index)
}

func (f *Facade) paramValue(st *InstanceState, key string) string {
	index, err := strconv.Atoi(strings.TrimPrefix(key, "param_"))
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(clapparam.New(st.inst).Get(uint32(index)), 'g', -1, 64)
}

func (f *Facade) sanitizedLookup(st *InstanceState, key string) (string, bool) {
	for i, p := range st.paramCache {
		if p.Key == key {
			return strconv.FormatFloat(clapparam.New(st.inst).Get(uint32(i)), 'g', -1, 64), true
		}
	}
	return "", false
}

// Set implements the facade's write side control surface.
func (f *Facade) Set(st *InstanceState, key, value string) {
	switch {
	case key == "plugin_id":
		_ = f.loadByID(st, value)
	case key == "plugin_index":
		index, err := strconv.Atoi(value)
		if err == nil {
			_ = f.loadByIndex(st, index)
		}
	case strings.HasPrefix(key, "param_") && !strings.HasSuffix(key, "_label"):
		index, err := strconv.Atoi(strings.TrimPrefix(key, "param_"))
		if err != nil {
			return
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		clapparam.New(st.inst).Set(uint32(index), v)
	default:
		for i, p := range st.paramCache {
			if p.Key == key {
				v, err := strconv.ParseFloat(value, 64)
				if err == nil {
					clapparam.New(st.inst).Set(uint32(i), v)
				}
				return
			}
		}
	}
}

// chainParamEntry is the JSON shape of one chain_params array element.
type chainParamEntry struct {
	Key  string  `json:"key"`
	Name string  `json:"name"`
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// chainParamsJSON builds the up-to-8-entry chain_params array, stopping
// early if a hypothetical remaining-buffer budget would drop below the
// truncation threshold — built incrementally with encoding/json per
// entry rather than a single Marshal, so that budget check is meaningful.
func (f *Facade) chainParamsJSON(st *InstanceState) string {
	var b strings.Builder
	b.WriteByte('[')
	remaining := 4096 - 2 // a generous notional buffer; only the shape of
	// the truncation check is contractual, not this constant.
	count := 0
	for i, p := range st.paramCache {
		if count >= MaxChainParams {
			break
		}
		entry := chainParamEntry{
			Key:  fmt.Sprintf("param_%d", i),
			Name: p.Name,
			Type: "float",
			Min:  p.Min,
			Max:  p.Max,
		}
		encoded, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		extra := len(encoded)
		if count > 0 {
			extra++ // separating comma
		}
		if remaining-extra < chainParamsTruncateThreshold {
			break
		}
		if count > 0 {
			b.WriteByte(',')
		}
		b.Write(encoded)
		remaining -= extra
		count++
	}
	b.WriteByte(']')
	return b.String()
}

// uiHierarchyLevel mirrors the fixed single-level layout every instance
// reports under its "root" key.
type uiHierarchyLevel struct {
	ListParam  string   `json:"list_param"`
	CountParam string   `json:"count_param"`
	NameParam  string   `json:"name_param"`
	Children   *string  `json:"children"`
	Knobs      []string `json:"knobs"`
	Params     []string `json:"params"`
}

// uiHierarchyEntry is the top-level ui_hierarchy document: a null mode
// list and a single "root" level keyed by name, not an array element.
type uiHierarchyEntry struct {
	Modes  *string                     `json:"modes"`
	Levels map[string]uiHierarchyLevel `json:"levels"`
}

func uiHierarchyJSON() string {
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("param_%d", i)
	}
	doc := uiHierarchyEntry{
		Modes: nil,
		Levels: map[string]uiHierarchyLevel{
			"root": {
				ListParam:  "plugin_index",
				CountParam: "plugin_count",
				NameParam:  "plugin_name",
				Children:   nil,
				Knobs:      names,
				Params:     names,
			},
		},
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
