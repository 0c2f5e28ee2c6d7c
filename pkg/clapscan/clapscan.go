// Package clapscan discovers CLAP plugin bundles on disk. It is pure Go:
// the directory walk, cap/growth bookkeeping, and port classification are
// all exercised against a BundleOpener, so they're unit testable without
// dlopen.
package clapscan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// augmentLibraryPath prepends dir to LD_LIBRARY_PATH so plugins that bundle
// sibling shared libraries resolve at dlopen time. Called once per Scan;
// repeated scans of the same directory keep prepending (idempotence is not
// guaranteed, matching the documented environment-variable contract).
func augmentLibraryPath(dir string) {
	current := os.Getenv("LD_LIBRARY_PATH")
	if current == "" {
		os.Setenv("LD_LIBRARY_PATH", dir)
		return
	}
	os.Setenv("LD_LIBRARY_PATH", dir+string(os.PathListSeparator)+current)
}

// MaxPlugins is the hard cap on PluginList size.
const MaxPlugins = 64

// initialCapacity is the doubling-growth starting point (16 -> 32 -> 64).
const initialCapacity = 16

// PluginInfo is one discovered plugin: which bundle it came from, its
// descriptor identity, and the port flags the scanner derived from a
// transient instantiation.
type PluginInfo struct {
	ID          string
	Name        string
	Vendor      string
	Path        string
	PluginIndex int
	HasAudioIn  bool
	HasAudioOut bool
	HasMIDIIn   bool
	HasMIDIOut  bool
}

// PluginList is an ordered, capped collection of discovered plugins. Growth
// doubles from an initial capacity of 16 up to the hard cap of 64.
type PluginList struct {
	items []PluginInfo
}

// NewPluginList returns an empty list pre-sized to initialCapacity.
func NewPluginList() *PluginList {
	return &PluginList{items: make([]PluginInfo, 0, initialCapacity)}
}

// Len returns the number of discovered plugins.
func (l *PluginList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// At returns the i'th plugin. Panics if out of range, matching slice
// semantics — callers are expected to check Len first.
func (l *PluginList) At(i int) PluginInfo {
	return l.items[i]
}

// All returns every discovered plugin, in append order.
func (l *PluginList) All() []PluginInfo {
	if l == nil {
		return nil
	}
	return l.items
}

// Sort orders the list by (Path, PluginIndex) — the stable ordering tests
// use when asserting against directory-iteration order, which is itself
// filesystem-dependent and not otherwise guaranteed.
func (l *PluginList) Sort() {
	sort.Slice(l.items, func(i, j int) bool {
		if l.items[i].Path != l.items[j].Path {
			return l.items[i].Path < l.items[j].Path
		}
		return l.items[i].PluginIndex < l.items[j].PluginIndex
	})
}

// append adds info if the list has not yet hit MaxPlugins, growing the
// backing array by doubling (respecting the 16->32->64 schedule) rather
// than Go's default append growth. Returns false if the cap was hit.
func (l *PluginList) append(info PluginInfo) bool {
	if len(l.items) >= MaxPlugins {
		return false
	}
	if len(l.items) == cap(l.items) {
		next := cap(l.items) * 2
		if next > MaxPlugins {
			next = MaxPlugins
		}
		grown := make([]PluginInfo, len(l.items), next)
		copy(grown, l.items)
		l.items = grown
	}
	l.items = append(l.items, info)
	return true
}

// Descriptor is the subset of a factory-published plugin descriptor the
// scanner needs to build a PluginInfo.
type Descriptor struct {
	ID     string
	Name   string
	Vendor string
}

// TransientPlugin is the short-lived instantiate-query-destroy handle the
// scanner uses to classify a descriptor's audio/MIDI port directions.
type TransientPlugin interface {
	Init() error
	Destroy()
	HasAudioPort(isInput bool) bool
	HasNotePort(isInput bool) bool
}

// Bundle is one opened .clap shared object, still holding its library,
// entry, and factory handles until Close.
type Bundle interface {
	PluginCount() int
	Descriptor(index int) (Descriptor, error)
	CreateTransient(index int) (TransientPlugin, error)
	Close()
}

// BundleOpener opens a .clap file at path far enough to enumerate its
// descriptors; the production implementation is clapabi.Loader.
type BundleOpener interface {
	Open(path string) (Bundle, error)
}

// Scan walks dir for entries whose name ends in ".clap", opens each with
// opener, and copies out every published descriptor into a capped
// PluginList, classifying audio/MIDI port directions via a transient
// instantiate-query-destroy. Per-bundle failures are logged and skipped;
// the overall scan only fails if dir itself could not be read.
func Scan(dir string, opener BundleOpener, logger *zap.Logger) (*PluginList, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	augmentLibraryPath(dir)

	list := NewPluginList()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".clap") {
			continue
		}
		if list.Len() >= MaxPlugins {
			break
		}
		path := filepath.Join(dir, entry.Name())
		scanBundle(path, opener, list, logger)
	}
	return list, nil
}

func scanBundle(path string, opener BundleOpener, list *PluginList, logger *zap.Logger) {
	bundle, err := opener.Open(path)
	if err != nil {
		logger.Warn("clapscan: skipping bundle", zap.String("path", path), zap.Error(err))
		return
	}
	defer bundle.Close()

	count := bundle.PluginCount()
	for i := 0; i < count; i++ {
		if list.Len() >= MaxPlugins {
			return
		}
		desc, err := bundle.Descriptor(i)
		if err != nil {
			logger.Warn("clapscan: skipping descriptor", zap.String("path", path), zap.Int("index", i), zap.Error(err))
			continue
		}

		info := PluginInfo{
			ID:          desc.ID,
			Name:        desc.Name,
			Vendor:      desc.Vendor,
			Path:        path,
			PluginIndex: i,
		}

		plugin, err := bundle.CreateTransient(i)
		if err != nil {
			logger.Warn("clapscan: create_plugin failed, recording without port info",
				zap.String("path", path), zap.Int("index", i), zap.Error(err))
			list.append(info)
			continue
		}
		if err := plugin.Init(); err == nil {
			info.HasAudioIn = plugin.HasAudioPort(true)
			info.HasAudioOut = plugin.HasAudioPort(false)
			info.HasMIDIIn = plugin.HasNotePort(true)
			info.HasMIDIOut = plugin.HasNotePort(false)
		}
		plugin.Destroy()
		list.append(info)
	}
}
