package clapparam

import (
	"testing"

	"github.com/charlesvestal/move-anything-clap/pkg/claphost"
	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	infos  map[uint32]claphost.ParamInfo
	values map[uint32]float64
}

func (h *fakeHandle) Init() error                                            { return nil }
func (h *fakeHandle) Destroy()                                               {}
func (h *fakeHandle) Activate(sampleRate float64, minFrames, maxFrames uint32) error { return nil }
func (h *fakeHandle) Deactivate()                                            {}
func (h *fakeHandle) StartProcessing() error                                 { return nil }
func (h *fakeHandle) StopProcessing()                                        {}
func (h *fakeHandle) Reset()                                                 {}
func (h *fakeHandle) Process(inputs, outputs [][]float32, frameCount uint32, events []clapevent.Event) (int, error) {
	return 1, nil
}
func (h *fakeHandle) HasAudioPort(isInput bool) bool { return true }
func (h *fakeHandle) HasNotePort(isInput bool) bool  { return true }
func (h *fakeHandle) ParamCount() uint32             { return uint32(len(h.infos)) }
func (h *fakeHandle) ParamInfo(index uint32) (claphost.ParamInfo, bool) {
	info, ok := h.infos[index]
	return info, ok
}
func (h *fakeHandle) ParamGetValue(id uint32) (float64, bool) {
	v, ok := h.values[id]
	return v, ok
}
func (h *fakeHandle) ParamValueToText(id uint32, value float64) (string, bool) { return "", false }
func (h *fakeHandle) ParamTextToValue(id uint32, text string) (float64, bool)  { return 0, false }

type fakeOpener struct{ handle *fakeHandle }

func (o *fakeOpener) Open(path string, pluginIndex int) (claphost.PluginHandle, func(), error) {
	return o.handle, func() {}, nil
}

func newTestInstance(t *testing.T, h *fakeHandle) *claphost.Instance {
	t.Helper()
	inst, err := claphost.Load(&fakeOpener{handle: h}, "/fake.clap", 0)
	require.NoError(t, err)
	return inst
}

func TestProxyOnNilInstanceDegradesSafely(t *testing.T) {
	p := New(nil)
	require.Equal(t, uint32(0), p.Count())
	_, ok := p.Info(0)
	require.False(t, ok)
	require.Equal(t, 0.0, p.Get(0))
	p.Set(0, 1.0) // must not panic
}

func TestProxyGetFallsBackToDefaultWhenValueAbsent(t *testing.T) {
	h := &fakeHandle{
		infos: map[uint32]claphost.ParamInfo{
			0: {ID: 7, Name: "Cutoff", MinValue: 0, MaxValue: 1, DefaultValue: 0.75},
		},
		values: map[uint32]float64{},
	}
	inst := newTestInstance(t, h)
	p := New(inst)

	require.Equal(t, uint32(1), p.Count())
	require.Equal(t, 0.75, p.Get(0))

	h.values[7] = 0.2
	require.Equal(t, 0.2, p.Get(0))
}

func TestProxySetEnqueuesResolvedID(t *testing.T) {
	h := &fakeHandle{
		infos: map[uint32]claphost.ParamInfo{
			0: {ID: 42, Name: "Resonance"},
		},
	}
	inst := newTestInstance(t, h)
	p := New(inst)

	p.Set(0, 0.5)
	events := inst.ParamQueue().Drain()
	require.Len(t, events, 1)
	require.Equal(t, uint32(42), events[0].ParamID)
	require.Equal(t, 0.5, events[0].Value)
}
