package claphost

import (
	"errors"
	"testing"

	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeHandle struct {
	initErr            error
	activateErr        error
	startProcessingErr error

	calls []string

	processInputs  [][]float32
	processOutputs [][]float32
	processEvents  []clapevent.Event
	processStatus  int
	processErr     error

	audioIn, audioOut bool
	noteIn, noteOut   bool
	paramCount        uint32
	paramInfos        map[uint32]ParamInfo
	paramValues       map[uint32]float64
}

func (h *fakeHandle) Init() error {
	h.calls = append(h.calls, "init")
	return h.initErr
}
func (h *fakeHandle) Destroy() { h.calls = append(h.calls, "destroy") }
func (h *fakeHandle) Activate(sampleRate float64, minFrames, maxFrames uint32) error {
	h.calls = append(h.calls, "activate")
	return h.activateErr
}
func (h *fakeHandle) Deactivate()       { h.calls = append(h.calls, "deactivate") }
func (h *fakeHandle) StartProcessing() error {
	h.calls = append(h.calls, "start_processing")
	return h.startProcessingErr
}
func (h *fakeHandle) StopProcessing() { h.calls = append(h.calls, "stop_processing") }
func (h *fakeHandle) Reset()          { h.calls = append(h.calls, "reset") }
func (h *fakeHandle) Process(inputs, outputs [][]float32, frameCount uint32, events []clapevent.Event) (int, error) {
	h.processInputs = inputs
	h.processOutputs = outputs
	h.processEvents = events
	return h.processStatus, h.processErr
}
func (h *fakeHandle) HasAudioPort(isInput bool) bool {
	if isInput {
		return h.audioIn
	}
	return h.audioOut
}
func (h *fakeHandle) HasNotePort(isInput bool) bool {
	if isInput {
		return h.noteIn
	}
	return h.noteOut
}
func (h *fakeHandle) ParamCount() uint32 { return h.paramCount }
func (h *fakeHandle) ParamInfo(index uint32) (ParamInfo, bool) {
	info, ok := h.paramInfos[index]
	return info, ok
}
func (h *fakeHandle) ParamGetValue(id uint32) (float64, bool) {
	v, ok := h.paramValues[id]
	return v, ok
}
func (h *fakeHandle) ParamValueToText(id uint32, value float64) (string, bool) { return "", false }
func (h *fakeHandle) ParamTextToValue(id uint32, text string) (float64, bool)  { return 0, false }

type fakeOpener struct {
	handle      *fakeHandle
	openErr     error
	released    bool
	openCalled  bool
}

func (o *fakeOpener) Open(path string, pluginIndex int) (PluginHandle, func(), error) {
	o.openCalled = true
	if o.openErr != nil {
		return nil, func() {}, o.openErr
	}
	return o.handle, func() { o.released = true }, nil
}

func TestLoadRunsLadderInOrder(t *testing.T) {
	h := &fakeHandle{}
	opener := &fakeOpener{handle: h}

	inst, err := Load(opener, "/plugins/synth.clap", 0)
	require.NoError(t, err)
	require.True(t, inst.Loaded())
	require.Equal(t, []string{"init", "activate", "start_processing"}, h.calls)
	require.False(t, opener.released)
}

func TestLoadUnwindsOnActivateFailure(t *testing.T) {
	h := &fakeHandle{activateErr: errors.New("boom")}
	opener := &fakeOpener{handle: h}

	inst, err := Load(opener, "/plugins/synth.clap", 0)
	require.Error(t, err)
	require.Nil(t, inst)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "plugin.activate", loadErr.Step)

	require.Equal(t, []string{"init", "activate", "destroy"}, h.calls)
	require.True(t, opener.released)
}

func TestLoadUnwindsOnStartProcessingFailure(t *testing.T) {
	h := &fakeHandle{startProcessingErr: errors.New("boom")}
	opener := &fakeOpener{handle: h}

	_, err := Load(opener, "/plugins/synth.clap", 0)
	require.Error(t, err)
	require.Equal(t, []string{"init", "activate", "start_processing", "deactivate", "destroy"}, h.calls)
	require.True(t, opener.released)
}

func TestLoadFailsOnOpenWithoutTouchingHandle(t *testing.T) {
	opener := &fakeOpener{openErr: errors.New("dlopen failed")}
	_, err := Load(opener, "/plugins/missing.clap", 0)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "open", loadErr.Step)
}

func TestUnloadIsIdempotent(t *testing.T) {
	h := &fakeHandle{}
	opener := &fakeOpener{handle: h}
	inst, err := Load(opener, "/plugins/synth.clap", 0)
	require.NoError(t, err)

	inst.Unload()
	require.False(t, inst.Loaded())
	callsAfterFirst := append([]string{}, h.calls...)

	inst.Unload()
	require.Equal(t, callsAfterFirst, h.calls)

	goleak.VerifyNoLeaks(t)
}

func TestProcessDrainsParamQueueAfterNotes(t *testing.T) {
	h := &fakeHandle{processStatus: 1}
	opener := &fakeOpener{handle: h}
	inst, err := Load(opener, "/plugins/synth.clap", 0)
	require.NoError(t, err)

	inst.ParamQueue().EnqueueParam(5, 0.25)
	notes := []clapevent.Event{{Kind: clapevent.KindNoteOn, Key: 60}}

	status, err := inst.Process(nil, nil, 128, notes)
	require.NoError(t, err)
	require.Equal(t, 1, status)
	require.Len(t, h.processEvents, 2)
	require.Equal(t, clapevent.KindNoteOn, h.processEvents[0].Kind)
	require.Equal(t, clapevent.KindParamValue, h.processEvents[1].Kind)
	require.Equal(t, uint32(5), h.processEvents[1].ParamID)

	// the caller's notes slice must not be mutated by Process
	require.Len(t, notes, 1)
}

func TestProcessOnUnloadedInstanceErrors(t *testing.T) {
	inst := &Instance{}
	_, err := inst.Process(nil, nil, 0, nil)
	require.Error(t, err)
}
