// Command move-anything-clap is the embeddable host described by this
// module: a thin cgo boundary that exposes the synth (plugin_api_v1_t) and
// effects (audio_fx_api_v1_t / audio_fx_api_v2_t) vtables the outer signal
// chain expects, backed by pkg/generator and pkg/fx.
package main

/*
#include "bridge/bridge.h"
*/
import "C"

import (
	"unsafe"

	"github.com/charlesvestal/move-anything-clap/pkg/clapabi"
	"github.com/charlesvestal/move-anything-clap/pkg/clapdebug"
	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/charlesvestal/move-anything-clap/pkg/fx"
	"github.com/charlesvestal/move-anything-clap/pkg/generator"
	"go.uber.org/zap"
)

var (
	logger      *zap.Logger
	midiQueue   *clapevent.Queue
	generatorFX *generator.Facade
	effectsFX   *fx.Facade

	// fxV1Instance backs the legacy single-instance audio_fx_api_v1_t
	// entry point, which has no instance handle of its own.
	fxV1Instance *fx.InstanceState
)

func init() {
	l, err := clapdebug.NewLogger("/tmp/clap_fx_debug.txt")
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
	clapabi.SetHostLogSink(func(msg string) {
		logger.Info("clap plugin log", zap.String("msg", msg))
	})

	midiQueue = clapevent.NewQueue()
	loader := clapabi.NewLoader()
	opener := clapabi.NewInstanceOpener()

	generatorFX = generator.New(loader, opener, midiQueue, logger)
	effectsFX = fx.New(loader, opener, logger)
}

// writeCString copies value into buf (capacity bufLen, including room for
// the terminating NUL). It returns the number of bytes written, excluding
// the NUL, or -1 if buf is too small to hold value and its terminator.
func writeCString(value string, buf *C.char, bufLen C.int) C.int {
	if buf == nil || bufLen <= 0 {
		return -1
	}
	n := len(value)
	if n > int(bufLen)-1 {
		return -1
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufLen))
	copy(dst, value)
	dst[n] = 0
	return C.int(n)
}

//export move_plugin_init_v1
func move_plugin_init_v1(host *C.host_api_v1_t) *C.plugin_api_v1_t {
	if host == nil {
		logger.Warn("move_plugin_init_v1: called with nil host")
	}
	return C.bridge_plugin_api()
}

//export move_audio_fx_init_v1
func move_audio_fx_init_v1(host *C.host_api_v1_t) *C.audio_fx_api_v1_t {
	if host == nil {
		logger.Warn("move_audio_fx_init_v1: called with nil host")
	}
	return C.bridge_audio_fx_api_v1()
}

//export move_audio_fx_init_v2
func move_audio_fx_init_v2(host *C.host_api_v1_t) *C.audio_fx_api_v2_t {
	if host == nil {
		logger.Warn("move_audio_fx_init_v2: called with nil host")
	}
	return C.bridge_audio_fx_api_v2()
}

//export clapGoOnLoad
func clapGoOnLoad(moduleDir, jsonDefaults *C.char) C.int {
	if err := generatorFX.OnLoad(C.GoString(moduleDir), C.GoString(jsonDefaults)); err != nil {
		logger.Warn("clapGoOnLoad failed", zap.Error(err))
		return -1
	}
	return 0
}

//export clapGoOnUnload
func clapGoOnUnload() {
	generatorFX.OnUnload()
}

//export clapGoOnMIDI
func clapGoOnMIDI(msg *C.uint8_t, length C.int, source C.int) {
	if length <= 0 {
		return
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(msg)), int(length))
	generatorFX.OnMIDI(data)
}

//export clapGoSetParam
func clapGoSetParam(key, val *C.char) {
	generatorFX.Set(C.GoString(key), C.GoString(val))
}

//export clapGoGetParam
func clapGoGetParam(key *C.char, buf *C.char, bufLen C.int) C.int {
	return writeCString(generatorFX.Get(C.GoString(key)), buf, bufLen)
}

//export clapGoRenderBlock
func clapGoRenderBlock(out *C.int16_t, frames C.int) {
	n := int(frames)
	if n <= 0 {
		return
	}
	goOut := unsafe.Slice((*int16)(unsafe.Pointer(out)), n*2)
	generatorFX.RenderBlock(goOut, n)
}

//export clapGoFxV1OnLoad
func clapGoFxV1OnLoad(moduleDir, configJSON *C.char) C.int {
	if fxV1Instance != nil {
		effectsFX.DestroyInstance(fxV1Instance)
	}
	fxV1Instance = effectsFX.CreateInstance(C.GoString(moduleDir), C.GoString(configJSON))
	return 0
}

//export clapGoFxV1OnUnload
func clapGoFxV1OnUnload() {
	if fxV1Instance == nil {
		return
	}
	effectsFX.DestroyInstance(fxV1Instance)
	fxV1Instance = nil
}

//export clapGoFxV1ProcessBlock
func clapGoFxV1ProcessBlock(audioInout *C.int16_t, frames C.int) {
	n := int(frames)
	if n <= 0 || fxV1Instance == nil {
		return
	}
	block := unsafe.Slice((*int16)(unsafe.Pointer(audioInout)), n*2)
	effectsFX.ProcessBlock(fxV1Instance, block, n)
}

//export clapGoFxV1SetParam
func clapGoFxV1SetParam(key, val *C.char) {
	if fxV1Instance == nil {
		return
	}
	effectsFX.Set(fxV1Instance, C.GoString(key), C.GoString(val))
}

//export clapGoFxV1GetParam
func clapGoFxV1GetParam(key *C.char, buf *C.char, bufLen C.int) C.int {
	if fxV1Instance == nil {
		return -1
	}
	return writeCString(effectsFX.Get(fxV1Instance, C.GoString(key)), buf, bufLen)
}

//export clapGoFxCreateInstance
func clapGoFxCreateInstance(moduleDir, configJSON *C.char) unsafe.Pointer {
	st := effectsFX.CreateInstance(C.GoString(moduleDir), C.GoString(configJSON))
	return unsafe.Pointer(st)
}

//export clapGoFxDestroyInstance
func clapGoFxDestroyInstance(instance unsafe.Pointer) {
	if instance == nil {
		return
	}
	effectsFX.DestroyInstance((*fx.InstanceState)(instance))
}

//export clapGoFxProcessBlock
func clapGoFxProcessBlock(instance unsafe.Pointer, audioInout *C.int16_t, frames C.int) {
	n := int(frames)
	if n <= 0 || instance == nil {
		return
	}
	block := unsafe.Slice((*int16)(unsafe.Pointer(audioInout)), n*2)
	effectsFX.ProcessBlock((*fx.InstanceState)(instance), block, n)
}

//export clapGoFxSetParam
func clapGoFxSetParam(instance unsafe.Pointer, key, val *C.char) {
	if instance == nil {
		return
	}
	effectsFX.Set((*fx.InstanceState)(instance), C.GoString(key), C.GoString(val))
}

//export clapGoFxGetParam
func clapGoFxGetParam(instance unsafe.Pointer, key *C.char, buf *C.char, bufLen C.int) C.int {
	if instance == nil {
		return -1
	}
	return writeCString(effectsFX.Get((*fx.InstanceState)(instance), C.GoString(key)), buf, bufLen)
}

func main() {
	// Built as a shared library (-buildmode=c-shared); main is never run.
}
