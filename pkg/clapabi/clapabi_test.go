package clapabi

/*
#include "include/clap_mini.h"

static uint32_t clapmini_test_list_size(const clap_input_events_t *list) {
    return list->size(list);
}

static const clap_event_header_t *clapmini_test_list_get(const clap_input_events_t *list, uint32_t idx) {
    return list->get(list, idx);
}
*/
import "C"

import (
	"testing"
	"unsafe"

	"github.com/charlesvestal/move-anything-clap/pkg/clapevent"
	"github.com/stretchr/testify/require"
)

func TestEncodeNoteEventLayout(t *testing.T) {
	raw := EncodeNoteEvent(EventTypeNoteOn, 7, 60, 2, 0.9)
	require.Len(t, raw.Bytes, int(unsafe.Sizeof(C.clap_event_note_t{})))

	hdr := (*C.clap_event_header_t)(unsafe.Pointer(&raw.Bytes[0]))
	require.Equal(t, C.uint32_t(unsafe.Sizeof(C.clap_event_note_t{})), hdr.size)
	require.Equal(t, C.uint32_t(7), hdr.time)
	require.Equal(t, C.uint16_t(C.CLAP_CORE_EVENT_SPACE_ID), hdr.space_id)
	require.Equal(t, C.uint16_t(EventTypeNoteOn), hdr.type_)

	note := (*C.clap_event_note_t)(unsafe.Pointer(&raw.Bytes[0]))
	require.Equal(t, C.int32_t(-1), note.note_id)
	require.Equal(t, C.int16_t(2), note.channel)
	require.Equal(t, C.int16_t(60), note.key)
	require.InDelta(t, 0.9, float64(note.velocity), 1e-9)
}

func TestEncodeNoteEventOffUsesNoteOffType(t *testing.T) {
	raw := EncodeNoteEvent(EventTypeNoteOff, 0, 10, 0, 0)
	hdr := (*C.clap_event_header_t)(unsafe.Pointer(&raw.Bytes[0]))
	require.Equal(t, C.uint16_t(EventTypeNoteOff), hdr.type_)
}

func TestEncodeParamValueEventLayout(t *testing.T) {
	raw := EncodeParamValueEvent(42, 0.25, 3)
	require.Len(t, raw.Bytes, int(unsafe.Sizeof(C.clap_event_param_value_t{})))

	hdr := (*C.clap_event_header_t)(unsafe.Pointer(&raw.Bytes[0]))
	require.Equal(t, C.uint32_t(3), hdr.time)
	require.Equal(t, C.uint16_t(EventTypeParamValue), hdr.type_)

	ev := (*C.clap_event_param_value_t)(unsafe.Pointer(&raw.Bytes[0]))
	require.Equal(t, C.uint32_t(42), ev.param_id)
	require.Equal(t, C.int16_t(-1), ev.port_index)
	require.Equal(t, C.int16_t(-1), ev.channel)
	require.Equal(t, C.int16_t(-1), ev.key)
	require.InDelta(t, 0.25, float64(ev.value), 1e-9)
}

func TestEncodeEventDispatchesByKind(t *testing.T) {
	on := encodeEvent(clapevent.Event{Kind: clapevent.KindNoteOn, Key: 5})
	require.NotEmpty(t, on.Bytes)

	off := encodeEvent(clapevent.Event{Kind: clapevent.KindNoteOff, Key: 5})
	require.NotEmpty(t, off.Bytes)

	pv := encodeEvent(clapevent.Event{Kind: clapevent.KindParamValue, ParamID: 1})
	require.NotEmpty(t, pv.Bytes)

	other := encodeEvent(clapevent.Event{Kind: clapevent.Kind(99)})
	require.Empty(t, other.Bytes)
}

func TestChannelPointersPinsChannelData(t *testing.T) {
	chans := [][]float32{{1, 2, 3}, {4, 5, 6}}
	ptrs, n, cleanup := channelPointers(chans)
	defer cleanup()

	require.NotNil(t, ptrs)
	require.Equal(t, 2, n)

	arr := unsafe.Slice(ptrs, n)
	require.Equal(t, float32(1), float32(*arr[0]))
	require.Equal(t, float32(4), float32(*arr[1]))
}

func TestChannelPointersEmptyIsNoop(t *testing.T) {
	ptrs, n, cleanup := channelPointers(nil)
	defer cleanup()
	require.Nil(t, ptrs)
	require.Equal(t, 0, n)
}

func TestBuildInputEventsRoundTrips(t *testing.T) {
	raw := []RawEvent{EncodeNoteEvent(EventTypeNoteOn, 0, 60, 0, 1.0)}
	list, cleanup := buildInputEvents(raw)
	defer cleanup()

	require.Equal(t, C.uint32_t(1), C.clapmini_test_list_size(list))
	hdr := C.clapmini_test_list_get(list, 0)
	require.NotNil(t, hdr)
	require.Equal(t, C.uint16_t(EventTypeNoteOn), hdr.type_)
}

func TestBuildInputEventsEmptyReturnsSharedEmptyList(t *testing.T) {
	list, cleanup := buildInputEvents(nil)
	defer cleanup()
	require.Equal(t, C.uint32_t(0), C.clapmini_test_list_size(list))
}
