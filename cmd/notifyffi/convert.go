package main

/*
#include <stdlib.h>
#include "ffi_api.h"
*/
import "C"

import (
	"unsafe"

	"github.com/kolide/localnotify/ee/notify/activation"
)

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// goPairs copies count pairs out of C memory. Pairs with a nil key are skipped.
func goPairs(pairs *C.StringPair, count C.int32_t) map[string]string {
	if pairs == nil || count <= 0 {
		return nil
	}

	out := make(map[string]string, int(count))
	for _, pair := range unsafe.Slice(pairs, int(count)) {
		if pair.key == nil {
			continue
		}
		out[C.GoString(pair.key)] = goString(pair.value)
	}
	return out
}

func newDetailsArray(ids []int32) *C.DetailsArray {
	array := (*C.DetailsArray)(C.calloc(1, C.size_t(unsafe.Sizeof(C.DetailsArray{}))))
	if len(ids) == 0 {
		return array
	}

	items := (*C.NotificationDetails)(C.calloc(C.size_t(len(ids)), C.size_t(unsafe.Sizeof(C.NotificationDetails{}))))
	slice := unsafe.Slice(items, len(ids))
	for i, id := range ids {
		slice[i].id = C.int32_t(id)
	}
	array.items = items
	array.count = C.int32_t(len(ids))
	return array
}

func newLaunchDetails(details activation.LaunchDetails) *C.LaunchDetails {
	out := (*C.LaunchDetails)(C.calloc(1, C.size_t(unsafe.Sizeof(C.LaunchDetails{}))))
	if details.DidLaunch {
		out.launched = 1
	}
	out.launch_type = C.int32_t(details.LaunchType)
	out.payload = C.CString(details.Payload)

	inputs := details.SortedInputs()
	if len(inputs) > 0 {
		pairs := (*C.StringPair)(C.calloc(C.size_t(len(inputs)), C.size_t(unsafe.Sizeof(C.StringPair{}))))
		slice := unsafe.Slice(pairs, len(inputs))
		for i, input := range inputs {
			slice[i].key = C.CString(input.Key)
			slice[i].value = C.CString(input.Value)
		}
		out.data = pairs
		out.data_count = C.int32_t(len(inputs))
	}
	return out
}

func freePairs(pairs *C.StringPair, count C.int32_t) {
	if pairs == nil {
		return
	}
	for _, pair := range unsafe.Slice(pairs, int(count)) {
		if pair.key != nil {
			C.free(unsafe.Pointer(pair.key))
		}
		if pair.value != nil {
			C.free(unsafe.Pointer(pair.value))
		}
	}
	C.free(unsafe.Pointer(pairs))
}
