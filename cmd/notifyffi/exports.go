package main

/*
#include <stdlib.h>
#include "ffi_api.h"
*/
import "C"

import (
	"context"
	"runtime/cgo"
	"time"
	"unsafe"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/localnotify/ee/notify/activation"
	"github.com/kolide/localnotify/ee/notify/plugin"
	"github.com/kolide/localnotify/ee/notify/toaster"
)

//export createPlugin
func createPlugin(rootDirectory *C.char) C.uintptr_t {
	fp, err := newFFIPlugin(goString(rootDirectory))
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(fp))
}

//export disposePlugin
func disposePlugin(h C.uintptr_t) {
	fp, err := lookup(uintptr(h))
	if err != nil {
		return
	}
	fp.dispose()
	cgo.Handle(uintptr(h)).Delete()
}

//export initPlugin
func initPlugin(h C.uintptr_t, appName, aumid, guid, iconPath, iconBgColor *C.char, callback C.notification_callback, userData unsafe.Pointer) C.int32_t {
	fp, err := lookup(uintptr(h))
	if err != nil {
		return C.int32_t(statusFor(err))
	}
	p, err := fp.core()
	if err != nil {
		return C.int32_t(statusFor(err))
	}

	err = p.Initialize(context.Background(), plugin.Config{
		AppName:   goString(appName),
		AUMID:     goString(aumid),
		GUID:      goString(guid),
		IconPath:  goString(iconPath),
		IconColor: goString(iconBgColor),
	})
	if err != nil {
		level.Error(fp.logger).Log("msg", "initializing", "err", err)
		return C.int32_t(statusFor(err))
	}

	if callback != nil {
		// userData is the caller's; it is only ever handed back to callback.
		user := uintptr(userData)
		p.OnNotificationResponse(func(details activation.LaunchDetails) {
			cDetails := newLaunchDetails(details)
			defer freeLaunchDetails(cDetails)
			C.invokeNotificationCallback(callback, unsafe.Pointer(user), cDetails) // nolint:govet
		})
	}

	return C.int32_t(statusOK)
}

//export showNotification
func showNotification(h C.uintptr_t, id C.int32_t, xml, group *C.char, bindings *C.StringPair, bindingCount C.int32_t) C.int32_t {
	p, err := corePlugin(h)
	if err != nil {
		return C.int32_t(statusFor(err))
	}
	err = p.Show(context.Background(), int64(id), plugin.Content{
		RawXML:   goString(xml),
		Group:    goString(group),
		Bindings: goPairs(bindings, bindingCount),
	})
	return C.int32_t(statusFor(err))
}

//export scheduleNotification
func scheduleNotification(h C.uintptr_t, id C.int32_t, xml, group *C.char, unixSeconds C.int64_t) C.int32_t {
	p, err := corePlugin(h)
	if err != nil {
		return C.int32_t(statusFor(err))
	}
	err = p.ScheduleAt(context.Background(), int64(id), plugin.Content{
		RawXML: goString(xml),
		Group:  goString(group),
	}, time.Unix(int64(unixSeconds), 0))
	return C.int32_t(statusFor(err))
}

// updateNotification returns an LN_UPDATE_* result, or the negated status
// code when the update could not be attempted.
//
//export updateNotification
func updateNotification(h C.uintptr_t, id C.int32_t, group *C.char, bindings *C.StringPair, bindingCount C.int32_t) C.int32_t {
	p, err := corePlugin(h)
	if err != nil {
		return C.int32_t(-statusFor(err))
	}
	result, err := p.Update(context.Background(), int64(id), goPairs(bindings, bindingCount), goString(group))
	if err != nil && result != toaster.UpdateNotFound {
		return C.int32_t(-statusFor(err))
	}
	return C.int32_t(result)
}

//export cancelAll
func cancelAll(h C.uintptr_t) C.int32_t {
	p, err := corePlugin(h)
	if err != nil {
		return C.int32_t(statusFor(err))
	}
	return C.int32_t(statusFor(p.CancelAll(context.Background())))
}

//export cancelNotification
func cancelNotification(h C.uintptr_t, id C.int32_t, group *C.char) C.int32_t {
	p, err := corePlugin(h)
	if err != nil {
		return C.int32_t(statusFor(err))
	}
	return C.int32_t(statusFor(p.Cancel(context.Background(), int64(id), goString(group))))
}

//export getActiveNotifications
func getActiveNotifications(h C.uintptr_t) *C.DetailsArray {
	p, err := corePlugin(h)
	if err != nil {
		return newDetailsArray(nil)
	}
	ids, err := p.Active(context.Background())
	if err != nil {
		return newDetailsArray(nil)
	}
	return newDetailsArray(abiIDs(ids))
}

//export getPendingNotifications
func getPendingNotifications(h C.uintptr_t) *C.DetailsArray {
	p, err := corePlugin(h)
	if err != nil {
		return newDetailsArray(nil)
	}
	ids, err := p.Pending(context.Background())
	if err != nil {
		return newDetailsArray(nil)
	}
	return newDetailsArray(abiIDs(ids))
}

//export freeDetailsArray
func freeDetailsArray(array *C.DetailsArray) {
	if array == nil {
		return
	}
	if array.items != nil {
		C.free(unsafe.Pointer(array.items))
	}
	C.free(unsafe.Pointer(array))
}

//export getLaunchDetails
func getLaunchDetails(h C.uintptr_t) *C.LaunchDetails {
	fp, err := lookup(uintptr(h))
	if err != nil {
		return nil
	}
	p, err := fp.core()
	if err != nil {
		return nil
	}
	details, ok := p.LaunchDetails()
	if !ok || !details.DidLaunch {
		return nil
	}
	return newLaunchDetails(details)
}

//export freeLaunchDetails
func freeLaunchDetails(details *C.LaunchDetails) {
	if details == nil {
		return
	}
	if details.payload != nil {
		C.free(unsafe.Pointer(details.payload))
	}
	freePairs(details.data, details.data_count)
	C.free(unsafe.Pointer(details))
}

func corePlugin(h C.uintptr_t) (*plugin.Plugin, error) {
	fp, err := lookup(uintptr(h))
	if err != nil {
		return nil, err
	}
	return fp.core()
}
