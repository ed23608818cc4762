//go:build windows
// +build windows

package activation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-ole/go-ole"
	"github.com/scjalliance/comshim"
	"golang.org/x/sys/windows"
)

const (
	clsctxLocalServer = 0x4
	regclsMultipleUse = 0x1

	sOK                 = 0x0
	eNoInterface        = 0x80004002
	ePointer            = 0x80004003
	eFail               = 0x80004005
	classENoAggregation = 0x80040110
)

var (
	modole32                   = windows.NewLazySystemDLL("ole32.dll")
	procCoRegisterClassObject  = modole32.NewProc("CoRegisterClassObject")
	procCoRevokeClassObject    = modole32.NewProc("CoRevokeClassObject")
	procCoAddRefServerProcess  = modole32.NewProc("CoAddRefServerProcess")
	procCoReleaseServerProcess = modole32.NewProc("CoReleaseServerProcess")

	iidIClassFactory                   = ole.NewGUID("{00000001-0000-0000-C000-000000000046}")
	iidINotificationActivationCallback = ole.NewGUID("{53E31837-6600-4A81-9395-75CFFE746F94}")
)

// notificationUserInputData mirrors NOTIFICATION_USER_INPUT_DATA.
type notificationUserInputData struct {
	Key   *uint16
	Value *uint16
}

// comObject is the memory COM sees: a vtable pointer followed by our state.
// Objects are kept alive, and found again from the `this` pointer COM passes
// back, through liveObjects.
type comObject struct {
	vtbl       *[6]uintptr
	refs       int32
	guid       string
	dispatcher *Dispatcher
	logger     log.Logger
}

var (
	liveObjectsLock sync.RWMutex
	liveObjects     = make(map[uintptr]*comObject)

	factoryVtbl  [6]uintptr
	callbackVtbl [6]uintptr
	vtblOnce     sync.Once
)

func initVtables() {
	vtblOnce.Do(func() {
		factoryVtbl = [6]uintptr{
			windows.NewCallback(factoryQueryInterface),
			windows.NewCallback(objectAddRef),
			windows.NewCallback(objectRelease),
			windows.NewCallback(factoryCreateInstance),
			windows.NewCallback(factoryLockServer),
		}
		callbackVtbl = [6]uintptr{
			windows.NewCallback(callbackQueryInterface),
			windows.NewCallback(objectAddRef),
			windows.NewCallback(objectRelease),
			windows.NewCallback(callbackActivate),
		}
	})
}

func newComObject(vtbl *[6]uintptr, guid string, d *Dispatcher, logger log.Logger) (*comObject, uintptr) {
	obj := &comObject{vtbl: vtbl, refs: 1, guid: guid, dispatcher: d, logger: logger}
	ptr := uintptr(unsafe.Pointer(obj))

	liveObjectsLock.Lock()
	liveObjects[ptr] = obj
	liveObjectsLock.Unlock()

	return obj, ptr
}

func lookupComObject(this uintptr) *comObject {
	liveObjectsLock.RLock()
	defer liveObjectsLock.RUnlock()
	return liveObjects[this]
}

func writePointer(ppv uintptr, value uintptr) {
	*(*uintptr)(unsafe.Pointer(ppv)) = value
}

func guidAt(p uintptr) *ole.GUID {
	return (*ole.GUID)(unsafe.Pointer(p))
}

func objectAddRef(this uintptr) uintptr {
	obj := lookupComObject(this)
	if obj == nil {
		return 0
	}
	return uintptr(atomic.AddInt32(&obj.refs, 1))
}

func objectRelease(this uintptr) uintptr {
	obj := lookupComObject(this)
	if obj == nil {
		return 0
	}

	refs := atomic.AddInt32(&obj.refs, -1)
	if refs <= 0 {
		liveObjectsLock.Lock()
		delete(liveObjects, this)
		liveObjectsLock.Unlock()
		return 0
	}
	return uintptr(refs)
}

func queryInterface(this, riid, ppv uintptr, own *ole.GUID) uintptr {
	if ppv == 0 {
		return ePointer
	}
	writePointer(ppv, 0)

	iid := guidAt(riid)
	if !ole.IsEqualGUID(iid, ole.IID_IUnknown) && !ole.IsEqualGUID(iid, own) {
		return eNoInterface
	}

	objectAddRef(this)
	writePointer(ppv, this)
	return sOK
}

func factoryQueryInterface(this, riid, ppv uintptr) uintptr {
	return queryInterface(this, riid, ppv, iidIClassFactory)
}

func callbackQueryInterface(this, riid, ppv uintptr) uintptr {
	return queryInterface(this, riid, ppv, iidINotificationActivationCallback)
}

func factoryCreateInstance(this, outer, riid, ppv uintptr) uintptr {
	if ppv == 0 {
		return ePointer
	}
	writePointer(ppv, 0)

	if outer != 0 {
		return classENoAggregation
	}

	factory := lookupComObject(this)
	if factory == nil {
		return eFail
	}

	_, ptr := newComObject(&callbackVtbl, factory.guid, factory.dispatcher, factory.logger)
	hr := callbackQueryInterface(ptr, riid, ppv)
	objectRelease(ptr)
	return hr
}

func factoryLockServer(this, lock uintptr) uintptr {
	return sOK
}

func callbackActivate(this, appUserModelId, invokedArgs, data, count uintptr) (hr uintptr) {
	obj := lookupComObject(this)
	if obj == nil {
		return eFail
	}

	defer func() {
		if r := recover(); r != nil {
			level.Error(obj.logger).Log("msg", "recovered from panic decoding activation", "panic", r)
			hr = eFail
		}
	}()

	var args *string
	if invokedArgs != 0 {
		s := windows.UTF16PtrToString((*uint16)(unsafe.Pointer(invokedArgs)))
		args = &s
	}

	var inputs []UserInput
	if data != 0 && count > 0 {
		for _, item := range unsafe.Slice((*notificationUserInputData)(unsafe.Pointer(data)), int(count)) {
			inputs = append(inputs, UserInput{
				Key:   windows.UTF16PtrToString(item.Key),
				Value: windows.UTF16PtrToString(item.Value),
			})
		}
	}

	if err := obj.dispatcher.Activate(obj.guid, args, inputs); err != nil {
		level.Error(obj.logger).Log("msg", "activation failed", "guid", obj.guid, "err", err)
		return eFail
	}

	return sOK
}

type comRegistrar struct {
	logger     log.Logger
	dispatcher *Dispatcher
	lock       sync.Mutex
	cookies    map[string]uint32
}

// NewRegistrar returns a Registrar that exposes a COM class factory for each
// registered guid, so the OS can deliver toast activations to this process.
// The returned func revokes the class objects.
func NewRegistrar(logger log.Logger, d *Dispatcher) (Registrar, func() error) {
	r := &comRegistrar{
		logger:     log.With(logger, "component", "com_activator"),
		dispatcher: d,
		cookies:    make(map[string]uint32),
	}
	return r, r.revokeAll
}

func (r *comRegistrar) RegisterActivationHandler(guid string, cb Callback) error {
	if err := r.dispatcher.RegisterActivationHandler(guid, cb); err != nil {
		return err
	}

	clsid := ole.NewGUID(guid)
	if clsid == nil {
		r.dispatcher.Unregister(guid)
		return fmt.Errorf("parsing clsid %s", guid)
	}

	initVtables()

	// Keeps COM initialized until the class object is revoked
	comshim.Add(1)

	_, factory := newComObject(&factoryVtbl, guid, r.dispatcher, r.logger)

	var cookie uint32
	hr, _, _ := procCoRegisterClassObject.Call(
		uintptr(unsafe.Pointer(clsid)),
		factory,
		clsctxLocalServer,
		regclsMultipleUse,
		uintptr(unsafe.Pointer(&cookie)),
	)
	if hr != sOK {
		objectRelease(factory)
		comshim.Done()
		r.dispatcher.Unregister(guid)
		return fmt.Errorf("CoRegisterClassObject: %w", ole.NewError(hr))
	}

	// Without a server reference COM would let the process go after the
	// first activation it serviced.
	procCoAddRefServerProcess.Call()

	r.lock.Lock()
	r.cookies[guid] = cookie
	r.lock.Unlock()

	level.Info(r.logger).Log("msg", "registered activation class factory", "guid", guid)
	return nil
}

func (r *comRegistrar) revokeAll() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for guid, cookie := range r.cookies {
		if hr, _, _ := procCoRevokeClassObject.Call(uintptr(cookie)); hr != sOK {
			level.Warn(r.logger).Log("msg", "could not revoke class object", "guid", guid, "err", ole.NewError(hr))
		}
		procCoReleaseServerProcess.Call()
		comshim.Done()
		delete(r.cookies, guid)
	}

	return nil
}
