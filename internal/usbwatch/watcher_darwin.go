package usbwatch

import (
	"context"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// CF and IOKit type aliases.
type (
	cfAllocatorRef     uintptr
	cfDictionaryRef    uintptr
	cfIndex            int64
	cfNumberRef        uintptr
	cfNumberType       = cfIndex
	cfRunLoopRef       uintptr
	cfRunLoopSourceRef uintptr
	cfStringRef        uintptr
	cfTypeRef          uintptr

	cfStringEncoding uint32

	ioObject           uint32
	ioIterator         = ioObject
	ioNotificationPort uintptr
	kernReturn         int32
)

const (
	kCFAllocatorDefault   cfAllocatorRef   = 0
	kCFNumberSInt32Type   cfIndex          = 3
	kCFStringEncodingUTF8 cfStringEncoding = 0x08000100

	kIOReturnSuccess kernReturn = 0
)

const (
	kIOMainPortDefault = 0
	kIOFirstMatch      = "IOServiceFirstMatch"
	kIOUSBDeviceClass  = "IOUSBHostDevice"
)

var (
	cfNumberGetValue        func(number cfNumberRef, theType cfNumberType, valuePtr unsafe.Pointer) bool
	cfRelease               func(cf cfTypeRef)
	cfRunLoopAddSource      func(rl cfRunLoopRef, source cfRunLoopSourceRef, mode cfStringRef)
	cfRunLoopGetCurrent     func() cfRunLoopRef
	cfRunLoopRun            func()
	cfRunLoopStop           func(runLoop cfRunLoopRef)
	cfStringCreateWithBytes func(alloc cfAllocatorRef, bytes []byte, numBytes cfIndex, encoding cfStringEncoding, isExternalRepresentation bool) cfStringRef

	ioServiceMatching                  func(name string) cfDictionaryRef
	ioNotificationPortCreate           func(mainPort uint32) ioNotificationPort
	ioNotificationPortDestroy          func(port ioNotificationPort)
	ioNotificationPortGetRunLoopSource func(port ioNotificationPort) cfRunLoopSourceRef
	ioServiceAddMatchingNotification   func(port ioNotificationPort, notificationType string, matching cfDictionaryRef, callback uintptr, refCon unsafe.Pointer, iterator *ioIterator) kernReturn
	ioIteratorNext                     func(iterator ioIterator) ioObject
	ioObjectRelease                    func(object ioObject) kernReturn
	ioRegistryEntryCreateCFProperty    func(entry ioObject, key cfStringRef, allocator cfAllocatorRef, options uint32) cfTypeRef
)

var kCFRunLoopDefaultMode uintptr

var (
	loadOnce sync.Once
	loadErr  error
)

func load() error {
	loadOnce.Do(func() {
		cf, err := purego.Dlopen("/System/Library/Frameworks/CoreFoundation.framework/CoreFoundation", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = err
			return
		}
		purego.RegisterLibFunc(&cfNumberGetValue, cf, "CFNumberGetValue")
		purego.RegisterLibFunc(&cfRelease, cf, "CFRelease")
		purego.RegisterLibFunc(&cfRunLoopAddSource, cf, "CFRunLoopAddSource")
		purego.RegisterLibFunc(&cfRunLoopGetCurrent, cf, "CFRunLoopGetCurrent")
		purego.RegisterLibFunc(&cfRunLoopRun, cf, "CFRunLoopRun")
		purego.RegisterLibFunc(&cfRunLoopStop, cf, "CFRunLoopStop")
		purego.RegisterLibFunc(&cfStringCreateWithBytes, cf, "CFStringCreateWithBytes")
		if kCFRunLoopDefaultMode, err = purego.Dlsym(cf, "kCFRunLoopDefaultMode"); err != nil {
			loadErr = err
			return
		}

		iokit, err := purego.Dlopen("/System/Library/Frameworks/IOKit.framework/IOKit", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
		if err != nil {
			loadErr = err
			return
		}
		purego.RegisterLibFunc(&ioServiceMatching, iokit, "IOServiceMatching")
		purego.RegisterLibFunc(&ioNotificationPortCreate, iokit, "IONotificationPortCreate")
		purego.RegisterLibFunc(&ioNotificationPortDestroy, iokit, "IONotificationPortDestroy")
		purego.RegisterLibFunc(&ioNotificationPortGetRunLoopSource, iokit, "IONotificationPortGetRunLoopSource")
		purego.RegisterLibFunc(&ioServiceAddMatchingNotification, iokit, "IOServiceAddMatchingNotification")
		purego.RegisterLibFunc(&ioIteratorNext, iokit, "IOIteratorNext")
		purego.RegisterLibFunc(&ioObjectRelease, iokit, "IOObjectRelease")
		purego.RegisterLibFunc(&ioRegistryEntryCreateCFProperty, iokit, "IORegistryEntryCreateCFProperty")
	})
	return loadErr
}

// watcher is the state the IOKit callback reaches through callbackWatcher.
type watcher struct {
	ch      chan<- Event
	vendors map[uint16]bool
	log     *zap.Logger
}

// callbackWatcher keeps the active watcher reachable from the C callback.
// Only one watcher is supported at a time.
var callbackWatcher *watcher

var matchingCallbackPtr = purego.NewCallback(func(_ unsafe.Pointer, iter uintptr) {
	if callbackWatcher != nil {
		callbackWatcher.drain(ioIterator(iter))
	}
})

// drain reports every device in iter. Draining also re-arms the
// notification.
func (w *watcher) drain(iter ioIterator) {
	for {
		dev := ioIteratorNext(iter)
		if dev == 0 {
			return
		}
		vid, vok := intProperty(dev, "idVendor")
		pid, _ := intProperty(dev, "idProduct")
		ioObjectRelease(dev)

		if !vok || !w.vendors[vid] {
			continue
		}
		ev := Event{VendorID: vid, ProductID: pid}
		w.log.Info("fingerprint sensor attached", zap.Stringer("device", ev))
		select {
		case w.ch <- ev:
		default:
		}
	}
}

func intProperty(dev ioObject, name string) (uint16, bool) {
	key := []byte(name)
	skey := cfStringCreateWithBytes(kCFAllocatorDefault, key, cfIndex(len(key)), kCFStringEncodingUTF8, false)
	if skey == 0 {
		return 0, false
	}
	defer cfRelease(cfTypeRef(skey))

	prop := ioRegistryEntryCreateCFProperty(dev, skey, kCFAllocatorDefault, 0)
	if prop == 0 {
		return 0, false
	}
	defer cfRelease(prop)

	var v int32
	if !cfNumberGetValue(cfNumberRef(prop), kCFNumberSInt32Type, unsafe.Pointer(&v)) {
		return 0, false
	}
	return uint16(v), true
}

// Watch returns a channel that receives an Event each time a USB device
// from one of vendors (every known fingerprint vendor when empty) appears.
// Devices already attached are reported once at start. The watcher stops
// and closes the channel when ctx is cancelled.
func Watch(ctx context.Context, log *zap.Logger, vendors ...uint16) <-chan Event {
	if log == nil {
		log = zap.NewNop()
	}
	ch := make(chan Event, 4)

	if err := load(); err != nil {
		log.Warn("usbwatch: IOKit unavailable", zap.Error(err))
		go func() {
			<-ctx.Done()
			close(ch)
		}()
		return ch
	}

	w := &watcher{ch: ch, vendors: vendorSet(vendors), log: log}
	callbackWatcher = w

	go func() {
		defer close(ch)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		port := ioNotificationPortCreate(kIOMainPortDefault)
		defer ioNotificationPortDestroy(port)

		rl := cfRunLoopGetCurrent()
		mode := **(**cfStringRef)(unsafe.Pointer(&kCFRunLoopDefaultMode))
		cfRunLoopAddSource(rl, ioNotificationPortGetRunLoopSource(port), mode)

		// The matching dictionary is consumed by the call.
		var iter ioIterator
		matching := ioServiceMatching(kIOUSBDeviceClass)
		if rv := ioServiceAddMatchingNotification(port, kIOFirstMatch, matching, matchingCallbackPtr, nil, &iter); rv != kIOReturnSuccess {
			log.Warn("usbwatch: failed to register for USB arrivals", zap.Int32("kern_return", int32(rv)))
			return
		}
		defer ioObjectRelease(iter)
		w.drain(iter)

		go func() {
			<-ctx.Done()
			cfRunLoopStop(rl)
		}()

		log.Info("usbwatch: listening for fingerprint sensor arrivals")
		cfRunLoopRun()

		callbackWatcher = nil
		log.Info("usbwatch: stopped")
	}()

	return ch
}
