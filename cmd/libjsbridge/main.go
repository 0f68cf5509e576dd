// Package main builds libjsbridge, the C-callable script bridge.
// This is built with -buildmode=c-shared.
package main

/*
#include <stdlib.h>
#include <stdint.h>

// jb_message is one outbound message. kind is 0 for text, 1 for a
// structured CBOR payload and 2 for raw binary.
typedef struct {
    int32_t kind;
    int32_t callback_id;
    const char* text;
    const uint8_t* data;
    int64_t size;
} jb_message;

// jb_post_fn delivers msg to the host port. It must copy what it keeps
// and return non-zero on success.
typedef uint8_t (*jb_post_fn)(int64_t port, const jb_message* msg);

// jb_host_api is presented by the host at init.
typedef struct {
    int32_t major;
    int32_t minor;
    jb_post_fn post;
} jb_host_api;

// Helper to call the post function pointer (cgo can't call function pointers directly)
static uint8_t jb_call_post(jb_post_fn fn, int64_t port, const jb_message* msg) {
    if (fn == NULL) {
        return 0;
    }
    return fn(port, msg);
}
*/
import "C"
import (
	"fmt"
	"unsafe"

	jsbridge "github.com/wippyai/js-bridge"
	"github.com/wippyai/js-bridge/engine"
	"github.com/wippyai/js-bridge/errors"
	"github.com/wippyai/js-bridge/marshal"
	"github.com/wippyai/js-bridge/message"
)

const (
	statusOK    C.uint8_t = 0
	statusError C.uint8_t = 1
)

var lib = newBridge()

func main() {}

// ============================================================================
// Conversion helpers
// ============================================================================

// nativePort posts through the host's function pointer. Buffers handed
// to the host are freed when the call returns.
type nativePort struct {
	post C.jb_post_fn
	port C.int64_t
}

func (p nativePort) Post(m message.Message) bool {
	var cm C.jb_message
	cm.kind = C.int32_t(m.Kind)
	cm.callback_id = C.int32_t(m.CallbackID)

	if m.Kind == message.KindString {
		text := C.CString(m.Text)
		defer C.free(unsafe.Pointer(text))
		cm.text = text
		cm.size = C.int64_t(len(m.Text))
	}
	if len(m.Data) > 0 {
		buf := C.CBytes(m.Data)
		defer C.free(buf)
		cm.data = (*C.uint8_t)(buf)
		cm.size = C.int64_t(len(m.Data))
	}
	return C.jb_call_post(p.post, p.port, &cm) != 0
}

func rawArgs(args *unsafe.Pointer, typeIDs *C.int32_t, sizes *C.intptr_t, count C.int32_t) []marshal.Raw {
	n := int(count)
	if n <= 0 || args == nil || typeIDs == nil {
		return nil
	}
	ptrs := unsafe.Slice(args, n)
	tags := make([]int32, n)
	for i, t := range unsafe.Slice(typeIDs, n) {
		tags[i] = int32(t)
	}
	lens := make([]int, n)
	if sizes != nil {
		for i, s := range unsafe.Slice(sizes, n) {
			lens[i] = int(s)
		}
	}
	return marshal.FromSlices(ptrs, tags, lens)
}

func setError(out **C.char, err error) C.uint8_t {
	if err == nil {
		return statusOK
	}
	if out != nil {
		*out = C.CString(err.Error())
	}
	return statusError
}

// ============================================================================
// Lifecycle
// ============================================================================

//export init_runtime
func init_runtime(api *C.jb_host_api, port C.int64_t, errOut **C.char) C.uint8_t {
	if api == nil {
		return setError(errOut, errors.InvalidInput(errors.PhaseInit, "host api is null"))
	}
	version := engine.APIVersion{Major: int32(api.major), Minor: int32(api.minor)}
	return setError(errOut, lib.init(version, nativePort{post: api.post, port: port}))
}

//export dispose_runtime
func dispose_runtime() C.uint8_t {
	lib.dispose()
	return statusOK
}

//export get_runtime_version
func get_runtime_version() *C.char {
	return C.CString(fmt.Sprintf("%s (api %s)", jsbridge.Version, jsbridge.API()))
}

//export free_string
func free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

// ============================================================================
// Modules
// ============================================================================

//export register_module
func register_module(name, source *C.char, errOut **C.char, args *unsafe.Pointer, typeIDs *C.int32_t, sizes *C.intptr_t, count C.int32_t) C.uint8_t {
	if name == nil || source == nil {
		return setError(errOut, errors.InvalidInput(errors.PhaseRegister, "module name and source are required"))
	}
	raws := rawArgs(args, typeIDs, sizes, count)
	return setError(errOut, lib.register(C.GoString(name), C.GoString(source), raws))
}

//export is_module_registered
func is_module_registered(name *C.char) C.uint8_t {
	if name == nil || !lib.isRegistered(C.GoString(name)) {
		return 0
	}
	return 1
}

//export call_js_function
func call_js_function(module, function *C.char, correlationID C.int32_t, args *unsafe.Pointer, typeIDs *C.int32_t, sizes *C.intptr_t, count C.int32_t, errOut **C.char) C.uint8_t {
	if module == nil || function == nil {
		return setError(errOut, errors.InvalidInput(errors.PhaseInvoke, "module and function names are required"))
	}
	raws := rawArgs(args, typeIDs, sizes, count)
	return setError(errOut, lib.call(C.GoString(module), C.GoString(function), int32(correlationID), raws))
}
