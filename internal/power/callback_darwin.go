//go:build darwin && cgo

package power

/*
#include <stdint.h>
*/
import "C"

// powerhookDeliver is called from the IOKit callback on the CFRunLoop thread.
//
//export powerhookDeliver
func powerhookDeliver(refcon C.uintptr_t, kind C.int, id C.uintptr_t) {
	p := lookupPort(uintptr(refcon))
	if p == nil {
		return
	}
	p.deliver(Message{Kind: darwinKind(int(kind)), ID: uintptr(id)})
}
