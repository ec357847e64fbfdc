//go:build amd64 && (linux || darwin || freebsd || netbsd || openbsd)

package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const nativeExecution = true

// stackSlack covers the return address pushed by the call plus headroom.
const stackSlack = 256

// callNative switches to stack, calls code and returns EAX. Implemented in
// call_amd64.s.
//
//go:noescape
func callNative(code, stack uintptr) int32

func run(p *Program) (int32, error) {
	code := p.Bytes()
	page := unix.Getpagesize()

	mem, err := mapAnon(roundUp(len(code), page))
	if err != nil {
		return 0, err
	}
	defer unix.Munmap(mem)

	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return 0, fmt.Errorf("%w: mprotect: %v", ErrExecMemory, err)
	}

	stack, err := mapAnon(roundUp(p.MaxDepth()*8+stackSlack, page))
	if err != nil {
		return 0, err
	}
	defer unix.Munmap(stack)

	// The mapping is page aligned, so its end is 16-byte aligned.
	top := uintptr(unsafe.Pointer(&stack[0])) + uintptr(len(stack))
	return callNative(uintptr(unsafe.Pointer(&mem[0])), top), nil
}

func mapAnon(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %v", ErrExecMemory, size, err)
	}
	return b, nil
}

func roundUp(n, to int) int {
	return (n + to - 1) / to * to
}
