package shm

import (
	"sync/atomic"
	"unsafe"
)

// Uint32At returns a pointer to the 4-byte word at off in mem. The word must
// be 4-byte aligned and lie entirely within mem.
func Uint32At(mem []byte, off int) *uint32 {
	_ = mem[off+3]
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

// Aligned reports whether the word at off in mem is 4-byte aligned.
func Aligned(mem []byte, off int) bool {
	return uintptr(unsafe.Pointer(&mem[off]))%4 == 0
}

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
func AtomicLoadUint32(addr *uint32) uint32 {
	return atomic.LoadUint32(addr)
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(addr *uint32, val uint32) {
	atomic.StoreUint32(addr, val)
}

// AtomicSwapUint32 atomically stores val and returns the previous value.
func AtomicSwapUint32(addr *uint32, val uint32) uint32 {
	return atomic.SwapUint32(addr, val)
}

// AtomicCompareAndSwapUint32 atomically compares and swaps a uint32 in shared memory.
func AtomicCompareAndSwapUint32(addr *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(addr, old, new)
}
