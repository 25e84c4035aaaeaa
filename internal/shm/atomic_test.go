package shm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestAtomicWord(t *testing.T) {
	mem := make([]uint32, 4)
	addr := &mem[1]

	AtomicStoreUint32(addr, 1)
	assert.Equal(t, uint32(1), AtomicLoadUint32(addr))
	assert.False(t, AtomicCompareAndSwapUint32(addr, 0, 2))
	assert.True(t, AtomicCompareAndSwapUint32(addr, 1, 2))
	assert.Equal(t, uint32(2), AtomicSwapUint32(addr, 0))
	assert.Equal(t, uint32(0), AtomicLoadUint32(addr))
}

func TestUint32At(t *testing.T) {
	backing := make([]uint32, 4)
	mem := unsafeBytes(backing)

	assert.True(t, Aligned(mem, 0))
	assert.True(t, Aligned(mem, 8))
	assert.False(t, Aligned(mem, 2))

	AtomicStoreUint32(Uint32At(mem, 4), 7)
	assert.Equal(t, uint32(7), backing[1])

	assert.Panics(t, func() { Uint32At(mem, 14) })
}

func unsafeBytes(words []uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*4)
}
