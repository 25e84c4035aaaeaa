package ipmutex

import (
	"github.com/srediag/ipmutex/internal/shm"
)

// Layout of the lock word kept in every segment. All fields are native
// endian uint32s.
const (
	stateOffset   = 0
	holderOffset  = 4
	magicOffset   = 8
	creatorOffset = 12

	// Size is the size in bytes of the shared memory object backing a Mutex.
	Size = 16

	// magic marks a lock word whose creator finished initialization.
	magic uint32 = 0x58504d49
)

// Values of the state field.
const (
	unlocked  uint32 = 0
	locked    uint32 = 1
	contested uint32 = 2
)

// lockWord gives typed access to the fields of a mapped lock word.
type lockWord struct {
	state   *uint32
	holder  *uint32
	magic   *uint32
	creator *uint32
}

func mapLockWord(mem []byte) lockWord {
	return lockWord{
		state:   shm.Uint32At(mem, stateOffset),
		holder:  shm.Uint32At(mem, holderOffset),
		magic:   shm.Uint32At(mem, magicOffset),
		creator: shm.Uint32At(mem, creatorOffset),
	}
}

// init publishes an unlocked word. The magic is stored last.
func (w lockWord) init(creatorPid uint32) {
	shm.AtomicStoreUint32(w.state, unlocked)
	shm.AtomicStoreUint32(w.holder, 0)
	shm.AtomicStoreUint32(w.creator, creatorPid)
	shm.AtomicStoreUint32(w.magic, magic)
}
