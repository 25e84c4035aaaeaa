package ipmutex

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// SegmentInfo is a snapshot of the lock word of a shared memory object.
type SegmentInfo struct {
	Key         string
	Path        string
	Size        int
	State       uint32
	Holder      uint32
	Creator     uint32
	Initialized bool
}

// Locked reports whether the snapshot was taken while the lock was held.
func (s *SegmentInfo) Locked() bool {
	return s.State != unlocked
}

func (s *SegmentInfo) String() string {
	return fmt.Sprintf("key:%s path:%s size:%d initialized:%t state:%d holder:%d creator:%d",
		s.Key, s.Path, s.Size, s.Initialized, s.State, s.Holder, s.Creator)
}

// Inspect reads the object for key without attaching to it. The fields are
// read without synchronization and may be mutually inconsistent. An object
// too small to hold a lock word is returned along with ErrSegmentNotReady.
func Inspect(key string, config *Config) (*SegmentInfo, error) {
	if config == nil {
		config = DefaultConfig()
	}
	resolved, err := resolveKey(key)
	if err != nil {
		return nil, newError(OpInspect, key, "", err)
	}
	path := filepath.Join(config.Dir, resolved)
	info, err := readSegment(path)
	if info != nil {
		info.Key = resolved
	}
	if err != nil {
		return info, newError(OpInspect, resolved, path, err)
	}
	return info, nil
}

func readSegment(path string) (*SegmentInfo, error) {
	mem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info := &SegmentInfo{Path: path, Size: len(mem)}
	if len(mem) < Size {
		return info, ErrSegmentNotReady
	}
	info.State = binary.NativeEndian.Uint32(mem[stateOffset:])
	info.Holder = binary.NativeEndian.Uint32(mem[holderOffset:])
	info.Creator = binary.NativeEndian.Uint32(mem[creatorOffset:])
	info.Initialized = binary.NativeEndian.Uint32(mem[magicOffset:]) == magic
	return info, nil
}

// Remove deletes the object for key from the namespace. It is meant for
// objects left behind by an owner that crashed or failed to initialize;
// processes still attached keep their mapping.
func Remove(key string, config *Config) error {
	if config == nil {
		config = DefaultConfig()
	}
	resolved, err := resolveKey(key)
	if err != nil {
		return newError(OpRemove, key, "", err)
	}
	path := filepath.Join(config.Dir, resolved)
	if err := os.Remove(path); err != nil {
		return newError(OpRemove, resolved, path, err)
	}
	internalLogger.infof("removed %s", path)
	return nil
}

// DebugSegmentDetail prints the lock word of the object at path.
func DebugSegmentDetail(path string) {
	info, err := readSegment(path)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(info.String())
}
