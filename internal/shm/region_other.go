//go:build !unix

package shm

import (
	"fmt"
	"os"
	"sync"
	"unsafe"
)

// Without mmap support regions live on the heap and are visible only inside
// this process.
var (
	heapMu      sync.Mutex
	heapRegions = make(map[string][]byte)
)

func mapRegion(name string, size int) ([]byte, bool, error) {
	heapMu.Lock()
	defer heapMu.Unlock()

	if data, ok := heapRegions[name]; ok {
		if len(data) < size {
			return nil, false, fmt.Errorf("region holds %d bytes, %d requested", len(data), size)
		}
		return data, false, nil
	}
	// Back the bytes with uint64 words so atomic header fields are aligned.
	words := make([]uint64, (size+7)/8)
	data := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size)
	heapRegions[name] = data
	return data, true, nil
}

func attachRegion(name string) ([]byte, error) {
	heapMu.Lock()
	defer heapMu.Unlock()

	data, ok := heapRegions[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func unmapRegion([]byte) error { return nil }

func removeRegion(name string) error {
	heapMu.Lock()
	defer heapMu.Unlock()
	delete(heapRegions, name)
	return nil
}
