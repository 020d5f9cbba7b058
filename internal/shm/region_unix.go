//go:build unix

package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir is where region files live. /dev/shm is memory backed on Linux;
// other systems fall back to the temp directory.
var shmDir = func() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}()

func regionPath(name string) string {
	return filepath.Join(shmDir, name)
}

// mapRegion creates the region file exclusively or, when it already exists,
// attaches to it.
func mapRegion(name string, size int) (data []byte, created bool, err error) {
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	switch {
	case err == nil:
		created = true
	case os.IsExist(err):
		f, err = os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}
	defer f.Close()

	if created {
		if err := f.Truncate(int64(size)); err != nil {
			_ = os.Remove(path)
			return nil, false, err
		}
	} else {
		fi, err := f.Stat()
		if err != nil {
			return nil, false, err
		}
		if fi.Size() < int64(size) {
			return nil, false, fmt.Errorf("region holds %d bytes, %d requested", fi.Size(), size)
		}
		size = int(fi.Size())
	}

	data, err = unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if created {
			_ = os.Remove(path)
		}
		return nil, false, fmt.Errorf("mmap: %w", err)
	}
	return data, created, nil
}

// attachRegion maps an existing region at its full size.
func attachRegion(name string) ([]byte, error) {
	f, err := os.OpenFile(regionPath(name), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("region %s is empty", name)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return data, nil
}

func unmapRegion(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

func removeRegion(name string) error {
	err := os.Remove(regionPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
