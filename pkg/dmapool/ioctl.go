//go:build linux

package dmapool

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlPtr issues a raw ioctl with a pointer argument, the same dispatch
// pkg/linuxav's v4l2 and alsa packages use for requests golang.org/x/sys/unix
// has no typed helper for.
func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
