//go:build linux

package displayfb

import (
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Producer is the client side of the producer protocol: open the arena's
// shared memory, validate the header, announce presence, and write frames
// into the buffer currently indexed by PendingIndex.
type Producer struct {
	fd     int
	region []byte
	header *Header
	width  uint32
	height uint32
}

// OpenProducer opens an arena previously created by the daemon, maps it,
// and validates the header's magic and version. name follows shm_open
// conventions; a leading "/" is added if absent.
func OpenProducer(name string, width, height uint32) (*Producer, error) {
	path := shmPath(name)

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open shm %s: %w", path, err)
	}

	size := int(ArenaSize(width, height))
	region, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap shm %s: %w", path, err)
	}

	header := (*Header)(unsafe.Pointer(&region[0]))
	if !header.Valid() {
		unix.Munmap(region)
		unix.Close(fd)
		return nil, fmt.Errorf("shm %s: invalid header (magic=%#x version=%d)", path, header.MagicValue, header.VersionValue)
	}

	p := &Producer{
		fd:     fd,
		region: region,
		header: header,
		width:  width,
		height: height,
	}
	header.AppConnected = 1
	return p, nil
}

// shmPath maps a POSIX shm name onto its backing path under /dev/shm,
// adding the leading slash shm_open implicitly requires if the caller
// omitted it.
func shmPath(name string) string {
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return "/dev/shm" + name
}

// DaemonReady reports whether the daemon has finished arena setup and is
// consuming frames.
func (p *Producer) DaemonReady() bool {
	return p.header.DaemonReady != 0
}

// WriteFrame attempts to write pixels into the pending buffer without
// blocking. pixels must be exactly width*height*3 bytes, or exactly
// BufferSize(width, height) bytes, of which only the first width*height*3
// are copied. It reports whether
// the write happened; a false return means the daemon currently holds the
// pending buffer and the caller may retry or drop the frame, its choice.
func (p *Producer) WriteFrame(pixels []byte) (bool, error) {
	bufSize := BufferSize(p.width, p.height)
	if int64(len(pixels)) != bufSize && int64(len(pixels)) != int64(p.width)*int64(p.height)*int64(BytesPerPixel) {
		return false, fmt.Errorf("write frame: got %d bytes, want %d", len(pixels), int64(p.width)*int64(p.height)*int64(BytesPerPixel))
	}

	if !TrySemAcquire(&p.header.PendingSem) {
		return false, nil
	}
	defer SemRelease(&p.header.PendingSem)

	off := HeaderSize + int64(p.header.PendingIndex)*bufSize
	n := int64(p.width) * int64(p.height) * int64(BytesPerPixel)
	copy(p.region[off:off+n], pixels[:n])
	p.header.FrameCounter++
	return true, nil
}

// Close releases the producer's mapping and the arena's shm fd. It does
// not unlink the arena; the daemon owns its lifecycle.
func (p *Producer) Close() error {
	p.header.AppConnected = 0
	if err := unix.Munmap(p.region); err != nil {
		unix.Close(p.fd)
		return err
	}
	return unix.Close(p.fd)
}
