package output

import (
	"bufio"
	"encoding/binary"
	"io"
	"net/netip"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/helpers"
)

// binaryMagic and binaryFormatVersion identify the framed binary stream.
var binaryMagic = [8]byte{'m', 'a', 's', 's', 'd', 'n', 's', 0}

const binaryFormatVersion uint32 = 1

// endiannessProbe lets a reader detect the producing host's byte order
// without guessing from the magic alone.
const endiannessProbe uint32 = 0x12345678

type binaryWriter struct {
	dest  io.WriteCloser
	w     *bufio.Writer
	flush bool
}

// writeHeader emits the fixed, host-layout file header exactly once.
// Field sizes and offsets are derived at runtime via
// unsafe.Sizeof/unsafe.Offsetof against golang.org/x/sys/unix's kernel
// ABI mirror structs rather than hardcoded, since sockaddr_storage's
// layout is platform-dependent in principle even though this tool only
// targets Linux.
func (b *binaryWriter) writeHeader() error {
	hostOrder := binary.NativeEndian

	var storage unix.RawSockaddrAny
	var in4 unix.RawSockaddrInet4
	var in6 unix.RawSockaddrInet6

	sizeofSizeT := uint8(unsafe.Sizeof(uintptr(0)))
	sizeofStorage := uint64(unsafe.Sizeof(storage))
	familyOffset := uint64(unsafe.Offsetof(storage.Addr.Family))
	sizeofFamily := uint64(unsafe.Sizeof(storage.Addr.Family))

	in4AddrOffset := uint64(unsafe.Offsetof(in4.Addr))
	in4PortOffset := uint64(unsafe.Offsetof(in4.Port))
	in6AddrOffset := uint64(unsafe.Offsetof(in6.Addr))
	in6PortOffset := uint64(unsafe.Offsetof(in6.Port))

	if _, err := b.w.Write(binaryMagic[:]); err != nil {
		return err
	}
	if err := writeUint32(b.w, hostOrder, endiannessProbe); err != nil {
		return err
	}
	if err := writeUint32(b.w, hostOrder, binaryFormatVersion); err != nil {
		return err
	}
	if err := b.w.WriteByte(sizeofSizeT); err != nil {
		return err
	}
	for _, v := range []uint64{sizeofStorage, familyOffset, sizeofFamily} {
		if err := writeSizeT(b.w, hostOrder, v, sizeofSizeT); err != nil {
			return err
		}
	}
	if err := writeUint16(b.w, hostOrder, unix.AF_INET); err != nil {
		return err
	}
	for _, v := range []uint64{in4AddrOffset, in4PortOffset} {
		if err := writeSizeT(b.w, hostOrder, v, sizeofSizeT); err != nil {
			return err
		}
	}
	if err := writeUint16(b.w, hostOrder, unix.AF_INET6); err != nil {
		return err
	}
	for _, v := range []uint64{in6AddrOffset, in6PortOffset} {
		if err := writeSizeT(b.w, hostOrder, v, sizeofSizeT); err != nil {
			return err
		}
	}
	return nil
}

func writeUint16(w io.Writer, order binary.ByteOrder, v uint16) error {
	var buf [2]byte
	order.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, order binary.ByteOrder, v uint32) error {
	var buf [4]byte
	order.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint64(w io.Writer, order binary.ByteOrder, v uint64) error {
	var buf [8]byte
	order.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// writeSizeT writes v as a size_t-equivalent, sized to match the host's
// actual size_t width (sizeofSizeT), not always 8 bytes.
func writeSizeT(w io.Writer, order binary.ByteOrder, v uint64, sizeofSizeT uint8) error {
	if sizeofSizeT == 4 {
		return writeUint32(w, order, uint32(v))
	}
	return writeUint64(w, order, v)
}

// WriteReply appends one framed record: a time_t timestamp, a
// sockaddr_storage-shaped blob for from, a 16-bit payload length, then
// the raw DNS payload bytes.
func (b *binaryWriter) WriteReply(from netip.AddrPort, at time.Time, raw []byte, _ dns.Packet) error {
	hostOrder := binary.NativeEndian

	if err := writeUint64(b.w, hostOrder, uint64(at.Unix())); err != nil {
		return err
	}

	storage := sockaddrAnyFromAddrPort(from)
	storageBytes := (*[unsafe.Sizeof(unix.RawSockaddrAny{})]byte)(unsafe.Pointer(&storage))[:]
	if _, err := b.w.Write(storageBytes); err != nil {
		return err
	}

	if err := writeUint16(b.w, hostOrder, helpers.ClampIntToUint16(len(raw))); err != nil {
		return err
	}
	if _, err := b.w.Write(raw); err != nil {
		return err
	}

	if b.flush {
		return b.w.Flush()
	}
	return nil
}

func sockaddrAnyFromAddrPort(ap netip.AddrPort) unix.RawSockaddrAny {
	var any unix.RawSockaddrAny
	if ap.Addr().Is4() || ap.Addr().Is4In6() {
		in4 := unix.RawSockaddrInet4{
			Family: unix.AF_INET,
			Port:   hostPort(ap.Port()),
			Addr:   ap.Addr().As4(),
		}
		*(*unix.RawSockaddrInet4)(unsafe.Pointer(&any)) = in4
		return any
	}
	in6 := unix.RawSockaddrInet6{
		Family: unix.AF_INET6,
		Port:   hostPort(ap.Port()),
		Addr:   ap.Addr().As16(),
	}
	*(*unix.RawSockaddrInet6)(unsafe.Pointer(&any)) = in6
	return any
}

// hostPort stores the port in network byte order, matching how the
// kernel's sockaddr_in/sockaddr_in6 structures always lay it out
// regardless of host endianness.
func hostPort(p uint16) uint16 {
	return (p << 8) | (p >> 8)
}

func (b *binaryWriter) Flush() error { return b.w.Flush() }
func (b *binaryWriter) Close() error {
	if err := b.w.Flush(); err != nil {
		return err
	}
	return b.dest.Close()
}
