// Package device implements dispatcher.Link over the tvi_sdlc character
// device, grounded on original_source/almmmost/almmmost_device.c's
// alm_dev_ini/alm_dev_reset/alm_dev_check_cts/alm_dev_read/alm_dev_write.
// The kernel module itself (GPIO/Z8530 register programming) is a Linux
// driver and out of scope; this package only does what the original
// userspace process did: open the char device node and drive it with
// ioctl(2), using golang.org/x/sys/unix since raw ioctl numbers have no
// stdlib-only path and no pack example ships a higher-level serial
// library for this concern (see DESIGN.md).
package device

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ioctl command numbers, ported verbatim from tvi_sdlc.h.
const (
	ioctlBase     = 0x85300000
	ioctlSetPort  = ioctlBase | 2
	ioctlGetCTS   = ioctlBase | 3
	ioctlReset    = ioctlBase | 4
	ioctlInit     = ioctlBase | 5
)

// ioctlData packs (port, value) into the single unsigned-long ioctl
// argument, matching TVI_SDLC_IOCTL_DATA(port,val).
func ioctlData(port, val int) uintptr {
	return uintptr((port & 0x0F) | (val << 8))
}

// SDLC is one open tvi_sdlc device file bound to one Z8530 chip port.
type SDLC struct {
	f        *os.File
	chipPort int
}

// Open opens path (e.g. "/dev/tvi_sdlc0") and binds it to chipPort, per
// alm_dev_ini's "User Dev n"/"User Port n" pair.
func Open(path string, chipPort int) (*SDLC, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), ioctlSetPort, ioctlData(chipPort, 0)); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("device: set port %s: %w", path, errno)
	}
	return &SDLC{f: f, chipPort: chipPort}, nil
}

// Close releases the device handle without resetting the link.
func (s *SDLC) Close() error { return s.f.Close() }

// CheckReady reports whether CTS is asserted, per alm_dev_check_cts. It
// does not block; the dispatcher's busy-wait loop calls this repeatedly.
func (s *SDLC) CheckReady(ctx context.Context) (bool, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), ioctlGetCTS, ioctlData(s.chipPort, 0))
	if errno != 0 {
		return false, fmt.Errorf("device: get cts: %w", errno)
	}
	return r != 0, nil
}

// RecvFrame reads up to len(buf) bytes, per alm_dev_read.
func (s *SDLC) RecvFrame(ctx context.Context, buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	if err != nil {
		return n, fmt.Errorf("device: read: %w", err)
	}
	return n, nil
}

// SendFrame writes buf in full, per alm_dev_write.
func (s *SDLC) SendFrame(ctx context.Context, buf []byte) error {
	_, err := s.f.Write(buf)
	if err != nil {
		return fmt.Errorf("device: write: %w", err)
	}
	return nil
}

// Reset resets the link and re-initializes both ports sharing the chip,
// per alm_dev_reset.
func (s *SDLC) Reset(ctx context.Context) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), ioctlReset, ioctlData(s.chipPort, 0)); errno != 0 {
		return fmt.Errorf("device: reset: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), ioctlInit, ioctlData(s.chipPort&0xFE, 0)); errno != 0 {
		return fmt.Errorf("device: init even port: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), ioctlInit, ioctlData(s.chipPort|0x1, 0)); errno != 0 {
		return fmt.Errorf("device: init odd port: %w", errno)
	}
	return nil
}
