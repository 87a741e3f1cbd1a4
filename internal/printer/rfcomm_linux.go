//go:build linux

package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// RFCOMMDialer connects to a paired printer over an RFCOMM socket.
type RFCOMMDialer struct {
	Channel uint8
}

func (d RFCOMMDialer) Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	addr, err := parseMAC(address)
	if err != nil {
		return nil, err
	}
	channel := d.Channel
	if channel == 0 {
		channel = 1
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("rfcomm socket: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
	}()
	select {
	case err := <-done:
		if err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("rfcomm connect %s: %w", address, err)
		}
	case <-ctx.Done():
		// Closing the socket unblocks the pending connect.
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done
		_ = unix.Close(fd)
		return nil, ctx.Err()
	}

	return os.NewFile(uintptr(fd), "rfcomm:"+address), nil
}

// parseMAC converts "AA:BB:CC:DD:EE:FF" into the little-endian byte order
// the kernel expects.
func parseMAC(address string) ([6]uint8, error) {
	var out [6]uint8
	parts := strings.Split(address, ":")
	if len(parts) != 6 {
		return out, fmt.Errorf("invalid device address %q", address)
	}
	for i, p := range parts {
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return out, fmt.Errorf("invalid device address %q", address)
		}
		out[5-i] = uint8(b)
	}
	return out, nil
}
