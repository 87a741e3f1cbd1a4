package printer

import (
	"context"
	"io"
	"net"
	"time"
)

// SerialPortUUID is the serial port profile the printers advertise.
const SerialPortUUID = "00001101-0000-1000-8000-00805F9B34FB"

// Dialer opens a byte stream to a printer address.
type Dialer interface {
	Dial(ctx context.Context, address string) (io.ReadWriteCloser, error)
}

// TCPDialer reaches printers exposed through a network serial bridge.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", address)
}
