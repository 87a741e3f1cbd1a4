//go:build !linux

package printer

import (
	"context"
	"errors"
	"io"
)

// RFCOMMDialer is only available on linux.
type RFCOMMDialer struct {
	Channel uint8
}

func (RFCOMMDialer) Dial(context.Context, string) (io.ReadWriteCloser, error) {
	return nil, errors.New("rfcomm is not supported on this platform")
}
