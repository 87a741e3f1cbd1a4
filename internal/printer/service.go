package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mattjoyce/hostbridge/internal/events"
	"github.com/mattjoyce/hostbridge/internal/metrics"
)

// Publisher receives printer status changes.
type Publisher interface {
	Publish(eventType string, data any)
}

// PrintOptions controls a single text job.
type PrintOptions struct {
	Copies int  `json:"copies"`
	Bold   bool `json:"bold"`
}

// Status is a point-in-time view of the printer link.
type Status struct {
	Online     bool     `json:"online"`
	PaperLevel string   `json:"paper_level"`
	Errors     []string `json:"errors"`
	Device     *Device  `json:"device,omitempty"`
}

// Service owns at most one printer connection.
type Service struct {
	dialer  Dialer
	paired  []Device
	filters []string
	events  Publisher
	logger  *slog.Logger

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	device *Device
}

// NewService builds a printer service over the paired device list.
// pub may be nil.
func NewService(dialer Dialer, paired []Device, filters []string, pub Publisher, logger *slog.Logger) *Service {
	return &Service{
		dialer:  dialer,
		paired:  paired,
		filters: filters,
		events:  pub,
		logger:  logger.With("component", "printer"),
	}
}

// Devices lists the paired devices that look like printers.
func (s *Service) Devices() []Device {
	return Discover(s.paired, s.filters)
}

// Connect opens a link to the printer at address, replacing any existing
// link.
func (s *Service) Connect(ctx context.Context, address string) (Device, error) {
	var target *Device
	for _, d := range s.Devices() {
		if d.Address == address {
			d := d
			target = &d
			break
		}
	}
	if target == nil {
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()
	conn, err := s.dialer.Dial(ctx, address)
	if err != nil {
		s.logger.Warn("printer connect failed", "address", address, "error", err)
		s.publishLocked()
		return Device{}, fmt.Errorf("connect %s: %w", address, err)
	}
	s.conn = conn
	s.device = target
	s.logger.Info("printer connected", "address", address, "name", target.Name)
	s.publishLocked()
	return *target, nil
}

// Disconnect closes the current link. It is a no-op when not connected.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.closeLocked()
	s.publishLocked()
	return err
}

// Connected reports whether a link is open.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// PrintText sends text as one page per copy.
func (s *Service) PrintText(text string, opts PrintOptions) error {
	copies := opts.Copies
	if copies <= 0 {
		copies = 1
	}
	job := EncodeJob(text, opts.Bold)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		metrics.RecordPrintJob(false)
		return ErrNotConnected
	}

	w := bufio.NewWriter(s.conn)
	for i := 0; i < copies; i++ {
		if _, err := w.Write(job); err != nil {
			return s.failLocked(err)
		}
	}
	if err := w.Flush(); err != nil {
		return s.failLocked(err)
	}
	metrics.RecordPrintJob(true)
	s.logger.Debug("print job sent", "bytes", len(job), "copies", copies)
	return nil
}

// SendRaw writes data to the printer unmodified.
func (s *Service) SendRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		metrics.RecordPrintJob(false)
		return ErrNotConnected
	}
	if _, err := s.conn.Write(data); err != nil {
		return s.failLocked(err)
	}
	metrics.RecordPrintJob(true)
	return nil
}

// Status reports link state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	if s.conn == nil {
		return Status{Online: false, PaperLevel: "unknown", Errors: []string{"Printer not connected"}}
	}
	d := *s.device
	return Status{Online: true, PaperLevel: "normal", Errors: []string{}, Device: &d}
}

// failLocked drops a link that returned a write error.
func (s *Service) failLocked(err error) error {
	metrics.RecordPrintJob(false)
	s.logger.Warn("printer write failed", "error", err)
	if cerr := s.closeLocked(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	s.publishLocked()
	return fmt.Errorf("print: %w", err)
}

func (s *Service) closeLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.device = nil
	return err
}

func (s *Service) publishLocked() {
	if s.events == nil {
		return
	}
	s.events.Publish(events.TypePrinterStatus, s.statusLocked())
}
