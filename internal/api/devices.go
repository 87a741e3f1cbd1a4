package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mattjoyce/hostbridge/internal/notify"
	"github.com/mattjoyce/hostbridge/internal/printer"
)

func (s *Server) printerAvailable(w http.ResponseWriter) bool {
	if s.deps.Printer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "printer not configured")
		return false
	}
	return true
}

func (s *Server) writePrinterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, printer.ErrNotConnected):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, printer.ErrDeviceNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handlePrinterDevices handles GET /printer/devices.
func (s *Server) handlePrinterDevices(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	devices := s.deps.Printer.Devices()
	if devices == nil {
		devices = []printer.Device{}
	}
	respondJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

// handlePrinterStatus handles GET /printer/status.
func (s *Server) handlePrinterStatus(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Printer.Status())
}

// handlePrinterConnect handles POST /printer/connect.
func (s *Server) handlePrinterConnect(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	var req ConnectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Address == "" {
		s.writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	dev, err := s.deps.Printer.Connect(r.Context(), req.Address)
	if err != nil {
		s.writePrinterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dev)
}

// handlePrinterDisconnect handles POST /printer/disconnect.
func (s *Server) handlePrinterDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	if err := s.deps.Printer.Disconnect(); err != nil {
		s.writePrinterError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePrinterPrint handles POST /printer/print.
func (s *Server) handlePrinterPrint(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	var req PrintRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.deps.Printer.PrintText(req.Text, printer.PrintOptions{Copies: req.Copies, Bold: req.Bold}); err != nil {
		s.writePrinterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"printed": true})
}

// handlePrinterRaw handles POST /printer/raw.
func (s *Server) handlePrinterRaw(w http.ResponseWriter, r *http.Request) {
	if !s.printerAvailable(w) {
		return
	}
	var req RawRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || len(req.Data) == 0 {
		s.writeError(w, http.StatusBadRequest, "data must be non-empty base64")
		return
	}
	if err := s.deps.Printer.SendRaw(req.Data); err != nil {
		s.writePrinterError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"sent": len(req.Data)})
}

// handleNotificationCurrent handles GET /notification.
func (s *Server) handleNotificationCurrent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notifications not available")
		return
	}
	n, ok := s.deps.Notifier.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// handleNotification handles POST /notification.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		s.writeError(w, http.StatusServiceUnavailable, "notifications not available")
		return
	}
	var cmd notify.Command
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cmd); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	n, shown, err := s.deps.Notifier.Handle(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, notify.ErrUnknownAction) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !shown {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, n)
}
