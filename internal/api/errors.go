package api

import (
	"net/http"

	"github.com/mattjoyce/hostbridge/internal/deletion"
)

// kindStatus maps deletion failure kinds to HTTP status codes.
var kindStatus = map[deletion.Kind]int{
	deletion.KindFileNotFound:     http.StatusNotFound,
	deletion.KindPermissionDenied: http.StatusForbidden,
	deletion.KindUserDenied:       http.StatusForbidden,
	deletion.KindNoHostContext:    http.StatusPreconditionFailed,
	deletion.KindDeletionFailed:   http.StatusUnprocessableEntity,
	deletion.KindHostIndexError:   http.StatusBadGateway,
	deletion.KindTimeout:          http.StatusGatewayTimeout,
	deletion.KindBusy:             http.StatusConflict,
	deletion.KindCanceled:         http.StatusConflict,
	deletion.KindPermissionNeeded: http.StatusForbidden,
}

func statusForKind(k deletion.Kind) int {
	if code, ok := kindStatus[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}
