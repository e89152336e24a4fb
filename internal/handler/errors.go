package handler

import (
	"errors"
	"log"
	"net/http"

	"expanddesk/internal/httputil"
	"expanddesk/internal/model"
)

// writeServiceError maps service-layer errors onto the API error format.
// Unknown errors are logged and come back as 500 with no detail leaked.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrTicketNotFound),
		errors.Is(err, model.ErrChatNotFound),
		errors.Is(err, model.ErrMessageNotFound),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrNotificationNotFound):
		httputil.WriteNotFound(w, err.Error())

	case errors.Is(err, model.ErrChatAccessDenied):
		httputil.WriteForbidden(w, err.Error())

	case errors.Is(err, model.ErrTicketClosed):
		httputil.WritePreconditionFailed(w, err.Error())

	case errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidRole),
		errors.Is(err, model.ErrDescriptionRequired),
		errors.Is(err, model.ErrNoteRequired),
		errors.Is(err, model.ErrMessageEmpty),
		errors.Is(err, model.ErrMessageTooLong),
		errors.Is(err, model.ErrInvalidMessageType),
		errors.Is(err, model.ErrInvalidToken):
		httputil.WriteBadRequest(w, err.Error())

	default:
		log.Printf("[ERROR] %s: %v", op, err)
		httputil.WriteInternalError(w, "Internal server error")
	}
}
