package httpapi

import (
	"arboria/pkg/domain"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type errorBody struct {
	Error    string           `json:"error"`
	Kind     domain.ErrorKind `json:"kind"`
	Problems []string         `json:"problems,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindCellOccupied, domain.KindRuleViolation:
		return http.StatusConflict
	case domain.KindInvalidPosition, domain.KindInvalidType, domain.KindInvalidDocument:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := errorBody{Error: err.Error(), Kind: kind, Problems: domain.Problems(err)}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user", UserFrom(r.Context())),
			zap.Error(err),
		)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// decodeJSON reads one JSON value into dst. Syntax and type errors become
// invalid input.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return domain.InputError{Field: "body", Reason: "empty request body"}
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.InputError{Field: "body", Reason: "empty request body"}
		}
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrInvalidType) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.InputError{Field: "body", Reason: "request body too large"}
		}
		return domain.InputError{Field: "body", Reason: err.Error()}
	}
	return nil
}
