package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/viollenaki/nurtilek/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error to the {success:false, message} envelope. Causes of
// internal errors are logged, never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal || kind == apperr.Delivery {
		log.Printf("error: %v", err)
	}
	writeJSON(w, kind.HTTPStatus(), map[string]any{
		"success": false,
		"message": apperr.ClientMessage(err),
	})
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

const maxUploadBytes = 10 << 20

// readFormFile returns the bytes and filename of an uploaded file, or nil when
// the field is absent.
func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Validation, "malformed file upload", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, "internal server error", err)
	}
	return data, header.Filename, nil
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "malformed request body", err)
	}
	return nil
}
