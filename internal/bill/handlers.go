package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const (
	// maxUploadSize bounds a receipt upload, multipart overhead included
	maxUploadSize = int64(10 << 20)

	// maxBillSize bounds the JSON body of a bill update
	maxBillSize = int64(64 << 10)
)

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, err error, notFound string) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, ErrUnsupportedFileType):
		writeError(w, http.StatusUnsupportedMediaType, "Le fichier n'est pas une image JPG ou PNG.")
	default:
		slog.Error("Bill store error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// handleListBills returns the bills, filtered by the email query parameter when given
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.service.ListBills(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, bills)
}

// handleCreateBill receives a receipt and creates its draft bill
func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 10MB.")
			return
		}
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "Aucun fichier n'a été sélectionné."
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	upload, err := s.service.CreateBill(r.Context(), header.Filename, data, r.FormValue("email"))
	if err != nil {
		slog.Error("Error creating bill", "filename", header.Filename, "error", err)
		writeServiceError(w, err, "Bill not found")
		return
	}

	writeJSON(w, http.StatusCreated, upload)
}

// handleUpdateBill stores the submitted bill; without an id in the path it creates one
func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBillSize)

	var in Bill
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id := r.PathValue("id")
	bill, err := s.service.UpdateBill(r.Context(), id, &in)
	if err != nil {
		writeServiceError(w, err, "Bill not found")
		return
	}

	code := http.StatusOK
	if id == "" {
		code = http.StatusCreated
	}
	writeJSON(w, code, bill)
}

// handleGetBill returns a single bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "Bill not found")
		return
	}

	writeJSON(w, http.StatusOK, bill)
}

// handleGetBillFile returns the receipt of a bill
func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetBillFile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteBill deletes a bill and its receipt
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteBill(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err, "Bill not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
