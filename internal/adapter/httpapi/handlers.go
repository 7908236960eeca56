package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/storage"
)

// maxUploadBytes caps one upload request; a season of logged races fits
// comfortably under this.
const maxUploadBytes = 256 << 20

type uploadedFile struct {
	Filename string `json:"filename"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
}

func (s *Server) handleUploadLogs(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	if !storage.ValidBoatID(boat) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid boat id %q", boat))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form upload: "+err.Error())
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided under form field 'files'")
		return
	}

	// Reject the whole request before storing anything, so a bad filename
	// cannot leave a partial upload behind.
	for _, fh := range files {
		if !allowedLogName(fh.Filename) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file %q: want .csv or .csv.gz", fh.Filename))
			return
		}
	}

	var stored []uploadedFile
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
			return
		}
		key, err := s.library.AddLog(r.Context(), boat, fh.Filename, f)
		f.Close()
		if err != nil {
			s.logger.Error("store log failed", "boat", boat, "filename", fh.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "store log file")
			return
		}
		s.metrics.UploadsTotal.Inc()
		stored = append(stored, uploadedFile{Filename: fh.Filename, Key: key, Size: fh.Size})
	}

	s.logger.Info("logs uploaded", "boat", boat, "files", len(stored))
	writeJSON(w, http.StatusCreated, map[string]any{"boat": boat, "files": stored})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	keys, err := s.library.ListLogs(r.Context(), boat)
	if err != nil {
		s.writeLibraryError(w, boat, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boat": boat, "logs": keys})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	if !storage.ValidBoatID(boat) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid boat id %q", boat))
		return
	}

	table, summary, err := s.generator.Generate(r.Context(), boat)
	switch {
	case errors.Is(err, domain.ErrNoValidData), errors.Is(err, domain.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("generation failed", "boat", boat, "error", err)
		writeError(w, http.StatusInternalServerError, "polar generation failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"boat":    boat,
		"version": summary.Version,
		"summary": summary,
		"table":   table,
	})
}

func (s *Server) handleListPolars(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	summaries, err := s.library.ListPolars(r.Context(), boat)
	if err != nil {
		s.writeLibraryError(w, boat, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boat": boat, "polars": summaries})
}

func (s *Server) handleLatestPolar(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	table, version, err := s.library.LatestPolar(r.Context(), boat)
	if err != nil {
		s.writeLibraryError(w, boat, err)
		return
	}
	if version == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("boat %s has no polars yet", boat))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boat": boat, "version": version, "table": table})
}

func (s *Server) handleDownloadPolar(w http.ResponseWriter, r *http.Request) {
	boat := r.PathValue("boat")
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	rc, err := s.library.OpenPolar(r.Context(), boat, version)
	if err != nil {
		s.writeLibraryError(w, boat, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_v%d.pol", boat, version)))
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("polar download interrupted", "boat", boat, "version", version, "error", err)
	}
}

func (s *Server) writeLibraryError(w http.ResponseWriter, boat string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidBoat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("storage error", "boat", boat, "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}

// allowedLogName accepts the upload formats the parser understands.
func allowedLogName(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz")
}
