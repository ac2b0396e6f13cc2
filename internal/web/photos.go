package web

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	applog "famcal/internal/log"
	"famcal/internal/model"
)

// maxBulkPhotos bounds one bulk upload request.
const maxBulkPhotos = 20

const maxUploadMemory = 32 << 20 // 32 MiB before multipart spills to disk

func (s *Server) handleListPhotos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.repo.Photos())
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() { _ = file.Close() }()

	photo, err := s.savePhoto(file, header)
	if err != nil {
		applog.Error("failed to save uploaded photo", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, "Failed to upload photo")
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (s *Server) handleUploadPhotosBulk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	headers := r.MultipartForm.File["photos"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(headers) > maxBulkPhotos {
		headers = headers[:maxBulkPhotos]
	}

	uploaded := make([]model.Photo, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			applog.Error("failed to open uploaded part", err, "filename", header.Filename)
			continue
		}
		photo, err := s.savePhoto(file, header)
		_ = file.Close()
		if err != nil {
			applog.Error("failed to save uploaded photo", err, "filename", header.Filename)
			continue
		}
		uploaded = append(uploaded, photo)
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool          `json:"success"`
		Count   int           `json:"count"`
		Photos  []model.Photo `json:"photos"`
	}{Success: true, Count: len(uploaded), Photos: uploaded})
}

// savePhoto writes the uploaded file into the configured photo directory
// under a fresh UUID name, preserving the original extension, and records
// it in the store.
func (s *Server) savePhoto(file multipart.File, header *multipart.FileHeader) (model.Photo, error) {
	photoDir := s.repo.Settings().PhotoDirectory
	if err := os.MkdirAll(photoDir, 0o755); err != nil {
		return model.Photo{}, fmt.Errorf("create photo directory: %w", err)
	}

	filename := uuid.NewString() + filepath.Ext(header.Filename)
	photoPath := filepath.Join(photoDir, filename)

	dst, err := os.Create(photoPath)
	if err != nil {
		return model.Photo{}, fmt.Errorf("create photo file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		_ = os.Remove(photoPath)
		return model.Photo{}, fmt.Errorf("write photo file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return model.Photo{}, fmt.Errorf("close photo file: %w", err)
	}

	return s.repo.CreatePhoto(filename, photoPath), nil
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !s.repo.DeletePhoto(id) {
		writeError(w, http.StatusNotFound, "Photo not found")
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// photoFileServer serves the photo directory. The directory is resolved per
// request because settings can change it at runtime.
func (s *Server) photoFileServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := s.repo.Settings().PhotoDirectory
		http.FileServer(http.Dir(dir)).ServeHTTP(w, r)
	})
}
