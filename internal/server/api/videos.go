package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/store"
)

// VideoExt is the only accepted upload extension.
const VideoExt = ".mp4"

// VideosHandler handles uploads, listing and playback of source videos.
type VideosHandler struct {
	store     *store.Store
	uploadDir string
	maxBytes  int64
	log       *logger.Logger
}

// NewVideosHandler creates a VideosHandler storing uploads in uploadDir.
// maxBytes limits the request body; zero means no limit.
func NewVideosHandler(s *store.Store, uploadDir string, maxBytes int64, log *logger.Logger) *VideosHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &VideosHandler{store: s, uploadDir: uploadDir, maxBytes: maxBytes, log: log}
}

// ServeHTTP routes /api/videos and /api/videos/{name}.
func (h *VideosHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r, "/api/videos")

	switch len(parts) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.upload(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case 1:
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			h.play(w, r, parts[0])
		case http.MethodDelete:
			h.delete(w, r, parts[0])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type videoResponse struct {
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size_bytes"`
	UploadedAt string `json:"uploaded_at"`
}

type listVideosResponse struct {
	Videos []videoResponse `json:"videos"`
}

func toVideoResponse(v *store.Video) videoResponse {
	return videoResponse{
		Name:       v.Name,
		SizeBytes:  v.SizeBytes,
		UploadedAt: formatTime(v.UploadedAt),
	}
}

// list handles GET /api/videos.
func (h *VideosHandler) list(w http.ResponseWriter, r *http.Request) {
	videos, err := h.store.Videos().List()
	if err != nil {
		h.log.Error("failed to list videos", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	response := listVideosResponse{Videos: make([]videoResponse, 0, len(videos))}
	for _, v := range videos {
		response.Videos = append(response.Videos, toVideoResponse(v))
	}
	writeJSON(w, http.StatusOK, response)
}

// upload handles POST /api/videos with a multipart "file" field. Uploading
// an existing name replaces the file.
func (h *VideosHandler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Video is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if !safeName(name) {
		writeError(w, http.StatusBadRequest, "Invalid file name")
		return
	}
	if !strings.EqualFold(filepath.Ext(name), VideoExt) {
		writeError(w, http.StatusBadRequest, "Only MP4 videos are accepted")
		return
	}

	path := filepath.Join(h.uploadDir, name)
	size, err := saveFile(path, file)
	if err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Video is too large")
			return
		}
		h.log.Error("failed to save upload", "video", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save video")
		return
	}

	video := &store.Video{Name: name, Path: path, SizeBytes: size}
	if err := h.store.Videos().Upsert(video); err != nil {
		h.log.Error("failed to record upload", "video", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to record video")
		return
	}

	h.log.Info("video uploaded", "video", name, "size_bytes", size)
	writeJSON(w, http.StatusCreated, toVideoResponse(video))
}

// play handles GET /api/videos/{name}. Range requests are supported.
func (h *VideosHandler) play(w http.ResponseWriter, r *http.Request, name string) {
	if !safeName(name) {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	serveVideo(w, r, filepath.Join(h.uploadDir, name))
}

// delete handles DELETE /api/videos/{name}. Results of the video are kept.
func (h *VideosHandler) delete(w http.ResponseWriter, r *http.Request, name string) {
	if !safeName(name) {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}

	err := h.store.Videos().Delete(name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error("failed to delete video", "video", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete video")
		return
	}
	rmErr := os.Remove(filepath.Join(h.uploadDir, name))
	if errors.Is(err, store.ErrNotFound) && errors.Is(rmErr, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		h.log.Error("failed to remove video file", "video", name, "error", rmErr)
		writeError(w, http.StatusInternalServerError, "Failed to delete video")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// tooLarge reports whether err comes from exceeding the body limit. Some
// multipart errors carry the limit error only in their message.
func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

// saveFile writes src to path through a temporary file in the same
// directory and returns the number of bytes written.
func saveFile(path string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}

// serveVideo streams an MP4 file with range support.
func serveVideo(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "Video not found")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
