package http

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/compiler"
	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

const maxUploadBytes = 100 << 20

var allowedExtensions = map[string]string{
	".svelte": "component",
	".md":     "markdown",
	".mp4":    "video",
	".webm":   "video",
	".ogg":    "video",
	".mov":    "video",
	".avi":    "video",
}

// handleUploadLessonFile stores a lesson source file on disk and registers it.
// Component files are sent to the compiler first; if compilation fails the
// upload is rolled back so the lesson never references a broken component.
func (s *Server) handleUploadLessonFile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	lessonID := r.FormValue("lessonId")
	tabOrder, _ := strconv.Atoi(r.FormValue("tabOrder"))

	lesson, err := s.store.GetLesson(r.Context(), lessonID)
	if err != nil {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}
	if !s.canEditLesson(r, lesson, claims.UserID) {
		writeError(w, http.StatusForbidden, "not_lesson_owner")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	fileType, ok := allowedExtensions[ext]
	if !ok {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_file_type")
		return
	}

	source, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if len(source) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
		return
	}

	fileID := uuid.NewString()
	dir := filepath.Join(s.cfg.FileStoreDir, lesson.ID, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	storagePath := filepath.Join(dir, name)
	if err := os.WriteFile(storagePath, source, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	record := model.LessonFile{
		ID:          fileID,
		LessonID:    lesson.ID,
		FileName:    name,
		FileType:    fileType,
		StoragePath: storagePath,
		TabOrder:    tabOrder,
		CreatedAt:   time.Now().UTC(),
	}

	if fileType == "component" {
		compiled, err := s.compiler.Compile(r.Context(), name, string(source))
		if err != nil {
			_ = os.RemoveAll(dir)
			var compileErr *compiler.CompileError
			if errors.As(err, &compileErr) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"error":   "compile_failed",
					"message": compileErr.Message,
				})
				return
			}
			if errors.Is(err, compiler.ErrNotConfigured) {
				writeError(w, http.StatusServiceUnavailable, "compiler_unavailable")
				return
			}
			writeError(w, http.StatusBadGateway, "compiler_error")
			return
		}
		compiledPath := filepath.Join(dir, "compiled.js")
		if err := os.WriteFile(compiledPath, compiled, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		record.CompiledPath = &compiledPath
	}

	if err := s.store.InsertLessonFile(r.Context(), record); err != nil {
		_ = os.RemoveAll(dir)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, lessonFileToView(record))
}

func (s *Server) handleDeleteLessonFile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	fileID := chi.URLParam(r, "fileId")

	record, err := s.store.GetLessonFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "file_not_found")
		return
	}
	lesson, err := s.store.GetLesson(r.Context(), record.LessonID)
	if err != nil {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}
	if !s.canEditLesson(r, lesson, claims.UserID) {
		writeError(w, http.StatusForbidden, "not_lesson_owner")
		return
	}

	deleted, err := s.store.DeleteLessonFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "file_not_found")
		return
	}

	// Row is gone; leftover bytes on disk are harmless if this fails.
	if err := os.RemoveAll(filepath.Dir(record.StoragePath)); err != nil {
		s.log.Warn("lesson file cleanup failed", zap.String("file_id", fileID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleLessonFileContent serves the raw source. The compiled form is
// requested with ?compiled=1 and answers as a module script.
func (s *Server) handleLessonFileContent(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	record, err := s.store.GetLessonFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "file_not_found")
		return
	}

	if r.URL.Query().Get("compiled") == "1" {
		if record.CompiledPath == nil {
			writeError(w, http.StatusNotFound, "not_compiled")
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		http.ServeFile(w, r, *record.CompiledPath)
		return
	}

	// Content type comes from the file extension; videos stream as-is.
	http.ServeFile(w, r, record.StoragePath)
}

// handleLessonPreview renders a sandboxed HTML page that mounts the compiled
// component. Framework imports resolve through the CDN via the import map,
// and the frame headers keep the page embeddable only from the site itself.
func (s *Server) handleLessonPreview(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileId")

	record, err := s.store.GetLessonFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "file_not_found")
		return
	}
	if record.CompiledPath == nil {
		writeError(w, http.StatusBadRequest, "not_previewable")
		return
	}

	page := previewPage(s.cfg.ComponentCDN, "/api/lesson-files/"+record.ID+"/content?compiled=1")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' "+s.cfg.ComponentCDN+"; style-src 'self' 'unsafe-inline'; connect-src 'self' "+s.cfg.ComponentCDN)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

func previewPage(cdn, moduleURL string) string {
	return `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<script type="importmap">
{"imports":{"svelte":"` + cdn + `","svelte/":"` + cdn + `/"}}
</script>
</head>
<body>
<div id="app"></div>
<script type="module">
import { mount } from "svelte";
import Component from "` + moduleURL + `";
mount(Component, { target: document.getElementById("app") });
</script>
</body>
</html>`
}

// canEditLesson allows the creator of the owning community course, and any
// admin for official course lessons.
func (s *Server) canEditLesson(r *http.Request, lesson model.Lesson, userID string) bool {
	if lesson.CourseType == "custom" {
		course, err := s.store.GetCustomCourse(r.Context(), lesson.CourseID)
		return err == nil && course.CreatorID == userID
	}
	profile, err := s.store.GetProfileByID(r.Context(), userID)
	return err == nil && profile.Role == "admin"
}
