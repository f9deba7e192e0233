package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
	"github.com/sparklab-cy/sparklab.cy/internal/repository"
)

// ownCourse loads the course from the route and verifies the caller created
// it. Every editor handler goes through here.
func (s *Server) ownCourse(w http.ResponseWriter, r *http.Request) (model.CustomCourse, bool) {
	claims := claimsFromContext(r.Context())
	courseID := chi.URLParam(r, "courseId")

	course, err := s.store.GetCustomCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "course_not_found")
		} else {
			writeError(w, http.StatusInternalServerError, "server_error")
		}
		return model.CustomCourse{}, false
	}
	if course.CreatorID != claims.UserID {
		writeError(w, http.StatusForbidden, "not_course_owner")
		return model.CustomCourse{}, false
	}
	return course, true
}

// handleEditorCourse is the editor view: all lessons regardless of publish
// state, the grant list, and the per-student hide matrix.
func (s *Server) handleEditorCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}

	lessons, err := s.store.ListLessons(r.Context(), course.ID, "custom")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	grants, err := s.store.ListGrants(r.Context(), course.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hidden, err := s.store.ListHiddenPairs(r.Context(), course.ID, "custom")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	type grantView struct {
		ID       string     `json:"id"`
		UserID   string     `json:"userId"`
		FullName string     `json:"fullName"`
		Email    string     `json:"email"`
		JoinedAt *time.Time `json:"joinedAt"`
	}
	grantViews := make([]grantView, 0, len(grants))
	for _, g := range grants {
		grantViews = append(grantViews, grantView{
			ID:       g.Grant.ID,
			UserID:   g.Grant.UserID,
			FullName: g.FullName,
			Email:    g.Email,
			JoinedAt: g.Grant.JoinedAt,
		})
	}

	hiddenByLesson := map[string][]string{}
	for _, pair := range hidden {
		hiddenByLesson[pair.LessonID] = append(hiddenByLesson[pair.LessonID], pair.UserID)
	}

	filesByLesson := map[string][]lessonFileView{}
	for _, lesson := range lessons {
		files, err := s.store.ListLessonFiles(r.Context(), lesson.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		filesByLesson[lesson.ID] = lessonFileViews(files)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"course":     ownerCourseToView(course),
		"lessons":    lessonViews(lessons),
		"files":      filesByLesson,
		"students":   grantViews,
		"hidden":     hiddenByLesson,
		"inviteLink": s.cfg.SiteURL + "/courses/join/" + course.InviteToken,
	})
}

type updateCourseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
	IsPublished *bool   `json:"isPublished"`
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}

	var req updateCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	updated, err := s.store.UpdateCustomCourse(r.Context(), course.ID, repository.CourseUpdate{
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		IsPublished: req.IsPublished,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, ownerCourseToView(updated))
}

type createLessonRequest struct {
	Title             string `json:"title"`
	ContentType       string `json:"contentType"`
	OrderIndex        int    `json:"orderIndex"`
	EstimatedDuration *int   `json:"estimatedDuration"`
}

func (s *Server) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}

	var req createLessonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "missing_title")
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}

	lesson := model.Lesson{
		ID:                uuid.NewString(),
		CourseID:          course.ID,
		CourseType:        "custom",
		Title:             req.Title,
		ContentType:       req.ContentType,
		OrderIndex:        req.OrderIndex,
		EstimatedDuration: req.EstimatedDuration,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.CreateLesson(r.Context(), lesson); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, lessonToView(lesson))
}

func (s *Server) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}
	lesson, ok := s.courseLesson(w, r, course.ID)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteLesson(r.Context(), lesson.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePublishLesson(w http.ResponseWriter, r *http.Request) {
	s.setCourseLessonPublished(w, r, true)
}

func (s *Server) handleUnpublishLesson(w http.ResponseWriter, r *http.Request) {
	s.setCourseLessonPublished(w, r, false)
}

func (s *Server) setCourseLessonPublished(w http.ResponseWriter, r *http.Request, published bool) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}
	lesson, ok := s.courseLesson(w, r, course.ID)
	if !ok {
		return
	}

	if err := s.store.SetLessonPublished(r.Context(), lesson.ID, published); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isPublished": published})
}

type visibilityRequest struct {
	UserID  string `json:"userId"`
	Visible bool   `json:"visible"`
}

// handleLessonVisibility flips the per-student deny row. Making a lesson
// visible deletes the row, so the matrix only stores the exceptions.
func (s *Server) handleLessonVisibility(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}
	lesson, ok := s.courseLesson(w, r, course.ID)
	if !ok {
		return
	}

	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var err error
	if req.Visible {
		err = s.store.ShowLesson(r.Context(), lesson.ID, req.UserID)
	} else {
		err = s.store.HideLesson(r.Context(), lesson.ID, req.UserID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lessonId": lesson.ID,
		"userId":   req.UserID,
		"visible":  req.Visible,
	})
}

type grantAccessRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}

	var req grantAccessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeActionError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeActionError(w, http.StatusBadRequest, "Email is required")
		return
	}

	student, err := s.store.GetProfileByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeActionError(w, http.StatusNotFound, "No account with that email")
			return
		}
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if student.ID == course.CreatorID {
		writeActionError(w, http.StatusBadRequest, "You already own this course")
		return
	}
	if _, err := s.store.GetGrant(r.Context(), course.ID, student.ID); err == nil {
		writeActionError(w, http.StatusConflict, "This user already has access")
		return
	}

	grant := model.CourseAccessGrant{
		ID:        uuid.NewString(),
		CourseID:  course.ID,
		UserID:    student.ID,
		GrantedBy: claims.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateGrant(r.Context(), grant); err != nil {
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"userId":  student.ID,
		"email":   student.Email,
	})
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}
	grantID := chi.URLParam(r, "grantId")

	deleted, err := s.store.DeleteGrant(r.Context(), grantID, course.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "grant_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// handleRegenerateInviteToken rotates the invite token, which invalidates
// every previously shared link at once.
func (s *Server) handleRegenerateInviteToken(w http.ResponseWriter, r *http.Request) {
	course, ok := s.ownCourse(w, r)
	if !ok {
		return
	}

	token := newInviteToken()
	if err := s.store.UpdateInviteToken(r.Context(), course.ID, token); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"inviteToken": token,
		"inviteLink":  s.cfg.SiteURL + "/courses/join/" + token,
	})
}

// courseLesson loads the lesson from the route and checks it belongs to the
// given course.
func (s *Server) courseLesson(w http.ResponseWriter, r *http.Request, courseID string) (model.Lesson, bool) {
	lessonID := chi.URLParam(r, "lessonId")
	lesson, err := s.store.GetLesson(r.Context(), lessonID)
	if err != nil || lesson.CourseID != courseID {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return model.Lesson{}, false
	}
	return lesson, true
}
