package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

// handleListCourses renders the catalog: official courses for the kits the
// user owns, public community courses, and for a signed-in user their own
// creations. ?kit= narrows both lists to one kit.
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	now := time.Now().UTC()

	var ownedKitIDs []string
	if claims != nil {
		ids, err := s.store.ListUserKitIDs(r.Context(), claims.UserID, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		ownedKitIDs = ids
	}

	kitIDs := ownedKitIDs
	if kit := r.URL.Query().Get("kit"); kit != "" {
		kitIDs = []string{kit}
	}

	official, err := s.store.ListOfficialCourses(r.Context(), kitIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	public, err := s.store.ListPublicCourses(r.Context(), kitIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	payload := map[string]interface{}{
		"official":         officialCourseViews(official),
		"community":        courseViews(public),
		"ownedKits":        ownedKitIDs,
		"canCreateCourses": len(ownedKitIDs) > 0,
	}

	if claims != nil {
		mine, err := s.store.ListCoursesByCreator(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		payload["mine"] = courseViews(mine)
	}

	writeJSON(w, http.StatusOK, payload)
}

type createCourseRequest struct {
	KitID       string `json:"kitId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req createCourseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeActionError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.KitID == "" {
		writeActionError(w, http.StatusBadRequest, "Title and kit are required")
		return
	}

	now := time.Now().UTC()
	if !s.store.HasKitAccess(r.Context(), claims.UserID, req.KitID, now) {
		writeActionError(w, http.StatusForbidden, "You need this kit to create a course for it")
		return
	}

	course := model.CustomCourse{
		ID:          uuid.NewString(),
		CreatorID:   claims.UserID,
		KitID:       req.KitID,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		IsPublic:    req.IsPublic,
		InviteToken: newInviteToken(),
		CreatedAt:   now,
	}
	if err := s.store.CreateCustomCourse(r.Context(), course); err != nil {
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "course": ownerCourseToView(course)})
}

// courseGate decides whether a user may view a community course. The creator
// always passes. Everyone else clears two independent gates: the course gate
// (published, and public or granted) and the kit gate (a live entitlement for
// the course's kit).
func (s *Server) courseGate(r *http.Request, course model.CustomCourse, userID string) bool {
	if course.CreatorID == userID {
		return true
	}
	if !course.IsPublished {
		return false
	}

	if !course.IsPublic {
		if _, err := s.store.GetGrant(r.Context(), course.ID, userID); err != nil {
			return false
		}
	}

	return s.store.HasKitAccess(r.Context(), userID, course.KitID, time.Now().UTC())
}

// handleCommunityCourse is the course page. A grant holder's first visit
// stamps joined_at, whether or not the course happens to be public; later
// visits leave it untouched.
func (s *Server) handleCommunityCourse(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	courseID := chi.URLParam(r, "courseId")

	course, err := s.store.GetCustomCourse(r.Context(), courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "course_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if !s.courseGate(r, course, claims.UserID) {
		writeError(w, http.StatusForbidden, "no_course_access")
		return
	}
	if course.CreatorID != claims.UserID {
		if grant, err := s.store.GetGrant(r.Context(), course.ID, claims.UserID); err == nil && grant.JoinedAt == nil {
			if err := s.store.StampJoinedAt(r.Context(), grant.ID, time.Now().UTC()); err != nil {
				s.log.Warn("joined_at stamp failed", zap.String("grant_id", grant.ID), zap.Error(err))
			}
		}
	}

	lessons, err := s.store.ListVisibleLessons(r.Context(), course.ID, "custom", claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	progress, err := s.store.ListCourseProgress(r.Context(), claims.UserID, course.ID, "custom")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"course":   courseToView(course),
		"lessons":  lessonViews(lessons),
		"progress": progressViews(progress),
	})
}

// handleCommunityLesson serves one lesson with its files and the sibling
// list. A per-user hide row blocks the lesson even for users who can see the
// course.
func (s *Server) handleCommunityLesson(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	courseID := chi.URLParam(r, "courseId")
	lessonID := chi.URLParam(r, "lessonId")

	course, err := s.store.GetCustomCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusNotFound, "course_not_found")
		return
	}
	if !s.courseGate(r, course, claims.UserID) {
		writeError(w, http.StatusForbidden, "no_course_access")
		return
	}

	lesson, err := s.store.GetLesson(r.Context(), lessonID)
	if err != nil || lesson.CourseID != course.ID {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}
	isCreator := course.CreatorID == claims.UserID
	if !isCreator && (!lesson.IsPublished || s.store.IsLessonHidden(r.Context(), lesson.ID, claims.UserID)) {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}

	files, err := s.store.ListLessonFiles(r.Context(), lesson.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	siblings, err := s.store.ListVisibleLessons(r.Context(), course.ID, "custom", claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lesson":  lessonToView(lesson),
		"files":   lessonFileViews(files),
		"lessons": lessonViews(siblings),
	})
}

type progressRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleLessonProgress(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	courseID := chi.URLParam(r, "courseId")
	lessonID := chi.URLParam(r, "lessonId")

	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	switch req.Status {
	case "in_progress", "completed":
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	course, err := s.store.GetCustomCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusNotFound, "course_not_found")
		return
	}
	if !s.courseGate(r, course, claims.UserID) {
		writeError(w, http.StatusForbidden, "no_course_access")
		return
	}

	lesson, err := s.store.GetLesson(r.Context(), lessonID)
	if err != nil || lesson.CourseID != course.ID {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}

	progress := model.LessonProgress{
		ID:         uuid.NewString(),
		UserID:     claims.UserID,
		CourseID:   course.ID,
		CourseType: "custom",
		LessonID:   lesson.ID,
		Status:     req.Status,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.store.UpsertProgress(r.Context(), progress); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

// handleJoinByInvite turns an invite link into a grant. Joining twice is a
// no-op thanks to the unique (course_id, user_id) pair, and the response is
// the same either way.
func (s *Server) handleJoinByInvite(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	token := chi.URLParam(r, "token")

	course, err := s.store.GetCourseByInviteToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeActionError(w, http.StatusNotFound, "This invite link is not valid")
			return
		}
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	if course.CreatorID != claims.UserID {
		grant := model.CourseAccessGrant{
			ID:        uuid.NewString(),
			CourseID:  course.ID,
			UserID:    claims.UserID,
			GrantedBy: course.CreatorID,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.UpsertGrant(r.Context(), grant); err != nil {
			writeActionError(w, http.StatusInternalServerError, "Something went wrong")
			return
		}
		// The conflict case keeps the original row, so re-read for its id.
		stored, err := s.store.GetGrant(r.Context(), course.ID, claims.UserID)
		if err == nil && stored.JoinedAt == nil {
			if err := s.store.StampJoinedAt(r.Context(), stored.ID, time.Now().UTC()); err != nil {
				s.log.Warn("joined_at stamp failed", zap.String("grant_id", stored.ID), zap.Error(err))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"courseId": course.ID,
		"title":    course.Title,
	})
}

func newInviteToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
