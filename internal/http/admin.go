package http

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
	"github.com/sparklab-cy/sparklab.cy/internal/repository"
)

func (s *Server) handleAdminKits(w http.ResponseWriter, r *http.Request) {
	kits, err := s.store.ListKits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	codes, err := s.store.ListKitCodes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	purchases, err := s.store.ListPurchases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kits":      kitViews(kits),
		"codes":     codeViews(codes),
		"purchases": purchaseViews(purchases),
	})
}

type createKitRequest struct {
	Name        string  `json:"name"`
	Theme       string  `json:"theme"`
	Level       int     `json:"level"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	KitType     string  `json:"kitType"`
}

func (s *Server) handleCreateKit(w http.ResponseWriter, r *http.Request) {
	var req createKitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name")
		return
	}
	if req.KitType == "" {
		req.KitType = "normal"
	}

	kit := model.Kit{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Theme:       req.Theme,
		Level:       req.Level,
		Description: req.Description,
		Price:       req.Price,
		KitType:     req.KitType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateKit(r.Context(), kit); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, kitToView(kit))
}

type updateKitRequest struct {
	Name        *string  `json:"name"`
	Theme       *string  `json:"theme"`
	Level       *int     `json:"level"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	KitType     *string  `json:"kitType"`
}

func (s *Server) handleUpdateKit(w http.ResponseWriter, r *http.Request) {
	kitID := chi.URLParam(r, "kitId")

	var req updateKitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	kit, err := s.store.UpdateKit(r.Context(), kitID, repository.KitUpdate{
		Name:        req.Name,
		Theme:       req.Theme,
		Level:       req.Level,
		Description: req.Description,
		Price:       req.Price,
		KitType:     req.KitType,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "kit_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, kitToView(kit))
}

type generateCodesRequest struct {
	Quantity  int        `json:"quantity"`
	CodeType  string     `json:"codeType"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// handleGenerateKitCodes mints a batch of single-use codes for a kit.
func (s *Server) handleGenerateKitCodes(w http.ResponseWriter, r *http.Request) {
	kitID := chi.URLParam(r, "kitId")

	var req generateCodesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.Quantity > 500 {
		writeError(w, http.StatusBadRequest, "too_many_codes")
		return
	}
	if req.CodeType == "" {
		req.CodeType = "access_code"
	}

	kit, err := s.store.GetKit(r.Context(), kitID)
	if err != nil {
		writeError(w, http.StatusNotFound, "kit_not_found")
		return
	}

	now := time.Now().UTC()
	codes := make([]model.KitCode, 0, req.Quantity)
	for i := 0; i < req.Quantity; i++ {
		code, err := generateCode(8)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		codes = append(codes, model.KitCode{
			ID:        uuid.NewString(),
			KitID:     kit.ID,
			Code:      code,
			CodeType:  req.CodeType,
			ExpiresAt: req.ExpiresAt,
			CreatedAt: now,
		})
	}

	if err := s.store.InsertKitCodes(r.Context(), codes); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	plain := make([]string, 0, len(codes))
	for _, c := range codes {
		plain = append(plain, c.Code)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"kitId": kit.ID,
		"codes": plain,
	})
}

func (s *Server) handleDeleteKitCode(w http.ResponseWriter, r *http.Request) {
	codeID := chi.URLParam(r, "codeId")

	deleted, err := s.store.DeleteKitCode(r.Context(), codeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "code_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type adminGrantRequest struct {
	UserID    string     `json:"userId"`
	KitID     string     `json:"kitId"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// handleAdminGrantAccess hands a kit to a user without payment. The ledger
// row records amount 0 with method "admin_grant" and is tolerated to fail.
func (s *Server) handleAdminGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req adminGrantRequest
	if err := decodeJSON(r, &req); err != nil || req.UserID == "" || req.KitID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	profile, err := s.store.GetProfileByID(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	kit, err := s.store.GetKit(r.Context(), req.KitID)
	if err != nil {
		writeError(w, http.StatusNotFound, "kit_not_found")
		return
	}

	now := time.Now().UTC()
	perm := model.UserPermission{
		ID:             uuid.NewString(),
		UserID:         profile.ID,
		KitID:          kit.ID,
		PermissionType: "course_access",
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now,
	}
	if err := s.store.UpsertPermission(r.Context(), perm); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	completedAt := now
	purchase := model.Purchase{
		ID:            uuid.NewString(),
		UserID:        profile.ID,
		KitID:         kit.ID,
		Amount:        0,
		Currency:      "usd",
		PaymentMethod: "admin_grant",
		PaymentStatus: "completed",
		CompletedAt:   &completedAt,
		CreatedAt:     now,
	}
	if err := s.store.InsertPurchase(r.Context(), purchase); err != nil {
		s.log.Error("admin grant ledger write failed",
			zap.String("user_id", profile.ID),
			zap.String("kit_id", kit.ID),
			zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId": profile.ID,
		"kitId":  kit.ID,
	})
}

func (s *Server) handleAdminCreateLesson(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")

	course, err := s.store.GetOfficialCourse(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusNotFound, "course_not_found")
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
		CourseType:        "official",
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

func (s *Server) handleAdminDeleteLesson(w http.ResponseWriter, r *http.Request) {
	lessonID := chi.URLParam(r, "lessonId")

	deleted, err := s.store.DeleteLesson(r.Context(), lessonID)
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

func (s *Server) handleAdminPublishLesson(w http.ResponseWriter, r *http.Request) {
	s.adminSetLessonPublished(w, r, true)
}

func (s *Server) handleAdminUnpublishLesson(w http.ResponseWriter, r *http.Request) {
	s.adminSetLessonPublished(w, r, false)
}

func (s *Server) adminSetLessonPublished(w http.ResponseWriter, r *http.Request, published bool) {
	lessonID := chi.URLParam(r, "lessonId")

	if _, err := s.store.GetLesson(r.Context(), lessonID); err != nil {
		writeError(w, http.StatusNotFound, "lesson_not_found")
		return
	}
	if err := s.store.SetLessonPublished(r.Context(), lessonID, published); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isPublished": published})
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateCode draws from crypto/rand. The code column is unique, so the
// rare collision fails the batch insert instead of issuing a duplicate.
func generateCode(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
