package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

type redeemRequest struct {
	Code string `json:"code"`
}

// handleRedeemCode exchanges a one-time kit code for an entitlement.
//
// The claim is two-phased: the lookup only sees unused codes, and the marking
// UPDATE re-checks is_used so that two concurrent requests for the same code
// cannot both win. The grant and its zero-amount ledger row commit in one
// transaction; a code must never be burned without the entitlement landing.
func (s *Server) handleRedeemCode(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeActionError(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		writeActionError(w, http.StatusBadRequest, "Invalid or expired code")
		return
	}

	kitCode, err := s.store.GetUnusedCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeActionError(w, http.StatusNotFound, "Invalid or expired code")
			return
		}
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	now := time.Now().UTC()
	if kitCode.ExpiresAt != nil && kitCode.ExpiresAt.Before(now) {
		writeActionError(w, http.StatusGone, "This code has expired")
		return
	}

	if s.store.HasKitAccess(r.Context(), claims.UserID, kitCode.KitID, now) {
		writeActionError(w, http.StatusConflict, "You already have access to this kit")
		return
	}

	claimed, err := s.store.ClaimCode(r.Context(), kitCode.ID, claims.UserID, now)
	if err != nil {
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if !claimed {
		writeActionError(w, http.StatusConflict, "This code has already been used")
		return
	}

	perm := model.UserPermission{
		ID:             uuid.NewString(),
		UserID:         claims.UserID,
		KitID:          kitCode.KitID,
		PermissionType: "course_access",
		CreatedAt:      now,
	}
	completedAt := now
	codeID := kitCode.ID
	purchase := model.Purchase{
		ID:            uuid.NewString(),
		UserID:        claims.UserID,
		KitID:         kitCode.KitID,
		Amount:        0,
		Currency:      "usd",
		PaymentMethod: "code_redemption",
		PaymentStatus: "completed",
		KitCodeID:     &codeID,
		CompletedAt:   &completedAt,
		CreatedAt:     now,
	}
	if err := s.store.GrantWithPurchase(r.Context(), perm, purchase); err != nil {
		s.log.Error("redemption grant failed after code claim",
			zap.String("user_id", claims.UserID),
			zap.String("code_id", kitCode.ID),
			zap.Error(err))
		writeActionError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	kit, err := s.store.GetKit(r.Context(), kitCode.KitID)
	if err != nil {
		kit = model.Kit{ID: kitCode.KitID}
	}
	if profile, err := s.store.GetProfileByID(r.Context(), claims.UserID); err == nil {
		if err := s.mailer.SendCodeRedemptionConfirmation(r.Context(), profile, kit); err != nil {
			s.log.Warn("redemption email failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"kitId":   kitCode.KitID,
		"kitName": kit.Name,
	})
}
