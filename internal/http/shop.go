package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

type kitView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Theme       string  `json:"theme"`
	Level       int     `json:"level"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	KitType     string  `json:"kitType"`
	Owned       bool    `json:"owned"`
}

// handleShop lists every kit; for a signed-in user each kit is annotated with
// whether a non-expired entitlement already covers it.
func (s *Server) handleShop(w http.ResponseWriter, r *http.Request) {
	kits, err := s.store.ListKits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	owned := map[string]bool{}
	if claims := claimsFromContext(r.Context()); claims != nil {
		kitIDs, err := s.store.ListUserKitIDs(r.Context(), claims.UserID, time.Now().UTC())
		if err == nil {
			for _, id := range kitIDs {
				owned[id] = true
			}
		}
	}

	views := make([]kitView, 0, len(kits))
	for _, kit := range kits {
		views = append(views, kitView{
			ID:          kit.ID,
			Name:        kit.Name,
			Theme:       kit.Theme,
			Level:       kit.Level,
			Description: kit.Description,
			Price:       kit.Price,
			KitType:     kit.KitType,
			Owned:       owned[kit.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"kits": views})
}

type purchaseRequest struct {
	KitID string `json:"kitId"`
}

// handlePurchaseKit grants a kit directly: no money moves yet, the upsert is
// the source of truth and repeat purchases are harmless. The amount-0 ledger
// row and the confirmation email are best-effort and only logged on failure.
func (s *Server) handlePurchaseKit(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil || req.KitID == "" {
		writeActionError(w, http.StatusBadRequest, "Kit ID is required")
		return
	}

	kit, err := s.store.GetKit(r.Context(), req.KitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeActionError(w, http.StatusNotFound, "Kit not found")
			return
		}
		writeActionError(w, http.StatusInternalServerError, "Failed to purchase kit")
		return
	}

	now := time.Now().UTC()
	perm := model.UserPermission{
		ID:             uuid.NewString(),
		UserID:         claims.UserID,
		KitID:          kit.ID,
		PermissionType: "course_access",
		CreatedAt:      now,
	}
	if err := s.store.UpsertPermission(r.Context(), perm); err != nil {
		writeActionError(w, http.StatusInternalServerError, "Failed to purchase kit")
		return
	}

	completedAt := now
	purchase := model.Purchase{
		ID:            uuid.NewString(),
		UserID:        claims.UserID,
		KitID:         kit.ID,
		Amount:        0,
		Currency:      "usd",
		PaymentMethod: "admin_grant",
		PaymentStatus: "completed",
		CompletedAt:   &completedAt,
		CreatedAt:     now,
	}
	if err := s.store.InsertPurchase(r.Context(), purchase); err != nil {
		s.log.Error("purchase ledger write failed",
			zap.String("user_id", claims.UserID),
			zap.String("kit_id", kit.ID),
			zap.Error(err))
	}

	if profile, err := s.store.GetProfileByID(r.Context(), claims.UserID); err == nil {
		if err := s.mailer.SendPurchaseConfirmation(r.Context(), profile, kit, purchase); err != nil {
			s.log.Warn("purchase email failed", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Kit purchased successfully!",
		"kitId":   kit.ID,
	})
}

// cents converts a decimal price to integer cents, rounding rather than
// truncating.
func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type checkoutRequest struct {
	KitIDs          []string `json:"kitIds"`
	PaymentIntentID string   `json:"paymentIntentId"`
	PaymentMethod   string   `json:"paymentMethod"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Email           string   `json:"email"`
	Address         string   `json:"address"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	ZipCode         string   `json:"zipCode"`
}

// handleCheckout runs the simulated payment for a cart. An intent supplied by
// the client is confirmed as-is; otherwise one is created for the cart total.
// Billing fields are accepted verbatim, nothing validates them.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil || len(req.KitIDs) == 0 {
		writeActionError(w, http.StatusBadRequest, "Your cart is empty")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	now := time.Now().UTC()
	var kits []model.Kit
	var total float64
	for _, kitID := range req.KitIDs {
		kit, err := s.store.GetKit(r.Context(), kitID)
		if err != nil {
			writeActionError(w, http.StatusNotFound, "Kit not found")
			return
		}
		if s.store.HasKitAccess(r.Context(), claims.UserID, kit.ID, now) {
			continue
		}
		kits = append(kits, kit)
		total += kit.Price
	}
	if len(kits) == 0 {
		writeActionError(w, http.StatusConflict, "You already own everything in your cart")
		return
	}

	intentID := req.PaymentIntentID
	if intentID == "" {
		intent, err := s.payments.CreateIntent(r.Context(), claims.UserID, cents(total), "usd", map[string]string{
			"kit_count": strconv.Itoa(len(kits)),
		})
		if err != nil {
			writeActionError(w, http.StatusBadGateway, "Payment processing failed")
			return
		}
		intentID = intent.ID
	}
	intent, err := s.payments.Confirm(r.Context(), intentID)
	if err != nil || intent.Status != "succeeded" {
		writeActionError(w, http.StatusPaymentRequired, "Payment processing failed")
		return
	}

	profile, _ := s.store.GetProfileByID(r.Context(), claims.UserID)

	granted := make([]string, 0, len(kits))
	for _, kit := range kits {
		perm := model.UserPermission{
			ID:             uuid.NewString(),
			UserID:         claims.UserID,
			KitID:          kit.ID,
			PermissionType: "course_access",
			CreatedAt:      now,
		}
		if err := s.store.UpsertPermission(r.Context(), perm); err != nil {
			s.log.Error("checkout grant failed",
				zap.String("user_id", claims.UserID),
				zap.String("kit_id", kit.ID),
				zap.Error(err))
			continue
		}
		granted = append(granted, kit.ID)

		completedAt := now
		purchase := model.Purchase{
			ID:            uuid.NewString(),
			UserID:        claims.UserID,
			KitID:         kit.ID,
			Amount:        kit.Price,
			Currency:      "usd",
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: "completed",
			CompletedAt:   &completedAt,
			CreatedAt:     now,
		}
		if err := s.store.InsertPurchase(r.Context(), purchase); err != nil {
			s.log.Error("purchase ledger write failed",
				zap.String("user_id", claims.UserID),
				zap.String("kit_id", kit.ID),
				zap.Error(err))
		}
		if profile.ID != "" {
			if err := s.mailer.SendPurchaseConfirmation(r.Context(), profile, kit, purchase); err != nil {
				s.log.Warn("purchase email failed", zap.String("user_id", claims.UserID), zap.Error(err))
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"kitIds":   granted,
		"intentId": intent.ID,
	})
}

// handleProfile is the dashboard payload: owned kits, recent purchases and a
// couple of progress counters.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	profile, err := s.store.GetProfileByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}

	now := time.Now().UTC()
	kitIDs, err := s.store.ListUserKitIDs(r.Context(), claims.UserID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	kits := make([]model.Kit, 0, len(kitIDs))
	for _, kitID := range kitIDs {
		kit, err := s.store.GetKit(r.Context(), kitID)
		if err != nil {
			continue
		}
		kits = append(kits, kit)
	}

	purchases, err := s.store.ListUserPurchases(r.Context(), claims.UserID, 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	progress, err := s.store.ListUserProgress(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	completed := 0
	for _, row := range progress {
		if row.Status == "completed" {
			completed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":             summarize(profile),
		"kits":             kitViews(kits),
		"purchases":        purchaseViews(purchases),
		"lessonsStarted":   len(progress),
		"lessonsCompleted": completed,
	})
}
