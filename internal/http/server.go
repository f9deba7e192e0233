package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sparklab-cy/sparklab.cy/internal/auth"
	"github.com/sparklab-cy/sparklab.cy/internal/compiler"
	"github.com/sparklab-cy/sparklab.cy/internal/config"
	"github.com/sparklab-cy/sparklab.cy/internal/mail"
	"github.com/sparklab-cy/sparklab.cy/internal/payments"
	"github.com/sparklab-cy/sparklab.cy/internal/repository"
)

type Server struct {
	cfg      config.Config
	store    *repository.Store
	log      *zap.Logger
	mailer   *mail.Mailer
	payments *payments.Service
	compiler *compiler.Client
}

func NewServer(cfg config.Config, store *repository.Store, log *zap.Logger, mailer *mail.Mailer, paymentsSvc *payments.Service, compilerClient *compiler.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		log:      log,
		mailer:   mailer,
		payments: paymentsSvc,
		compiler: compilerClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	r.With(s.optionalAuth).Get("/shop", s.handleShop)
	r.With(s.authMiddleware).Post("/shop/purchase", s.handlePurchaseKit)
	r.With(s.authMiddleware).Post("/redeem", s.handleRedeemCode)
	r.With(s.authMiddleware).Post("/checkout", s.handleCheckout)
	r.With(s.authMiddleware).Get("/profile", s.handleProfile)

	r.With(s.optionalAuth).Get("/courses", s.handleListCourses)
	r.With(s.authMiddleware).Post("/courses", s.handleCreateCourse)
	r.With(s.authMiddleware).Get("/courses/community/{courseId}", s.handleCommunityCourse)
	r.With(s.authMiddleware).Get("/courses/community/{courseId}/lessons/{lessonId}", s.handleCommunityLesson)
	r.With(s.authMiddleware).Post("/courses/community/{courseId}/lessons/{lessonId}/progress", s.handleLessonProgress)
	r.With(s.authMiddleware).Post("/courses/join/{token}", s.handleJoinByInvite)

	r.Route("/creator/courses/{courseId}", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/", s.handleEditorCourse)
		r.Patch("/", s.handleUpdateCourse)
		r.Post("/lessons", s.handleCreateLesson)
		r.Delete("/lessons/{lessonId}", s.handleDeleteLesson)
		r.Post("/lessons/{lessonId}/publish", s.handlePublishLesson)
		r.Post("/lessons/{lessonId}/unpublish", s.handleUnpublishLesson)
		r.Put("/lessons/{lessonId}/visibility", s.handleLessonVisibility)
		r.Post("/grants", s.handleGrantAccess)
		r.Delete("/grants/{grantId}", s.handleRevokeAccess)
		r.Post("/invite-token", s.handleRegenerateInviteToken)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireAdmin)
		r.Get("/kits", s.handleAdminKits)
		r.Post("/kits", s.handleCreateKit)
		r.Patch("/kits/{kitId}", s.handleUpdateKit)
		r.Post("/kits/{kitId}/codes", s.handleGenerateKitCodes)
		r.Delete("/codes/{codeId}", s.handleDeleteKitCode)
		r.Post("/grants", s.handleAdminGrantAccess)
		r.Post("/courses/{courseId}/lessons", s.handleAdminCreateLesson)
		r.Delete("/lessons/{lessonId}", s.handleAdminDeleteLesson)
		r.Post("/lessons/{lessonId}/publish", s.handleAdminPublishLesson)
		r.Post("/lessons/{lessonId}/unpublish", s.handleAdminUnpublishLesson)
	})

	r.With(s.authMiddleware).Post("/api/lesson-files", s.handleUploadLessonFile)
	r.With(s.authMiddleware).Delete("/api/lesson-files/{fileId}", s.handleDeleteLessonFile)
	r.Get("/api/lesson-files/{fileId}/content", s.handleLessonFileContent)
	r.Get("/api/lesson-preview/{fileId}", s.handleLessonPreview)

	r.With(s.authMiddleware).Post("/api/payments", s.handlePayments)
	r.With(s.authMiddleware).Get("/api/payments", s.handlePaymentStatus)

	return r
}

// Auth middleware

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// optionalAuth attaches claims when a valid token is present but lets
// anonymous requests through, for pages that render for both.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token != "" {
			if claims, err := auth.ParseToken(s.cfg.JWTSecret, token); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rechecks the role against the profile row rather than trusting
// the token, so a revoked admin loses access as soon as the row changes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		profile, err := s.store.GetProfileByID(r.Context(), claims.UserID)
		if err != nil || profile.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// Storefront actions answer in the page-action shape the web client expects:
// {"success": false, "error": "<human message>"}.
func writeActionError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}
