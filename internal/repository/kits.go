package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

func (s *Store) CreateKit(ctx context.Context, kit model.Kit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kits (id, name, theme, level, description, price, kit_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, kit.ID, kit.Name, kit.Theme, kit.Level, kit.Description, kit.Price, kit.KitType, kit.CreatedAt)
	return err
}

type KitUpdate struct {
	Name        *string
	Theme       *string
	Level       *int
	Description *string
	Price       *float64
	KitType     *string
}

func (s *Store) UpdateKit(ctx context.Context, kitID string, update KitUpdate) (model.Kit, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE kits SET
			name = COALESCE($2, name),
			theme = COALESCE($3, theme),
			level = COALESCE($4, level),
			description = COALESCE($5, description),
			price = COALESCE($6, price),
			kit_type = COALESCE($7, kit_type)
		WHERE id = $1
	`, kitID, update.Name, update.Theme, update.Level, update.Description, update.Price, update.KitType)
	if err != nil {
		return model.Kit{}, err
	}
	return s.GetKit(ctx, kitID)
}

func (s *Store) GetKit(ctx context.Context, kitID string) (model.Kit, error) {
	var kit model.Kit
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, theme, level, description, price, kit_type, created_at
		FROM kits
		WHERE id = $1
	`, kitID)
	err := row.Scan(&kit.ID, &kit.Name, &kit.Theme, &kit.Level, &kit.Description, &kit.Price, &kit.KitType, &kit.CreatedAt)
	return kit, err
}

func (s *Store) ListKits(ctx context.Context) ([]model.Kit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, theme, level, description, price, kit_type, created_at
		FROM kits
		ORDER BY level ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kits []model.Kit
	for rows.Next() {
		var kit model.Kit
		if err := rows.Scan(&kit.ID, &kit.Name, &kit.Theme, &kit.Level, &kit.Description, &kit.Price, &kit.KitType, &kit.CreatedAt); err != nil {
			return nil, err
		}
		kits = append(kits, kit)
	}
	return kits, rows.Err()
}

// Codes

func (s *Store) InsertKitCodes(ctx context.Context, codes []model.KitCode) error {
	for _, code := range codes {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO kit_codes (id, kit_id, code, code_type, is_used, used_by, used_at, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, code.ID, code.KitID, code.Code, code.CodeType, code.IsUsed, code.UsedBy, code.UsedAt, code.ExpiresAt, code.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetUnusedCode looks up a code filtered to is_used = false; a used or unknown
// code is indistinguishable to the caller, matching the redemption contract.
func (s *Store) GetUnusedCode(ctx context.Context, code string) (model.KitCode, error) {
	var kc model.KitCode
	row := s.pool.QueryRow(ctx, `
		SELECT id, kit_id, code, code_type, is_used, used_by, used_at, expires_at, created_at
		FROM kit_codes
		WHERE code = $1 AND is_used = false
	`, code)
	err := row.Scan(&kc.ID, &kc.KitID, &kc.Code, &kc.CodeType, &kc.IsUsed, &kc.UsedBy, &kc.UsedAt, &kc.ExpiresAt, &kc.CreatedAt)
	return kc, err
}

// ClaimCode marks the code used if and only if it is still unused. The
// is_used predicate doubles as the compare-and-swap guard: under a race the
// loser sees zero rows affected.
func (s *Store) ClaimCode(ctx context.Context, codeID, userID string, usedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE kit_codes
		SET is_used = true, used_by = $2, used_at = $3
		WHERE id = $1 AND is_used = false
	`, codeID, userID, usedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DeleteKitCode(ctx context.Context, codeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kit_codes WHERE id = $1`, codeID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListKitCodes(ctx context.Context) ([]model.KitCode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kit_id, code, code_type, is_used, used_by, used_at, expires_at, created_at
		FROM kit_codes
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.KitCode
	for rows.Next() {
		var kc model.KitCode
		if err := rows.Scan(&kc.ID, &kc.KitID, &kc.Code, &kc.CodeType, &kc.IsUsed, &kc.UsedBy, &kc.UsedAt, &kc.ExpiresAt, &kc.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, kc)
	}
	return codes, rows.Err()
}

// Permissions

// HasKitAccess is the entitlement check: a non-expired course_access row for
// (user, kit). Expired permission is treated as absent.
func (s *Store) HasKitAccess(ctx context.Context, userID, kitID string, now time.Time) bool {
	return s.exists(ctx, `
		SELECT 1 FROM user_permissions
		WHERE user_id = $1 AND kit_id = $2 AND permission_type = 'course_access'
		AND (expires_at IS NULL OR expires_at > $3)
	`, userID, kitID, now)
}

func (s *Store) ListUserKitIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT kit_id FROM user_permissions
		WHERE user_id = $1 AND permission_type = 'course_access'
		AND (expires_at IS NULL OR expires_at > $2)
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kitIDs []string
	for rows.Next() {
		var kitID string
		if err := rows.Scan(&kitID); err != nil {
			return nil, err
		}
		kitIDs = append(kitIDs, kitID)
	}
	return kitIDs, rows.Err()
}

func (s *Store) UpsertPermission(ctx context.Context, perm model.UserPermission) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_permissions (id, user_id, kit_id, permission_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, kit_id, permission_type)
		DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, perm.ID, perm.UserID, perm.KitID, perm.PermissionType, perm.ExpiresAt, perm.CreatedAt)
	return err
}

// Purchases

func (s *Store) InsertPurchase(ctx context.Context, purchase model.Purchase) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO purchases (id, user_id, kit_id, amount, currency, payment_method, payment_status, kit_code_id, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, purchase.ID, purchase.UserID, purchase.KitID, purchase.Amount, purchase.Currency, purchase.PaymentMethod, purchase.PaymentStatus, purchase.KitCodeID, purchase.CompletedAt, purchase.CreatedAt)
	return err
}

// GrantWithPurchase writes the permission and its ledger entry inside one
// transaction. Used by code redemption, where a claimed code must not end up
// granted-but-unrecorded.
func (s *Store) GrantWithPurchase(ctx context.Context, perm model.UserPermission, purchase model.Purchase) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_permissions (id, user_id, kit_id, permission_type, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, kit_id, permission_type)
			DO UPDATE SET expires_at = EXCLUDED.expires_at
		`, perm.ID, perm.UserID, perm.KitID, perm.PermissionType, perm.ExpiresAt, perm.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO purchases (id, user_id, kit_id, amount, currency, payment_method, payment_status, kit_code_id, completed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, purchase.ID, purchase.UserID, purchase.KitID, purchase.Amount, purchase.Currency, purchase.PaymentMethod, purchase.PaymentStatus, purchase.KitCodeID, purchase.CompletedAt, purchase.CreatedAt)
		return err
	})
}

func (s *Store) ListPurchases(ctx context.Context) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kit_id, amount, currency, payment_method, payment_status, kit_code_id, completed_at, created_at
		FROM purchases
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

func (s *Store) ListUserPurchases(ctx context.Context, userID string, limit int) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kit_id, amount, currency, payment_method, payment_status, kit_code_id, completed_at, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPurchases(rows)
}

func scanPurchases(rows pgx.Rows) ([]model.Purchase, error) {
	var purchases []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.KitID, &p.Amount, &p.Currency, &p.PaymentMethod, &p.PaymentStatus, &p.KitCodeID, &p.CompletedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
