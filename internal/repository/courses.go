package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

func (s *Store) ListOfficialCourses(ctx context.Context, kitIDs []string) ([]model.OfficialCourse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kit_id, title, description, level, is_published, created_at
		FROM official_courses
		WHERE is_published = true AND kit_id = ANY($1)
		ORDER BY level ASC
	`, kitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []model.OfficialCourse
	for rows.Next() {
		var c model.OfficialCourse
		if err := rows.Scan(&c.ID, &c.KitID, &c.Title, &c.Description, &c.Level, &c.IsPublished, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func (s *Store) GetOfficialCourse(ctx context.Context, courseID string) (model.OfficialCourse, error) {
	var c model.OfficialCourse
	row := s.pool.QueryRow(ctx, `
		SELECT id, kit_id, title, description, level, is_published, created_at
		FROM official_courses
		WHERE id = $1
	`, courseID)
	err := row.Scan(&c.ID, &c.KitID, &c.Title, &c.Description, &c.Level, &c.IsPublished, &c.CreatedAt)
	return c, err
}

// Custom (community) courses

func (s *Store) CreateCustomCourse(ctx context.Context, course model.CustomCourse) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO custom_courses (id, creator_id, kit_id, title, description, price, is_public, is_published, invite_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, course.ID, course.CreatorID, course.KitID, course.Title, course.Description, course.Price, course.IsPublic, course.IsPublished, course.InviteToken, course.CreatedAt)
	return err
}

func (s *Store) GetCustomCourse(ctx context.Context, courseID string) (model.CustomCourse, error) {
	var c model.CustomCourse
	row := s.pool.QueryRow(ctx, `
		SELECT id, creator_id, kit_id, title, description, price, is_public, is_published, invite_token, created_at
		FROM custom_courses
		WHERE id = $1
	`, courseID)
	err := row.Scan(&c.ID, &c.CreatorID, &c.KitID, &c.Title, &c.Description, &c.Price, &c.IsPublic, &c.IsPublished, &c.InviteToken, &c.CreatedAt)
	return c, err
}

func (s *Store) GetCourseByInviteToken(ctx context.Context, token string) (model.CustomCourse, error) {
	var c model.CustomCourse
	row := s.pool.QueryRow(ctx, `
		SELECT id, creator_id, kit_id, title, description, price, is_public, is_published, invite_token, created_at
		FROM custom_courses
		WHERE invite_token = $1
	`, token)
	err := row.Scan(&c.ID, &c.CreatorID, &c.KitID, &c.Title, &c.Description, &c.Price, &c.IsPublic, &c.IsPublished, &c.InviteToken, &c.CreatedAt)
	return c, err
}

type CourseUpdate struct {
	Title       *string
	Description *string
	IsPublic    *bool
	IsPublished *bool
}

func (s *Store) UpdateCustomCourse(ctx context.Context, courseID string, update CourseUpdate) (model.CustomCourse, error) {
	_, err := s.pool.Exec(ctx, `
		UPDATE custom_courses SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			is_public = COALESCE($4, is_public),
			is_published = COALESCE($5, is_published)
		WHERE id = $1
	`, courseID, update.Title, update.Description, update.IsPublic, update.IsPublished)
	if err != nil {
		return model.CustomCourse{}, err
	}
	return s.GetCustomCourse(ctx, courseID)
}

func (s *Store) UpdateInviteToken(ctx context.Context, courseID, token string) error {
	_, err := s.pool.Exec(ctx, `UPDATE custom_courses SET invite_token = $2 WHERE id = $1`, courseID, token)
	return err
}

func (s *Store) ListPublicCourses(ctx context.Context, kitIDs []string) ([]model.CustomCourse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, creator_id, kit_id, title, description, price, is_public, is_published, invite_token, created_at
		FROM custom_courses
		WHERE is_published = true AND is_public = true AND kit_id = ANY($1)
		ORDER BY created_at DESC
	`, kitIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomCourses(rows)
}

func (s *Store) ListCoursesByCreator(ctx context.Context, creatorID string) ([]model.CustomCourse, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, creator_id, kit_id, title, description, price, is_public, is_published, invite_token, created_at
		FROM custom_courses
		WHERE creator_id = $1
		ORDER BY created_at DESC
	`, creatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomCourses(rows)
}

func scanCustomCourses(rows pgx.Rows) ([]model.CustomCourse, error) {
	var courses []model.CustomCourse
	for rows.Next() {
		var c model.CustomCourse
		if err := rows.Scan(&c.ID, &c.CreatorID, &c.KitID, &c.Title, &c.Description, &c.Price, &c.IsPublic, &c.IsPublished, &c.InviteToken, &c.CreatedAt); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// Access grants

func (s *Store) GetGrant(ctx context.Context, courseID, userID string) (model.CourseAccessGrant, error) {
	var grant model.CourseAccessGrant
	row := s.pool.QueryRow(ctx, `
		SELECT id, course_id, user_id, granted_by, joined_at, created_at
		FROM course_access_grants
		WHERE course_id = $1 AND user_id = $2
	`, courseID, userID)
	err := row.Scan(&grant.ID, &grant.CourseID, &grant.UserID, &grant.GrantedBy, &grant.JoinedAt, &grant.CreatedAt)
	return grant, err
}

func (s *Store) CreateGrant(ctx context.Context, grant model.CourseAccessGrant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO course_access_grants (id, course_id, user_id, granted_by, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, grant.ID, grant.CourseID, grant.UserID, grant.GrantedBy, grant.JoinedAt, grant.CreatedAt)
	return err
}

// UpsertGrant makes invite joins idempotent: the conflict target absorbs
// duplicate joins without touching the existing row.
func (s *Store) UpsertGrant(ctx context.Context, grant model.CourseAccessGrant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO course_access_grants (id, course_id, user_id, granted_by, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (course_id, user_id) DO NOTHING
	`, grant.ID, grant.CourseID, grant.UserID, grant.GrantedBy, grant.JoinedAt, grant.CreatedAt)
	return err
}

// StampJoinedAt records first access; the IS NULL predicate makes the
// transition one-way.
func (s *Store) StampJoinedAt(ctx context.Context, grantID string, joinedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE course_access_grants SET joined_at = $2
		WHERE id = $1 AND joined_at IS NULL
	`, grantID, joinedAt)
	return err
}

// DeleteGrant is scoped to the course so a grant id from another course
// cannot be revoked through it.
func (s *Store) DeleteGrant(ctx context.Context, grantID, courseID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM course_access_grants WHERE id = $1 AND course_id = $2
	`, grantID, courseID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type GrantWithProfile struct {
	Grant    model.CourseAccessGrant
	FullName string
	Email    string
}

func (s *Store) ListGrants(ctx context.Context, courseID string) ([]GrantWithProfile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.course_id, g.user_id, g.granted_by, g.joined_at, g.created_at, p.full_name, p.email
		FROM course_access_grants g
		JOIN profiles p ON p.id = g.user_id
		WHERE g.course_id = $1
		ORDER BY g.created_at ASC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []GrantWithProfile
	for rows.Next() {
		var g GrantWithProfile
		if err := rows.Scan(&g.Grant.ID, &g.Grant.CourseID, &g.Grant.UserID, &g.Grant.GrantedBy, &g.Grant.JoinedAt, &g.Grant.CreatedAt, &g.FullName, &g.Email); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
