package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

func (s *Store) CreateLesson(ctx context.Context, lesson model.Lesson) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lessons (id, course_id, course_type, title, content_type, order_index, estimated_duration, is_published, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, lesson.ID, lesson.CourseID, lesson.CourseType, lesson.Title, lesson.ContentType, lesson.OrderIndex, lesson.EstimatedDuration, lesson.IsPublished, lesson.CreatedAt)
	return err
}

func (s *Store) GetLesson(ctx context.Context, lessonID string) (model.Lesson, error) {
	var lesson model.Lesson
	row := s.pool.QueryRow(ctx, `
		SELECT id, course_id, course_type, title, content_type, order_index, estimated_duration, is_published, created_at
		FROM lessons
		WHERE id = $1
	`, lessonID)
	err := row.Scan(&lesson.ID, &lesson.CourseID, &lesson.CourseType, &lesson.Title, &lesson.ContentType, &lesson.OrderIndex, &lesson.EstimatedDuration, &lesson.IsPublished, &lesson.CreatedAt)
	return lesson, err
}

func (s *Store) DeleteLesson(ctx context.Context, lessonID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, lessonID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetLessonPublished(ctx context.Context, lessonID string, published bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE lessons SET is_published = $2 WHERE id = $1`, lessonID, published)
	return err
}

// ListLessons returns every lesson of a course ordered by index, for creators
// and admins.
func (s *Store) ListLessons(ctx context.Context, courseID, courseType string) ([]model.Lesson, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, course_type, title, content_type, order_index, estimated_duration, is_published, created_at
		FROM lessons
		WHERE course_id = $1 AND course_type = $2
		ORDER BY order_index ASC
	`, courseID, courseType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLessons(rows)
}

// ListVisibleLessons returns published lessons minus the user's deny-listed
// ones. Absence of a visibility row means default-visible.
func (s *Store) ListVisibleLessons(ctx context.Context, courseID, courseType, userID string) ([]model.Lesson, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.course_id, l.course_type, l.title, l.content_type, l.order_index, l.estimated_duration, l.is_published, l.created_at
		FROM lessons l
		WHERE l.course_id = $1 AND l.course_type = $2 AND l.is_published = true
		AND NOT EXISTS (
			SELECT 1 FROM lesson_user_visibility v
			WHERE v.lesson_id = l.id AND v.user_id = $3 AND v.is_visible = false
		)
		ORDER BY l.order_index ASC
	`, courseID, courseType, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLessons(rows)
}

func scanLessons(rows pgx.Rows) ([]model.Lesson, error) {
	var lessons []model.Lesson
	for rows.Next() {
		var lesson model.Lesson
		if err := rows.Scan(&lesson.ID, &lesson.CourseID, &lesson.CourseType, &lesson.Title, &lesson.ContentType, &lesson.OrderIndex, &lesson.EstimatedDuration, &lesson.IsPublished, &lesson.CreatedAt); err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	return lessons, rows.Err()
}

func (s *Store) IsLessonHidden(ctx context.Context, lessonID, userID string) bool {
	return s.exists(ctx, `
		SELECT 1 FROM lesson_user_visibility
		WHERE lesson_id = $1 AND user_id = $2 AND is_visible = false
	`, lessonID, userID)
}

func (s *Store) HideLesson(ctx context.Context, lessonID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lesson_user_visibility (lesson_id, user_id, is_visible)
		VALUES ($1, $2, false)
		ON CONFLICT (lesson_id, user_id) DO UPDATE SET is_visible = false
	`, lessonID, userID)
	return err
}

func (s *Store) ShowLesson(ctx context.Context, lessonID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM lesson_user_visibility
		WHERE lesson_id = $1 AND user_id = $2
	`, lessonID, userID)
	return err
}

type HiddenPair struct {
	LessonID string
	UserID   string
}

func (s *Store) ListHiddenPairs(ctx context.Context, courseID, courseType string) ([]HiddenPair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT v.lesson_id, v.user_id
		FROM lesson_user_visibility v
		JOIN lessons l ON l.id = v.lesson_id
		WHERE l.course_id = $1 AND l.course_type = $2 AND v.is_visible = false
	`, courseID, courseType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []HiddenPair
	for rows.Next() {
		var pair HiddenPair
		if err := rows.Scan(&pair.LessonID, &pair.UserID); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// Lesson files

func (s *Store) InsertLessonFile(ctx context.Context, file model.LessonFile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lesson_files (id, lesson_id, file_name, file_type, storage_path, compiled_path, tab_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.LessonID, file.FileName, file.FileType, file.StoragePath, file.CompiledPath, file.TabOrder, file.CreatedAt)
	return err
}

func (s *Store) GetLessonFile(ctx context.Context, fileID string) (model.LessonFile, error) {
	var file model.LessonFile
	row := s.pool.QueryRow(ctx, `
		SELECT id, lesson_id, file_name, file_type, storage_path, compiled_path, tab_order, created_at
		FROM lesson_files
		WHERE id = $1
	`, fileID)
	err := row.Scan(&file.ID, &file.LessonID, &file.FileName, &file.FileType, &file.StoragePath, &file.CompiledPath, &file.TabOrder, &file.CreatedAt)
	return file, err
}

func (s *Store) DeleteLessonFile(ctx context.Context, fileID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lesson_files WHERE id = $1`, fileID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListLessonFiles(ctx context.Context, lessonID string) ([]model.LessonFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, lesson_id, file_name, file_type, storage_path, compiled_path, tab_order, created_at
		FROM lesson_files
		WHERE lesson_id = $1
		ORDER BY tab_order ASC
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.LessonFile
	for rows.Next() {
		var file model.LessonFile
		if err := rows.Scan(&file.ID, &file.LessonID, &file.FileName, &file.FileType, &file.StoragePath, &file.CompiledPath, &file.TabOrder, &file.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Progress

func (s *Store) UpsertProgress(ctx context.Context, progress model.LessonProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_lesson_progress (id, user_id, course_id, course_type, lesson_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, lesson_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, progress.ID, progress.UserID, progress.CourseID, progress.CourseType, progress.LessonID, progress.Status, progress.UpdatedAt)
	return err
}

func (s *Store) ListCourseProgress(ctx context.Context, userID, courseID, courseType string) ([]model.LessonProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, course_id, course_type, lesson_id, status, updated_at
		FROM user_lesson_progress
		WHERE user_id = $1 AND course_id = $2 AND course_type = $3
	`, userID, courseID, courseType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProgress(rows)
}

func (s *Store) ListUserProgress(ctx context.Context, userID string) ([]model.LessonProgress, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, course_id, course_type, lesson_id, status, updated_at
		FROM user_lesson_progress
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProgress(rows)
}

func scanProgress(rows pgx.Rows) ([]model.LessonProgress, error) {
	var entries []model.LessonProgress
	for rows.Next() {
		var p model.LessonProgress
		if err := rows.Scan(&p.ID, &p.UserID, &p.CourseID, &p.CourseType, &p.LessonID, &p.Status, &p.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}

// Email log

func (s *Store) InsertEmailLog(ctx context.Context, entry model.EmailLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_log (id, user_id, to_email, template, subject, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.ToEmail, entry.Template, entry.Subject, entry.Status, entry.CreatedAt)
	return err
}
