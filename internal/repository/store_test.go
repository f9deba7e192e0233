package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sparklab-cy/sparklab.cy/internal/db"
	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

func openTestDB(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("SPARKLAB_TEST_DB")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("SPARKLAB_TEST_DB or DATABASE_URL not set")
		return nil
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
		return nil
	}
	if err := db.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedProfile(t *testing.T, store *Store) model.Profile {
	t.Helper()
	now := time.Now().UTC()
	profile := model.Profile{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@test.local",
		PasswordHash: "x",
		FullName:     "Test User",
		Role:         "student",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateProfile(context.Background(), profile); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

func seedKit(t *testing.T, store *Store) model.Kit {
	t.Helper()
	kit := model.Kit{
		ID:        uuid.NewString(),
		Name:      "Kit " + uuid.NewString()[:8],
		Theme:     "space",
		Level:     1,
		Price:     49.99,
		KitType:   "normal",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateKit(context.Background(), kit); err != nil {
		t.Fatalf("seed kit: %v", err)
	}
	return kit
}

func TestClaimCodeSingleWinner(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	kit := seedKit(t, store)

	code := model.KitCode{
		ID:        uuid.NewString(),
		KitID:     kit.ID,
		Code:      uuid.NewString()[:8],
		CodeType:  "access_code",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.InsertKitCodes(ctx, []model.KitCode{code}); err != nil {
		t.Fatalf("insert code: %v", err)
	}

	userA := seedProfile(t, store)
	userB := seedProfile(t, store)

	now := time.Now().UTC()
	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, userID := range []string{userA.ID, userB.ID} {
		wg.Add(1)
		go func(slot int, uid string) {
			defer wg.Done()
			claimed, err := store.ClaimCode(ctx, code.ID, uid, now)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			results[slot] = claimed
		}(i, userID)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("exactly one claim must win, got %v", results)
	}

	// The code no longer shows up as unused.
	if _, err := store.GetUnusedCode(ctx, code.Code); err == nil {
		t.Fatalf("claimed code still listed as unused")
	}
}

func TestUpsertGrantIsIdempotent(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	kit := seedKit(t, store)
	creator := seedProfile(t, store)
	student := seedProfile(t, store)

	course := model.CustomCourse{
		ID:          uuid.NewString(),
		CreatorID:   creator.ID,
		KitID:       kit.ID,
		Title:       "Grant Course",
		InviteToken: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateCustomCourse(ctx, course); err != nil {
		t.Fatalf("create course: %v", err)
	}

	for i := 0; i < 3; i++ {
		grant := model.CourseAccessGrant{
			ID:        uuid.NewString(),
			CourseID:  course.ID,
			UserID:    student.ID,
			GrantedBy: creator.ID,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.UpsertGrant(ctx, grant); err != nil {
			t.Fatalf("upsert grant attempt %d: %v", i+1, err)
		}
	}

	grants, err := store.ListGrants(ctx, course.ID)
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	count := 0
	for _, g := range grants {
		if g.Grant.UserID == student.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one grant row, got %d", count)
	}

	// joined_at stamps once and stays put.
	grant, err := store.GetGrant(ctx, course.ID, student.ID)
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	first := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.StampJoinedAt(ctx, grant.ID, first); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := store.StampJoinedAt(ctx, grant.ID, first.Add(time.Hour)); err != nil {
		t.Fatalf("second stamp: %v", err)
	}
	grant, err = store.GetGrant(ctx, course.ID, student.ID)
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if grant.JoinedAt == nil || !grant.JoinedAt.Equal(first) {
		t.Fatalf("joined_at moved: %v", grant.JoinedAt)
	}
}

func TestLessonVisibilityFilter(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	kit := seedKit(t, store)
	creator := seedProfile(t, store)
	student := seedProfile(t, store)

	course := model.CustomCourse{
		ID:          uuid.NewString(),
		CreatorID:   creator.ID,
		KitID:       kit.ID,
		Title:       "Visibility Course",
		IsPublic:    true,
		InviteToken: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateCustomCourse(ctx, course); err != nil {
		t.Fatalf("create course: %v", err)
	}

	lesson := model.Lesson{
		ID:          uuid.NewString(),
		CourseID:    course.ID,
		CourseType:  "custom",
		Title:       "Lesson",
		ContentType: "text",
		OrderIndex:  1,
		IsPublished: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateLesson(ctx, lesson); err != nil {
		t.Fatalf("create lesson: %v", err)
	}
	if err := store.SetLessonPublished(ctx, lesson.ID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}

	visible, err := store.ListVisibleLessons(ctx, course.ID, "custom", student.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected 1 visible lesson, got %d", len(visible))
	}

	if err := store.HideLesson(ctx, lesson.ID, student.ID); err != nil {
		t.Fatalf("hide: %v", err)
	}
	// Hiding twice is fine.
	if err := store.HideLesson(ctx, lesson.ID, student.ID); err != nil {
		t.Fatalf("second hide: %v", err)
	}

	visible, err = store.ListVisibleLessons(ctx, course.ID, "custom", student.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("expected hidden lesson to be filtered, got %d", len(visible))
	}

	// Another student is unaffected.
	other := seedProfile(t, store)
	visible, err = store.ListVisibleLessons(ctx, course.ID, "custom", other.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("deny row leaked to another user, got %d lessons", len(visible))
	}

	if err := store.ShowLesson(ctx, lesson.ID, student.ID); err != nil {
		t.Fatalf("show: %v", err)
	}
	visible, err = store.ListVisibleLessons(ctx, course.ID, "custom", student.ID)
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("expected lesson back after unhide, got %d", len(visible))
	}
}

func TestHasKitAccessHonorsExpiry(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	kit := seedKit(t, store)
	user := seedProfile(t, store)

	now := time.Now().UTC()
	if store.HasKitAccess(ctx, user.ID, kit.ID, now) {
		t.Fatalf("no permission yet, access should be denied")
	}

	expired := now.Add(-time.Hour)
	perm := model.UserPermission{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		KitID:          kit.ID,
		PermissionType: "course_access",
		ExpiresAt:      &expired,
		CreatedAt:      now,
	}
	if err := store.UpsertPermission(ctx, perm); err != nil {
		t.Fatalf("upsert permission: %v", err)
	}
	if store.HasKitAccess(ctx, user.ID, kit.ID, now) {
		t.Fatalf("expired permission should not grant access")
	}

	perm.ExpiresAt = nil
	if err := store.UpsertPermission(ctx, perm); err != nil {
		t.Fatalf("refresh permission: %v", err)
	}
	if !store.HasKitAccess(ctx, user.ID, kit.ID, now) {
		t.Fatalf("open-ended permission should grant access")
	}
}

func TestDeleteGrantScopedToCourse(t *testing.T) {
	pool := openTestDB(t)
	if pool == nil {
		return
	}
	defer pool.Close()

	ctx := context.Background()
	store := NewStore(pool)
	kit := seedKit(t, store)
	creator := seedProfile(t, store)
	rival := seedProfile(t, store)
	student := seedProfile(t, store)

	course := model.CustomCourse{
		ID:          uuid.NewString(),
		CreatorID:   creator.ID,
		KitID:       kit.ID,
		Title:       "Creator Course",
		InviteToken: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateCustomCourse(ctx, course); err != nil {
		t.Fatalf("create course: %v", err)
	}
	rivalCourse := model.CustomCourse{
		ID:          uuid.NewString(),
		CreatorID:   rival.ID,
		KitID:       kit.ID,
		Title:       "Rival Course",
		InviteToken: uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateCustomCourse(ctx, rivalCourse); err != nil {
		t.Fatalf("create rival course: %v", err)
	}

	grant := model.CourseAccessGrant{
		ID:        uuid.NewString(),
		CourseID:  course.ID,
		UserID:    student.ID,
		GrantedBy: creator.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateGrant(ctx, grant); err != nil {
		t.Fatalf("create grant: %v", err)
	}

	// A grant id paired with someone else's course deletes nothing.
	deleted, err := store.DeleteGrant(ctx, grant.ID, rivalCourse.ID)
	if err != nil {
		t.Fatalf("delete grant: %v", err)
	}
	if deleted {
		t.Fatalf("grant deleted through the wrong course")
	}
	if _, err := store.GetGrant(ctx, course.ID, student.ID); err != nil {
		t.Fatalf("grant should survive a cross-course delete: %v", err)
	}

	deleted, err = store.DeleteGrant(ctx, grant.ID, course.ID)
	if err != nil {
		t.Fatalf("delete grant: %v", err)
	}
	if !deleted {
		t.Fatalf("owner delete should remove the grant")
	}
}
