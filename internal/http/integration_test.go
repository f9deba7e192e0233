package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

type authReply struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

type actionReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func baseURL() string {
	if addr := os.Getenv("SERVER_HTTP_ADDR"); addr != "" {
		return addr
	}
	return "http://127.0.0.1:8080"
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
}

func doReq(t *testing.T, method, path, token string, payload interface{}) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL()+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func registerUser(t *testing.T, prefix string) authReply {
	t.Helper()
	email := fmt.Sprintf("%s-%d@test.local", prefix, time.Now().UnixNano())
	resp, body := doReq(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": "test-password",
		"fullName": "Test User",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	var reply authReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode register reply: %v", err)
	}
	return reply
}

func adminToken(t *testing.T) string {
	t.Helper()
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		t.Skip("set ADMIN_EMAIL and ADMIN_PASSWORD to run admin tests")
	}
	resp, body := doReq(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin login status %d: %s", resp.StatusCode, body)
	}
	var reply authReply
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode admin login: %v", err)
	}
	return reply.AccessToken
}

func createKit(t *testing.T, admin string) string {
	t.Helper()
	resp, body := doReq(t, http.MethodPost, "/admin/kits", admin, map[string]interface{}{
		"name":    fmt.Sprintf("Test Kit %d", time.Now().UnixNano()),
		"theme":   "space",
		"level":   1,
		"price":   49.99,
		"kitType": "normal",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create kit status %d: %s", resp.StatusCode, body)
	}
	var kit struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &kit); err != nil || kit.ID == "" {
		t.Fatalf("decode kit: %v (%s)", err, body)
	}
	return kit.ID
}

func generateCodes(t *testing.T, admin, kitID string, count int) []string {
	t.Helper()
	resp, body := doReq(t, http.MethodPost, "/admin/kits/"+kitID+"/codes", admin, map[string]interface{}{
		"quantity": count,
		"codeType": "access_code",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("generate codes status %d: %s", resp.StatusCode, body)
	}
	var reply struct {
		Codes []string `json:"codes"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		t.Fatalf("decode codes: %v", err)
	}
	if len(reply.Codes) != count {
		t.Fatalf("expected %d codes, got %d", count, len(reply.Codes))
	}
	return reply.Codes
}

func TestRedeemLifecycle(t *testing.T) {
	requireIntegration(t)

	admin := adminToken(t)
	kitID := createKit(t, admin)
	codes := generateCodes(t, admin, kitID, 5)

	user := registerUser(t, "redeemer")

	// Garbage codes answer with the generic message.
	resp, body := doReq(t, http.MethodPost, "/redeem", user.AccessToken, map[string]string{"code": "NOPE1234"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("bogus code status %d: %s", resp.StatusCode, body)
	}
	var action actionReply
	if err := json.Unmarshal(body, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Error != "Invalid or expired code" {
		t.Fatalf("unexpected message %q", action.Error)
	}

	// First redemption wins.
	resp, body = doReq(t, http.MethodPost, "/redeem", user.AccessToken, map[string]string{"code": codes[0]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redeem status %d: %s", resp.StatusCode, body)
	}

	// Same code by another user is burned.
	other := registerUser(t, "late")
	resp, body = doReq(t, http.MethodPost, "/redeem", other.AccessToken, map[string]string{"code": codes[0]})
	if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusConflict {
		t.Fatalf("used code status %d: %s", resp.StatusCode, body)
	}

	// A second code for the same kit is refused: access already exists.
	resp, body = doReq(t, http.MethodPost, "/redeem", user.AccessToken, map[string]string{"code": codes[1]})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("owned kit status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &action); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if action.Error != "You already have access to this kit" {
		t.Fatalf("unexpected message %q", action.Error)
	}

	// Lowercase input matches the stored uppercase code.
	third := registerUser(t, "lower")
	resp, body = doReq(t, http.MethodPost, "/redeem", third.AccessToken, map[string]string{
		"code": "  " + strings.ToLower(codes[2]) + " ",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lowercase redeem status %d: %s", resp.StatusCode, body)
	}
}

func TestInviteJoinIsIdempotent(t *testing.T) {
	requireIntegration(t)

	admin := adminToken(t)
	kitID := createKit(t, admin)
	codes := generateCodes(t, admin, kitID, 1)

	creator := registerUser(t, "creator")
	if resp, body := doReq(t, http.MethodPost, "/redeem", creator.AccessToken, map[string]string{"code": codes[0]}); resp.StatusCode != http.StatusOK {
		t.Fatalf("creator redeem status %d: %s", resp.StatusCode, body)
	}

	resp, body := doReq(t, http.MethodPost, "/courses", creator.AccessToken, map[string]interface{}{
		"kitId": kitID,
		"title": "Private Robotics",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create course status %d: %s", resp.StatusCode, body)
	}
	var created struct {
		Course struct {
			ID          string `json:"id"`
			InviteToken string `json:"inviteToken"`
		} `json:"course"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode course: %v", err)
	}

	student := registerUser(t, "student")
	for i := 0; i < 2; i++ {
		resp, body := doReq(t, http.MethodPost, "/courses/join/"+created.Course.InviteToken, student.AccessToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("join attempt %d status %d: %s", i+1, resp.StatusCode, body)
		}
	}

	// Exactly one grant shows up in the editor view.
	resp, body = doReq(t, http.MethodGet, "/creator/courses/"+created.Course.ID+"/", creator.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("editor view status %d: %s", resp.StatusCode, body)
	}
	var editor struct {
		Students []struct {
			UserID string `json:"userId"`
		} `json:"students"`
	}
	if err := json.Unmarshal(body, &editor); err != nil {
		t.Fatalf("decode editor view: %v", err)
	}
	count := 0
	for _, s := range editor.Students {
		if s.UserID == student.User.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one grant for the student, got %d", count)
	}
}

func TestLessonVisibilityRoundTrip(t *testing.T) {
	requireIntegration(t)

	admin := adminToken(t)
	kitID := createKit(t, admin)
	codes := generateCodes(t, admin, kitID, 2)

	creator := registerUser(t, "teacher")
	if resp, body := doReq(t, http.MethodPost, "/redeem", creator.AccessToken, map[string]string{"code": codes[0]}); resp.StatusCode != http.StatusOK {
		t.Fatalf("creator redeem status %d: %s", resp.StatusCode, body)
	}

	resp, body := doReq(t, http.MethodPost, "/courses", creator.AccessToken, map[string]interface{}{
		"kitId":    kitID,
		"title":    "Visibility Course",
		"isPublic": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create course status %d: %s", resp.StatusCode, body)
	}
	var created struct {
		Course struct {
			ID string `json:"id"`
		} `json:"course"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode course: %v", err)
	}
	courseID := created.Course.ID

	// Courses start unpublished; open the gate for students.
	if resp, body := doReq(t, http.MethodPatch, "/creator/courses/"+courseID+"/", creator.AccessToken, map[string]interface{}{
		"isPublished": true,
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("publish course status %d: %s", resp.StatusCode, body)
	}

	resp, body = doReq(t, http.MethodPost, "/creator/courses/"+courseID+"/lessons", creator.AccessToken, map[string]interface{}{
		"title":      "Lesson One",
		"orderIndex": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create lesson status %d: %s", resp.StatusCode, body)
	}
	var lesson struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &lesson); err != nil {
		t.Fatalf("decode lesson: %v", err)
	}
	if resp, body := doReq(t, http.MethodPost, "/creator/courses/"+courseID+"/lessons/"+lesson.ID+"/publish", creator.AccessToken, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status %d: %s", resp.StatusCode, body)
	}

	student := registerUser(t, "viewer")
	// The community gate also requires the kit entitlement.
	if resp, body := doReq(t, http.MethodPost, "/redeem", student.AccessToken, map[string]string{"code": codes[1]}); resp.StatusCode != http.StatusOK {
		t.Fatalf("student redeem status %d: %s", resp.StatusCode, body)
	}

	countLessons := func() int {
		resp, body := doReq(t, http.MethodGet, "/courses/community/"+courseID, student.AccessToken, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("course page status %d: %s", resp.StatusCode, body)
		}
		var page struct {
			Lessons []json.RawMessage `json:"lessons"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			t.Fatalf("decode course page: %v", err)
		}
		return len(page.Lessons)
	}

	if got := countLessons(); got != 1 {
		t.Fatalf("expected the lesson to be visible, got %d lessons", got)
	}

	// Hide, confirm missing, unhide, confirm back.
	if resp, body := doReq(t, http.MethodPut, "/creator/courses/"+courseID+"/lessons/"+lesson.ID+"/visibility", creator.AccessToken, map[string]interface{}{
		"userId":  student.User.ID,
		"visible": false,
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("hide status %d: %s", resp.StatusCode, body)
	}
	if got := countLessons(); got != 0 {
		t.Fatalf("expected the lesson to be hidden, got %d lessons", got)
	}
	if resp, body := doReq(t, http.MethodPut, "/creator/courses/"+courseID+"/lessons/"+lesson.ID+"/visibility", creator.AccessToken, map[string]interface{}{
		"userId":  student.User.ID,
		"visible": true,
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("unhide status %d: %s", resp.StatusCode, body)
	}
	if got := countLessons(); got != 1 {
		t.Fatalf("expected the lesson back, got %d lessons", got)
	}
}

func TestPurchaseGrantsAccess(t *testing.T) {
	requireIntegration(t)

	admin := adminToken(t)
	kitID := createKit(t, admin)

	user := registerUser(t, "buyer")

	resp, body := doReq(t, http.MethodPost, "/shop/purchase", user.AccessToken, map[string]string{"kitId": kitID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase status %d: %s", resp.StatusCode, body)
	}

	// Buying again just refreshes the idempotent upsert.
	resp, body = doReq(t, http.MethodPost, "/shop/purchase", user.AccessToken, map[string]string{"kitId": kitID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat purchase status %d: %s", resp.StatusCode, body)
	}

	// The kit shows as owned in the shop and the dashboard lists the ledger row.
	resp, body = doReq(t, http.MethodGet, "/profile", user.AccessToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile status %d: %s", resp.StatusCode, body)
	}
	var dashboard struct {
		Purchases []struct {
			KitID string `json:"kitId"`
		} `json:"purchases"`
	}
	if err := json.Unmarshal(body, &dashboard); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	found := false
	for _, p := range dashboard.Purchases {
		if p.KitID == kitID {
			found = true
		}
	}
	if !found {
		t.Fatalf("purchase ledger row missing for kit %s", kitID)
	}
}
