package http

import (
	"time"

	"github.com/sparklab-cy/sparklab.cy/internal/model"
)

// Response bodies are built from these views rather than the storage structs,
// keeping the JSON keys camelCase and the server-side fields off the wire.

type kitDetail struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Theme       string    `json:"theme"`
	Level       int       `json:"level"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	KitType     string    `json:"kitType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func kitToView(k model.Kit) kitDetail {
	return kitDetail{
		ID:          k.ID,
		Name:        k.Name,
		Theme:       k.Theme,
		Level:       k.Level,
		Description: k.Description,
		Price:       k.Price,
		KitType:     k.KitType,
		CreatedAt:   k.CreatedAt,
	}
}

func kitViews(kits []model.Kit) []kitDetail {
	out := make([]kitDetail, 0, len(kits))
	for _, k := range kits {
		out = append(out, kitToView(k))
	}
	return out
}

type kitCodeView struct {
	ID        string     `json:"id"`
	KitID     string     `json:"kitId"`
	Code      string     `json:"code"`
	CodeType  string     `json:"codeType"`
	IsUsed    bool       `json:"isUsed"`
	UsedBy    *string    `json:"usedBy"`
	UsedAt    *time.Time `json:"usedAt"`
	ExpiresAt *time.Time `json:"expiresAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

func codeViews(codes []model.KitCode) []kitCodeView {
	out := make([]kitCodeView, 0, len(codes))
	for _, c := range codes {
		out = append(out, kitCodeView{
			ID:        c.ID,
			KitID:     c.KitID,
			Code:      c.Code,
			CodeType:  c.CodeType,
			IsUsed:    c.IsUsed,
			UsedBy:    c.UsedBy,
			UsedAt:    c.UsedAt,
			ExpiresAt: c.ExpiresAt,
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}

type purchaseView struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	KitID         string     `json:"kitId"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentStatus string     `json:"paymentStatus"`
	KitCodeID     *string    `json:"kitCodeId"`
	CompletedAt   *time.Time `json:"completedAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func purchaseViews(purchases []model.Purchase) []purchaseView {
	out := make([]purchaseView, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, purchaseView{
			ID:            p.ID,
			UserID:        p.UserID,
			KitID:         p.KitID,
			Amount:        p.Amount,
			Currency:      p.Currency,
			PaymentMethod: p.PaymentMethod,
			PaymentStatus: p.PaymentStatus,
			KitCodeID:     p.KitCodeID,
			CompletedAt:   p.CompletedAt,
			CreatedAt:     p.CreatedAt,
		})
	}
	return out
}

type officialCourseView struct {
	ID          string    `json:"id"`
	KitID       string    `json:"kitId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Level       int       `json:"level"`
	IsPublished bool      `json:"isPublished"`
	CreatedAt   time.Time `json:"createdAt"`
}

func officialCourseViews(courses []model.OfficialCourse) []officialCourseView {
	out := make([]officialCourseView, 0, len(courses))
	for _, c := range courses {
		out = append(out, officialCourseView{
			ID:          c.ID,
			KitID:       c.KitID,
			Title:       c.Title,
			Description: c.Description,
			Level:       c.Level,
			IsPublished: c.IsPublished,
			CreatedAt:   c.CreatedAt,
		})
	}
	return out
}

type courseView struct {
	ID          string    `json:"id"`
	CreatorID   string    `json:"creatorId"`
	KitID       string    `json:"kitId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	IsPublic    bool      `json:"isPublic"`
	IsPublished bool      `json:"isPublished"`
	InviteToken string    `json:"inviteToken,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// courseToView strips the invite token; only ownerCourseToView exposes it.
func courseToView(c model.CustomCourse) courseView {
	v := ownerCourseToView(c)
	v.InviteToken = ""
	return v
}

func ownerCourseToView(c model.CustomCourse) courseView {
	return courseView{
		ID:          c.ID,
		CreatorID:   c.CreatorID,
		KitID:       c.KitID,
		Title:       c.Title,
		Description: c.Description,
		Price:       c.Price,
		IsPublic:    c.IsPublic,
		IsPublished: c.IsPublished,
		InviteToken: c.InviteToken,
		CreatedAt:   c.CreatedAt,
	}
}

func courseViews(courses []model.CustomCourse) []courseView {
	out := make([]courseView, 0, len(courses))
	for _, c := range courses {
		out = append(out, courseToView(c))
	}
	return out
}

type lessonView struct {
	ID                string    `json:"id"`
	CourseID          string    `json:"courseId"`
	CourseType        string    `json:"courseType"`
	Title             string    `json:"title"`
	ContentType       string    `json:"contentType"`
	OrderIndex        int       `json:"orderIndex"`
	EstimatedDuration *int      `json:"estimatedDuration"`
	IsPublished       bool      `json:"isPublished"`
	CreatedAt         time.Time `json:"createdAt"`
}

func lessonToView(l model.Lesson) lessonView {
	return lessonView{
		ID:                l.ID,
		CourseID:          l.CourseID,
		CourseType:        l.CourseType,
		Title:             l.Title,
		ContentType:       l.ContentType,
		OrderIndex:        l.OrderIndex,
		EstimatedDuration: l.EstimatedDuration,
		IsPublished:       l.IsPublished,
		CreatedAt:         l.CreatedAt,
	}
}

func lessonViews(lessons []model.Lesson) []lessonView {
	out := make([]lessonView, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, lessonToView(l))
	}
	return out
}

type lessonFileView struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lessonId"`
	FileName  string    `json:"fileName"`
	FileType  string    `json:"fileType"`
	TabOrder  int       `json:"tabOrder"`
	Compiled  bool      `json:"compiled"`
	CreatedAt time.Time `json:"createdAt"`
}

func lessonFileToView(f model.LessonFile) lessonFileView {
	return lessonFileView{
		ID:        f.ID,
		LessonID:  f.LessonID,
		FileName:  f.FileName,
		FileType:  f.FileType,
		TabOrder:  f.TabOrder,
		Compiled:  f.CompiledPath != nil,
		CreatedAt: f.CreatedAt,
	}
}

func lessonFileViews(files []model.LessonFile) []lessonFileView {
	out := make([]lessonFileView, 0, len(files))
	for _, f := range files {
		out = append(out, lessonFileToView(f))
	}
	return out
}

type progressView struct {
	LessonID  string    `json:"lessonId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func progressViews(rows []model.LessonProgress) []progressView {
	out := make([]progressView, 0, len(rows))
	for _, row := range rows {
		out = append(out, progressView{
			LessonID:  row.LessonID,
			Status:    row.Status,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return out
}
