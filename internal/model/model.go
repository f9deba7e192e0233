package model

import "time"

type Profile struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type Kit struct {
	ID          string
	Name        string
	Theme       string
	Level       int
	Description string
	Price       float64
	KitType     string
	CreatedAt   time.Time
}

type KitCode struct {
	ID        string
	KitID     string
	Code      string
	CodeType  string
	IsUsed    bool
	UsedBy    *string
	UsedAt    *time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
}

type UserPermission struct {
	ID             string
	UserID         string
	KitID          string
	PermissionType string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
}

type Purchase struct {
	ID            string
	UserID        string
	KitID         string
	Amount        float64
	Currency      string
	PaymentMethod string
	PaymentStatus string
	KitCodeID     *string
	CompletedAt   *time.Time
	CreatedAt     time.Time
}

type OfficialCourse struct {
	ID          string
	KitID       string
	Title       string
	Description string
	Level       int
	IsPublished bool
	CreatedAt   time.Time
}

type CustomCourse struct {
	ID          string
	CreatorID   string
	KitID       string
	Title       string
	Description string
	Price       float64
	IsPublic    bool
	IsPublished bool
	InviteToken string
	CreatedAt   time.Time
}

type CourseAccessGrant struct {
	ID        string
	CourseID  string
	UserID    string
	GrantedBy string
	JoinedAt  *time.Time
	CreatedAt time.Time
}

type Lesson struct {
	ID                string
	CourseID          string
	CourseType        string
	Title             string
	ContentType       string
	OrderIndex        int
	EstimatedDuration *int
	IsPublished       bool
	CreatedAt         time.Time
}

// LessonVisibility is a deny-list row: its presence hides the lesson from the
// user, absence means default-visible.
type LessonVisibility struct {
	LessonID  string
	UserID    string
	IsVisible bool
	CreatedAt time.Time
}

type LessonFile struct {
	ID           string
	LessonID     string
	FileName     string
	FileType     string
	StoragePath  string
	CompiledPath *string
	TabOrder     int
	CreatedAt    time.Time
}

type LessonProgress struct {
	ID         string
	UserID     string
	CourseID   string
	CourseType string
	LessonID   string
	Status     string
	UpdatedAt  time.Time
}

type EmailLog struct {
	ID        string
	UserID    string
	ToEmail   string
	Template  string
	Subject   string
	Status    string
	CreatedAt time.Time
}
