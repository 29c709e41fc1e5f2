package models

import "time"

type Bookmark struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	MCQID     int64     `json:"mcq_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Note struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	MCQID     int64     `json:"mcq_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SaveNoteRequest struct {
	Content string `json:"content"`
}

type IncorrectAnswer struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	MCQID      int64     `json:"mcq_id"`
	Selected   string    `json:"selected"`
	AnsweredAt time.Time `json:"answered_at"`
}

type HiddenMCQ struct {
	UserID    int64     `json:"user_id"`
	MCQID     int64     `json:"mcq_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Flashcards ─────────────────────────────────────────

const DefaultEaseFactor = 2.5

type Flashcard struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	MCQID        *int64     `json:"mcq_id,omitempty"`
	Front        string     `json:"front"`
	Back         string     `json:"back"`
	EaseFactor   float64    `json:"ease_factor"`
	IntervalDays int        `json:"interval_days"`
	Repetitions  int        `json:"repetitions"`
	NextReview   time.Time  `json:"next_review"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CreateFlashcardRequest struct {
	MCQID *int64 `json:"mcq_id"`
	Front string `json:"front"`
	Back  string `json:"back"`
}

type ReviewFlashcardRequest struct {
	Quality int `json:"quality"`
}

type ReviewStats struct {
	TotalCards    int `json:"total_cards"`
	DueToday      int `json:"due_today"`
	ReviewedToday int `json:"reviewed_today"`
	MatureCards   int `json:"mature_cards"`
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}

type StudyStreak struct {
	UserID        int64      `json:"user_id"`
	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	LastStudyDate *time.Time `json:"last_study_date,omitempty"`
}

// ── Reports ────────────────────────────────────────────

type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

var ValidReportStatuses = map[ReportStatus]bool{
	ReportPending:   true,
	ReportReviewed:  true,
	ReportResolved:  true,
	ReportDismissed: true,
}

type QuestionReport struct {
	ID                     int64        `json:"id"`
	UserID                 int64        `json:"user_id"`
	MCQID                  int64        `json:"mcq_id"`
	Reason                 string       `json:"reason"`
	SuggestedCorrectAnswer string       `json:"suggested_correct_answer,omitempty"`
	Status                 ReportStatus `json:"status"`
	AdminNotes             string       `json:"admin_notes,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	ResolvedAt             *time.Time   `json:"resolved_at,omitempty"`
}

type CreateReportRequest struct {
	Reason                 string `json:"reason"`
	SuggestedCorrectAnswer string `json:"suggested_correct_answer"`
}

type ResolveReportRequest struct {
	Status          ReportStatus `json:"status"`
	AdminNotes      string       `json:"admin_notes"`
	ApplySuggestion bool         `json:"apply_suggestion"`
}

// UserMCQState is one user's bookmark, note and hidden flags for an MCQ.
type UserMCQState struct {
	Bookmarked bool
	Note       string
	Hidden     bool
}

type RecordedAnswer struct {
	MCQID    int64
	Selected string
	Correct  bool
}

type UserCounts struct {
	Answered      int
	Incorrect     int
	Bookmarks     int
	Flashcards    int
	DueFlashcards int
}
