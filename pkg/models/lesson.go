package models

// Lesson is a published unit of study
type Lesson struct {
	ID       string `json:"id" db:"id"`
	Title    string `json:"title" db:"title"`
	Status   string `json:"status" db:"status"` // draft, published, archived
	Position int    `json:"position" db:"position"`
}

// Asset is a single practice item (word or phrase) inside a lesson
type Asset struct {
	ID          string `json:"id" db:"id"`
	LessonID    string `json:"lesson_id" db:"lesson_id"`
	Text        string `json:"text" db:"text"`
	Translation string `json:"translation" db:"translation"`
	Status      string `json:"status" db:"status"` // pending, approved, rejected
}

const (
	LessonStatusPublished = "published"
	AssetStatusApproved   = "approved"
)
