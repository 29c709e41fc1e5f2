package models

import "time"

// ── High-yield reviews ─────────────────────────────────

type HighYieldSpecialty struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Introduction       string    `json:"introduction"`
	HistoricalOverview string    `json:"historical_overview"`
	ImportantConcepts  string    `json:"important_concepts"`
	RelatedAnatomy     string    `json:"related_anatomy"`
	IntroductionImage  string    `json:"introduction_image,omitempty"`
	AnatomyImage       string    `json:"anatomy_image,omitempty"`
	TopicCount         int       `json:"topic_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HighYieldTopic is one review topic. Sections maps a TopicSections key to
// rich text; Images groups the section images by the same key.
type HighYieldTopic struct {
	ID          int64                     `json:"id"`
	SpecialtyID int64                     `json:"specialty_id"`
	Title       string                    `json:"title"`
	Slug        string                    `json:"slug"`
	Order       int                       `json:"order"`
	Sections    map[string]string         `json:"sections,omitempty"`
	Images      map[string][]SectionImage `json:"images,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

type SectionImage struct {
	ID        int64     `json:"id"`
	TopicID   int64     `json:"topic_id"`
	Section   string    `json:"section"`
	ImageURL  string    `json:"image_url"`
	Caption   string    `json:"caption,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

type TopicSection struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// TopicSections lists the topic sections in display order.
var TopicSections = []TopicSection{
	{"introduction_classification", "Introduction and Classification"},
	{"pathology_pathophysiology", "Pathology and Pathophysiology"},
	{"epidemiology", "Epidemiology"},
	{"clinical_presentation", "Clinical Presentation"},
	{"paraclinical_testing", "Para Clinical Testing"},
	{"diagnostic_criteria", "Diagnostic Criteria"},
	{"differential_diagnosis", "Differential Diagnosis"},
	{"management_guidelines", "Management Guidelines"},
	{"prognosis", "Prognosis"},
	{"common_pitfalls", "Common Pitfalls"},
	{"latest_guidelines", "Latest Guidelines and Evidence"},
}

func IsTopicSection(key string) bool {
	for _, s := range TopicSections {
		if s.Key == key {
			return true
		}
	}
	return false
}

// SpecialtyReview is a specialty page: its topic list (without section
// text) and the selected topic in full.
type SpecialtyReview struct {
	Specialty HighYieldSpecialty `json:"specialty"`
	Topics    []HighYieldTopic   `json:"topics"`
	Selected  *HighYieldTopic    `json:"selected_topic"`
	Sections  []TopicSection     `json:"sections"`
}

type SpecialtyRequest struct {
	Name               string `json:"name"`
	Slug               string `json:"slug"`
	Introduction       string `json:"introduction"`
	HistoricalOverview string `json:"historical_overview"`
	ImportantConcepts  string `json:"important_concepts"`
	RelatedAnatomy     string `json:"related_anatomy"`
	IntroductionImage  string `json:"introduction_image"`
	AnatomyImage       string `json:"anatomy_image"`
}

type TopicRequest struct {
	Title    string            `json:"title"`
	Slug     string            `json:"slug"`
	Order    int               `json:"order"`
	Sections map[string]string `json:"sections"`
}

type SectionImageRequest struct {
	Section  string `json:"section"`
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
	Order    int    `json:"order"`
}
