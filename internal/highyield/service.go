// Package highyield serves the high-yield review pages: per-specialty
// overviews and topic write-ups split into fixed sections, with images
// attached to individual sections.
package highyield

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"
	"github.com/neuro-mcq/backend/internal/models"
)

var (
	ErrNotFound     = errors.New("high-yield content not found")
	ErrConflict     = errors.New("slug already in use")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	maxNameLen    = 200
	maxTitleLen   = 300
	maxCaptionLen = 500
)

type Repository interface {
	Specialties(ctx context.Context) ([]models.HighYieldSpecialty, error)
	GetSpecialty(ctx context.Context, id int64) (*models.HighYieldSpecialty, error)
	SpecialtyBySlug(ctx context.Context, slug string) (*models.HighYieldSpecialty, error)
	CreateSpecialty(ctx context.Context, sp *models.HighYieldSpecialty, userID int64) error
	UpdateSpecialty(ctx context.Context, sp *models.HighYieldSpecialty) error
	DeleteSpecialty(ctx context.Context, id int64) error
	Topics(ctx context.Context, specialtyID int64) ([]models.HighYieldTopic, error)
	GetTopic(ctx context.Context, id int64) (*models.HighYieldTopic, error)
	CreateTopic(ctx context.Context, t *models.HighYieldTopic, userID int64) error
	UpdateTopic(ctx context.Context, t *models.HighYieldTopic) error
	DeleteTopic(ctx context.Context, id int64) error
	SectionImages(ctx context.Context, topicID int64) ([]models.SectionImage, error)
	AddSectionImage(ctx context.Context, img *models.SectionImage) error
	DeleteSectionImage(ctx context.Context, id int64) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ── Browsing ───────────────────────────────────────────

func (s *Service) Specialties(ctx context.Context) ([]models.HighYieldSpecialty, error) {
	list, err := s.repo.Specialties(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.HighYieldSpecialty{}
	}
	return list, nil
}

// Review loads a specialty page. topicSlug selects the topic shown in full;
// when empty the first topic is shown. An unknown topic slug is ErrNotFound.
func (s *Service) Review(ctx context.Context, specialtySlug, topicSlug string) (*models.SpecialtyReview, error) {
	sp, err := s.repo.SpecialtyBySlug(ctx, specialtySlug)
	if err != nil {
		return nil, err
	}
	topics, err := s.repo.Topics(ctx, sp.ID)
	if err != nil {
		return nil, err
	}

	review := &models.SpecialtyReview{
		Specialty: *sp,
		Topics:    make([]models.HighYieldTopic, 0, len(topics)),
		Sections:  models.TopicSections,
	}
	for i, t := range topics {
		if review.Selected == nil && (t.Slug == topicSlug || (topicSlug == "" && i == 0)) {
			selected := t
			review.Selected = &selected
		}
		t.Sections = nil
		review.Topics = append(review.Topics, t)
	}
	if review.Selected == nil {
		if topicSlug != "" {
			return nil, ErrNotFound
		}
		return review, nil
	}

	images, err := s.repo.SectionImages(ctx, review.Selected.ID)
	if err != nil {
		return nil, err
	}
	review.Selected.Images = groupImages(images)
	return review, nil
}

func groupImages(images []models.SectionImage) map[string][]models.SectionImage {
	if len(images) == 0 {
		return nil
	}
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Section != images[j].Section {
			return images[i].Section < images[j].Section
		}
		return images[i].Order < images[j].Order
	})
	out := map[string][]models.SectionImage{}
	for _, img := range images {
		out[img.Section] = append(out[img.Section], img)
	}
	return out
}

// ── Staff editing ──────────────────────────────────────

func required(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(value) > max {
		return "", fmt.Errorf("%w: %s longer than %d characters", ErrInvalidInput, field, max)
	}
	return value, nil
}

// pickSlug slugifies the explicit slug, or the fallback when none is given.
func pickSlug(explicit, fallback string) (string, error) {
	source := strings.TrimSpace(explicit)
	if source == "" {
		source = fallback
	}
	out := slug.Make(source)
	if out == "" {
		return "", fmt.Errorf("%w: cannot derive a slug from %q", ErrInvalidInput, source)
	}
	return out, nil
}

func applySpecialty(sp *models.HighYieldSpecialty, req models.SpecialtyRequest) error {
	name, err := required("name", req.Name, maxNameLen)
	if err != nil {
		return err
	}
	sp.Name = name
	sp.Introduction = strings.TrimSpace(req.Introduction)
	sp.HistoricalOverview = strings.TrimSpace(req.HistoricalOverview)
	sp.ImportantConcepts = strings.TrimSpace(req.ImportantConcepts)
	sp.RelatedAnatomy = strings.TrimSpace(req.RelatedAnatomy)
	sp.IntroductionImage = models.DirectImageURL(req.IntroductionImage)
	sp.AnatomyImage = models.DirectImageURL(req.AnatomyImage)
	return nil
}

func (s *Service) CreateSpecialty(ctx context.Context, userID int64, req models.SpecialtyRequest) (*models.HighYieldSpecialty, error) {
	sp := &models.HighYieldSpecialty{}
	if err := applySpecialty(sp, req); err != nil {
		return nil, err
	}
	var err error
	if sp.Slug, err = pickSlug(req.Slug, sp.Name); err != nil {
		return nil, err
	}
	if err := s.repo.CreateSpecialty(ctx, sp, userID); err != nil {
		return nil, err
	}
	log.Printf("[highyield] Specialty %q created as %s by user %d", sp.Name, sp.Slug, userID)
	return sp, nil
}

// UpdateSpecialty replaces the specialty's content. The slug only changes
// when the request names a new one.
func (s *Service) UpdateSpecialty(ctx context.Context, id int64, req models.SpecialtyRequest) (*models.HighYieldSpecialty, error) {
	sp, err := s.repo.GetSpecialty(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applySpecialty(sp, req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Slug) != "" {
		if sp.Slug, err = pickSlug(req.Slug, ""); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateSpecialty(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) DeleteSpecialty(ctx context.Context, id int64) error {
	return s.repo.DeleteSpecialty(ctx, id)
}

// cleanSections drops blank sections and rejects keys outside
// models.TopicSections.
func cleanSections(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	var unknown []string
	for key, text := range in {
		if !models.IsTopicSection(key) {
			unknown = append(unknown, key)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out[key] = text
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown sections %s", ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return out, nil
}

func applyTopic(t *models.HighYieldTopic, req models.TopicRequest) error {
	title, err := required("title", req.Title, maxTitleLen)
	if err != nil {
		return err
	}
	sections, err := cleanSections(req.Sections)
	if err != nil {
		return err
	}
	t.Title, t.Order, t.Sections = title, req.Order, sections
	return nil
}

func (s *Service) CreateTopic(ctx context.Context, userID, specialtyID int64, req models.TopicRequest) (*models.HighYieldTopic, error) {
	if _, err := s.repo.GetSpecialty(ctx, specialtyID); err != nil {
		return nil, err
	}
	t := &models.HighYieldTopic{SpecialtyID: specialtyID}
	if err := applyTopic(t, req); err != nil {
		return nil, err
	}
	var err error
	if t.Slug, err = pickSlug(req.Slug, t.Title); err != nil {
		return nil, err
	}
	if err := s.repo.CreateTopic(ctx, t, userID); err != nil {
		return nil, err
	}
	log.Printf("[highyield] Topic %q added to specialty %d with %d sections", t.Title, specialtyID, len(t.Sections))
	return t, nil
}

func (s *Service) UpdateTopic(ctx context.Context, id int64, req models.TopicRequest) (*models.HighYieldTopic, error) {
	t, err := s.repo.GetTopic(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyTopic(t, req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Slug) != "" {
		if t.Slug, err = pickSlug(req.Slug, ""); err != nil {
			return nil, err
		}
	}
	if err := s.repo.UpdateTopic(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTopic(ctx context.Context, id int64) error {
	return s.repo.DeleteTopic(ctx, id)
}

func (s *Service) AddSectionImage(ctx context.Context, topicID int64, req models.SectionImageRequest) (*models.SectionImage, error) {
	if !models.IsTopicSection(req.Section) {
		return nil, fmt.Errorf("%w: unknown section %q", ErrInvalidInput, req.Section)
	}
	url := strings.TrimSpace(req.ImageURL)
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, fmt.Errorf("%w: image_url must be an http(s) URL", ErrInvalidInput)
	}
	caption := strings.TrimSpace(req.Caption)
	if utf8.RuneCountInString(caption) > maxCaptionLen {
		return nil, fmt.Errorf("%w: caption longer than %d characters", ErrInvalidInput, maxCaptionLen)
	}
	if _, err := s.repo.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}

	img := &models.SectionImage{
		TopicID:  topicID,
		Section:  req.Section,
		ImageURL: models.DirectImageURL(url),
		Caption:  caption,
		Order:    req.Order,
	}
	if err := s.repo.AddSectionImage(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *Service) DeleteSectionImage(ctx context.Context, id int64) error {
	return s.repo.DeleteSectionImage(ctx, id)
}
