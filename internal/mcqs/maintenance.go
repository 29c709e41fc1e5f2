package mcqs

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/neuro-mcq/backend/internal/explanation"
	"github.com/neuro-mcq/backend/internal/importer"
	"github.com/neuro-mcq/backend/internal/models"
)

// Maintenance runs bulk cleanups over the whole bank. Every run returns a
// report; dry runs count without writing.
type Maintenance struct {
	repo Repository
}

func NewMaintenance(repo Repository) *Maintenance {
	return &Maintenance{repo: repo}
}

// Dedupe merges MCQs sharing a normalized question text into the most
// complete copy. User data follows the kept id.
func (mt *Maintenance) Dedupe(ctx context.Context, dryRun bool) (*models.MaintenanceReport, error) {
	all, err := mt.repo.All(ctx, "")
	if err != nil {
		return nil, err
	}
	report := models.NewMaintenanceReport(dryRun)
	groups := importer.DuplicateGroups(all)
	report.Counts["groups"] = len(groups)

	for _, g := range groups {
		best, rest := importer.PickBest(g)
		remove := make([]int64, len(rest))
		for i, m := range rest {
			remove[i] = m.ID
		}
		report.Affected = append(report.Affected, remove...)
		report.Counts["removed"] += len(remove)
		if dryRun {
			continue
		}
		if err := mt.repo.MergeDuplicates(ctx, best.ID, remove); err != nil {
			return report, fmt.Errorf("merge duplicates of %d: %w", best.ID, err)
		}
	}
	log.Printf("[maintenance] dedupe: %d groups, %d removed (dry_run=%v)",
		report.Counts["groups"], report.Counts["removed"], dryRun)
	return report, nil
}

func analysisLetter(m *models.MCQ) string {
	for _, text := range []string{m.ExplanationSections["option_analysis"], m.UnifiedExplanation, m.Explanation} {
		if l := explanation.CorrectFromOptionAnalysis(text); l != "" {
			return l
		}
	}
	return ""
}

// FixAnswers reconciles each stored answer with the letter named in the
// option analysis. MCQs without an analysis only get their answer repaired
// when it is invalid.
func (mt *Maintenance) FixAnswers(ctx context.Context, dryRun bool) (*models.MaintenanceReport, error) {
	all, err := mt.repo.All(ctx, "")
	if err != nil {
		return nil, err
	}
	report := models.NewMaintenanceReport(dryRun)
	for _, key := range []string{"updated", "already_correct", "not_found", "no_analysis"} {
		report.Counts[key] = 0
	}

	for i := range all {
		m := &all[i]
		fixed := ""

		letter := analysisLetter(m)
		switch {
		case letter == "":
			report.Counts["no_analysis"]++
			if m.HasValidAnswer() {
				continue
			}
			repaired, changed := importer.NormalizeAnswer(m)
			if !changed {
				report.Counts["not_found"]++
				continue
			}
			fixed = repaired
		case !m.Options.Has(letter):
			report.Counts["not_found"]++
			continue
		case containsLetter(m.CorrectLetters(), letter):
			report.Counts["already_correct"]++
			continue
		default:
			fixed = letter
		}

		report.Counts["updated"]++
		report.Affected = append(report.Affected, m.ID)
		if dryRun {
			continue
		}
		m.CorrectAnswer = fixed
		m.CorrectAnswerText = ""
		m.CorrectAnswerText = m.AnswerText()
		if err := mt.repo.Update(ctx, m, true); err != nil {
			return report, fmt.Errorf("update answer of %d: %w", m.ID, err)
		}
	}
	log.Printf("[maintenance] fix-answers: %v (dry_run=%v)", report.Counts, dryRun)
	return report, nil
}

func containsLetter(letters []string, l string) bool {
	for _, x := range letters {
		if x == l {
			return true
		}
	}
	return false
}

// FixImages rewrites every image URL into its embeddable form.
func (mt *Maintenance) FixImages(ctx context.Context, dryRun bool) (*models.MaintenanceReport, error) {
	all, err := mt.repo.All(ctx, "")
	if err != nil {
		return nil, err
	}
	report := models.NewMaintenanceReport(dryRun)
	report.Counts["updated"] = 0
	for i := range all {
		m := &all[i]
		fixed := models.NormalizeImageURL(m.ImageURL)
		if fixed == m.ImageURL {
			continue
		}
		report.Counts["updated"]++
		report.Affected = append(report.Affected, m.ID)
		if dryRun {
			continue
		}
		m.ImageURL = fixed
		if err := mt.repo.Update(ctx, m, false); err != nil {
			return report, fmt.Errorf("update image of %d: %w", m.ID, err)
		}
	}
	return report, nil
}

// Backfill fills a missing unified explanation from the sections and a
// missing image URL from the first <img> in the explanation.
func (mt *Maintenance) Backfill(ctx context.Context, dryRun bool) (*models.MaintenanceReport, error) {
	all, err := mt.repo.All(ctx, "")
	if err != nil {
		return nil, err
	}
	report := models.NewMaintenanceReport(dryRun)
	report.Counts["explanations"] = 0
	report.Counts["images"] = 0

	for i := range all {
		m := &all[i]
		changed := false
		if strings.TrimSpace(m.UnifiedExplanation) == "" && len(m.ExplanationSections) > 0 {
			if merged := explanation.Merge(m.ExplanationSections); merged != "" {
				m.UnifiedExplanation = merged
				report.Counts["explanations"]++
				changed = true
			}
		}
		if strings.TrimSpace(m.ImageURL) == "" {
			for _, text := range []string{m.UnifiedExplanation, m.Explanation} {
				if urls := explanation.ImageURLs(text); len(urls) > 0 {
					m.ImageURL = models.NormalizeImageURL(urls[0])
					report.Counts["images"]++
					changed = true
					break
				}
			}
		}
		if !changed {
			continue
		}
		report.Affected = append(report.Affected, m.ID)
		if dryRun {
			continue
		}
		if err := mt.repo.Update(ctx, m, false); err != nil {
			return report, fmt.Errorf("backfill %d: %w", m.ID, err)
		}
	}
	log.Printf("[maintenance] backfill: %d explanations, %d images (dry_run=%v)",
		report.Counts["explanations"], report.Counts["images"], dryRun)
	return report, nil
}

// PlaceholderReport lists MCQs that have no meaningful explanation.
func (mt *Maintenance) PlaceholderReport(ctx context.Context) (*models.MaintenanceReport, error) {
	all, err := mt.repo.All(ctx, "")
	if err != nil {
		return nil, err
	}
	report := models.NewMaintenanceReport(true)
	report.Counts["checked"] = len(all)
	report.Counts["placeholder"] = 0
	for i := range all {
		if !explanation.HasExplanation(&all[i]) {
			report.Counts["placeholder"]++
			report.Affected = append(report.Affected, all[i].ID)
		}
	}
	return report, nil
}
