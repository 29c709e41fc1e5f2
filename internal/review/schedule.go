package review

import (
	"errors"
	"math"
	"time"

	"github.com/neuro-mcq/backend/internal/models"
)

const (
	minEaseFactor  = 1.3
	matureInterval = 21
)

var ErrInvalidQuality = errors.New("quality must be between 0 and 5")

// Schedule is the SM-2 state of one card after a review.
type Schedule struct {
	EaseFactor   float64
	IntervalDays int
	Repetitions  int
	NextReview   time.Time
}

// NextSchedule applies one SM-2 review of the given quality (0-5).
// A failed recall (quality below 3) restarts the card at a one-day interval.
func NextSchedule(card models.Flashcard, quality int, now time.Time) (Schedule, error) {
	if quality < 0 || quality > 5 {
		return Schedule{}, ErrInvalidQuality
	}

	ease := card.EaseFactor
	if ease == 0 {
		ease = models.DefaultEaseFactor
	}
	q := float64(5 - quality)
	ease = math.Max(minEaseFactor, ease+(0.1-q*(0.08+q*0.02)))

	s := Schedule{EaseFactor: ease}
	if quality < 3 {
		s.Repetitions = 0
		s.IntervalDays = 1
	} else {
		s.Repetitions = card.Repetitions + 1
		switch s.Repetitions {
		case 1:
			s.IntervalDays = 1
		case 2:
			s.IntervalDays = 6
		default:
			s.IntervalDays = int(math.Round(float64(card.IntervalDays) * ease))
		}
	}
	s.NextReview = now.AddDate(0, 0, s.IntervalDays)
	return s, nil
}

// ── Streak ──────────────────────────────────────────────

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AdvanceStreak records study on the UTC day of at. It reports false when
// the streak already counts that day.
func AdvanceStreak(s *models.StudyStreak, at time.Time) bool {
	today := utcDay(at)

	if s.LastStudyDate != nil {
		last := utcDay(*s.LastStudyDate)
		if !today.After(last) {
			return false
		}
		if today.Sub(last) == 24*time.Hour {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
	} else {
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastStudyDate = &today
	return true
}

// StreakAsOf returns the streak as seen on now's UTC day: a streak whose
// last study day is before yesterday has lapsed.
func StreakAsOf(s models.StudyStreak, now time.Time) models.StudyStreak {
	if s.LastStudyDate == nil {
		s.CurrentStreak = 0
		return s
	}
	if utcDay(now).Sub(utcDay(*s.LastStudyDate)) > 24*time.Hour {
		s.CurrentStreak = 0
	}
	return s
}
