package services

import (
	"errors"
	"fmt"
	"strings"

	"maptest-backend/internal/config"
	"maptest-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrIncompleteRatings = errors.New("not every criterion has been rated yet")

type RatingService struct {
	db       *gorm.DB
	criteria config.Criteria
}

func NewRatingService(db *gorm.DB, criteria config.Criteria) *RatingService {
	return &RatingService{db: db, criteria: criteria}
}

func (s *RatingService) Criteria() config.Criteria {
	return s.criteria
}

// Submit stores one rater's scores for a channel. Validation is
// all-or-nothing; criteria absent from the submission keep their prior
// values. The read-merge-write runs under a row lock so concurrent raters
// cannot lose updates.
func (s *RatingService) Submit(channelID, userID string, scores map[string]int) error {
	for name, value := range scores {
		c, ok := s.criteria.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown criterion %q, valid: %s", name, s.criteriaNames())
		}
		if value < 0 || value > c.Max {
			return fmt.Errorf("%s must be between 0 and %d, got %d", c.Name, c.Max, value)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var row models.Rating
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("channel_id = ? AND user_id = ?", channelID, userID).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.Rating{ChannelID: channelID, UserID: userID, Scores: models.ScoreMap{}}
		} else if err != nil {
			return err
		}

		for name, value := range scores {
			c, _ := s.criteria.Lookup(name)
			v := value
			row.Scores[c.Name] = &v
		}

		if row.ID == 0 {
			return tx.Create(&row).Error
		}
		return tx.Save(&row).Error
	})
}

// Get returns one rater's raw row for a channel; unrated criteria are nil.
func (s *RatingService) Get(channelID, userID string) (models.ScoreMap, error) {
	var row models.Rating
	err := s.db.Where("channel_id = ? AND user_id = ?", channelID, userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ScoreMap{}, nil
	}
	if err != nil {
		return nil, err
	}
	return row.Scores, nil
}

// Aggregated returns the group aggregate over all stored ratings for a
// channel, optionally restricted to the given rater set.
func (s *RatingService) Aggregated(channelID string, raterIDs []string) (models.ScoreMap, int, error) {
	q := s.db.Where("channel_id = ?", channelID)
	if len(raterIDs) > 0 {
		q = q.Where("user_id IN ?", raterIDs)
	}
	var rows []models.Rating
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	agg, count := Aggregate(rows, s.criteria)
	return agg, count, nil
}

func (s *RatingService) criteriaNames() string {
	names := make([]string, len(s.criteria))
	for i, c := range s.criteria {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Aggregate computes the per-criterion rounded mean over all non-nil
// values. The rater count is that of the criterion with the most
// respondents, since raters may submit partial rows. A criterion nobody
// rated aggregates to nil, not zero.
func Aggregate(rows []models.Rating, criteria config.Criteria) (models.ScoreMap, int) {
	agg := models.ScoreMap{}
	maxRespondents := 0

	for _, c := range criteria {
		sum, n := 0, 0
		for _, row := range rows {
			if v, ok := row.Scores[c.Name]; ok && v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			agg[c.Name] = nil
			continue
		}
		mean := roundHalfUp(sum, n)
		agg[c.Name] = &mean
		if n > maxRespondents {
			maxRespondents = n
		}
	}
	return agg, maxRespondents
}

// roundHalfUp rounds sum/n to the nearest integer with .5 rounding up.
func roundHalfUp(sum, n int) int {
	return (2*sum + n) / (2 * n)
}

// Decision is the outcome of the approve/decline rule.
type Decision struct {
	Approved bool
	Total    int
	Reasons  []string
}

// Decide applies the threshold rules to a complete aggregate. It must only
// be called once every criterion has at least one rating; a nil criterion
// is an error, not a decline.
func Decide(agg models.ScoreMap, criteria config.Criteria) (*Decision, error) {
	total := 0
	var reasons []string

	for _, c := range criteria {
		v, ok := agg[c.Name]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteRatings, c.Name)
		}
		total += *v
		if *v < c.Required {
			reasons = append(reasons, fmt.Sprintf("%s scored %d, needs at least %d", c.Name, *v, c.Required))
		}
	}

	required := criteria.RequiredTotal()
	if total < required {
		reasons = append(reasons, fmt.Sprintf("total scored %d, needs at least %d", total, required))
	}

	return &Decision{Approved: len(reasons) == 0, Total: total, Reasons: reasons}, nil
}

// Signal classifies partial ratings for the fast-track heuristic.
type Signal int

const (
	SignalNeutral Signal = iota
	SignalPositive
	SignalNegative
)

// EvaluateSignal detects strong early consensus. Positive signal
// fast-tracks processing; negative signal only clears an earlier
// fast-track date, it never schedules an early decline.
func EvaluateSignal(agg models.ScoreMap, raterCount int, criteria config.Criteria) Signal {
	required := criteria.RequiredTotal()

	total, rated := 0, 0
	allAbove, allBelow := true, true
	strongAbove, strongBelow := 0, 0

	for _, c := range criteria {
		v, ok := agg[c.Name]
		if !ok || v == nil {
			continue
		}
		rated++
		total += *v
		if *v < c.Required+1 {
			allAbove = false
		}
		if *v > c.Required-1 {
			allBelow = false
		}
		if *v >= c.Required+2 {
			strongAbove++
		}
		if *v <= c.Required-2 {
			strongBelow++
		}
	}

	if rated < len(criteria) {
		allAbove = false
		allBelow = false
	}

	switch {
	case allAbove && ((raterCount >= 3 && total >= required+10 && strongAbove >= 2) ||
		(raterCount >= 4 && total >= required+5)):
		return SignalPositive
	case allBelow && ((raterCount >= 3 && total <= required-10 && strongBelow >= 2) ||
		(raterCount >= 4 && total <= required-5)):
		return SignalNegative
	}
	return SignalNeutral
}
