package service

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

// GradeInput is everything the activity grade of one workgroup depends on.
type GradeInput struct {
	// GradeQuestions are the graded question ids of the activity.
	GradeQuestions []string
	// Reviewers are the users currently assigned to review the workgroup.
	Reviewers []int64
	// Items are the review items stored against the workgroup for the activity.
	Items []models.ReviewItem
}

// CalculateGrade aggregates review answers into an activity grade. The second return value is
// false when no grade can be produced yet. The result depends on the input alone.
func CalculateGrade(in GradeInput) (float64, bool) {
	if len(in.GradeQuestions) == 0 {
		return 0, false
	}

	answers := make(map[int64]map[string]string)
	for _, item := range in.Items {
		if !item.HasAnswer() {
			continue
		}
		reviewer := item.ReviewerID()
		if answers[reviewer] == nil {
			answers[reviewer] = make(map[string]string)
		}
		answers[reviewer][item.Question] = item.Answer
	}

	completeSet := func(reviewer int64) ([]float64, bool) {
		given := answers[reviewer]
		values := make([]float64, 0, len(in.GradeQuestions))
		for _, q := range in.GradeQuestions {
			raw, ok := given[q]
			if !ok {
				return nil, false
			}
			value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
				return nil, false
			}
			values = append(values, value)
		}
		return values, true
	}

	assigned := make(map[int64]struct{}, len(in.Reviewers))
	reviewers := make([]int64, 0, len(in.Reviewers))
	for _, r := range in.Reviewers {
		if _, dup := assigned[r]; dup {
			continue
		}
		assigned[r] = struct{}{}
		reviewers = append(reviewers, r)
	}

	admins := make([]int64, 0)
	for reviewer := range answers {
		if _, ok := assigned[reviewer]; !ok {
			admins = append(admins, reviewer)
		}
	}
	slices.Sort(admins)

	adminSets := make([][]float64, 0, len(admins))
	for _, admin := range admins {
		if set, ok := completeSet(admin); ok {
			adminSets = append(adminSets, set)
		}
	}

	var fallback []float64
	switch {
	case len(adminSets) >= 2:
		fallback = make([]float64, len(in.GradeQuestions))
		for i := range fallback {
			sum := 0.0
			for _, set := range adminSets {
				sum += set[i]
			}
			fallback[i] = sum / float64(len(adminSets))
		}
	case len(adminSets) == 1:
		fallback = adminSets[0]
	}

	lists := make([][]float64, 0, len(reviewers))
	if len(reviewers) == 0 {
		if fallback == nil {
			return 0, false
		}
		// the viewer acts as the only reviewer, graded by the admins
		lists = append(lists, fallback)
	}
	for _, reviewer := range reviewers {
		set, ok := completeSet(reviewer)
		if !ok {
			if fallback == nil {
				return 0, false
			}
			set = fallback
		}
		lists = append(lists, set)
	}

	total := 0.0
	for _, list := range lists {
		total += mean(list)
	}
	return math.Round(total / float64(len(lists))), true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
