package scoring

import (
	"math"
	"sort"
	"strings"
)

const (
	compositeBaseline     = 70.0
	ratingMidpoint        = 3.0
	maxRatingContribution = 20.0
	maxStrengthBonus      = 10
	maxWeaknessPenalty    = 20
	maxHighPriorityMalus  = 10
)

// Score builds a deterministic evaluation from extracted establishment data.
// It is total: degenerate input yields a bounded result, never an error.
// A zero rating means the listing has no rating yet and is left out of the
// reputation findings and the composite.
func Score(est Establishment) Result {
	est = sanitize(est)
	stats := collectMenuStats(est.MenuCategories)

	categories := []CategoryScore{
		{Key: CategoryMenu, Name: "Menu", Score: menuScore(stats)},
		{Key: CategoryPresentation, Name: "Photos", Score: presentationScore(est, stats)},
		{Key: CategoryPricing, Name: "Pricing", Score: pricingScore(est, stats)},
		{Key: CategoryReputation, Name: "Reviews", Score: reputationScore(est)},
	}

	findings := detect(est, stats)
	sortRecommendations(findings.recommendations)

	result := Result{
		Restaurant: Restaurant{
			Name:     est.Name,
			Image:    est.ImageURL,
			Category: est.Category,
			Rating:   est.Rating,
		},
		OverallScore:    overallScore(categories),
		Categories:      categories,
		Strengths:       findings.strengths,
		Weaknesses:      findings.weaknesses,
		Recommendations: findings.recommendations,
	}
	result.CompositeScore = compositeScore(est.Rating, len(result.Strengths), len(result.Weaknesses), result.HighPriorityCount())
	return result
}

func overallScore(categories []CategoryScore) float64 {
	if len(categories) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range categories {
		total += c.Score
	}
	return clamp(round1(total/float64(len(categories))), 0, 10)
}

func compositeScore(rating float64, strengths, weaknesses, highPriority int) int {
	score := compositeBaseline
	if rating > 0 {
		score += clamp((rating-ratingMidpoint)*10, -maxRatingContribution, maxRatingContribution)
	}
	score += float64(min(maxStrengthBonus, strengths*2))
	score -= float64(min(maxWeaknessPenalty, weaknesses*3))
	score -= float64(min(maxHighPriorityMalus, highPriority*2))
	return int(clamp(math.Round(score), 0, 100))
}

func menuScore(s menuStats) float64 {
	structure := float64(min(s.categories, 5)) / 5
	return clamp(round1(10*(0.5*structure+0.5*s.describedRatio())), 0, 10)
}

func presentationScore(est Establishment, s menuStats) float64 {
	score := 10 * s.imageRatio()
	if strings.TrimSpace(est.ImageURL) == "" {
		score--
	}
	return clamp(round1(score), 0, 10)
}

func pricingScore(est Establishment, s menuStats) float64 {
	score := 10 * s.pricedRatio()
	switch {
	case est.DeliveryFee > 10:
		score -= 2
	case est.DeliveryFee > 6:
		score--
	}
	return clamp(round1(score), 0, 10)
}

func reputationScore(est Establishment) float64 {
	return clamp(round1(est.Rating*2), 0, 10)
}

func priorityRank(value string) int {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// sortRecommendations orders by priority; ties keep detection order.
func sortRecommendations(items []Recommendation) {
	sort.SliceStable(items, func(i, j int) bool {
		return priorityRank(items[i].Priority) > priorityRank(items[j].Priority)
	})
}

func sanitize(est Establishment) Establishment {
	if math.IsNaN(est.Rating) || math.IsInf(est.Rating, 0) {
		est.Rating = 0
	}
	est.Rating = clamp(est.Rating, 0, 5)
	if est.DeliveryTimeMinutes < 0 {
		est.DeliveryTimeMinutes = 0
	}
	if math.IsNaN(est.DeliveryFee) || est.DeliveryFee < 0 {
		est.DeliveryFee = 0
	}
	return est
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
