package scoring

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func sparseListing() Establishment {
	items := make([]MenuItem, 0, 4)
	for _, name := range []string{"X-Burger", "X-Salada", "X-Bacon", "X-Tudo"} {
		items = append(items, MenuItem{Name: name, Description: "Tasty", Price: 10})
	}
	return Establishment{
		Name:                "Burger Place",
		ImageURL:            "https://cdn.example/cover.jpg",
		Rating:              4.2,
		DeliveryTimeMinutes: 35,
		DeliveryFee:         5,
		MenuCategories:      []MenuCategory{{Name: "Burgers", Items: items}},
	}
}

func completeListing() Establishment {
	categories := make([]MenuCategory, 0, 5)
	for _, name := range []string{"Combos", "Burgers", "Sides", "Drinks", "Desserts"} {
		categories = append(categories, MenuCategory{
			Name: name,
			Items: []MenuItem{{
				Name:             name + " special",
				Description:      "Hand made with fresh local ingredients every day",
				Price:            29.9,
				ImageURL:         "https://cdn.example/item.jpg",
				HasCustomization: true,
			}},
		})
	}
	return Establishment{
		Name:                "Top Burger",
		ImageURL:            "https://cdn.example/cover.jpg",
		Rating:              4.8,
		DeliveryTimeMinutes: 25,
		DeliveryFee:         4.99,
		MenuCategories:      categories,
	}
}

func recommendationIDs(items []Recommendation) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestScoreSparseListing(t *testing.T) {
	result := Score(sparseListing())

	if len(result.Strengths) != 1 {
		t.Fatalf("expected 1 strength, got %v", result.Strengths)
	}
	if len(result.Weaknesses) != 3 {
		t.Fatalf("expected 3 weaknesses, got %v", result.Weaknesses)
	}

	expected := []string{
		"IMAGES_MISSING",
		"DESCRIPTIONS_SHORT",
		"MENU_STRUCTURE",
		"SEO_LISTING",
		"PROMOTIONS_CAMPAIGNS",
		"UPSELL_CUSTOMIZATION",
	}
	if got := recommendationIDs(result.Recommendations); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected recommendations %v, got %v", expected, got)
	}
	if result.HighPriorityCount() != 2 {
		t.Fatalf("expected 2 high priority recommendations, got %d", result.HighPriorityCount())
	}
	if result.CompositeScore != 71 {
		t.Fatalf("expected composite 71, got %d", result.CompositeScore)
	}

	scores := map[string]float64{}
	for _, c := range result.Categories {
		scores[c.Key] = c.Score
	}
	if scores[CategoryMenu] != 1 {
		t.Fatalf("expected menu score 1, got %v", scores[CategoryMenu])
	}
	if scores[CategoryPresentation] != 0 {
		t.Fatalf("expected presentation score 0, got %v", scores[CategoryPresentation])
	}
	if scores[CategoryPricing] != 10 {
		t.Fatalf("expected pricing score 10, got %v", scores[CategoryPricing])
	}
	if scores[CategoryReputation] != 8.4 {
		t.Fatalf("expected reputation score 8.4, got %v", scores[CategoryReputation])
	}
}

func TestScoreCompleteListing(t *testing.T) {
	result := Score(completeListing())

	if len(result.Weaknesses) != 0 {
		t.Fatalf("expected no weaknesses, got %v", result.Weaknesses)
	}
	// rating, delivery, structure, photos
	if len(result.Strengths) != 4 {
		t.Fatalf("expected 4 strengths, got %v", result.Strengths)
	}
	expected := []string{"SEO_LISTING", "PROMOTIONS_CAMPAIGNS"}
	if got := recommendationIDs(result.Recommendations); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected recommendations %v, got %v", expected, got)
	}
	if result.CompositeScore != 96 {
		t.Fatalf("expected composite 96, got %d", result.CompositeScore)
	}
	if result.OverallScore != 9.9 {
		t.Fatalf("expected overall 9.9, got %v", result.OverallScore)
	}
}

func TestScoreDeterminism(t *testing.T) {
	first := Score(sparseListing())
	second := Score(sparseListing())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected deterministic scoring")
	}
}

func TestScoreEmptyMenu(t *testing.T) {
	result := Score(Establishment{Name: "Ghost Kitchen"})

	if len(result.Strengths) != 0 || len(result.Weaknesses) != 0 || len(result.Recommendations) != 0 {
		t.Fatalf("expected empty findings, got %+v", result)
	}
	if result.Strengths == nil || result.Recommendations == nil {
		t.Fatalf("expected non-nil slices for empty findings")
	}
	if result.CompositeScore != 70 {
		t.Fatalf("expected composite 70, got %d", result.CompositeScore)
	}
	if result.OverallScore != 0 {
		t.Fatalf("expected overall 0, got %v", result.OverallScore)
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		name string
		est  Establishment
	}{
		{name: "nan_rating", est: Establishment{Rating: math.NaN(), DeliveryFee: math.NaN()}},
		{name: "huge_rating", est: Establishment{Rating: 100, MenuCategories: completeListing().MenuCategories}},
		{name: "negative_inputs", est: Establishment{Rating: -3, DeliveryTimeMinutes: -10, DeliveryFee: -1, MenuCategories: sparseListing().MenuCategories}},
		{name: "expensive_delivery", est: Establishment{Rating: 1, DeliveryTimeMinutes: 90, DeliveryFee: 25, MenuCategories: sparseListing().MenuCategories}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Score(tc.est)
			if result.CompositeScore < 0 || result.CompositeScore > 100 {
				t.Fatalf("composite out of range: %d", result.CompositeScore)
			}
			if math.IsNaN(result.OverallScore) || result.OverallScore < 0 || result.OverallScore > 10 {
				t.Fatalf("overall out of range: %v", result.OverallScore)
			}
			for _, c := range result.Categories {
				if math.IsNaN(c.Score) || c.Score < 0 || c.Score > 10 {
					t.Fatalf("category %s out of range: %v", c.Key, c.Score)
				}
			}
		})
	}
}

func TestScoreSkipsMissingRating(t *testing.T) {
	est := sparseListing()
	est.Rating = 0
	result := Score(est)

	for _, rec := range result.Recommendations {
		if rec.ID == "REPUTATION_RATING" {
			t.Fatalf("expected no reputation recommendation for an unrated listing")
		}
	}
	for _, w := range result.Weaknesses {
		if strings.Contains(w, "rating") {
			t.Fatalf("expected no rating weakness, got %q", w)
		}
	}
	// 70 + 0 strengths - 3 weaknesses*3 - 2 high*2
	if result.CompositeScore != 57 {
		t.Fatalf("expected composite 57, got %d", result.CompositeScore)
	}

	low := sparseListing()
	low.Rating = 2
	if !hasRecommendation(Score(low), "REPUTATION_RATING") {
		t.Fatalf("expected a rated listing below 4.0 to keep the reputation rule")
	}
}

func hasRecommendation(r Result, id string) bool {
	for _, rec := range r.Recommendations {
		if rec.ID == id {
			return true
		}
	}
	return false
}

func TestScoreCapsRatingContribution(t *testing.T) {
	high := Score(Establishment{Rating: 5, MenuCategories: completeListing().MenuCategories})
	capped := Score(Establishment{Rating: 50, MenuCategories: completeListing().MenuCategories})
	if high.CompositeScore != capped.CompositeScore {
		t.Fatalf("expected capped rating contribution, got %d and %d", high.CompositeScore, capped.CompositeScore)
	}
}

func TestSortRecommendationsStable(t *testing.T) {
	items := []Recommendation{
		{ID: "a", Priority: PriorityLow},
		{ID: "b", Priority: PriorityMedium},
		{ID: "c", Priority: PriorityHigh},
		{ID: "d", Priority: PriorityMedium},
		{ID: "e", Priority: PriorityHigh},
	}
	sortRecommendations(items)
	expected := []string{"c", "e", "b", "d", "a"}
	if got := recommendationIDs(items); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestResultCloneIsDeep(t *testing.T) {
	original := Score(sparseListing())
	clone := original.Clone()
	clone.Recommendations[0].Title = "changed"
	clone.Strengths[0] = "changed"
	if original.Recommendations[0].Title == "changed" || original.Strengths[0] == "changed" {
		t.Fatalf("expected clone to be independent of original")
	}
}
