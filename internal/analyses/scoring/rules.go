package scoring

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minDescriptionLength   = 20
	structuralMinimum      = 3
	structuralStrength     = 5
	missingImageWeakness   = 0.30
	missingImageStrength   = 0.10
	customizationThreshold = 0.20
	slowDeliveryMinutes    = 45
	fastDeliveryMinutes    = 30
)

type menuStats struct {
	categories   int
	items        int
	withImage    int
	described    int
	priced       int
	customizable int
}

func collectMenuStats(categories []MenuCategory) menuStats {
	stats := menuStats{categories: len(categories)}
	for _, category := range categories {
		for _, item := range category.Items {
			stats.items++
			if strings.TrimSpace(item.ImageURL) != "" {
				stats.withImage++
			}
			if utf8.RuneCountInString(strings.TrimSpace(item.Description)) >= minDescriptionLength {
				stats.described++
			}
			if item.Price > 0 {
				stats.priced++
			}
			if item.HasCustomization {
				stats.customizable++
			}
		}
	}
	return stats
}

func (s menuStats) ratio(n int) float64 {
	if s.items == 0 {
		return 0
	}
	return float64(n) / float64(s.items)
}

func (s menuStats) imageRatio() float64     { return s.ratio(s.withImage) }
func (s menuStats) describedRatio() float64 { return s.ratio(s.described) }
func (s menuStats) pricedRatio() float64    { return s.ratio(s.priced) }

type findings struct {
	strengths       []string
	weaknesses      []string
	recommendations []Recommendation
}

func (f *findings) strength(text string) { f.strengths = append(f.strengths, text) }
func (f *findings) weakness(text string) { f.weaknesses = append(f.weaknesses, text) }

func (f *findings) recommend(id, category, priority, title, description string) {
	f.recommendations = append(f.recommendations, Recommendation{
		ID:          id,
		Category:    category,
		Priority:    priority,
		Title:       title,
		Description: description,
	})
}

// detect evaluates the rules in a fixed order. A listing without any menu
// categories produces no findings.
func detect(est Establishment, stats menuStats) findings {
	f := findings{
		strengths:       []string{},
		weaknesses:      []string{},
		recommendations: []Recommendation{},
	}
	if stats.categories == 0 {
		return f
	}

	switch {
	case est.Rating == 0:
		// unrated listing
	case est.Rating >= 4.5:
		f.strength(fmt.Sprintf("Excellent customer rating (%.1f)", est.Rating))
	case est.Rating >= 4.0:
		f.strength(fmt.Sprintf("Good customer rating (%.1f)", est.Rating))
	default:
		f.weakness(fmt.Sprintf("Customer rating below the marketplace average (%.1f)", est.Rating))
		f.recommend("REPUTATION_RATING", "reputation", PriorityHigh,
			"Improve your customer rating",
			"Answer every review, follow up on complaints and review packaging and order accuracy. Listings rated below 4.0 are ranked lower in search.")
	}

	switch {
	case est.DeliveryTimeMinutes == 0:
	case est.DeliveryTimeMinutes <= fastDeliveryMinutes:
		f.strength(fmt.Sprintf("Fast delivery time (%d min)", est.DeliveryTimeMinutes))
	case est.DeliveryTimeMinutes > slowDeliveryMinutes:
		f.weakness(fmt.Sprintf("Long delivery time (%d min)", est.DeliveryTimeMinutes))
		f.recommend("OPERATIONS_DELIVERY_TIME", "operations", PriorityMedium,
			"Shorten your delivery time",
			"Prepare high volume items ahead of peak hours and reduce the delivery radius when the kitchen is saturated.")
	}

	switch {
	case stats.categories < structuralMinimum:
		f.weakness(fmt.Sprintf("Menu has only %d categories", stats.categories))
		f.recommend("MENU_STRUCTURE", "menu", PriorityMedium,
			"Organize the menu into more categories",
			"Split the menu into at least 5 clear sections such as combos, mains, sides, drinks and desserts so customers find items faster.")
	case stats.categories >= structuralStrength:
		f.strength(fmt.Sprintf("Well structured menu (%d categories)", stats.categories))
	}

	if stats.items == 0 {
		f.general()
		return f
	}

	missingImages := 1 - stats.imageRatio()
	switch {
	case missingImages > missingImageWeakness:
		f.weakness(fmt.Sprintf("%.0f%% of items have no photo", missingImages*100))
		f.recommend("IMAGES_MISSING", "images", PriorityHigh,
			"Add photos to every item",
			"Items with photos sell considerably more. Use well lit pictures taken from above with a neutral background.")
	case missingImages <= missingImageStrength:
		f.strength("Nearly every item has a photo")
	}

	if short := stats.items - stats.described; short > 0 {
		f.weakness(fmt.Sprintf("%d items have missing or short descriptions", short))
		f.recommend("DESCRIPTIONS_SHORT", "descriptions", PriorityHigh,
			"Write complete item descriptions",
			fmt.Sprintf("Describe ingredients, portion size and preparation in at least %d characters for every item.", minDescriptionLength))
	}

	if stats.ratio(stats.customizable) < customizationThreshold {
		f.recommend("UPSELL_CUSTOMIZATION", "upsell", PriorityLow,
			"Offer add-ons and customizations",
			"Let customers add extras, choose sizes and pick sides. Optional add-ons raise the average ticket.")
	}

	f.general()
	return f
}

func (f *findings) general() {
	f.recommend("SEO_LISTING", "seo", PriorityMedium,
		"Optimize the listing for search",
		"Use the dish names customers search for in titles and categories, and keep the cover image and opening hours up to date.")
	f.recommend("PROMOTIONS_CAMPAIGNS", "promotions", PriorityMedium,
		"Run recurring promotions",
		"Schedule weekly campaigns and combos on slow days to gain visibility in the marketplace promotion sections.")
}
