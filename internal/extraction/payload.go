package extraction

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"menuscore-backend/internal/analyses/scoring"
)

// ScrapePayload is the response from GET /api/v1/results/{id}.
type ScrapePayload struct {
	RestaurantName  string            `json:"restaurantName"`
	RestaurantImage string            `json:"restaurantImage"`
	Category        string            `json:"category,omitempty"`
	Rating          float64           `json:"rating"`
	DeliveryTime    string            `json:"deliveryTime"`
	DeliveryFee     string            `json:"deliveryFee"`
	Categories      []PayloadCategory `json:"categories"`
	Address         string            `json:"address"`
	OpeningHours    string            `json:"openingHours"`
}

type PayloadCategory struct {
	Name  string        `json:"name"`
	Items []PayloadItem `json:"items"`
}

type PayloadItem struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Price            float64 `json:"price"`
	ImageURL         *string `json:"imageUrl"`
	HasCustomization bool    `json:"hasCustomization"`
}

// Establishment converts the scraper payload into scoring input.
func (p ScrapePayload) Establishment() scoring.Establishment {
	est := scoring.Establishment{
		Name:                strings.TrimSpace(p.RestaurantName),
		Category:            strings.TrimSpace(p.Category),
		ImageURL:            strings.TrimSpace(p.RestaurantImage),
		Rating:              p.Rating,
		DeliveryTimeMinutes: ParseDeliveryMinutes(p.DeliveryTime),
		DeliveryFee:         ParseMoney(p.DeliveryFee),
		Address:             strings.TrimSpace(p.Address),
		OpeningHours:        strings.TrimSpace(p.OpeningHours),
		MenuCategories:      make([]scoring.MenuCategory, 0, len(p.Categories)),
	}
	for _, c := range p.Categories {
		category := scoring.MenuCategory{
			Name:  strings.TrimSpace(c.Name),
			Items: make([]scoring.MenuItem, 0, len(c.Items)),
		}
		for _, item := range c.Items {
			converted := scoring.MenuItem{
				Name:             strings.TrimSpace(item.Name),
				Description:      strings.TrimSpace(item.Description),
				Price:            item.Price,
				HasCustomization: item.HasCustomization,
			}
			if item.ImageURL != nil {
				converted.ImageURL = strings.TrimSpace(*item.ImageURL)
			}
			category.Items = append(category.Items, converted)
		}
		est.MenuCategories = append(est.MenuCategories, category)
	}
	return est
}

var minutesPattern = regexp.MustCompile(`\d+`)

// ParseDeliveryMinutes reads values like "30-40 min" or "45 min". Ranges are
// averaged; unparseable input yields 0.
func ParseDeliveryMinutes(raw string) int {
	matches := minutesPattern.FindAllString(raw, 2)
	if len(matches) == 0 {
		return 0
	}
	total := 0
	for _, m := range matches {
		n, err := strconv.Atoi(m)
		if err != nil {
			return 0
		}
		total += n
	}
	return int(math.Round(float64(total) / float64(len(matches))))
}

var moneyPattern = regexp.MustCompile(`\d[\d.,]*`)

// ParseMoney reads values like "R$ 6,99", "R$ 1.234,50" or "5.99". Free
// delivery labels and unparseable input yield 0.
func ParseMoney(raw string) float64 {
	token := strings.TrimRight(moneyPattern.FindString(raw), ".,")
	if token == "" {
		return 0
	}
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")
	switch {
	case lastComma > lastDot:
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Replace(token, ",", ".", 1)
	case lastDot > lastComma && lastComma >= 0:
		token = strings.ReplaceAll(token, ",", "")
	}
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0
	}
	return value
}
