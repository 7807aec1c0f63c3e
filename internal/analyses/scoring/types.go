package scoring

// Priority levels for recommendations.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Category keys for per-category scores.
const (
	CategoryMenu         = "menu"
	CategoryPresentation = "presentation"
	CategoryPricing      = "pricing"
	CategoryReputation   = "reputation"
)

// Establishment is the structured listing data produced by the extraction service.
type Establishment struct {
	Name                string         `json:"name"`
	Category            string         `json:"category"`
	ImageURL            string         `json:"imageUrl"`
	Rating              float64        `json:"rating"`
	DeliveryTimeMinutes int            `json:"deliveryTimeMinutes"`
	DeliveryFee         float64        `json:"deliveryFee"`
	Address             string         `json:"address"`
	OpeningHours        string         `json:"openingHours"`
	MenuCategories      []MenuCategory `json:"menuCategories"`
}

// MenuCategory groups menu items under a section name.
type MenuCategory struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// MenuItem is a single product on the menu.
type MenuItem struct {
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Price            float64 `json:"price"`
	ImageURL         string  `json:"imageUrl,omitempty"`
	HasCustomization bool    `json:"hasCustomization"`
}

// Restaurant identifies the analysed establishment in a result.
type Restaurant struct {
	Name     string  `json:"name"`
	Image    string  `json:"image"`
	Category string  `json:"category,omitempty"`
	Rating   float64 `json:"rating"`
}

// CategoryScore is an independent 0-10 sub-score.
type CategoryScore struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Recommendation is a prioritized, categorized suggestion.
// Withheld recommendations keep Category and Priority but carry no text.
type Recommendation struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Withheld    bool   `json:"withheld,omitempty"`
}

// Result is the output of Score.
type Result struct {
	Restaurant      Restaurant       `json:"restaurant"`
	OverallScore    float64          `json:"overallScore"`
	CompositeScore  int              `json:"compositeScore"`
	Categories      []CategoryScore  `json:"categories"`
	Strengths       []string         `json:"strengths"`
	Weaknesses      []string         `json:"weaknesses"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Clone returns a deep copy of the result.
func (r Result) Clone() Result {
	out := r
	out.Categories = append([]CategoryScore{}, r.Categories...)
	out.Strengths = append([]string{}, r.Strengths...)
	out.Weaknesses = append([]string{}, r.Weaknesses...)
	out.Recommendations = append([]Recommendation{}, r.Recommendations...)
	return out
}

// HighPriorityCount returns the number of high priority recommendations.
func (r Result) HighPriorityCount() int {
	n := 0
	for _, rec := range r.Recommendations {
		if rec.Priority == PriorityHigh {
			n++
		}
	}
	return n
}
