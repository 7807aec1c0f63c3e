package payments

import "menuscore-backend/internal/analyses/scoring"

// PreviewUnlockedCount is how many recommendations keep their text in a preview.
const PreviewUnlockedCount = 2

// RedactForPreview withholds every recommendation after the first
// unlockedCount. Withheld items keep their category and priority.
func RedactForPreview(result scoring.Result, unlockedCount int) scoring.Result {
	out := result.Clone()
	unlockedCount = max(unlockedCount, 0)
	for i := range out.Recommendations {
		if i < unlockedCount {
			continue
		}
		out.Recommendations[i].Title = ""
		out.Recommendations[i].Description = ""
		out.Recommendations[i].Withheld = true
	}
	return out
}
