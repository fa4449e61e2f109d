package rubric

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-grader/internal/models"
)

// HomeworkPlaceholder is replaced by the grading service with the extracted document text.
const HomeworkPlaceholder = "{{HOMEWORK_TEXT}}"

// RenderCategoryPrompt lays out a category the way the grading service builds its user
// prompt, so operators can review wording without a round trip.
func RenderCategoryPrompt(category *models.RubricCategory) string {
	if category == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a university instructor. Grade the student's \"%s\" strictly against the rubric below.\n", category.DisplayName)
	b.WriteString("Score every item and explain each deduction.\n\n")
	for si, section := range category.Sections {
		fmt.Fprintf(&b, "%d. %s (%s points)\n", si+1, section.Key, formatScore(section.MaxScore))
		for ii, item := range section.Items {
			fmt.Fprintf(&b, "  %d.%d %s (%s points): %s\n", si+1, ii+1, item.Key, formatScore(item.MaxScore), item.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("[Student submission]\n")
	b.WriteString(HomeworkPlaceholder)
	return b.String()
}

// RubricTotal sums section maxima of a category.
func RubricTotal(category *models.RubricCategory) float64 {
	if category == nil {
		return 0
	}
	var total float64
	for _, section := range category.Sections {
		total += section.MaxScore
	}
	return total
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
