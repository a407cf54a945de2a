package scoring

import (
	"testing"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
)

func TestScoreCoffeeShopOwnerIsHigh(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{
		BusinessType:  model.BusinessExisting,
		BusinessScale: "3 coffee shops",
		Volume:        "about 500 customers a day",
		PainPoints:    []string{"inconsistent quality", "staff turnover"},
		ContactName:   "Mike",
		ContactEmail:  "mike@citycoffee.com",
		ContactPhone:  "555-0456",
	}

	score, priority := Score(lead)
	if score != 90 {
		t.Fatalf("Score() = %d, want 90", score)
	}
	if priority != model.PriorityHigh {
		t.Fatalf("Score() priority = %s, want HIGH", priority)
	}
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{
		BusinessType: model.BusinessNewCafe,
		Timeline:     "next month",
		ContactName:  "Ana",
		SupportNeeds: []string{"training"},
	}
	first, p1 := Score(lead)
	for i := 0; i < 10; i++ {
		got, p := Score(lead)
		if got != first || p != p1 {
			t.Fatalf("Score() = %d/%s on run %d, want %d/%s", got, p, i, first, p1)
		}
	}
	// 20 business + 10 vague timeline + 10 contact + 5 clarity
	if first != 45 || p1 != model.PriorityLow {
		t.Fatalf("Score() = %d/%s, want 45/LOW", first, p1)
	}
}

func TestScoreComponents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead model.Lead
		want int
	}{
		{"empty", model.Lead{}, 0},
		{"unknown business", model.Lead{BusinessType: model.BusinessUnknown}, 0},
		{"asap", model.Lead{Timeline: "ASAP"}, 20},
		{"within two weeks", model.Lead{Timeline: "within 2 weeks"}, 20},
		{"explicit date", model.Lead{Timeline: "opening 2025-09-01"}, 20},
		{"month and day", model.Lead{Timeline: "March 15"}, 20},
		{"vague month", model.Lead{Timeline: "sometime in March"}, 10},
		{"next year", model.Lead{Timeline: "next year"}, 10},
		{"scale words", model.Lead{BusinessScale: "three locations"}, 15},
		{"single shop", model.Lead{BusinessScale: "one small cafe"}, 10},
		{"scale text", model.Lead{BusinessScale: "regional chain"}, 5},
		{"volume high", model.Lead{Volume: "1,200 cups"}, 10},
		{"volume medium", model.Lead{Volume: "one hundred cups"}, 5},
		{"volume low", model.Lead{Volume: "50 cups"}, 0},
		{"clarity capped", model.Lead{PainPoints: []string{"a", "b"}, SupportNeeds: []string{"c"}}, 10},
		{"clarity distinct", model.Lead{PainPoints: []string{"Quality", "quality "}}, 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got, _ := Score(&tt.lead); got != tt.want {
				t.Fatalf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreCapped(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{
		BusinessType:  model.BusinessExisting,
		Timeline:      "immediately",
		BusinessScale: "12 shops",
		Volume:        "5000 cups",
		PainPoints:    []string{"quality", "cost"},
		ContactName:   "Mike",
		ContactEmail:  "mike@example.com",
		ContactPhone:  "+15550100456",
	}
	if got, p := Score(lead); got != MaxScore || p != model.PriorityHigh {
		t.Fatalf("Score() = %d/%s, want %d/HIGH", got, p, MaxScore)
	}
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	for score, want := range map[int]model.Priority{
		100: model.PriorityHigh,
		80:  model.PriorityHigh,
		79:  model.PriorityMedium,
		60:  model.PriorityMedium,
		59:  model.PriorityLow,
		0:   model.PriorityLow,
	} {
		if got := PriorityFor(score); got != want {
			t.Fatalf("PriorityFor(%d) = %s, want %s", score, got, want)
		}
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	lead := &model.Lead{BusinessType: model.BusinessExisting, ContactName: "Mike", ContactEmail: "m@example.com", ContactPhone: "1"}
	Apply(lead)
	if lead.Score != 55 || lead.Priority != model.PriorityLow {
		t.Fatalf("Apply() = %d/%s, want 55/LOW", lead.Score, lead.Priority)
	}
}
