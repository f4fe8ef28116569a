package flow

import "github.com/BTreeMap/HandCoach/internal/models"

// fourStreetScript returns a four-question script where every question has a
// best option worth 10, matching the built-in hand's maximum of 40.
func fourStreetScript() *Script {
	q := func(stage string, pts ...int) models.Question {
		keys := []string{"A", "B", "C", "D"}
		opts := make([]models.Option, len(pts))
		for i, p := range pts {
			opts[i] = models.Option{Key: keys[i], Text: stage + " " + keys[i], Points: p}
		}
		return models.Question{Stage: stage, Prompt: stage + "?", Options: opts}
	}
	return &Script{
		Questions: []models.Question{
			q("Preflop", 7, 8, 8, 10),
			q("Flop", 6, 8, 10, 8),
			q("Turn", 10, 8, 7, 7),
			q("River", 10, 8, 8, 7),
		},
		FinalMedia: "final.mp4",
		GuidedFields: []models.GuidedField{
			{Name: "Position", Prompt: "Position?"},
			{Name: "Stacks", Prompt: "Stacks?"},
			{Name: "Opponent", Prompt: "Opponent?"},
		},
		SystemPrompt: "coach",
	}
}
