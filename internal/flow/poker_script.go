package flow

import "github.com/BTreeMap/HandCoach/internal/models"

// CoachSystemPrompt is the fixed instruction sent with every coaching request.
const CoachSystemPrompt = "You are a professional poker coach. Analyze the player's reasoning concisely and clearly. " +
	"Keep the answer under 100 words. Avoid introductions like 'Of course' or 'Sure'. " +
	"Speak in the first person as a coach. Do not include generic phrases, focus strictly on the hand."

// DefaultScript returns the built-in ThTs hand on the Button.
func DefaultScript() *Script {
	return &Script{
		Questions: []models.Question{
			{
				Stage:  "Preflop",
				Media:  "videos/1. Part 1 (Th Ts) Pre.mp4",
				Prompt: "Preflop: What would you like to do with ThTs on the Button?",
				Options: []models.Option{
					{Key: "A", Text: "Call", Points: 7},
					{Key: "B", Text: "Raise to 4", Points: 8},
					{Key: "C", Text: "Raise to 5", Points: 8},
					{Key: "D", Text: "Raise to 7", Points: 10},
				},
			},
			{
				Stage:  "Flop",
				Media:  "videos/1. Part 2 (Th Ts) Flop.mp4",
				Prompt: "Flop: What’s your best move here?",
				Options: []models.Option{
					{Key: "A", Text: "Check", Points: 6},
					{Key: "B", Text: "Bet 4.2", Points: 8},
					{Key: "C", Text: "Bet 9.35", Points: 10},
					{Key: "D", Text: "Bet 16.7", Points: 8},
				},
			},
			{
				Stage:  "Turn",
				Media:  "videos/1. Part 3 (Th Ts) Turn.mp4",
				Prompt: "Turn: What's the right play?",
				Options: []models.Option{
					{Key: "A", Text: "Check", Points: 10},
					{Key: "B", Text: "Bet 9", Points: 8},
					{Key: "C", Text: "Bet 18", Points: 7},
					{Key: "D", Text: "Bet 35.4", Points: 7},
				},
			},
			{
				Stage:  "River",
				Media:  "videos/1. Part 4 (Th Ts) River.mp4",
				Prompt: "River: What's your action?",
				Options: []models.Option{
					{Key: "A", Text: "Call", Points: 10},
					{Key: "B", Text: "Raise to 10.04", Points: 8},
					{Key: "C", Text: "Raise to 15", Points: 8},
					{Key: "D", Text: "Raise All-in", Points: 7},
				},
			},
		},
		FinalMedia: "videos/Part 5 Explanation.mp4",
		GuidedFields: []models.GuidedField{
			{Name: "Position", Prompt: "🧠 Let's break down your hand. What was your position at the table?"},
			{Name: "Stacks", Prompt: "How deep were the effective stacks, in big blinds?"},
			{Name: "Opponent", Prompt: "What did you know about your opponent's tendencies?"},
			{Name: "Preflop", Prompt: "Describe your preflop decision and why you made it."},
			{Name: "Postflop", Prompt: "Walk me through your flop, turn and river decisions."},
			{Name: "Doubts", Prompt: "Which decision are you least sure about, and why?"},
		},
		SystemPrompt: CoachSystemPrompt,
	}
}
