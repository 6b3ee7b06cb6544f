package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Canonical category order. Scoring ties resolve to the lowest index here,
// so results are stable across runs.
var categories = [4]string{"Idealist", "Socialite", "Pragmatist", "Analyst"}

// Question is one assessment step with exactly four options; option index i
// scores one point for categories[i].
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Answers []string `json:"answers"`
}

// TypeInfo carries the descriptive attributes shown with a result.
type TypeInfo struct {
	Square      string `json:"square"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// QuestionSet is the full assessment definition.
type QuestionSet struct {
	Questions []Question          `json:"questions"`
	Types     map[string]TypeInfo `json:"types"`
}

// TestResultData is the scored outcome persisted with the raw answers.
type TestResultData struct {
	TypeName    string         `json:"type_name"`
	TypePercent int            `json:"type_percent"`
	Square      string         `json:"square"`
	Role        string         `json:"role"`
	Description string         `json:"description,omitempty"`
	Scores      map[string]int `json:"all_scores"`
	Answers     []int          `json:"answers"`
}

// LoadQuestionSet reads the assessment definition from a JSON file, or the
// built-in default set when path is empty.
func LoadQuestionSet(path string) (*QuestionSet, error) {
	if path == "" {
		return defaultQuestionSet(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question set %s: %w", path, err)
	}
	var qs QuestionSet
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decode question set: %w", err)
	}
	if err := qs.validate(); err != nil {
		return nil, err
	}
	return &qs, nil
}

func (qs *QuestionSet) validate() error {
	if len(qs.Questions) == 0 {
		return errors.New("question set is empty")
	}
	for i, q := range qs.Questions {
		if len(q.Answers) != len(categories) {
			return fmt.Errorf("question %d must offer %d answers, has %d", i+1, len(categories), len(q.Answers))
		}
	}
	return nil
}

// Total returns the number of questions.
func (qs *QuestionSet) Total() int {
	return len(qs.Questions)
}

// Question returns the 1-based question, or nil when out of range.
func (qs *QuestionSet) Question(index int) *Question {
	if index < 1 || index > len(qs.Questions) {
		return nil
	}
	return &qs.Questions[index-1]
}

// Score tallies one point per answer for the category at the answer's option
// index and resolves the winner deterministically: highest count first, then
// lowest canonical category index.
func (qs *QuestionSet) Score(answers []int) (*TestResultData, error) {
	if len(answers) != len(qs.Questions) {
		return nil, fmt.Errorf("expected %d answers, got %d", len(qs.Questions), len(answers))
	}

	scores := make(map[string]int, len(categories))
	for _, name := range categories {
		scores[name] = 0
	}
	for i, a := range answers {
		if a < 0 || a >= len(categories) {
			return nil, fmt.Errorf("answer %d out of range: %d", i+1, a)
		}
		scores[categories[a]]++
	}

	winner := categories[0]
	best := scores[winner]
	for _, name := range categories[1:] {
		if scores[name] > best {
			winner, best = name, scores[name]
		}
	}

	info := qs.Types[winner]
	return &TestResultData{
		TypeName:    winner,
		TypePercent: int(math.Round(float64(best) / float64(len(answers)) * 100)),
		Square:      info.Square,
		Role:        info.Role,
		Description: info.Description,
		Scores:      scores,
		Answers:     append([]int(nil), answers...),
	}, nil
}

func defaultQuestionSet() *QuestionSet {
	answers := func(a, b, c, d string) []string { return []string{a, b, c, d} }
	return &QuestionSet{
		Questions: []Question{
			{ID: 1, Text: "When facing a difficult decision, what guides you most?",
				Answers: answers("My values and ideals", "Advice from people close to me", "What gets results fastest", "A careful weighing of the facts")},
			{ID: 2, Text: "What energizes you at work?",
				Answers: answers("Meaningful, purposeful projects", "Collaboration and team spirit", "Visible, concrete progress", "Solving complex problems")},
			{ID: 3, Text: "How do you prefer to spend a free evening?",
				Answers: answers("Reading or reflecting on big questions", "Meeting friends", "Finishing a hands-on project", "Studying something new in depth")},
			{ID: 4, Text: "What frustrates you most in other people?",
				Answers: answers("Cynicism", "Coldness and distance", "Indecision and wasted time", "Sloppy, illogical reasoning")},
			{ID: 5, Text: "How do you handle conflict?",
				Answers: answers("Appeal to shared principles", "Smooth things over and reconnect", "Push for a quick practical settlement", "Analyze the causes objectively")},
			{ID: 6, Text: "What kind of praise means the most to you?",
				Answers: answers("You stayed true to yourself", "People love being around you", "You get things done", "Your thinking is impressively sharp")},
			{ID: 7, Text: "When plans fall apart, your first reaction is to:",
				Answers: answers("Look for the deeper meaning in the change", "Check how everyone else is coping", "Improvise a workable alternative", "Re-plan methodically from scratch")},
			{ID: 8, Text: "Which role do you naturally take in a group?",
				Answers: answers("The inspirer", "The connector", "The driver", "The strategist")},
			{ID: 9, Text: "What do you value most in a friendship?",
				Answers: answers("Shared ideals", "Warmth and loyalty", "Mutual usefulness and reliability", "Honest intellectual exchange")},
			{ID: 10, Text: "How do you make big purchases?",
				Answers: answers("Only from brands whose values I share", "I ask people I trust", "Quickly, once the price is right", "After comparing every specification")},
			{ID: 11, Text: "What does success mean to you?",
				Answers: answers("Living in line with my beliefs", "Being surrounded by people I care about", "Tangible achievements", "Mastery of my field")},
			{ID: 12, Text: "Your ideal vacation is:",
				Answers: answers("A retreat to recharge inwardly", "A trip with a big group of friends", "An active adventure with a full itinerary", "A museum city with lots to learn")},
			{ID: 13, Text: "When learning something new, you prefer:",
				Answers: answers("Understanding why it matters", "Learning together with others", "Jumping in and trying it", "Working through the theory first")},
			{ID: 14, Text: "What would make you leave a job?",
				Answers: answers("A clash with my principles", "A toxic team", "Stagnation with no visible results", "Boring, unchallenging tasks")},
			{ID: 15, Text: "How do you react to criticism?",
				Answers: answers("I weigh it against my own convictions", "It stings, and I want to clear the air", "I take what is useful and move on", "I check whether it is factually justified")},
			{ID: 16, Text: "What legacy would you like to leave?",
				Answers: answers("Having stood for something", "People who remember my kindness", "Things I built that still work", "Ideas that outlive me")},
		},
		Types: map[string]TypeInfo{
			"Idealist":   {Square: "Alpha", Role: "Inspirer", Description: "Driven by meaning, values, and inner conviction."},
			"Socialite":  {Square: "Beta", Role: "Connector", Description: "Draws energy from people and keeps groups together."},
			"Pragmatist": {Square: "Gamma", Role: "Driver", Description: "Focused on results, efficiency, and momentum."},
			"Analyst":    {Square: "Delta", Role: "Strategist", Description: "Guided by logic, structure, and depth of understanding."},
		},
	}
}
