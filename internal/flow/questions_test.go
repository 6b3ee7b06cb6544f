package flow

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultQuestionSet(t *testing.T) {
	qs, err := LoadQuestionSet("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if qs.Total() != 16 {
		t.Fatalf("default questions = %d, want 16", qs.Total())
	}
	for i := 1; i <= qs.Total(); i++ {
		if q := qs.Question(i); q == nil || len(q.Answers) != 4 {
			t.Fatalf("question %d malformed: %+v", i, qs.Question(i))
		}
	}
	if qs.Question(0) != nil || qs.Question(17) != nil {
		t.Fatal("out of range question lookup must return nil")
	}
	for _, name := range categories {
		if _, ok := qs.Types[name]; !ok {
			t.Fatalf("category %s has no type info", name)
		}
	}
}

func TestLoadQuestionSetFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	data := `{
		"questions": [
			{"id": 1, "text": "Pick one", "answers": ["a", "b", "c", "d"]},
			{"id": 2, "text": "Pick again", "answers": ["a", "b", "c", "d"]}
		],
		"types": {"Idealist": {"square": "Alpha", "role": "Inspirer"}}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	qs, err := LoadQuestionSet(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if qs.Total() != 2 {
		t.Fatalf("questions = %d, want 2", qs.Total())
	}
}

func TestLoadQuestionSetValidation(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte(`{"questions": []}`), 0o644)
	if _, err := LoadQuestionSet(empty); err == nil {
		t.Fatal("empty question set must be rejected")
	}

	short := filepath.Join(dir, "short.json")
	os.WriteFile(short, []byte(`{"questions": [{"id": 1, "text": "q", "answers": ["a", "b"]}]}`), 0o644)
	if _, err := LoadQuestionSet(short); err == nil {
		t.Fatal("question with wrong answer count must be rejected")
	}

	if _, err := LoadQuestionSet(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestScoreRejectsBadInput(t *testing.T) {
	qs, _ := LoadQuestionSet("")

	if _, err := qs.Score([]int{0, 1}); err == nil {
		t.Fatal("short answer slice must be rejected")
	}
	bad := make([]int, 16)
	bad[3] = 7
	if _, err := qs.Score(bad); err == nil {
		t.Fatal("out of range answer must be rejected")
	}
}
