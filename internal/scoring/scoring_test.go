package scoring

import (
	"testing"
)

func TestBuildMappingBalanced(t *testing.T) {
	mapping := BuildMapping(93)
	counts := map[Axis]int{}
	for i, m := range mapping {
		counts[m.Axis]++
		wantDir := 1
		if i%2 == 1 {
			wantDir = -1
		}
		if m.Direction != wantDir {
			t.Fatalf("slot %d direction = %d, want %d", i, m.Direction, wantDir)
		}
	}
	if counts[AxisEI] != 24 || counts[AxisNS] != 23 || counts[AxisTF] != 23 || counts[AxisJP] != 23 {
		t.Fatalf("axis share = %v, want EI:24 NS:23 TF:23 JP:23", counts)
	}
}

func TestScoreGolden93(t *testing.T) {
	e := NewEngine(93)
	answers := make([]int, 93)
	for i := range answers {
		answers[i] = i % 4
	}

	r, err := e.Score(answers)
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if r.Type != "ESFJ" {
		t.Fatalf("type = %q, want ESFJ", r.Type)
	}
	if r.AxisScores[AxisEI] != 36 || r.AxisScores[AxisNS] != -11.5 ||
		r.AxisScores[AxisTF] != -11.5 || r.AxisScores[AxisJP] != 34.5 {
		t.Fatalf("axis scores = %v, want EI:36 NS:-11.5 TF:-11.5 JP:34.5", r.AxisScores)
	}
	wantPct := map[Axis]int{AxisEI: 100, AxisNS: 33, AxisTF: 33, AxisJP: 100}
	for axis, want := range wantPct {
		if got := r.Percentages[axis]; got != want {
			t.Fatalf("percent[%s] = %d, want %d", axis, got, want)
		}
	}
	if r.Confidence != 0.85 {
		t.Fatalf("confidence = %v, want 0.85", r.Confidence)
	}
	if r.Answered != 93 || r.Total != 93 {
		t.Fatalf("answered/total = %d/%d, want 93/93", r.Answered, r.Total)
	}
}

func TestScoreTotalOverPartialSequences(t *testing.T) {
	e := NewEngine(93)
	for n := 0; n <= 93; n++ {
		answers := make([]int, n)
		for i := range answers {
			switch i % 3 {
			case 0:
				answers[i] = Unanswered
			case 1:
				answers[i] = 0
			default:
				answers[i] = 3
			}
		}
		r, err := e.Score(answers)
		if err != nil {
			t.Fatalf("length %d: unexpected error: %v", n, err)
		}
		if len(r.Type) != 4 {
			t.Fatalf("length %d: type = %q", n, r.Type)
		}
		for axis, p := range r.Percentages {
			if p < 0 || p > 100 {
				t.Fatalf("length %d: percent[%s] = %d out of [0,100]", n, axis, p)
			}
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	e := NewEngine(93)
	answers := make([]int, 93)
	for i := range answers {
		answers[i] = (i * 7) % 4
	}
	first, err := e.Score(answers)
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := e.Score(answers)
		if err != nil {
			t.Fatalf("Score returned error: %v", err)
		}
		if again.Type != first.Type || again.Confidence != first.Confidence {
			t.Fatalf("run %d differed: %q/%v vs %q/%v", i, again.Type, again.Confidence, first.Type, first.Confidence)
		}
	}
}

func TestScoreNeutralMidpointForEmptyAxis(t *testing.T) {
	e := NewEngine(93)
	// Slot 0 belongs to EI; all other axes stay unanswered.
	answers := []int{0}
	r, err := e.Score(answers)
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	for _, axis := range []Axis{AxisNS, AxisTF, AxisJP} {
		if r.Percentages[axis] != 50 {
			t.Fatalf("percent[%s] = %d, want neutral 50", axis, r.Percentages[axis])
		}
	}
	if r.Percentages[AxisEI] != 100 {
		t.Fatalf("percent[EI] = %d, want 100", r.Percentages[AxisEI])
	}
}

func TestScoreZeroTieBreaksToFirstLetter(t *testing.T) {
	e := NewEngine(93)
	// Slots 0 and 4 are both EI with direction +1; strongly-agree plus
	// strongly-disagree cancels to an exact zero.
	answers := []int{0, Unanswered, Unanswered, Unanswered, 3}
	r, err := e.Score(answers)
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if r.AxisScores[AxisEI] != 0 {
		t.Fatalf("EI score = %v, want 0", r.AxisScores[AxisEI])
	}
	if r.Type[0] != 'E' {
		t.Fatalf("type = %q, want leading E on zero tie", r.Type)
	}
	if r.Percentages[AxisEI] != 50 {
		t.Fatalf("percent[EI] = %d, want 50", r.Percentages[AxisEI])
	}
}

func TestScoreRejectsOutOfRangeOption(t *testing.T) {
	e := NewEngine(93)
	if _, err := e.Score([]int{4}); err == nil {
		t.Fatalf("expected error for option index 4")
	}
	if _, err := e.Score([]int{-2}); err == nil {
		t.Fatalf("expected error for option index -2")
	}
	if _, err := e.Score(make([]int, 94)); err == nil {
		t.Fatalf("expected error for oversized sequence")
	}
}

func TestTypeWithOverride(t *testing.T) {
	e := NewEngine(93)
	r, err := e.Score([]int{0})
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if got := r.TypeWith("INTJ"); got != "INTJ" {
		t.Fatalf("override type = %q, want INTJ", got)
	}
	if got := r.TypeWith(""); got != r.Type {
		t.Fatalf("empty override changed type: %q vs %q", got, r.Type)
	}
	// The override never rewrites the underlying scores.
	if r.AxisScores[AxisEI] != 1.5 {
		t.Fatalf("EI score = %v, want 1.5", r.AxisScores[AxisEI])
	}
}

func TestShadowType(t *testing.T) {
	cases := map[string]string{
		"ESFJ": "INTP",
		"INTJ": "ESFP",
		"":     "",
		"EXFJ": "",
	}
	for in, want := range cases {
		if got := ShadowType(in); got != want {
			t.Fatalf("ShadowType(%q) = %q, want %q", in, got, want)
		}
	}
}
