package scoring

import (
	"fmt"
	"math"
)

// Axis is one of the four bipolar scoring dimensions. The sign of an
// axis's accumulated score decides one letter of the four-letter type.
type Axis string

const (
	AxisEI Axis = "EI"
	AxisNS Axis = "NS"
	AxisTF Axis = "TF"
	AxisJP Axis = "JP"
)

// Axes in cycle order. Question slots are assigned round-robin so every
// axis receives a balanced share of the pool.
var Axes = [4]Axis{AxisEI, AxisNS, AxisTF, AxisJP}

// Unanswered marks an empty question slot in an answer sequence.
const Unanswered = -1

// OptionWeights maps an option index to its symmetric agreement weight,
// strongly-agree down to strongly-disagree.
var OptionWeights = [4]float64{1.5, 0.5, -0.5, -1.5}

// MaxWeight is the largest per-question contribution magnitude.
const MaxWeight = 1.5

// SlotMapping fixes a question slot to an axis and a polarity direction.
type SlotMapping struct {
	Axis      Axis
	Direction int // +1 or -1
}

// BuildMapping returns the deterministic slot table for an n-question
// pool: axes cycle EI -> NS -> TF -> JP and direction alternates by slot
// parity, so each axis gets an approximately equal, balanced share.
func BuildMapping(n int) []SlotMapping {
	out := make([]SlotMapping, n)
	for i := 0; i < n; i++ {
		dir := 1
		if i%2 == 1 {
			dir = -1
		}
		out[i] = SlotMapping{Axis: Axes[i%len(Axes)], Direction: dir}
	}
	return out
}

// Result is the outcome of scoring one (possibly partial) answer sequence.
type Result struct {
	AxisScores  map[Axis]float64
	Percentages map[Axis]int
	Type        string
	Answered    int
	Total       int
	Confidence  float64
}

// Engine scores answer sequences against a fixed slot mapping. It is pure:
// no I/O, no state beyond the mapping built at construction.
type Engine struct {
	mapping []SlotMapping
	perAxis map[Axis]int
}

// NewEngine builds an engine for a pool of n question slots.
func NewEngine(n int) *Engine {
	mapping := BuildMapping(n)
	perAxis := map[Axis]int{}
	for _, m := range mapping {
		perAxis[m.Axis]++
	}
	return &Engine{mapping: mapping, perAxis: perAxis}
}

// Questions returns the size of the question pool.
func (e *Engine) Questions() int { return len(e.mapping) }

// Slot returns the (axis, direction) assignment for a question index.
func (e *Engine) Slot(index int) (SlotMapping, error) {
	if index < 0 || index >= len(e.mapping) {
		return SlotMapping{}, fmt.Errorf("question index %d out of range [0,%d)", index, len(e.mapping))
	}
	return e.mapping[index], nil
}

// Score accumulates weighted per-axis scores for the given answer
// sequence and derives the four-letter type, per-axis percentages and a
// confidence estimate. Unanswered slots contribute nothing. An
// out-of-range option index is a contract violation and the only error
// condition; any well-formed partial sequence scores successfully.
func (e *Engine) Score(answers []int) (*Result, error) {
	if len(answers) > len(e.mapping) {
		return nil, fmt.Errorf("answer sequence length %d exceeds question pool %d", len(answers), len(e.mapping))
	}

	scores := map[Axis]float64{AxisEI: 0, AxisNS: 0, AxisTF: 0, AxisJP: 0}
	answeredPerAxis := map[Axis]int{}
	answered := 0
	extreme := 0

	for i, a := range answers {
		if a == Unanswered {
			continue
		}
		if a < 0 || a >= len(OptionWeights) {
			return nil, fmt.Errorf("question %d: option index %d out of range [0,%d)", i, a, len(OptionWeights))
		}
		m := e.mapping[i]
		scores[m.Axis] += OptionWeights[a] * float64(m.Direction)
		answeredPerAxis[m.Axis]++
		answered++
		if a == 0 || a == len(OptionWeights)-1 {
			extreme++
		}
	}

	percent := map[Axis]int{}
	letters := make([]byte, 0, 4)
	for _, axis := range Axes {
		percent[axis] = axisPercent(scores[axis], answeredPerAxis[axis])
		letters = append(letters, axisLetter(axis, scores[axis]))
	}

	return &Result{
		AxisScores:  scores,
		Percentages: percent,
		Type:        string(letters),
		Answered:    answered,
		Total:       len(e.mapping),
		Confidence:  e.confidence(answered, extreme),
	}, nil
}

// axisPercent rescales a raw axis score from its theoretical range
// [-max, +max] into [0,100]. An axis with no answered slots reports the
// neutral midpoint.
func axisPercent(score float64, answered int) int {
	if answered == 0 {
		return 50
	}
	max := float64(answered) * MaxWeight
	p := int(math.Round((score/max + 1) * 50))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// axisLetter picks the type letter for an axis. Zero is a defined
// tie-break: the first letter wins.
func axisLetter(axis Axis, score float64) byte {
	if score >= 0 {
		return axis[0]
	}
	return axis[1]
}

// confidence blends completeness with answer-distribution extremity.
// Purely derived; a session with no answers has zero confidence.
func (e *Engine) confidence(answered, extreme int) float64 {
	if answered == 0 {
		return 0
	}
	completeness := float64(answered) / float64(len(e.mapping))
	extremeRatio := float64(extreme) / float64(answered)
	return math.Round((completeness*0.7+(1-extremeRatio)*0.3)*100) / 100
}

// TypeWith applies a caller-supplied override type, used by demo and
// preview flows. The override supersedes the computed letters but never
// alters the underlying axis scores.
func (r *Result) TypeWith(override string) string {
	if override != "" {
		return override
	}
	return r.Type
}

var shadowPairs = map[byte]byte{
	'E': 'I', 'I': 'E',
	'N': 'S', 'S': 'N',
	'T': 'F', 'F': 'T',
	'J': 'P', 'P': 'J',
}

// ShadowType returns the letter-wise complement of a four-letter type.
func ShadowType(t string) string {
	if len(t) != 4 {
		return ""
	}
	out := make([]byte, 4)
	for i := 0; i < 4; i++ {
		c, ok := shadowPairs[t[i]]
		if !ok {
			return ""
		}
		out[i] = c
	}
	return string(out)
}
