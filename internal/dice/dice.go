package dice

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
)

// Formula limits keep a single roll bounded.
const (
	maxDice  = 100
	maxSides = 1000
)

var (
	// ErrInvalidFormula reports a formula that is not of the form XdY+Z.
	ErrInvalidFormula = errors.New("invalid dice formula")
	// ErrFormulaTooLarge reports a formula beyond the 100d1000 cap.
	ErrFormulaTooLarge = errors.New("formula exceeds 100d1000")
)

var (
	exprRe    = regexp.MustCompile(`^(\d+)d(\d+)$`)
	formulaRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)
)

// Roll rolls a single die with the given number of sides using the
// provided source. Sides must be positive.
func Roll(roll func(sides int) int, sides int) int {
	return roll(sides)
}

// DefaultRoller rolls with the process-wide math/rand source, which is
// safe for concurrent use.
func DefaultRoller(sides int) int {
	return rand.Intn(sides) + 1
}

// Quantity is a count that is either fixed or an NdM dice expression.
// It unmarshals from a JSON number, a numeric string, or an "NdM"
// string, and is resolved to a concrete count exactly once.
type Quantity struct {
	fixed int
	n     int
	sides int
	dice  bool
}

// Fixed returns a Quantity holding a literal count.
func Fixed(n int) Quantity {
	return Quantity{fixed: n}
}

// Expr returns a Quantity holding an n-dice m-sides expression.
func Expr(n, sides int) Quantity {
	return Quantity{n: n, sides: sides, dice: true}
}

// Resolve evaluates the quantity with the given roller. Fixed
// quantities return their value; dice expressions sum n rolls.
// An unset Quantity resolves to 1.
func (q Quantity) Resolve(roll func(sides int) int) int {
	if q.dice {
		total := 0
		for i := 0; i < q.n; i++ {
			total += roll(q.sides)
		}
		return total
	}
	if q.fixed <= 0 {
		return 1
	}
	return q.fixed
}

// UnmarshalJSON accepts 3, "3" or "2d4". Anything else resolves to a
// fixed count of one, matching the tolerant behaviour clients rely on.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*q = Fixed(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	s = strings.ToLower(strings.TrimSpace(s))

	if v, err := strconv.Atoi(s); err == nil {
		*q = Fixed(v)
		return nil
	}
	if m := exprRe.FindStringSubmatch(s); m != nil {
		nDice, _ := strconv.Atoi(m[1])
		sides, _ := strconv.Atoi(m[2])
		*q = Expr(nDice, sides)
		return nil
	}

	*q = Fixed(1)
	return nil
}

// MarshalJSON writes fixed counts as numbers and expressions back in
// NdM form so saved sessions round-trip.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.dice {
		return json.Marshal(fmt.Sprintf("%dd%d", q.n, q.sides))
	}
	if q.fixed <= 0 {
		return json.Marshal(1)
	}
	return json.Marshal(q.fixed)
}

// Result is the outcome of evaluating a roll formula. Field names match
// the wire format the table clients already consume.
type Result struct {
	Total       int    `json:"resultado"`
	Explanation string `json:"explicacion"`
	Formula     string `json:"formula"`
	Rolls       []int  `json:"rolls"`
	Modifier    int    `json:"modificador"`
	Error       bool   `json:"error"`
}

// Eval evaluates a D&D style formula ("d20", "2d6+3", "4d8-1") with the
// given roller.
func Eval(roll func(sides int) int, formula string) (Result, error) {
	cleaned := strings.ReplaceAll(strings.ToLower(formula), " ", "")
	m := formulaRe.FindStringSubmatch(cleaned)
	if m == nil {
		return Result{Error: true}, ErrInvalidFormula
	}

	n := 1
	if m[1] != "" {
		n, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	mod := 0
	if m[3] != "" {
		mod, _ = strconv.Atoi(m[3])
	}

	if n > maxDice || sides > maxSides {
		return Result{Error: true}, ErrFormulaTooLarge
	}
	if n < 1 || sides < 1 {
		return Result{Error: true}, ErrInvalidFormula
	}

	rolls := make([]int, n)
	total := mod
	for i := range rolls {
		rolls[i] = roll(sides)
		total += rolls[i]
	}

	explanation := fmt.Sprint(rolls)
	if mod != 0 {
		explanation = fmt.Sprintf("%v %+d", rolls, mod)
	}

	return Result{
		Total:       total,
		Explanation: explanation,
		Formula:     formula,
		Rolls:       rolls,
		Modifier:    mod,
	}, nil
}

// Mod returns the ability modifier for an attribute score, rounding
// down for odd scores below 10.
func Mod(score int) int {
	d := score - 10
	if d < 0 && d%2 != 0 {
		return d/2 - 1
	}
	return d / 2
}
