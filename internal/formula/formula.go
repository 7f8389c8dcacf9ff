// Package formula evaluates derived-observable expressions. Channel names are
// quoted in backticks so they can contain characters like colons; the rest of
// the expression is Starlark with a small math vocabulary.
package formula

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// MissingVariablesError reports channels referenced by a formula that were not
// supplied at evaluation time.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing variables for expression: %v", e.Names)
}

// UnknownNamesError reports identifiers that are neither builtins nor quoted
// channels, with close-match suggestions where available.
type UnknownNamesError struct {
	Names       []string
	Suggestions map[string]string
}

func (e *UnknownNamesError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unknown names in expression: %v", e.Names)
	if len(e.Suggestions) > 0 {
		b.WriteString(" (did you mean:")
		for _, name := range e.Names {
			if good, ok := e.Suggestions[name]; ok {
				fmt.Fprintf(&b, " %s -> %s", name, good)
			}
		}
		b.WriteString(")")
	}
	return b.String()
}

var (
	backtickRe   = regexp.MustCompile("`([^`]+)`")
	unsafeCharRe = regexp.MustCompile(`[^0-9a-zA-Z_]`)
	percentileRe = regexp.MustCompile(`percentile(\d+)\(([^)]+)\)`)
)

// Formula is a compiled expression ready for repeated evaluation.
type Formula struct {
	source   string
	expr     string
	channels []string          // original channel names, sorted
	aliases  map[string]string // channel name -> safe identifier
}

// Compile parses and validates an expression. Backticked channel names are
// rewritten to safe identifiers and percentileNN(x) sugar becomes
// percentile(x, NN).
func Compile(source string) (*Formula, error) {
	channels := backtickRe.FindAllStringSubmatch(source, -1)
	aliases := make(map[string]string, len(channels))
	names := make([]string, 0, len(channels))
	expr := source
	for _, m := range channels {
		orig := m[1]
		if _, ok := aliases[orig]; ok {
			continue
		}
		alias := unsafeCharRe.ReplaceAllString(orig, "_")
		aliases[orig] = alias
		names = append(names, orig)
		expr = strings.ReplaceAll(expr, "`"+orig+"`", alias)
	}
	sort.Strings(names)

	expr = percentileRe.ReplaceAllString(expr, "percentile($2, $1)")

	used, err := usedIdentifiers(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression syntax: %w", err)
	}
	valid := make(map[string]bool, len(builtinNames)+len(aliases))
	for _, name := range builtinNames {
		valid[name] = true
	}
	for _, alias := range aliases {
		valid[alias] = true
	}
	var unknown []string
	for name := range used {
		if !valid[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		known := make([]string, 0, len(valid))
		for name := range valid {
			known = append(known, name)
		}
		return nil, &UnknownNamesError{Names: unknown, Suggestions: suggest(unknown, known)}
	}

	return &Formula{source: source, expr: expr, channels: names, aliases: aliases}, nil
}

// Source returns the original expression text.
func (f *Formula) Source() string { return f.source }

// Channels returns the backticked channel names the formula reads, sorted.
func (f *Formula) Channels() []string {
	return append([]string(nil), f.channels...)
}

// Eval computes the formula against the supplied channel values.
func (f *Formula) Eval(variables map[string]float64) (float64, error) {
	var missing []string
	for _, name := range f.channels {
		if _, ok := variables[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return 0, &MissingVariablesError{Names: missing}
	}

	globals := make(starlark.StringDict, len(builtins)+len(f.channels))
	for name, fn := range builtins {
		globals[name] = fn
	}
	for _, name := range f.channels {
		globals[f.aliases[name]] = starlark.Float(variables[name])
	}

	thread := &starlark.Thread{Name: "formula"}
	value, err := starlark.Eval(thread, "formula", f.expr, globals) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil {
		return 0, fmt.Errorf("expression evaluation failed: %w", err)
	}
	return toFloat(value)
}

// Evaluate is the one-shot convenience for uncached expressions.
func Evaluate(source string, variables map[string]float64) (float64, error) {
	f, err := Compile(source)
	if err != nil {
		return 0, err
	}
	return f.Eval(variables)
}

func usedIdentifiers(expr string) (map[string]bool, error) {
	parsed, err := syntax.ParseExpr("formula", expr, 0)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	syntax.Walk(parsed, func(n syntax.Node) bool {
		if ident, ok := n.(*syntax.Ident); ok {
			used[ident.Name] = true
		}
		return true
	})
	return used, nil
}

// suggest finds the closest known name for each unknown one, difflib style
// with a 0.7 similarity cutoff.
func suggest(unknown, known []string) map[string]string {
	out := make(map[string]string)
	for _, bad := range unknown {
		bestScore := 0.7
		best := ""
		for _, good := range known {
			if s := similarity(bad, good); s >= bestScore {
				bestScore = s
				best = good
			}
		}
		if best != "" {
			out[bad] = best
		}
	}
	return out
}

// similarity is 1 - editDistance/maxLen, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(prev[lb])/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func toFloat(v starlark.Value) (float64, error) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), nil
	case starlark.Int:
		f, _ := starlark.AsFloat(val)
		return f, nil
	default:
		return 0, fmt.Errorf("expression result is %s, not a number", v.Type())
	}
}

func toFloats(v starlark.Value) ([]float64, error) {
	switch val := v.(type) {
	case starlark.Float, starlark.Int:
		f, err := toFloat(val)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	case *starlark.List:
		out := make([]float64, val.Len())
		for i := 0; i < val.Len(); i++ {
			f, err := toFloat(val.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case starlark.Tuple:
		out := make([]float64, len(val))
		for i, item := range val {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a number or list of numbers, got %s", v.Type())
	}
}

func unaryMath(name string, fn func(float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		x, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return starlark.Float(fn(x)), nil
	})
}

func aggregate(name string, fn func([]float64) float64) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		xs, err := toFloats(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if len(xs) == 0 {
			return nil, fmt.Errorf("%s: empty sequence", b.Name())
		}
		return starlark.Float(fn(xs)), nil
	})
}

func meanOf(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

// percentileOf uses linear interpolation between closest ranks.
func percentileOf(xs []float64, q float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

var builtins = starlark.StringDict{
	"abs":   unaryMath("abs", math.Abs),
	"sqrt":  unaryMath("sqrt", math.Sqrt),
	"round": unaryMath("round", math.Round),
	"mean":  aggregate("mean", meanOf),
	"sum": aggregate("sum", func(xs []float64) float64 {
		total := 0.0
		for _, x := range xs {
			total += x
		}
		return total
	}),
	"min": aggregate("min", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x < m {
				m = x
			}
		}
		return m
	}),
	"max": aggregate("max", func(xs []float64) float64 {
		m := xs[0]
		for _, x := range xs[1:] {
			if x > m {
				m = x
			}
		}
		return m
	}),
	"rms": aggregate("rms", func(xs []float64) float64 {
		total := 0.0
		for _, x := range xs {
			total += x * x
		}
		return math.Sqrt(total / float64(len(xs)))
	}),
	"len": starlark.NewBuiltin("len", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		xs, err := toFloats(v)
		if err != nil {
			return nil, fmt.Errorf("len: %w", err)
		}
		return starlark.MakeInt(len(xs)), nil
	}),
	"percentile": starlark.NewBuiltin("percentile", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v, qv starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &v, &qv); err != nil {
			return nil, err
		}
		xs, err := toFloats(v)
		if err != nil {
			return nil, fmt.Errorf("percentile: %w", err)
		}
		if len(xs) == 0 {
			return nil, fmt.Errorf("percentile: empty sequence")
		}
		q, err := toFloat(qv)
		if err != nil {
			return nil, fmt.Errorf("percentile: %w", err)
		}
		if q < 0 || q > 100 {
			return nil, fmt.Errorf("percentile: q must be in [0, 100], got %g", q)
		}
		return starlark.Float(percentileOf(xs, q)), nil
	}),
}

var builtinNames = func() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()
