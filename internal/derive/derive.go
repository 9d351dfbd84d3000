// Package derive adds metrics computed from expressions over the loaded
// ones, e.g. "FLOPS=PAPI_FP_INS / TIME".
package derive

import (
	"regexp"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/jerrinot/pp-query/internal/profile"
)

// Metric is a parsed "NAME=EXPR" definition.
type Metric struct {
	Name string
	Expr string
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Ident is the expression identifier under which a metric is visible:
// every character that cannot appear in an identifier becomes "_".
func Ident(metric string) string {
	id := nonIdent.ReplaceAllString(metric, "_")
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	return id
}

// Parse reads a "NAME=EXPR" definition.
func Parse(def string) (Metric, error) {
	name, expr, ok := strings.Cut(def, "=")
	name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
	if !ok || name == "" || expr == "" {
		return Metric{}, errors.Errorf("derived metric %q: want NAME=EXPR", def)
	}
	return Metric{Name: name, Expr: expr}, nil
}

var fileOptions = &syntax.FileOptions{}

func eval(thread *starlark.Thread, expr string, env starlark.StringDict) (float64, error) {
	v, err := starlark.EvalOptions(fileOptions, thread, "derive", expr, env)
	if err != nil {
		return 0, err
	}
	f, ok := starlark.AsFloat(v)
	if !ok {
		return 0, errors.Errorf("expression yields %s, not a number", v.Type())
	}
	return f, nil
}

// Apply evaluates each metric for every record of ds and appends it to
// ds.Metrics. The expression sees every existing metric by its Ident and
// is evaluated once over exclusive and once over inclusive values; calls
// and subroutine calls are copied from the first metric. When only one of
// the two evaluations fails, the failed side is zero; a record for which
// both fail, or which lacks an operand, gets no value.
func Apply(ds *profile.Dataset, metrics []Metric, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	thread := &starlark.Thread{Name: "derive"}
	for _, m := range metrics {
		for _, existing := range ds.Metrics {
			if strings.EqualFold(existing, m.Name) {
				return errors.Errorf("derived metric %q already exists", m.Name)
			}
		}
		if err := validate(thread, m, ds.Metrics); err != nil {
			return err
		}

		idx := len(ds.Metrics)
		ds.Metrics = append(ds.Metrics, m.Name)
		failed, partial := 0, 0
		for _, r := range ds.Records {
			excl := make(starlark.StringDict, len(r.Metrics))
			incl := make(starlark.StringDict, len(r.Metrics))
			for i, v := range r.Metrics {
				if i >= idx {
					continue
				}
				excl[Ident(ds.Metrics[i])] = starlark.Float(v.Exclusive)
				incl[Ident(ds.Metrics[i])] = starlark.Float(v.Inclusive)
			}
			ev, exclErr := eval(thread, m.Expr, excl)
			iv, inclErr := eval(thread, m.Expr, incl)
			if exclErr != nil && inclErr != nil {
				failed++
				continue
			}
			if exclErr != nil || inclErr != nil {
				partial++
			}
			base := r.Metrics[0]
			r.Metrics[idx] = profile.Values{Exclusive: ev, Inclusive: iv, Calls: base.Calls, Subroutines: base.Subroutines}
		}
		if failed > 0 {
			level.Debug(logger).Log("msg", "derived metric left unset", "metric", m.Name, "records", failed)
		}
		if partial > 0 {
			level.Debug(logger).Log("msg", "derived metric set on one side only", "metric", m.Name, "records", partial)
		}
	}
	return nil
}

// validate rejects expressions that do not parse or that name unknown
// metrics. Runtime failures such as division by zero are per record and
// do not count.
func validate(thread *starlark.Thread, m Metric, names []string) error {
	env := make(starlark.StringDict, len(names))
	for _, n := range names {
		env[Ident(n)] = starlark.Float(1)
	}
	_, err := starlark.EvalOptions(fileOptions, thread, "derive", m.Expr, env)
	var evalErr *starlark.EvalError
	if err != nil && !errors.As(err, &evalErr) {
		return errors.Wrapf(err, "derived metric %s", m.Name)
	}
	return nil
}
