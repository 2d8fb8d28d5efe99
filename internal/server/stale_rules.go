package server

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rosterops/console/modules/roster/domain/types"
)

const defaultStaleAfterDays = 90

var newStaleRuleCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("meeting_count", cel.IntType),
		cel.Variable("days_since_last", cel.IntType),
	)
}

var staleRuleProgramCache sync.Map

// staleRuleExprFromEnv returns the staleness predicate. STALE_RULE_EXPR
// overrides everything; otherwise the default rule marks contacts with
// no meetings stale, and contacts whose last meeting is older than
// STALE_AFTER_DAYS (default 90).
func staleRuleExprFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("STALE_RULE_EXPR")); v != "" {
		return v
	}
	days := defaultStaleAfterDays
	if raw := strings.TrimSpace(os.Getenv("STALE_AFTER_DAYS")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}
	return "meeting_count == 0 || days_since_last > " + strconv.Itoa(days)
}

func evalStaleRule(expr string, fact types.MeetingFact) (bool, error) {
	program, err := loadOrCompileStaleRuleProgram(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{
		"meeting_count":   int64(fact.MeetingCount),
		"days_since_last": int64(fact.DaysSinceLast),
	})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("stale rule did not yield a bool")
	}
	return v, nil
}

func loadOrCompileStaleRuleProgram(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := staleRuleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newStaleRuleCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	staleRuleProgramCache.Store(expr, program)
	return program, nil
}
