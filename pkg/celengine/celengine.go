// Package celengine compiles and evaluates boolean filter expressions over
// flat attribute maps.
package celengine

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

var (
	envCache     = sync.Map{}
	programCache = sync.Map{}
)

// GetOrBuildEnv returns a cached environment declaring every attribute with
// the CEL type of its value.
func GetOrBuildEnv(attrs map[string]any) (*cel.Env, error) {
	key := envKey(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	env, err := BuildCelEnvFromAttributes(attrs)
	if err == nil {
		envCache.Store(key, env)
	}

	return env, err
}

func BuildCelEnvFromAttributes(attrs map[string]any) (*cel.Env, error) {
	var variables []cel.EnvOption

	for key, val := range attrs {
		variables = append(variables, cel.Variable(key, celType(val)))
	}

	return cel.NewEnv(variables...)
}

func celType(val any) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64:
		return cel.IntType
	case float32, float64:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case []string:
		return cel.ListType(cel.StringType)
	case []any:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]any); ok {
				return cel.ListType(cel.MapType(cel.StringType, cel.DynType))
			}
		}
		return cel.ListType(cel.DynType)
	case map[string]any:
		return cel.MapType(cel.StringType, cel.DynType)
	default:
		zap.L().Debug("unhandled attribute type, declaring as dyn", zap.String("type", fmt.Sprintf("%T", val)))
		return cel.DynType
	}
}

// envKey identifies an attribute shape: names and CEL types, sorted.
func envKey(attrs map[string]any) string {
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, k+":"+celType(v).String())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func compile(env *cel.Env, expr string) (*cel.Ast, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", ast.OutputType())
	}
	return ast, nil
}

// ValidateExpression reports compile errors and non-boolean results.
func ValidateExpression(env *cel.Env, expr string) error {
	_, err := compile(env, expr)
	return err
}

// Program returns the compiled program for expr over the attribute shape of
// attrs, compiling at most once per shape and expression.
func Program(expr string, attrs map[string]any) (cel.Program, error) {
	key := envKey(attrs) + "\x00" + expr
	if v, ok := programCache.Load(key); ok {
		return v.(cel.Program), nil
	}

	env, err := GetOrBuildEnv(attrs)
	if err != nil {
		return nil, err
	}
	ast, err := compile(env, expr)
	if err != nil {
		return nil, err
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	programCache.Store(key, prg)
	return prg, nil
}

// Validate compiles expr against the attribute shape of attrs.
func Validate(expr string, attrs map[string]any) error {
	_, err := Program(expr, attrs)
	return err
}

func Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := Program(expr, attrs)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}

	return b, nil
}
