package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/c360/semwidgets/datasource"
)

// Evaluator compiles and runs expr expressions, caching compiled programs by source.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{programs: make(map[string]*vm.Program)}
}

func (e *Evaluator) compile(src string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.programs[src] = program
	e.mu.Unlock()
	return program, nil
}

// Eval runs src against env. Panics inside the expression are returned as errors.
func (e *Evaluator) Eval(src string, env map[string]any) (out any, err error) {
	program, err := e.compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("expression panicked: %v", r)
		}
	}()
	out, err = vm.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("run expression: %w", err)
	}
	return out, nil
}

// ScriptExecutor evaluates config.script with params, context and nowMs
// (Unix milliseconds) in scope.
type ScriptExecutor struct {
	Evaluator *Evaluator
	Now       func() time.Time
}

// NewScriptExecutor creates a script executor sharing ev.
func NewScriptExecutor(ev *Evaluator) *ScriptExecutor {
	if ev == nil {
		ev = NewEvaluator()
	}
	return &ScriptExecutor{Evaluator: ev, Now: time.Now}
}

func (e *ScriptExecutor) Type() datasource.ItemType { return datasource.ItemScript }

func (e *ScriptExecutor) Execute(_ context.Context, in Input) datasource.Result {
	src := in.Config.String("script")
	if src == "" {
		return datasource.Failed(datasource.CodeScriptError, "script item has no script")
	}
	params := in.Params
	if params == nil {
		params = map[string]any{}
	}
	scriptCtx := map[string]any(in.Config.Map("context"))
	if scriptCtx == nil {
		scriptCtx = map[string]any{}
	}

	out, err := e.Evaluator.Eval(src, map[string]any{
		"params":  params,
		"context": scriptCtx,
		"nowMs":   e.Now().UnixMilli(),
	})
	if err != nil {
		return datasource.Failed(datasource.CodeScriptError, "%v", err)
	}
	return datasource.Succeeded(out)
}
