package executor

import (
	"time"
)

// Defaults configures the built-in executors.
type Defaults struct {
	Transport   Transport
	HTTPTimeout time.Duration
	FileBaseDir string
	Evaluator   *Evaluator
}

// RegisterDefaults registers one executor per built-in item type. A nil
// Transport leaves HTTP items failing with HTTP_INVALID_CONFIG.
func RegisterDefaults(r *Registry, d Defaults) error {
	executors := []Executor{
		StaticExecutor{},
		JSONExecutor{},
		WebSocketExecutor{},
		BindingsExecutor{},
		NewHTTPExecutor(d.Transport, d.HTTPTimeout),
		&FileExecutor{BaseDir: d.FileBaseDir},
		NewScriptExecutor(d.Evaluator),
	}
	for _, e := range executors {
		if err := r.Register(e); err != nil {
			return err
		}
	}
	return nil
}
