package executor

import (
	"context"

	"github.com/c360/semwidgets/datasource"
)

// StaticExecutor returns config.data, optionally reshaped by config.transform.
type StaticExecutor struct{}

func (StaticExecutor) Type() datasource.ItemType { return datasource.ItemStatic }

func (StaticExecutor) Execute(_ context.Context, in Input) datasource.Result {
	data, ok := in.Config["data"]
	if !ok {
		return datasource.Failed(datasource.CodeStaticNoData, "static item has no data")
	}
	return datasource.Succeeded(ApplyTransform(data, in.Config.Map("transform")))
}
