package chain

import (
	"fmt"

	"github.com/c360/semwidgets/datasource"
)

// merge combines the item values of one source, in declaration order.
//
//	single item: its value as is
//	object:      object values are shallow-merged, later keys win; nil is skipped;
//	             any other value is stored under item_<index>
//	array:       slices are flattened, other values (nil included) appended
//	replace:     the last successful item wins, else the last item's default
func merge(strategy datasource.MergeType, items []itemResult) any {
	switch len(items) {
	case 0:
		return nil
	case 1:
		return items[0].value
	}

	switch strategy {
	case datasource.MergeArray:
		out := make([]any, 0, len(items))
		for _, it := range items {
			if list, ok := it.value.([]any); ok {
				out = append(out, list...)
				continue
			}
			out = append(out, it.value)
		}
		return out
	case datasource.MergeReplace:
		for i := len(items) - 1; i >= 0; i-- {
			if items[i].success {
				return items[i].value
			}
		}
		return items[len(items)-1].value
	default:
		out := map[string]any{}
		for i, it := range items {
			switch v := it.value.(type) {
			case nil:
			case map[string]any:
				for k, val := range v {
					out[k] = val
				}
			default:
				out[fmt.Sprintf("item_%d", i)] = v
			}
		}
		return out
	}
}
