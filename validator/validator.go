// Package validator checks data configurations and parameter shapes before
// execution. It never executes anything; callers decide what to do with a Report.
package validator

import (
	"embed"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/normalizer"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// AllowedMethods lists the HTTP methods accepted in item configs.
var AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Parameter channels and the config keys that carry them.
const (
	ChannelQuery  = "query"
	ChannelHeader = "header"
	ChannelPath   = "path"
)

// channelKeys is ordered so reports list findings deterministically.
var channelKeys = []struct{ key, channel string }{
	{"params", ChannelQuery},
	{"headers", ChannelHeader},
	{"pathParams", ChannelPath},
}

// Validator holds the compiled per-type config schemas.
type Validator struct {
	schemas map[datasource.ItemType]*gojsonschema.Schema
}

// New compiles the embedded item schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[datasource.ItemType]*gojsonschema.Schema)}
	for _, t := range datasource.ItemTypes {
		raw, err := schemaFS.ReadFile(path.Join("schemas", string(t)+".json"))
		if err != nil {
			return nil, errors.WrapFatal(err, "Validator", "New", fmt.Sprintf("read schema for %s", t))
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, errors.WrapFatal(err, "Validator", "New", fmt.Sprintf("compile schema for %s", t))
		}
		v.schemas[t] = schema
	}
	return v, nil
}

// ValidateHTTPConfig checks the URL, method and parameter lists of an HTTP item config.
func (v *Validator) ValidateHTTPConfig(cfg datasource.ItemConfig) Report {
	b := newBuilder()
	checkHTTP(b, "", cfg)
	return b.report()
}

func checkHTTP(b *builder, item string, cfg datasource.ItemConfig) {
	rawURL := strings.TrimSpace(cfg.String("url"))
	switch {
	case rawURL == "":
		b.errorf(item, "url is required")
		b.suggest("set url to a relative path such as /api/v1/data or an absolute http(s) URL")
	case strings.HasPrefix(rawURL, "//"):
		b.errorf(item, "url %q is protocol relative; its host is not fixed", rawURL)
		b.suggest("use a single leading / for relative paths or an absolute http(s) URL")
	case strings.HasPrefix(rawURL, "/"):
	default:
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			b.errorf(item, "url %q must be a relative path or an absolute http(s) URL", rawURL)
			b.suggest("use a leading / for relative paths")
		}
	}

	if method := cfg.String("method"); method != "" && !methodAllowed(method) {
		b.errorf(item, "unsupported method %q", method)
		b.suggest("use one of %s", strings.Join(AllowedMethods, ", "))
	}

	if cfg.Has("timeout") && cfg.Int("timeout", -1) < 0 {
		b.warnf(item, "timeout should be a non-negative number of milliseconds")
	}

	for _, ck := range channelKeys {
		key, channel := ck.key, ck.channel
		for i, p := range cfg.Slice(key) {
			param, ok := p.(map[string]any)
			if !ok {
				b.errorf(item, "%s[%d] must be an object", key, i)
				continue
			}
			pc := datasource.ItemConfig(param)
			name := pc.String("key")
			if name == "" {
				b.warnf(item, "%s[%d] has no key", key, i)
			}
			if pc.Bool("isDynamic") && pc.String("variableName") == "" {
				b.errorf(item, "%s[%d] (%s) is dynamic but has no variableName", key, i, name)
				b.suggest("give every dynamic parameter a variableName bound to a component property")
			}
			if pt := pc.String("paramType"); pt != "" && pt != channel {
				b.warnf(item, "%s[%d] (%s) declares paramType %q but is sent as %s", key, i, name, pt, channel)
			}
		}
	}
}

func methodAllowed(method string) bool {
	for _, m := range AllowedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// ValidateItem checks one data item against its type's schema and, for HTTP
// items, the HTTP rules.
func (v *Validator) ValidateItem(item datasource.DataItem) Report {
	b := newBuilder()
	v.checkItem(b, "", item)
	return b.report()
}

func (v *Validator) checkItem(b *builder, label string, item datasource.DataItem) {
	t := item.Item.Type
	if !t.Valid() {
		b.errorf(label, "unknown item type %q", t)
		b.suggest("supported item types: %s", joinTypes())
		return
	}

	config := item.Item.Config
	if config == nil {
		config = datasource.ItemConfig{}
	}
	if schema, ok := v.schemas[t]; ok {
		result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(config)))
		if err != nil {
			b.errorf(label, "config cannot be validated: %v", err)
		} else if !result.Valid() {
			for _, re := range result.Errors() {
				b.errorf(label, "config.%s: %s", re.Field(), re.Description())
			}
		}
	}

	if t == datasource.ItemHTTP {
		checkHTTP(b, label, config)
	}
}

// ValidateConfiguration checks a canonical configuration: required keys, merge
// strategies and every item.
func (v *Validator) ValidateConfiguration(cfg *datasource.Configuration) Report {
	b := newBuilder()
	if cfg == nil {
		b.errorf("", "configuration is nil")
		return b.report()
	}

	for _, msg := range normalizer.ValidateStandardFormat(cfg) {
		b.errorf("", "%s", msg)
	}
	for _, src := range cfg.DataSources {
		if len(src.DataItems) == 0 {
			b.errorf(src.SourceID, "source has no data items")
		}
		if mt := src.MergeStrategy.Type; mt != "" && !mt.Valid() {
			b.warnf(src.SourceID, "unknown merge strategy %q, object merge is used", mt)
		}
		for i, item := range src.DataItems {
			v.checkItem(b, fmt.Sprintf("%s.dataItems[%d]", src.SourceID, i), item)
		}
	}
	return b.report()
}

func joinTypes() string {
	names := make([]string, 0, len(datasource.ItemTypes))
	for _, t := range datasource.ItemTypes {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
