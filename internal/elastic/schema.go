package elastic

import (
	"context"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/logger"
)

type mappingProperty struct {
	Type       string                     `json:"type"`
	Properties map[string]mappingProperty `json:"properties"`
	Fields     map[string]mappingProperty `json:"fields"`
}

type indexMapping struct {
	Mappings struct {
		Properties map[string]mappingProperty `json:"properties"`
	} `json:"mappings"`
}

// Schema loads the field names of index from its mapping. Object and multi-fields are
// flattened into dotted names. An alias resolving to several indices yields the union.
func (c *Client) Schema(ctx context.Context, index string) (condition.Schema, error) {
	var mappings map[string]indexMapping
	err := c.call(ctx, func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Indices.GetMapping(
			c.es.Indices.GetMapping.WithContext(ctx),
			c.es.Indices.GetMapping.WithIndex(index),
		)
	}, &mappings)
	if err != nil {
		return nil, fmt.Errorf("load mapping of %s: %w", index, err)
	}

	var fields []string
	for _, m := range mappings {
		fields = flatten("", m.Mappings.Properties, fields)
	}
	schema := condition.NewSchema(fields...)

	c.logger.Debug("loaded schema", zap.String(logger.FieldIndex, index), zap.Int("fields", len(schema)))
	return schema, nil
}

func flatten(prefix string, props map[string]mappingProperty, out []string) []string {
	for name, p := range props {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		out = append(out, path)
		out = flatten(path, p.Properties, out)
		out = flatten(path, p.Fields, out)
	}
	return out
}
