package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/trafficguard/internal/core"
)

// codec converts between the on-disk rule list and core.Rule values.
type codec interface {
	Name() string
	Encode(rules []core.Rule) ([]byte, error)
	Decode(data []byte) ([]core.Rule, error)
}

// codecFor picks the codec from the file extension. JSON is the default.
func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec{}
	default:
		return jsonCodec{}
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(rules []core.Rule) ([]byte, error) {
	if rules == nil {
		rules = []core.Rule{}
	}
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Decode(data []byte) ([]core.Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []core.Rule{}, nil
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreFormat, err)
	}
	return decodeEntries(raw)
}

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Encode(rules []core.Rule) ([]byte, error) {
	if rules == nil {
		rules = []core.Rule{}
	}
	return yaml.Marshal(rules)
}

func (yamlCodec) Decode(data []byte) ([]core.Rule, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []core.Rule{}, nil
	}
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStoreFormat, err)
	}
	return decodeEntries(raw)
}

// decodeEntries maps loosely typed entries onto rules. Weak typing lets a
// numeric port and its string form decode to the same rule.
func decodeEntries(raw []map[string]interface{}) ([]core.Rule, error) {
	rules := make([]core.Rule, 0, len(raw))
	for i, entry := range raw {
		var r core.Rule
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			TagName:          "mapstructure",
			Result:           &r,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(entry); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", core.ErrStoreFormat, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
