package agent

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://kabupilot.local/schemas/"

// schemaSet 为每个 kind 的输入与输出各编译一份 JSON Schema。
type schemaSet struct {
	byKey map[string]*jsonschema.Schema
}

func schemaKey(kind Kind, dir Direction) string {
	return string(kind) + "_" + string(dir)
}

func loadSchemas() (*schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
	}
	set := &schemaSet{byKey: make(map[string]*jsonschema.Schema)}
	for _, kind := range []Kind{KindPlanner, KindExplorer, KindResearcher, KindDecider, KindChecker} {
		for _, dir := range []Direction{DirectionInput, DirectionOutput} {
			key := schemaKey(kind, dir)
			sch, err := compiler.Compile(schemaBase + key + ".json")
			if err != nil {
				return nil, fmt.Errorf("compile schema %s: %w", key, err)
			}
			set.byKey[key] = sch
		}
	}
	return set, nil
}

// validate 把 payload 编码为 JSON 后按 schema 校验，失败时返回指向最深层字段的 InvalidPayloadError。
func (s *schemaSet) validate(kind Kind, dir Direction, p Payload) error {
	sch, ok := s.byKey[schemaKey(kind, dir)]
	if !ok {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return &InvalidPayloadError{Kind: kind, Direction: dir, Field: "$", Reason: err.Error()}
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &InvalidPayloadError{Kind: kind, Direction: dir, Field: "$", Reason: err.Error()}
	}
	if err := sch.Validate(doc); err != nil {
		field, reason := describe(err)
		return &InvalidPayloadError{Kind: kind, Direction: dir, Field: field, Reason: reason}
	}
	return nil
}

func describe(err error) (string, string) {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return "$", err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := ve.InstanceLocation
	if field == "" {
		field = "/"
	}
	return field, strings.TrimSpace(ve.Message)
}
