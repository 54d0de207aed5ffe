package clause

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RenderContext is the caller-supplied data for one render call: top-level
// field values plus, per party identifier, an ordered list of instances.
// Values are opaque strings; the renderer applies no formatting.
//
// Example:
//
//	ctx := NewRenderContext().
//	    Set("DATE", "15 January 2024").
//	    AddInstance("PARTY1", map[string]string{"NAME": "Jane Doe"})
type RenderContext struct {
	Fields  map[string]string              `yaml:"fields" json:"fields"`
	Parties map[string][]map[string]string `yaml:"parties" json:"parties"`
}

// NewRenderContext returns an empty context ready for use.
func NewRenderContext() RenderContext {
	return RenderContext{
		Fields:  make(map[string]string),
		Parties: make(map[string][]map[string]string),
	}
}

// Set assigns a top-level field value.
func (rc RenderContext) Set(name, value string) RenderContext {
	if rc.Fields == nil {
		rc.Fields = make(map[string]string)
	}
	rc.Fields[name] = value
	return rc
}

// AddInstance appends one repetition instance for a party.
func (rc RenderContext) AddInstance(party string, fields map[string]string) RenderContext {
	if rc.Parties == nil {
		rc.Parties = make(map[string][]map[string]string)
	}
	rc.Parties[party] = append(rc.Parties[party], fields)
	return rc
}

// Instances returns the instances supplied for a party.
func (rc RenderContext) Instances(party string) []map[string]string {
	return rc.Parties[party]
}

// Restrict returns a copy of rc holding only the keys tmpl declares: its
// top-level fields and, per party, the fields of that party's blocks.
// Parties the template has no block for are dropped. Use it for contexts
// built from generic records before rendering in strict mode.
func (rc RenderContext) Restrict(tmpl *Template) RenderContext {
	out := NewRenderContext()
	for _, name := range tmpl.fields {
		if v, ok := rc.Fields[name]; ok {
			out.Fields[name] = v
		}
	}
	for _, party := range tmpl.Parties() {
		instances, ok := rc.Parties[party]
		if !ok {
			continue
		}
		fields := tmpl.PartyFields(party)
		kept := make([]map[string]string, len(instances))
		for i, inst := range instances {
			kept[i] = make(map[string]string, len(fields))
			for _, name := range fields {
				if v, ok := inst[name]; ok {
					kept[i][name] = v
				}
			}
		}
		out.Parties[party] = kept
	}
	return out
}

// ContextFromYAML decodes a RenderContext from YAML or JSON.
func ContextFromYAML(r io.Reader) (RenderContext, error) {
	var rc RenderContext
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rc); err != nil {
		if err == io.EOF {
			return NewRenderContext(), nil
		}
		return RenderContext{}, fmt.Errorf("failed to decode render context: %w", err)
	}
	if rc.Fields == nil {
		rc.Fields = make(map[string]string)
	}
	if rc.Parties == nil {
		rc.Parties = make(map[string][]map[string]string)
	}
	return rc, nil
}

// ContextFromFile reads a RenderContext from a YAML or JSON file.
func ContextFromFile(path string) (RenderContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return RenderContext{}, fmt.Errorf("failed to open context file: %w", err)
	}
	defer f.Close()
	return ContextFromYAML(f)
}
