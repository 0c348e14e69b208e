package tools

import (
	"bytes"
	"encoding/json"
)

type signature struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  signatureArgs `json:"parameters"`
}

type signatureArgs struct {
	Properties properties `json:"properties"`
	Required   []string   `json:"required,omitempty"`
}

type property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// properties marshals as a JSON object that keeps parameter order, so
// the model sees arguments in the order the operation declares them.
type properties struct {
	names []string
	props []property
}

func (p properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.props[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func schemaType(t ParamType) string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeBoolean:
		return "boolean"
	case TypeNumber, TypeArray, TypeObject:
		return string(t)
	default:
		return "string"
	}
}

// Signatures renders tools as the indented JSON array placed inside the
// system prompt's <tools> block.
func Signatures(ts []*Tool) string {
	sigs := make([]signature, 0, len(ts))
	for _, t := range ts {
		s := signature{Name: t.Name, Description: t.Description}
		for _, p := range t.Params {
			s.Parameters.Properties.names = append(s.Parameters.Properties.names, p.Name)
			s.Parameters.Properties.props = append(s.Parameters.Properties.props, property{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
				Default:     p.Default,
			})
			if p.Required {
				s.Parameters.Required = append(s.Parameters.Required, p.Name)
			}
		}
		sigs = append(sigs, s)
	}
	out, err := json.MarshalIndent(sigs, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}
