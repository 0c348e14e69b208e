// Package toolcall extracts operation invocations embedded in model
// output.
//
// The model carries its calls inside free text using a marker pair:
//
//	prose ... <tool_call>{"name": "...", "arguments": {...}, "id": 1}</tool_call> ...
//
// Text before the first opening marker is the model's "thinking". Each
// block between markers is decoded on its own, so one malformed block
// never hides its siblings. An opening marker with no matching close
// consumes the rest of the text as a single malformed block.
package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nugget/aide/internal/tools"
)

// Marker pair delimiting an invocation block.
const (
	OpenTag  = "<tool_call>"
	CloseTag = "</tool_call>"
)

// Block is one delimited invocation. Exactly one of Invocation or Err
// is meaningful.
type Block struct {
	Raw        string
	Invocation tools.Invocation
	Err        error
}

// Result is everything extracted from one model response.
type Result struct {
	Thinking string
	Blocks   []Block
}

// HasCalls reports whether the response contained any invocation block,
// well-formed or not.
func (r Result) HasCalls() bool {
	return len(r.Blocks) > 0
}

// Extract scans text for invocation blocks in source order.
func Extract(text string) Result {
	var res Result

	first := strings.Index(text, OpenTag)
	if first < 0 {
		return res
	}
	res.Thinking = strings.TrimSpace(text[:first])

	rest := text[first:]
	for {
		open := strings.Index(rest, OpenTag)
		if open < 0 {
			break
		}
		body := rest[open+len(OpenTag):]
		end := strings.Index(body, CloseTag)
		if end < 0 {
			raw := strings.TrimSpace(body)
			res.Blocks = append(res.Blocks, Block{
				Raw: raw,
				Err: errors.New("unterminated tool_call block: missing " + CloseTag),
			})
			break
		}
		// A nested opening marker means the earlier block was never closed.
		if nested := strings.Index(body[:end], OpenTag); nested >= 0 {
			res.Blocks = append(res.Blocks, Block{
				Raw: strings.TrimSpace(body[:nested]),
				Err: errors.New("unterminated tool_call block: missing " + CloseTag),
			})
			rest = body[nested:]
			continue
		}

		raw := strings.TrimSpace(body[:end])
		inv, err := Parse(raw)
		res.Blocks = append(res.Blocks, Block{Raw: raw, Invocation: inv, Err: err})
		rest = body[end+len(CloseTag):]
	}
	return res
}

type wireCall struct {
	Name      *string         `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	ID        json.RawMessage `json:"id"`
}

// Parse decodes a single block body. The name, arguments and id fields
// are required; arguments must be a JSON object and id a string or
// number.
func Parse(raw string) (tools.Invocation, error) {
	raw = stripFence(raw)
	if raw == "" {
		return tools.Invocation{}, errors.New("empty tool_call block")
	}

	var w wireCall
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return tools.Invocation{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return tools.Invocation{}, errors.New("invalid JSON: trailing data after object")
	}

	inv := tools.Invocation{}
	if w.Name == nil || strings.TrimSpace(*w.Name) == "" {
		return inv, errors.New(`missing required field "name"`)
	}
	inv.Name = strings.TrimSpace(*w.Name)

	if len(w.Arguments) == 0 || bytes.Equal(w.Arguments, []byte("null")) {
		return inv, fmt.Errorf(`%s: missing required field "arguments"`, inv.Name)
	}
	args, err := decodeArguments(w.Arguments)
	if err != nil {
		return inv, fmt.Errorf("%s: %w", inv.Name, err)
	}
	inv.Arguments = args

	id, err := decodeID(w.ID)
	if err != nil {
		return inv, fmt.Errorf("%s: %w", inv.Name, err)
	}
	inv.ID = id
	return inv, nil
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	// Some models double-encode arguments as a JSON string.
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf(`field "arguments": %w`, err)
		}
		raw = json.RawMessage(s)
	}

	var args map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, errors.New(`field "arguments" must be an object`)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New(`missing required field "id"`)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", errors.New(`field "id" must be a string or number`)
}

// stripFence removes a surrounding markdown code fence, which some
// models wrap around the JSON body.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// BestEffortName recovers an operation name from a malformed block for
// reporting, or returns "unknown".
func BestEffortName(b Block) string {
	if b.Invocation.Name != "" {
		return b.Invocation.Name
	}
	var probe struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(stripFence(b.Raw)), &probe); err == nil && probe.Name != "" {
		return probe.Name
	}
	return "unknown"
}
