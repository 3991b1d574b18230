package instruction

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToolName identifies a capability requested by an instruction.
type ToolName string

// Known capability names.
const (
	ExecuteCommand          ToolName = "execute_command"
	ReadFile                ToolName = "read_file"
	WriteToFile             ToolName = "write_to_file"
	ReplaceInFile           ToolName = "replace_in_file"
	SearchFiles             ToolName = "search_files"
	ListFiles               ToolName = "list_files"
	ListCodeDefinitionNames ToolName = "list_code_definition_names"
	BrowserAction           ToolName = "browser_action"
	UseMcpTool              ToolName = "use_mcp_tool"
	AccessMcpResource       ToolName = "access_mcp_resource"
	WebFetch                ToolName = "web_fetch"
	AskFollowupQuestion     ToolName = "ask_followup_question"
	AttemptCompletion       ToolName = "attempt_completion"
	NewRule                 ToolName = "new_rule"
)

// ParamName identifies an instruction parameter.
type ParamName string

// Known parameter names.
const (
	ParamCommand          ParamName = "command"
	ParamRequiresApproval ParamName = "requires_approval"
	ParamPath             ParamName = "path"
	ParamContent          ParamName = "content"
	ParamDiff             ParamName = "diff"
	ParamRegex            ParamName = "regex"
	ParamFilePattern      ParamName = "file_pattern"
	ParamRecursive        ParamName = "recursive"
	ParamAction           ParamName = "action"
	ParamURL              ParamName = "url"
	ParamCoordinate       ParamName = "coordinate"
	ParamText             ParamName = "text"
	ParamServerName       ParamName = "server_name"
	ParamToolName         ParamName = "tool_name"
	ParamArguments        ParamName = "arguments"
	ParamURI              ParamName = "uri"
	ParamQuestion         ParamName = "question"
	ParamResult           ParamName = "result"
	ParamTaskProgress     ParamName = "task_progress"
)

// Instruction is one tool use observed in a streamed model response.
// Partial is true while more text for the instruction may still arrive.
type Instruction struct {
	Name    ToolName `json:"name"`
	Params  Params   `json:"params"`
	Partial bool     `json:"partial"`
}

// Param returns the raw value of a parameter.
func (i Instruction) Param(name ParamName) (string, bool) {
	return i.Params.Get(name)
}

// Value returns the raw value of a parameter or an empty string.
func (i Instruction) Value(name ParamName) string {
	v, _ := i.Params.Get(name)
	return v
}

// Params is an insertion-ordered mapping of parameter name to value.
// The zero value is ready to use.
type Params struct {
	keys   []ParamName
	values map[ParamName]string
}

// NewParams builds Params from alternating name/value pairs.
func NewParams(pairs ...string) Params {
	var p Params
	for i := 0; i+1 < len(pairs); i += 2 {
		p.Set(ParamName(pairs[i]), pairs[i+1])
	}
	return p
}

// Get returns the value stored under name.
func (p Params) Get(name ParamName) (string, bool) {
	if p.values == nil {
		return "", false
	}
	v, ok := p.values[name]
	return v, ok
}

// Set stores value under name, keeping the original position of existing keys.
func (p *Params) Set(name ParamName, value string) {
	if p.values == nil {
		p.values = make(map[ParamName]string)
	}
	if _, ok := p.values[name]; !ok {
		p.keys = append(p.keys, name)
	}
	p.values[name] = value
}

// Keys returns parameter names in insertion order.
func (p Params) Keys() []ParamName {
	out := make([]ParamName, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p.keys)
}

// Map returns a copy of the parameters as a plain map.
func (p Params) Map() map[string]string {
	out := make(map[string]string, len(p.keys))
	for _, key := range p.keys {
		out[string(key)] = p.values[key]
	}
	return out
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	var out Params
	for _, key := range p.keys {
		out.Set(key, p.values[key])
	}
	return out
}

// MarshalJSON encodes params as an object in insertion order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(key))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.values[key])
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

// UnmarshalJSON decodes an object of string values, keeping key order.
func (p *Params) UnmarshalJSON(data []byte) error {
	*p = Params{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("decode params: expected object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode params: expected string key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode params %s: %w", key, err)
		}
		p.Set(ParamName(key), rawString(raw))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// non-string values keep their JSON text
	return string(bytes.TrimSpace(raw))
}
