// Package toolmessage builds user-facing descriptions of tool uses from
// instructions whose parameters may still be streaming. Every function is
// pure and may be called repeatedly as the instruction grows.
package toolmessage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/codex-k8s/toolflow/internal/instruction"
	"github.com/codex-k8s/toolflow/internal/pathutil"
)

// Write tool display values.
const (
	ToolEdited  = "edited"
	ToolCreated = "created"
)

// FileProps describes a read or inspect style tool use.
type FileProps struct {
	Tool          string `json:"tool"`
	Path          string `json:"path"`
	Content       string `json:"content,omitempty"`
	Regex         string `json:"regex,omitempty"`
	FilePattern   string `json:"filePattern,omitempty"`
	IsInWorkspace bool   `json:"operationIsLocatedInWorkspace"`
}

// WriteProps describes a file modification.
type WriteProps struct {
	Tool          string `json:"tool"`
	Path          string `json:"path"`
	Content       string `json:"content"`
	IsInWorkspace bool   `json:"operationIsLocatedInWorkspace"`
}

// McpProps describes an MCP tool call or resource access.
type McpProps struct {
	Type       string `json:"type"`
	ServerName string `json:"serverName"`
	ToolName   string `json:"toolName,omitempty"`
	URI        string `json:"uri,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
}

// BrowserProps describes a browser action.
type BrowserProps struct {
	Action     string `json:"action"`
	Coordinate string `json:"coordinate,omitempty"`
	Text       string `json:"text,omitempty"`
	URL        string `json:"url,omitempty"`
}

// DisplayName returns the tool label shown for read style tools.
func DisplayName(in instruction.Instruction) string {
	switch in.Name {
	case instruction.ListFiles:
		if in.Value(instruction.ParamRecursive) == "true" {
			return "listFilesRecursive"
		}
		return "listFilesTopLevel"
	case instruction.ReadFile:
		return "readFile"
	case instruction.ListCodeDefinitionNames:
		return "listCodeDefinitionNames"
	case instruction.SearchFiles:
		return "searchFiles"
	}
	return string(in.Name)
}

// FileToolProps builds the props of a read style tool. result is shown
// only for directory listings.
func FileToolProps(in instruction.Instruction, cwd, result string) FileProps {
	p := sanitizedPath(in)
	props := FileProps{
		Tool:          DisplayName(in),
		Path:          readable(cwd, p),
		IsInWorkspace: pathutil.InWorkspace(p, cwd),
	}
	if in.Name == instruction.ListFiles {
		props.Content = result
	}
	if in.Name == instruction.SearchFiles {
		props.Regex = clean(in, instruction.ParamRegex)
		props.FilePattern = clean(in, instruction.ParamFilePattern)
	}
	return props
}

// WriteToolProps builds the props of a file modification. The content comes
// from the diff parameter for replace_in_file and from content otherwise.
func WriteToolProps(in instruction.Instruction, cwd string, fileExists bool) WriteProps {
	p := sanitizedPath(in)
	tool := ToolCreated
	if fileExists {
		tool = ToolEdited
	}
	param := instruction.ParamContent
	if in.Name == instruction.ReplaceInFile {
		param = instruction.ParamDiff
	}
	return WriteProps{
		Tool:          tool,
		Path:          readable(cwd, p),
		Content:       clean(in, param),
		IsInWorkspace: pathutil.InWorkspace(p, cwd),
	}
}

// McpToolProps builds the props of an MCP tool use or resource access.
func McpToolProps(in instruction.Instruction) McpProps {
	typ := string(instruction.AccessMcpResource)
	if in.Name == instruction.UseMcpTool {
		typ = string(instruction.UseMcpTool)
	}
	return McpProps{
		Type:       typ,
		ServerName: clean(in, instruction.ParamServerName),
		ToolName:   clean(in, instruction.ParamToolName),
		URI:        clean(in, instruction.ParamURI),
		Arguments:  clean(in, instruction.ParamArguments),
	}
}

// BrowserActionProps builds the props of a browser action. Optional fields
// are set only when present.
func BrowserActionProps(in instruction.Instruction) BrowserProps {
	return BrowserProps{
		Action:     clean(in, instruction.ParamAction),
		Coordinate: clean(in, instruction.ParamCoordinate),
		Text:       clean(in, instruction.ParamText),
		URL:        clean(in, instruction.ParamURL),
	}
}

// WebFetchProps builds the props of a web_fetch tool use.
func WebFetchProps(in instruction.Instruction) FileProps {
	return FileProps{Tool: "webFetch", Path: clean(in, instruction.ParamURL)}
}

// NotificationMessage describes the pending action of in for a notification.
func NotificationMessage(agent, cwd string, in instruction.Instruction, relPath string, fileExists bool) string {
	switch in.Name {
	case instruction.ListFiles:
		return fmt.Sprintf("%s wants to view directory %s/", agent, filepath.Base(pathutil.Resolve(cwd, relPath)))
	case instruction.ReadFile, instruction.ListCodeDefinitionNames, instruction.SearchFiles:
		return fmt.Sprintf("%s wants to read %s", agent, filepath.Base(pathutil.Resolve(cwd, relPath)))
	case instruction.WriteToFile, instruction.ReplaceInFile, instruction.NewRule:
		verb := "create"
		if fileExists {
			verb = "edit"
		}
		return fmt.Sprintf("%s wants to %s %s", agent, verb, filepath.Base(relPath))
	case instruction.UseMcpTool:
		return fmt.Sprintf("%s wants to use %s on %s", agent, in.Value(instruction.ParamToolName), in.Value(instruction.ParamServerName))
	case instruction.AccessMcpResource:
		return fmt.Sprintf("%s wants to access %s on %s", agent, in.Value(instruction.ParamURI), in.Value(instruction.ParamServerName))
	case instruction.BrowserAction:
		return browserNotification(agent, in)
	case instruction.WebFetch:
		return fmt.Sprintf("%s wants to fetch %s", agent, in.Value(instruction.ParamURL))
	}
	return fmt.Sprintf("%s wants to use %s", agent, in.Name)
}

func browserNotification(agent string, in instruction.Instruction) string {
	action := in.Value(instruction.ParamAction)
	switch action {
	case "launch":
		return fmt.Sprintf("%s wants to launch browser at %s", agent, in.Value(instruction.ParamURL))
	case "click":
		return fmt.Sprintf("%s wants to click at coordinates %s", agent, in.Value(instruction.ParamCoordinate))
	case "type":
		return fmt.Sprintf(`%s wants to type "%s"`, agent, in.Value(instruction.ParamText))
	case "scroll_down":
		return agent + " wants to scroll down"
	case "scroll_up":
		return agent + " wants to scroll up"
	case "close":
		return agent + " wants to close the browser"
	}
	return fmt.Sprintf("%s wants to perform browser action: %s", agent, action)
}

// JSON renders props as message text.
func JSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func clean(in instruction.Instruction, param instruction.ParamName) string {
	return instruction.RemoveClosingTag(in, param, in.Value(param))
}

func sanitizedPath(in instruction.Instruction) string {
	return clean(in, instruction.ParamPath)
}

func readable(cwd, p string) string {
	if p == "" {
		return ""
	}
	return pathutil.ReadablePath(cwd, p)
}
