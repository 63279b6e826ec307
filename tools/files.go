package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/martinemde/chatagent/agentloop"
)

// maxFileSize bounds both reads and writes.
const maxFileSize = 1_000_000

func registerReadFile(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "read_file",
			Description: "Read the contents of a text file from the sandbox directory. Files are isolated in a safe sandbox environment.",
			Parameters: objectSchema(map[string]interface{}{
				"filename": stringProp("Name or path of the file to read (e.g., 'notes.txt', 'scripts/hello.py')"),
			}, "filename"),
		},
		Executor: func(_ context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			filename, err := requiredString(args, "filename")
			if err != nil {
				return "", err
			}
			return readSandboxFile(d.Env, filename), nil
		},
	})
}

func registerWriteFile(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "write_file",
			Description: "Write content to a text file in the sandbox directory. Creates the file if it doesn't exist, overwrites if it does.",
			Parameters: objectSchema(map[string]interface{}{
				"filename": stringProp("Name or path of the file to write (e.g., 'output.txt', 'code/script.py')"),
				"content":  stringProp("The content to write to the file"),
			}, "filename", "content"),
		},
		Executor: func(_ context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			filename, err := requiredString(args, "filename")
			if err != nil {
				return "", err
			}
			content, ok := agentloop.GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			return writeSandboxFile(d.Env, filename, content), nil
		},
	})
}

func registerListFiles(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "list_files",
			Description: "List all files and directories in the sandbox. Shows file sizes and types.",
			Parameters: objectSchema(map[string]interface{}{
				"directory": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list (default: root of sandbox). Use '.' for root.",
					"default":     ".",
				},
			}),
		},
		Executor: func(_ context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			dir, _ := agentloop.GetStringArg(args, "directory")
			if dir == "" {
				dir = "."
			}
			return listSandboxDir(d.Env, dir), nil
		},
	})
}

func accessDenied(name string) string {
	return fmt.Sprintf("Access denied: Path '%s' is outside sandbox directory", name)
}

func readSandboxFile(env agentloop.ExecutionEnvironment, filename string) string {
	path, err := env.ResolvePath(filename)
	if err != nil {
		return accessDenied(filename)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("Error: File '%s' does not exist in sandbox", filename)
	case err != nil:
		return fmt.Sprintf("Error reading file: %v", err)
	case !info.Mode().IsRegular():
		return fmt.Sprintf("Error: '%s' is not a file", filename)
	case info.Size() > maxFileSize:
		return fmt.Sprintf("Error: File '%s' is too large (max 1MB)", filename)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("Error reading file: %v", err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("Error: File '%s' is not a text file or has invalid encoding", filename)
	}
	return fmt.Sprintf("Content of '%s':\n\n%s", filename, data)
}

func writeSandboxFile(env agentloop.ExecutionEnvironment, filename, content string) string {
	path, err := env.ResolvePath(filename)
	if err != nil {
		return accessDenied(filename)
	}
	if len(content) > maxFileSize {
		return "Error: Content is too large (max 1MB)"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Sprintf("Error writing file: %v", err)
	}
	return fmt.Sprintf("Successfully wrote %d characters to '%s'", utf8.RuneCountInString(content), filename)
}

func listSandboxDir(env agentloop.ExecutionEnvironment, dir string) string {
	path, err := env.ResolvePath(dir)
	if err != nil {
		return accessDenied(dir)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Sprintf("Error: Directory '%s' does not exist", dir)
	case err != nil:
		return fmt.Sprintf("Error listing directory: %v", err)
	case !info.IsDir():
		return fmt.Sprintf("Error: '%s' is not a directory", dir)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Sprintf("Error listing directory: %v", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("Directory '%s' is empty", dir)
	}

	root, err := env.ResolvePath(".")
	if err != nil {
		root = env.WorkingDirectory()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contents of '%s':\n\n", dir)
	fmt.Fprintf(&sb, "%-4s %10s %s\n", "TYPE", "SIZE", "NAME")
	sb.WriteString(strings.Repeat("-", 50) + "\n")

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		full := filepath.Join(path, entry.Name())
		rel, err := filepath.Rel(root, full)
		if err != nil {
			rel = entry.Name()
		}
		kind, size := "FILE", "-"
		if entry.IsDir() {
			kind = "DIR"
		} else if fi, err := entry.Info(); err == nil {
			size = fmt.Sprintf("%d", fi.Size())
		}
		lines = append(lines, fmt.Sprintf("%-4s %10s %s", kind, size, rel))
	}
	sb.WriteString(strings.Join(lines, "\n"))
	return sb.String()
}
