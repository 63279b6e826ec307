package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/chatagent/agentloop"
)

var blockedPythonPatterns = []string{
	"import os",
	"import sys",
	"import subprocess",
	"__import__",
	"eval(",
	"exec(",
	"compile(",
	"open(",
	"input(",
	"raw_input(",
}

// Harness exit codes.
const (
	pythonExitSyntax  = 2
	pythonExitRuntime = 3
)

// pythonHarness reads the program from stdin, compiles it and runs it with a
// restricted set of builtins. The last stderr line carries the error on exit
// codes 2 and 3.
const pythonHarness = `
import sys, io, builtins
source = sys.stdin.read()
try:
    program = compile(source, "<code>", "exec")
except SyntaxError as exc:
    sys.stderr.write(str(exc))
    sys.exit(2)
allowed = ["print", "len", "range", "int", "float", "str", "list", "dict", "set",
           "tuple", "bool", "abs", "min", "max", "sum", "sorted", "enumerate", "zip",
           "map", "filter", "all", "any", "round", "pow"]
namespace = {"__builtins__": {name: getattr(builtins, name) for name in allowed}}
out, err = io.StringIO(), io.StringIO()
real_out, real_err = sys.stdout, sys.stderr
sys.stdout, sys.stderr = out, err
try:
    exec(program, namespace)
except MemoryError:
    sys.stdout, sys.stderr = real_out, real_err
    real_err.write("\nMemoryError: Code consumed too much memory")
    sys.exit(3)
except RecursionError:
    sys.stdout, sys.stderr = real_out, real_err
    real_err.write("\nRecursionError: Maximum recursion depth exceeded")
    sys.exit(3)
except BaseException as exc:
    sys.stdout, sys.stderr = real_out, real_err
    real_err.write("\n%s: %s" % (type(exc).__name__, exc))
    sys.exit(3)
sys.stdout, sys.stderr = real_out, real_err
real_out.write(out.getvalue())
real_err.write(err.getvalue())
`

const pythonDescription = `Execute Python code in a sandboxed environment.

Available built-in functions: print, len, range, int, float, str, list, dict, set, tuple, bool, abs, min, max, sum, sorted, enumerate, zip, map, filter, all, any, round, pow.

Restrictions:
- No file I/O (use read_file/write_file tools instead)
- No imports allowed (except math operations)
- No network access
- Limited to basic Python operations

Good for: calculations, data processing, algorithms, string manipulation.`

func registerExecutePython(reg *agentloop.ToolRegistry, d Deps) {
	reg.Register(agentloop.RegisteredTool{
		Definition: agentloop.ToolDefinition{
			Name:        "execute_python",
			Description: pythonDescription,
			Parameters: objectSchema(map[string]interface{}{
				"code": stringProp("Python code to execute. Should be complete, working code."),
			}, "code"),
		},
		Executor: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			args, err := agentloop.ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			code, err := requiredString(args, "code")
			if err != nil {
				return "", err
			}
			return executePython(ctx, d, code), nil
		},
	})
}

func executePython(ctx context.Context, d Deps, code string) string {
	lower := strings.ToLower(code)
	for _, pattern := range blockedPythonPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Sprintf("Error: Code contains potentially dangerous operation: '%s'. This is not allowed for security reasons.", pattern)
		}
	}

	argv := []string{d.PythonPath, "-I", "-c", pythonHarness}
	res, err := d.Env.ExecCommand(ctx, argv, code, d.PythonTimeout, map[string]string{"PYTHONIOENCODING": "utf-8"})
	if err != nil {
		return fmt.Sprintf("Error: Could not start Python interpreter: %v", err)
	}
	if res.TimedOut {
		return fmt.Sprintf("Error: Code execution timed out after %s", d.PythonTimeout)
	}

	switch res.ExitCode {
	case 0:
	case pythonExitSyntax:
		return "Syntax Error: " + strings.TrimSpace(res.Stderr)
	case pythonExitRuntime:
		msg := lastLine(res.Stderr)
		switch {
		case strings.HasPrefix(msg, "MemoryError: "):
			return "Error: " + strings.TrimPrefix(msg, "MemoryError: ")
		case strings.HasPrefix(msg, "RecursionError: "):
			return "Error: " + strings.TrimPrefix(msg, "RecursionError: ")
		}
		return "Runtime Error: " + msg
	default:
		return fmt.Sprintf("Runtime Error: interpreter exited with status %d: %s", res.ExitCode, strings.TrimSpace(res.Output()))
	}

	var out string
	if res.Stdout != "" {
		out += "Output:\n" + res.Stdout
	}
	if res.Stderr != "" {
		out += "\nErrors/Warnings:\n" + res.Stderr
	}
	if out == "" {
		return "Code executed successfully (no output)"
	}
	return out
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
