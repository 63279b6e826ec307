package tools

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/chatagent/agentloop"
)

// cannedEnv returns a fixed ExecResult and records the last invocation.
type cannedEnv struct {
	agentloop.ExecutionEnvironment
	result  *agentloop.ExecResult
	err     error
	argv    []string
	stdin   string
	timeout time.Duration
}

func (e *cannedEnv) ExecCommand(_ context.Context, argv []string, stdin string, timeout time.Duration, _ map[string]string) (*agentloop.ExecResult, error) {
	e.argv, e.stdin, e.timeout = argv, stdin, timeout
	return e.result, e.err
}

func runPython(t *testing.T, env *cannedEnv, code string) string {
	t.Helper()
	d := testDeps(t)
	d.Env = env
	d.PythonTimeout = 2 * time.Second
	return mustCall(t, newTestRegistry(t, d), "execute_python", map[string]interface{}{"code": code})
}

func TestExecutePythonBlocksDangerousPatterns(t *testing.T) {
	env := &cannedEnv{}
	tests := map[string]string{
		"import os\nprint(os.getcwd())": "import os",
		"x = __import__('os')":          "__import__",
		"EVAL('1')":                     "eval(",
		"f = open('x')":                 "open(",
	}
	for code, pattern := range tests {
		out := runPython(t, env, code)
		assert.Equal(t, "Error: Code contains potentially dangerous operation: '"+pattern+"'. This is not allowed for security reasons.", out)
	}
	assert.Nil(t, env.argv, "blocked code must not reach the interpreter")
}

func TestExecutePythonOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		result agentloop.ExecResult
		want   string
	}{
		{"stdout", agentloop.ExecResult{Stdout: "42\n"}, "Output:\n42\n"},
		{"stdout and stderr", agentloop.ExecResult{Stdout: "a\n", Stderr: "warn\n"}, "Output:\na\n\nErrors/Warnings:\nwarn\n"},
		{"no output", agentloop.ExecResult{}, "Code executed successfully (no output)"},
		{"syntax", agentloop.ExecResult{ExitCode: pythonExitSyntax, Stderr: "invalid syntax (<code>, line 1)"}, "Syntax Error: invalid syntax (<code>, line 1)"},
		{"runtime", agentloop.ExecResult{ExitCode: pythonExitRuntime, Stderr: "partial\nZeroDivisionError: division by zero"}, "Runtime Error: ZeroDivisionError: division by zero"},
		{"recursion", agentloop.ExecResult{ExitCode: pythonExitRuntime, Stderr: "\nRecursionError: Maximum recursion depth exceeded"}, "Error: Maximum recursion depth exceeded"},
		{"timeout", agentloop.ExecResult{TimedOut: true, ExitCode: -1}, "Error: Code execution timed out after 2s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.result
			env := &cannedEnv{result: &result}
			assert.Equal(t, tt.want, runPython(t, env, "print(42)"))
			require.Len(t, env.argv, 4)
			assert.Equal(t, "python3", env.argv[0])
			assert.Equal(t, "print(42)", env.stdin)
			assert.Equal(t, 2*time.Second, env.timeout)
		})
	}
}

func TestExecutePythonInterpreterMissing(t *testing.T) {
	env := &cannedEnv{err: errors.New("exec: \"python3\": executable file not found in $PATH")}
	out := runPython(t, env, "print(1)")
	assert.Contains(t, out, "Error: Could not start Python interpreter")
}

func TestExecutePythonWithInterpreter(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	d := testDeps(t)
	reg := newTestRegistry(t, d)

	tests := []struct {
		code string
		want string
	}{
		{"print(sum(range(5)))", "Output:\n10\n"},
		{"x = 1", "Code executed successfully (no output)"},
		{"print(1/0)", "Runtime Error: ZeroDivisionError: division by zero"},
		{"import math", "Runtime Error: ImportError: __import__ not found"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, mustCall(t, reg, "execute_python", map[string]interface{}{"code": tt.code}))
		})
	}

	out := mustCall(t, reg, "execute_python", map[string]interface{}{"code": "def f(:\n  pass"})
	assert.Contains(t, out, "Syntax Error: ")
}
