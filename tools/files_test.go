package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFile(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)

	out := mustCall(t, reg, "write_file", map[string]interface{}{"filename": "notes/todo.txt", "content": "buy milk ☕"})
	assert.Equal(t, "Successfully wrote 10 characters to 'notes/todo.txt'", out)

	data, err := os.ReadFile(filepath.Join(d.Env.WorkingDirectory(), "notes", "todo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "buy milk ☕", string(data))

	out = mustCall(t, reg, "read_file", map[string]interface{}{"filename": "notes/todo.txt"})
	assert.Equal(t, "Content of 'notes/todo.txt':\n\nbuy milk ☕", out)
}

func TestReadFileErrors(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)
	root := d.Env.WorkingDirectory()

	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0xff, 0xfe, 0x00}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte(strings.Repeat("a", maxFileSize+1)), 0644))

	tests := []struct {
		name string
		want string
	}{
		{"missing.txt", "Error: File 'missing.txt' does not exist in sandbox"},
		{"dir", "Error: 'dir' is not a file"},
		{"blob.bin", "Error: File 'blob.bin' is not a text file or has invalid encoding"},
		{"big.txt", "Error: File 'big.txt' is too large (max 1MB)"},
		{"../secret.txt", "Access denied: Path '../secret.txt' is outside sandbox directory"},
		{"/etc/passwd", "Access denied: Path '/etc/passwd' is outside sandbox directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mustCall(t, reg, "read_file", map[string]interface{}{"filename": tt.name}))
		})
	}
}

func TestWriteFileRejectsEscapesAndLargeContent(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)

	out := mustCall(t, reg, "write_file", map[string]interface{}{"filename": "../../evil.txt", "content": "x"})
	assert.Equal(t, "Access denied: Path '../../evil.txt' is outside sandbox directory", out)

	out = mustCall(t, reg, "write_file", map[string]interface{}{"filename": "big.txt", "content": strings.Repeat("a", maxFileSize+1)})
	assert.Equal(t, "Error: Content is too large (max 1MB)", out)
	assert.NoFileExists(t, filepath.Join(d.Env.WorkingDirectory(), "big.txt"))
}

func TestWriteFileAllowsEmptyContent(t *testing.T) {
	reg := newTestRegistry(t, testDeps(t))
	out := mustCall(t, reg, "write_file", map[string]interface{}{"filename": "empty.txt", "content": ""})
	assert.Equal(t, "Successfully wrote 0 characters to 'empty.txt'", out)
}

func TestListFiles(t *testing.T) {
	d := testDeps(t)
	reg := newTestRegistry(t, d)
	root := d.Env.WorkingDirectory()

	assert.Equal(t, "Directory '.' is empty", mustCall(t, reg, "list_files", map[string]interface{}{}))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "scripts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "scripts", "run.py"), []byte("print(1)"), 0644))

	out := mustCall(t, reg, "list_files", map[string]interface{}{"directory": "."})
	want := "Contents of '.':\n\n" +
		"TYPE       SIZE NAME\n" +
		strings.Repeat("-", 50) + "\n" +
		"FILE          5 b.txt\n" +
		"DIR           - scripts"
	assert.Equal(t, want, out)

	out = mustCall(t, reg, "list_files", map[string]interface{}{"directory": "scripts"})
	assert.Contains(t, out, "FILE          8 scripts/run.py")

	assert.Equal(t, "Error: Directory 'nope' does not exist", mustCall(t, reg, "list_files", map[string]interface{}{"directory": "nope"}))
	assert.Equal(t, "Error: 'b.txt' is not a directory", mustCall(t, reg, "list_files", map[string]interface{}{"directory": "b.txt"}))
	assert.Equal(t, "Access denied: Path '..' is outside sandbox directory", mustCall(t, reg, "list_files", map[string]interface{}{"directory": ".."}))
}
