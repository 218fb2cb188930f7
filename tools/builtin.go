package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/invopop/jsonschema"
)

func schemaFor(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true}
	return r.Reflect(v)
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"required,description=Path of the file to read"`
}

// ReadFileTool reads a file's full contents.
func ReadFileTool() Tool {
	return Tool{
		Name:        "read_file",
		Description: "Read the contents of a file at the given path.",
		Parameters:  schemaFor(readFileArgs{}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return nil, fmt.Errorf("read_file: path is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read_file: %w", err)
			}
			return string(data), nil
		},
	}
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"required"`
	Content string `json:"content" jsonschema:"required"`
}

// WriteFileTool overwrites a file's contents.
func WriteFileTool() Tool {
	return Tool{
		Name:        "write_file",
		Description: "Write content to a file at the given path, creating or overwriting it.",
		Parameters:  schemaFor(writeFileArgs{}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if path == "" {
				return nil, fmt.Errorf("write_file: path is required")
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, fmt.Errorf("write_file: %w", err)
			}
			return map[string]any{"bytes_written": len(content)}, nil
		},
	}
}

type listDirArgs struct {
	Path string `json:"path" jsonschema:"required"`
}

// ListDirTool lists the entries of a directory.
func ListDirTool() Tool {
	return Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory.",
		Parameters:  schemaFor(listDirArgs{}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, fmt.Errorf("list_dir: %w", err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return names, nil
		},
	}
}

type grepArgs struct {
	Pattern string `json:"pattern" jsonschema:"required"`
	Path    string `json:"path" jsonschema:"required"`
}

// GrepTool searches a directory tree for files whose contents match a
// regular expression and returns their paths, grounded on the teacher's
// tools/search.go pattern but backed by the standard regexp package rather
// than an external search binary.
func GrepTool() Tool {
	return Tool{
		Name:        "grep",
		Description: "Search files under a path for a regular expression and return the paths of matching files.",
		Parameters:  schemaFor(grepArgs{}),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			pattern, _ := args["pattern"].(string)
			root, _ := args["path"].(string)
			if pattern == "" || root == "" {
				return nil, fmt.Errorf("grep: pattern and path are required")
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("grep: invalid pattern: %w", err)
			}
			var matches []string
			walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				data, rerr := os.ReadFile(path)
				if rerr != nil {
					return nil
				}
				if re.Match(data) {
					matches = append(matches, path)
				}
				return nil
			})
			if walkErr != nil {
				return nil, fmt.Errorf("grep: %w", walkErr)
			}
			return matches, nil
		},
	}
}
