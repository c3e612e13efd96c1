// Package file registers the filesystem tools: read_file, write_file, and
// list_dir. Handlers receive paths already resolved and contained by the
// policy engine; they never re-resolve against the root themselves.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"memchat/internal/logging"
	"memchat/internal/policy"
	"memchat/internal/tools"
)

// maxReadBytes caps file content fed back into the conversation. Oversized
// files are truncated with a marker rather than rejected.
const maxReadBytes = 50000

// Register adds the filesystem tools to the registry.
func Register(reg *tools.Registry) error {
	for _, t := range []*tools.Tool{readFileTool(), writeFileTool(), listDirTool()} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func readFileTool() *tools.Tool {
	return &tools.Tool{
		Name:            "read_file",
		Description:     "Read the contents of a file. Returns the file text, truncated if very large.",
		Category:        tools.CategoryReadOnly,
		Target:          policy.TargetPath,
		TargetParameter: "path",
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Path to the file, relative to the configured root"},
			},
			Required: []string{"path"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := args["path"].(string)

			info, err := os.Stat(path)
			if err != nil {
				if os.IsNotExist(err) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", fmt.Errorf("cannot stat %s: %w", path, err)
			}
			if info.IsDir() {
				return "", fmt.Errorf("%s is a directory, use list_dir", path)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("cannot read %s: %w", path, err)
			}
			logging.ToolsDebug("read_file %s (%d bytes)", path, len(data))
			if len(data) > maxReadBytes {
				return string(data[:maxReadBytes]) +
					fmt.Sprintf("\n... [truncated, %d of %d bytes shown]", maxReadBytes, len(data)), nil
			}
			return string(data), nil
		},
	}
}

func writeFileTool() *tools.Tool {
	return &tools.Tool{
		Name:            "write_file",
		Description:     "Write content to a file, creating it (and parent directories) if needed. Overwrites existing content.",
		Category:        tools.CategorySideEffecting,
		Target:          policy.TargetPath,
		TargetParameter: "path",
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "Path to the file, relative to the configured root"},
				"content": {Type: "string", Description: "Full content to write"},
			},
			Required: []string{"path", "content"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := args["path"].(string)
			content := args["content"].(string)

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("cannot create parent directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("cannot write %s: %w", path, err)
			}
			logging.Tools("write_file %s (%d bytes)", path, len(content))
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		},
	}
}

func listDirTool() *tools.Tool {
	return &tools.Tool{
		Name:            "list_dir",
		Description:     "List the entries of a directory. Directories are suffixed with a slash.",
		Category:        tools.CategoryReadOnly,
		Target:          policy.TargetPath,
		TargetParameter: "path",
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Path to the directory, relative to the configured root"},
			},
			Required: []string{"path"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			path := args["path"].(string)

			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("cannot list %s: %w", path, err)
			}

			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			if len(names) == 0 {
				return "(empty directory)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	}
}
