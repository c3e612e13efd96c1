package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memchat/internal/policy"
	"memchat/internal/tools"
)

// RegisterTools exposes the store's CRUD/search surface as invocable tools.
// Memory tools carry no path or command, so the policy engine applies only
// the enablement and approval checks to them.
func RegisterTools(reg *tools.Registry, store *Store) error {
	for _, t := range []*tools.Tool{
		addMemoryTool(store),
		getMemoryTool(store),
		searchMemoriesTool(store),
		updateMemoryTool(store),
		deleteMemoryTool(store),
		memoryStatsTool(store),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func addMemoryTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "add_memory",
		Description: "Store a new long-term memory. Use for facts, preferences, and anything the user asks to be remembered.",
		Category:    tools.CategorySideEffecting,
		Target:      policy.TargetNone,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"content":    {Type: "string", Description: "The fact to remember, phrased in third person"},
				"kind":       {Type: "string", Description: "One of: note, fact, preference, task, context (default: note)"},
				"tags":       {Type: "string", Description: "Comma-separated tags (optional)"},
				"importance": {Type: "number", Description: "Importance in [0,1] (default: 0.5)"},
			},
			Required: []string{"content"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			kind := Kind(stringArg(args, "kind"))
			if kind == "" {
				kind = KindNote
			}
			importance := 0.5
			if f, ok := args["importance"].(float64); ok {
				importance = f
			}
			e, err := store.Add(kind, stringArg(args, "content"), splitTags(stringArg(args, "tags")), importance)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("stored memory %s (kind=%s)", e.ID, e.Kind), nil
		},
	}
}

func getMemoryTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "get_memory",
		Description: "Retrieve one memory by its id.",
		Category:    tools.CategoryReadOnly,
		Target:      policy.TargetNone,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"id": {Type: "string", Description: "The memory id"},
			},
			Required: []string{"id"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			e, err := store.Get(stringArg(args, "id"))
			if err != nil {
				return "", err
			}
			return formatEntry(e), nil
		},
	}
}

func searchMemoriesTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "search_memories",
		Description: "Search stored memories. All supplied filters must match; results are ordered by importance, then recency.",
		Category:    tools.CategoryReadOnly,
		Target:      policy.TargetNone,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"query":          {Type: "string", Description: "Text to match within memory content (optional)"},
				"tags":           {Type: "string", Description: "Comma-separated tags, all required (optional)"},
				"kind":           {Type: "string", Description: "Restrict to one kind (optional)"},
				"min_importance": {Type: "number", Description: "Minimum importance (optional)"},
				"limit":          {Type: "integer", Description: "Maximum results (default: 10)"},
			},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			q := Query{
				Text:  stringArg(args, "query"),
				Tags:  splitTags(stringArg(args, "tags")),
				Kind:  Kind(stringArg(args, "kind")),
				Limit: 10,
			}
			if f, ok := args["min_importance"].(float64); ok {
				q.MinImportance = f
			}
			if n, ok := args["limit"].(int); ok && n > 0 {
				q.Limit = n
			}
			if q.Kind != "" && !ValidKind(q.Kind) {
				return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, q.Kind)
			}

			results := store.Search(q)
			if len(results) == 0 {
				return "no matching memories", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d matching memories:\n", len(results))
			for _, e := range results {
				b.WriteString(formatEntry(e))
				b.WriteByte('\n')
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}

func updateMemoryTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "update_memory",
		Description: "Update an existing memory's content, tags, kind, or importance. The id and creation time never change.",
		Category:    tools.CategorySideEffecting,
		Target:      policy.TargetNone,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"id":         {Type: "string", Description: "The memory id"},
				"content":    {Type: "string", Description: "New content (optional)"},
				"tags":       {Type: "string", Description: "New comma-separated tags, replacing the old set (optional)"},
				"kind":       {Type: "string", Description: "New kind (optional)"},
				"importance": {Type: "number", Description: "New importance in [0,1] (optional)"},
			},
			Required: []string{"id"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			var req UpdateRequest
			if v, ok := args["content"].(string); ok && v != "" {
				req.Content = &v
			}
			if v, ok := args["tags"].(string); ok && v != "" {
				tags := splitTags(v)
				req.Tags = &tags
			}
			if v, ok := args["kind"].(string); ok && v != "" {
				k := Kind(v)
				req.Kind = &k
			}
			if v, ok := args["importance"].(float64); ok {
				req.Importance = &v
			}

			e, err := store.Update(stringArg(args, "id"), req)
			if err != nil {
				return "", err
			}
			return "updated: " + formatEntry(e), nil
		},
	}
}

func deleteMemoryTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "delete_memory",
		Description: "Permanently delete a memory by its id.",
		Category:    tools.CategorySideEffecting,
		Target:      policy.TargetNone,
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"id": {Type: "string", Description: "The memory id"},
			},
			Required: []string{"id"},
		},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			id := stringArg(args, "id")
			if err := store.Delete(id); err != nil {
				return "", err
			}
			return fmt.Sprintf("deleted memory %s", id), nil
		},
	}
}

func memoryStatsTool(store *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "memory_stats",
		Description: "Report how many memories are stored, broken down by kind.",
		Category:    tools.CategoryReadOnly,
		Target:      policy.TargetNone,
		Schema:      tools.Schema{},
		Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
			st := store.ComputeStats()
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// formatEntry renders one entry for conversation consumption.
func formatEntry(e *Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] (%s, importance %.2f", e.ID, e.Kind, e.Importance)
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, ", tags: %s", strings.Join(e.Tags, ","))
	}
	fmt.Fprintf(&b, ") %s", e.Content)
	return b.String()
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return strings.TrimSpace(v)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
