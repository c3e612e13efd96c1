package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"memchat/internal/config"
	"memchat/internal/memory"
)

// openStore opens the memory store directly, without the chat stack, for the
// admin subcommands.
func openStore() (*memory.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.Memory.Enabled {
		return nil, fmt.Errorf("memory is disabled in %s", configPath)
	}
	return memory.Open(cfg.Memory.Directory, cfg.Memory.MaxEntries)
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the persistent memory store",
}

var memoryListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List stored memories, optionally filtered by a text query",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		q := memory.Query{Limit: 50}
		if len(args) > 0 {
			q.Text = strings.Join(args, " ")
		}
		if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
			q.Kind = memory.Kind(kind)
			if !memory.ValidKind(q.Kind) {
				return fmt.Errorf("unknown kind %q (valid: note, fact, preference, task, context)", kind)
			}
		}

		entries := store.Search(q)
		if len(entries) == 0 {
			fmt.Println("no memories")
			return nil
		}
		for _, e := range entries {
			tags := ""
			if len(e.Tags) > 0 {
				tags = " [" + strings.Join(e.Tags, ",") + "]"
			}
			fmt.Printf("%s  %-10s %.2f%s  %s\n", e.ID, e.Kind, e.Importance, tags, e.Content)
		}
		return nil
	},
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts by kind and total size",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st := store.ComputeStats()
		fmt.Printf("entries: %d / %d\n", st.Total, st.MaxEntries)
		for _, k := range memory.Kinds() {
			if n := st.ByKind[k]; n > 0 {
				fmt.Printf("  %-10s %d\n", k, n)
			}
		}
		fmt.Printf("content: %d bytes\n", st.ContentBytes)
		return nil
	},
}

var memoryRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a memory by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var memoryCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the journal down to one record per live entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		before := store.ComputeStats()
		if err := store.Compact(); err != nil {
			return err
		}
		fmt.Printf("compacted journal (%d live entries)\n", before.Total)
		return nil
	},
}

func init() {
	memoryListCmd.Flags().String("kind", "", "restrict to one kind")
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryRmCmd)
	memoryCmd.AddCommand(memoryCompactCmd)
}
