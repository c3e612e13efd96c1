package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memchat/internal/config"
	"memchat/internal/logging"
	"memchat/internal/memory"
	"memchat/internal/perception"
	"memchat/internal/policy"
	"memchat/internal/session"
	"memchat/internal/tools"
	"memchat/internal/tools/file"
	"memchat/internal/tools/shell"
)

var (
	// Global flags
	configPath string
	debugMode  bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memchat",
	Short: "memchat - conversational assistant with persistent memory",
	Long: `memchat is a local-first conversational assistant that remembers.

It talks to any OpenAI-compatible chat-completion endpoint, stores long-term
memories in an append-oriented SQLite journal, and gates every tool call
through a fail-closed security policy (whitelists, containment, dangerous-
target detection, human approval).

Run without arguments to start the interactive chat loop.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if debugMode {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// runCmd executes a single message and exits
var runCmd = &cobra.Command{
	Use:   "run [message]",
	Short: "Send one message and print the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		report, err := app.coordinator.RunTurn(cmd.Context(), strings.Join(args, " "), func(chunk string) {
			fmt.Print(chunk)
		})
		if err != nil {
			return err
		}
		if !report.Plan.StreamFirstPass {
			fmt.Print(report.Response)
		}
		fmt.Println()

		// One-shot invocations wait for the background pass so acknowledged
		// writes are durable before exit.
		app.coordinator.Wait()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "memchat.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(memoryCmd)
}

// app bundles the wired subsystems for the command handlers.
type app struct {
	cfg         *config.Config
	watcher     *config.Watcher
	store       *memory.Store
	coordinator *session.Coordinator
}

// buildApp loads configuration and wires the registry, policy engine, memory
// store, inference client, and coordinator.
func buildApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debugMode {
		cfg.Logging.DebugMode = true
	}

	if err := logging.Initialize(cfg.StateDir, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return nil, err
	}
	if err := logging.InitializeAudit(cfg.StateDir); err != nil {
		return nil, err
	}

	reg := tools.NewRegistry()
	var store *memory.Store
	if cfg.Memory.Enabled {
		store, err = memory.Open(cfg.Memory.Directory, cfg.Memory.MaxEntries)
		if err != nil {
			return nil, err
		}
		if err := memory.RegisterTools(reg, store); err != nil {
			return nil, err
		}
	}
	if err := file.Register(reg); err != nil {
		return nil, err
	}
	if err := shell.Register(reg); err != nil {
		return nil, err
	}

	watcher, err := config.NewWatcher(configPath, cfg)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher unavailable, edits require restart", zap.Error(err))
	}

	if config.ExecutionMode(cfg.Execution.Mode) == config.ModeDualPassAll {
		logger.Warn("dual_pass_all is unsafe for retrieval turns: the visible answer is produced without tool access")
	}

	client := perception.NewClient(cfg.LLM)
	coordinator := session.NewCoordinator(client, reg, policy.NewEngine(), watcher)

	return &app{cfg: cfg, watcher: watcher, store: store, coordinator: coordinator}, nil
}

// Close waits for background passes and releases resources.
func (a *app) Close() {
	a.coordinator.Wait()
	a.watcher.Stop()
	if a.store != nil {
		a.store.Close()
	}
	logging.CloseAudit()
	logging.CloseAll()
}

// runInteractiveChat is the default REPL.
func runInteractiveChat() error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nshutting down...")
		cancel()
	}()

	fmt.Printf("memchat (%s, mode %s) — type /quit to exit\n", app.cfg.LLM.Model, app.cfg.Execution.Mode)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}

		report, err := app.coordinator.RunTurn(ctx, input, func(chunk string) {
			fmt.Print(chunk)
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if !report.Plan.StreamFirstPass {
			fmt.Print(report.Response)
		}
		fmt.Println()
	}
	return scanner.Err()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
