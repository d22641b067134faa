package args

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cli/go-gh/v2/pkg/term"
	"github.com/spf13/cobra"

	"github.com/markis/newsdesk/internal/config"
)

// Command names.
const (
	CommandNews    = "news"
	CommandPrompts = "prompts"
	CommandQueries = "queries"
	CommandReplay  = "replay"
	CommandLast    = "last"
	CommandPresets = "presets"
)

// Replay modes.
const (
	ModeSingle  = "single"
	ModePrompts = "prompts"
	ModeQueries = "queries"
)

// Arguments represents the command-line arguments structure.
type Arguments struct {
	Command string
	// Inputs holds the email text for news, or the prompts/queries of a batch.
	Inputs []string
	Format string
	Server string
	Raw    bool
	// Mode and Source are set for replay.
	Mode   string
	Source string
}

// readStdin returns piped stdin. ok is false when stdin is a terminal.
var readStdin = func(force bool) (string, bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", false, nil
	}
	if !force && (stat.Mode()&os.ModeCharDevice) != 0 {
		return "", false, nil
	}
	text, err := readAll(os.Stdin)
	return text, true, err
}

// ParseArgs parses command-line arguments and stdin input, returning an Arguments struct.
func ParseArgs(ctx context.Context, cfg config.Config, argv []string) (Arguments, error) {
	args := Arguments{}
	var plain bool

	rootCmd := &cobra.Command{
		Use:           "newsdesk",
		Short:         "Stream news summaries, prompt and query batches from a newsdesk server",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if plain {
				args.Format = "plain"
			}
			switch args.Format {
			case "markdown", "plain", "html":
				return nil
			default:
				return fmt.Errorf("unsupported format %q", args.Format)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&args.Format, "format", defaultFormat(cfg), "Output format: markdown, plain or html")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable markdown rendering")
	rootCmd.PersistentFlags().StringVar(&args.Server, "server", cfg.Server, "newsdesk server URL")

	rootCmd.AddCommand(
		newNewsCmd(&args),
		newPromptsCmd(&args, cfg),
		newQueriesCmd(&args, cfg),
		newReplayCmd(&args),
		newLastCmd(&args),
		&cobra.Command{
			Use:   CommandPresets,
			Short: "List configured prompt and query presets",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				args.Command = CommandPresets
				return nil
			},
		},
	)

	rootCmd.SetArgs(argv)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return Arguments{}, err
	}
	// Command stays empty when only help was requested.
	return args, nil
}

func newNewsCmd(args *Arguments) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CommandNews + " [email-file|-]",
		Short: "Summarize a news email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandNews
			email, err := readEmail(cmdArgs)
			if err != nil {
				return err
			}
			if email == "" {
				return errors.New("no email content provided")
			}
			args.Inputs = []string{email}
			return nil
		},
	}
	cmd.Flags().BoolVar(&args.Raw, "raw", false, "Print raw markdown instead of the formatted summary")
	return cmd
}

func newPromptsCmd(args *Arguments, cfg config.Config) *cobra.Command {
	var presets []string
	cmd := &cobra.Command{
		Use:   CommandPrompts + " [prompt...]",
		Short: "Run a batch of prompts",
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandPrompts
			for _, name := range presets {
				prompt, ok := cfg.Prompts[name]
				if !ok {
					return fmt.Errorf("unknown prompt preset %q", name)
				}
				args.Inputs = append(args.Inputs, prompt)
			}
			args.Inputs = append(args.Inputs, nonBlank(cmdArgs)...)
			if len(args.Inputs) == 0 {
				return errors.New("no prompt provided")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&presets, "preset", nil, "Run a prompt preset from the config (repeatable)")
	return cmd
}

func newQueriesCmd(args *Arguments, cfg config.Config) *cobra.Command {
	var (
		presets []string
		fill    map[string]string
	)
	cmd := &cobra.Command{
		Use:   CommandQueries + " [query...]",
		Short: "Run a batch of queries",
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandQueries
			for _, name := range presets {
				query, ok := cfg.Queries[name]
				if !ok {
					return fmt.Errorf("unknown query preset %q", name)
				}
				text, err := query.Expand(fill)
				if err != nil {
					return fmt.Errorf("query preset %q: %w", name, err)
				}
				args.Inputs = append(args.Inputs, text)
			}
			args.Inputs = append(args.Inputs, nonBlank(cmdArgs)...)
			if len(args.Inputs) == 0 {
				return errors.New("no query provided")
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&presets, "preset", nil, "Run a query preset from the config (repeatable)")
	cmd.Flags().StringToStringVar(&fill, "fill", nil, "Placeholder values for query presets, e.g. --fill context=...")
	return cmd
}

func newReplayCmd(args *Arguments) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CommandReplay + " [file|-]",
		Short: "Render a captured NDJSON stream",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			args.Command = CommandReplay
			args.Source = "-"
			if len(cmdArgs) > 0 {
				args.Source = cmdArgs[0]
			}
			switch args.Mode {
			case ModeSingle, ModePrompts, ModeQueries:
				return nil
			default:
				return fmt.Errorf("unsupported replay mode %q", args.Mode)
			}
		},
	}
	cmd.Flags().StringVar(&args.Mode, "mode", ModeSingle, "Stream layout: single, prompts or queries")
	cmd.Flags().BoolVar(&args.Raw, "raw", false, "Print raw markdown instead of the formatted summary")
	return cmd
}

func newLastCmd(args *Arguments) *cobra.Command {
	cmd := &cobra.Command{
		Use:   CommandLast,
		Short: "Show the last news summary again",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			args.Command = CommandLast
			return nil
		},
	}
	cmd.Flags().BoolVar(&args.Raw, "raw", false, "Print raw markdown instead of the formatted summary")
	return cmd
}

func readEmail(cmdArgs []string) (string, error) {
	if len(cmdArgs) == 0 || cmdArgs[0] == "-" {
		text, ok, err := readStdin(len(cmdArgs) > 0)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		if !ok {
			return "", nil
		}
		return text, nil
	}
	f, err := os.Open(cmdArgs[0])
	if err != nil {
		return "", fmt.Errorf("failed to open email file: %w", err)
	}
	defer f.Close()
	text, err := readAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read email file: %w", err)
	}
	return text, nil
}

func readAll(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max buffer
	var buf strings.Builder
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func defaultFormat(cfg config.Config) string {
	if shouldUsePlainText(cfg) && cfg.Render.Format == "markdown" {
		return "plain"
	}
	if cfg.Render.Format == "" {
		return "markdown"
	}
	return cfg.Render.Format
}

// shouldUsePlainText determines if plain text output should be used based on environment and terminal settings.
func shouldUsePlainText(cfg config.Config) bool {
	// Check if the rendering format is set to plain
	if cfg.Render.Format == "plain" {
		return true
	}

	// Check if output is being redirected
	if !term.FromEnv().IsTerminalOutput() {
		return true
	}

	// Check for NO_COLOR environment variable
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}

	// Check for TERM=dumb
	if t := os.Getenv("TERM"); t == "dumb" {
		return true
	}

	return false
}

// SummarizePrompt trims a prompt to a one-line summary for listings.
func SummarizePrompt(prompt string) string {
	summary := strings.Join(strings.Fields(prompt), " ")
	if len([]rune(summary)) > 60 {
		summary = string([]rune(summary)[:57]) + "..."
	}
	return summary
}
