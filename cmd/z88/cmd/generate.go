package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/helix-collective/z88/internal/clip"
	"github.com/helix-collective/z88/internal/events"
	"github.com/helix-collective/z88/internal/service"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Run a ritual and print the story",
	Long: `Run a single ritual for a prompt, store the story and render it.

Examples:
  z88 generate "A memory courier double-crosses a megacorp"
  z88 generate --preset creative --copy "A rogue AI hides in a vending machine"
  z88 generate --template hacker --var secret="a backdoor" --var action=flee --var threat=dawn`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

var (
	genPreset   string
	genOwner    string
	genOut      string
	genCopy     bool
	genRaw      bool
	genEnhance  bool
	genTemplate string
	genVars     map[string]string
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&genPreset, "preset", "", "preset to run (default from config)")
	generateCmd.Flags().StringVar(&genOwner, "owner", "", "owner the story is saved for (default $USER)")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "also write the story markdown to this file")
	generateCmd.Flags().BoolVar(&genCopy, "copy", false, "copy the story to the clipboard")
	generateCmd.Flags().BoolVar(&genRaw, "raw", false, "print markdown without terminal rendering")
	generateCmd.Flags().BoolVar(&genEnhance, "enhance", false, "expand the prompt before the ritual")
	generateCmd.Flags().StringVar(&genTemplate, "template", "", "build the prompt from a template")
	generateCmd.Flags().StringToStringVar(&genVars, "var", nil, "template placeholder value (key=value)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if genTemplate != "" {
		filled, err := service.ApplyTemplate(genTemplate, genVars)
		if err != nil {
			return err
		}
		prompt = filled
	}
	if prompt == "" {
		return fmt.Errorf("a prompt or --template is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, io.Discard)
	if cfg.Log.Level == "debug" {
		logger = newLogger(cfg, os.Stderr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	errOut := cmd.ErrOrStderr()
	if genEnhance {
		enhanced, err := a.enhancer.Enhance(ctx, prompt)
		if err != nil {
			return err
		}
		prompt = enhanced.Enhanced
		fmt.Fprintf(errOut, "%s %s\n", color.CyanString("prompt:"), prompt)
	}

	owner := genOwner
	if owner == "" {
		owner = firstNonEmpty(os.Getenv("USER"), os.Getenv("USERNAME"), "local")
	}

	progress := a.bus.Watch(events.Filter{
		Owner: owner,
		Types: []string{events.TypeRitualProgress, events.TypeAgentCompleted, events.TypeRitualFailed},
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		printProgress(errOut, progress)
	}()

	res, err := a.stories.Generate(ctx, owner, prompt, service.RitualOptions{Preset: genPreset})
	a.bus.Unsubscribe(progress)
	<-done
	if err != nil {
		return err
	}

	story := res.Ritual.StoryText
	if err := renderStory(cmd.OutOrStdout(), story, genRaw); err != nil {
		return err
	}

	meta := res.Ritual.Metadata
	approval := color.GreenString("approved")
	if !meta.EthicalApproval {
		approval = color.YellowString("flagged")
	}
	fmt.Fprintf(errOut, "\n%s #%d %q  %d words  quality %.2f  %s\n",
		color.CyanString("saved"), res.Story.ID, res.Story.Title, meta.WordCount, meta.QualityScore, approval)

	if genOut != "" {
		if err := renameio.WriteFile(genOut, []byte(story), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", genOut, err)
		}
		fmt.Fprintf(errOut, "%s %s\n", color.CyanString("wrote"), genOut)
	}
	if genCopy {
		copied, err := clip.New().Copy(story)
		if err != nil {
			return fmt.Errorf("copying story: %w", err)
		}
		if copied.Method == clip.MethodFile {
			fmt.Fprintf(errOut, "%s clipboard unavailable, story saved to %s\n", color.YellowString("!"), copied.Path)
		} else {
			fmt.Fprintf(errOut, "%s copied via %s\n", color.GreenString("✓"), copied.Method)
		}
	}
	return nil
}

func printProgress(w io.Writer, ch <-chan events.Event) {
	for ev := range ch {
		switch e := ev.(type) {
		case events.RitualProgressEvent:
			fmt.Fprintf(w, "%s %s\n", color.MagentaString("[%3d%%]", e.Percent), e.Message)
		case events.AgentCompletedEvent:
			fmt.Fprintf(w, "       %s %s (%s, %d tokens)\n", color.GreenString("✓"), e.Name, e.Provider, e.Tokens)
		case events.RitualFailedEvent:
			fmt.Fprintf(w, "%s %s\n", color.RedString("[fail]"), e.Error)
		}
	}
}

// renderStory prints markdown, styled for the terminal unless raw.
func renderStory(w io.Writer, markdown string, raw bool) error {
	if raw || color.NoColor {
		_, err := fmt.Fprintln(w, markdown)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
