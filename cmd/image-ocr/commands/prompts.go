package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/image-ocr/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [style]",
	Short: "List prompt styles or show the composed prompt",
	Long: `Without arguments, lists the available prompt styles and marks the
configured one. With a style, prints the full prompt that would be sent,
including reading-order and translation instructions from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrompts,
}

func init() {
	rootCmd.AddCommand(promptsCmd)
}

func runPrompts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, style := range prompt.Styles() {
			marker := " "
			if style == cfg.OCR.PromptStyle {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, style)
		}
		return nil
	}

	ocr := cfg.OCR
	ocr.PromptStyle = args[0]
	text, err := prompt.Compose(ocr)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, text)
	return nil
}
