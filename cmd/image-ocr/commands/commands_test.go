package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/image-ocr/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		cfgFile = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "image-ocr version "+Version))
}

func TestPromptsCommand(t *testing.T) {
	t.Setenv("OCR_PROMPT_STYLE", "structured")

	out, err := execute(t, "prompts")
	require.NoError(t, err)
	assert.Contains(t, out, "* structured\n")
	assert.Contains(t, out, "  basic\n")

	out, err = execute(t, "prompts", "japanese")
	require.NoError(t, err)
	assert.Contains(t, out, "漫画ページ")

	_, err = execute(t, "prompts", "haiku")
	assert.Error(t, err)
}

func TestPromptsCommand_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ocr:\n  prompt_style: basic\n  reading_order: left-to-right\n"), 0o644))

	out, err := execute(t, "--config", path, "prompts")
	require.NoError(t, err)
	assert.Contains(t, out, "* basic\n")
}

func TestApplyRunFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	runOutput, runModel, runPromptStyle, runExpandPDF = "out/report.txt", "gemini-1.5-pro", "structured", true
	t.Cleanup(func() { runOutput, runModel, runPromptStyle, runExpandPDF = "", "", "", false })

	require.NoError(t, applyRunFlags(cfg, []string{"scans"}))
	assert.Equal(t, "scans", cfg.Input.Dir)
	assert.Equal(t, "out/report.txt", cfg.Output.File)
	assert.Equal(t, "gemini-1.5-pro", cfg.Service.Model)
	assert.Equal(t, "structured", cfg.OCR.PromptStyle)
	assert.True(t, cfg.Input.ExpandPDF)

	runPromptStyle = "haiku"
	assert.Error(t, applyRunFlags(cfg, nil))
}

func TestRunCommand_MissingCredential(t *testing.T) {
	t.Setenv("OCR_API_KEY_ENV", "IMAGE_OCR_TEST_MISSING_KEY")
	t.Setenv("IMAGE_OCR_TEST_MISSING_KEY", "")

	_, err := execute(t, "run", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAGE_OCR_TEST_MISSING_KEY not set")
}
