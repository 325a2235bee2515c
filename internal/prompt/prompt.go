// Package prompt selects and composes the instruction text sent with each image.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spherical/image-ocr/internal/config"
	"github.com/spherical/image-ocr/internal/domain"
)

const (
	StyleBasic      = "basic"
	StyleDetailed   = "detailed"
	StyleStructured = "structured"
	StyleJapanese   = "japanese"
)

var templates = map[string]string{
	StyleBasic:      "Extract all text from this manga page image. Return only the text content without descriptions.",
	StyleDetailed:   "Carefully extract all text from this manga page including dialogue, sound effects, and any written text. Preserve the reading order and format the output clearly.",
	StyleStructured: "Extract text from this manga page and organize it as follows:\n- Dialogue: [character dialogue]\n- Sound effects: [onomatopoeia and sound effects]\n- Other text: [signs, captions, etc.]",
	StyleJapanese:   "この漫画ページから全てのテキストを抽出してください。対話、効果音、その他の文字を含めて、読み順を保って明確に整理してください。",
}

const rightToLeftInstructions = `

CRITICAL SPATIAL INSTRUCTIONS FOR MANGA:
- The page flows from RIGHT to LEFT, TOP to BOTTOM
- Panel 1 is at the TOP-RIGHT corner
- Panel 2 is to the LEFT of Panel 1
- Continue LEFT across the top row
- Drop down to the next row and start again from the RIGHT
- Within each panel, speech bubbles follow RIGHT-TO-LEFT flow
- Vertical text reads TOP-TO-BOTTOM
- Pay attention to panel borders and speech bubble tails to determine reading sequence

Please number and extract text in this precise order, indicating the spatial position of each text element.`

// Styles returns the recognized prompt style keys in sorted order.
func Styles() []string {
	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Select maps a prompt style and target language to its instruction string.
// A basic prompt for Japanese material is replaced by the Japanese prompt.
func Select(style, language string) (string, error) {
	text, ok := templates[style]
	if !ok {
		return "", domain.ConfigError(fmt.Sprintf("unknown prompt style %q (expected one of %s)",
			style, strings.Join(Styles(), ", ")), nil)
	}

	if style == StyleBasic && strings.EqualFold(language, "Japanese") {
		return templates[StyleJapanese], nil
	}

	return text, nil
}

// Compose builds the full prompt for a run: the selected template followed by
// translation and reading-order instructions when configured.
func Compose(cfg config.OCRConfig) (string, error) {
	text, err := Select(cfg.PromptStyle, cfg.Language)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(text)

	if cfg.Translation.Enabled {
		b.WriteString(translationInstructions(cfg.Translation))
	}

	if cfg.ReadingOrder == "right-to-left" {
		b.WriteString(rightToLeftInstructions)
	}

	return b.String(), nil
}

func translationInstructions(t config.TranslationConfig) string {
	source := orDefault(t.SourceLanguage, "Chinese")
	target := orDefault(t.TargetLanguage, "English")
	mode := orDefault(t.Mode, "inline")
	style := orDefault(t.Style, "natural")

	preserve := "No"
	if t.PreserveOriginal {
		preserve = "Yes"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `

TRANSLATION INSTRUCTIONS:
- Translate all extracted %s text to %s
- Translation style: %s
- Preserve original text: %s
- Output mode: %s

Translation Guidelines:
- For 'natural' style: Provide fluent, contextual translations
- For 'literal' style: Stay close to original meaning and structure
- For 'localized' style: Adapt cultural references and idioms
- Maintain the emotional tone and character personality
- Keep sound effects descriptive but culturally appropriate`, source, target, style, preserve, mode)

	switch mode {
	case "inline":
		b.WriteString(`

OUTPUT FORMAT (Inline):
Panel X: [Original text] → [Translation]`)
	case "separate":
		fmt.Fprintf(&b, `

OUTPUT FORMAT (Separate):
=== ORIGINAL TEXT ===
[All original text in reading order]

=== %s TRANSLATION ===
[All translations in same order]`, strings.ToUpper(target))
	case "both":
		b.WriteString(`

OUTPUT FORMAT (Both):
=== DETAILED EXTRACTION ===
Panel X: [Original] → [Translation]

=== ORIGINAL TEXT ONLY ===
[All original text]

=== TRANSLATIONS ONLY ===
[All translations]`)
	}

	return b.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
