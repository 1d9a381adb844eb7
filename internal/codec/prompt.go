package codec

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// promptPrefix primes the completion model with an example utterance in the
// word-aligned prompt format it was trained on.
const promptPrefix = "<|im_start|>\n<|text_start|>the<|text_sep|>overall<|text_sep|>package<|text_sep|>from<|text_sep|>just<|text_sep|>two<|text_sep|>people<|text_sep|>is<|text_sep|>pretty<|text_sep|>remarkable<|text_sep|>sure<|text_sep|>i<|text_sep|>have<|text_sep|>some<|text_sep|>critiques<|text_sep|>about<|text_sep|>some<|text_sep|>of<|text_sep|>the<|text_sep|>gameplay<|text_sep|>aspects<|text_sep|>but<|text_sep|>its<|text_sep|>still<|text_sep|>really<|text_sep|>enjoyable<|text_sep|>and<|text_sep|>it<|text_sep|>looks<|text_sep|>lovely<|text_sep|>"

var (
	rePunct      = regexp.MustCompile(`[-_/,\.\\]`)
	reNonAlpha   = regexp.MustCompile(`[^a-z\s]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// NormalizeText lowercases the input and strips it down to the plain words
// the prompt format expects.
func NormalizeText(text string) []string {
	text = strings.ToLower(text)
	text = rePunct.ReplaceAllString(text, " ")
	text = reNonAlpha.ReplaceAllString(text, "")
	text = strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}
	return strings.Split(text, " ")
}

// BuildPrompt assembles the completion prompt for text.
func BuildPrompt(text string) string {
	words := NormalizeText(text)
	var b strings.Builder
	b.WriteString(promptPrefix)
	b.WriteString(strings.Join(words, "<|text_sep|>"))
	b.WriteString("<|text_end|>\n")
	return b.String()
}

// Voice is a pre-tokenized speaker reference appended to the prompt. The
// completion model mimics the voice of the reference audio the tokens encode.
type Voice struct {
	Name   string `json:"name,omitempty"`
	Tokens []int  `json:"tokens"`
}

// LoadVoice reads a voice file: JSON holding either a bare token array or a
// {"name": ..., "tokens": [...]} object.
func LoadVoice(path string) (*Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice file: %w", err)
	}

	var tokens []int
	if err := json.Unmarshal(data, &tokens); err == nil {
		return &Voice{Tokens: tokens}, nil
	}

	var voice Voice
	if err := json.Unmarshal(data, &voice); err != nil {
		return nil, fmt.Errorf("parse voice file %s: %w", path, err)
	}
	if len(voice.Tokens) == 0 {
		return nil, fmt.Errorf("voice file %s has no tokens", path)
	}
	return &voice, nil
}
