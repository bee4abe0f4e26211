package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"llm-stream/internal/config"
	"llm-stream/internal/llm"
)

// readInput returns the prompt from args ("-" reads stdin) and the contents
// of the -F file ("-" reads stdin).
func readInput(args []string, inputFile string, stdin io.Reader) (prompt string, file string, err error) {
	prompt = strings.Join(args, " ")
	if prompt == "-" && inputFile == "-" {
		return "", "", fmt.Errorf("prompt and -F cannot both read stdin")
	}
	if prompt == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		prompt = trimTrailingNewline(string(data))
	}
	switch inputFile {
	case "":
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		file = trimTrailingNewline(string(data))
	default:
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", "", fmt.Errorf("read file: %w", err)
		}
		file = trimTrailingNewline(string(data))
	}
	return prompt, file, nil
}

func trimTrailingNewline(value string) string {
	return strings.TrimRight(value, "\r\n")
}

// buildPrompt combines the prompt with the -F input, through the template
// when one is selected. It returns the prompt and the system message to use.
func buildPrompt(cfg config.Config, opts *Options, settings config.Settings, prompt, file string) (string, string, error) {
	system := settings.System
	if opts.Template == "" {
		switch {
		case file == "":
		case prompt == "":
			prompt = file
		default:
			prompt = file + "\n" + prompt
		}
		return prompt, system, nil
	}

	tmpl, err := cfg.Template(opts.Template)
	if err != nil {
		return "", "", err
	}
	vars, err := parseVars(opts.Vars)
	if err != nil {
		return "", "", err
	}
	rendered, renderedSystem, err := tmpl.Render(config.TemplateInput{
		Prompt:   prompt,
		System:   system,
		Stdin:    file,
		Suffix:   opts.Suffix,
		Language: settings.Language,
	}, vars)
	if err != nil {
		return "", "", err
	}
	if renderedSystem != "" {
		system = renderedSystem
	}
	return rendered, system, nil
}

func parseVars(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("invalid --vars: %w", err)
	}
	return vars, nil
}

func parseConversation(raw string) (llm.Conversation, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var conv llm.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("invalid --conversation: %w", err)
	}
	for i, message := range conv {
		switch message.Role {
		case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
		default:
			return nil, fmt.Errorf("invalid --conversation: message %d has role %q", i, message.Role)
		}
	}
	return conv, nil
}

// buildConversation appends the prompt to history and extra messages. A
// non-empty system message replaces any leading system message.
func buildConversation(history, extra llm.Conversation, system, prompt string) llm.Conversation {
	_, rest := history.System()
	conv := make(llm.Conversation, 0, len(rest)+len(extra)+2)
	if system != "" {
		conv = append(conv, llm.Message{Role: llm.RoleSystem, Content: system})
	} else if len(history) > 0 && history[0].Role == llm.RoleSystem {
		conv = append(conv, history[0])
	}
	conv = append(conv, rest...)
	conv = append(conv, extra...)
	conv = append(conv, llm.Message{Role: llm.RoleUser, Content: prompt})
	return conv
}
