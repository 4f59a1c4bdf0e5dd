package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/llm"
)

const (
	ToolSendText = "send_text"
	ToolSendMenu = "send_menu"
	ToolHandoff  = "handoff"
)

// SendTextArgs is the argument payload of the send_text tool.
type SendTextArgs struct {
	Message string `json:"message"`
}

// SendMenuArgs is the argument payload of the send_menu tool.
type SendMenuArgs struct {
	Text       string   `json:"text"`
	Choices    []string `json:"choices"`
	FooterText string   `json:"footerText,omitempty"`
}

// Render flattens the menu into the numbered-list text sent over the wire.
func (a SendMenuArgs) Render() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(a.Text))
	for i, choice := range a.Choices {
		if i == 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, strings.TrimSpace(choice)))
	}
	if footer := strings.TrimSpace(a.FooterText); footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

// toolDefinitions is the function schema offered to the model on every
// completion.
func toolDefinitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        ToolSendText,
			Description: "Envia uma mensagem de texto para o cliente.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{
						"type":        "string",
						"description": "Texto da mensagem a enviar.",
					},
				},
				"required": []string{"message"},
			},
		},
		{
			Name:        ToolSendMenu,
			Description: "Envia uma pergunta com opções numeradas para o cliente escolher.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "Pergunta apresentada antes das opções.",
					},
					"choices": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Opções apresentadas ao cliente.",
					},
					"footerText": map[string]any{
						"type":        "string",
						"description": "Texto opcional exibido após as opções.",
					},
				},
				"required": []string{"text", "choices"},
			},
		},
		{
			Name:        ToolHandoff,
			Description: "Transfere a conversa para atendimento humano.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

func parseSendText(raw string) (SendTextArgs, error) {
	var args SendTextArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("parse send_text arguments: %w", err)
	}
	return args, nil
}

func parseSendMenu(raw string) (SendMenuArgs, error) {
	var args SendMenuArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return args, fmt.Errorf("parse send_menu arguments: %w", err)
	}
	return args, nil
}
