package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/config"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/conversation"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/domain/instance"
	"github.com/rafaelssenna/LUNA-PAINEL-BACK/pkg/llm"
)

// MaxHistory caps the conversation turns replayed to the model.
const MaxHistory = 20

var (
	repliesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_replies_sent_total",
		Help: "Messages delivered by the reply pipeline.",
	})
	handoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_handoffs_total",
		Help: "Conversations handed off to a human.",
	})
	pipelineErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_pipeline_errors_total",
		Help: "Reply pipeline failures.",
	})
)

// Gateway is the outbound message surface the pipeline needs.
type Gateway interface {
	SendText(ctx context.Context, host, token, number, text string) error
}

// ChatModel produces completions with optional tool calls.
type ChatModel interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.Completion, error)
}

// Pipeline turns one flushed inbound text into zero or more outbound
// messages. One reply is produced at a time per (instance, sender);
// concurrent flushes for a busy slot are dropped.
type Pipeline struct {
	instances instance.Repository
	memory    conversation.MemoryRepository
	messages  conversation.MessageRepository
	locks     *LockRegistry
	model     ChatModel
	gateway   Gateway
	cfg       *config.Config
	logger    *zap.Logger
}

func NewPipeline(
	instances instance.Repository,
	memory conversation.MemoryRepository,
	messages conversation.MessageRepository,
	locks *LockRegistry,
	model ChatModel,
	gateway Gateway,
	cfg *config.Config,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		instances: instances,
		memory:    memory,
		messages:  messages,
		locks:     locks,
		model:     model,
		gateway:   gateway,
		cfg:       cfg,
		logger:    logger.Named("agent.pipeline"),
	}
}

// Process answers one coalesced inbound text from sender chatID.
func (p *Pipeline) Process(ctx context.Context, instanceID, chatID, text string) error {
	if !p.locks.TryAcquire(instanceID, chatID) {
		p.logger.Info("reply_in_flight_dropped",
			zap.String("instance_id", instanceID),
			zap.String("chat_id", chatID),
		)
		return nil
	}
	defer p.locks.Release(instanceID, chatID)

	inst, err := p.instances.FindByID(ctx, instanceID)
	if err != nil {
		pipelineErrors.Inc()
		return fmt.Errorf("load instance: %w", err)
	}
	if !inst.CanProcess() {
		p.logger.Debug("pipeline_skipped",
			zap.String("instance_id", instanceID),
			zap.String("chat_id", chatID),
		)
		return nil
	}

	// The raw fragments were stored at ingest; memory gets the coalesced
	// turn the model will actually see.
	if err := p.memory.Append(ctx, &conversation.MemoryEntry{
		InstanceID: instanceID,
		ChatID:     chatID,
		Role:       conversation.RoleUser,
		Content:    text,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		pipelineErrors.Inc()
		return fmt.Errorf("record inbound: %w", err)
	}

	history, err := p.memory.Recent(ctx, instanceID, chatID, MaxHistory)
	if err != nil {
		pipelineErrors.Inc()
		return fmt.Errorf("load history: %w", err)
	}

	prompt := []llm.Message{{Role: "system", Content: inst.Prompt}}
	for _, entry := range history {
		prompt = append(prompt, llm.Message{Role: string(entry.Role), Content: entry.Content})
	}

	completion, err := p.model.Complete(ctx, prompt, toolDefinitions())
	if err != nil {
		pipelineErrors.Inc()
		return fmt.Errorf("completion: %w", err)
	}

	return p.execute(ctx, inst, chatID, completion)
}

// execute runs the completion's actions. Non-handoff tool calls run in
// the order the model emitted them; a handoff always runs last. Plain
// content with no tool calls is sent as text.
func (p *Pipeline) execute(ctx context.Context, inst *instance.Instance, chatID string, completion *llm.Completion) error {
	handoff := false

	for _, call := range completion.ToolCalls {
		switch call.Name {
		case ToolSendText:
			args, err := parseSendText(call.Arguments)
			if err != nil {
				p.logger.Warn("tool_arguments_invalid", zap.String("tool", call.Name), zap.Error(err))
				continue
			}
			if strings.TrimSpace(args.Message) == "" {
				continue
			}
			if err := p.sendReply(ctx, inst, chatID, args.Message, args.Message); err != nil {
				return err
			}
		case ToolSendMenu:
			args, err := parseSendMenu(call.Arguments)
			if err != nil {
				p.logger.Warn("tool_arguments_invalid", zap.String("tool", call.Name), zap.Error(err))
				continue
			}
			if err := p.sendReply(ctx, inst, chatID, args.Render(), args.Text); err != nil {
				return err
			}
		case ToolHandoff:
			handoff = true
		default:
			p.logger.Warn("tool_unknown", zap.String("tool", call.Name))
		}
	}

	if len(completion.ToolCalls) == 0 && strings.TrimSpace(completion.Content) != "" {
		if err := p.sendReply(ctx, inst, chatID, completion.Content, completion.Content); err != nil {
			return err
		}
	}

	if handoff {
		p.notifyHandoff(ctx, inst, chatID)
	}

	return nil
}

// sendReply delivers wireText and persists memoryText as the assistant
// turn. The two differ for menus, where only the question is remembered.
func (p *Pipeline) sendReply(ctx context.Context, inst *instance.Instance, chatID, wireText, memoryText string) error {
	if err := p.gateway.SendText(ctx, inst.Host, inst.Token, chatID, wireText); err != nil {
		pipelineErrors.Inc()
		return fmt.Errorf("send reply: %w", err)
	}
	repliesSent.Inc()

	if err := p.memory.Append(ctx, &conversation.MemoryEntry{
		InstanceID: inst.ID,
		ChatID:     chatID,
		Role:       conversation.RoleAssistant,
		Content:    memoryText,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		p.logger.Error("memory_append_failed", zap.Error(err))
	}
	if err := p.messages.Save(ctx, &conversation.StoredMessage{
		ID:         ulid.Make().String(),
		InstanceID: inst.ID,
		ChatID:     chatID,
		FromMe:     true,
		Timestamp:  time.Now().Unix(),
		Content:    wireText,
	}); err != nil {
		p.logger.Error("message_save_failed", zap.Error(err))
	}
	return nil
}

// notifyHandoff pings the tenant's redirect phone about a waiting lead.
// Without a redirect phone (instance or global) the handoff is only logged.
func (p *Pipeline) notifyHandoff(ctx context.Context, inst *instance.Instance, chatID string) {
	handoffsTotal.Inc()

	redirect := strings.TrimSpace(inst.RedirectPhone)
	if redirect == "" {
		redirect = p.cfg.RedirectPhone
	}
	if redirect == "" {
		p.logger.Warn("handoff_redirect_missing",
			zap.String("instance_id", inst.ID),
			zap.String("chat_id", chatID),
		)
		return
	}

	notice := fmt.Sprintf("🔔 Novo lead aguardando atendimento!\n\nInstância: %s\nNúmero: %s", inst.Name, chatID)
	if err := p.gateway.SendText(ctx, inst.Host, inst.Token, redirect, notice); err != nil {
		p.logger.Error("handoff_notify_failed",
			zap.String("instance_id", inst.ID),
			zap.Error(err),
		)
		return
	}

	if err := p.memory.Append(ctx, &conversation.MemoryEntry{
		InstanceID: inst.ID,
		ChatID:     chatID,
		Role:       conversation.RoleAssistant,
		Content:    "[conversa transferida para atendimento humano]",
		Timestamp:  time.Now().UTC(),
		Metadata:   map[string]string{"handoff": "true"},
	}); err != nil {
		p.logger.Error("memory_append_failed", zap.Error(err))
	}
}

