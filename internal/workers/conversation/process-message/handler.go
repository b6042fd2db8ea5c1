// Package processmessage runs the assistant as a Zeebe job worker, so BPMN
// processes can hand a customer message to the same pipeline the HTTP API uses.
package processmessage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"workshop-assistant/internal/assistant/action"
	"workshop-assistant/internal/assistant/engine"
	stderrors "workshop-assistant/internal/common/errors"
	"workshop-assistant/internal/common/logger"
)

const TaskType = "process-message"

var ErrInvalidInput = errors.New("INVALID_INPUT")

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, text string, base *action.RequestContext) *engine.Result
}

type Handler struct {
	config       *Config
	engine       MessageProcessor
	errorHandler *stderrors.JobErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, processor MessageProcessor, log logger.Logger) *Handler {
	log = log.With(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		engine:       processor,
		errorHandler: stderrors.NewJobErrorHandler(log),
		logger:       log,
	}
}

// Handle completes the job with the assistant reply. Malformed variables throw
// a BPMN error; an engine failure still completes the job with success false
// so the process can route on it.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, stderrors.NewInvalidRequestError(err.Error()))
		return err
	}

	output := h.Execute(ctx, input)

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("build complete command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("complete job %d: %w", job.Key, err)
	}
	return nil
}

// ParseInput decodes and checks the job variables.
func ParseInput(variables string) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	input.Message = strings.TrimSpace(input.Message)
	if input.Message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	var user *action.User
	if input.UserID != "" {
		user = &action.User{ID: input.UserID, Permissions: input.Permissions}
	}
	rc := action.NewRequestContext(input.SessionID, input.WorkshopID, user)

	res := h.engine.ProcessMessage(ctx, input.Message, rc)

	out := &Output{
		Success:              res.Success,
		Intent:               string(res.Intent.Type),
		Confidence:           res.DecisionConfidence,
		RequiresConfirmation: res.RequiresConfirmation,
		Suggestions:          []string{},
	}
	for _, o := range res.ActionsExecuted {
		if o.Succeeded {
			out.ActionsSucceeded++
		} else {
			out.ActionsFailed++
		}
	}

	if res.Response != nil {
		out.ResponseText = res.Response.Text
		if res.Response.Suggestions != nil {
			out.Suggestions = res.Response.Suggestions
		}
	}
	if !res.Success {
		out.ResponseText = res.FallbackResponse
		if res.Error != nil {
			out.ErrorCode = string(res.Error.Code)
		}
	}

	h.logger.Info("message processed", map[string]interface{}{
		"requestId":  rc.RequestID,
		"intent":     out.Intent,
		"success":    out.Success,
		"confidence": out.Confidence,
	})
	return out
}
