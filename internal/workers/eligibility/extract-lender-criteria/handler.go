package extractlendercriteria

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"lender-matching/internal/common/config"
	"lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/services/extraction"
)

const TaskType = "extract-lender-criteria"

type Service interface {
	ExtractCriteria(ctx context.Context, req extraction.ExtractRequest) (*extraction.ExtractResult, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	service      Service
	errorHandler *errors.ErrorHandler
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Service      Service
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Service == nil {
		return nil, fmt.Errorf("extraction service is required for %s", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	return &Handler{
		config:       workerConfig,
		logger:       log,
		service:      opts.Service,
		errorHandler: errors.NewErrorHandler(log),
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing lender criteria extraction", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	req, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, req)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// parseInput decodes the job variables into an extraction request. Persist
// defaults to true for jobs.
func (h *Handler) parseInput(job entities.Job) (*extraction.ExtractRequest, error) {
	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}
	if strings.TrimSpace(input.Document) == "" {
		return nil, errors.NewInvalidInputError("document is required")
	}
	doc, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input.Document))
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("document is not valid base64: %v", err))
	}

	persist := true
	if input.Persist != nil {
		persist = *input.Persist
	}
	return &extraction.ExtractRequest{
		Document:   doc,
		MimeType:   input.MimeType,
		LenderName: input.LenderName,
		Persist:    persist,
	}, nil
}

func (h *Handler) Execute(ctx context.Context, req *extraction.ExtractRequest) (*Output, error) {
	result, err := h.service.ExtractCriteria(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &Output{
		LenderID:      result.LenderID,
		LenderName:    result.LenderName,
		CriteriaCount: result.CriteriaCount,
		Persisted:     result.LenderID != "",
		Message:       result.Message,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	code := errors.ErrCodeInternal
	if stdErr := errors.As(err); stdErr != nil {
		code = stdErr.Code
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		h.fail(ctx, client, job, errors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}
	h.logger.Info("Job completed successfully", map[string]interface{}{
		"jobKey":        job.GetKey(),
		"lenderId":      output.LenderID,
		"criteriaCount": output.CriteriaCount,
	})
}
