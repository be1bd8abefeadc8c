package evaluateeligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"lender-matching/internal/common/config"
	"lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/eligibility"
)

const TaskType = "evaluate-eligibility"

// Service runs an evaluation for a stored application.
type Service interface {
	EvaluateApplication(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error)
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
		return nil, fmt.Errorf("evaluation service is required for %s", TaskType)
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

	h.logger.Info("Processing eligibility evaluation", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err))
	}
	input.ApplicationID = strings.TrimSpace(input.ApplicationID)
	if input.ApplicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required")
	}
	return &input, nil
}

// Execute evaluates the application and condenses the report into process
// variables.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	report, err := h.service.EvaluateApplication(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	output := &Output{
		ApplicationID:         report.ApplicationID,
		MatchedLenderIDs:      report.MatchedLenderIDs(),
		MatchedCount:          len(report.MatchedLenders),
		UnmatchedCount:        len(report.UnmatchedLenders),
		TotalLendersEvaluated: report.TotalLendersEvaluated,
		HasMatches:            len(report.MatchedLenders) > 0,
		AnalyzedAt:            report.AnalysisTimestamp,
	}
	if output.HasMatches {
		top := report.MatchedLenders[0]
		output.TopLenderID = top.LenderID
		output.TopLenderName = top.LenderName
		output.TopConfidence = top.ConfidenceScore
	}

	h.logger.Info("Eligibility evaluated", map[string]interface{}{
		"applicationId": output.ApplicationID,
		"matched":       output.MatchedCount,
		"unmatched":     output.UnmatchedCount,
		"total":         output.TotalLendersEvaluated,
	})
	return output, nil
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

	h.logger.Info("Job completed successfully", map[string]interface{}{"jobKey": job.GetKey()})
}
