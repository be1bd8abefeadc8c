package sendeligibilitynotification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	awsclient "lender-matching/internal/common/aws"
	"lender-matching/internal/common/config"
	"lender-matching/internal/common/errors"
	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/eligibility"
	"lender-matching/internal/models"
)

const TaskType = "send-eligibility-notification"

// SESService and SNSService are the slices of the AWS clients the worker uses.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Source reads the application and its latest report.
type Source interface {
	ApplicationSnapshot(ctx context.Context, applicationID string) (*models.ApplicationSnapshot, error)
	LatestReport(ctx context.Context, applicationID string) (*eligibility.EligibilityReport, error)
}

type Handler struct {
	config       *Config
	logger       logger.Logger
	source       Source
	sesClient    SESService
	snsClient    SNSService
	errorHandler *errors.ErrorHandler
	now          func() time.Time
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Source       Source
	SES          SESService
	SNS          SNSService
	Logger       logger.Logger
}

// NewHandler builds the worker. SES and SNS clients are created from the
// default AWS credential chain when not supplied.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	workerConfig := createConfigFromAppConfig(opts.AppConfig, opts.CustomConfig)
	if err := workerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("report source is required for %s", TaskType)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	h := &Handler{
		config:       workerConfig,
		logger:       log,
		source:       opts.Source,
		sesClient:    opts.SES,
		snsClient:    opts.SNS,
		errorHandler: errors.NewErrorHandler(log),
		now:          time.Now,
	}

	needSES := workerConfig.EmailEnabled && h.sesClient == nil
	needSNS := workerConfig.SMSEnabled && h.snsClient == nil
	if needSES || needSNS {
		awsCfg, err := awsclient.LoadConfig(context.Background(), workerConfig.AWSRegion)
		if err != nil {
			return nil, err
		}
		if needSES {
			h.sesClient = awsclient.NewSESClient(awsCfg)
		}
		if needSNS {
			h.snsClient = awsclient.NewSNSClient(awsCfg)
		}
	}
	return h, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("Processing eligibility notification", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	var input Input
	if err := job.GetVariablesAs(&input); err != nil {
		h.fail(ctx, client, job, errors.NewInvalidInputError(fmt.Sprintf("parse job variables: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// Execute emails the latest report to the applicant contact and, when at
// least one lender matched, sends a short SMS. An email failure fails the
// job so it is retried; an SMS failure is only reported in the output.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	applicationID := strings.TrimSpace(input.ApplicationID)
	if applicationID == "" {
		return nil, errors.NewInvalidInputError("applicationId is required")
	}

	snapshot, err := h.source.ApplicationSnapshot(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	report, err := h.source.LatestReport(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	data := newMessageData(snapshot, report)
	output := &Output{
		NotificationID: uuid.New().String(),
		ApplicationID:  applicationID,
		EmailStatus:    models.NotificationStatusDisabled,
		SMSStatus:      models.NotificationStatusDisabled,
		MatchedCount:   len(report.MatchedLenders),
	}
	log := h.logger.WithFields(map[string]interface{}{
		"applicationId":  applicationID,
		"notificationId": output.NotificationID,
	})

	email := strings.TrimSpace(snapshot.ContactInfo.Email)
	switch {
	case !h.config.EmailEnabled:
	case email == "":
		output.EmailStatus = models.NotificationStatusSkipped
	default:
		text, html, err := renderEmail(data)
		if err != nil {
			return nil, errors.NewInternalError(err)
		}
		msg := awsclient.BuildEmail(h.config.FromEmail, email, emailSubject, text, html)
		if _, err := h.sesClient.SendEmail(ctx, msg); err != nil {
			log.Error("Email send failed", map[string]interface{}{"error": err.Error()})
			return nil, errors.NewNotificationSendFailedError(ChannelEmail, err)
		}
		output.EmailStatus = models.NotificationStatusSent
	}

	phone := strings.TrimSpace(snapshot.ContactInfo.Phone)
	switch {
	case !h.config.SMSEnabled:
	case phone == "" || len(report.MatchedLenders) == 0:
		output.SMSStatus = models.NotificationStatusSkipped
	default:
		if _, err := h.snsClient.Publish(ctx, awsclient.BuildSMS(phone, renderSMS(data))); err != nil {
			log.Warn("SMS send failed", map[string]interface{}{"error": err.Error()})
			output.SMSStatus = models.NotificationStatusFailed
		} else {
			output.SMSStatus = models.NotificationStatusSent
		}
	}

	output.SentAt = h.now().UTC().Format(time.RFC3339)
	log.Info("Eligibility notification processed", map[string]interface{}{
		"email":   output.EmailStatus,
		"sms":     output.SMSStatus,
		"matched": output.MatchedCount,
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
	}
}
