package eligibility

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lender-matching/internal/common/logger"
	"lender-matching/internal/common/metrics"
	"lender-matching/internal/common/observability"
	"lender-matching/internal/models"
)

// Oracle produces free-form evaluation text for a prompt.
type Oracle interface {
	GenerateEvaluation(ctx context.Context, prompt string) (string, error)
}

// Extractor reads a guideline document and returns free-form text.
type Extractor interface {
	GenerateExtraction(ctx context.Context, document []byte, mimeType, prompt string) (string, error)
}

// LenderEvaluator judges one application against one lender. It never
// panics or returns partially: the Outcome carries either a judgment or an
// error.
type LenderEvaluator interface {
	EvaluateLender(ctx context.Context, app *models.ApplicationSnapshot, lender Lender) Outcome
}

type Evaluator struct {
	oracle Oracle
	logger logger.Logger
}

func NewEvaluator(oracle Oracle, log logger.Logger) *Evaluator {
	return &Evaluator{
		oracle: oracle,
		logger: log.WithFields(map[string]interface{}{"component": "evaluator"}),
	}
}

func (e *Evaluator) EvaluateLender(ctx context.Context, app *models.ApplicationSnapshot, lender Lender) Outcome {
	ctx, span := observability.Tracer("eligibility").Start(ctx, "eligibility.evaluate_lender")
	span.SetAttributes(attribute.String("lender.id", lender.ID), attribute.Int("lender.criteria", len(lender.Criteria)))
	defer span.End()

	out := Outcome{LenderID: lender.ID, LenderName: lender.Name}

	prompt := BuildEvaluationPrompt(EvaluationRequest{
		Application: app,
		LenderID:    lender.ID,
		LenderName:  lender.Name,
		Criteria:    lender.Criteria,
	})

	raw, err := e.oracle.GenerateEvaluation(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "oracle")
		out.Err = &OracleError{LenderID: lender.ID, Err: err}
		return out
	}

	payload, repaired, err := normalize(raw)
	if repaired {
		result := "ok"
		if err != nil {
			result = "failed"
		}
		metrics.OracleResponseRepairs.WithLabelValues(result).Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed")
		out.Err = err
		return out
	}

	judgment := payload.Resolve(lender.ID, lender.Name)
	span.SetAttributes(attribute.Float64("lender.confidence", judgment.ConfidenceScore))

	e.logger.Debug("Lender evaluated", map[string]interface{}{
		"lenderId":   lender.ID,
		"confidence": judgment.ConfidenceScore,
		"repaired":   repaired,
	})
	out.Judgment = &judgment
	return out
}
