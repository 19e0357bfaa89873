// Package metrics publishes operational telemetry to AWS CloudWatch: webhook
// event outcomes, feedback email deliveries, and sweep batch sizes.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	MetricWebhookEvent  = "WebhookEvent"
	MetricEmailDelivery = "FeedbackEmailDelivery"
	MetricSweepBatch    = "FeedbackSweepBatch"

	DimEventType = "EventType"
	DimResult    = "Result"
)

// Result values for the Result dimension.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// CloudWatchAPI abstracts the PutMetricData operation for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Publisher emits counters to CloudWatch. A nil *Publisher is a valid no-op,
// so callers never need to guard their metric calls.
type Publisher struct {
	client    CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewPublisher creates a Publisher for the given namespace.
func NewPublisher(client CloudWatchAPI, namespace string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordWebhookEvent counts one processed webhook event with its outcome.
// Metric failures are logged, never propagated; telemetry must not fail the
// request.
func (p *Publisher) RecordWebhookEvent(ctx context.Context, eventType string, result string) {
	p.put(ctx, MetricWebhookEvent, 1, []cwtypes.Dimension{
		{Name: aws.String(DimEventType), Value: aws.String(eventType)},
		{Name: aws.String(DimResult), Value: aws.String(result)},
	})
}

// RecordEmailDelivery counts one feedback notification email attempt.
func (p *Publisher) RecordEmailDelivery(ctx context.Context, result string) {
	p.put(ctx, MetricEmailDelivery, 1, []cwtypes.Dimension{
		{Name: aws.String(DimResult), Value: aws.String(result)},
	})
}

// RecordSweepBatch records how many feedback rows a sweep run processed.
func (p *Publisher) RecordSweepBatch(ctx context.Context, processed int) {
	p.put(ctx, MetricSweepBatch, float64(processed), nil)
}

func (p *Publisher) put(ctx context.Context, name string, value float64, dims []cwtypes.Dimension) {
	if p == nil || p.client == nil {
		return
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(p.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		p.logger.WarnContext(ctx, "failed to publish metric",
			slog.String("metric", name),
			slog.Any("error", err),
		)
	}
}
