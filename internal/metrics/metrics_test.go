package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestRecordWebhookEvent(t *testing.T) {
	cw := &mockCloudWatch{}
	p := NewPublisher(cw, "Satlearn", nil)

	p.RecordWebhookEvent(context.Background(), "customer.subscription.updated", ResultSuccess)

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(cw.inputs))
	}
	in := cw.inputs[0]
	if *in.Namespace != "Satlearn" {
		t.Errorf("namespace = %q", *in.Namespace)
	}
	datum := in.MetricData[0]
	if *datum.MetricName != MetricWebhookEvent {
		t.Errorf("metric name = %q", *datum.MetricName)
	}
	if len(datum.Dimensions) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(datum.Dimensions))
	}
	if *datum.Dimensions[0].Value != "customer.subscription.updated" {
		t.Errorf("event type dim = %q", *datum.Dimensions[0].Value)
	}
}

func TestRecordEmailDelivery_FailureSwallowed(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("throttled")}
	p := NewPublisher(cw, "Satlearn", nil)

	// Must not panic or propagate.
	p.RecordEmailDelivery(context.Background(), ResultFailure)
	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.inputs))
	}
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *Publisher
	p.RecordWebhookEvent(context.Background(), "x", ResultSuccess)
	p.RecordEmailDelivery(context.Background(), ResultSuccess)
	p.RecordSweepBatch(context.Background(), 3)
}

func TestRecordSweepBatch_Value(t *testing.T) {
	cw := &mockCloudWatch{}
	p := NewPublisher(cw, "Satlearn", nil)

	p.RecordSweepBatch(context.Background(), 7)

	datum := cw.inputs[0].MetricData[0]
	if *datum.Value != 7 {
		t.Errorf("value = %v, want 7", *datum.Value)
	}
}
