package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Attribute names the publisher reads to fill FIFO fields.
const (
	AttrGroupID         = "order_number"
	AttrFallbackGroupID = "gateway_order_id"
	AttrDedupID         = "dedup_id"
)

// Publisher sends reconciliation jobs to one SQS queue. On a FIFO queue (URL ending in .fifo)
// messages are grouped per order number, or per gateway order id while the order number is
// still unresolved, and deduplicated per payment event.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Send publishes a JSON message body with attributes as String message attributes.
func (p *Publisher) Send(ctx context.Context, messageBody string, attributes map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if p.fifo {
		group := attributes[AttrGroupID]
		if group == "" {
			group = attributes[AttrFallbackGroupID]
		}
		if group == "" {
			// both ids missing; dedup still applies
			group = "unresolved"
		}
		input.MessageGroupId = awsString(group)
		if dedup := attributes[AttrDedupID]; dedup != "" {
			input.MessageDeduplicationId = awsString(dedup)
		}
	}

	msgAttrs := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range attributes {
		if v == "" {
			// SQS rejects empty attribute values
			continue
		}
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if len(msgAttrs) > 0 {
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send to %s: %w", p.QueueURL, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
