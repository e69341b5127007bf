package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"orderflow/internal/config"
)

// SQSClient maps the broker interface onto Amazon SQS.
type SQSClient struct {
	client *sqs.Client
}

func NewSQSClient(ctx context.Context, cfg config.SQSConfig) (*SQSClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &SQSClient{client: client}, nil
}

func (c *SQSClient) CreateQueue(ctx context.Context, name string, attrs QueueAttributes) (string, error) {
	input := &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: map[string]string{},
	}
	if attrs.VisibilityTimeout > 0 {
		input.Attributes[string(sqstypes.QueueAttributeNameVisibilityTimeout)] =
			strconv.Itoa(int(attrs.VisibilityTimeout.Seconds()))
	}

	out, err := c.client.CreateQueue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create queue %s: %w", name, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func (c *SQSClient) QueueARN(ctx context.Context, queueURL string) (string, error) {
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue attributes for %s: %w", queueURL, err)
	}

	arn, ok := out.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]
	if !ok {
		return "", fmt.Errorf("queue %s has no ARN attribute", queueURL)
	}
	return arn, nil
}

func (c *SQSClient) ConfigureDeadLetter(ctx context.Context, sourceURL, dlqARN string, maxReceiveCount int) error {
	policy, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     strconv.Itoa(maxReceiveCount),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal redrive policy: %w", err)
	}

	_, err = c.client.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: aws.String(sourceURL),
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNameRedrivePolicy): string(policy),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to configure redrive policy for %s: %w", sourceURL, err)
	}
	return nil
}

func (c *SQSClient) Send(ctx context.Context, queueURL, body string, attrs map[string]string) (string, error) {
	msgAttrs := make(map[string]sqstypes.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	out, err := c.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", queueURL, err)
	}
	return aws.ToString(out.MessageId), nil
}

func (c *SQSClient) Receive(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   int32(opts.MaxMessages),
		WaitTimeSeconds:       int32(opts.WaitTime.Seconds()),
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameSentTimestamp,
			sqstypes.MessageSystemAttributeNameApproximateFirstReceiveTimestamp,
		},
	}
	if opts.VisibilityTimeout > 0 {
		input.VisibilityTimeout = int32(opts.VisibilityTimeout.Seconds())
	}

	out, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages from %s: %w", queueURL, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		attrs := make(map[string]string, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			attrs[k] = aws.ToString(v.StringValue)
		}

		msgs = append(msgs, Message{
			MessageID:       aws.ToString(m.MessageId),
			ReceiptHandle:   aws.ToString(m.ReceiptHandle),
			Body:            aws.ToString(m.Body),
			Attributes:      attrs,
			ReceiveCount:    parseIntAttr(m.Attributes, string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)),
			SentAt:          parseEpochMillisAttr(m.Attributes, string(sqstypes.MessageSystemAttributeNameSentTimestamp)),
			FirstReceivedAt: parseEpochMillisAttr(m.Attributes, string(sqstypes.MessageSystemAttributeNameApproximateFirstReceiveTimestamp)),
		})
	}
	return msgs, nil
}

func (c *SQSClient) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", queueURL, err)
	}
	return nil
}

func (c *SQSClient) DeleteQueue(ctx context.Context, queueURL string) error {
	_, err := c.client.DeleteQueue(ctx, &sqs.DeleteQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	if err != nil {
		return fmt.Errorf("failed to delete queue %s: %w", queueURL, err)
	}
	return nil
}

func (c *SQSClient) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	input := &sqs.ListQueuesInput{}
	if prefix != "" {
		input.QueueNamePrefix = aws.String(prefix)
	}

	out, err := c.client.ListQueues(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	return out.QueueUrls, nil
}

func (c *SQSClient) Purge(ctx context.Context, queueURL string) error {
	_, err := c.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	if err != nil {
		return fmt.Errorf("failed to purge queue %s: %w", queueURL, err)
	}
	return nil
}

func parseIntAttr(attrs map[string]string, key string) int {
	v, err := strconv.Atoi(attrs[key])
	if err != nil {
		return 0
	}
	return v
}

func parseEpochMillisAttr(attrs map[string]string, key string) time.Time {
	ms, err := strconv.ParseInt(attrs[key], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
