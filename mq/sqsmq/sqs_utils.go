package sqsmq

import (
	"context"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/zlnvch/garden/awsconfig"
	"github.com/zlnvch/garden/mq"
)

// SQS caps both ReceiveMessage and DeleteMessageBatch at 10 entries
const maxBatch = 10

const typeAttribute = "Type"

func newSQSClient(ctx context.Context, devMode bool, sqsEndpoint string) (*sqs.Client, error) {
	cfg, err := awsconfig.Load(ctx, devMode)
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = awsconfig.Endpoint(devMode, sqsEndpoint)
	}), nil
}

func getQueues(client *sqs.Client, ctx context.Context) ([]string, error) {
	output, err := client.ListQueues(ctx, &sqs.ListQueuesInput{})
	if err != nil {
		return nil, err
	}

	// ListQueuesOutput.QueueUrls can be nil if no queues exist
	if output.QueueUrls == nil {
		return []string{}, nil
	}

	return output.QueueUrls, nil
}

func sendMessage(sqsmq *SQSMessageQueue, ctx context.Context, msg mq.Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(sqsmq.queueURL),
		MessageBody: aws.String(msg.Body),
	}
	if msg.Type != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			typeAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Type),
			},
		}
	}

	_, err := sqsmq.client.SendMessage(ctx, input)
	return err
}

func receiveMessages(sqsmq *SQSMessageQueue, ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]mq.Message, error) {
	resp, err := sqsmq.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(sqsmq.queueURL),
		MaxNumberOfMessages:   min(max(maxMessages, 1), maxBatch),
		WaitTimeSeconds:       20, // long polling
		VisibilityTimeout:     visibilityTimeout,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, err
	}

	msgs := make([]mq.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msg := mq.Message{
			Id:   aws.ToString(m.ReceiptHandle),
			Body: aws.ToString(m.Body),
		}
		if attr, ok := m.MessageAttributes[typeAttribute]; ok {
			msg.Type = aws.ToString(attr.StringValue)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func deleteMessages(sqsmq *SQSMessageQueue, ctx context.Context, msgs []mq.Message) ([]mq.Message, error) {
	var failed []mq.Message

	sent := 0
	for chunk := range slices.Chunk(msgs, maxBatch) {
		entries := make([]types.DeleteMessageBatchRequestEntry, len(chunk))
		for i, m := range chunk {
			entries[i] = types.DeleteMessageBatchRequestEntry{
				// Entry ids only need to be unique within one request
				Id:            aws.String(strconv.Itoa(i)),
				ReceiptHandle: aws.String(m.Id),
			}
		}

		out, err := sqsmq.client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(sqsmq.queueURL),
			Entries:  entries,
		})
		if err != nil {
			// The rest of the batch was never acknowledged
			return append(failed, msgs[sent:]...), err
		}
		sent += len(chunk)

		for _, f := range out.Failed {
			i, convErr := strconv.Atoi(aws.ToString(f.Id))
			if convErr == nil && i >= 0 && i < len(chunk) {
				failed = append(failed, chunk[i])
			}
		}
	}

	return failed, nil
}
