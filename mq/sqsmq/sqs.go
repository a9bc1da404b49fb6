package sqsmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/zlnvch/garden/mq"
)

type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
}

func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queues, err := getQueues(client, ctx)
	if err != nil {
		return nil, err
	}

	var queueURL string
	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			queueURL = q
			break
		}
	}
	if queueURL == "" {
		return nil, fmt.Errorf("given queue name '%s' not found in SQS", queueName)
	}

	return &SQSMessageQueue{client, queueURL}, nil
}

func (sqsmq *SQSMessageQueue) Send(ctx context.Context, msg mq.Message) error {
	return sendMessage(sqsmq, ctx, msg)
}

func (sqsmq *SQSMessageQueue) Receive(ctx context.Context, maxMessages int32, visibilityTimeout int32) ([]mq.Message, error) {
	return receiveMessages(sqsmq, ctx, maxMessages, visibilityTimeout)
}

func (sqsmq *SQSMessageQueue) Delete(ctx context.Context, msgs []mq.Message) ([]mq.Message, error) {
	return deleteMessages(sqsmq, ctx, msgs)
}
