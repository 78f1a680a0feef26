package notify

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"taskdesk-api/domain"
)

// QueueClient is the subset of the push queue client the publisher uses.
type QueueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Publisher hands notification payloads to the out-of-band push delivery
// queue. The service-worker layer consuming the queue is not part of this
// service.
type Publisher struct {
	queue QueueClient
}

// NewPublisher creates a Publisher from the given connection string.
func NewPublisher(connStr, queueName string) (*Publisher, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	qc, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Publisher{queue: qc}, nil
}

// NewPublisherWithClient wraps an existing queue client. Used by tests.
func NewPublisherWithClient(queue QueueClient) *Publisher {
	return &Publisher{queue: queue}
}

// Publish enqueues a single notification payload.
func (p *Publisher) Publish(ctx context.Context, payload domain.NotifyPayload) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = p.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}
