package sns

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

const EventTypePaymentStatusChanged = "payment_status_changed"

type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Client struct {
	snsClient Publisher
	topicARN  string
}

func NewClient(cfg aws.Config, topicARN string) *Client {
	return NewClientWithPublisher(sns.NewFromConfig(cfg), topicARN)
}

func NewClientWithPublisher(publisher Publisher, topicARN string) *Client {
	return &Client{
		snsClient: publisher,
		topicARN:  topicARN,
	}
}

func (c *Client) PublishPaymentStatusChanged(ctx context.Context, event domain.PaymentStatusChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = c.snsClient.Publish(ctx, &sns.PublishInput{
		Message:  aws.String(string(payload)),
		TopicArn: aws.String(c.topicARN),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventTypePaymentStatusChanged),
			},
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Status)),
			},
		},
	})

	return err
}
