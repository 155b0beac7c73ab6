package notification

import (
	"context"
	"fmt"

	"chat-auth-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends codes as transactional SMS through AWS SNS.
type SNSSender struct {
	client   snsPublisher
	senderID string
	logger   *zap.Logger
}

// NewSNSSender loads the default AWS credential chain for region.
func NewSNSSender(ctx context.Context, region, senderID string, logger *zap.Logger) (*SNSSender, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSNSSender(sns.NewFromConfig(awsCfg), senderID, logger), nil
}

func newSNSSender(client snsPublisher, senderID string, logger *zap.Logger) *SNSSender {
	return &SNSSender{client: client, senderID: senderID, logger: logger}
}

func (s *SNSSender) Send(ctx context.Context, phoneNumber, code string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phoneNumber),
		Message:           aws.String(Message(code)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}

	s.logger.Debug("Verification SMS published",
		util.Phone("phone_number", phoneNumber),
		util.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}
