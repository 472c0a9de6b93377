package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-aws/sns"
	"github.com/ThreeDotsLabs/watermill-aws/sqs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/resourceflow/transport"
	"github.com/drblury/resourceflow/transport/transporttest"
)

func stubFactories(t *testing.T) {
	t.Helper()
	originalLoader := DefaultConfigLoader
	originalResolver := TopicResolverFactory
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		DefaultConfigLoader = originalLoader
		TopicResolverFactory = originalResolver
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})

	DefaultConfigLoader = func(ctx context.Context, opts ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "eu-west-1"}, nil
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, int64(262144), transport.GetCapabilities(TransportName).MaxMessageSize)
}

func TestBuild(t *testing.T) {
	stubFactories(t)
	pub := &transporttest.Publisher{}
	var resolvedAccount, resolvedRegion string
	var queueNames []string

	TopicResolverFactory = func(accountID, region string) (*sns.GenerateArnTopicResolver, error) {
		resolvedAccount, resolvedRegion = accountID, region
		return sns.NewGenerateArnTopicResolver(accountID, region)
	}
	PublisherFactory = func(cfg sns.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, "us-east-1", cfg.AWSConfig.Region)
		assert.Len(t, cfg.OptFns, 1)
		return pub, nil
	}
	SubscriberFactory = func(cfg sns.SubscriberConfig, sqsCfg sqs.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		name, err := cfg.GenerateSqsQueueName(context.Background(), "arn:aws:sns:us-east-1:000000000000:resource-events")
		require.NoError(t, err)
		queueNames = append(queueNames, name)
		assert.Len(t, sqsCfg.OptFns, 1)
		return &transporttest.Subscriber{}, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{
		AWSRegion:   "us-east-1",
		AWSEndpoint: "http://localhost:4566",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Equal(t, localstackAccountID, resolvedAccount)
	assert.Equal(t, "us-east-1", resolvedRegion)

	_, err = tr.Subscriber("workers")
	require.NoError(t, err)
	_, err = tr.Subscriber("workers-dlq")
	require.NoError(t, err)
	assert.Equal(t, []string{"resource-events-workers", "resource-events-workers-dlq"}, queueNames)
}

func TestBuildErrors(t *testing.T) {
	stubFactories(t)

	_, err := Build(context.Background(), &transporttest.Config{AWSEndpoint: "localhost"}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "not an absolute URL")

	DefaultConfigLoader = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	}
	_, err = Build(context.Background(), &transporttest.Config{AWSRegion: "us-east-1"}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "no credentials")
}

func TestResolveAccountID(t *testing.T) {
	logger := watermill.NopLogger{}
	assert.Equal(t, "123456789012", resolveAccountID(" '123456789012' ", false, logger))
	assert.Equal(t, "123456789012", resolveAccountID("123456789012", true, logger))
	assert.Equal(t, localstackAccountID, resolveAccountID("", true, logger))
	assert.Equal(t, localstackAccountID, resolveAccountID("123", true, logger))
	assert.Equal(t, "", resolveAccountID("", false, logger))
}

func TestStaticCredentials(t *testing.T) {
	creds, err := staticCredentials("AKIA", "secret").Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

func TestEndpointOptionsWithoutEndpoint(t *testing.T) {
	snsOpts, sqsOpts := endpointOptions(nil)
	assert.Nil(t, snsOpts)
	assert.Nil(t, sqsOpts)
}
