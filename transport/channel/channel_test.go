package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/resourceflow/transport"
	"github.com/drblury/resourceflow/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.ChannelCapabilities, transport.GetCapabilities(TransportName))
}

func TestBuildDeliversToEveryGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := Build(ctx, &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	defer func() { _ = tr.Close() }()

	primary, err := tr.Subscriber("workers")
	require.NoError(t, err)
	audit, err := tr.Subscriber("audit")
	require.NoError(t, err)

	first, err := primary.Subscribe(ctx, "resource-events")
	require.NoError(t, err)
	second, err := audit.Subscribe(ctx, "resource-events")
	require.NoError(t, err)

	require.NoError(t, tr.Publisher.Publish("resource-events", message.NewMessage("evt-1", []byte(`{}`))))

	for _, ch := range []<-chan *message.Message{first, second} {
		select {
		case msg := <-ch:
			assert.Equal(t, "evt-1", msg.UUID)
			msg.Ack()
		case <-ctx.Done():
			t.Fatal("message not delivered")
		}
	}
}
