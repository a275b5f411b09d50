package backbone

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adisbladis/threatbus/internal/model"
)

func TestTopicExchanges_CoverAllRoutableTopics(t *testing.T) {
	for _, topic := range []string{
		model.TopicIntel,
		model.TopicSighting,
		model.TopicSnapshotRequest,
		model.TopicSnapshotEnvelope,
	} {
		exchange, ok := topicExchanges[topic]
		assert.True(t, ok, "topic %s must have a bound exchange", topic)
		assert.NotEmpty(t, exchange)
	}
}

func TestTopicExchanges_DistinctPerTopic(t *testing.T) {
	seen := make(map[string]string)
	for topic, exchange := range topicExchanges {
		if prior, ok := seen[exchange]; ok {
			t.Fatalf("exchange %s bound to both %s and %s", exchange, prior, topic)
		}
		seen[exchange] = topic
	}
}

func TestPoisonPillError_UnwrapsCause(t *testing.T) {
	cause := assert.AnError
	err := &poisonPillError{cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "poison pill")
}

func TestNodeIdentity_NeverEmpty(t *testing.T) {
	assert.NotEmpty(t, nodeIdentity())
}
