package events

import (
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

type topicPublisher struct {
	topic     string
	publisher message.Publisher
}

// PublisherManager fans events out to any number of watermill publishers,
// each on its own topic. Messages are numbered in the order they were
// published, under the sequence_number metadata key, so that consumers of
// an asynchronous pub/sub can restore the order.
type PublisherManager struct {
	mu         sync.Mutex
	publishers []topicPublisher
	sequence   uint64
}

var _ EventSink = (*PublisherManager)(nil)

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{}
}

func (pm *PublisherManager) AddPublisher(topic string, publisher message.Publisher) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.publishers = append(pm.publishers, topicPublisher{topic: topic, publisher: publisher})
}

func (pm *PublisherManager) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.publishers)
}

// PublishEvent sends event to every publisher. Each publisher gets its own
// message. All publishers are tried, the first failure is returned.
func (pm *PublisherManager) PublishEvent(event Event) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	seq := strconv.FormatUint(pm.sequence, 10)
	pm.sequence++

	var firstErr error
	for _, tp := range pm.publishers {
		msg, err := newEventMessage(event)
		if err != nil {
			return err
		}
		msg.Metadata.Set(MetadataSequence, seq)
		if err := tp.publisher.Publish(tp.topic, msg); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "publishing event to %s", tp.topic)
		}
	}
	return firstErr
}
