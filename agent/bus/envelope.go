package bus

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const (
	metaKind   = "kind"
	metaTopic  = "topic_type"
	metaSource = "source"
	metaSender = "sender"
)

func topicName(t contractx.AgentType) string {
	return "agent." + string(t)
}

func encodeEnvelope(msg contractx.Message, topic contractx.TopicID, sender string) (*message.Message, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", contractx.ErrValidation, msg.Kind(), err)
	}
	wmsg := message.NewMessage(watermill.NewUUID(), payload)
	wmsg.Metadata.Set(metaKind, string(msg.Kind()))
	wmsg.Metadata.Set(metaTopic, string(topic.Type))
	wmsg.Metadata.Set(metaSource, topic.Source)
	wmsg.Metadata.Set(metaSender, sender)
	return wmsg, nil
}

func decodeEnvelope(wmsg *message.Message) (contractx.Message, contractx.MessageContext, error) {
	msg, err := contractx.DecodeMessage(contractx.Kind(wmsg.Metadata.Get(metaKind)), wmsg.Payload)
	if err != nil {
		return nil, contractx.MessageContext{}, err
	}
	mc := contractx.MessageContext{
		Topic: contractx.TopicID{
			Type:   contractx.AgentType(wmsg.Metadata.Get(metaTopic)),
			Source: wmsg.Metadata.Get(metaSource),
		},
		Sender: wmsg.Metadata.Get(metaSender),
	}
	return msg, mc, nil
}
