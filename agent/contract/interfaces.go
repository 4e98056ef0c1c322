package contract

import "context"

// Bus is the view of the message runtime that agents use to talk to each other.
type Bus interface {
	// Publish delivers msg to every agent subscribed to topic.Type. It does not wait for handlers.
	Publish(ctx context.Context, msg Message, topic TopicID) error
	// Send delivers msg to a single agent instance and waits for its reply.
	Send(ctx context.Context, msg Message, to AgentID) (Message, error)
}

// Agent handles messages delivered by the bus. An instance never runs two handlers at once.
type Agent interface {
	HandleMessage(ctx context.Context, msg Message, mc MessageContext) (Message, error)
}

// Classifier turns a user message plus conversation history into a dispatch plan.
type Classifier interface {
	Classify(ctx context.Context, text string, history []EndUserMessage) (Plan, error)
}
