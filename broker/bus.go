package broker

// Bus binds a Publisher to one operator, turning (kind, payload) pairs into
// enveloped messages on the right topic. Both the engine and the gateway
// publish through a Bus.
type Bus struct {
	operatorID string
	pub        *Publisher
}

func NewBus(operatorID string, pub *Publisher) (*Bus, error) {
	if err := ValidateOperatorID(operatorID); err != nil {
		return nil, err
	}
	return &Bus{operatorID: operatorID, pub: pub}, nil
}

func (b *Bus) Publish(kind EventKind, payload any) error {
	env, err := NewEnvelope(kind, b.operatorID, payload)
	if err != nil {
		return err
	}
	return b.PublishEnvelope(env)
}

func (b *Bus) PublishEnvelope(env Envelope) error {
	topic, err := TopicFor(env.Kind, env.OperatorID)
	if err != nil {
		return err
	}
	return b.pub.Publish(topic, env)
}

func (b *Bus) Connected() bool { return b.pub.Connected() }
