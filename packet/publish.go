package packet

import "github.com/wireloop/mqtt/encoding"

// Publish carries application data to a topic (MQTT 3.1.1 §3.3).
type Publish struct{ frame }

func (Publish) Type() Type { return PUBLISH }

func (p Publish) flags() byte { return p.raw[0] & 0x0F }

// Dup reports the DUP flag: set on a redelivery attempt of a QoS 1/2
// Publish, never meaningful on the first send.
func (p Publish) Dup() bool { return p.flags()&0x08 != 0 }

// QoS returns the delivery quality of service this Publish was sent at.
func (p Publish) QoS() QoS { return QoS((p.flags() & 0x06) >> 1) }

// Retain reports the RETAIN flag.
func (p Publish) Retain() bool { return p.flags()&0x01 != 0 }

// TopicName returns the destination topic name. Never contains wildcards
// on a Publish (MQTT 3.1.1 §4.7.2).
func (p Publish) TopicName() string {
	name, _, _ := encoding.DecodeString(p.VariableHeader())
	return name
}

// PacketID returns the packet identifier and whether one is present. Only
// QoS 1 and QoS 2 publishes carry one (MQTT 3.1.1 §3.3.2.2).
func (p Publish) PacketID() (uint16, bool) {
	if p.QoS() == QoS0 {
		return 0, false
	}
	topicLen, _, _ := encoding.DecodeBytes(p.VariableHeader())
	id, _ := encoding.DecodeUint16(p.VariableHeader()[2+len(topicLen):])
	return id, true
}

// Message returns the application payload.
func (p Publish) Message() []byte { return p.Payload() }

// PublishBuilder builds a Publish packet.
type PublishBuilder struct {
	topic    string
	message  []byte
	qos      QoS
	retain   bool
	dup      bool
	packetID uint16
	hasID    bool
}

// NewPublishBuilder starts building a Publish to topic carrying message at
// QoS0, not retained.
func NewPublishBuilder(topic string, message []byte) *PublishBuilder {
	return &PublishBuilder{topic: topic, message: message}
}

func (b *PublishBuilder) QoS(qos QoS) *PublishBuilder {
	b.qos = qos
	return b
}

func (b *PublishBuilder) Retain(retain bool) *PublishBuilder {
	b.retain = retain
	return b
}

func (b *PublishBuilder) Dup(dup bool) *PublishBuilder {
	b.dup = dup
	return b
}

// PacketID sets an explicit packet identifier. Only meaningful at QoS 1/2;
// if left unset on a QoS 1/2 Publish, Build assigns one from the low 16
// bits of the current wall-clock time in nanoseconds, matching the teacher's client-side
// identifier allocation strategy for outbound traffic with no session
// table attached.
func (b *PublishBuilder) PacketID(id uint16) *PublishBuilder {
	b.packetID = id
	b.hasID = true
	return b
}

// Build assembles the wire bytes. Infallible for any topic/QoS combination
// reachable through this API; malformed topics (empty, containing
// wildcards) are a caller error the builder does not attempt to catch.
// The parser rejects a topic containing wildcards off the wire; it
// accepts an empty topic.
func (b *PublishBuilder) Build() *Publish {
	var flags byte
	if b.dup {
		flags |= 0x08
	}
	flags |= byte(b.qos) << 1
	if b.retain {
		flags |= 0x01
	}

	body := encoding.EncodeString(b.topic)
	varHeaderLen := len(body)

	if b.qos != QoS0 {
		id := b.packetID
		if !b.hasID {
			id = nextPacketID()
		}
		body = append(body, encoding.EncodeUint16(id)...)
		varHeaderLen += 2
	}

	body = append(body, b.message...)

	raw, headerLen := assemble(PUBLISH, flags, body)
	return &Publish{frame{raw: raw, headerLen: headerLen, varHeaderLen: varHeaderLen}}
}

func parsePublish(raw []byte, flags byte, headerLen int) (Packet, error) {
	qos := QoS((flags & 0x06) >> 1)
	if qos == 3 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "PUBLISH QoS bits cannot both be set"}
	}
	if flags&0x08 != 0 && qos == QoS0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "PUBLISH DUP set on a QoS 0 message"}
	}

	body := raw[headerLen:]
	topic, n, err := encoding.DecodeString(body)
	if err != nil {
		return nil, err
	}
	if containsWildcard(topic) {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "PUBLISH topic name must not contain wildcards"}
	}
	varHeaderLen := n

	if qos != QoS0 {
		if len(body) < n+2 {
			return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + n + 2, Actual: len(raw)}
		}
		varHeaderLen += 2
	}

	return &Publish{frame{raw: raw, headerLen: headerLen, varHeaderLen: varHeaderLen}}, nil
}

func containsWildcard(topic string) bool {
	for i := 0; i < len(topic); i++ {
		if topic[i] == '+' || topic[i] == '#' {
			return true
		}
	}
	return false
}
