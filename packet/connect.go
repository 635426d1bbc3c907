package packet

import "github.com/wireloop/mqtt/encoding"

const protocolName = "MQTT"
const protocolLevel = 4

// Connect opens an MQTT session (MQTT 3.1.1 §3.1). Build one with
// NewConnectBuilder; parse one from the wire with Decode.
type Connect struct{ frame }

func (Connect) Type() Type { return CONNECT }

// connectFlags, decoded once at parse time (or computed once at build
// time), backs every Connect accessor below.
type connectFlags struct {
	username     bool
	password     bool
	willRetain   bool
	willQoS      QoS
	will         bool
	cleanSession bool
}

func decodeConnectFlags(b byte) connectFlags {
	return connectFlags{
		username:     b&0x80 != 0,
		password:     b&0x40 != 0,
		willRetain:   b&0x20 != 0,
		willQoS:      QoS((b & 0x18) >> 3),
		will:         b&0x04 != 0,
		cleanSession: b&0x02 != 0,
	}
}

func (f connectFlags) encode() byte {
	var b byte
	if f.username {
		b |= 0x80
	}
	if f.password {
		b |= 0x40
	}
	if f.will && f.willRetain {
		b |= 0x20
	}
	if f.will {
		b |= byte(f.willQoS) << 3
		b |= 0x04
	}
	if f.cleanSession {
		b |= 0x02
	}
	return b
}

func (c Connect) flags() connectFlags {
	return decodeConnectFlags(c.VariableHeader()[7])
}

// KeepAlive returns the keep-alive interval in seconds; 0 disables the
// keepalive mechanism.
func (c Connect) KeepAlive() uint16 {
	v, _ := encoding.DecodeUint16(c.VariableHeader()[8:10])
	return v
}

// CleanSession reports the clean-session flag.
func (c Connect) CleanSession() bool { return c.flags().cleanSession }

// payloadFields walks the payload once, returning the offsets of each
// field present according to flags. Matches the fixed field order of
// MQTT 3.1.1 §3.1.3: client id, will topic, will message, username,
// password.
func (c Connect) payloadFields() (clientID string, willTopic, willMessage, username string, password []byte) {
	p := c.Payload()
	f := c.flags()

	clientID, n, _ := encoding.DecodeString(p)
	p = p[n:]

	if f.will {
		willTopic, n, _ = encoding.DecodeString(p)
		p = p[n:]
		var payload []byte
		payload, n, _ = encoding.DecodeBytes(p)
		willMessage = string(payload)
		p = p[n:]
	}

	if f.username {
		username, n, _ = encoding.DecodeString(p)
		p = p[n:]
	}

	if f.password {
		password, n, _ = encoding.DecodeBytes(p)
		p = p[n:]
	}

	return clientID, willTopic, willMessage, username, password
}

// ClientID returns the client identifier (possibly empty).
func (c Connect) ClientID() string {
	id, _, _, _, _ := c.payloadFields()
	return id
}

// Will returns the will topic, will payload, will QoS, will retain flag,
// and whether a will is present at all.
func (c Connect) Will() (topic string, payload []byte, qos QoS, retain bool, ok bool) {
	f := c.flags()
	if !f.will {
		return "", nil, 0, false, false
	}
	_, topic, message, _, _ := c.payloadFields()
	return topic, []byte(message), f.willQoS, f.willRetain, true
}

// Username returns the username and whether one was present.
func (c Connect) Username() (string, bool) {
	f := c.flags()
	if !f.username {
		return "", false
	}
	_, _, _, username, _ := c.payloadFields()
	return username, true
}

// Password returns the password and whether one was present.
func (c Connect) Password() ([]byte, bool) {
	f := c.flags()
	if !f.password {
		return nil, false
	}
	_, _, _, _, password := c.payloadFields()
	return password, true
}

// --- Builder -----------------------------------------------------------
//
// The typestate below makes unrepresentable CONNECT packets unreachable
// through the API: Password is only a method on a builder that already
// went through Username, and WillQoS/RetainWill are only methods on a
// builder that already went through Will. Build() is therefore infallible
// for every value the typed API can produce.

type connectState struct {
	clientID     string
	keepAlive    uint16
	cleanSession bool
	cleanSessSet bool

	will        bool
	willTopic   string
	willMessage []byte
	willQoS     QoS
	willRetain  bool

	username     bool
	usernameVal  string
	password     bool
	passwordVal  []byte
}

// ConnectBuilder is the entry point of the typestate chain.
type ConnectBuilder struct{ s *connectState }

// NewConnectBuilder starts building a Connect packet.
func NewConnectBuilder() *ConnectBuilder {
	return &ConnectBuilder{s: &connectState{}}
}

func (b *ConnectBuilder) ClientID(id string) *ConnectBuilder {
	b.s.clientID = id
	return b
}

func (b *ConnectBuilder) KeepAlive(seconds uint16) *ConnectBuilder {
	b.s.keepAlive = seconds
	return b
}

func (b *ConnectBuilder) CleanSession(clean bool) *ConnectBuilder {
	b.s.cleanSession = clean
	b.s.cleanSessSet = true
	return b
}

// Will records a will topic/payload at QoS0/no-retain; chain WillQoS and/or
// RetainWill on the returned builder to change those defaults.
func (b *ConnectBuilder) Will(topic string, payload []byte) *ConnectWillBuilder {
	b.s.will = true
	b.s.willTopic = topic
	b.s.willMessage = payload
	return &ConnectWillBuilder{s: b.s}
}

// Username records a username; chain Password on the returned builder to
// also set a password (a password is only representable once a username
// is present, per MQTT 3.1.1 §3.1.2.3).
func (b *ConnectBuilder) Username(username string) *ConnectAuthBuilder {
	b.s.username = true
	b.s.usernameVal = username
	return &ConnectAuthBuilder{s: b.s}
}

// Build emits the wire bytes and returns the Connect packet. Infallible.
func (b *ConnectBuilder) Build() *Connect { return buildConnect(b.s) }

// ConnectWillBuilder is reachable only after Will(...).
type ConnectWillBuilder struct{ s *connectState }

func (b *ConnectWillBuilder) WillQoS(qos QoS) *ConnectWillBuilder {
	b.s.willQoS = qos
	return b
}

func (b *ConnectWillBuilder) RetainWill(retain bool) *ConnectWillBuilder {
	b.s.willRetain = retain
	return b
}

func (b *ConnectWillBuilder) ClientID(id string) *ConnectWillBuilder {
	b.s.clientID = id
	return b
}

func (b *ConnectWillBuilder) KeepAlive(seconds uint16) *ConnectWillBuilder {
	b.s.keepAlive = seconds
	return b
}

func (b *ConnectWillBuilder) CleanSession(clean bool) *ConnectWillBuilder {
	b.s.cleanSession = clean
	b.s.cleanSessSet = true
	return b
}

func (b *ConnectWillBuilder) Username(username string) *ConnectWillAuthBuilder {
	b.s.username = true
	b.s.usernameVal = username
	return &ConnectWillAuthBuilder{s: b.s}
}

func (b *ConnectWillBuilder) Build() *Connect { return buildConnect(b.s) }

// ConnectAuthBuilder is reachable only after Username(...).
type ConnectAuthBuilder struct{ s *connectState }

func (b *ConnectAuthBuilder) Password(password []byte) *ConnectAuthBuilder {
	b.s.password = true
	b.s.passwordVal = password
	return b
}

func (b *ConnectAuthBuilder) Will(topic string, payload []byte) *ConnectWillAuthBuilder {
	b.s.will = true
	b.s.willTopic = topic
	b.s.willMessage = payload
	return &ConnectWillAuthBuilder{s: b.s}
}

func (b *ConnectAuthBuilder) ClientID(id string) *ConnectAuthBuilder {
	b.s.clientID = id
	return b
}

func (b *ConnectAuthBuilder) KeepAlive(seconds uint16) *ConnectAuthBuilder {
	b.s.keepAlive = seconds
	return b
}

func (b *ConnectAuthBuilder) CleanSession(clean bool) *ConnectAuthBuilder {
	b.s.cleanSession = clean
	b.s.cleanSessSet = true
	return b
}

func (b *ConnectAuthBuilder) Build() *Connect { return buildConnect(b.s) }

// ConnectWillAuthBuilder is reachable only once both Will(...) and
// Username(...) have been called, in either order.
type ConnectWillAuthBuilder struct{ s *connectState }

func (b *ConnectWillAuthBuilder) WillQoS(qos QoS) *ConnectWillAuthBuilder {
	b.s.willQoS = qos
	return b
}

func (b *ConnectWillAuthBuilder) RetainWill(retain bool) *ConnectWillAuthBuilder {
	b.s.willRetain = retain
	return b
}

func (b *ConnectWillAuthBuilder) Password(password []byte) *ConnectWillAuthBuilder {
	b.s.password = true
	b.s.passwordVal = password
	return b
}

func (b *ConnectWillAuthBuilder) ClientID(id string) *ConnectWillAuthBuilder {
	b.s.clientID = id
	return b
}

func (b *ConnectWillAuthBuilder) KeepAlive(seconds uint16) *ConnectWillAuthBuilder {
	b.s.keepAlive = seconds
	return b
}

func (b *ConnectWillAuthBuilder) CleanSession(clean bool) *ConnectWillAuthBuilder {
	b.s.cleanSession = clean
	b.s.cleanSessSet = true
	return b
}

func (b *ConnectWillAuthBuilder) Build() *Connect { return buildConnect(b.s) }

func buildConnect(s *connectState) *Connect {
	cleanSession := s.cleanSession
	if s.clientID == "" {
		// MQTT 3.1.1 §3.1.3.1: a server must respond to an empty client id
		// with clean session == 0 refused; compliant clients always set
		// clean session when asking for one.
		cleanSession = true
	} else if !s.cleanSessSet {
		cleanSession = true
	}

	flags := connectFlags{
		username:     s.username,
		password:     s.password,
		willRetain:   s.will && s.willRetain,
		willQoS:      s.willQoS,
		will:         s.will,
		cleanSession: cleanSession,
	}

	body := make([]byte, 0, 32)
	body = append(body, encoding.EncodeString(protocolName)...)
	body = append(body, protocolLevel)
	body = append(body, flags.encode())
	body = append(body, encoding.EncodeUint16(s.keepAlive)...)

	body = append(body, encoding.EncodeString(s.clientID)...)
	if s.will {
		body = append(body, encoding.EncodeString(s.willTopic)...)
		body = append(body, encoding.EncodeBytes(s.willMessage)...)
	}
	if s.username {
		body = append(body, encoding.EncodeString(s.usernameVal)...)
	}
	if s.password {
		body = append(body, encoding.EncodeBytes(s.passwordVal)...)
	}

	raw, headerLen := assemble(CONNECT, 0, body)
	return &Connect{frame{raw: raw, headerLen: headerLen, varHeaderLen: 10}}
}

func parseConnect(raw []byte, headerLen int) (Packet, error) {
	if len(raw) < headerLen+10 {
		return nil, &encoding.DecodingError{Kind: encoding.NotEnoughBytes, Min: headerLen + 10, Actual: len(raw)}
	}
	vh := raw[headerLen : headerLen+10]

	name, n, err := encoding.DecodeString(vh)
	if err != nil {
		return nil, err
	}
	if name != protocolName || n != 6 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT protocol name must be \"MQTT\""}
	}

	if vh[6] != protocolLevel {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT protocol level must be 4"}
	}

	flagsByte := vh[7]
	if flagsByte&0x01 != 0 {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT flags reserved bit must be 0"}
	}
	flags := decodeConnectFlags(flagsByte)
	if !flags.will && (flags.willQoS != QoS0 || flags.willRetain) {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT will-qos/will-retain set without will-flag"}
	}
	if !flags.willQoS.IsValid() {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT will-qos out of range"}
	}
	if flags.password && !flags.username {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT password set without username"}
	}

	f := frame{raw: raw, headerLen: headerLen, varHeaderLen: 10}
	c := Connect{f}

	p := raw[headerLen+10:]
	clientID, n, err := encoding.DecodeString(p)
	if err != nil {
		return nil, err
	}
	p = p[n:]

	if clientID == "" && !flags.cleanSession {
		return nil, &encoding.DecodingError{Kind: encoding.InvalidValue, Reason: "CONNECT with empty client id must set clean session"}
	}

	if flags.will {
		_, n, err = encoding.DecodeString(p)
		if err != nil {
			return nil, err
		}
		p = p[n:]
		_, n, err = encoding.DecodeBytes(p)
		if err != nil {
			return nil, err
		}
		p = p[n:]
	}

	if flags.username {
		_, n, err = encoding.DecodeString(p)
		if err != nil {
			return nil, err
		}
		p = p[n:]
	}

	if flags.password {
		_, n, err = encoding.DecodeBytes(p)
		if err != nil {
			return nil, err
		}
		p = p[n:]
	}

	if len(p) != 0 {
		return nil, encoding.ErrTooManyBytes
	}

	return &c, nil
}
