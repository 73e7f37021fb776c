package ensemble

// Producer constructs a fresh Actor instance. It is called once at spawn
// time and again on every restart, so it must not share mutable state
// between instances it produces.
type Producer func() Actor

// Props describes how to construct and run one actor.
type Props struct {
	Producer           Producer
	MailboxConfig      MailboxConfig
	BackpressureConfig BackpressureConfig
	DispatcherClass    DispatcherClass
	Priority           Priority
	SupervisorStrategy SupervisorStrategy
	Address            string // non-empty routes Spawn through a Transport
}

// PropsOption configures a Props at construction time.
type PropsOption func(*Props)

// NewProps builds a Props around producer with default mailbox/backpressure
// configuration, applying any options in order.
func NewProps(producer Producer, opts ...PropsOption) *Props {
	p := &Props{
		Producer:           producer,
		MailboxConfig:      DefaultMailboxConfig(),
		BackpressureConfig: DefaultBackpressureConfig(),
		DispatcherClass:    ClassDefault,
		Priority:           PriorityNormal,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithMailboxConfig(cfg MailboxConfig) PropsOption {
	return func(p *Props) { p.MailboxConfig = cfg }
}

func WithBackpressureConfig(cfg BackpressureConfig) PropsOption {
	return func(p *Props) { p.BackpressureConfig = cfg }
}

func WithDispatcherClass(c DispatcherClass) PropsOption {
	return func(p *Props) { p.DispatcherClass = c }
}

func WithPriority(pr Priority) PropsOption {
	return func(p *Props) { p.Priority = pr }
}

func WithSupervisorStrategy(s SupervisorStrategy) PropsOption {
	return func(p *Props) { p.SupervisorStrategy = s }
}

func WithRemoteAddress(address string) PropsOption {
	return func(p *Props) { p.Address = address }
}
