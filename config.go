package ensemble

import "time"

// MailboxConfig controls how a process's mailbox is constructed.
type MailboxConfig struct {
	QueueType       string // "default", "priority", or "lock-free" — informational, all backed by gammazero/deque today
	InitialCapacity int
}

// BackpressureStrategy names how a full mailbox handles a new submission.
type BackpressureStrategy int

const (
	DropNew BackpressureStrategy = iota
	DropOld
	Throw
	Wait
)

func (s BackpressureStrategy) String() string {
	switch s {
	case DropNew:
		return "drop_new"
	case DropOld:
		return "drop_old"
	case Throw:
		return "throw"
	case Wait:
		return "wait"
	default:
		return "unknown"
	}
}

// BackpressureConfig tunes a per-actor BackpressureController.
type BackpressureConfig struct {
	MaxQueueSize       int
	HighWatermarkRatio float64
	LowWatermarkRatio  float64
	Strategy           BackpressureStrategy
	WaitTimeout        time.Duration
}

// DispatcherType selects which Dispatcher implementation a System runs.
type DispatcherType int

const (
	DispatcherBasic DispatcherType = iota
	DispatcherLayered
	DispatcherAdaptive
)

// DispatcherClass buckets actors by workload shape for the layered dispatcher.
type DispatcherClass int

const (
	ClassDefault DispatcherClass = iota
	ClassCPUIntensive
	ClassIOIntensive
	ClassLowLatency
	ClassBatch
)

var allDispatcherClasses = []DispatcherClass{
	ClassDefault, ClassCPUIntensive, ClassIOIntensive, ClassLowLatency, ClassBatch,
}

// DispatcherConfig tunes a System's Dispatcher.
type DispatcherConfig struct {
	Type             DispatcherType
	BatchSize        int
	ClassConcurrency map[DispatcherClass]int
	ClassMinConcurrency map[DispatcherClass]int
	ClassMaxConcurrency map[DispatcherClass]int
	MetricsInterval  time.Duration
	Debug            bool
}

// RouterStrategyKind selects a Router's routing algorithm.
type RouterStrategyKind int

const (
	StrategyRoundRobin RouterStrategyKind = iota
	StrategyRandom
	StrategyBroadcast
	StrategyConsistentHash
	StrategyWeightedRoundRobin
)

// RouterConfig describes a Router's initial construction.
type RouterConfig struct {
	Strategy     RouterStrategyKind
	Routees      []*PID
	HashKeyFunc  func(e *Envelope) string
	VirtualNodes int
	Weights      map[string]int
}

// SystemConfig tunes process-wide behavior of a System.
type SystemConfig struct {
	EnableMessagePipeline bool
	EnableMetrics         bool
	EnableMessageLogging  bool
	LogLevel              string // "debug", "info", "warn", "error"
	DeadLetterCapacity    int
	ShutdownTimeout       time.Duration
}

// DefaultMailboxConfig returns sane production defaults for a single
// actor's mailbox.
func DefaultMailboxConfig() MailboxConfig {
	return MailboxConfig{QueueType: "default", InitialCapacity: 16}
}

// DefaultBackpressureConfig is a generous, rarely-triggered default.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		MaxQueueSize:       1000,
		HighWatermarkRatio: 0.8,
		LowWatermarkRatio:  0.2,
		Strategy:           DropOld,
		WaitTimeout:        0,
	}
}

// DefaultDispatcherConfig sizes each class for a handful of concurrent workers.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Type:      DispatcherBasic,
		BatchSize: DefaultMailboxBatchSize,
		ClassConcurrency: map[DispatcherClass]int{
			ClassDefault:      8,
			ClassCPUIntensive: 4,
			ClassIOIntensive:  16,
			ClassLowLatency:   8,
			ClassBatch:        2,
		},
		ClassMinConcurrency: map[DispatcherClass]int{
			ClassDefault: 2, ClassCPUIntensive: 1, ClassIOIntensive: 2, ClassLowLatency: 2, ClassBatch: 1,
		},
		ClassMaxConcurrency: map[DispatcherClass]int{
			ClassDefault: 16, ClassCPUIntensive: 8, ClassIOIntensive: 32, ClassLowLatency: 16, ClassBatch: 4,
		},
		MetricsInterval: 5 * time.Second,
	}
}

// DefaultRouterConfig defaults to round-robin with no routees.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{Strategy: StrategyRoundRobin, VirtualNodes: 100}
}

// DefaultSystemConfig is tuned for production: pipeline and metrics on,
// quiet logging, a generous dead-letter buffer.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		EnableMessagePipeline: true,
		EnableMetrics:         true,
		EnableMessageLogging:  false,
		LogLevel:              "info",
		DeadLetterCapacity:    10000,
		ShutdownTimeout:       5 * time.Second,
	}
}

// DevelopmentSystemConfig favors fast feedback in tests: verbose logging,
// a small dead-letter buffer, quick shutdown. It does not change mailbox
// sizes; backpressure limits come from each actor's Props.
func DevelopmentSystemConfig() SystemConfig {
	return SystemConfig{
		EnableMessagePipeline: true,
		EnableMetrics:         false,
		EnableMessageLogging:  true,
		LogLevel:              "debug",
		DeadLetterCapacity:    100,
		ShutdownTimeout:       1 * time.Second,
	}
}
