package resilience

import "time"

// Operation names shared by the adapters and the default policy table.
const (
	OperationAnthropic   = "anthropic.messages"
	OperationGemini      = "gemini.generate"
	OperationOllamaChat  = "ollama.chat"
	OperationOllamaTags  = "ollama.tags"
	OperationTranscribe  = "whisper.transcribe"
	OperationNATSPublish = "nats.publish"
)

// Config holds the fallback policy plus per-operation overrides.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32

	Operations map[string]Policy
}

// Policy is the retry, throttle and breaker setup for one operation.
// Zero fields inherit from the executor's Config.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// RequestsPerMinute throttles every attempt; zero means unthrottled.
	RequestsPerMinute float64
	Burst             int

	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

// ModelCallPolicy is for billed hosted model APIs.
func ModelCallPolicy() Policy {
	return Policy{
		MaxAttempts:         3,
		InitialBackoff:      2 * time.Second,
		MaxBackoff:          20 * time.Second,
		Multiplier:          3,
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.6,
		BreakerOpenTimeout:  2 * time.Minute,
	}
}

// LocalModelPolicy fits a self-hosted model server that may still be loading weights.
func LocalModelPolicy() Policy {
	return Policy{
		MaxAttempts:         4,
		InitialBackoff:      time.Second,
		MaxBackoff:          10 * time.Second,
		Multiplier:          2,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.8,
		BreakerOpenTimeout:  time.Minute,
	}
}

// QueuePolicy retries publishes quickly while the client reconnects.
func QueuePolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		InitialBackoff:      50 * time.Millisecond,
		MaxBackoff:          time.Second,
		Multiplier:          2,
		BreakerMinRequests:  20,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  10 * time.Second,
	}
}

// WithRateLimit returns p throttled to perMinute calls.
func (p Policy) WithRateLimit(perMinute float64, burst int) Policy {
	p.RequestsPerMinute = perMinute
	p.Burst = burst
	return p
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,

		Operations: map[string]Policy{
			OperationAnthropic:   ModelCallPolicy(),
			OperationGemini:      ModelCallPolicy(),
			OperationOllamaChat:  LocalModelPolicy(),
			OperationTranscribe:  LocalModelPolicy(),
			OperationNATSPublish: QueuePolicy(),
		},
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

func (c Config) basePolicy() Policy {
	return Policy{
		MaxAttempts:         c.RetryMaxAttempts,
		InitialBackoff:      c.RetryInitialBackoff,
		MaxBackoff:          c.RetryMaxBackoff,
		Multiplier:          c.RetryMultiplier,
		BreakerMinRequests:  c.BreakerMinRequests,
		BreakerFailureRatio: c.BreakerFailureRatio,
		BreakerOpenTimeout:  c.BreakerOpenTimeout,
	}
}

func (p Policy) inherit(base Policy) Policy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = base.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = base.InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = base.MaxBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.Multiplier < 1.0 {
		out.Multiplier = base.Multiplier
	}
	if out.RequestsPerMinute < 0 {
		out.RequestsPerMinute = 0
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = base.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = base.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = base.BreakerOpenTimeout
	}
	return out
}
