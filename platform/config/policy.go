package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable workflow orchestration parameters. Nothing in the
// transition logic hardcodes these; they come from defaults, an optional YAML
// policy file (WORKFLOW_POLICY_PATH), and finally environment overrides, in
// that order of precedence.
type Policy struct {
	// ShortlistTopK is how many scored leads each shortlist pass promotes.
	ShortlistTopK int
	// ShortlistMinScore is the minimum intent score eligible for promotion.
	ShortlistMinScore float64
	// MaxRetries bounds transient-failure retries per stage before FAILED.
	MaxRetries int
	// BackoffInitial and BackoffMax shape the retry delay curve.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// ReplyMaxWait is how long a sent lead may sit awaiting a reply before
	// it is abandoned.
	ReplyMaxWait time.Duration
	// TickInterval is the orchestrator re-evaluation period.
	TickInterval time.Duration
	// PollInterval is the inbox reply-poll period.
	PollInterval time.Duration
	// PortTimeout bounds every external port call.
	PortTimeout time.Duration
	// BatchLimit caps how many leads one tick advances concurrently.
	BatchLimit int
	// MeetingDuration is the default booked slot length.
	MeetingDuration time.Duration
}

// DefaultPolicy returns the policy used when nothing overrides it.
func DefaultPolicy() Policy {
	return Policy{
		ShortlistTopK:     2,
		ShortlistMinScore: 0.0,
		MaxRetries:        3,
		BackoffInitial:    time.Second,
		BackoffMax:        time.Minute,
		ReplyMaxWait:      14 * 24 * time.Hour,
		TickInterval:      5 * time.Second,
		PollInterval:      10 * time.Second,
		PortTimeout:       30 * time.Second,
		BatchLimit:        4,
		MeetingDuration:   time.Hour,
	}
}

// policyFile is the YAML shape; pointer fields so absent keys keep defaults.
type policyFile struct {
	ShortlistTopK     *int          `yaml:"shortlist_top_k"`
	ShortlistMinScore *float64      `yaml:"shortlist_min_score"`
	MaxRetries        *int          `yaml:"max_retries"`
	BackoffInitial    *yamlDuration `yaml:"backoff_initial"`
	BackoffMax        *yamlDuration `yaml:"backoff_max"`
	ReplyMaxWait      *yamlDuration `yaml:"reply_max_wait"`
	TickInterval      *yamlDuration `yaml:"tick_interval"`
	PollInterval      *yamlDuration `yaml:"poll_interval"`
	PortTimeout       *yamlDuration `yaml:"port_timeout"`
	BatchLimit        *int          `yaml:"batch_limit"`
	MeetingDuration   *yamlDuration `yaml:"meeting_duration"`
}

// yamlDuration accepts Go duration strings ("30s", "336h") in YAML.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

func loadPolicy() (Policy, error) {
	p := DefaultPolicy()

	if path := getEnv("WORKFLOW_POLICY_PATH", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Policy{}, fmt.Errorf("read workflow policy: %w", err)
		}
		var f policyFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Policy{}, fmt.Errorf("parse workflow policy: %w", err)
		}
		applyPolicyFile(&p, f)
	}

	applyPolicyEnv(&p)

	if p.ShortlistTopK < 1 {
		return Policy{}, fmt.Errorf("shortlist_top_k must be at least 1")
	}
	if p.MaxRetries < 1 {
		return Policy{}, fmt.Errorf("max_retries must be at least 1")
	}
	if p.BatchLimit < 1 {
		return Policy{}, fmt.Errorf("batch_limit must be at least 1")
	}

	return p, nil
}

func applyPolicyFile(p *Policy, f policyFile) {
	if f.ShortlistTopK != nil {
		p.ShortlistTopK = *f.ShortlistTopK
	}
	if f.ShortlistMinScore != nil {
		p.ShortlistMinScore = *f.ShortlistMinScore
	}
	if f.MaxRetries != nil {
		p.MaxRetries = *f.MaxRetries
	}
	if f.BackoffInitial != nil {
		p.BackoffInitial = time.Duration(*f.BackoffInitial)
	}
	if f.BackoffMax != nil {
		p.BackoffMax = time.Duration(*f.BackoffMax)
	}
	if f.ReplyMaxWait != nil {
		p.ReplyMaxWait = time.Duration(*f.ReplyMaxWait)
	}
	if f.TickInterval != nil {
		p.TickInterval = time.Duration(*f.TickInterval)
	}
	if f.PollInterval != nil {
		p.PollInterval = time.Duration(*f.PollInterval)
	}
	if f.PortTimeout != nil {
		p.PortTimeout = time.Duration(*f.PortTimeout)
	}
	if f.BatchLimit != nil {
		p.BatchLimit = *f.BatchLimit
	}
	if f.MeetingDuration != nil {
		p.MeetingDuration = time.Duration(*f.MeetingDuration)
	}
}

func applyPolicyEnv(p *Policy) {
	if v, ok := os.LookupEnv("SHORTLIST_TOP_K"); ok {
		p.ShortlistTopK = int(mustInt64(v))
	}
	if v, ok := os.LookupEnv("SHORTLIST_MIN_SCORE"); ok {
		p.ShortlistMinScore = mustFloat(v)
	}
	if v, ok := os.LookupEnv("WORKFLOW_MAX_RETRIES"); ok {
		p.MaxRetries = int(mustInt64(v))
	}
	if v, ok := os.LookupEnv("BACKOFF_INITIAL"); ok {
		p.BackoffInitial = mustDuration(v)
	}
	if v, ok := os.LookupEnv("BACKOFF_MAX"); ok {
		p.BackoffMax = mustDuration(v)
	}
	if v, ok := os.LookupEnv("REPLY_MAX_WAIT"); ok {
		p.ReplyMaxWait = mustDuration(v)
	}
	if v, ok := os.LookupEnv("TICK_INTERVAL"); ok {
		p.TickInterval = mustDuration(v)
	}
	if v, ok := os.LookupEnv("REPLY_POLL_INTERVAL"); ok {
		p.PollInterval = mustDuration(v)
	}
	if v, ok := os.LookupEnv("PORT_TIMEOUT"); ok {
		p.PortTimeout = mustDuration(v)
	}
	if v, ok := os.LookupEnv("WORKFLOW_BATCH_LIMIT"); ok {
		p.BatchLimit = int(mustInt64(v))
	}
	if v, ok := os.LookupEnv("MEETING_DURATION"); ok {
		p.MeetingDuration = mustDuration(v)
	}
}
