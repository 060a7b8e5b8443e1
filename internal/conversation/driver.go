package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"Healthbite/internal/intake"
	"Healthbite/internal/nutrition"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultMaxTurns caps the replies of one role when the marker never shows up.
	DefaultMaxTurns = 10
	DefaultTimeout  = 60 * time.Second
)

// RoleConfig configures one assistant role.
type RoleConfig struct {
	SystemInstruction string `yaml:"system_instruction"`
	// MaxTurns forces the hand-off after this many replies. Zero means DefaultMaxTurns.
	MaxTurns int `yaml:"max_turns"`
}

// Config configures a Driver.
type Config struct {
	Onboarding RoleConfig
	Engagement RoleConfig
	// Timeout bounds a single completion call.
	Timeout time.Duration
}

// DefaultConfig returns the built-in instructions and limits.
func DefaultConfig() Config {
	return Config{
		Onboarding: RoleConfig{SystemInstruction: DefaultOnboardingInstruction, MaxTurns: DefaultMaxTurns},
		Engagement: RoleConfig{SystemInstruction: DefaultEngagementInstruction, MaxTurns: DefaultMaxTurns},
		Timeout:    DefaultTimeout,
	}
}

func (c Config) role(r Role) RoleConfig {
	var rc RoleConfig
	var instruction string
	switch r {
	case RoleOnboarding:
		rc, instruction = c.Onboarding, DefaultOnboardingInstruction
	case RoleEngagement:
		rc, instruction = c.Engagement, DefaultEngagementInstruction
	}
	if strings.TrimSpace(rc.SystemInstruction) == "" {
		rc.SystemInstruction = instruction
	}
	if rc.MaxTurns <= 0 {
		rc.MaxTurns = DefaultMaxTurns
	}
	return rc
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Option customizes a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for conversation events.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithClock overrides the clock used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// Driver owns one conversation. It processes one message at a time; a message
// that arrives while a completion is in flight is rejected with ErrBusy.
type Driver struct {
	provider CompletionProvider
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
	inflight *semaphore.Weighted

	mu         sync.Mutex
	state      State
	turns      []Turn
	profile    *intake.CustomerProfile
	contexts   map[Role][]Message
	replies    map[Role]int
	seeds      map[Role]string
	mealPlan   string
	extraction *nutrition.Result
	// generation changes on every Reset so late replies can be recognized and dropped.
	generation uint64
	cancel     context.CancelFunc
}

// NewDriver creates a conversation in the onboarding stage.
func NewDriver(provider CompletionProvider, cfg Config, opts ...Option) *Driver {
	d := &Driver{
		provider: provider,
		cfg:      cfg,
		logger:   log.Logger,
		now:      time.Now,
		inflight: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.clearLocked()
	return d
}

// Start opens the conversation with a validated intake profile. The profile is
// stored only if the onboarding role answers.
func (d *Driver) Start(ctx context.Context, profile intake.CustomerProfile) (Snapshot, error) {
	if !profile.Complete() {
		return Snapshot{}, ErrIncompleteProfile
	}
	p := profile.Clone()
	return d.exchange(ctx, p.Summary(), &p)
}

// Send routes a user message to the active role and applies its reply.
func (d *Driver) Send(ctx context.Context, text string) (Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, ErrEmptyMessage
	}
	return d.exchange(ctx, text, nil)
}

func (d *Driver) exchange(ctx context.Context, text string, profile *intake.CustomerProfile) (Snapshot, error) {
	if !d.inflight.TryAcquire(1) {
		return Snapshot{}, ErrBusy
	}
	defer d.inflight.Release(1)

	// 1. Build the request under the lock
	d.mu.Lock()
	if d.state.ActiveRole == StageFinished {
		d.mu.Unlock()
		return Snapshot{}, ErrConversationFinished
	}
	if profile != nil && d.profile != nil {
		d.mu.Unlock()
		return Snapshot{}, ErrProfileExists
	}

	stage := d.state.ActiveRole
	role := stage.Role()
	rc := d.cfg.role(role)

	content := text
	if seed := d.seeds[role]; seed != "" {
		content = seed + "\n\n" + text
	}
	userMsg := Message{Speaker: SpeakerUser, Content: content}
	req := CompletionRequest{
		Role:              role,
		SystemInstruction: rc.SystemInstruction,
		Messages:          append(slices.Clone(d.contexts[role]), userMsg),
	}

	gen := d.generation
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.timeout())
	d.cancel = cancel
	d.mu.Unlock()

	// 2. Call the provider without holding the lock
	d.logger.Debug().Str("role", string(role)).Int("messages", len(req.Messages)).Msg("Requesting completion")
	started := time.Now()
	reply, err := d.provider.Complete(callCtx, req)
	cancel()
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty completion")
	}

	// 3. Apply the reply, unless Reset abandoned this call
	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.generation {
		d.logger.Info().Str("role", string(role)).Msg("Dropping reply of a reset conversation")
		return Snapshot{}, ErrConversationReset
	}
	d.cancel = nil

	if err != nil {
		d.logger.Warn().Err(err).Str("role", string(role)).Dur("elapsed", time.Since(started)).Msg("Completion failed, state unchanged")
		return Snapshot{}, &ProviderError{Role: role, Err: err}
	}

	if profile != nil {
		d.profile = profile
	}
	now := d.now()
	d.turns = append(d.turns,
		Turn{Role: RoleUser, Content: text, CreatedAt: now},
		Turn{Role: role, Content: reply, CreatedAt: now},
	)
	d.contexts[role] = append(d.contexts[role], userMsg, Message{Speaker: SpeakerAssistant, Content: reply})
	delete(d.seeds, role)
	d.replies[role]++

	terminated := IsTerminationMarker(reply)
	d.state.Terminated = terminated
	capped := d.replies[role] >= rc.MaxTurns
	if terminated || capped {
		if capped && !terminated {
			d.logger.Warn().Str("role", string(role)).Int("max_turns", rc.MaxTurns).Msg("Turn cap reached without termination marker, forcing hand-off")
		}
		d.advanceLocked(stage, reply)
	}

	d.logger.Info().
		Str("role", string(role)).
		Str("active_role", string(d.state.ActiveRole)).
		Bool("terminated", terminated).
		Dur("elapsed", time.Since(started)).
		Msg("Reply applied")

	return d.snapshotLocked(), nil
}

// advanceLocked moves the state machine one stage forward.
func (d *Driver) advanceLocked(from Stage, reply string) {
	next := from.next()
	if next.order() <= d.state.ActiveRole.order() {
		return
	}
	d.state.ActiveRole = next

	switch next {
	case StageEngagement:
		d.seeds[RoleEngagement] = d.handoffLocked()
	case StageFinished:
		d.mealPlan = reply
		res := nutrition.Extract(reply)
		d.extraction = &res
		d.logger.Info().Str("extraction", string(res.Status)).Int("records", len(res.Records)).Msg("Meal plan completed")
	}
}

// handoffLocked summarizes onboarding for the first engagement message.
func (d *Driver) handoffLocked() string {
	var b strings.Builder
	b.WriteString(handoffPreamble)
	b.WriteString("\n\n")
	for _, m := range d.contexts[RoleOnboarding] {
		speaker := "Patient"
		if m.Speaker == SpeakerAssistant {
			speaker = "Onboarding assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Reset cancels any pending completion and returns the conversation to its
// initial state in one step.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.generation++
	d.clearLocked()
	d.logger.Info().Msg("Conversation reset")
}

func (d *Driver) clearLocked() {
	d.state = InitialState()
	d.turns = nil
	d.profile = nil
	d.contexts = make(map[Role][]Message)
	d.replies = make(map[Role]int)
	d.seeds = make(map[Role]string)
	d.mealPlan = ""
	d.extraction = nil
}

// Snapshot returns a copy of the conversation.
func (d *Driver) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Driver) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    d.state,
		Turns:    slices.Clone(d.turns),
		MealPlan: d.mealPlan,
	}
	if s.Turns == nil {
		s.Turns = []Turn{}
	}
	if d.profile != nil {
		p := d.profile.Clone()
		s.Profile = &p
	}
	if d.extraction != nil {
		res := *d.extraction
		res.Records = slices.Clone(res.Records)
		s.Extraction = &res
	}
	return s
}

// MealPlan returns the completed meal plan and its extracted data. ok is false
// until the conversation has finished.
func (d *Driver) MealPlan() (plan string, data nutrition.Result, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.ActiveRole != StageFinished || d.extraction == nil {
		return "", nutrition.Result{}, false
	}
	res := *d.extraction
	res.Records = slices.Clone(res.Records)
	return d.mealPlan, res, true
}
