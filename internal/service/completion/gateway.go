package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// ErrUnavailable is the sentinel returned once every attempt, including the
// fallback model's, has been spent. Callers substitute scripted filler text
// instead of surfacing it to the participant.
var ErrUnavailable = errors.New("completion unavailable after retries")

// errSwitchModel marks a content-policy rejection; the primary model is
// abandoned and the whole attempt sequence restarts on the fallback.
var errSwitchModel = errors.New("content policy rejection")

// ChatModel is the slice of the eino model surface the gateway needs.
// *ark.ChatModel satisfies it, as do test stubs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Model pairs a chat model with the name it is invoked under.
type Model struct {
	Name   string
	Client ChatModel
}

// Reply is a successful completion.
type Reply struct {
	Content string
	Model   string
	Usage   *schema.TokenUsage
}

// Config holds the retry policy. Zero values fall back to defaults.
type Config struct {
	// Budget is the attempt count per model, default 5.
	Budget int
	// InitialBackoff seeds the doubling backoff for transient failures,
	// default 500ms (so 0.5s, 1s, 2s, 4s between the five attempts).
	InitialBackoff time.Duration
	// MalformedDelay is the fixed pause before retrying a malformed-request
	// failure, default 250ms. Some transient provider faults surface as
	// this class, which is why they get retried at all.
	MalformedDelay time.Duration
	// Sleep is injectable for tests; default waits on a timer and the ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.Budget <= 0 {
		c.Budget = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MalformedDelay <= 0 {
		c.MalformedDelay = 250 * time.Millisecond
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Gateway wraps the remote chat-completion call with bounded retries and a
// one-shot fallback model for content-policy rejections.
type Gateway struct {
	primary  Model
	fallback Model
	cfg      Config
	logger   *zap.Logger
}

// NewGateway builds a gateway over a primary and a fallback model.
func NewGateway(primary, fallback Model, cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(zap.String("component", "completion_gateway")),
	}
}

// Complete runs the full attempt sequence against the primary model and, on
// a content-policy rejection, once more against the fallback. Exhausting
// either sequence yields ErrUnavailable rather than an error the caller
// would have to interpret.
func (g *Gateway) Complete(ctx context.Context, messages []*schema.Message) (Reply, error) {
	reply, err := g.completeModel(ctx, g.primary, messages)
	if err == nil {
		return reply, nil
	}
	if !errors.Is(err, errSwitchModel) {
		return Reply{}, err
	}

	g.logger.Warn("switching to fallback model",
		zap.String("primary", g.primary.Name),
		zap.String("fallback", g.fallback.Name))

	reply, err = g.completeModel(ctx, g.fallback, messages)
	if err != nil {
		// The fallback was the last resort: whatever the class, the sequence
		// is exhausted and callers get the one sentinel they understand.
		return Reply{}, fmt.Errorf("%w: fallback %s: %v", ErrUnavailable, g.fallback.Name, err)
	}
	return reply, nil
}

// completeModel runs up to cfg.Budget attempts on a single model.
func (g *Gateway) completeModel(ctx context.Context, m Model, messages []*schema.Message) (Reply, error) {
	backoff := g.cfg.InitialBackoff

	for attempt := 1; attempt <= g.cfg.Budget; attempt++ {
		resp, err := m.Client.Generate(ctx, messages)
		if err == nil {
			reply := Reply{Content: resp.Content, Model: m.Name}
			if resp.ResponseMeta != nil {
				reply.Usage = resp.ResponseMeta.Usage
			}
			g.logAttempt(m.Name, attempt, "success", nil, reply.Usage)
			return reply, nil
		}

		class := classify(err)
		g.logAttempt(m.Name, attempt, class.String(), err, nil)

		switch class {
		case classContentPolicy:
			return Reply{}, fmt.Errorf("%w: %v", errSwitchModel, err)
		case classAuth, classUnknown:
			return Reply{}, fmt.Errorf("completion failed on %s: %w", m.Name, err)
		case classMalformed:
			if attempt == g.cfg.Budget {
				return Reply{}, ErrUnavailable
			}
			if sleepErr := g.cfg.Sleep(ctx, g.cfg.MalformedDelay); sleepErr != nil {
				return Reply{}, sleepErr
			}
		default: // transient
			if attempt == g.cfg.Budget {
				return Reply{}, ErrUnavailable
			}
			if sleepErr := g.cfg.Sleep(ctx, backoff); sleepErr != nil {
				return Reply{}, sleepErr
			}
			backoff *= 2
		}
	}

	return Reply{}, ErrUnavailable
}

func (g *Gateway) logAttempt(modelName string, attempt int, outcome string, err error, usage *schema.TokenUsage) {
	fields := []zap.Field{
		zap.String("model", modelName),
		zap.Int("attempt", attempt),
		zap.String("outcome", outcome),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if usage != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", usage.PromptTokens),
			zap.Int("completion_tokens", usage.CompletionTokens))
	}
	if err != nil {
		g.logger.Warn("completion attempt", fields...)
		return
	}
	g.logger.Info("completion attempt", fields...)
}
