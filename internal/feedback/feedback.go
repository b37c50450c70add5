package feedback

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
)

// Summary is the data handed to the text generator after a commit. The core
// never blocks on generation: dispatch happens on a goroutine strictly after
// the transaction has closed.
type Summary struct {
	UserID        string   `json:"user_id"`
	DayKey        string   `json:"day_key"`
	Score         float64  `json:"score"`
	CurrentStreak int      `json:"current_streak"`
	WasReset      bool     `json:"was_reset"`
	NewBadges     []string `json:"new_badges,omitempty"`
}

type Generator interface {
	Generate(ctx context.Context, s Summary) (string, error)
}

// OpenAIGenerator produces the personalized message via a hosted model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, s Summary) (string, error) {
	prompt := fmt.Sprintf(
		"Write two encouraging sentences for a user who checked in on %s with a %.0f%% compliance score and a %d-day streak.",
		s.DayKey, s.Score, s.CurrentStreak)
	if s.WasReset {
		prompt += " Their streak just reset, acknowledge it without guilt-tripping."
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// Dispatcher fans feedback generation out asynchronously and logs the
// outcome. Deliver is a seam for the message transport; by default it only
// logs.
type Dispatcher struct {
	gen     Generator
	logger  internal.Logger
	timeout time.Duration
	Deliver func(userID, text string)
}

func NewDispatcher(gen Generator, logger internal.Logger) *Dispatcher {
	return &Dispatcher{gen: gen, logger: logger, timeout: 30 * time.Second}
}

// Dispatch never blocks the caller. A nil generator (no API key configured)
// is a no-op.
func (d *Dispatcher) Dispatch(s Summary) {
	if d == nil || d.gen == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		text, err := d.gen.Generate(ctx, s)
		if err != nil {
			d.logger.Warnf("feedback generation failed for user %s: %v", s.UserID, err)
			return
		}
		if d.Deliver != nil {
			d.Deliver(s.UserID, text)
			return
		}
		d.logger.Infof("feedback for user %s: %s", s.UserID, text)
	}()
}
