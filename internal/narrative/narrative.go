// Package narrative produces a short written summary of a demand series.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/lox/medcast/internal/demand"
	"github.com/lox/medcast/internal/logging"
	"github.com/lox/medcast/internal/models"
)

var ErrNotConfigured = errors.New("narrative: no API key configured")

const (
	SourceModel = "model"
	SourceRules = "rules"
)

// Insight is a summary sentence and where it came from.
type Insight struct {
	Text   string        `json:"text"`
	Source string        `json:"source"`
	Shift  *demand.Shift `json:"shift,omitempty"`
}

// Request describes the series to summarize.
type Request struct {
	Medication   string
	Municipality string
	Period       models.PeriodType
	Series       demand.Series
}

// Writer summarizes series with a chat model, falling back to the
// rule-based shift insight when the model is unavailable.
type Writer struct {
	client *openai.Client
	model  openai.ChatModel
	log    *zap.Logger
}

// New creates a Writer. An empty apiKey leaves the model disabled.
func New(apiKey string, logger *zap.Logger, opts ...option.RequestOption) *Writer {
	w := &Writer{model: openai.ChatModelGPT4oMini, log: logging.OrNop(logger).Named("narrative")}
	if apiKey != "" {
		c := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
		w.client = &c
	}
	return w
}

// Summarize never fails; model errors are logged and the rules are used.
func (w *Writer) Summarize(ctx context.Context, req Request) Insight {
	fallback := Fallback(req)
	text, err := w.generate(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) {
			w.log.Warn("narrative generation failed", zap.Error(err))
		}
		return fallback
	}
	return Insight{Text: text, Source: SourceModel, Shift: fallback.Shift}
}

func (w *Writer) generate(ctx context.Context, req Request) (string, error) {
	if w.client == nil {
		return "", ErrNotConfigured
	}

	resp, err := w.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: w.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You write one or two plain sentences for pharmacy supply planners. Mention the direction and size of the expected change. Do not give medical advice."),
			openai.UserMessage(prompt(req)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s demand in %s (%s).\n", req.Medication, req.Municipality, strings.ToLower(req.Period.Title()))
	for _, p := range req.Series.Previous {
		fmt.Fprintf(&b, "%s: %.1f\n", p.Label, p.Y)
	}
	for _, p := range req.Series.Upcoming {
		fmt.Fprintf(&b, "%s (forecast", p.Label)
		if p.Confidence != nil {
			fmt.Fprintf(&b, ", %.0f%% confidence", *p.Confidence)
		}
		fmt.Fprintf(&b, "): %.1f\n", p.Y)
	}
	return b.String()
}

// Fallback builds the rule-based insight from the series alone.
func Fallback(req Request) Insight {
	if shift, ok := demand.DetectShift(req.Series); ok {
		return Insight{Text: shift.Message(), Source: SourceRules, Shift: &shift}
	}
	sum := demand.Summarize(req.Series)
	if sum.Next == nil {
		return Insight{Text: "No forecast available.", Source: SourceRules}
	}
	return Insight{
		Text: fmt.Sprintf("Demand is expected to stay stable in %s at %.0f units (recent range %.0f-%.0f).",
			sum.Next.Label, sum.Next.Y, sum.Min, sum.Max),
		Source: SourceRules,
	}
}
