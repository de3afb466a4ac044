// Package gemini implements a second single-shot AI worker backend, this
// one over google.golang.org/genai, following the same single-shot
// AlreadyAsking contract as worker/openai but targeting Gemini models.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
)

// DefaultModel is used when no WithModel option is supplied.
const DefaultModel = "gemini-2.0-flash"

type options struct {
	apiKey string
	model  string
}

// Option configures a Worker.
type Option func(*options)

// WithAPIKey overrides the GEMINI_API_KEY environment variable.
func WithAPIKey(key string) Option { return func(o *options) { o.apiKey = key } }

// WithModel overrides DefaultModel.
func WithModel(model string) Option { return func(o *options) { o.model = model } }

// Worker is a synchronous single-shot worker.Worker backed by the Gemini
// generateContent API.
type Worker struct {
	client *genai.Client
	model  string

	mu      sync.Mutex
	pending map[string]string // fp(qc) -> normalized answer, until Take
}

var _ worker.Worker = (*Worker)(nil)

// New builds a Worker, reading GEMINI_API_KEY from the environment unless
// WithAPIKey overrides it.
func New(ctx context.Context, opts ...Option) (*Worker, error) {
	cfg := options{apiKey: os.Getenv("GEMINI_API_KEY"), model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("build gemini client: %w", err)
	}

	return &Worker{client: client, model: cfg.model, pending: make(map[string]string)}, nil
}

// Submit implements worker.Worker.
func (w *Worker) Submit(ctx context.Context, qc question.Config) (string, error) {
	fp, err := fingerprint.FP(qc)
	if err != nil {
		return "", fmt.Errorf("fingerprint question config: %w", err)
	}

	w.mu.Lock()
	if _, outstanding := w.pending[fp]; outstanding {
		w.mu.Unlock()
		return "", fmt.Errorf("%w: fingerprint %s already outstanding", errs.ErrAlreadyAsking, fp)
	}
	w.pending[fp] = ""
	w.mu.Unlock()

	raw, err := w.ask(ctx, qc)
	if err != nil {
		w.mu.Lock()
		delete(w.pending, fp)
		w.mu.Unlock()
		return "", err
	}

	normalized, err := worker.Normalize(raw, qc.Answer)
	if err != nil {
		w.mu.Lock()
		delete(w.pending, fp)
		w.mu.Unlock()
		return "", err
	}

	w.mu.Lock()
	w.pending[fp] = normalized
	w.mu.Unlock()

	return fp, nil
}

func (w *Worker) ask(ctx context.Context, qc question.Config) (string, error) {
	instructions, err := answerInstructions(qc.Answer)
	if err != nil {
		return "", err
	}

	prompt := instructions + "\n\n" + renderPrompt(qc)
	resp, err := w.client.Models.GenerateContent(ctx, w.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errs.ErrEmptyResponse
	}

	var decoded struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return "", fmt.Errorf("%w: decode JSON answer: %v", errs.ErrMissingAnswer, err)
	}
	if decoded.Answer == "" {
		return "", errs.ErrMissingAnswer
	}
	return decoded.Answer, nil
}

func renderPrompt(qc question.Config) string {
	out := qc.Title + "\n" + qc.Description + "\n"
	for _, node := range qc.Question {
		switch node.Tag {
		case question.NodeImage:
			out += "[image] " + node.Src + "\n"
		default:
			out += node.Value + "\n"
		}
	}
	return out
}

func answerInstructions(spec question.AnswerSpec) (string, error) {
	switch spec.Tag {
	case question.AnswerNumber:
		return `Respond with a JSON object {"answer": "<a decimal number as a string>"} and nothing else.`, nil
	case question.AnswerText:
		return `Respond with a JSON object {"answer": "<your answer as a string>"} and nothing else.`, nil
	case question.AnswerSelect:
		return fmt.Sprintf(`Respond with a JSON object {"answer": "<one of %v>"} and nothing else.`, spec.Options), nil
	default:
		return "", fmt.Errorf("%w: unknown answer type %v", question.ErrInvalidQuestion, spec.Tag)
	}
}

// IsDone implements worker.Worker; Gemini generateContent calls finish
// synchronously inside Submit.
func (w *Worker) IsDone(_ context.Context, handle string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[handle]; !ok {
		return false, fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	return true, nil
}

// Take implements worker.Worker, clearing the AlreadyAsking reservation.
func (w *Worker) Take(_ context.Context, handle string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	answer, ok := w.pending[handle]
	if !ok {
		return "", fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	delete(w.pending, handle)
	return answer, nil
}

// AskAndWait implements worker.Worker.
func (w *Worker) AskAndWait(ctx context.Context, qc question.Config) (string, error) {
	handle, err := w.Submit(ctx, qc)
	if err != nil {
		return "", err
	}
	return w.Take(ctx, handle)
}
