// Package openai implements a single-shot AI worker backed by
// github.com/openai/openai-go, grounded on
// original_source/haio/worker_io/openai_io.py's use of chat completions
// with a JSON answer per answer type, and on the
// AlreadyAsking guard that file keeps via a
// question_config_hash -> pending-answer map.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
)

// DefaultModel is used when no WithModel option is supplied.
const DefaultModel = oai.ChatModelGPT4o

type options struct {
	apiKey  string
	baseURL string
	model   oai.ChatModel
}

// Option configures a Worker.
type Option func(*options)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option { return func(o *options) { o.apiKey = key } }

// WithBaseURL points the client at an alternate (e.g. proxy or
// Azure-compatible) endpoint.
func WithBaseURL(url string) Option { return func(o *options) { o.baseURL = url } }

// WithModel overrides DefaultModel.
func WithModel(model oai.ChatModel) Option { return func(o *options) { o.model = model } }

// Worker is a synchronous single-shot worker.Worker backed by the OpenAI
// chat completions API.
type Worker struct {
	client oai.Client
	model  oai.ChatModel

	mu      sync.Mutex
	pending map[string]string // fp(qc) -> normalized answer, until Take
}

var _ worker.Worker = (*Worker)(nil)

// New builds a Worker, reading OPENAI_API_KEY from the environment unless
// WithAPIKey overrides it — matching the original's load_dotenv()/
// os.getenv credential handling.
func New(opts ...Option) *Worker {
	cfg := options{apiKey: os.Getenv("OPENAI_API_KEY"), model: DefaultModel}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Worker{
		client:  oai.NewClient(clientOpts...),
		model:   cfg.model,
		pending: make(map[string]string),
	}
}

// Submit implements worker.Worker: the query completes synchronously, so
// the returned handle is immediately retrievable via IsDone/Take.
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
	w.pending[fp] = "" // reserve the slot before the network call
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

// ask renders qc into a prompt and requests a JSON object; the JSON-object
// response format is the same for every answer type, and the system
// instructions from answerInstructions describe the expected answer shape
// (number/text/select).
func (w *Worker) ask(ctx context.Context, qc question.Config) (string, error) {
	instructions, err := answerInstructions(qc.Answer)
	if err != nil {
		return "", err
	}

	resp, err := w.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: w.model,
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(instructions),
			oai.UserMessage(renderPrompt(qc)),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errs.ErrEmptyResponse
	}

	var decoded struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &decoded); err != nil {
		return "", fmt.Errorf("%w: decode JSON answer: %v", errs.ErrMissingAnswer, err)
	}
	if decoded.Answer == "" {
		return "", errs.ErrMissingAnswer
	}
	return decoded.Answer, nil
}

func renderPrompt(qc question.Config) string {
	var b []byte
	b = append(b, []byte(qc.Title)...)
	b = append(b, '\n')
	b = append(b, []byte(qc.Description)...)
	b = append(b, '\n')
	for _, node := range qc.Question {
		switch node.Tag {
		case question.NodeHeading:
			b = append(b, []byte(headingPrefix(node.Level)+node.Value+"\n")...)
		case question.NodeImage:
			b = append(b, []byte("[image] "+node.Src+"\n")...)
		default:
			b = append(b, []byte(node.Value+"\n")...)
		}
	}
	return string(b)
}

func headingPrefix(level int) string {
	prefix := ""
	for i := 0; i < level; i++ {
		prefix += "#"
	}
	return prefix + " "
}

// answerInstructions builds the system-message instructions constraining
// the model to emit {"answer": "..."} with the right shape, since the
// JSON-object response format (unlike a JSON-schema format) doesn't
// enforce a shape on its own.
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

// IsDone implements worker.Worker; OpenAI completions finish synchronously
// inside Submit, so any recognized handle is always done.
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
