// Package question defines the question template data model: the
// immutable template a caller authors, the data list used to instantiate
// it, and the fully-concrete question config that results.
package question

import (
	"errors"
	"fmt"

	"github.com/qaorchestrator/haio/internal/clone"
)

// NodeTag discriminates the variants of Node.
type NodeTag int

// Node tag constants.
const (
	NodeHeading NodeTag = iota + 1
	NodeParagraph
	NodeImage
)

// String renders the tag for logging and error messages.
func (t NodeTag) String() string {
	switch t {
	case NodeHeading:
		return "heading"
	case NodeParagraph:
		return "paragraph"
	case NodeImage:
		return "image"
	default:
		return "unknown"
	}
}

// Slot is either a literal string or an index into a Data list. Exactly one
// of Literal / SlotIndex must be set; InsertData resolves SlotIndex against
// the supplied Data before rendering.
type Slot struct {
	Literal   *string
	SlotIndex *int
}

// Lit builds a literal Slot.
func Lit(s string) Slot { return Slot{Literal: &s} }

// Ref builds a slot-index Slot.
func Ref(i int) Slot { return Slot{SlotIndex: &i} }

func (s Slot) resolve(d Data) (string, error) {
	switch {
	case s.Literal != nil:
		return *s.Literal, nil
	case s.SlotIndex != nil:
		i := *s.SlotIndex
		if i < 0 || i >= len(d) {
			return "", fmt.Errorf("%w: slot index %d out of range for data of length %d", ErrInvalidQuestion, i, len(d))
		}
		return d[i], nil
	default:
		return "", fmt.Errorf("%w: slot has neither literal nor slot index", ErrInvalidQuestion)
	}
}

// Node is one element of a question's body: a heading, a paragraph, or an
// image. Level is only meaningful for NodeHeading (1..6). Value carries the
// heading/paragraph text slot; Src carries the image source slot.
type Node struct {
	Tag   NodeTag
	Level int
	Value Slot
	Src   Slot
}

// AnswerTag discriminates the variants of AnswerSpec.
type AnswerTag int

// Answer tag constants.
const (
	AnswerNumber AnswerTag = iota + 1
	AnswerText
	AnswerSelect
)

// AnswerSpec describes the expected shape of an answer to a question.
type AnswerSpec struct {
	Tag     AnswerTag
	Options []string // non-empty, distinct; only meaningful for AnswerSelect
}

// Template is an immutable description of a question: its prose body and
// the shape of the answer it expects. Templates never carry resolved data;
// InsertData produces a Config without mutating the Template.
type Template struct {
	Title       string
	Description string
	Question    []Node
	Answer      AnswerSpec
}

// Data is the ordered list of strings a Template is instantiated with.
type Data []string

// Config is a Template with every slot resolved against a Data list.
type Config struct {
	Title       string
	Description string
	Question    []RenderedNode
	Answer      AnswerSpec
}

// RenderedNode is a Node with its slots resolved to concrete strings.
type RenderedNode struct {
	Tag   NodeTag
	Level int
	Value string
	Src   string
}

// Validate checks a Template against the invariants of spec.md §7's
// InvalidQuestion error kind: known node tags, a known answer type, and
// (for Select) a non-empty list of distinct options.
func (t Template) Validate() error {
	for i, n := range t.Question {
		switch n.Tag {
		case NodeHeading:
			if n.Level < 1 || n.Level > 6 {
				return fmt.Errorf("%w: node %d heading level %d out of range 1..6", ErrInvalidQuestion, i, n.Level)
			}
		case NodeParagraph, NodeImage:
			// No extra constraints.
		default:
			return fmt.Errorf("%w: node %d has unknown tag %v", ErrInvalidQuestion, i, n.Tag)
		}
	}
	switch t.Answer.Tag {
	case AnswerNumber, AnswerText:
		if len(t.Answer.Options) != 0 {
			return fmt.Errorf("%w: answer type %v must not declare options", ErrInvalidQuestion, t.Answer.Tag)
		}
	case AnswerSelect:
		if len(t.Answer.Options) == 0 {
			return fmt.Errorf("%w: select answer must declare at least one option", ErrInvalidQuestion)
		}
		seen := make(map[string]struct{}, len(t.Answer.Options))
		for _, opt := range t.Answer.Options {
			if _, dup := seen[opt]; dup {
				return fmt.Errorf("%w: select answer has duplicate option %q", ErrInvalidQuestion, opt)
			}
			seen[opt] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown answer type %v", ErrInvalidQuestion, t.Answer.Tag)
	}
	return nil
}

// InsertData instantiates t with d, producing a Config. t is never mutated:
// it is deep-copied internally before any slot is resolved (Invariant 1 of
// spec.md §3).
func InsertData(t Template, d Data) (Config, error) {
	if err := t.Validate(); err != nil {
		return Config{}, err
	}
	frozen, err := clone.Of(t)
	if err != nil {
		return Config{}, fmt.Errorf("snapshot template before instantiation: %w", err)
	}
	cfg := Config{
		Title:       frozen.Title,
		Description: frozen.Description,
		Answer:      frozen.Answer,
		Question:    make([]RenderedNode, len(frozen.Question)),
	}
	for i, n := range frozen.Question {
		rendered := RenderedNode{Tag: n.Tag, Level: n.Level}
		switch n.Tag {
		case NodeImage:
			src, err := n.Src.resolve(d)
			if err != nil {
				return Config{}, err
			}
			rendered.Src = src
		default:
			value, err := n.Value.resolve(d)
			if err != nil {
				return Config{}, err
			}
			rendered.Value = value
		}
		cfg.Question[i] = rendered
	}
	return cfg, nil
}

// Errors surfaced by this package and consumed by assign/session callers.
var (
	ErrInvalidQuestion = errors.New("invalid question")
)
