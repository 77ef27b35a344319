// Package qa answers questions against the document index: it routes the
// question, retrieves context, synthesizes an answer with provenance and
// records the turn in conversation memory and the transcript log.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docqa/internal/answer"
	"github.com/dgallion1/docqa/internal/index"
	"github.com/dgallion1/docqa/internal/memory"
	"github.com/dgallion1/docqa/internal/router"
	"github.com/dgallion1/docqa/internal/store/sqlite"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrInvalidQuery = errors.New("question is required")

type Sources struct {
	Tables            []string `json:"tables"`
	Charts            []string `json:"charts"`
	Formulas          []string `json:"formulas"`
	GeneratedQuestion string   `json:"generated_question"`
}

type Metadata struct {
	IsTableQuestion   bool   `json:"is_table_question"`
	IsChartQuestion   bool   `json:"is_chart_question"`
	IsFormulaQuestion bool   `json:"is_formula_question"`
	NumSources        int    `json:"num_sources"`
	Error             string `json:"error,omitempty"`
}

// Response is the answer to one question.
type Response struct {
	Answer         string            `json:"answer"`
	Table          *answer.TableData `json:"table,omitempty"`
	ImagePath      string            `json:"image_path,omitempty"`
	Formula        string            `json:"formula,omitempty"`
	Sources        Sources           `json:"sources"`
	Metadata       Metadata          `json:"metadata"`
	ConversationID string            `json:"conversation_id"`
}

// Retriever finds the chunks relevant to a question.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]index.Hit, error)
}

// Transcript is the append-only message log.
type Transcript interface {
	AppendMessage(ctx context.Context, m sqlite.Message) (int64, error)
}

type Service struct {
	retriever  Retriever
	synth      *answer.Synthesizer
	memory     *memory.Store
	transcript Transcript
	log        *slog.Logger
	tracer     trace.Tracer
}

// NewService wires the question-answering service. transcript may be nil.
func NewService(r Retriever, synth *answer.Synthesizer, mem *memory.Store, transcript Transcript, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{
		retriever:  r,
		synth:      synth,
		memory:     mem,
		transcript: transcript,
		log:        log,
		tracer:     otel.Tracer("github.com/dgallion1/docqa/internal/qa"),
	}
}

// Ask answers question within conversationID, starting a new conversation
// when the id is empty. Provider failures produce a degraded Response with
// Metadata.Error set; only ErrInvalidQuery is returned as an error.
func (s *Service) Ask(ctx context.Context, question, conversationID string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, ErrInvalidQuery
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "qa.ask", trace.WithAttributes(
		attribute.String("docqa.conversation_id", conversationID),
	))
	defer span.End()

	unlock := s.memory.Lock(conversationID)
	defer unlock()

	log := s.log.With("conversation_id", conversationID)
	start := time.Now()

	route := router.Classify(question)
	resp := Response{
		ConversationID: conversationID,
		Sources:        Sources{GeneratedQuestion: route.Routed},
		Metadata: Metadata{
			IsTableQuestion:   route.IsTable,
			IsChartQuestion:   route.IsChart,
			IsFormulaQuestion: route.IsFormula,
		},
	}

	asked := time.Now().UTC()
	hits, err := s.retriever.Retrieve(ctx, route.Routed)
	if err != nil {
		log.Warn("retrieval failed", "error", err)
		span.RecordError(err)
		resp.Answer = answer.Apology
		resp.Metadata.Error = err.Error()
		s.record(ctx, log, conversationID, question, asked, resp)
		return resp, nil
	}
	resp.Metadata.NumSources = len(hits)

	prompt := answer.BuildPrompt(hits, s.memory.History(conversationID), route.Routed)
	text, err := s.synth.Answer(ctx, prompt)
	resp.Answer = text
	if err != nil {
		span.RecordError(err)
		resp.Metadata.Error = err.Error()
		s.record(ctx, log, conversationID, question, asked, resp)
		return resp, nil
	}

	prov := answer.SelectProvenance(route, hits)
	if resp.Table, err = prov.CitedTable(); err != nil {
		log.Warn("cited table unreadable", "error", err)
	}
	resp.ImagePath = prov.ImagePath()
	resp.Formula = prov.FormulaText()
	resp.Sources.Tables, resp.Sources.Charts, resp.Sources.Formulas = answer.Labels(hits)

	var cited []string
	cited = append(cited, resp.Sources.Tables...)
	cited = append(cited, resp.Sources.Charts...)
	cited = append(cited, resp.Sources.Formulas...)
	s.memory.Append(ctx, conversationID,
		memory.Turn{Role: memory.RoleUser, Content: question, Timestamp: asked},
		memory.Turn{Role: memory.RoleAssistant, Content: resp.Answer, Sources: cited},
	)
	s.record(ctx, log, conversationID, question, asked, resp)

	span.SetAttributes(attribute.Int("docqa.sources", len(hits)))
	log.Info("question answered", "sources", len(hits),
		"table", route.IsTable, "chart", route.IsChart, "formula", route.IsFormula,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

// record appends the question and the answer to the transcript. Failures are
// logged and never affect the response.
func (s *Service) record(ctx context.Context, log *slog.Logger, convID, question string, asked time.Time, resp Response) {
	if s.transcript == nil {
		return
	}
	sources, err := json.Marshal(resp.Sources)
	if err != nil {
		log.Warn("encode sources", "error", err)
	}
	msgs := []sqlite.Message{
		{ConversationID: convID, Content: question, Timestamp: asked},
		{ConversationID: convID, Content: resp.Answer, IsBot: true, Sources: string(sources), Timestamp: time.Now().UTC()},
	}
	for _, m := range msgs {
		if _, err := s.transcript.AppendMessage(ctx, m); err != nil {
			log.Warn("transcript append failed", "error", err)
			return
		}
	}
}
