// Package interpret answers free-text questions about clinical guidelines.
//
// Interpreter is the boundary callers depend on. Canned serves the fixed
// keyword-matched paragraphs from the guidelines package; Service asks a
// language model, grounded on ingested guideline passages.
package interpret

import (
	"context"
	"log"
	"time"

	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/metrics"
)

const (
	NameCanned = "canned"
	NameLLM    = "llm"
)

type Interpreter interface {
	Interpret(ctx context.Context, source guidelines.Source, query string) (string, error)
}

// Canned answers from the static catalog, optionally after an artificial
// delay. A cancelled context ends the wait with ctx.Err().
type Canned struct {
	Delay  time.Duration
	Logger *log.Logger
}

func NewCanned(delay time.Duration, logger *log.Logger) *Canned {
	if logger == nil {
		logger = log.Default()
	}
	return &Canned{Delay: delay, Logger: logger}
}

func (c *Canned) Interpret(ctx context.Context, source guidelines.Source, query string) (string, error) {
	start := time.Now()
	if c.Delay > 0 {
		timer := time.NewTimer(c.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			metrics.ObserveInterpretation(NameCanned, source.String(), metrics.OutcomeSkipped, start)
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	answer := guidelines.Respond(source, query)
	metrics.ObserveInterpretation(NameCanned, source.String(), metrics.OutcomeOK, start)
	return answer, nil
}

var _ Interpreter = (*Canned)(nil)
