package interpret_test

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabfab/nexo/guidelines"
	"github.com/fabfab/nexo/interpret"
)

func TestCannedMatchesResponder(t *testing.T) {
	canned := interpret.NewCanned(0, log.New(io.Discard, "", 0))
	got, err := canned.Interpret(context.Background(), guidelines.SourceGES, "¿Qué dieta debo seguir?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := guidelines.Respond(guidelines.SourceGES, "¿Qué dieta debo seguir?"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCannedWaitsForDelay(t *testing.T) {
	canned := interpret.NewCanned(20*time.Millisecond, nil)
	start := time.Now()
	if _, err := canned.Interpret(context.Background(), guidelines.SourceAHA, "presión"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected at least 20ms delay, got %s", elapsed)
	}
}

func TestCannedHonoursCancellation(t *testing.T) {
	canned := interpret.NewCanned(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := canned.Interpret(ctx, guidelines.SourceAHA, "presión")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if answer != "" {
		t.Fatalf("expected no answer, got %q", answer)
	}
}

func TestCannedConcurrentCallsAreIndependent(t *testing.T) {
	canned := interpret.NewCanned(time.Millisecond, nil)
	queries := map[guidelines.Source]string{
		guidelines.SourceAHA: "¿Con qué frecuencia debo hacer seguimiento?",
		guidelines.SourceGES: "¿Cuántas sesiones de rehabilitación necesito?",
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for source, query := range queries {
			wg.Add(1)
			go func(source guidelines.Source, query string) {
				defer wg.Done()
				got, err := canned.Interpret(context.Background(), source, query)
				if err != nil {
					errs <- err
					return
				}
				if got != guidelines.Respond(source, query) {
					errs <- errors.New("unexpected answer for " + source.String())
				}
			}(source, query)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestCannedBlankQueryFallsBack(t *testing.T) {
	canned := interpret.NewCanned(0, nil)
	got, err := canned.Interpret(context.Background(), guidelines.SourceAHA, "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "antiagregantes plaquetarios duales") {
		t.Fatalf("expected AHA general paragraph, got %q", got)
	}
}
