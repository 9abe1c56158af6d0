package telegram

import (
	"context"
	"strings"
	"testing"

	"CourtWatch/internal/domain"
)

func TestNotifyMisconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier("", "")
	err := n.Notify(context.Background(), domain.Entity{Name: "MARIA"}, domain.Record{})
	if err == nil {
		t.Fatal("missing credentials must error")
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	entity := domain.Entity{Name: "MARIA SILVA"}
	rec := domain.Record{
		Court:    "TJSP",
		Process:  "1111111-11.2024.8.26.0100",
		Venue:    "1ª Vara Cível",
		Kind:     "Intimação",
		Date:     "2026-08-29",
		FullText: "Fica a parte intimada a se manifestar sobre o laudo.",
		Link:     "https://example.test/pub/1",
	}

	msg := buildMessage(entity, rec)

	for _, want := range []string{
		"Monitorado: MARIA SILVA",
		"Tribunal: TJSP",
		"Processo: 1111111-11.2024.8.26.0100",
		"Órgão: 1ª Vara Cível",
		"Tipo: Intimação",
		"Data: 2026-08-29",
		"Fica a parte intimada",
		"https://example.test/pub/1",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildMessageOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	msg := buildMessage(domain.Entity{Name: "MARIA SILVA"}, domain.Record{Kind: "Citação"})

	if strings.Contains(msg, "Tribunal:") || strings.Contains(msg, "Processo:") {
		t.Fatalf("empty fields must be omitted:\n%s", msg)
	}
	if !strings.Contains(msg, "Tipo: Citação") {
		t.Fatalf("present fields must stay:\n%s", msg)
	}
}

func TestBuildMessageTruncatesLongText(t *testing.T) {
	t.Parallel()

	rec := domain.Record{FullText: strings.Repeat("a", 2*messageChars)}
	msg := buildMessage(domain.Entity{Name: "M"}, rec)

	if !strings.Contains(msg, "...") {
		t.Fatalf("long text must be truncated:\n%d chars", len(msg))
	}
}
