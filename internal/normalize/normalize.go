package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CourtWatch/internal/domain"
)

const summaryChars = 300

var (
	cnjProcessExpr = regexp.MustCompile(`\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}`)
	brDateExpr     = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
	nonDigitExpr   = regexp.MustCompile(`\D`)
	spaceExpr      = regexp.MustCompile(`\s+`)
)

// RawRecord carries one upstream publication before normalization. Upstream
// payloads are inconsistent about field names, so every known variant gets a
// slot and Normalize applies one fixed precedence list per field.
type RawRecord struct {
	ID               string   `json:"id"`
	CommunicationID  string   `json:"comunicacao_id"`
	Process          string   `json:"numero_processo"`
	ProcessMasked    string   `json:"numeroprocessocommascara"`
	ProcessAlt       string   `json:"processo"`
	CourtAcronym     string   `json:"siglaTribunal"`
	Court            string   `json:"tribunal"`
	VenueName        string   `json:"nomeOrgao"`
	Venue            string   `json:"orgao"`
	Kind             string   `json:"tipoComunicacao"`
	KindSnake        string   `json:"tipo_comunicacao"`
	DocumentKind     string   `json:"tipoDocumento"`
	ClassName        string   `json:"nomeClasse"`
	Date             string   `json:"data_disponibilizacao"`
	DateLower        string   `json:"datadisponibilizacao"`
	DateCamel        string   `json:"dataDisponibilizacao"`
	Summary          string   `json:"texto_resumo"`
	Text             string   `json:"texto"`
	Content          string   `json:"conteudo"`
	Link             string   `json:"link"`
	ActiveParties    []string `json:"polo_ativo"`
	PassiveParties   []string `json:"polo_passivo"`
	Recipients       []string `json:"destinatarios"`
}

// Normalize collapses the upstream field variants into one Record for the
// given entity. The record hash is derived here so every caller shares the
// same identity rule.
func Normalize(entityID int64, raw RawRecord) domain.Record {
	fullText := firstNonEmpty(raw.Text, raw.Content)
	cleanText := StripHTML(fullText)

	process := firstNonEmpty(raw.ProcessMasked, raw.Process, raw.ProcessAlt)
	if process == "" {
		process = cnjProcessExpr.FindString(cleanText)
	}

	date := NormalizeDate(firstNonEmpty(raw.Date, raw.DateLower, raw.DateCamel))
	if date == "" {
		if m := brDateExpr.FindString(cleanText); m != "" {
			date = NormalizeDate(m)
		}
	}

	kind := firstNonEmpty(raw.Kind, raw.KindSnake, raw.DocumentKind, raw.ClassName)
	if kind == "" {
		kind = inferKind(cleanText)
	}

	court := firstNonEmpty(raw.CourtAcronym, raw.Court)
	venue := firstNonEmpty(raw.VenueName, raw.Venue)

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = Excerpt(cleanText, summaryChars)
	}

	claimants := raw.ActiveParties
	respondents := raw.PassiveParties
	if len(claimants) == 0 && len(respondents) == 0 {
		claimants = raw.Recipients
	}

	rec := domain.Record{
		EntityID:    entityID,
		SourceID:    firstNonEmpty(raw.ID, raw.CommunicationID),
		Court:       court,
		Process:     process,
		Venue:       venue,
		Kind:        kind,
		Date:        date,
		Summary:     summary,
		FullText:    cleanText,
		Link:        raw.Link,
		Claimants:   claimants,
		Respondents: respondents,
	}
	rec.Hash = Hash(rec)
	return rec
}

// Hash returns the deterministic content identity of a record: the upstream
// identifier when present, otherwise the normalized {court, process, date,
// kind} tuple.
func Hash(rec domain.Record) string {
	var material string
	if id := strings.TrimSpace(rec.SourceID); id != "" {
		material = "id:" + id
	} else {
		material = strings.ToLower(strings.Join([]string{
			strings.TrimSpace(rec.Court),
			ProcessDigits(rec.Process),
			strings.TrimSpace(rec.Date),
			strings.TrimSpace(rec.Kind),
		}, "|"))
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// ProcessDigits strips all punctuation from a process number, leaving only
// digits. Two process numbers refer to the same process when their digit
// forms are equal and non-empty.
func ProcessDigits(process string) string {
	return nonDigitExpr.ReplaceAllString(process, "")
}

// SameProcess compares a record's process number against a reference process.
// An empty reference (or one without digits) never matches: a missing
// reference means "no exclusion".
func SameProcess(process, reference string) bool {
	ref := ProcessDigits(reference)
	if ref == "" {
		return false
	}
	return ProcessDigits(process) == ref
}

// StripHTML removes markup from upstream publication bodies and collapses
// whitespace. Plain text passes through untouched apart from whitespace.
func StripHTML(text string) string {
	if text == "" {
		return ""
	}
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.TrimSpace(spaceExpr.ReplaceAllString(text, " "))
}

// NormalizeDate converts the upstream date spellings to YYYY-MM-DD. Unknown
// formats yield an empty string rather than a guess.
func NormalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if i := strings.IndexByte(value, 'T'); i > 0 {
		value = value[:i]
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Excerpt truncates cleaned text to at most n characters, appending an
// ellipsis when it cut something off.
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func inferKind(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "intima"):
		return "INTIMACAO"
	case strings.Contains(lower, "cita"):
		return "CITACAO"
	case strings.Contains(lower, "despacho"):
		return "DESPACHO"
	case strings.Contains(lower, "sentença"):
		return "SENTENCA"
	case strings.Contains(lower, "acórdão"):
		return "ACORDAO"
	default:
		return "COMUNICACAO_GERAL"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// BuildTitle assembles the alert title from court, communication type and
// process number, pipe-joined with empty parts omitted.
func BuildTitle(rec domain.Record) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{rec.Court, rec.Kind, rec.Process} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "COMUNICACAO"
	}
	return strings.Join(parts, " | ")
}

// BuildDescription assembles the alert description: venue, date and a text
// excerpt, one per line, empty parts omitted.
func BuildDescription(rec domain.Record, excerptChars int) string {
	lines := make([]string, 0, 3)
	if rec.Venue != "" {
		lines = append(lines, fmt.Sprintf("Órgão: %s", rec.Venue))
	}
	if rec.Date != "" {
		lines = append(lines, fmt.Sprintf("Data: %s", rec.Date))
	}
	text := firstNonEmpty(rec.FullText, rec.Summary)
	if text != "" {
		lines = append(lines, Excerpt(text, excerptChars))
	}
	return strings.Join(lines, "\n")
}
