package intake

import (
	"regexp"
	"strings"
)

// Insurance holds the coverage details collected during intake.
type Insurance struct {
	Provider string `json:"provider,omitempty"`
	MemberID string `json:"member_id,omitempty"`
}

// PatientFields accumulates structured intake data over the course of a call.
// Every field is first-write-wins: once set, later extraction passes never
// overwrite it, so the field set only grows across turns.
type PatientFields struct {
	Name        string    `json:"name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Insurance   Insurance `json:"insurance,omitempty"`
}

// ---------- package-level compiled regexes ----------

var (
	phoneRE    = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	emailRE    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	dateRE     = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	memberIDRE = regexp.MustCompile(`\b[A-Za-z0-9]{6,15}\b`)
	digitRE    = regexp.MustCompile(`\d`)
)

// insuranceProviders maps spoken aliases to canonical carrier names. The slice
// is scanned in order and the first match wins, so more specific aliases must
// come first; this keeps multi-match utterances deterministic.
var insuranceProviders = []struct {
	alias string
	name  string
}{
	{"blue cross", "Blue Cross Blue Shield"},
	{"bcbs", "Blue Cross Blue Shield"},
	{"aetna", "Aetna"},
	{"cigna", "Cigna"},
	{"united", "United Healthcare"},
	{"humana", "Humana"},
	{"medicare", "Medicare"},
	{"medicaid", "Medicaid"},
}

// Extract applies the field-extraction rules to a single utterance and returns
// the updated fields. Pure and deterministic: no I/O, the input struct is not
// mutated. The stage being prompted for is an explicit parameter because the
// name and reason fields are captured verbatim from the reply to their own
// question rather than by pattern.
func Extract(stage Stage, utterance string, current PatientFields) PatientFields {
	out := current
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return out
	}
	lower := strings.ToLower(trimmed)

	if out.Name == "" && stage == StageName {
		out.Name = trimmed
	}
	if out.Reason == "" && stage == StageReason {
		out.Reason = trimmed
	}

	if out.Phone == "" {
		if m := phoneRE.FindString(trimmed); m != "" {
			out.Phone = Digits(m)
		}
	}

	if out.Email == "" {
		if m := emailRE.FindString(trimmed); m != "" {
			out.Email = m
		}
	}

	// A bare date is not a birth date; the utterance must mention birth.
	if out.DateOfBirth == "" && strings.Contains(lower, "birth") {
		if m := dateRE.FindString(trimmed); m != "" {
			out.DateOfBirth = m
		}
	}

	if out.Insurance.Provider == "" {
		for _, p := range insuranceProviders {
			if strings.Contains(lower, p.alias) {
				out.Insurance.Provider = p.name
				break
			}
		}
	}

	// Member IDs require the utterance to mention "member" or "id", and the
	// token itself must carry a digit so the trigger words are never captured.
	if out.Insurance.MemberID == "" && (strings.Contains(lower, "member") || strings.Contains(lower, "id")) {
		for _, tok := range memberIDRE.FindAllString(trimmed, -1) {
			if digitRE.MatchString(tok) {
				out.Insurance.MemberID = strings.ToUpper(tok)
				break
			}
		}
	}

	return out
}

// Digits strips everything but 0-9 from a phone-like string.
func Digits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
