package intake

import (
	"fmt"
	"strings"
)

// RenderSystemPrompt serializes a TurnContext into the instruction block for
// the language model. This is the only place the structured context becomes
// text; the orchestrator never touches prompt formatting.
func RenderSystemPrompt(tc TurnContext) string {
	clinic := tc.ClinicName
	if clinic == "" {
		clinic = "the clinic"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional AI receptionist for %s.\n", clinic)
	b.WriteString("Collect patient information: name, phone, email, date of birth, reason for visit, insurance.\n")
	b.WriteString("Ask ONE question at a time. Keep responses under 40 words. Be warm and professional.\n")

	b.WriteString("\nInformation collected so far:\n")
	writeKnown(&b, "Name", tc.Fields.Name)
	writeKnown(&b, "Phone", tc.Fields.Phone)
	writeKnown(&b, "Email", tc.Fields.Email)
	writeKnown(&b, "Date of birth", tc.Fields.DateOfBirth)
	writeKnown(&b, "Reason for visit", tc.Fields.Reason)
	writeKnown(&b, "Insurance provider", tc.Fields.Insurance.Provider)
	writeKnown(&b, "Insurance member ID", tc.Fields.Insurance.MemberID)

	if tc.Stage == StageScheduling {
		b.WriteString("\nAll required information is collected. Thank the caller and help them pick an appointment time.\n")
	} else {
		fmt.Fprintf(&b, "\nNext question to ask: %s\n", tc.Stage.Question())
		b.WriteString("Do not re-ask for information already collected.\n")
	}
	return b.String()
}

func writeKnown(b *strings.Builder, label, value string) {
	if value == "" {
		fmt.Fprintf(b, "- %s: (not yet provided)\n", label)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
