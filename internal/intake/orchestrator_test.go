package intake

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	reply    string
	err      error
	calls    int
	lastCtx  TurnContext
	lastHist []ChatMessage
}

func (g *fakeGenerator) Reply(_ context.Context, tc TurnContext, history []ChatMessage) (string, error) {
	g.calls++
	g.lastCtx = tc
	g.lastHist = append([]ChatMessage(nil), history...)
	if g.err != nil {
		return "", g.err
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return "Got it. " + tc.Stage.Question(), nil
}

type fakeSaver struct {
	saves   int
	err     error
	lastSID string
	last    PatientFields
}

func (s *fakeSaver) SaveIntake(_ context.Context, callSID string, fields PatientFields) (string, error) {
	s.saves++
	s.lastSID = callSID
	s.last = fields
	if s.err != nil {
		return "", s.err
	}
	return "patient-1", nil
}

func newTestService(gen TurnGenerator, saver PatientSaver) *Service {
	return NewService(ServiceConfig{
		Store:      NewMemoryStore(0),
		Generator:  gen,
		Patients:   saver,
		ClinicName: "Harmony Chiropractic Center",
	})
}

func TestHandleUtteranceRequiresCallSID(t *testing.T) {
	svc := newTestService(&fakeGenerator{}, nil)
	if _, err := svc.HandleUtterance(context.Background(), "", "hello", ""); !errors.Is(err, ErrMissingCallSID) {
		t.Fatalf("expected ErrMissingCallSID, got %v", err)
	}
}

func TestHandleUtteranceAppendsTurns(t *testing.T) {
	gen := &fakeGenerator{reply: "Thanks John! What is the best phone number to reach you?"}
	svc := newTestService(gen, nil)
	ctx := context.Background()

	reply, err := svc.HandleUtterance(ctx, "CA1", "John Smith", "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != gen.reply {
		t.Errorf("reply = %q", reply)
	}

	sess, _ := svc.Session(ctx, "CA1")
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Role != ChatRoleUser || sess.Messages[0].Content != "John Smith" {
		t.Errorf("user turn = %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != ChatRoleAssistant {
		t.Errorf("assistant turn = %+v", sess.Messages[1])
	}
	if sess.Fields.Name != "John Smith" {
		t.Errorf("name = %q", sess.Fields.Name)
	}
	if sess.Stage != StagePhone {
		t.Errorf("stage = %s", sess.Stage)
	}
}

func TestHandleUtteranceGeneratorSeesGroundTruth(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(gen, nil)

	_, _ = svc.HandleUtterance(context.Background(), "CA1", "John Smith", "")

	if gen.lastCtx.Stage != StagePhone {
		t.Errorf("generator saw stage %s, want phone", gen.lastCtx.Stage)
	}
	if gen.lastCtx.Fields.Name != "John Smith" {
		t.Errorf("generator saw fields %+v", gen.lastCtx.Fields)
	}
	if len(gen.lastHist) != 1 {
		t.Errorf("generator saw %d history messages, want the user turn", len(gen.lastHist))
	}
}

func TestHandleUtteranceGeneratorFailureIsolation(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model timeout")}
	svc := newTestService(gen, nil)
	ctx := context.Background()

	// Seed one successful turn.
	ok := &fakeGenerator{reply: "And your phone number?"}
	svc.generator = ok
	if _, err := svc.HandleUtterance(ctx, "CA1", "John Smith", ""); err != nil {
		t.Fatalf("seed turn: %v", err)
	}
	before, _ := svc.Session(ctx, "CA1")

	svc.generator = gen
	reply, err := svc.HandleUtterance(ctx, "CA1", "555-111-2222", "")
	if err != nil {
		t.Fatalf("failed turn should not error: %v", err)
	}
	if reply != ApologyReply {
		t.Errorf("reply = %q, want apology", reply)
	}

	after, _ := svc.Session(ctx, "CA1")
	if len(after.Messages) != len(before.Messages) {
		t.Errorf("history length changed: %d -> %d", len(before.Messages), len(after.Messages))
	}
	if after.Fields.Phone != "" {
		t.Errorf("failed turn leaked field write: %q", after.Fields.Phone)
	}
}

func TestHandleUtteranceCallerIDFallback(t *testing.T) {
	gen := &fakeGenerator{}
	svc := newTestService(gen, nil)
	ctx := context.Background()

	_, _ = svc.HandleUtterance(ctx, "CA1", "John Smith", "+15551234567")

	sess, _ := svc.Session(ctx, "CA1")
	if sess.Fields.Phone != "5551234567" {
		t.Errorf("caller-id phone = %q, want 5551234567", sess.Fields.Phone)
	}
	// Name and phone known: next stage skips to email.
	if sess.Stage != StageEmail {
		t.Errorf("stage = %s, want email", sess.Stage)
	}
}

func TestEndToEndIntakeFlow(t *testing.T) {
	gen := &fakeGenerator{}
	saver := &fakeSaver{}
	svc := newTestService(gen, saver)
	ctx := context.Background()

	turns := []struct {
		utterance string
		wantStage Stage
	}{
		{"John Smith", StagePhone},
		{"555-111-2222", StageEmail},
		{"john@example.com", StageDateOfBirth},
		{"my birthday is 1/1/1990", StageReason},
		{"back pain", StageInsuranceProvider},
		{"I have Cigna", StageInsuranceID},
		{"member id CIG98765", StageScheduling},
	}
	for i, turn := range turns {
		if _, err := svc.HandleUtterance(ctx, "CA-e2e", turn.utterance, ""); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		sess, _ := svc.Session(ctx, "CA-e2e")
		if sess.Stage != turn.wantStage {
			t.Fatalf("after turn %d (%q): stage = %s, want %s", i+1, turn.utterance, sess.Stage, turn.wantStage)
		}
	}

	if saver.saves != 1 {
		t.Fatalf("expected exactly one persistence call, got %d", saver.saves)
	}
	if saver.lastSID != "CA-e2e" {
		t.Errorf("persisted call sid = %q", saver.lastSID)
	}
	if saver.last.Name != "John Smith" || saver.last.Insurance.MemberID != "CIG98765" {
		t.Errorf("persisted fields = %+v", saver.last)
	}

	sess, _ := svc.Session(ctx, "CA-e2e")
	if !sess.Persisted {
		t.Error("session should be marked persisted")
	}
	if sess.PatientID != "patient-1" {
		t.Errorf("patient id = %q", sess.PatientID)
	}
}

func TestPersistenceAtMostOnceAfterCommit(t *testing.T) {
	gen := &fakeGenerator{}
	saver := &fakeSaver{}
	svc := newTestService(gen, saver)
	ctx := context.Background()

	for _, u := range []string{
		"John Smith", "555-111-2222", "john@example.com",
		"my birthday is 1/1/1990", "back pain", "I have Cigna", "member id CIG98765",
	} {
		if _, err := svc.HandleUtterance(ctx, "CA1", u, ""); err != nil {
			t.Fatalf("turn %q: %v", u, err)
		}
	}
	// More terminal-stage turns must not re-persist.
	for _, u := range []string{"tomorrow works", "morning please", "thanks"} {
		if _, err := svc.HandleUtterance(ctx, "CA1", u, ""); err != nil {
			t.Fatalf("turn %q: %v", u, err)
		}
	}

	if saver.saves != 1 {
		t.Errorf("expected one persistence call, got %d", saver.saves)
	}
}

func TestPersistenceRetriesAfterFailure(t *testing.T) {
	gen := &fakeGenerator{}
	saver := &fakeSaver{err: errors.New("db down")}
	svc := newTestService(gen, saver)
	ctx := context.Background()

	for _, u := range []string{
		"John Smith", "555-111-2222", "john@example.com",
		"my birthday is 1/1/1990", "back pain", "I have Cigna", "member id CIG98765",
	} {
		if _, err := svc.HandleUtterance(ctx, "CA1", u, ""); err != nil {
			t.Fatalf("turn %q: %v", u, err)
		}
	}
	if saver.saves != 1 {
		t.Fatalf("expected a persistence attempt, got %d", saver.saves)
	}
	sess, _ := svc.Session(ctx, "CA1")
	if sess.Persisted {
		t.Fatal("failed persistence must leave the session unpersisted")
	}

	// Next terminal turn retries and succeeds.
	saver.err = nil
	if _, err := svc.HandleUtterance(ctx, "CA1", "tomorrow at 9", ""); err != nil {
		t.Fatalf("retry turn: %v", err)
	}
	if saver.saves != 2 {
		t.Errorf("expected retry, got %d saves", saver.saves)
	}
	sess, _ = svc.Session(ctx, "CA1")
	if !sess.Persisted || sess.PatientID != "patient-1" {
		t.Errorf("session after retry = %+v", sess)
	}
}

func TestRenderSystemPromptShowsGroundTruth(t *testing.T) {
	prompt := RenderSystemPrompt(TurnContext{
		ClinicName: "Harmony Chiropractic Center",
		Fields:     PatientFields{Name: "John Smith", Phone: "5551112222"},
		Stage:      StageEmail,
	})

	for _, want := range []string{
		"Harmony Chiropractic Center",
		"Name: John Smith",
		"Phone: 5551112222",
		"Email: (not yet provided)",
		"What is your email address?",
		"ONE question at a time",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRenderSystemPromptTerminal(t *testing.T) {
	prompt := RenderSystemPrompt(TurnContext{
		Stage: StageScheduling,
		Fields: PatientFields{
			Name: "a", Phone: "b", Email: "c", DateOfBirth: "d", Reason: "e",
			Insurance: Insurance{Provider: "f", MemberID: "g"},
		},
	})
	if !strings.Contains(prompt, "All required information is collected") {
		t.Errorf("terminal prompt missing wrap-up instruction:\n%s", prompt)
	}
}
