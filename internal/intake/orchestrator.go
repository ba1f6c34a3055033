package intake

import (
	"context"
	"errors"
	"time"

	"github.com/harmonyclinic/intake-line/internal/observability/metrics"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

// ApologyReply is spoken when the turn generator fails. The turn is rolled
// back so the caller's next utterance retries against unchanged context.
const ApologyReply = "I apologize, could you please repeat that?"

// ErrMissingCallSID rejects requests that arrive without a call identifier.
var ErrMissingCallSID = errors.New("intake: call SID required")

// PatientSaver durably stores a finalized intake record. The insert must be
// idempotent on the call SID so a retried commit cannot create duplicates.
type PatientSaver interface {
	SaveIntake(ctx context.Context, callSID string, fields PatientFields) (string, error)
}

// Service orchestrates one conversation turn: extract fields, resolve the
// stage, generate the reply, and persist the record exactly once when the
// terminal stage is reached.
type Service struct {
	store      SessionStore
	generator  TurnGenerator
	patients   PatientSaver
	clinicName string
	logger     *logging.Logger
	metrics    *metrics.CallMetrics
}

// ServiceConfig configures the orchestrator.
type ServiceConfig struct {
	Store      SessionStore
	Generator  TurnGenerator
	Patients   PatientSaver
	ClinicName string
	Logger     *logging.Logger
	Metrics    *metrics.CallMetrics
}

// NewService creates the turn orchestrator.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("intake: session store required")
	}
	if cfg.Generator == nil {
		panic("intake: turn generator required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		store:      cfg.Store,
		generator:  cfg.Generator,
		patients:   cfg.Patients,
		clinicName: cfg.ClinicName,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// HandleUtterance processes one caller utterance and returns the reply text to
// speak. Turn-generator failures are absorbed: the apology line is returned
// with a nil error and the session is left exactly as it was before the turn.
func (s *Service) HandleUtterance(ctx context.Context, callSID, utterance, callerPhone string) (string, error) {
	if callSID == "" {
		return "", ErrMissingCallSID
	}
	start := time.Now()

	sess, err := s.store.Get(ctx, callSID)
	if err != nil {
		return "", err
	}

	before := sess.Fields
	stage := ResolveStage(sess.Fields)
	sess.Fields = Extract(stage, utterance, sess.Fields)

	// Caller-ID fallback: when the transport knows the caller's line, take it
	// rather than asking later. The stage question order is unchanged.
	if sess.Fields.Phone == "" && callerPhone != "" {
		digits := Digits(callerPhone)
		if len(digits) == 11 && digits[0] == '1' {
			digits = digits[1:]
		}
		if len(digits) >= 10 {
			sess.Fields.Phone = digits
		}
	}
	for _, field := range capturedFields(before, sess.Fields) {
		s.metrics.ObserveFieldCaptured(field)
	}

	sess.Stage = ResolveStage(sess.Fields)
	sess.Messages = append(sess.Messages, ChatMessage{Role: ChatRoleUser, Content: utterance})

	tc := TurnContext{
		ClinicName: s.clinicName,
		Fields:     sess.Fields,
		Stage:      sess.Stage,
	}
	reply, err := s.generator.Reply(ctx, tc, sess.Messages)
	if err != nil {
		// Do not save: the failed turn is not recorded, the next utterance
		// retries with unchanged history.
		s.logger.Error("intake: turn generation failed", "error", err, "call_sid", callSID)
		s.metrics.ObserveTurn("generator_error", time.Since(start).Seconds())
		return ApologyReply, nil
	}
	sess.Messages = append(sess.Messages, ChatMessage{Role: ChatRoleAssistant, Content: reply})

	if sess.Stage == StageScheduling && !sess.Persisted && s.patients != nil {
		patientID, err := s.patients.SaveIntake(ctx, callSID, sess.Fields)
		if err != nil {
			// Leave persisted=false so a later turn retries the commit.
			s.logger.Error("intake: failed to persist patient record", "error", err, "call_sid", callSID)
			s.metrics.ObservePersist("error")
		} else {
			sess.Persisted = true
			sess.PatientID = patientID
			s.metrics.ObservePersist("ok")
			s.logger.Info("intake: patient record persisted", "call_sid", callSID, "patient_id", patientID)
		}
	}

	if err := s.store.Save(ctx, sess); err != nil {
		// The reply is already generated; losing one turn of history is
		// preferable to dropping the call.
		s.logger.Error("intake: failed to save session", "error", err, "call_sid", callSID)
	}

	s.metrics.ObserveTurn("ok", time.Since(start).Seconds())
	return reply, nil
}

// Session returns a snapshot of the call's session state.
func (s *Service) Session(ctx context.Context, callSID string) (*Session, error) {
	return s.store.Get(ctx, callSID)
}

func capturedFields(before, after PatientFields) []string {
	var fields []string
	if before.Name == "" && after.Name != "" {
		fields = append(fields, "name")
	}
	if before.Phone == "" && after.Phone != "" {
		fields = append(fields, "phone")
	}
	if before.Email == "" && after.Email != "" {
		fields = append(fields, "email")
	}
	if before.DateOfBirth == "" && after.DateOfBirth != "" {
		fields = append(fields, "date_of_birth")
	}
	if before.Reason == "" && after.Reason != "" {
		fields = append(fields, "reason")
	}
	if before.Insurance.Provider == "" && after.Insurance.Provider != "" {
		fields = append(fields, "insurance_provider")
	}
	if before.Insurance.MemberID == "" && after.Insurance.MemberID != "" {
		fields = append(fields, "insurance_member_id")
	}
	return fields
}
