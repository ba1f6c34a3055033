package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/harmonyclinic/intake-line/internal/messaging"
	"github.com/harmonyclinic/intake-line/internal/observability/metrics"
	"github.com/harmonyclinic/intake-line/pkg/logging"
)

const voiceProcessPath = "/voice/process"

// utteranceProcessor runs one conversation turn and returns the reply to
// speak. A scripted apology comes back with a nil error; a non-nil error
// means the turn could not run at all.
type utteranceProcessor interface {
	HandleUtterance(ctx context.Context, callSID, utterance, callerPhone string) (string, error)
}

// VoiceHandler serves the Twilio voice webhooks.
type VoiceHandler struct {
	processor  utteranceProcessor
	clinicName string
	logger     *logging.Logger
	metrics    *metrics.CallMetrics
}

// VoiceHandlerConfig configures the VoiceHandler.
type VoiceHandlerConfig struct {
	Processor  utteranceProcessor
	ClinicName string
	Logger     *logging.Logger
	Metrics    *metrics.CallMetrics
}

// NewVoiceHandler creates the webhook handler.
func NewVoiceHandler(cfg VoiceHandlerConfig) *VoiceHandler {
	if cfg.Processor == nil {
		panic("handlers: utterance processor required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceHandler{
		processor:  cfg.Processor,
		clinicName: cfg.ClinicName,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// HandleIncoming answers a new call with the greeting and starts gathering
// speech. POST /voice/incoming.
func (h *VoiceHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	callSID := r.PostFormValue("CallSid")
	h.logger.Info("call started", "call_sid", callSID)
	h.metrics.ObserveCallStarted()

	greeting := fmt.Sprintf("Hello! Thank you for calling %s. May I have your full name please?", h.clinicName)
	h.writeTwiML(w, greeting, true)
}

// HandleProcess runs one conversation turn from a speech transcription.
// POST /voice/process.
func (h *VoiceHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	callSID := strings.TrimSpace(r.PostFormValue("CallSid"))
	if callSID == "" {
		http.Error(w, "CallSid required", http.StatusBadRequest)
		return
	}
	utterance := r.PostFormValue("SpeechResult")
	from := r.PostFormValue("From")

	reply, err := h.processor.HandleUtterance(r.Context(), callSID, utterance, from)
	if err != nil {
		h.logger.Error("turn failed", "call_sid", callSID, "error", err)
		h.writeSay(w, "I apologize, could you please repeat that?")
		return
	}
	h.writeTwiML(w, reply, false)
}

func (h *VoiceHandler) writeTwiML(w http.ResponseWriter, text string, firstPrompt bool) {
	out, err := messaging.RenderGather(text, voiceProcessPath, firstPrompt)
	if err != nil {
		h.logger.Error("twiml render failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(out))
}

func (h *VoiceHandler) writeSay(w http.ResponseWriter, text string) {
	out, err := messaging.RenderSay(text)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(out))
}
