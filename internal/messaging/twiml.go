package messaging

import (
	"encoding/xml"
	"fmt"
)

// The voice webhook speaks TwiML back to Twilio. Only the elements the
// intake flow uses are modeled here.

const pollyVoice = "Polly.Joanna"

// VoiceResponse is the TwiML document root.
type VoiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Gather  *Gather  `xml:"Gather,omitempty"`
	Say     *Say     `xml:"Say,omitempty"`
}

// Gather collects speech input and posts the transcription to Action.
type Gather struct {
	Input         string `xml:"input,attr"`
	Action        string `xml:"action,attr"`
	SpeechTimeout string `xml:"speechTimeout,attr"`
	SpeechModel   string `xml:"speechModel,attr,omitempty"`
	Say           *Say   `xml:"Say,omitempty"`
}

// Say speaks text to the caller.
type Say struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
}

// RenderGather wraps spoken text in a Gather that loops the caller back to
// the process webhook. The phone_call speech model is only set on the first
// prompt of the call.
func RenderGather(text, action string, firstPrompt bool) (string, error) {
	g := &Gather{
		Input:         "speech",
		Action:        action,
		SpeechTimeout: "auto",
		Say:           &Say{Voice: pollyVoice, Text: text},
	}
	if firstPrompt {
		g.SpeechModel = "phone_call"
	}
	return renderTwiML(&VoiceResponse{Gather: g})
}

// RenderSay speaks text without gathering further input, ending the exchange.
func RenderSay(text string) (string, error) {
	return renderTwiML(&VoiceResponse{Say: &Say{Text: text}})
}

func renderTwiML(resp *VoiceResponse) (string, error) {
	out, err := xml.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("messaging: render twiml: %w", err)
	}
	return xml.Header + string(out), nil
}
