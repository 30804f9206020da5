package fakebackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"Chatdesk/internal/voice"

	"github.com/gorilla/websocket"
)

// TextTranscriber treats UTF-8 text "audio" as its own transcript, so a
// plain text file can stand in for a recording during development.
func TextTranscriber(audio []byte, _ string) string {
	if utf8.Valid(audio) {
		return strings.TrimSpace(string(audio))
	}
	return fmt.Sprintf("(%d bytes of audio)", len(audio))
}

// handleSpeech collects one utterance: a start frame, binary audio, a stop
// frame. It answers with a single final or error result.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("speech upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var start voice.ControlMessage
	if err := conn.ReadJSON(&start); err != nil || start.Type != "start" {
		conn.WriteJSON(voice.ResultMessage{Type: "error", Error: "expected start frame"})
		return
	}

	var audio []byte
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("speech client went away", "error", err)
			return
		}
		if kind == websocket.BinaryMessage {
			audio = append(audio, data...)
			continue
		}
		var ctrl voice.ControlMessage
		if json.Unmarshal(data, &ctrl) == nil && ctrl.Type == "stop" {
			break
		}
	}

	transcript := s.opts.Transcribe(audio, start.Locale)
	if len(audio) == 0 || transcript == "" {
		conn.WriteJSON(voice.ResultMessage{Type: "error", Error: "no-speech"})
		return
	}
	s.logger.Info("transcribed utterance", "bytes", len(audio), "locale", start.Locale)
	conn.WriteJSON(voice.ResultMessage{Type: "final", Transcript: transcript, Confidence: 0.9})
}
