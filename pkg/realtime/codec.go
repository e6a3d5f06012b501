package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// EventKind classifies inbound server events into the handful of cases the
// session controller acts on. Everything else is KindIgnored.
type EventKind int

const (
	KindIgnored EventKind = iota
	KindSessionReady
	KindSpeechStarted
	KindSpeechStopped
	KindCommitted
	KindResponseCreated
	KindResponseDone
	KindTranscriptDelta
	KindAudioDelta
	KindToolCall
	KindError
)

// ServerEvent is the decoded shape of one inbound frame. Only the fields
// relevant to its kind are populated; unknown fields are dropped.
type ServerEvent struct {
	Type       string       `json:"type"`
	Delta      string       `json:"delta"`
	Transcript string       `json:"transcript"`
	Name       string       `json:"name"`
	CallID     string       `json:"call_id"`
	Arguments  string       `json:"arguments"`
	Error      *ServerError `json:"error"`
}

// ServerError is the body of an inbound error event.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DecodeServerEvent parses one inbound frame. Frames that are not valid
// JSON are rejected; the caller logs and drops them without tearing down
// the session.
func DecodeServerEvent(data []byte) (*ServerEvent, error) {
	var evt ServerEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("realtime: undecodable frame: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("realtime: frame missing type")
	}
	return &evt, nil
}

// Kind maps the event type string onto the controller's decision table.
// Both the current and the previous generation of audio event names are
// recognized.
func (e *ServerEvent) Kind() EventKind {
	switch e.Type {
	case "session.created", "session.updated":
		return KindSessionReady
	case "input_audio_buffer.speech_started":
		return KindSpeechStarted
	case "input_audio_buffer.speech_stopped":
		return KindSpeechStopped
	case "input_audio_buffer.committed":
		return KindCommitted
	case "response.created":
		return KindResponseCreated
	case "response.done":
		return KindResponseDone
	case "response.audio_transcript.delta", "response.output_audio_transcript.delta",
		"response.text.delta", "response.output_text.delta":
		return KindTranscriptDelta
	case "response.audio.delta", "response.output_audio.delta":
		return KindAudioDelta
	case "response.function_call_arguments.done":
		return KindToolCall
	case "error":
		return KindError
	default:
		return KindIgnored
	}
}

// AudioPayload decodes the base64 PCM16 body of an audio delta.
func (e *ServerEvent) AudioPayload() ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(e.Delta)
	if err != nil {
		return nil, fmt.Errorf("realtime: malformed audio delta: %w", err)
	}
	return pcm, nil
}

// Err converts an error event into an APIError.
func (e *ServerEvent) Err() *APIError {
	if e.Error == nil {
		return &APIError{Message: "unknown server error"}
	}
	return &APIError{Code: e.Error.Code, Type: e.Error.Type, Message: e.Error.Message}
}

// Outbound message constructors. The Realtime wire format is loosely typed
// JSON, so these build maps rather than a parallel struct hierarchy.

func msgSessionUpdate(instructions, voice string, vadSilence time.Duration, toolSchemas []map[string]any) map[string]any {
	session := map[string]any{
		"modalities":          []string{"text", "audio"},
		"instructions":        instructions,
		"voice":               voice,
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": int(vadSilence.Milliseconds()),
		},
	}
	if len(toolSchemas) > 0 {
		session["tools"] = toolSchemas
		session["tool_choice"] = "auto"
	}
	return map[string]any{"type": "session.update", "session": session}
}

func msgAudioAppend(pcm []byte) map[string]any {
	return map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}
}

func msgAudioCommit() map[string]any {
	return map[string]any{"type": "input_audio_buffer.commit"}
}

func msgResponseCreate() map[string]any {
	return map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities": []string{"text", "audio"},
		},
	}
}

func msgResponseCancel() map[string]any {
	return map[string]any{"type": "response.cancel"}
}

func msgSpokenResponse(text string) map[string]any {
	return map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"modalities":   []string{"text", "audio"},
			"instructions": "Say exactly this to the user: " + text,
		},
	}
}

func msgUserText(text string) map[string]any {
	return map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
}

func msgToolResult(callID, output string) map[string]any {
	return map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	}
}
