package realtime

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeServerEvent(t *testing.T) {
	t.Run("classification", func(t *testing.T) {
		cases := []struct {
			raw  string
			want EventKind
		}{
			{`{"type":"session.created"}`, KindSessionReady},
			{`{"type":"session.updated"}`, KindSessionReady},
			{`{"type":"input_audio_buffer.speech_started"}`, KindSpeechStarted},
			{`{"type":"input_audio_buffer.speech_stopped"}`, KindSpeechStopped},
			{`{"type":"input_audio_buffer.committed"}`, KindCommitted},
			{`{"type":"response.created"}`, KindResponseCreated},
			{`{"type":"response.done"}`, KindResponseDone},
			{`{"type":"response.audio_transcript.delta","delta":"hi"}`, KindTranscriptDelta},
			{`{"type":"response.audio.delta","delta":"AAAA"}`, KindAudioDelta},
			{`{"type":"response.output_audio.delta","delta":"AAAA"}`, KindAudioDelta},
			{`{"type":"response.function_call_arguments.done","name":"x"}`, KindToolCall},
			{`{"type":"error","error":{"message":"boom"}}`, KindError},
			{`{"type":"rate_limits.updated"}`, KindIgnored},
			{`{"type":"conversation.item.created"}`, KindIgnored},
		}
		for _, tc := range cases {
			evt, err := DecodeServerEvent([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode %s: %v", tc.raw, err)
			}
			if evt.Kind() != tc.want {
				t.Errorf("%s classified as %d, want %d", tc.raw, evt.Kind(), tc.want)
			}
		}
	})

	t.Run("malformed frame is rejected not fatal", func(t *testing.T) {
		if _, err := DecodeServerEvent([]byte(`{{not json`)); err == nil {
			t.Error("expected error for malformed frame")
		}
		if _, err := DecodeServerEvent([]byte(`{"delta":"x"}`)); err == nil {
			t.Error("expected error for frame without type")
		}
	})

	t.Run("audio payload round-trips", func(t *testing.T) {
		pcm := []byte{0x01, 0x02, 0x03, 0x04}
		raw, _ := json.Marshal(map[string]string{
			"type":  "response.audio.delta",
			"delta": base64.StdEncoding.EncodeToString(pcm),
		})
		evt, err := DecodeServerEvent(raw)
		if err != nil {
			t.Fatal(err)
		}
		got, err := evt.AudioPayload()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, pcm) {
			t.Errorf("payload mismatch: %v != %v", got, pcm)
		}
	})

	t.Run("bad base64 in audio delta", func(t *testing.T) {
		evt := &ServerEvent{Type: "response.audio.delta", Delta: "!!!not-base64!!!"}
		if _, err := evt.AudioPayload(); err == nil {
			t.Error("expected error for invalid base64")
		}
	})

	t.Run("error event carries detail", func(t *testing.T) {
		evt, err := DecodeServerEvent([]byte(
			`{"type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`))
		if err != nil {
			t.Fatal(err)
		}
		apiErr := evt.Err()
		if apiErr.Code != "bad" || apiErr.Message != "nope" {
			t.Errorf("error detail lost: %+v", apiErr)
		}
	})
}

func TestOutboundMessages(t *testing.T) {
	t.Run("audio append is base64", func(t *testing.T) {
		pcm := []byte{0x10, 0x20, 0x30}
		msg := msgAudioAppend(pcm)
		if msg["type"] != "input_audio_buffer.append" {
			t.Errorf("wrong type: %v", msg["type"])
		}
		decoded, err := base64.StdEncoding.DecodeString(msg["audio"].(string))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(decoded, pcm) {
			t.Error("audio payload mangled")
		}
	})

	t.Run("session update carries tools and server vad", func(t *testing.T) {
		schemas := []map[string]any{{"type": "function", "name": "schedule_reminder"}}
		msg := msgSessionUpdate("be brief", "alloy", 700*time.Millisecond, schemas)
		session := msg["session"].(map[string]any)
		if session["voice"] != "alloy" {
			t.Errorf("voice lost: %v", session["voice"])
		}
		td := session["turn_detection"].(map[string]any)
		if td["type"] != "server_vad" {
			t.Errorf("server vad not requested: %v", td["type"])
		}
		if td["silence_duration_ms"] != 700 {
			t.Errorf("silence threshold not applied: %v", td["silence_duration_ms"])
		}
		if len(session["tools"].([]map[string]any)) != 1 {
			t.Error("tool schemas lost")
		}
	})

	t.Run("session update without tools omits them", func(t *testing.T) {
		msg := msgSessionUpdate("x", "alloy", time.Second, nil)
		session := msg["session"].(map[string]any)
		if _, ok := session["tools"]; ok {
			t.Error("empty tools must be omitted")
		}
	})
}
