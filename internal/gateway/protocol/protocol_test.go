package protocol

import (
	"errors"
	"strings"
	"testing"
)

const (
	chanID = "0b8f3f6e-1df3-4f2a-9c55-6a2b3a1f0d11"
	convID = "7f1a2b3c-4d5e-6f70-8192-a3b4c5d6e7f8"
)

func TestMessagePayloadScope(t *testing.T) {
	cases := []struct {
		name    string
		payload MessagePayload
		wantErr error
	}{
		{"channel only", MessagePayload{ChannelID: chanID, Content: "hi"}, nil},
		{"conversation only", MessagePayload{ConversationID: convID, Content: "hi"}, nil},
		{"neither", MessagePayload{Content: "hi"}, ErrMissingScope},
		{"both", MessagePayload{ChannelID: chanID, ConversationID: convID, Content: "hi"}, ErrAmbiguousScope},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestMessagePayloadScopeMustBeUUID(t *testing.T) {
	if err := (&MessagePayload{ChannelID: "general", Content: "hi"}).Validate(); err == nil {
		t.Fatal("non-uuid channelId must be rejected")
	}
	if err := (&MessagePayload{ConversationID: "chat-with-bob", Content: "hi"}).Validate(); err == nil {
		t.Fatal("non-uuid conversationId must be rejected")
	}
}

func TestMessagePayloadContent(t *testing.T) {
	if err := (&MessagePayload{ChannelID: chanID, Content: "   "}).Validate(); err == nil {
		t.Fatal("whitespace-only content with no attachments must be rejected")
	}
	if err := (&MessagePayload{ChannelID: chanID, Attachments: []string{"https://cdn/a.png"}}).Validate(); err != nil {
		t.Fatalf("attachment-only message must pass: %v", err)
	}
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("x", MaxContentLength)}).Validate(); err != nil {
		t.Fatalf("content at the cap must pass: %v", err)
	}
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("x", MaxContentLength+1)}).Validate(); err == nil {
		t.Fatal("content over the cap must be rejected")
	}
}

func TestMessagePayloadContentCountsRunesNotBytes(t *testing.T) {
	// 3000 CJK characters is 9000 bytes but well under the 5000-char cap
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("好", 3000)}).Validate(); err != nil {
		t.Fatalf("multibyte content under the cap must pass: %v", err)
	}
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("好", MaxContentLength)}).Validate(); err != nil {
		t.Fatalf("multibyte content at the cap must pass: %v", err)
	}
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("好", MaxContentLength+1)}).Validate(); err == nil {
		t.Fatal("multibyte content over the cap must be rejected")
	}
}

func TestSetMaxContentLength(t *testing.T) {
	prev := MaxContentLength
	t.Cleanup(func() { MaxContentLength = prev })

	SetMaxContentLength(10)
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("x", 11)}).Validate(); err == nil {
		t.Fatal("content over the configured cap must be rejected")
	}
	if err := (&MessagePayload{ChannelID: chanID, Content: strings.Repeat("x", 10)}).Validate(); err != nil {
		t.Fatalf("content at the configured cap must pass: %v", err)
	}

	// non-positive values keep the current cap
	SetMaxContentLength(0)
	if MaxContentLength != 10 {
		t.Fatalf("cap changed to %d on non-positive input", MaxContentLength)
	}
}

func TestKnownType(t *testing.T) {
	for _, typ := range []string{
		TypePing, TypeAuth, TypeMessage, TypeDMMessage,
		TypeTypingStart, TypeTypingStop, TypePresenceUpdate,
		TypeJoinChannel, TypeLeaveChannel, TypeJoinConversation, TypeLeaveConversation,
		"call:offer", "call:answer", "call:candidate", "call:start", "call:end", "call:reject",
	} {
		if !KnownType(typ) {
			t.Fatalf("type %q must be recognized", typ)
		}
	}
	for _, typ := range []string{"", "PING", "call:bogus", "future_frame_type"} {
		if KnownType(typ) {
			t.Fatalf("type %q must not be recognized", typ)
		}
	}
}

func TestAuthPayload(t *testing.T) {
	if err := (&AuthPayload{}).Validate(); err == nil {
		t.Fatal("empty token must be rejected")
	}
	if err := (&AuthPayload{Token: "t"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPresencePayload(t *testing.T) {
	for _, status := range []string{"online", "idle", "dnd", "offline"} {
		if err := (&PresencePayload{Status: status}).Validate(); err != nil {
			t.Fatalf("status %q must pass: %v", status, err)
		}
	}
	for _, status := range []string{"", "away", "ONLINE"} {
		if err := (&PresencePayload{Status: status}).Validate(); err == nil {
			t.Fatalf("status %q must be rejected", status)
		}
	}
}

func TestCallSignalPayload(t *testing.T) {
	if err := (&CallSignalPayload{}).Validate(); err == nil {
		t.Fatal("missing targetUserId must be rejected")
	}
	if err := (&CallSignalPayload{TargetUserID: "user-2"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTypingPayloadScope(t *testing.T) {
	if err := (&TypingPayload{}).Validate(); !errors.Is(err, ErrMissingScope) {
		t.Fatalf("got %v, want %v", err, ErrMissingScope)
	}
	if err := (&TypingPayload{ChannelID: chanID}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
