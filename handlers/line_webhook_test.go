package handlers

import (
	"context"
	"testing"

	"sktutorials_go/models"
	"sktutorials_go/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinker struct {
	phones map[string]string
	linked map[string]string
}

func (f *fakeLinker) LinkLineUser(ctx context.Context, phone, lineUserID string) (*models.Student, error) {
	name, ok := f.phones[phone]
	if !ok {
		return nil, services.ErrPhoneNotRegistered
	}
	f.linked[lineUserID] = phone
	return &models.Student{Name: name}, nil
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	sig := computeSignature("secret", body)

	assert.True(t, validateSignature("secret", body, sig))
	assert.False(t, validateSignature("other", body, sig))
	assert.False(t, validateSignature("secret", []byte(`{"events":[{}]}`), sig))
}

func TestProcessEventsLinksPhone(t *testing.T) {
	linker := &fakeLinker{phones: map[string]string{"98123 45601": "Asha"}, linked: map[string]string{}}
	var replies []string
	h := &LineWebhookHandler{students: linker, reply: func(token, text string) error {
		replies = append(replies, token+":"+text)
		return nil
	}}

	body := []byte(`{"events":[
		{"type":"follow","replyToken":"r0","timestamp":1,"mode":"active","source":{"type":"user","userId":"U1"}},
		{"type":"message","replyToken":"r1","timestamp":2,"mode":"active","source":{"type":"user","userId":"U1"},
		 "message":{"type":"text","id":"1","text":"my number is 98123 45601"}},
		{"type":"message","replyToken":"r2","timestamp":3,"mode":"active","source":{"type":"user","userId":"U2"},
		 "message":{"type":"text","id":"2","text":"call 90000 00000"}},
		{"type":"message","replyToken":"r3","timestamp":4,"mode":"active","source":{"type":"user","userId":"U3"},
		 "message":{"type":"text","id":"3","text":"hello"}}
	]}`)
	require.NoError(t, h.processEvents(context.Background(), body))

	assert.Equal(t, map[string]string{"U1": "98123 45601"}, linker.linked)
	require.Len(t, replies, 3)
	assert.Equal(t, "r0:"+followReply, replies[0])
	assert.Equal(t, "r1:Thanks Asha, fee reminders will now be sent to this chat.", replies[1])
	assert.Equal(t, "r2:"+unknownReply, replies[2])
}

func TestProcessEventsRejectsGarbage(t *testing.T) {
	h := &LineWebhookHandler{}
	assert.Error(t, h.processEvents(context.Background(), []byte(`not json`)))
}

func TestPhonePattern(t *testing.T) {
	tests := map[string]string{
		"+91 98123-45601 please": "+91 98123-45601",
		"9812345601":             "9812345601",
		"room 12":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, phonePattern.FindString(in), in)
	}
}
