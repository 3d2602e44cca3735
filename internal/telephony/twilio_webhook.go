package telephony

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Twilio posts voice webhooks as application/x-www-form-urlencoded.
// These parsers capture the subset of fields the outcome handler needs.
// Business logic (outcome decisions) is not made here.

type TwilioVoiceForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus string
	AnsweredBy string
	Digits     string
	Timestamp  string
}

func ParseTwilioVoiceForm(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	f := TwilioVoiceForm{
		CallSid:    r.PostFormValue("CallSid"),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		CallStatus: r.PostFormValue("CallStatus"),
		AnsweredBy: r.PostFormValue("AnsweredBy"),
		Digits:     strings.TrimSpace(r.PostFormValue("Digits")),
		Timestamp:  r.PostFormValue("Timestamp"),
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

func (f TwilioVoiceForm) ToAnswerCallback(occurredAt time.Time) AnswerCallback {
	raw, _ := json.Marshal(f)
	return AnswerCallback{
		ProviderCallID: f.CallSid,
		From:           f.From,
		To:             f.To,
		AnsweredBy:     MapTwilioAnsweredBy(f.AnsweredBy),
		OccurredAt:     occurredAt,
		Raw:            string(raw),
	}
}

func (f TwilioVoiceForm) ToGatherCallback(occurredAt time.Time) GatherCallback {
	raw, _ := json.Marshal(f)
	return GatherCallback{
		ProviderCallID: f.CallSid,
		Digits:         f.Digits,
		OccurredAt:     occurredAt,
		Raw:            string(raw),
	}
}

func (f TwilioVoiceForm) ToStatusCallback(occurredAt time.Time) StatusCallback {
	raw, _ := json.Marshal(f)
	return StatusCallback{
		ProviderCallID: f.CallSid,
		Status:         MapTwilioCallStatus(f.CallStatus),
		AnsweredBy:     MapTwilioAnsweredBy(f.AnsweredBy),
		OccurredAt:     occurredAt,
		Raw:            string(raw),
	}
}
