package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"
)

type signaturePayload struct {
	RecordID   string `json:"recordId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	FromStatus string `json:"fromStatus,omitempty"`
	ToStatus   string `json:"toStatus,omitempty"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

func buildSignaturePayload(rec *TransitionRecord) signaturePayload {
	payload := signaturePayload{
		RecordID:   rec.RecordID.String(),
		EntityType: string(rec.EntityType),
		EntityID:   rec.EntityID.String(),
		Action:     string(rec.Action),
		Actor:      rec.Actor,
		FromStatus: rec.FromStatus,
		ToStatus:   rec.ToStatus,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(rec.Detail) > 0 {
		payload.Detail = base64.StdEncoding.EncodeToString(rec.Detail)
	}
	return payload
}

// SignRecord generates an HMAC signature for the transition record.
func SignRecord(rec *TransitionRecord, key []byte) ([]byte, error) {
	payload := buildSignaturePayload(rec)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyRecordSignature verifies the HMAC signature for the transition record.
func VerifyRecordSignature(rec *TransitionRecord, key []byte) (bool, error) {
	if len(rec.Signature) == 0 {
		return false, nil
	}
	expected, err := SignRecord(rec, key)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, rec.Signature), nil
}
