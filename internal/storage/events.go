package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EventWriter is the interface for writing security events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *SecurityEvent)
	Close()
}

// EventType buckets classifier rejections.
type EventType string

const (
	EventPromptInjection   EventType = "prompt_injection"
	EventValidationFailure EventType = "validation_failure"
)

// SecurityEvent records one classifier rejection.
type SecurityEvent struct {
	EventID        string
	RequestID      string
	Timestamp      time.Time
	Type           EventType
	Severity       string
	GuardrailType  string
	Profile        string
	ClientID       string
	MessageIndex   int
	Detected       string
	PayloadPreview string // First 500 chars
	PayloadHash    string // SHA256 of full payload
	PayloadSize    uint32
}

// PayloadPreviewLength is the max chars stored in payload_preview.
const PayloadPreviewLength = 500

// TruncatePayload returns the first N characters (runes) of a payload for
// preview storage. It never splits a multi-byte UTF-8 character.
func TruncatePayload(payload string, maxLen int) string {
	runes := []rune(payload)
	if len(runes) <= maxLen {
		return payload
	}
	return string(runes[:maxLen])
}

// HashPayload returns the hex SHA-256 of payload.
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
