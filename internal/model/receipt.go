package model

import "time"

// OCRArtifact is the opaque output of an external OCR producer, attached to
// a Receipt once extraction has run. The core never interprets these fields
// beyond carrying them through to the remote insert payload.
type OCRArtifact struct {
	RawText    string  `json:"rawText"`
	Confidence float64 `json:"confidence"` // in [0,1]

	ExtractedAmount           *int64   `json:"extractedAmount,omitempty"`
	ExtractedAmountConfidence *float64 `json:"extractedAmountConfidence,omitempty"`

	ExtractedVendorName           *string  `json:"extractedVendorName,omitempty"`
	ExtractedVendorConfidence     *float64 `json:"extractedVendorConfidence,omitempty"`

	ExtractedDate           *string  `json:"extractedDate,omitempty"`
	ExtractedDateConfidence *float64 `json:"extractedDateConfidence,omitempty"`
}

// Receipt is the binary image payload plus optional OCR metadata.
type Receipt struct {
	LocalID  string  `json:"localId"`
	ServerID *string `json:"serverId,omitempty"`

	Image            []byte `json:"-"` // never serialized into logs/JSON dumps verbatim
	OriginalFilename string `json:"originalFilename"`
	FileSize         int64  `json:"fileSize"`
	MimeType         string `json:"mimeType"`
	ImageWidth       int    `json:"imageWidth"`
	ImageHeight      int    `json:"imageHeight"`

	OCR *OCRArtifact `json:"ocr,omitempty"`

	SyncStatus   SyncStatus `json:"syncStatus"`
	SyncError    string     `json:"syncError,omitempty"`
	SyncAttempts int        `json:"syncAttempts"`

	CreatedAt   time.Time  `json:"createdAt"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
}
