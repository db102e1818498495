package model

import "time"

// NotificationRecord is the ledger entry written once per settled group that produced a message.
type NotificationRecord struct {
	GroupID      string      `json:"group_id"`
	TxHash       string      `json:"tx_hash"`
	Network      Network     `json:"network"`
	Target       string      `json:"target"`
	Category     Category    `json:"category"`
	KindsPresent []AssetKind `json:"kinds_present"`
	KindsMissing []AssetKind `json:"kinds_missing,omitempty"`
	Recipients   []string    `json:"recipients"`
	Message      string      `json:"message"`
	Delivered    int         `json:"delivered"`
	Failed       int         `json:"failed"`
	SettledAt    time.Time   `json:"settled_at"`
}
