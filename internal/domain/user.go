// Package domain contains entities without transport or storage logic.
package domain

// UserID identifies a sender or a direct recipient.
// Validity of the identity itself is owned by an external directory.
type UserID int64

// MessageID is the surrogate key assigned by the store.
type MessageID int64
