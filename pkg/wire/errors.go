// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package wire

import "fmt"

// Kind enumerates the failure taxonomy shared by every layer above
// the codec (session, keyexchange, envelope, router), so a single
// Error type carries both the failure reason and whether callers may
// retry.
type Kind int

const (
	KindInvalidPeerID Kind = iota
	KindInvalidPublicKey
	KindExchangeAlreadyInProgress
	KindNoPendingExchange
	KindTimeout
	KindCryptoFailure
	KindStorageFailure
	KindSessionAlreadyExists
	KindNoSession
	KindProtocolViolation
	KindUnsupportedKeyFormat
	KindDecodeError
	KindAuthenticationFailure
	KindReplayDetected
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidPeerID:
		return "InvalidPeerId"
	case KindInvalidPublicKey:
		return "InvalidPublicKey"
	case KindExchangeAlreadyInProgress:
		return "ExchangeAlreadyInProgress"
	case KindNoPendingExchange:
		return "NoPendingExchange"
	case KindTimeout:
		return "Timeout"
	case KindCryptoFailure:
		return "CryptoFailure"
	case KindStorageFailure:
		return "StorageFailure"
	case KindSessionAlreadyExists:
		return "SessionAlreadyExists"
	case KindNoSession:
		return "NoSession"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindUnsupportedKeyFormat:
		return "UnsupportedKeyFormat"
	case KindDecodeError:
		return "DecodeError"
	case KindAuthenticationFailure:
		return "AuthenticationFailure"
	case KindReplayDetected:
		return "ReplayDetected"
	default:
		return "InternalError"
	}
}

// Recoverable reports whether callers may retry a failure of this
// kind: Timeout, StorageFailure, and CryptoFailure are transient;
// everything else is not worth retrying.
func (k Kind) Recoverable() bool {
	switch k {
	case KindTimeout, KindStorageFailure, KindCryptoFailure:
		return true
	default:
		return false
	}
}

// Error is the single error type the core uses above the codec layer.
// It wraps Cause so callers can still errors.Is/As through to stdlib or
// third-party sentinel errors.
type Error struct {
	Kind       Kind
	Message    string
	Recoverable bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error, setting Recoverable from the kind's default.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Recoverable: kind.Recoverable(), Cause: cause}
}

// DecodeErrorReason further classifies KindDecodeError failures
// raised by the codec.
type DecodeErrorReason string

const (
	ReasonTruncatedHeader     DecodeErrorReason = "TruncatedHeader"
	ReasonUnknownTag          DecodeErrorReason = "UnknownTag"
	ReasonPayloadSizeMismatch DecodeErrorReason = "PayloadSizeMismatch"
	ReasonInvalidPayload      DecodeErrorReason = "InvalidPayload"
)

// NewDecodeError builds a KindDecodeError Error tagged with reason.
func NewDecodeError(reason DecodeErrorReason, cause error) *Error {
	return New(KindDecodeError, string(reason), cause)
}

// EncodeError is returned by Encode when a message's required fields
// (e.g. message_id) are unset.
type EncodeError struct {
	Message string
}

func (e *EncodeError) Error() string { return "wire: encode: " + e.Message }
