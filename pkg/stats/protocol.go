package stats

// ProtocolKind tags which collector wire protocol a deployment speaks.
type ProtocolKind int

const (
	// SignedChecksum posts document-database fields plus a SHA-256 checksum
	// keyed by a shared secret. No auth header, no batch id.
	SignedChecksum ProtocolKind = iota + 1
	// APIKeyDiff posts current and previous snapshots with an X-Api-Key
	// header and forwards the collector-issued batch id.
	APIKeyDiff
)

func (k ProtocolKind) String() string {
	switch k {
	case SignedChecksum:
		return "signed_checksum"
	case APIKeyDiff:
		return "api_key_diff"
	default:
		return "unknown"
	}
}

// Protocol is the tagged credential for one of the two wire protocols.
type Protocol struct {
	Kind   ProtocolKind
	Secret string
	APIKey string
}

func SignedChecksumProtocol(secret string) Protocol {
	return Protocol{Kind: SignedChecksum, Secret: secret}
}

func APIKeyDiffProtocol(apiKey string) Protocol {
	return Protocol{Kind: APIKeyDiff, APIKey: apiKey}
}

// CommitsBeforeCall reports whether the last-submit timestamp is written at
// admission, before the request goes out. The signed-checksum collector gets
// at-most-once delivery this way; the API-key collector only moves the
// timestamp once it has accepted a snapshot.
func (p Protocol) CommitsBeforeCall() bool {
	return p.Kind == SignedChecksum
}

// UsesPrevious reports whether payloads carry the last accepted snapshot.
func (p Protocol) UsesPrevious() bool {
	return p.Kind == APIKeyDiff
}

func (p Protocol) String() string {
	return p.Kind.String()
}
