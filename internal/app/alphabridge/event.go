package alphabridge

const (
	// JoinEventTopic is pushed for every completed join request.
	JoinEventTopic = "join"
	// CheckEventTopic is pushed for every completed check request.
	CheckEventTopic = "check"
)

// Outcome reasons carried by events and logs. Clients only ever see a
// generic rejection; the reasons exist for operators.
const (
	ReasonProviderError    = "provider_error"
	ReasonNameMismatch     = "name_mismatch"
	ReasonMalformedRequest = "malformed_request"
	ReasonStorageError     = "storage_error"
	ReasonTokenNotFound    = "token_not_found"
	ReasonTokenMismatch    = "token_name_mismatch"
)

type JoinEvent struct {
	Username  string
	ServerID  string
	Succeeded bool
	Reason    string
}

type CheckEvent struct {
	Username  string
	ServerID  string
	Succeeded bool
	Reason    string
}
