package processor

// Error kinds written to the queue's failed hash. The set extends the shared
// taxonomy where the core needs more precision (signal_not_found).
const (
	KindParseError       = "parse_error"
	KindTemplateError    = "template_error"
	KindLLMTimeout       = "llm_timeout"
	KindLLMTransport     = "llm_transport"
	KindBrokerUnreached  = "broker_unreachable"
	KindStoreWriteError  = "store_write_error"
	KindDeadlineExceeded = "deadline_exceeded"
	KindSignalNotFound   = "signal_not_found"
	KindConfigUnavail    = "config_unavailable"
)
