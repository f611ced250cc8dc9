package logging

// Log tags prefixed to every log line, e.g.
//
//	log.Printf("%s%s Received request: %s", logging.LogTagLSP, logging.LogTagServer, method)
const (
	LogTagLSP       = "[LSP]"
	LogTagMain      = "[MAIN]"
	LogTagServer    = "[SERVER]"
	LogTagFormat    = "[FORMAT]"
	LogTagOnType    = "[ONTYPE]"
	LogTagOnPaste   = "[ONPASTE]"
	LogTagProvider  = "[PROVIDER]"
	LogTagContainer = "[CONTAINER]"
)
