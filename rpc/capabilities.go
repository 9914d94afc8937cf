package rpc

import "github.com/njfio/tau/tauerrors"

// NegotiatedRequestSchemaVersion is the maximum request schema version
// this dispatcher supports.
const NegotiatedRequestSchemaVersion = 1

// ProtocolVersion is advertised verbatim in every capabilities.response.
const ProtocolVersion = 1

func kindStrings(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func terminalStateStrings() []string {
	out := make([]string, len(TerminalStates))
	for i, s := range TerminalStates {
		out[i] = string(s)
	}
	return out
}

func errorCodeStrings() []string {
	out := make([]string, len(tauerrors.CanonicalRPCCodes))
	for i, c := range tauerrors.CanonicalRPCCodes {
		out[i] = string(c)
	}
	return out
}

// BuildCapabilitiesResponse negotiates requestedSchemaVersion (0 means
// "unspecified, use default") and builds the capabilities.response
// payload. A non-zero requested version greater than what's supported
// surfaces invalid_payload.
func BuildCapabilitiesResponse(requestID string, requestedSchemaVersion int) (Frame, error) {
	negotiated := NegotiatedRequestSchemaVersion
	if requestedSchemaVersion != 0 {
		if requestedSchemaVersion > NegotiatedRequestSchemaVersion {
			return Frame{}, tauerrors.Newf(tauerrors.CodeInvalidPayload,
				"unsupported requested request_schema_version %d", requestedSchemaVersion)
		}
		negotiated = requestedSchemaVersion
	}

	return Frame{
		SchemaVersion: CurrentSchemaVersion,
		RequestID:     requestID,
		Kind:          KindCapabilitiesResponse,
		Payload: map[string]any{
			"protocol_version":                  ProtocolVersion,
			"negotiated_request_schema_version": negotiated,
			"status_values":                     append([]string{string(StatusRunning)}, terminalStateStrings()...),
			"terminal_states":                   terminalStateStrings(),
			"request_kinds":                     kindStrings(RequestKinds),
			"response_kinds":                    kindStrings(ResponseKinds),
			"stream_event_kinds":                kindStrings(StreamEventKinds),
			"error_codes":                       errorCodeStrings(),
		},
	}, nil
}
