package main

import "github.com/bytedance/sonic"

var fastJSON = sonic.ConfigDefault

// fastJSONMarshal encodes v with Sonic. Used for the small JSON bodies served
// by the metrics listener.
func fastJSONMarshal(v any) ([]byte, error) {
	return fastJSON.Marshal(v)
}

// fastJSONUnmarshal decodes data into v with Sonic. Remote payloads go through
// here except the score table, which needs key order (see parseScoreTable).
func fastJSONUnmarshal(data []byte, v any) error {
	return fastJSON.Unmarshal(data, v)
}
