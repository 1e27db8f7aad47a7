package cmn

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec used for every wire format in bulkcollect: the
// availability matrix file, the collection-request config file, and the
// persisted run manifest.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// MustMarshal marshals v and panics on error; reserved for values whose
// shape this package controls (e.g. a RunManifest about to be persisted),
// never for data read from outside the process.
func MustMarshal(v interface{}) []byte {
	b, err := JSON.Marshal(v)
	AssertNoErr(err)
	return b
}
