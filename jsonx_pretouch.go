//go:build !nojsonsimd

package main

import (
	"reflect"

	"github.com/bytedance/sonic"
)

func init() {
	// The message log is the largest payload and is decoded every cycle;
	// compile its codec up front instead of on the first refresh.
	//
	// Best-effort: a failed pretouch only costs first-hit latency.
	_ = sonic.Pretouch(reflect.TypeFor[messageLog]())
	_ = sonic.Pretouch(reflect.TypeFor[counterPayload]())
	_ = sonic.Pretouch(reflect.TypeFor[healthResponse]())
}
