package memory

import (
	"testing"

	"pixelate.dev/pixelate/storage"
	"pixelate.dev/pixelate/storage/testkit"
)

func TestMemory_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS { return New() })
}
