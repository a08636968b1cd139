package pinning

import (
	"pixelate.dev/pixelate/storage"
)

const (
	PinsPath    = "/pins"
	GatewayPath = "/ipfs/"

	HeaderAPIKey    = "X-Api-Key"
	HeaderAPISecret = "X-Api-Secret"
	HeaderRequestID = "X-Request-Id"

	FieldFile     = "file"
	FieldMetadata = "metadata"
)

// Error kinds carried in error bodies.
const (
	WireAuth     = "auth"
	WireQuota    = "quota"
	WireInvalid  = "invalid"
	WireInternal = "internal"
)

type PinResponse struct {
	CID       string `json:"cid"`
	Size      int    `json:"size"`
	Duplicate bool   `json:"duplicate"`
}

type ErrorBody struct {
	Error WireError `json:"error"`
}

type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// DefaultMeta is the metadata attached when the caller supplies none.
func DefaultMeta() storage.Meta {
	return storage.Meta{
		Name: "Pixelate",
		Tags: map[string]string{"description": "Image pixelated via the Pixelate app"},
	}
}
