// Package pinning moves pixelated images to a pinning service and back.
//
// The wire contract is small:
//
//	POST /pins            multipart: "file" (bytes), "metadata" (JSON {name, tags})
//	                      headers:   X-Api-Key, X-Api-Secret (optional)
//	200                   {"cid": "...", "size": n, "duplicate": bool}
//	non-2xx               {"error": {"kind": "auth|quota|invalid|internal", "message": "..."}}
//
//	GET /ipfs/{cid}       stored bytes
//
// Client speaks the contract; Server implements it on top of any storage.CAS.
// Both stage the upload in a scratch file that belongs to the single request
// and is removed however the request ends.
package pinning
