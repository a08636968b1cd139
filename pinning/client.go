package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/storage"
)

const maxResponseBytes = 1 << 20

type ClientOptions struct {
	// Endpoint is the service base URL, e.g. "http://127.0.0.1:8001".
	Endpoint  string
	APIKey    string
	APISecret string

	// Timeout bounds one whole Pin call when non-zero.
	Timeout time.Duration

	// ScratchDir holds the per-request staging file. Empty means os.TempDir().
	ScratchDir string

	// VerifyCID rejects a response whose CID does not hash the uploaded bytes.
	VerifyCID bool

	HTTPClient *http.Client
}

// Result is a successful pin. Duplicate results are as good as new ones.
type Result struct {
	CID       cid.Cid
	Size      int
	Duplicate bool
}

// Client uploads bytes to a pinning service. It never retries.
type Client struct {
	opts ClientOptions
	http *http.Client
	log  zerolog.Logger
}

func NewClient(opts ClientOptions, log zerolog.Logger) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("pinning: endpoint is required")
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{opts: opts, http: hc, log: log.With().Str("component", "pin_client").Logger()}, nil
}

// Pin uploads data with meta and returns the service's content identifier.
func (c *Client) Pin(ctx context.Context, data []byte, meta storage.Meta) (Result, error) {
	if len(data) == 0 {
		return Result{}, &Error{Kind: KindMalformed, Message: "empty payload"}
	}
	def := DefaultMeta()
	if meta.Name == "" {
		meta.Name = def.Name
	}
	if len(meta.Tags) == 0 {
		meta.Tags = def.Tags
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	scratch, err := stage(c.opts.ScratchDir, data)
	if err != nil {
		return Result{}, fmt.Errorf("pinning: stage upload: %w", err)
	}
	defer func() {
		scratch.Close()
		if err := os.Remove(scratch.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("path", scratch.Name()).Msg("could not remove scratch file")
		}
	}()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeBody(mw, scratch, meta))
	}()
	defer func() {
		pr.Close()
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint+PinsPath, pr)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Message: "build request", Cause: err}
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderRequestID, reqID)
	if c.opts.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.opts.APIKey)
		req.Header.Set(HeaderAPISecret, c.opts.APISecret)
	}

	log := c.log.With().Str("request_id", reqID).Int("bytes", len(data)).Logger()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("pin request failed")
		return Result{}, &Error{Kind: KindNetwork, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "read response", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		_ = json.Unmarshal(body, &eb)
		msg := eb.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		kind := classify(resp.StatusCode, eb.Error.Kind)
		log.Debug().Int("status", resp.StatusCode).Str("kind", string(kind)).Msg("pin refused")
		return Result{}, &Error{Kind: kind, Status: resp.StatusCode, Message: msg}
	}

	var parsed PinResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, &Error{Kind: KindMalformed, Status: resp.StatusCode, Message: "undecodable response", Cause: err}
	}
	id, err := cidutil.Parse(parsed.CID)
	if err != nil {
		return Result{}, &Error{Kind: KindMalformed, Status: resp.StatusCode, Message: "invalid cid in response", Cause: err}
	}
	if c.opts.VerifyCID {
		if err := cidutil.Verify(id, data); err != nil {
			return Result{}, &Error{Kind: KindMalformed, Status: resp.StatusCode, Message: "cid does not match uploaded bytes", Cause: err}
		}
	}

	log.Info().
		Str("cid", id.String()).
		Bool("duplicate", parsed.Duplicate).
		Dur("took", time.Since(start)).
		Msg("pinned")
	return Result{CID: id, Size: parsed.Size, Duplicate: parsed.Duplicate}, nil
}

// stage writes data to a new file in dir and rewinds it.
func stage(dir string, data []byte) (*os.File, error) {
	f, err := os.CreateTemp(dir, "pin-*.upload")
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}

func writeBody(mw *multipart.Writer, file io.Reader, meta storage.Meta) error {
	mh := make(textproto.MIMEHeader)
	mh.Set("Content-Disposition", `form-data; name="`+FieldMetadata+`"`)
	mh.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(mh)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(meta); err != nil {
		return err
	}

	part, err = mw.CreateFormFile(FieldFile, fileName(meta.Name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}

func fileName(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' || r < ' ' {
			return '_'
		}
		return r
	}, name)
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	return name
}
