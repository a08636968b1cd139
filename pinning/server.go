package pinning

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"pixelate.dev/pixelate/cidutil"
	"pixelate.dev/pixelate/raster"
	"pixelate.dev/pixelate/storage"
)

const (
	maxMetadataBytes = 64 << 10
	// multipart framing allowance on top of MaxBytes
	bodyOverhead = 128 << 10
)

type ServerOptions struct {
	// MaxBytes caps the file part. Zero means raster.DefaultMaxBytes.
	MaxBytes int64

	// ScratchDir holds per-request staging files. Empty means os.TempDir().
	ScratchDir string

	// Credentials maps API keys to secrets. Empty disables authentication.
	Credentials map[string]string

	// AllowedOrigins for CORS. Empty means "*".
	AllowedOrigins []string

	// GatewayCacheEntries sizes the gateway LRU. Zero means 256.
	GatewayCacheEntries int
}

// Server implements the pin contract on a storage.CAS.
type Server struct {
	cas     storage.CAS
	opts    ServerOptions
	log     zerolog.Logger
	cache   *lru.Cache
	metrics *metrics
	handler http.Handler
}

func NewServer(cas storage.CAS, opts ServerOptions, log zerolog.Logger) (*Server, error) {
	if cas == nil {
		return nil, errors.New("pinning: nil CAS")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = raster.DefaultMaxBytes
	}
	if opts.GatewayCacheEntries <= 0 {
		opts.GatewayCacheEntries = 256
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	cache, err := lru.New(opts.GatewayCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("pinning: gateway cache: %w", err)
	}
	s := &Server{
		cas:     cas,
		opts:    opts,
		log:     log.With().Str("component", "pin_server").Logger(),
		cache:   cache,
		metrics: newMetrics(),
	}

	router := mux.NewRouter()
	router.Use(s.metrics.middleware)
	router.HandleFunc(PinsPath, s.handlePin).Methods(http.MethodPost)
	router.HandleFunc(GatewayPath+"{cid}", s.handleGateway).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	}).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedHeaders: []string{"Content-Type", HeaderAPIKey, HeaderAPISecret, HeaderRequestID},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
			http.MethodHead},
	})
	s.handler = c.Handler(router)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) authorized(r *http.Request) bool {
	if len(s.opts.Credentials) == 0 {
		return true
	}
	secret, ok := s.opts.Credentials[r.Header.Get(HeaderAPIKey)]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(r.Header.Get(HeaderAPISecret))) == 1
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := s.log.With().Str("request_id", reqID).Logger()

	if !s.authorized(r) {
		s.metrics.pins.WithLabelValues("error").Inc()
		writeError(w, http.StatusUnauthorized, WireAuth, "missing or invalid API credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBytes+bodyOverhead)
	data, meta, status, err := s.readUpload(r)
	if err != nil {
		s.metrics.pins.WithLabelValues("error").Inc()
		kind := WireInvalid
		if status == http.StatusRequestEntityTooLarge {
			kind = WireQuota
		}
		log.Debug().Err(err).Int("status", status).Msg("upload rejected")
		writeError(w, status, kind, err.Error())
		return
	}

	pin, err := s.cas.Put(r.Context(), data, meta)
	if err != nil {
		s.metrics.pins.WithLabelValues("error").Inc()
		if errors.Is(err, storage.ErrTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, WireQuota, err.Error())
			return
		}
		log.Error().Err(err).Msg("pin failed")
		writeError(w, http.StatusInternalServerError, WireInternal, "could not store object")
		return
	}

	result := "new"
	if pin.Duplicate {
		result = "duplicate"
	}
	s.metrics.pins.WithLabelValues(result).Inc()
	s.metrics.pinBytes.Observe(float64(pin.Size))
	log.Info().
		Str("cid", pin.CID.String()).
		Int("size", pin.Size).
		Bool("duplicate", pin.Duplicate).
		Str("name", meta.Name).
		Msg("pinned")
	writeJSON(w, http.StatusOK, PinResponse{CID: pin.CID.String(), Size: pin.Size, Duplicate: pin.Duplicate})
}

// readUpload streams the multipart body, staging the file part in a scratch
// file that is removed before returning.
func (s *Server) readUpload(r *http.Request) (data []byte, meta storage.Meta, status int, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, meta, http.StatusBadRequest, fmt.Errorf("expected multipart body: %w", err)
	}

	var scratch *os.File
	defer func() {
		if scratch != nil {
			scratch.Close()
			if rmErr := os.Remove(scratch.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.log.Warn().Err(rmErr).Str("path", scratch.Name()).Msg("could not remove scratch file")
			}
		}
	}()

	sawMeta := false
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return nil, meta, bodyStatus(perr), fmt.Errorf("read multipart: %w", perr)
		}
		switch part.FormName() {
		case FieldMetadata:
			dec := json.NewDecoder(io.LimitReader(part, maxMetadataBytes))
			if err := dec.Decode(&meta); err != nil {
				return nil, meta, bodyStatus(err), fmt.Errorf("metadata: %w", err)
			}
			sawMeta = true
		case FieldFile:
			if scratch != nil {
				return nil, meta, http.StatusBadRequest, errors.New("more than one file part")
			}
			scratch, err = os.CreateTemp(s.opts.ScratchDir, "pind-*.upload")
			if err != nil {
				return nil, meta, http.StatusInternalServerError, fmt.Errorf("scratch file: %w", err)
			}
			n, err := io.Copy(scratch, io.LimitReader(part, s.opts.MaxBytes+1))
			if err != nil {
				return nil, meta, bodyStatus(err), fmt.Errorf("file: %w", err)
			}
			if n > s.opts.MaxBytes {
				return nil, meta, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds %d bytes", s.opts.MaxBytes)
			}
			if n == 0 {
				return nil, meta, http.StatusBadRequest, errors.New("empty file")
			}
		}
		part.Close()
	}
	if scratch == nil {
		return nil, meta, http.StatusBadRequest, errors.New("missing file part")
	}
	if !sawMeta || meta.Name == "" {
		meta.Name = DefaultMeta().Name
	}
	data, err = os.ReadFile(scratch.Name())
	if err != nil {
		return nil, meta, http.StatusInternalServerError, fmt.Errorf("read scratch file: %w", err)
	}
	return data, meta, http.StatusOK, nil
}

func bodyStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	id, err := cidutil.Parse(mux.Vars(r)["cid"])
	if err != nil {
		writeError(w, http.StatusBadRequest, WireInvalid, err.Error())
		return
	}

	var data []byte
	if v, ok := s.cache.Get(id); ok {
		data = v.([]byte)
		s.metrics.gateway.WithLabelValues("hit").Inc()
	} else {
		data, err = s.cas.Get(r.Context(), id)
		if err != nil {
			s.metrics.gateway.WithLabelValues("error").Inc()
			if storage.IsNotFound(err) {
				writeError(w, http.StatusNotFound, WireInvalid, "not found")
				return
			}
			s.log.Error().Err(err).Str("cid", id.String()).Msg("gateway read failed")
			writeError(w, http.StatusInternalServerError, WireInternal, "could not read object")
			return
		}
		if err := cidutil.Verify(id, data); err != nil {
			s.metrics.gateway.WithLabelValues("error").Inc()
			s.log.Error().Err(err).Str("cid", id.String()).Msg("stored object does not match cid")
			writeError(w, http.StatusInternalServerError, WireInternal, "stored object is corrupt")
			return
		}
		s.cache.Add(id, data)
		s.metrics.gateway.WithLabelValues("miss").Inc()
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Etag", `"`+id.String()+`"`)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorBody{Error: WireError{Kind: kind, Message: message}})
}
