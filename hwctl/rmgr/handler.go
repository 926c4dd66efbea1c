package rmgr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hwctl-rmgr/hwctl/rmgr/domain"
	"hwctl-rmgr/hwctl/rmgr/infra"
)

// Options configura o handler HTTP.
type Options struct {
	// RetryAfter é o valor padrão do header Retry-After em respostas de
	// backpressure quando não há estimativa melhor.
	RetryAfter time.Duration
	// MaxBodyBytes limita o corpo das requisições.
	MaxBodyBytes int64
}

type handler struct {
	m    *Manager
	opts Options
}

// NewHandler monta as rotas da API de controle.
func NewHandler(m *Manager, opts Options) http.Handler {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	h := &handler{m: m, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /resources", h.resourceStats)
	mux.HandleFunc("POST /resources/{class}", h.acquire)
	mux.HandleFunc("DELETE /resources/{class}", h.release)

	mux.HandleFunc("GET /streams", h.listStreams)
	mux.HandleFunc("POST /streams", h.createStream)
	mux.HandleFunc("GET /streams/{id}", h.getStream)
	mux.HandleFunc("DELETE /streams/{id}", h.destroyStream)

	mux.HandleFunc("GET /csi/{port}", h.csiThreads)
	mux.HandleFunc("POST /csi/{port}/threads/{thread}", h.csiRegister)
	mux.HandleFunc("DELETE /csi/{port}/threads/{thread}", h.csiUnregister)

	mux.HandleFunc("GET /buffers", h.listBuffers)
	mux.HandleFunc("POST /buffers", h.registerBuffer)
	mux.HandleFunc("DELETE /buffers/{handle}", h.unregisterBuffer)

	mux.HandleFunc("GET /pipes/{pipe}", h.getPipe)
	mux.HandleFunc("PUT /pipes/{pipe}", h.setPipe)
	mux.HandleFunc("POST /pipes/{pipe}/flips", h.enqueueFlip)
	mux.HandleFunc("POST /flips/{id}/state", h.advanceFlip)
	mux.HandleFunc("POST /flips/{id}/notify", h.notifyFlip)
	mux.HandleFunc("POST /flips/completed", h.dequeueCompleted)

	mux.HandleFunc("GET /stats", h.stats)
	return mux
}

// ---- recursos ----

func (h *handler) resourceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.m.ISYS.Stats())
}

func (h *handler) acquire(w http.ResponseWriter, r *http.Request) {
	class, err := domain.ParseClass(r.PathValue("class"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	var sel domain.Selector
	if !h.decode(w, r, &sel) {
		return
	}
	slot, err := h.m.Resources.Acquire(r.Context(), class, sel)
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, slot)
}

func (h *handler) release(w http.ResponseWriter, r *http.Request) {
	class, err := domain.ParseClass(r.PathValue("class"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	var slot domain.Slot
	if !h.decode(w, r, &slot) {
		return
	}
	slot.Class = class
	if err := h.m.Resources.Release(r.Context(), slot); err != nil {
		h.writeError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- streams ----

func (h *handler) listStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.m.Streams.List())
}

func (h *handler) createStream(w http.ResponseWriter, r *http.Request) {
	var descr domain.StreamDescr
	if !h.decode(w, r, &descr) {
		return
	}
	st, err := h.m.Streams.Create(r.Context(), descr)
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *handler) getStream(w http.ResponseWriter, r *http.Request) {
	st, err := h.m.Streams.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) destroyStream(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Streams.Destroy(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- csi ----

func (h *handler) csiThreads(w http.ResponseWriter, r *http.Request) {
	port, err := pathUint(r, "port")
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	threads, err := h.m.CSI.Registered(port)
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"port": port, "threads": threads})
}

func (h *handler) csiRegister(w http.ResponseWriter, r *http.Request) {
	h.csiUpdate(w, r, h.m.CSI.Register)
}

func (h *handler) csiUnregister(w http.ResponseWriter, r *http.Request) {
	h.csiUpdate(w, r, h.m.CSI.Unregister)
}

func (h *handler) csiUpdate(w http.ResponseWriter, r *http.Request, op func(port, thread uint32) error) {
	port, err := pathUint(r, "port")
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	thread, err := pathUint(r, "thread")
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	if err := op(port, thread); err != nil {
		h.writeError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- buffers e flips ----

func (h *handler) listBuffers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.m.Flips.Buffers())
}

func (h *handler) registerBuffer(w http.ResponseWriter, r *http.Request) {
	var buf domain.Buffer
	if !h.decode(w, r, &buf) {
		return
	}
	if err := h.m.Flips.RegisterBuffer(buf); err != nil {
		h.writeError(w, err, 0)
		return
	}
	buf, _ = h.m.Flips.Buffer(buf.Handle)
	writeJSON(w, http.StatusCreated, buf)
}

func (h *handler) unregisterBuffer(w http.ResponseWriter, r *http.Request) {
	if err := h.m.Flips.UnregisterBuffer(r.PathValue("handle")); err != nil {
		h.writeError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getPipe(w http.ResponseWriter, r *http.Request) {
	pipe, err := parsePipe(r.PathValue("pipe"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	snap, err := h.m.Flips.Pipe(pipe)
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type pipeUpdate struct {
	Active       *bool   `json:"active"`
	SwapInterval *uint32 `json:"swap_interval"`
}

func (h *handler) setPipe(w http.ResponseWriter, r *http.Request) {
	pipe, err := parsePipe(r.PathValue("pipe"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	var upd pipeUpdate
	if !h.decode(w, r, &upd) {
		return
	}
	if upd.SwapInterval != nil {
		if err := h.m.Flips.SetSwapInterval(pipe, *upd.SwapInterval); err != nil {
			h.writeError(w, err, 0)
			return
		}
	}
	if upd.Active != nil {
		if err := h.m.Flips.SetActive(pipe, *upd.Active); err != nil {
			h.writeError(w, err, 0)
			return
		}
	}
	snap, err := h.m.Flips.Pipe(pipe)
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) enqueueFlip(w http.ResponseWriter, r *http.Request) {
	pipe, err := parsePipe(r.PathValue("pipe"))
	if err != nil {
		h.writeError(w, err, 0)
		return
	}
	// "buffer" é atalho para um flip de um plano só
	var req struct {
		Buffer  string   `json:"buffer"`
		Buffers []string `json:"buffers"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	handles := req.Buffers
	if req.Buffer != "" {
		handles = append([]string{req.Buffer}, handles...)
	}
	id, err := h.m.Flips.Enqueue(r.Context(), pipe, handles...)
	if err != nil {
		var wait time.Duration
		if errors.Is(err, domain.ErrFlipThrottled) {
			wait = h.m.Flips.RetryAfter(pipe)
		}
		h.writeError(w, err, wait)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "pipe": pipe.String()})
}

type flipStateRequest struct {
	State domain.FlipState `json:"state"`
}

func (h *handler) flipID(w http.ResponseWriter, r *http.Request) (domain.FlipID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: flip id %q", domain.ErrUnknownFlip, r.PathValue("id")), 0)
		return 0, false
	}
	return domain.FlipID(id), true
}

func (h *handler) advanceFlip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flipID(w, r)
	if !ok {
		return
	}
	var req flipStateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.m.Flips.Advance(r.Context(), id, req.State); err != nil {
		h.writeError(w, err, 0)
		return
	}
	f, ok := h.m.Flips.Queue.Get(id)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// notifyFlip recebe as notificações assíncronas do hardware. Transições
// inválidas são descartadas pelo serviço; a resposta é sempre 202.
func (h *handler) notifyFlip(w http.ResponseWriter, r *http.Request) {
	id, ok := h.flipID(w, r)
	if !ok {
		return
	}
	var req flipStateRequest
	if !h.decode(w, r, &req) {
		return
	}
	applied := h.m.Flips.Notify(r.Context(), id, req.State)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "applied": applied})
}

func (h *handler) dequeueCompleted(w http.ResponseWriter, r *http.Request) {
	done := h.m.Flips.DequeueCompleted(r.Context())
	if done == nil {
		done = []domain.Flip{}
	}
	writeJSON(w, http.StatusOK, done)
}

// ---- stats ----

type statsResponse struct {
	Total   infra.Counters                  `json:"total"`
	ByClass map[domain.Class]infra.Counters `json:"by_class"`
	ByPipe  map[string]infra.Counters       `json:"by_pipe"`
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Total:   h.m.Stats.Total(),
		ByClass: h.m.Stats.ByClass(),
		ByPipe:  map[string]infra.Counters{},
	}
	for p, c := range h.m.Stats.ByPipe() {
		resp.ByPipe[p.String()] = c
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- helpers ----

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor traduz a taxonomia de erros do domínio para status HTTP.
func statusFor(err error) int {
	switch {
	case domain.IsBackpressure(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrBufferBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidHandle),
		errors.Is(err, domain.ErrUnknownFlip),
		errors.Is(err, domain.ErrUnknownPipe),
		errors.Is(err, domain.ErrUnknownBuffer),
		errors.Is(err, domain.ErrUnknownStream):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *handler) writeError(w http.ResponseWriter, err error, retryAfter time.Duration) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		if retryAfter <= 0 {
			retryAfter = h.opts.RetryAfter
		}
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathUint(r *http.Request, name string) (uint32, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", domain.ErrConfig, name, r.PathValue(name))
	}
	return uint32(v), nil
}

// parsePipe aceita a letra do pipe (A, b) ou o índice (0, 1, 2).
func parsePipe(s string) (domain.PipeID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 1 {
		c := s[0] | 0x20
		if c >= 'a' && c < 'a'+domain.MaxPipes {
			return domain.PipeID(c - 'a'), nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= domain.MaxPipes {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownPipe, s)
	}
	return domain.PipeID(n), nil
}
