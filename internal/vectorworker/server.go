package vectorworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/vectorindex"
)

// Server listens on a Unix socket and dispatches requests to an engine.
// Each connection is handled sequentially: the protocol is half-duplex
// per correlation id, but distinct connections may be in flight at once.
type Server struct {
	socketPath string
	engine     *engine

	listener net.Listener
	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a worker server bound to socketPath, unstarted.
func NewServer(socketPath string) *Server {
	return &Server{socketPath: socketPath, engine: newEngine()}
}

// ListenAndServe starts the socket listener and blocks until ctx is
// cancelled or cleanup is requested, whichever comes first.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("vector worker listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("vector worker accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		slog.Warn("vector worker failed to set deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.dispatch(req)
	_ = encoder.Encode(resp)

	if req.Method == MethodCleanup {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Method {
	case MethodInit:
		var p InitParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := s.engine.init(p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodLoadIndex:
		var p LoadIndexParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		count, err := s.engine.loadIndex(p.Path)
		if err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, CountResult{Count: count})

	case MethodSaveIndex:
		var p LoadIndexParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := s.engine.saveIndex(p.Path); err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodAddVector:
		var p AddVectorParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := s.engine.addVector(p.ID, p.Vector); err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodAddVectors:
		var p AddVectorsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		n, err := s.engine.addVectors(p.Batch)
		if err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, CountResult{Count: n})

	case MethodSearch:
		var p SearchParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := p.Validate(); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		result, err := s.engine.search(p.QueryVector, p.K)
		if err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodGetCurrentCount:
		return NewSuccessResponse(req.ID, CountResult{Count: s.engine.currentCount()})

	case MethodResizeIndex:
		var p ResizeIndexParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := s.engine.resizeIndex(p.NewMax); err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodSetEf:
		var p SetEfParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		if err := s.engine.setEf(p.Ef); err != nil {
			return errResponse(req.ID, codeFor(err), err)
		}
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodReset:
		s.engine.reset()
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	case MethodIndexExists:
		var p IndexExistsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return errResponse(req.ID, ErrCodeInvalidParams, err)
		}
		return NewSuccessResponse(req.ID, ExistsResult{Exists: vectorindex.Exists(p.Path)})

	case MethodStats:
		return NewSuccessResponse(req.ID, s.engine.stats())

	case MethodCleanup:
		s.engine.cleanup()
		return NewSuccessResponse(req.ID, OKResult{OK: true})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func decodeParams(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func errResponse(id string, code int, err error) Response {
	return NewErrorResponse(id, code, err.Error())
}

// codeFor maps a CoreError kind to a worker-specific JSON-RPC error code.
func codeFor(err error) int {
	switch coreerrors.GetKind(err) {
	case coreerrors.KindDimensionMismatch:
		return ErrCodeDimensionMismatch
	case coreerrors.KindIndexVersionMismatch:
		return ErrCodeVersionMismatch
	case coreerrors.KindWorkerMemoryExhausted:
		return ErrCodeMemoryExhausted
	case coreerrors.KindInvalidArguments:
		return ErrCodeNotReady
	default:
		return ErrCodeInternalError
	}
}
