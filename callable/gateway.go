// Package callable exposes request handlers over the HTTPS-callable
// protocol the mobile and web clients speak: a POST with a {"data": ...}
// JSON envelope and an optional Firebase ID token, answered with either
// {"result": ...} or {"error": {"status", "message"}}.
package callable

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bmizerany/pat"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/versebook/verse-server/auth"
)

// Handler serves one callable operation.
type Handler func(ctx context.Context, data json.RawMessage) (interface{}, error)

type Gateway struct {
	log    *zap.Logger
	authn  auth.Authenticator
	router *pat.PatternServeMux
}

func NewGateway(log *zap.Logger, authn auth.Authenticator) *Gateway {
	return &Gateway{
		log:    log,
		authn:  authn,
		router: pat.New(),
	}
}

// Handle registers a callable operation under POST /{name}.
func (g *Gateway) Handle(name string, handler Handler) {
	g.router.Post("/"+name, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(w, r, name, handler)
	}))
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, name string, handler Handler) {
	ctx := r.Context()

	// A missing Authorization header is not an error at the transport
	// layer; handlers decide whether identity is required. A present but
	// invalid token is.
	if token := bearerToken(r); token != "" {
		userID, err := g.authn.Authenticate(ctx, token)
		if err != nil {
			g.writeError(w, name, err)
			return
		}
		ctx = auth.WithUserID(ctx, userID)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		g.writeError(w, name, status.Error(codes.InvalidArgument, "request body is not valid JSON"))
		return
	}

	result, err := handler(ctx, envelope.Data)
	if err != nil {
		g.writeError(w, name, err)
		return
	}

	g.writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (g *Gateway) writeError(w http.ResponseWriter, name string, err error) {
	st := status.Convert(err)
	httpStatus, callableStatus := translateCode(st.Code())

	if st.Code() == codes.Internal || st.Code() == codes.Unknown {
		g.log.Warn("Callable operation failed",
			zap.String("operation", name),
			zap.Error(err),
		)
	}

	g.writeJSON(w, httpStatus, map[string]interface{}{
		"error": map[string]string{
			"status":  callableStatus,
			"message": st.Message(),
		},
	})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, httpStatus int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.log.Warn("Failed to write callable response", zap.Error(err))
	}
}

func translateCode(code codes.Code) (int, string) {
	switch code {
	case codes.Unauthenticated:
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case codes.InvalidArgument:
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case codes.PermissionDenied:
		return http.StatusForbidden, "PERMISSION_DENIED"
	case codes.NotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case codes.FailedPrecondition:
		return http.StatusBadRequest, "FAILED_PRECONDITION"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// JSON adapts a typed request handler to the callable envelope.
func JSON[Req any, Resp any](fn func(ctx context.Context, req *Req) (Resp, error)) Handler {
	return func(ctx context.Context, data json.RawMessage) (interface{}, error) {
		var req Req
		if len(data) > 0 {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, status.Error(codes.InvalidArgument, "request data is not valid JSON")
			}
		}
		return fn(ctx, &req)
	}
}
