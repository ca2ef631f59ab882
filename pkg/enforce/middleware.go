package enforce

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/api"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
)

type resultKey struct{}

// FromContext returns the enforcement result attached to an admitted
// request.
func FromContext(ctx context.Context) (*Result, bool) {
	res, ok := ctx.Value(resultKey{}).(*Result)
	return res, ok
}

// maxBodyBytes bounds how much request body the pipeline will hash.
const maxBodyBytes = 1 << 20

// Middleware guards next with the full pipeline for one route policy. On a
// challenge outcome it writes 402 with the challenge headers and body; on a
// policy failure it writes the failure code body; on success it dispatches
// next and emits the terminal served event.
func (e *Enforcer) Middleware(route *RoutePolicy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			api.WriteProblem(w, http.StatusBadRequest, string(CodeInvalidSignature), "unreadable request body", "", route.RouteID)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		res, err := e.Authorize(r.Context(), route, r.Header, body)
		if err != nil {
			writeAuthorizeError(w, route, err)
			return
		}

		if res.Outcome == OutcomeChallenge {
			if werr := payment.WriteChallenge(w.Header(), res.Challenge); werr != nil {
				api.WriteInternal(w, werr)
				return
			}
			api.WriteJSON(w, http.StatusPaymentRequired, res.Challenge)
			return
		}

		// Stage 12: Dispatch.
		ctx := context.WithValue(r.Context(), resultKey{}, res)
		next.ServeHTTP(w, r.WithContext(ctx))
		e.ServeEvent(res, route.RouteID)
	})
}

func writeAuthorizeError(w http.ResponseWriter, route *RoutePolicy, err error) {
	var perr *PolicyError
	if errors.As(err, &perr) {
		api.WriteProblem(w, perr.Code.HTTPStatus(), string(perr.Code), perr.Message, perr.ActionID, perr.RouteID)
		return
	}
	var ierr *InfraError
	if errors.As(err, &ierr) {
		// Deliberately not a policy code: the caller is not unauthorized,
		// the infrastructure is unavailable.
		api.WriteProblem(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE",
			"authorization infrastructure temporarily unavailable", "", route.RouteID)
		return
	}
	api.WriteInternal(w, err)
}
