package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/resilience"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// classify maps gRPC failures from the Cloud APIs onto reason codes:
// RESOURCE_EXHAUSTED is a rate limit, transport-level codes are network
// failures, the rest keep the fallback reason.
func classify(service string, err error, fallback errorsx.ReasonCode) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return errorsx.Wrap(fmt.Errorf("%s: %w", service, err), fallback)
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return errorsx.Wrap(resilience.RateLimitError{Provider: service, Message: st.Message()}, errorsx.ReasonQuotaExceeded)
	case codes.Unavailable, codes.DeadlineExceeded:
		return errorsx.Wrap(fmt.Errorf("%s: %w", service, err), errorsx.ReasonNetwork)
	case codes.PermissionDenied, codes.Unauthenticated:
		return errorsx.Wrap(fmt.Errorf("%s: credentials rejected: %w", service, err), fallback)
	default:
		return errorsx.Wrap(fmt.Errorf("%s: %w", service, err), fallback)
	}
}
