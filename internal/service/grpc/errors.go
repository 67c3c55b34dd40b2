package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
	"github.com/vladislavdragonenkov/coffeetrade/internal/service/trading"
)

// statusCode сопоставляет доменную ошибку коду gRPC.
func statusCode(err error) codes.Code {
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	switch {
	case domain.IsValidation(err), domain.IsInvalidIdentifier(err):
		return codes.InvalidArgument
	case errors.Is(err, trading.ErrUnknownReport):
		return codes.NotFound
	case errors.Is(err, domain.ErrQueryNotConstructible):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrDataSourceUnavailable):
		return codes.Unavailable
	case errors.Is(err, domain.ErrLineItemExists), errors.Is(err, domain.ErrForeignLineItem),
		errors.Is(err, domain.ErrMoneyOverflow):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrLineItemNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// toStatus переводит ошибку сервиса в статус gRPC. Внутренние ошибки не раскрываются клиенту.
func (s *TradingService) toStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := statusCode(err)
	entry := s.logger.WithError(err).WithField("operation", operation)
	if code == codes.Internal {
		entry.Error("request failed")
		return status.Error(codes.Internal, operation+" failed")
	}
	entry.WithField("code", code.String()).Log(logLevel(code), "request rejected")
	return status.Error(code, err.Error())
}

func logLevel(code codes.Code) log.Level {
	switch code {
	case codes.Unavailable, codes.Aborted, codes.DeadlineExceeded:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}
