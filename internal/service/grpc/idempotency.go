package grpcsvc

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/coffeetrade/internal/domain"
)

const idempotencyKeyHeader = "idempotency-key"

const replayedFailureMessage = "previous request with the same idempotency key failed"

// storedFailure: gRPC-статус неуспешного запроса в response_body.
type storedFailure struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

// withIdempotency выполняет run не более одного раза на ключ из метаданных.
// Без ключа или без репозитория run выполняется всегда.
func (s *TradingService) withIdempotency(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	run func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	key, ok := idempotencyKey(ctx)
	if s.idemRepo == nil || !ok {
		return run(ctx)
	}
	logger := s.logger.WithFields(log.Fields{"method": method, "idempotency_key": key})

	hash, err := requestFingerprint(method, req)
	if err != nil {
		logger.WithError(err).Warn("cannot fingerprint request")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, err := s.idemRepo.CreateProcessing(ctx, key, hash, time.Now().UTC().Add(domain.DefaultIdempotencyTTL))
	if err != nil {
		return s.replay(logger, record, err)
	}

	resp, runErr := run(ctx)
	if runErr != nil {
		if err := s.rememberFailure(ctx, key, runErr); err != nil {
			logger.WithError(err).Warn("cannot store idempotent failure")
		}
		return nil, runErr
	}
	if err := s.rememberSuccess(ctx, key, resp); err != nil {
		logger.WithError(err).Warn("cannot store idempotent response")
	}
	return resp, nil
}

// replay отвечает на повтор по уже существующей записи.
func (s *TradingService) replay(logger *log.Entry, record domain.IdempotencyRecord, reserveErr error) (*structpb.Struct, error) {
	if errors.Is(reserveErr, domain.ErrIdempotencyHashMismatch) {
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	}
	if !errors.Is(reserveErr, domain.ErrIdempotencyKeyAlreadyExists) {
		logger.WithError(reserveErr).Warn("cannot reserve idempotency key")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case domain.IdempotencyStatusFailed:
		return nil, storedFailureStatus(record)
	case domain.IdempotencyStatusDone:
		resp := new(structpb.Struct)
		if len(record.ResponseBody) == 0 {
			return nil, status.Error(codes.Internal, "idempotency cache is empty")
		}
		if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
			logger.WithError(err).Warn("cached response is corrupted")
			return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
		}
		return resp, nil
	default:
		return nil, status.Errorf(codes.Internal, "unknown idempotency record status %q", record.Status)
	}
}

func (s *TradingService) rememberSuccess(ctx context.Context, key string, resp *structpb.Struct) error {
	var body []byte
	if resp != nil {
		var err error
		if body, err = protojson.Marshal(resp); err != nil {
			return err
		}
	}
	return s.idemRepo.MarkDone(ctx, key, body, int(codes.OK))
}

func (s *TradingService) rememberFailure(ctx context.Context, key string, runErr error) error {
	st := status.Convert(runErr)
	failure := storedFailure{Code: st.Code(), Message: st.Message()}
	if failure.Code == codes.OK {
		failure.Code = codes.Internal
	}
	body, err := json.Marshal(failure)
	if err != nil {
		return err
	}
	return s.idemRepo.MarkFailed(ctx, key, body, int(failure.Code))
}

// storedFailureStatus восстанавливает статус из тела записи, затем из status_code.
func storedFailureStatus(record domain.IdempotencyRecord) error {
	var failure storedFailure
	if json.Unmarshal(record.ResponseBody, &failure) == nil && validFailureCode(int64(failure.Code)) {
		return status.Error(failure.Code, cmp.Or(failure.Message, replayedFailureMessage))
	}
	if validFailureCode(int64(record.StatusCode)) {
		return status.Error(codes.Code(record.StatusCode), replayedFailureMessage) //nolint:gosec // проверено validFailureCode
	}
	return status.Error(codes.Internal, replayedFailureMessage)
}

func validFailureCode(v int64) bool {
	return v > int64(codes.OK) && v <= int64(codes.Unauthenticated)
}

// idempotencyKey читает ключ из входящих метаданных, а для вызовов внутри
// процесса из исходящих.
func idempotencyKey(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md, ok = metadata.FromOutgoingContext(ctx)
	}
	if !ok {
		return "", false
	}
	for _, v := range md.Get(idempotencyKeyHeader) {
		if key := strings.TrimSpace(v); key != "" {
			return key, true
		}
	}
	return "", false
}

// requestFingerprint: sha256 от имени метода и детерминированной proto-сериализации запроса.
func requestFingerprint(method string, req proto.Message) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil)), nil
}
