package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/fiadopay/internal/service/grpc"
)

const statusPending = "PENDING"

// Имена вызовов в отчёте.
const (
	callCreatePayment = "CreatePayment"
	callGetPayment    = "GetPayment"
	callRefundPayment = "RefundPayment"
)

// paymentAPI: часть клиента шлюза, которую использует нагрузочный тест.
type paymentAPI interface {
	CreatePayment(ctx context.Context, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetPayment(ctx context.Context, paymentID string, opts ...grpc.CallOption) (*structpb.Struct, error)
	RefundPayment(ctx context.Context, paymentID string, opts ...grpc.CallOption) (*structpb.Struct, error)
}

var _ paymentAPI = (*grpcsvc.Client)(nil)

// scenario выполняет один сценарий нагрузки от имени мерчанта.
type scenario struct {
	api        paymentAPI
	cfg        config
	merchantID string
	runID      string
	col        *collector
}

func (s *scenario) run(index int) (err error) {
	start := time.Now()
	defer func() {
		s.col.record(scenarioMetric, time.Since(start), grpcCode(err))
	}()

	paymentID, err := s.create(index)
	if err != nil {
		return err
	}

	switch s.cfg.mode {
	case modeCreatePoll:
		return s.poll(paymentID)
	case modeCreateRefund:
		return s.refund(paymentID)
	}
	return nil
}

func (s *scenario) create(index int) (string, error) {
	req := map[string]any{
		"method":          s.cfg.method,
		"currency":        s.cfg.currency,
		"amount":          s.cfg.amount,
		"metadataOrderId": fmt.Sprintf("lt-%s-%d", s.runID, index),
	}
	if s.cfg.installments > 0 {
		req["installments"] = s.cfg.installments
	}

	ctx, cancel := s.callContext()
	defer cancel()
	ctx = grpcsvc.WithIdempotencyKey(ctx, fmt.Sprintf("lt-create-%s-%d", s.runID, index))

	start := time.Now()
	resp, err := s.api.CreatePayment(ctx, req)
	s.col.record(callCreatePayment, time.Since(start), grpcCode(err))
	if err != nil {
		return "", err
	}

	paymentID := fieldString(resp, "id")
	if paymentID == "" {
		return "", status.Error(codes.Internal, "create response returned empty payment id")
	}
	return paymentID, nil
}

// poll опрашивает платёж, пока он не выйдет из PENDING или не истечёт poll-timeout.
func (s *scenario) poll(paymentID string) error {
	deadline := time.Now().Add(s.cfg.pollTimeout)
	for {
		ctx, cancel := s.callContext()
		start := time.Now()
		resp, err := s.api.GetPayment(ctx, paymentID)
		cancel()
		s.col.record(callGetPayment, time.Since(start), grpcCode(err))
		if err != nil {
			return err
		}

		if current := fieldString(resp, "status"); current != statusPending {
			s.col.recordStatus(current)
			return nil
		}
		if time.Now().After(deadline) {
			s.col.recordStatus(statusPending)
			return status.Errorf(codes.DeadlineExceeded, "payment %s still pending after %s", paymentID, s.cfg.pollTimeout)
		}
		time.Sleep(s.cfg.pollInterval)
	}
}

func (s *scenario) refund(paymentID string) error {
	ctx, cancel := s.callContext()
	defer cancel()

	start := time.Now()
	resp, err := s.api.RefundPayment(ctx, paymentID)
	s.col.record(callRefundPayment, time.Since(start), grpcCode(err))
	if err != nil {
		return err
	}
	if fieldString(resp, "id") == "" {
		return errors.New("refund response returned empty id")
	}
	return nil
}

func (s *scenario) callContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	return grpcsvc.WithMerchant(ctx, s.merchantID), cancel
}

func fieldString(st *structpb.Struct, key string) string {
	return st.GetFields()[key].GetStringValue()
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
