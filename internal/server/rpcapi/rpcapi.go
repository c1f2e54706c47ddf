// Package rpcapi registers the classifier service's methods on an internal
// RPC server.
package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/internal/server/service"
	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/rpc"
)

// Method names.
const (
	MethodClassify  = "Classifier.Classify"
	MethodTag       = "Classifier.Tag"
	MethodUtterance = "Classifier.Utterance"
	MethodModels    = "Classifier.Models"
)

// Register adds the classifier methods to s.
func Register(s *rpc.Server, svc *service.Service) {
	s.Register(MethodClassify, func(ctx context.Context, raw json.RawMessage) (any, error) {
		req, err := decode[proto.ClassifyRequest](raw)
		if err != nil {
			return nil, err
		}
		return svc.Classify(ctx, analytics.SourceRPC, req)
	})
	s.Register(MethodTag, func(ctx context.Context, raw json.RawMessage) (any, error) {
		req, err := decode[proto.TagRequest](raw)
		if err != nil {
			return nil, err
		}
		return svc.Tag(ctx, analytics.SourceRPC, req)
	})
	s.Register(MethodUtterance, func(ctx context.Context, raw json.RawMessage) (any, error) {
		req, err := decode[proto.UtteranceRequest](raw)
		if err != nil {
			return nil, err
		}
		res, _, err := svc.Utterance(ctx, analytics.SourceRPC, req)
		return res, err
	})
	s.Register(MethodModels, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return proto.ModelsResponse{Models: svc.Models()}, nil
	})
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, apperrors.New(apperrors.ErrInvalidInput, 0, "missing params")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: decoding params: %v", apperrors.ErrInvalidInput, err)
	}
	return v, nil
}
